package reflection

import (
	"time"

	"reflectd/pkg/types"
)

// fixedReflection is a deterministic result template used when the pipeline
// cannot produce a model-generated reflection. The content is generic and
// non-blaming; the Error field carries the machine-readable reason.
type fixedReflection struct {
	insight  string
	question string
	err      string
}

var (
	tooBriefResult = fixedReflection{
		insight:  "This entry is quite brief. Consider adding more thoughts for AI analysis.",
		question: "What else would you like to explore about this topic?",
		err:      "Content too brief for meaningful reflection",
	}
	unavailableResult = fixedReflection{
		insight:  "AI reflection is not currently available.",
		question: "What insights can you draw from this entry on your own?",
		err:      "AI service not available",
	}
	loadTimeoutResult = fixedReflection{
		insight:  "AI model is taking longer than expected to load.",
		question: "What thoughts come to mind when you read this entry?",
		err:      "Model loading timeout",
	}
	loadFailedResult = fixedReflection{
		insight:  "Unable to load AI model at this time.",
		question: "What thoughts come to mind when you read this entry?",
		err:      "Failed to load AI model",
	}
	insufficientResult = fixedReflection{
		insight:  "This entry is too brief for AI analysis.",
		question: "What more could you add to this reflection?",
		err:      "Content insufficient for prompt generation",
	}
	generationFailedResult = fixedReflection{
		insight:  "AI analysis encountered an issue.",
		question: "What can you reflect on from this entry yourself?",
		err:      "Generation failed",
	}
	parseFailedResult = fixedReflection{
		insight:  "AI had difficulty analyzing this entry.",
		question: "What stood out to you most in this reflection?",
		err:      "Response parsing failed",
	}
)

// fixedResult materializes a template into a ReflectionResult. ModelUsed is
// "none" because no model output reached the caller; stages that did invoke
// the model overwrite it.
func (s *Service) fixedResult(start time.Time, t fixedReflection) types.ReflectionResult {
	return types.ReflectionResult{
		Insights:       []string{t.insight},
		Questions:      []string{t.question},
		Themes:         []string{"reflection"},
		GeneratedAt:    time.Now(),
		GenerationTime: time.Since(start),
		ModelUsed:      "none",
		Error:          t.err,
	}
}
