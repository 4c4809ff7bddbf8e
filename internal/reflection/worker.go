package reflection

import (
	"context"
	"errors"

	"reflectd/internal/engine"
)

// genRequest is one unit of work for the generation worker. The result
// channel is buffered so the worker can always deliver and move on, even
// when the caller timed out and walked away.
type genRequest struct {
	ctx      context.Context
	prompt   string
	progress func(string)
	resultCh chan genOutcome
}

type genOutcome struct {
	res engine.Result
	err error
}

var errServiceClosed = errors.New("reflection service closed")

// generateWorker is the single long-lived goroutine that drives the engine.
// Generations are inherently serial on one model handle, so one worker is
// the right amount of parallelism; queueing happens on the unbuffered
// request channel.
func (s *Service) generateWorker() {
	for {
		select {
		case <-s.closed:
			return
		case req := <-s.genCh:
			res, err := s.engine.Generate(req.ctx, req.prompt, progressCounter(req.progress))
			req.resultCh <- genOutcome{res: res, err: err}
		}
	}
}

// generate hands one prompt to the worker and waits for the outcome or
// context cancellation.
func (s *Service) generate(ctx context.Context, promptText string, onProgress func(string)) (engine.Result, error) {
	req := genRequest{
		ctx:      ctx,
		prompt:   promptText,
		progress: onProgress,
		resultCh: make(chan genOutcome, 1),
	}
	select {
	case s.genCh <- req:
	case <-s.closed:
		return engine.Result{}, errServiceClosed
	case <-ctx.Done():
		return engine.Result{}, ctx.Err()
	}
	select {
	case out := <-req.resultCh:
		return out.res, out.err
	case <-ctx.Done():
		// the worker still finishes and delivers into the buffered channel
		return engine.Result{}, ctx.Err()
	}
}
