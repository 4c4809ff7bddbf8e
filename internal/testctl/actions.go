package testctl

// Indirection layer to allow stubbing in tests

var (
	fnInstallGo    = installGo
	fnInstallLlama = installLlama

	fnRunGoTests      = runGoTests
	fnRunGoTestsLlama = runGoTestsLlama
	fnRunBlackbox     = runBlackboxTests

	fnSmoke = smokeDaemon

	fnHasModelArtifact = hasModelArtifact
)
