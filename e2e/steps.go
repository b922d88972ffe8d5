package e2e

import (
	"github.com/cucumber/godog"

	"pactline/e2e/steps/agreement"
	"pactline/e2e/steps/verification"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	tc.registerCommonSteps(ctx)
	agreement.RegisterSteps(ctx, tc)
	verification.RegisterSteps(ctx, tc)
}
