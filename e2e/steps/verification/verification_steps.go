package verification

import (
	"fmt"

	"github.com/cucumber/godog"

	"pactline/internal/verification"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	ActAs(ref string)
	GET(path string) error
	AdminPOST(path string, body any) error
	LastStatus() int
	LastBody() []byte
	Decode(v any) error
	Recall(key string) (string, error)
}

// RegisterSteps registers public verification and revocation step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &verificationSteps{tc: tc}

	ctx.Step(`^anyone looks up the verification code of "([^"]*)"$`, steps.lookUp)
	ctx.Step(`^anyone looks up the verification code "([^"]*)"$`, steps.lookUpCode)
	ctx.Step(`^the verdict should be "([^"]*)" with an intact chain$`, steps.verdictIntact)
	ctx.Step(`^the operator revokes the verification code of "([^"]*)" because "([^"]*)"$`, steps.revoke)
}

type verificationSteps struct {
	tc TestContext
}

func (s *verificationSteps) lookUp(alias string) error {
	code, err := s.tc.Recall(alias + "#code")
	if err != nil {
		return err
	}
	return s.lookUpCode(code)
}

// lookUpCode queries anonymously, the way a third party would.
func (s *verificationSteps) lookUpCode(code string) error {
	s.tc.ActAs("")
	return s.tc.GET("/v1/verify/" + code)
}

func (s *verificationSteps) verdictIntact(expected string) error {
	if s.tc.LastStatus() != 200 {
		return fmt.Errorf("lookup failed with %d: %s", s.tc.LastStatus(), s.tc.LastBody())
	}
	var result verification.Result
	if err := s.tc.Decode(&result); err != nil {
		return err
	}
	if string(result.Verdict) != expected {
		return fmt.Errorf("expected verdict %s, got %s", expected, result.Verdict)
	}
	if !result.ChainValid || result.StoredHash != result.RecomputedHash {
		return fmt.Errorf("chain does not verify: stored %s recomputed %s", result.StoredHash, result.RecomputedHash)
	}
	return nil
}

func (s *verificationSteps) revoke(alias, reason string) error {
	code, err := s.tc.Recall(alias + "#code")
	if err != nil {
		return err
	}
	return s.tc.AdminPOST("/v1/admin/verifications/"+code+"/revoke", map[string]string{"reason": reason})
}
