package agreement

import (
	"fmt"
	"strings"
	"time"

	"github.com/cucumber/godog"

	agreementhandler "pactline/internal/agreement/handler"
	"pactline/internal/identity"
	"pactline/internal/snapshot"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	ActAs(ref string)
	POST(path string, body any) error
	GET(path string) error
	AdminPOST(path string, body any) error
	LastStatus() int
	LastBody() []byte
	Decode(v any) error
	Remember(key, value string)
	Recall(key string) (string, error)
	RegisterPassword(ref, password string) error
	Now() time.Time
}

// RegisterSteps registers agreement lifecycle step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &agreementSteps{tc: tc}

	ctx.Step(`^identity "([^"]*)" signs with password "([^"]*)"$`, tc.RegisterPassword)
	ctx.Step(`^"([^"]*)" creates agreement "([^"]*)" for signers "([^"]*)"$`, steps.create)
	ctx.Step(`^"([^"]*)" creates sequential agreement "([^"]*)" for signers "([^"]*)"$`, steps.createSequential)
	ctx.Step(`^"([^"]*)" creates agreement "([^"]*)" for signers "([^"]*)" expiring in (\d+) minutes$`, steps.createExpiring)
	ctx.Step(`^"([^"]*)" creates agreement "([^"]*)" for signers "([^"]*)" needing (\d+) signatures$`, steps.createThreshold)
	ctx.Step(`^"([^"]*)" signs "([^"]*)" with password "([^"]*)"$`, steps.sign)
	ctx.Step(`^"([^"]*)" declines "([^"]*)" because "([^"]*)"$`, steps.decline)
	ctx.Step(`^agreement "([^"]*)" should have status "([^"]*)"$`, steps.shouldHaveStatus)
	ctx.Step(`^agreement "([^"]*)" should have (\d+) ledger events$`, steps.shouldHaveEvents)
	ctx.Step(`^agreement "([^"]*)" should have a verification code$`, steps.shouldHaveCode)
	ctx.Step(`^agreement "([^"]*)" should have no verification code$`, steps.shouldHaveNoCode)
	ctx.Step(`^the operator sweeps expired agreements$`, steps.sweep)
}

type agreementSteps struct {
	tc TestContext
}

func (s *agreementSteps) create(creator, alias, signers string) error {
	return s.submit(creator, alias, signers, func(map[string]any) {})
}

func (s *agreementSteps) createSequential(creator, alias, signers string) error {
	return s.submit(creator, alias, signers, func(body map[string]any) {
		body["sequential"] = true
	})
}

func (s *agreementSteps) createExpiring(creator, alias, signers string, minutes int) error {
	return s.submit(creator, alias, signers, func(body map[string]any) {
		body["expires_at"] = s.tc.Now().Add(time.Duration(minutes) * time.Minute)
	})
}

func (s *agreementSteps) createThreshold(creator, alias, signers string, n int) error {
	return s.submit(creator, alias, signers, func(body map[string]any) {
		body["quorum"] = map[string]any{"kind": "threshold", "threshold": n}
	})
}

func (s *agreementSteps) submit(creator, alias, signers string, customize func(map[string]any)) error {
	refs := strings.Split(signers, ",")
	specs := make([]map[string]string, 0, len(refs))
	for _, ref := range refs {
		specs = append(specs, map[string]string{
			"identity_ref": strings.TrimSpace(ref),
			"method":       string(identity.MethodPassword),
		})
	}
	body := map[string]any{
		"template_ref": "e2e/" + alias,
		"content": snapshot.Content{
			Title:   alias,
			Parties: []snapshot.Party{{Role: "creator", Name: creator}},
			Terms:   []snapshot.Term{{Key: "scope", Text: "Scenario " + alias + "."}},
		},
		"signers": specs,
	}
	customize(body)

	s.tc.ActAs(creator)
	if err := s.tc.POST("/v1/agreements", body); err != nil {
		return err
	}
	if s.tc.LastStatus() != 201 {
		return fmt.Errorf("create %s: status %d: %s", alias, s.tc.LastStatus(), s.tc.LastBody())
	}
	var created agreementhandler.StatusResponse
	if err := s.tc.Decode(&created); err != nil {
		return err
	}
	s.tc.Remember(alias, created.Agreement.ID.String())
	s.tc.Remember(alias+"#creator", creator)
	for _, sg := range created.Signers {
		s.tc.Remember(alias+"/"+sg.IdentityRef.String(), sg.ID.String())
	}
	return nil
}

func (s *agreementSteps) signerPath(alias, ref, action string) (string, error) {
	agreementID, err := s.tc.Recall(alias)
	if err != nil {
		return "", err
	}
	signerID, err := s.tc.Recall(alias + "/" + ref)
	if err != nil {
		return "", err
	}
	return "/v1/agreements/" + agreementID + "/signers/" + signerID + "/" + action, nil
}

func (s *agreementSteps) sign(ref, alias, password string) error {
	path, err := s.signerPath(alias, ref, "sign")
	if err != nil {
		return err
	}
	s.tc.ActAs(ref)
	return s.tc.POST(path, map[string]string{"password": password})
}

func (s *agreementSteps) decline(ref, alias, reason string) error {
	path, err := s.signerPath(alias, ref, "decline")
	if err != nil {
		return err
	}
	s.tc.ActAs(ref)
	return s.tc.POST(path, map[string]string{"reason": reason})
}

// status fetches the agreement as its creator and remembers any code.
func (s *agreementSteps) status(alias string) (*agreementhandler.StatusResponse, error) {
	agreementID, err := s.tc.Recall(alias)
	if err != nil {
		return nil, err
	}
	creator, err := s.tc.Recall(alias + "#creator")
	if err != nil {
		return nil, err
	}
	s.tc.ActAs(creator)
	if err := s.tc.GET("/v1/agreements/" + agreementID); err != nil {
		return nil, err
	}
	if s.tc.LastStatus() != 200 {
		return nil, fmt.Errorf("status of %s: %d: %s", alias, s.tc.LastStatus(), s.tc.LastBody())
	}
	var view agreementhandler.StatusResponse
	if err := s.tc.Decode(&view); err != nil {
		return nil, err
	}
	if view.VerificationCode != "" {
		s.tc.Remember(alias+"#code", view.VerificationCode)
	}
	return &view, nil
}

func (s *agreementSteps) shouldHaveStatus(alias, expected string) error {
	view, err := s.status(alias)
	if err != nil {
		return err
	}
	if string(view.Agreement.Status) != expected {
		return fmt.Errorf("agreement %s: expected status %s, got %s", alias, expected, view.Agreement.Status)
	}
	return nil
}

func (s *agreementSteps) shouldHaveEvents(alias string, n int) error {
	view, err := s.status(alias)
	if err != nil {
		return err
	}
	if len(view.Events) != n {
		return fmt.Errorf("agreement %s: expected %d events, got %d", alias, n, len(view.Events))
	}
	for i, e := range view.Events {
		if e.Sequence != int64(i+1) {
			return fmt.Errorf("agreement %s: event %d has sequence %d", alias, i, e.Sequence)
		}
	}
	return nil
}

func (s *agreementSteps) shouldHaveCode(alias string) error {
	view, err := s.status(alias)
	if err != nil {
		return err
	}
	if view.VerificationCode == "" {
		return fmt.Errorf("agreement %s has no verification code", alias)
	}
	return nil
}

func (s *agreementSteps) shouldHaveNoCode(alias string) error {
	view, err := s.status(alias)
	if err != nil {
		return err
	}
	if view.VerificationCode != "" {
		return fmt.Errorf("agreement %s unexpectedly has code %s", alias, view.VerificationCode)
	}
	return nil
}

func (s *agreementSteps) sweep() error {
	s.tc.ActAs("")
	return s.tc.AdminPOST("/v1/admin/sweep", nil)
}
