package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cucumber/godog"

	id "pactline/pkg/domain"
	"pactline/pkg/platform/middleware/admin"
)

// TestContext carries one scenario's deployment and its last HTTP exchange.
type TestContext struct {
	stack      *Stack
	caller     id.IdentityRef
	lastStatus int
	lastBody   []byte
	vars       map[string]string
}

func (tc *TestContext) reset() {
	if tc.stack != nil {
		tc.stack.Close()
	}
	tc.stack = NewStack()
	tc.caller = ""
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.vars = map[string]string{}
}

func (tc *TestContext) Stack() *Stack { return tc.stack }

// Remember stores a value for later steps in the same scenario.
func (tc *TestContext) Remember(key, value string) { tc.vars[key] = value }

func (tc *TestContext) Recall(key string) (string, error) {
	v, ok := tc.vars[key]
	if !ok {
		return "", fmt.Errorf("nothing remembered as %q", key)
	}
	return v, nil
}

// RegisterPassword enrolls ref with the identity provider.
func (tc *TestContext) RegisterPassword(ref, password string) error {
	tc.stack.Provider.Register(id.IdentityRef(ref), ref)
	return tc.stack.Provider.SetPassword(id.IdentityRef(ref), password)
}

func (tc *TestContext) Now() time.Time { return tc.stack.Clock.Now() }

// ActAs makes subsequent requests carry a bearer token for ref.
func (tc *TestContext) ActAs(ref string) {
	tc.caller = id.IdentityRef(ref)
}

func (tc *TestContext) POST(path string, body any) error {
	return tc.do(http.MethodPost, path, body, nil)
}

func (tc *TestContext) GET(path string) error {
	return tc.do(http.MethodGet, path, nil, nil)
}

// AdminPOST calls an operator endpoint with the admin token.
func (tc *TestContext) AdminPOST(path string, body any) error {
	return tc.do(http.MethodPost, path, body, map[string]string{admin.HeaderAdminToken: AdminToken})
}

func (tc *TestContext) do(method, path string, body any, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, tc.stack.Server.URL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tc.caller != "" {
		token, err := tc.stack.Tokens.GenerateAccessToken(tc.caller, time.Hour)
		if err != nil {
			return fmt.Errorf("mint token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tc.stack.Server.Client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) LastStatus() int    { return tc.lastStatus }
func (tc *TestContext) LastBody() []byte   { return tc.lastBody }
func (tc *TestContext) Decode(v any) error { return json.Unmarshal(tc.lastBody, v) }

// ResponseField walks a dotted path through the last JSON response.
func (tc *TestContext) ResponseField(path string) (any, error) {
	var cur any
	if err := json.Unmarshal(tc.lastBody, &cur); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %q: not an object", path)
		}
		if cur, ok = obj[part]; !ok {
			return nil, fmt.Errorf("field %q not present in %s", path, tc.lastBody)
		}
	}
	return cur, nil
}

func (tc *TestContext) registerCommonSteps(ctx *godog.ScenarioContext) {
	ctx.Step(`^the response status should be (\d+)$`, func(expected int) error {
		if tc.lastStatus != expected {
			return fmt.Errorf("expected status %d, got %d: %s", expected, tc.lastStatus, tc.lastBody)
		}
		return nil
	})
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, func(field, expected string) error {
		v, err := tc.ResponseField(field)
		if err != nil {
			return err
		}
		if got := fmt.Sprint(v); got != expected {
			return fmt.Errorf("field %q: expected %q, got %q", field, expected, got)
		}
		return nil
	})
	ctx.Step(`^the response should not mention "([^"]*)"$`, func(s string) error {
		if bytes.Contains(tc.lastBody, []byte(s)) {
			return fmt.Errorf("response leaks %q: %s", s, tc.lastBody)
		}
		return nil
	})
	ctx.Step(`^(\d+) minutes pass$`, func(minutes int) error {
		tc.stack.Clock.Advance(time.Duration(minutes) * time.Minute)
		return nil
	})
}

// InitializeScenario builds a fresh deployment per scenario and registers
// every step package.
func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &TestContext{}
	ctx.Before(func(c context.Context, _ *godog.Scenario) (context.Context, error) {
		tc.reset()
		return c, nil
	})
	ctx.After(func(c context.Context, _ *godog.Scenario, err error) (context.Context, error) {
		if tc.stack != nil {
			tc.stack.Close()
			tc.stack = nil
		}
		return c, err
	})
	RegisterSteps(ctx, tc)
}
