package auth_test

import (
	"errors"
	"testing"

	"github.com/storyworks/analyzerd/internal/auth"
)

func TestParseTokens(t *testing.T) {
	t.Parallel()

	t.Run("Test valid token list", func(t *testing.T) {
		t.Parallel()

		tokens, err := auth.ParseTokens("tok-op:operator, tok-view:viewer")
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if tokens["tok-op"] != auth.RoleOperator {
			t.Errorf("expected operator role: got '%s'", tokens["tok-op"])
		}

		if tokens["tok-view"] != auth.RoleViewer {
			t.Errorf("expected viewer role: got '%s'", tokens["tok-view"])
		}
	})

	t.Run("Test empty list", func(t *testing.T) {
		t.Parallel()

		tokens, err := auth.ParseTokens("")
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if len(tokens) != 0 {
			t.Errorf("expected no tokens: got '%d'", len(tokens))
		}
	})

	t.Run("Test malformed entry", func(t *testing.T) {
		t.Parallel()

		if _, err := auth.ParseTokens("just-a-token"); err == nil {
			t.Error("expected to receive error")
		}
	})

	t.Run("Test unknown role", func(t *testing.T) {
		t.Parallel()

		if _, err := auth.ParseTokens("tok:superuser"); err == nil {
			t.Error("expected to receive error")
		}
	})
}

func TestRoleForToken(t *testing.T) {
	t.Parallel()

	tokens := map[string]auth.Role{"tok-op": auth.RoleOperator}

	scenarios := map[string]struct {
		header  string
		role    auth.Role
		wantErr error
	}{
		"Valid bearer token": {
			header: "Bearer tok-op",
			role:   auth.RoleOperator,
		},
		"Unknown token": {
			header:  "Bearer nope",
			wantErr: auth.ErrUnknownToken,
		},
		"Missing header": {
			header:  "",
			wantErr: auth.ErrMissingToken,
		},
		"Wrong scheme": {
			header:  "Basic dXNlcjpwYXNz",
			wantErr: auth.ErrMissingToken,
		},
	}

	for scenario, config := range scenarios {
		t.Run(scenario, func(t *testing.T) {
			t.Parallel()

			role, err := auth.RoleForToken(tokens, config.header)

			if config.wantErr != nil {
				if !errors.Is(err, config.wantErr) {
					t.Errorf(
						"expected error: got '%v', want '%v'",
						err,
						config.wantErr,
					)
				}

				return
			}

			if err != nil {
				t.Fatalf("expected not to receive error: got '%v'", err)
			}

			if role != config.role {
				t.Errorf("expected role: got '%s', want '%s'", role, config.role)
			}
		})
	}
}

func TestIsAuthorised(t *testing.T) {
	t.Parallel()

	scenarios := map[string]struct {
		role     auth.Role
		endpoint string
		allowed  bool
	}{
		"Operator can run analyses": {
			role:     auth.RoleOperator,
			endpoint: "POST /v1/analyses",
			allowed:  true,
		},
		"Operator can query kinds": {
			role:     auth.RoleOperator,
			endpoint: "GET /v1/analyses/kinds",
			allowed:  true,
		},
		"Viewer cannot run analyses": {
			role:     auth.RoleViewer,
			endpoint: "POST /v1/analyses",
			allowed:  false,
		},
		"Viewer can query kinds": {
			role:     auth.RoleViewer,
			endpoint: "GET /v1/analyses/kinds",
			allowed:  true,
		},
		"Unknown endpoint": {
			role:     auth.RoleOperator,
			endpoint: "DELETE /v1/everything",
			allowed:  false,
		},
		"Unknown role": {
			role:     auth.Role("superuser"),
			endpoint: "GET /v1/analyses/kinds",
			allowed:  false,
		},
	}

	for scenario, config := range scenarios {
		t.Run(scenario, func(t *testing.T) {
			t.Parallel()

			err := auth.IsAuthorised(config.role, config.endpoint)

			if config.allowed && err != nil {
				t.Errorf("expected to be authorised: got '%v'", err)
			}

			if !config.allowed && err == nil {
				t.Error("expected not to be authorised")
			}
		})
	}
}
