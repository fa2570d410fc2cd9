// Package auth provides role-based authorisation for the analysis API.
// Clients authenticate with static bearer tokens; each token maps to a role
// and each endpoint requires a permission.
package auth

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

type Permission string

const (
	PermissionAnalysisRun   Permission = "analysis:run"
	PermissionAnalysisQuery Permission = "analysis:query"
)

type Role string

const (
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

var RolePermissions = map[Role][]Permission{
	RoleOperator: {
		PermissionAnalysisRun,
		PermissionAnalysisQuery,
	},
	RoleViewer: {PermissionAnalysisQuery},
}

var EndpointPermissions = map[string]Permission{
	"POST /v1/analyses":      PermissionAnalysisRun,
	"GET /v1/analyses/kinds": PermissionAnalysisQuery,
}

var (
	ErrUnknownToken     = errors.New("unknown token")
	ErrMissingToken     = errors.New("missing bearer token")
	ErrPermissionDenied = errors.New("permission denied")
)

// ParseTokens parses a "token:role,token:role" list, e.g. from an
// environment variable, into a token→role table.
func ParseTokens(s string) (map[string]Role, error) {
	tokens := make(map[string]Role)

	if strings.TrimSpace(s) == "" {
		return tokens, nil
	}

	for _, pair := range strings.Split(s, ",") {
		token, role, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || token == "" {
			return nil, fmt.Errorf("malformed token entry %q", pair)
		}

		if _, exists := RolePermissions[Role(role)]; !exists {
			return nil, fmt.Errorf("unknown role %q", role)
		}

		tokens[token] = Role(role)
	}

	return tokens, nil
}

// RoleForToken resolves an Authorization header value against the token
// table.
func RoleForToken(tokens map[string]Role, header string) (Role, error) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", ErrMissingToken
	}

	role, exists := tokens[token]
	if !exists {
		return "", ErrUnknownToken
	}

	return role, nil
}

// IsAuthorised checks whether the role carries the permission the endpoint
// requires.
func IsAuthorised(clientRole Role, endpoint string) error {
	requiredPermission, exists := EndpointPermissions[endpoint]
	if !exists {
		return fmt.Errorf("endpoint %q not in endpoint permissions", endpoint)
	}

	permissions, ok := RolePermissions[clientRole]
	if !ok {
		return fmt.Errorf("role %q not in role permissions", clientRole)
	}

	if !slices.Contains(permissions, requiredPermission) {
		return fmt.Errorf("%w: %s requires %s", ErrPermissionDenied, endpoint, requiredPermission)
	}

	return nil
}
