// Package secret abstracts where deployment secrets come from, so handlers
// and config stay testable without real environment state.
package secret

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Resolver retrieves secret values by name.
type Resolver interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// EnvResolver fetches secrets from environment variables. A path-style name
// (e.g. "/drivesync/jwt-secret") maps to the environment variable derived
// from its last segment ("JWT_SECRET").
type EnvResolver struct{}

// NewEnvResolver returns a Resolver that reads from environment variables.
func NewEnvResolver() Resolver {
	return &EnvResolver{}
}

func (r *EnvResolver) GetSecret(_ context.Context, name string) (string, error) {
	envName := paramNameToEnvVar(name)
	val := os.Getenv(envName)
	if val == "" {
		return "", fmt.Errorf("environment variable %q (from param %q) is not set", envName, name)
	}
	return val, nil
}

// StaticResolver serves a fixed map. Used by tests.
type StaticResolver map[string]string

func (r StaticResolver) GetSecret(_ context.Context, name string) (string, error) {
	if v, ok := r[name]; ok {
		return v, nil
	}
	return "", fmt.Errorf("secret %q not found", name)
}

func paramNameToEnvVar(name string) string {
	segments := strings.Split(name, "/")
	last := segments[len(segments)-1]
	return strings.ToUpper(strings.ReplaceAll(last, "-", "_"))
}
