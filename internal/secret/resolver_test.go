package secret

import (
	"context"
	"testing"
)

func TestEnvResolver(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")

	r := NewEnvResolver()
	got, err := r.GetSecret(context.Background(), "/drivesync/jwt-secret")
	if err != nil {
		t.Fatalf("GetSecret() error: %v", err)
	}
	if got != "from-env" {
		t.Errorf("GetSecret() = %q, want from-env", got)
	}
}

func TestEnvResolverMissing(t *testing.T) {
	r := NewEnvResolver()
	if _, err := r.GetSecret(context.Background(), "/drivesync/never-set-anywhere"); err == nil {
		t.Error("expected error for unset variable")
	}
}

func TestParamNameToEnvVar(t *testing.T) {
	cases := map[string]string{
		"/drivesync/jwt-secret":          "JWT_SECRET",
		"/drivesync/token-crypto-secret": "TOKEN_CRYPTO_SECRET",
		"plain":                          "PLAIN",
	}
	for in, want := range cases {
		if got := paramNameToEnvVar(in); got != want {
			t.Errorf("paramNameToEnvVar(%q) = %q, want %q", in, got, want)
		}
	}
}
