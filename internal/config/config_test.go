package config

import (
	"strings"
	"testing"

	"github.com/urfave/cli/v2"
)

func parse(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	var (
		cfg *Config
		err error
	)
	app := &cli.App{
		Name:  "test",
		Flags: Flags(),
		Action: func(c *cli.Context) error {
			cfg, err = FromContext(c)
			return nil
		},
	}
	if runErr := app.Run(append([]string{"test"}, args...)); runErr != nil {
		t.Fatalf("run: %v", runErr)
	}
	return cfg, err
}

func TestDefaults(t *testing.T) {
	cfg, err := parse(t, "--jwt-secret", "s")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store != "memory" || cfg.Events != "log" || cfg.GatewayMode != "sandbox" || cfg.Currency != "INR" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Fatalf("unexpected origins %v", cfg.CORSOrigins)
	}
}

func TestEnvFallback(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("CURRENCY", "usd")
	cfg, err := parse(t)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.JWTSecret != "from-env" || cfg.Currency != "USD" || len(cfg.CORSOrigins) != 2 {
		t.Fatalf("env not applied: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		args []string
		want string
	}{
		{[]string{}, "JWT_SECRET"},
		{[]string{"--jwt-secret", "s", "--store", "postgres"}, "DATABASE_URL"},
		{[]string{"--jwt-secret", "s", "--store", "mongo"}, "unknown store"},
		{[]string{"--jwt-secret", "s", "--events", "nats"}, "unknown events"},
		{[]string{"--jwt-secret", "s", "--gateway-mode", "live"}, "GATEWAY_KEY_ID"},
		{[]string{"--jwt-secret", "s", "--currency", "rupee"}, "unknown currency"},
	}
	for _, tc := range cases {
		_, err := parse(t, tc.args...)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%v: expected error containing %q, got %v", tc.args, tc.want, err)
		}
	}
}

func TestSandboxSecret(t *testing.T) {
	first, err := parse(t, "--jwt-secret", "s")
	if err != nil {
		t.Fatal(err)
	}
	second, err := parse(t, "--jwt-secret", "s")
	if err != nil {
		t.Fatal(err)
	}
	if !first.GeneratedSecret || len(first.GatewayKeySecret) != 64 {
		t.Fatalf("expected a generated secret, got %q", first.GatewayKeySecret)
	}
	if first.GatewayKeySecret == second.GatewayKeySecret {
		t.Fatalf("sandbox secret must not be predictable")
	}

	given, err := parse(t, "--jwt-secret", "s", "--gateway-key-secret", "mine")
	if err != nil {
		t.Fatal(err)
	}
	if given.GeneratedSecret || given.GatewayKeySecret != "mine" {
		t.Fatalf("configured secret must be kept: %+v", given)
	}
}
