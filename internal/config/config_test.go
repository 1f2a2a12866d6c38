package config

import (
	"testing"
	"time"
)

func validLocal() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "dialer", SSLMode: ""},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
}

func TestLoad_ReportsMissingRequired(t *testing.T) {
	// Ensure a clean env by not setting anything and calling validation directly.
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.Twilio = TwilioConfig{
		AccountSID:        "AC123",
		AuthToken:         "tok",
		FromNumber:        "+15550000000",
		StatusCallbackURL: "https://dialer.example.com/webhooks/twilio/status",
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_ProductionRequiresProviderCredentials(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.DB.SSLMode = "require"
	c.Auth.JWTIssuer = "dialer"
	c.Auth.JWTAudience = "dialer-api"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without provider credentials")
	}
}

func TestValidate_LocalDefaultsSSLMode(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
}

func TestValidate_AppliesCapacityAndSchedulerDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.Capacity.SystemLimit != 10 {
		t.Fatalf("expected default system limit 10, got %d", c.Capacity.SystemLimit)
	}
	if c.Capacity.UserDefault != 2 {
		t.Fatalf("expected default user limit 2, got %d", c.Capacity.UserDefault)
	}
	if c.Capacity.StaleAfter != 2*time.Hour {
		t.Fatalf("expected default stale threshold 2h, got %v", c.Capacity.StaleAfter)
	}
	if c.Scheduler.TickInterval != 3*time.Second {
		t.Fatalf("expected default tick 3s, got %v", c.Scheduler.TickInterval)
	}
	if c.Twilio.DispatchTimeout != 10*time.Second {
		t.Fatalf("expected default dispatch timeout 10s, got %v", c.Twilio.DispatchTimeout)
	}
}

func TestValidate_RejectsUserDefaultAboveSystemLimit(t *testing.T) {
	c := validLocal()
	c.Capacity.SystemLimit = 5
	c.Capacity.UserDefault = 9
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error when per-user default exceeds system limit")
	}
}
