package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		DB: DBConfig{
			Host: "localhost", Port: 5432, User: "visionfy",
			Password: "secret", Name: "visionfy", SSLMode: "disable", MaxConns: 25,
		},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		JWT: JWTConfig{
			AccessSecret:  "access-secret-that-is-at-least-32-chars!",
			RefreshSecret: "refresh-secret-that-is-at-least-32-chr!",
			AccessExpiry:  15 * time.Minute,
			RefreshExpiry: 168 * time.Hour,
		},
		NATS:     NATSConfig{URL: "nats://localhost:4222"},
		Provider: ProviderConfig{APIKey: "sk-test", BaseURL: "https://api.openai.com", Timeout: 60 * time.Second},
		Storage: StorageConfig{
			Region: "us-east-1", AccessKey: "ak", SecretKey: "sk",
			Bucket: "assets", PublicBaseURL: "https://cdn.example.com",
		},
		Limits: LimitsConfig{
			DailyQuota: 25, GeneratePerMinute: 10, EditPerMinute: 5, VariationPerMinute: 5,
			Window: time.Minute, AuthPerMinute: 20,
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestValidate_JWTAccessSecretTooShort(t *testing.T) {
	cfg := validConfig()
	cfg.JWT.AccessSecret = "short"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "JWT_ACCESS_SECRET") {
		t.Fatalf("expected JWT_ACCESS_SECRET error, got: %v", err)
	}
}

func TestValidate_JWTSecretsMustDiffer(t *testing.T) {
	cfg := validConfig()
	cfg.JWT.AccessSecret = "the-same-secret-that-is-at-least-32-chars!"
	cfg.JWT.RefreshSecret = "the-same-secret-that-is-at-least-32-chars!"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "must differ") {
		t.Fatalf("expected 'must differ' error, got: %v", err)
	}
}

func TestValidate_ProviderKeyRequired(t *testing.T) {
	cfg := validConfig()
	cfg.Provider.APIKey = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Fatalf("expected OPENAI_API_KEY error, got: %v", err)
	}
}

func TestValidate_StorageRequired(t *testing.T) {
	cfg := validConfig()
	cfg.Storage = StorageConfig{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected storage validation errors")
	}
	for _, substr := range []string{"S3_BUCKET", "S3_REGION", "S3_ACCESS_KEY", "S3_PUBLIC_BASE_URL"} {
		if !strings.Contains(err.Error(), substr) {
			t.Errorf("expected %q in error: %v", substr, err)
		}
	}
}

func TestValidate_NonPositiveLimits(t *testing.T) {
	cfg := validConfig()
	cfg.Limits.DailyQuota = 0
	cfg.Limits.EditPerMinute = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected limit validation errors")
	}
	if !strings.Contains(err.Error(), "LIMITS_DAILY_QUOTA") {
		t.Errorf("expected LIMITS_DAILY_QUOTA error in: %v", err)
	}
	if !strings.Contains(err.Error(), "per-minute") {
		t.Errorf("expected per-minute error in: %v", err)
	}
}

func TestValidate_NATSOptional(t *testing.T) {
	cfg := validConfig()
	cfg.NATS.URL = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected NATS to be optional, got: %v", err)
	}
}

func TestValidate_InvalidPorts(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.DB.Port = 99999
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected port validation errors")
	}
	if !strings.Contains(err.Error(), "SERVER_PORT") {
		t.Errorf("expected SERVER_PORT error in: %v", err)
	}
	if !strings.Contains(err.Error(), "DB_PORT") {
		t.Errorf("expected DB_PORT error in: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{Port: 0},
		DB:     DBConfig{Port: 5432},
		Redis:  RedisConfig{Port: 6379},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected multiple validation errors")
	}
	errStr := err.Error()
	for _, substr := range []string{"JWT_ACCESS_SECRET", "JWT_REFRESH_SECRET", "DB_PASSWORD", "SERVER_PORT", "OPENAI_API_KEY", "S3_BUCKET"} {
		if !strings.Contains(errStr, substr) {
			t.Errorf("expected %q in error: %s", substr, errStr)
		}
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" https://a.example , ,https://b.example")
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("unexpected split result: %#v", got)
	}
	if splitList("") != nil {
		t.Fatal("expected nil for empty input")
	}
}
