package infra

import (
	"strings"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("SESSION_SECRET", "test-secret")
	t.Setenv("RUNNER_BASE_URL", "https://runner.example.com")
	t.Setenv("RUNNER_SHARED_TOKEN", "runner-token")
	t.Setenv("FILE_PROXY_SECRET", "proxy-secret")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "")
	t.Setenv("UPLOAD_DIR", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.UploadDir != "uploads" {
		t.Fatalf("UploadDir = %q, want uploads", cfg.UploadDir)
	}
	if cfg.AppBaseURL != "http://localhost:8080" {
		t.Fatalf("AppBaseURL = %q", cfg.AppBaseURL)
	}
}

func TestLoadConfigRequiredVars(t *testing.T) {
	for _, missing := range []string{
		"DATABASE_URL",
		"SESSION_SECRET",
		"RUNNER_BASE_URL",
		"RUNNER_SHARED_TOKEN",
		"FILE_PROXY_SECRET",
	} {
		t.Run(missing, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(missing, "")
			if missing == "RUNNER_SHARED_TOKEN" {
				t.Setenv("RUNNER_TOKEN", "")
			}
			_, err := LoadConfig()
			if err == nil {
				t.Fatalf("LoadConfig succeeded without %s", missing)
			}
			if !strings.Contains(err.Error(), missing) {
				t.Fatalf("error %q does not name %s", err, missing)
			}
		})
	}
}

func TestLoadConfigLegacyRunnerTokenVar(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RUNNER_SHARED_TOKEN", "")
	t.Setenv("RUNNER_TOKEN", "legacy-token")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.RunnerToken != "legacy-token" {
		t.Fatalf("RunnerToken = %q, want legacy-token", cfg.RunnerToken)
	}
}
