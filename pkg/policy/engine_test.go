package policy

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfroyo/froyo-deploy/pkg/config"
	"github.com/openfroyo/froyo-deploy/pkg/engine"
)

func testSnapshot(t *testing.T, overrides map[string]string) *config.Snapshot {
	t.Helper()
	values := map[string]string{
		config.ParamRepoURL: "git@github.com:acme/shop.git",
	}
	for k, v := range overrides {
		values[k] = v
	}
	s, err := config.FromValues(values, t.TempDir())
	if err != nil {
		t.Fatalf("failed to build snapshot: %v", err)
	}
	return s
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func TestNewEngine(t *testing.T) {
	eng := newTestEngine(t)

	expected := []string{"app-naming", "frontend-mode", "install-dir", "port-range", "repository-url"}
	policies := eng.ListPolicies()
	if len(policies) != len(expected) {
		t.Fatalf("expected %d built-in policies, got %d", len(expected), len(policies))
	}
	for i, p := range policies {
		if p.Name != expected[i] {
			t.Errorf("policy %d: expected %s, got %s", i, expected[i], p.Name)
		}
	}
}

func TestEvaluate(t *testing.T) {
	eng := newTestEngine(t)

	tests := []struct {
		name          string
		values        engine.MapConfiguration
		expectAllowed bool
		violations    []string
		warnings      []string
	}{
		{
			name: "defaults are clean",
			values: engine.MapConfiguration{
				"app_name": "shop", "install_dir": "/var/www", "repo_url": "git@github.com:acme/shop.git",
				"port": "5000", "mode": "auto", "configure_proxy": "true",
				"frontend_dir": "frontend", "frontend_build_dir": "dist",
			},
			expectAllowed: true,
		},
		{
			name: "uppercase app name",
			values: engine.MapConfiguration{
				"app_name": "Shop", "install_dir": "/var/www", "repo_url": "git@github.com:acme/shop.git", "port": "5000",
			},
			violations: []string{"app-naming"},
		},
		{
			name: "stock site name",
			values: engine.MapConfiguration{
				"app_name": "default", "install_dir": "/var/www", "repo_url": "git@github.com:acme/shop.git", "port": "5000",
			},
			violations: []string{"app-naming"},
		},
		{
			name: "relative install dir",
			values: engine.MapConfiguration{
				"app_name": "shop", "install_dir": "www", "repo_url": "git@github.com:acme/shop.git", "port": "5000",
			},
			violations: []string{"install-dir"},
		},
		{
			name: "system install dir",
			values: engine.MapConfiguration{
				"app_name": "shop", "install_dir": "/etc/", "repo_url": "git@github.com:acme/shop.git", "port": "5000",
			},
			violations: []string{"install-dir"},
		},
		{
			name: "https repository warns",
			values: engine.MapConfiguration{
				"app_name": "shop", "install_dir": "/var/www", "repo_url": "https://github.com/acme/shop.git", "port": "5000",
			},
			expectAllowed: true,
			warnings:      []string{"repository-url"},
		},
		{
			name: "port out of range",
			values: engine.MapConfiguration{
				"app_name": "shop", "install_dir": "/var/www", "repo_url": "git@github.com:acme/shop.git", "port": "70000",
			},
			violations: []string{"port-range"},
		},
		{
			name: "privileged port warns",
			values: engine.MapConfiguration{
				"app_name": "shop", "install_dir": "/var/www", "repo_url": "git@github.com:acme/shop.git", "port": "443",
			},
			expectAllowed: true,
			warnings:      []string{"port-range"},
		},
		{
			name: "port 80 behind nginx",
			values: engine.MapConfiguration{
				"app_name": "shop", "install_dir": "/var/www", "repo_url": "git@github.com:acme/shop.git",
				"port": "80", "configure_proxy": "true",
			},
			violations: []string{"port-range"},
			warnings:   []string{"port-range"},
		},
		{
			name: "api-only with custom frontend dir",
			values: engine.MapConfiguration{
				"app_name": "shop", "install_dir": "/var/www", "repo_url": "git@github.com:acme/shop.git", "port": "5000",
				"mode": "api-only", "frontend_dir": "client", "frontend_build_dir": "dist",
			},
			expectAllowed: true,
			warnings:      []string{"frontend-mode"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := eng.Evaluate(context.Background(), tt.values, "validate")
			if err != nil {
				t.Fatalf("Evaluate failed: %v", err)
			}
			if len(result.Failures) > 0 {
				t.Fatalf("unexpected evaluation failures: %v", result.Failures)
			}
			if result.Allowed != (len(tt.violations) == 0) {
				t.Errorf("expected allowed=%v, got %v (%+v)", len(tt.violations) == 0, result.Allowed, result.Violations)
			}
			if tt.expectAllowed && !result.Allowed {
				t.Errorf("expected run to be allowed: %+v", result.Violations)
			}
			assertPolicies(t, "violation", tt.violations, result.Violations)
			assertPolicies(t, "warning", tt.warnings, result.Warnings)
		})
	}
}

func assertPolicies(t *testing.T, kind string, want []string, got []Violation) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d %ss, got %d: %+v", len(want), kind, len(got), got)
	}
	for i, v := range got {
		if v.Policy != want[i] {
			t.Errorf("%s %d: expected policy %s, got %s", kind, i, want[i], v.Policy)
		}
		if v.Message == "" {
			t.Errorf("%s %d has no message", kind, i)
		}
	}
}

func TestEvaluateSnapshot(t *testing.T) {
	eng := newTestEngine(t)

	result, err := eng.Evaluate(context.Background(), testSnapshot(t, nil), "deploy")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !result.Allowed || len(result.Warnings) != 0 {
		t.Fatalf("expected default snapshot to pass cleanly, got %+v", result)
	}
	if err := result.Err(); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestResultErr(t *testing.T) {
	eng := newTestEngine(t)

	result, err := eng.Evaluate(context.Background(), testSnapshot(t, map[string]string{config.ParamPort: "0"}), "deploy")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	denied := result.Err()
	if denied == nil {
		t.Fatal("expected a policy error")
	}
	if !engine.IsPrerequisiteMissing(denied) {
		t.Errorf("expected PrerequisiteMissing, got %v", denied)
	}
}

func TestDisablePolicy(t *testing.T) {
	eng := newTestEngine(t)
	if err := eng.DisablePolicy("port-range"); err != nil {
		t.Fatalf("DisablePolicy failed: %v", err)
	}

	result, err := eng.Evaluate(context.Background(), engine.MapConfiguration{
		"app_name": "shop", "install_dir": "/var/www", "repo_url": "git@github.com:acme/shop.git", "port": "0",
	}, "validate")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("expected disabled policy to be skipped: %+v", result.Violations)
	}
	for _, name := range result.EvaluatedPolicies {
		if name == "port-range" {
			t.Error("disabled policy was evaluated")
		}
	}

	if err := eng.DisablePolicy("missing"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
