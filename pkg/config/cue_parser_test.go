package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestCUEParser_ParseFile(t *testing.T) {
	parser := NewCUEParser()

	tests := []struct {
		name      string
		file      string
		content   string
		wantErr   bool
		checkFunc func(*testing.T, *FileValues)
	}{
		{
			name: "valid yaml",
			file: "deploy.yaml",
			content: `
repo_url: git@github.com:acme/shop.git
port: 8080
configure_proxy: false
packages: [curl, git]
`,
			checkFunc: func(t *testing.T, fv *FileValues) {
				want := map[string]string{
					"repo_url":        "git@github.com:acme/shop.git",
					"port":            "8080",
					"configure_proxy": "false",
					"packages":        "curl,git",
				}
				for k, v := range want {
					if fv.Values[k] != v {
						t.Errorf("expected %s=%q, got %q", k, v, fv.Values[k])
					}
				}
			},
		},
		{
			name: "valid cue",
			file: "deploy.cue",
			content: `
repo_url: "ssh://git@git.example.com:2222/acme/shop.git"
mode:     "frontend-enabled"
port:     3000
`,
			checkFunc: func(t *testing.T, fv *FileValues) {
				if fv.Values["mode"] != "frontend-enabled" {
					t.Errorf("unexpected mode %q", fv.Values["mode"])
				}
				if fv.Values["port"] != "3000" {
					t.Errorf("unexpected port %q", fv.Values["port"])
				}
			},
		},
		{
			name:    "unknown key",
			file:    "deploy.yaml",
			content: "repo_url: git@github.com:acme/shop.git\nreplicas: 3\n",
			wantErr: true,
		},
		{
			name:    "port out of range",
			file:    "deploy.yaml",
			content: "port: 70000\n",
			wantErr: true,
		},
		{
			name:    "invalid mode",
			file:    "deploy.cue",
			content: `mode: "mern"`,
			wantErr: true,
		},
		{
			name:    "invalid cue syntax",
			file:    "deploy.cue",
			content: `port: {`,
			wantErr: true,
		},
		{
			name:    "unsupported extension",
			file:    "deploy.toml",
			content: `port = 1`,
			wantErr: true,
		},
		{
			name:    "empty yaml",
			file:    "deploy.yml",
			content: "",
			checkFunc: func(t *testing.T, fv *FileValues) {
				if len(fv.Values) != 0 {
					t.Errorf("expected no values, got %v", fv.Values)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			fv, err := parser.ParseFile(path)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got values %v", fv.Values)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.checkFunc != nil {
				tt.checkFunc(t, fv)
			}
		})
	}
}

func TestCUEParser_ErrorLocations(t *testing.T) {
	parser := NewCUEParser()
	path := writeFile(t, "deploy.cue", "repo_url: \"git@github.com:acme/shop.git\"\nport: \"http\"\n")

	_, err := parser.ParseFile(path)
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	if len(verrs) == 0 {
		t.Fatal("expected at least one validation error")
	}
	found := false
	for _, ve := range verrs {
		if ve.Line > 0 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a line number in %v", verrs)
	}
}

func TestCUEParser_ParseInline(t *testing.T) {
	parser := NewCUEParser()

	fv, err := parser.ParseInline(`branch: "release"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fv.Values["branch"] != "release" {
		t.Errorf("expected branch release, got %q", fv.Values["branch"])
	}
}
