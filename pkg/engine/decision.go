package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Mode is the declared frontend mode of a deployment.
type Mode string

const (
	// ModeAuto enables the frontend branch only if a frontend is detected and the operator confirms.
	ModeAuto Mode = "auto"

	// ModeAPIOnly never serves a frontend.
	ModeAPIOnly Mode = "api-only"

	// ModeFrontendEnabled always builds and serves the frontend.
	ModeFrontendEnabled Mode = "frontend-enabled"
)

// Validate checks if the mode is valid.
func (m Mode) Validate() error {
	switch m {
	case ModeAuto, ModeAPIOnly, ModeFrontendEnabled:
		return nil
	default:
		return fmt.Errorf("invalid mode: %q (must be auto, api-only or frontend-enabled)", string(m))
	}
}

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if err := m.Validate(); err != nil {
		return "", err
	}
	return m, nil
}

// Branch is the runtime branch chosen for steps 8 and 9.
type Branch int

const (
	// BranchAPIOnly proxies every request to the backend.
	BranchAPIOnly Branch = iota

	// BranchFrontendEnabled serves built static assets and proxies /api to the backend.
	BranchFrontendEnabled
)

// String returns the branch name.
func (b Branch) String() string {
	switch b {
	case BranchAPIOnly:
		return "api-only"
	case BranchFrontendEnabled:
		return "frontend-enabled"
	default:
		return fmt.Sprintf("branch(%d)", int(b))
	}
}

// DecisionState is the cached result of the frontend decision for one run.
type DecisionState struct {
	// FrontendDetected reports whether a frontend manifest with a framework marker was found.
	FrontendDetected bool `json:"frontend_detected"`

	// MernEnabled reports whether the frontend branch is enabled.
	MernEnabled bool `json:"mern_enabled"`
}

// Branch returns the tagged branch for the decision.
func (d DecisionState) Branch() Branch {
	if d.MernEnabled {
		return BranchFrontendEnabled
	}
	return BranchAPIOnly
}

// ConfirmFunc asks the operator a single synchronous yes/no question.
type ConfirmFunc func() bool

// Resolve computes whether the frontend branch is enabled.
//
// frontend-enabled and api-only are unconditional and never invoke confirm.
// auto returns false when no frontend was detected, otherwise the operator's answer.
func Resolve(mode Mode, frontendDetected bool, confirm ConfirmFunc) bool {
	switch mode {
	case ModeFrontendEnabled:
		return true
	case ModeAPIOnly:
		return false
	default:
		if !frontendDetected {
			return false
		}
		if confirm == nil {
			return false
		}
		return confirm()
	}
}

// FrameworkMarkers are the dependency names that identify a buildable frontend.
var FrameworkMarkers = []string{
	"react",
	"react-dom",
	"react-scripts",
	"vue",
	"@angular/core",
	"svelte",
	"next",
	"nuxt",
	"vite",
	"preact",
	"solid-js",
}

// ManifestName is the frontend manifest file name.
const ManifestName = "package.json"

type packageManifest struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// DetectFrontend reports whether dir holds a manifest declaring a frontend framework.
// A missing manifest is a clean false. An unreadable or malformed manifest returns false
// together with an AmbiguousState error the caller may report as a warning.
func DetectFrontend(dir string) (bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, NewAmbiguousState("failed to read frontend manifest", err)
	}

	var manifest packageManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return false, NewAmbiguousState("failed to parse frontend manifest", err)
	}

	for _, marker := range FrameworkMarkers {
		if _, ok := manifest.Dependencies[marker]; ok {
			return true, nil
		}
		if _, ok := manifest.DevDependencies[marker]; ok {
			return true, nil
		}
	}
	return false, nil
}
