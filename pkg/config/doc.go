// Package config builds the immutable configuration snapshot a deployment runs against.
//
// # Overview
//
// Parameters are gathered once, before the first step, from four layers. Later layers win:
//
//  1. Built-in defaults (see Parameters)
//  2. A configuration file, YAML or CUE, validated against the built-in CUE schema
//  3. DEPLOY_* environment variables (DEPLOY_REPO_URL, DEPLOY_PORT, ...)
//  4. Explicit overrides and operator prompts
//
// Parameters that are still unset after the explicit layers are derived where possible:
// app_name and git_host come from repo_url, deploy_key from the home directory and app_name.
// The merged set is validated with go-playground/validator and frozen into a Snapshot.
//
// # Usage Example
//
//	loader := config.NewLoader(
//	    config.WithFile("deploy.yaml"),
//	    config.WithPrompter(terminal),
//	)
//	snap, err := loader.Load(ctx)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(snap.AppDir(), snap.Port())
//
// # File Format
//
// Files use the parameter names as top-level keys:
//
//	repo_url: git@github.com:acme/shop.git
//	mode: auto
//	domain: shop.example.com
//	port: 5000
//	packages: [curl, git, ca-certificates, build-essential]
//
// The same keys are valid CUE:
//
//	repo_url: "git@github.com:acme/shop.git"
//	port:     5000
//
// Unknown keys and ill-typed values are rejected with file and line information.
package config
