// Package policy evaluates deployment policies written in Rego against the configuration
// snapshot before the first step runs.
//
// # Usage
//
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//	result, err := eng.Evaluate(ctx, snapshot, "deploy")
//	if err != nil {
//	    return err
//	}
//	for _, w := range result.Warnings {
//	    logger.Warn().Str("policy", w.Policy).Msg(w.Message)
//	}
//	if err := result.Err(); err != nil {
//	    return err // PrerequisiteMissing, code POLICY_DENIED
//	}
//
// # Built-in Policies
//
//  1. app-naming - app_name is a lowercase identifier that is not a stock nginx site
//  2. install-dir - install_dir is absolute and not a system directory
//  3. repository-url - repo_url is an SSH URL (warning)
//  4. port-range - port is 1-65535, warns below 1024, rejects 80 when nginx is managed
//  5. frontend-mode - api-only with customised frontend settings (warning)
//
// # Custom Policies
//
// Operators can add policies with --policy. Each file's package must define a deny set;
// members are strings or objects with message, severity and parameter fields:
//
//	package site.deploy.branches
//
//	import rego.v1
//
//	deny contains violation if {
//	    input.config.branch != "main"
//	    violation := {
//	        "message": "only main is deployed to this host",
//	        "severity": "error",
//	        "parameter": "branch",
//	    }
//	}
//
// The input document has three fields: config (the snapshot), defaults (the built-in
// default of every parameter) and operation ("deploy" or "validate").
//
// # Severity Levels
//
// error and critical block the run with a PrerequisiteMissing error. info and warning are
// reported and the run continues. A policy that fails to evaluate is reported and ignored.
package policy
