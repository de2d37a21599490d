package policy

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		appNamingPolicy(),
		installDirPolicy(),
		repositoryURLPolicy(),
		portRangePolicy(),
		frontendModePolicy(),
	}
}

// appNamingPolicy keeps app_name usable as a directory, a pm2 process name and an nginx site file.
func appNamingPolicy() Policy {
	return Policy{
		Name:        "app-naming",
		Description: "app_name must be a lowercase identifier usable as directory, process and site name",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"naming"},
		Rego: `package froyo.deploy.naming

import rego.v1

deny contains violation if {
	name := input.config.app_name
	not regex.match("^[a-z0-9][a-z0-9._-]*$", name)
	violation := {
		"message": sprintf("app_name '%s' must contain only lowercase letters, digits, '.', '_' and '-', starting with a letter or digit", [name]),
		"severity": "error",
		"parameter": "app_name",
	}
}

deny contains violation if {
	name := input.config.app_name
	count(name) > 63
	violation := {
		"message": sprintf("app_name '%s' must not exceed 63 characters", [name]),
		"severity": "error",
		"parameter": "app_name",
	}
}

deny contains violation if {
	name := input.config.app_name
	name in {"default", "nginx"}
	violation := {
		"message": sprintf("app_name '%s' clashes with a stock nginx site name", [name]),
		"severity": "error",
		"parameter": "app_name",
	}
}`,
	}
}

// installDirPolicy requires an absolute install directory outside system paths.
func installDirPolicy() Policy {
	return Policy{
		Name:        "install-dir",
		Description: "install_dir must be absolute and must not be a system directory",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"filesystem"},
		Rego: `package froyo.deploy.installdir

import rego.v1

deny contains violation if {
	dir := input.config.install_dir
	not startswith(dir, "/")
	violation := {
		"message": sprintf("install_dir '%s' must be an absolute path", [dir]),
		"severity": "error",
		"parameter": "install_dir",
	}
}

deny contains violation if {
	dir := trim_suffix(input.config.install_dir, "/")
	dir in {"", "/bin", "/boot", "/dev", "/etc", "/lib", "/proc", "/sbin", "/sys", "/usr"}
	violation := {
		"message": sprintf("install_dir '%s' is a system directory", [input.config.install_dir]),
		"severity": "error",
		"parameter": "install_dir",
	}
}`,
	}
}

// repositoryURLPolicy warns when the repository cannot be fetched with the deploy key.
func repositoryURLPolicy() Policy {
	return Policy{
		Name:        "repository-url",
		Description: "repo_url should be an SSH URL so the deploy key is used",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"source"},
		Rego: `package froyo.deploy.repository

import rego.v1

ssh_url(url) if regex.match("^[A-Za-z0-9._-]+@[A-Za-z0-9.-]+:.+$", url)

ssh_url(url) if startswith(url, "ssh://")

deny contains violation if {
	url := input.config.repo_url
	url != ""
	not ssh_url(url)
	violation := {
		"message": sprintf("repo_url '%s' is not an SSH URL; the deploy key will not be used and private repositories will fail to clone", [url]),
		"severity": "warning",
		"parameter": "repo_url",
	}
}`,
	}
}

// portRangePolicy checks the backend port.
func portRangePolicy() Policy {
	return Policy{
		Name:        "port-range",
		Description: "port must be 1-65535; privileged ports are discouraged",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"network"},
		Rego: `package froyo.deploy.port

import rego.v1

port := to_number(input.config.port)

deny contains violation if {
	not regex.match("^[0-9]+$", input.config.port)
	violation := {
		"message": sprintf("port '%s' is not a number", [input.config.port]),
		"severity": "error",
		"parameter": "port",
	}
}

out_of_range if port < 1

out_of_range if port > 65535

deny contains violation if {
	regex.match("^[0-9]+$", input.config.port)
	out_of_range
	violation := {
		"message": sprintf("port %d is outside 1-65535", [port]),
		"severity": "error",
		"parameter": "port",
	}
}

deny contains violation if {
	regex.match("^[0-9]+$", input.config.port)
	port >= 1
	port < 1024
	violation := {
		"message": sprintf("port %d is privileged; the backend would need to run as root", [port]),
		"severity": "warning",
		"parameter": "port",
	}
}

deny contains violation if {
	regex.match("^[0-9]+$", input.config.port)
	port == 80
	input.config.configure_proxy == "true"
	violation := {
		"message": "port 80 is taken by nginx when configure_proxy is true",
		"severity": "error",
		"parameter": "port",
	}
}`,
	}
}

// frontendModePolicy flags frontend settings that api-only mode ignores.
func frontendModePolicy() Policy {
	return Policy{
		Name:        "frontend-mode",
		Description: "warns when api-only mode is combined with frontend settings it ignores",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"frontend"},
		Rego: `package froyo.deploy.frontend

import rego.v1

deny contains violation if {
	input.config.mode == "api-only"
	some name in ["frontend_dir", "frontend_build_dir"]
	input.config[name] != input.defaults[name]
	violation := {
		"message": sprintf("%s is set but mode is api-only, so no frontend is built", [name]),
		"severity": "warning",
		"parameter": name,
	}
}`,
	}
}
