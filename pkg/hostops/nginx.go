package hostops

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/openfroyo/froyo-deploy/pkg/engine"
)

// Default nginx locations on Debian-family hosts.
const (
	DefaultSitesAvailable = "/etc/nginx/sites-available"
	DefaultSitesEnabled   = "/etc/nginx/sites-enabled"
)

// SiteConfig is the input of the site template.
type SiteConfig struct {
	// Name is the site file name.
	Name string

	// Domain is the server_name.
	Domain string

	// Port is the backend port.
	Port int

	// Branch selects the site shape.
	Branch engine.Branch

	// StaticRoot is the built frontend directory, used by the frontend-enabled shape.
	StaticRoot string

	// APIPrefix is the location proxied to the backend in the frontend-enabled shape.
	APIPrefix string
}

var siteTemplate = template.Must(template.New("site").Parse(`# Managed by froyo-deploy. Local edits are overwritten on the next run.
server {
    listen 80;
    listen [::]:80;
    server_name {{.Domain}};
{{if .Frontend}}
    root {{.StaticRoot}};
    index index.html;

    location {{.APIPrefix}}/ {
{{template "proxy" .}}
    }

    location / {
        try_files $uri $uri/ /index.html;
    }
{{else}}
    location / {
{{template "proxy" .}}
    }
{{end}}}
{{define "proxy"}}        proxy_pass http://127.0.0.1:{{.Port}};
        proxy_http_version 1.1;
        proxy_set_header Upgrade $http_upgrade;
        proxy_set_header Connection 'upgrade';
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
        proxy_cache_bypass $http_upgrade;{{end}}`))

// RenderSite renders the nginx site for the configured branch.
func RenderSite(cfg SiteConfig) ([]byte, error) {
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api"
	}
	if cfg.Branch == engine.BranchFrontendEnabled && cfg.StaticRoot == "" {
		return nil, engine.NewPrerequisiteMissing("frontend-enabled site needs a static root")
	}

	data := struct {
		SiteConfig
		Frontend bool
	}{SiteConfig: cfg, Frontend: cfg.Branch == engine.BranchFrontendEnabled}

	var buf bytes.Buffer
	if err := siteTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render site %s: %w", cfg.Name, err)
	}
	return buf.Bytes(), nil
}

// Nginx writes, validates and activates nginx sites.
type Nginx struct {
	runner    CommandRunner
	systemd   *Systemd
	available string
	enabled   string
}

// NginxOption configures Nginx.
type NginxOption func(*Nginx)

// WithSiteDirs overrides the sites-available and sites-enabled directories.
func WithSiteDirs(available, enabled string) NginxOption {
	return func(n *Nginx) {
		n.available = available
		n.enabled = enabled
	}
}

// NewNginx creates an nginx collaborator.
func NewNginx(runner CommandRunner, systemd *Systemd, opts ...NginxOption) *Nginx {
	n := &Nginx{runner: runner, systemd: systemd, available: DefaultSitesAvailable, enabled: DefaultSitesEnabled}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// SitePath returns the sites-available path of a site.
func (n *Nginx) SitePath(name string) string {
	return filepath.Join(n.available, name)
}

func (n *Nginx) exec(ctx context.Context, what string, name string, args ...string) error {
	_, err := run(ctx, n.runner, "nginx", what, Command{Name: name, Args: args, Privileged: true})
	return err
}

// Apply installs the site, validates the whole nginx configuration and reloads nginx.
// When validation fails the previous site file and links are put back and nginx is not reloaded.
func (n *Nginx) Apply(ctx context.Context, cfg SiteConfig) error {
	content, err := RenderSite(cfg)
	if err != nil {
		return err
	}

	site := n.SitePath(cfg.Name)
	backup := site + ".froyo-bak"
	link := filepath.Join(n.enabled, cfg.Name)
	defaultLink := filepath.Join(n.enabled, "default")

	hadSite, err := exists(site)
	if err != nil {
		return err
	}
	hadLink, _ := exists(link)
	hadDefault, _ := exists(defaultLink)

	tmp, err := os.CreateTemp("", "froyo-site-*")
	if err != nil {
		return fmt.Errorf("failed to stage site file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to stage site file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to stage site file: %w", err)
	}

	if hadSite {
		if err := n.exec(ctx, "back up "+site, "cp", "-p", site, backup); err != nil {
			return err
		}
	}
	if err := n.exec(ctx, "write "+site, "install", "-m", "0644", tmp.Name(), site); err != nil {
		return err
	}
	if err := n.exec(ctx, "enable "+cfg.Name, "ln", "-sfn", site, link); err != nil {
		return err
	}
	if hadDefault {
		if err := n.exec(ctx, "disable default site", "rm", "-f", defaultLink); err != nil {
			return err
		}
	}

	if _, verr := run(ctx, n.runner, "nginx", "validate configuration", Command{
		Name: "nginx", Args: []string{"-t"}, Privileged: true,
	}); verr != nil {
		n.restore(ctx, site, backup, link, defaultLink, hadSite, hadLink, hadDefault)
		return verr
	}

	if hadSite {
		_ = n.exec(ctx, "remove backup", "rm", "-f", backup)
	}
	return n.systemd.Reload(ctx, "nginx")
}

// restore puts back the pre-Apply state. Errors are ignored; the validation failure is reported.
func (n *Nginx) restore(ctx context.Context, site, backup, link, defaultLink string, hadSite, hadLink, hadDefault bool) {
	if hadSite {
		_ = n.exec(ctx, "restore "+site, "mv", "-f", backup, site)
	} else {
		_ = n.exec(ctx, "remove "+site, "rm", "-f", site)
	}
	if !hadLink {
		_ = n.exec(ctx, "remove "+link, "rm", "-f", link)
	}
	if hadDefault {
		_ = n.exec(ctx, "restore default site", "ln", "-sfn", filepath.Join(n.available, "default"), defaultLink)
	}
}
