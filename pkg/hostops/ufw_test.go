package hostops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/froyo-deploy/pkg/engine"
)

func TestUFW_AllowAndEnable(t *testing.T) {
	f := newFakeRunner()
	u := NewUFW(f)

	require.NoError(t, u.Allow(context.Background(), RuleOpenSSH))
	require.NoError(t, u.Allow(context.Background(), RuleNginxFull))
	require.NoError(t, u.Enable(context.Background()))

	assert.Equal(t, []string{"ufw allow OpenSSH", "ufw allow Nginx Full", "ufw --force enable"}, f.lines())
	assert.Equal(t, []string{"allow", "Nginx Full"}, f.calls[1].Args)
}

func TestUFW_Status(t *testing.T) {
	f := newFakeRunner()
	f.on("ufw status", CommandResult{Stdout: "Status: active\n\nTo  Action  From\n"})

	status, err := NewUFW(f).Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Status: active\n\nTo  Action  From", status)
}

func TestUFW_StatusFailure(t *testing.T) {
	f := newFakeRunner()
	f.on("ufw status", CommandResult{ExitCode: 1, Stderr: "ERROR: problem running iptables"})

	_, err := NewUFW(f).Status(context.Background())
	require.Error(t, err)
	assert.Equal(t, engine.ErrorClassCollaboratorFailure, engine.ClassOf(err))
}

func TestFirewallActive(t *testing.T) {
	tests := []struct {
		name   string
		status string
		want   bool
	}{
		{"active", "Status: active\nLogging: on (low)\nDefault: deny (incoming)", true},
		{"inactive", "Status: inactive", false},
		{"empty", "", false},
		{"not a status line", "ERROR: You need to be root to run this script", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FirewallActive(tt.status); got != tt.want {
				t.Errorf("FirewallActive(%q) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}
