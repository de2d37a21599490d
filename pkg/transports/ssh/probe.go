package ssh

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// ProbeResult describes a completed SSH handshake with the git host.
type ProbeResult struct {
	// Address is the host:port that was dialled.
	Address string `json:"address"`

	// ServerVersion is the server's identification string.
	ServerVersion string `json:"server_version"`

	// HostKeyFingerprint is the SHA256 fingerprint of the server's host key.
	HostKeyFingerprint string `json:"host_key_fingerprint"`

	// Duration is the time taken to authenticate.
	Duration time.Duration `json:"duration"`
}

// Probe dials the host and authenticates with the deploy key, then disconnects. Success means
// the git host accepts the key; it says nothing about repository permissions.
func Probe(ctx context.Context, cfg *Config) (*ProbeResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &TransportError{Op: "probe", Err: err}
	}

	clientConfig, err := cfg.BuildSSHClientConfig()
	if err != nil {
		return nil, &TransportError{Op: "probe", Err: err}
	}

	var fingerprint string
	check := clientConfig.HostKeyCallback
	clientConfig.HostKeyCallback = func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		fingerprint = ssh.FingerprintSHA256(key)
		return check(hostname, remote, key)
	}

	start := time.Now()
	address := cfg.Address()

	dialer := &net.Dialer{Timeout: cfg.ConnectionTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err, IsTemporary: true}
	}
	if err := conn.SetDeadline(time.Now().Add(cfg.ConnectionTimeout)); err != nil {
		conn.Close()
		return nil, &TransportError{Op: "dial", Err: err}
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, clientConfig)
	if err != nil {
		conn.Close()
		return nil, &TransportError{
			Op:          "handshake",
			Err:         fmt.Errorf("%s: %w", address, err),
			IsAuthError: isAuthError(err),
		}
	}

	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	return &ProbeResult{
		Address:            address,
		ServerVersion:      string(sshConn.ServerVersion()),
		HostKeyFingerprint: fingerprint,
		Duration:           time.Since(start),
	}, nil
}

func isAuthError(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}
