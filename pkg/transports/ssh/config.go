package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Config holds SSH connection configuration for probing a git host.
type Config struct {
	// Host is the git host name or IP address
	Host string

	// Port is the SSH port (default: 22)
	Port int

	// User is the SSH username, "git" for the common hosting services
	User string

	// PrivateKeyPath is the path to the deploy key
	PrivateKeyPath string

	// KnownHostsPath is the path to the known_hosts file
	KnownHostsPath string

	// StrictHostKeyChecking rejects hosts missing from known_hosts.
	// When false, unknown hosts are accepted but changed keys are still rejected.
	StrictHostKeyChecking bool

	// ConnectionTimeout bounds the dial and the handshake
	ConnectionTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(host string, keyPath string) *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Host:              host,
		Port:              22,
		User:              "git",
		PrivateKeyPath:    keyPath,
		KnownHostsPath:    filepath.Join(home, ".ssh", "known_hosts"),
		ConnectionTimeout: 10 * time.Second,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	if c.User == "" {
		return fmt.Errorf("user is required")
	}

	if c.PrivateKeyPath == "" {
		return fmt.Errorf("private key path is required")
	}
	if _, err := os.Stat(c.PrivateKeyPath); os.IsNotExist(err) {
		return fmt.Errorf("private key file not found: %s", c.PrivateKeyPath)
	}

	if c.ConnectionTimeout <= 0 {
		return fmt.Errorf("connection timeout must be positive")
	}

	return nil
}

// BuildSSHClientConfig creates an ssh.ClientConfig from the Config.
func (c *Config) BuildSSHClientConfig() (*ssh.ClientConfig, error) {
	keyBytes, err := os.ReadFile(c.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	hostKeyCallback, err := c.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.ConnectionTimeout,
	}, nil
}

// hostKeyCallback checks known_hosts. A mismatching key is always rejected; an unknown host is
// rejected only under strict checking.
func (c *Config) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if c.KnownHostsPath == "" {
		if c.StrictHostKeyChecking {
			return nil, fmt.Errorf("strict host key checking requires a known_hosts file")
		}
		return ssh.InsecureIgnoreHostKey(), nil
	}

	if _, err := os.Stat(c.KnownHostsPath); os.IsNotExist(err) {
		if c.StrictHostKeyChecking {
			return nil, fmt.Errorf("known_hosts file not found: %s", c.KnownHostsPath)
		}
		return ssh.InsecureIgnoreHostKey(), nil
	}

	check, err := knownhosts.New(c.KnownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts: %w", err)
	}

	strict := c.StrictHostKeyChecking
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := check(hostname, remote, key)
		var keyErr *knownhosts.KeyError
		if errors.As(err, &keyErr) && len(keyErr.Want) == 0 && !strict {
			return nil
		}
		return err
	}, nil
}

// Address returns the formatted SSH address (host:port).
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
