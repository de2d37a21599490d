package ssh

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// startGitHost runs an SSH server that accepts only the authorized key and refuses every channel.
func startGitHost(t *testing.T, authorized ssh.PublicKey) (string, int, ssh.PublicKey) {
	t.Helper()

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	if err != nil {
		t.Fatal(err)
	}

	cfg := &ssh.ServerConfig{
		PublicKeyCallback: func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), authorized.Marshal()) {
				return nil, nil
			}
			return nil, fmt.Errorf("key not registered")
		},
	}
	cfg.AddHostKey(hostSigner)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				sconn, chans, reqs, err := ssh.NewServerConn(c, cfg)
				if err != nil {
					c.Close()
					return
				}
				go ssh.DiscardRequests(reqs)
				for ch := range chans {
					_ = ch.Reject(ssh.Prohibited, "shell access is not provided")
				}
				sconn.Close()
			}(c)
		}
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return host, port, hostSigner.PublicKey()
}

func deployKey(t *testing.T) (*DeployKey, ssh.PublicKey) {
	t.Helper()
	key, err := EnsureDeployKey(filepath.Join(t.TempDir(), "deploy_key"), "")
	if err != nil {
		t.Fatal(err)
	}
	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(key.PublicKey))
	if err != nil {
		t.Fatal(err)
	}
	return key, pub
}

func TestProbe_Authenticates(t *testing.T) {
	key, pub := deployKey(t)
	host, port, hostKey := startGitHost(t, pub)

	cfg := DefaultConfig(host, key.PrivateKeyPath)
	cfg.Port = port
	cfg.KnownHostsPath = ""

	res, err := Probe(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.HostKeyFingerprint != ssh.FingerprintSHA256(hostKey) {
		t.Errorf("unexpected host key fingerprint %s", res.HostKeyFingerprint)
	}
	if res.ServerVersion == "" {
		t.Error("expected a server version")
	}
}

func TestProbe_RejectedKey(t *testing.T) {
	key, _ := deployKey(t)
	_, other := deployKey(t)
	host, port, _ := startGitHost(t, other)

	cfg := DefaultConfig(host, key.PrivateKeyPath)
	cfg.Port = port
	cfg.KnownHostsPath = ""

	_, err := Probe(context.Background(), cfg)
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if !te.IsAuthError {
		t.Errorf("expected an authentication error, got %v", err)
	}
	if IsTemporary(err) {
		t.Errorf("a rejected key is not temporary: %v", err)
	}
}

func TestProbe_KnownHosts(t *testing.T) {
	key, pub := deployKey(t)
	host, port, hostKey := startGitHost(t, pub)
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	knownHosts := filepath.Join(t.TempDir(), "known_hosts")

	t.Run("matching entry", func(t *testing.T) {
		line := knownhosts.Line([]string{knownhosts.Normalize(addr)}, hostKey) + "\n"
		if err := os.WriteFile(knownHosts, []byte(line), 0o644); err != nil {
			t.Fatal(err)
		}
		cfg := DefaultConfig(host, key.PrivateKeyPath)
		cfg.Port = port
		cfg.KnownHostsPath = knownHosts
		cfg.StrictHostKeyChecking = true

		if _, err := Probe(context.Background(), cfg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("changed key is rejected", func(t *testing.T) {
		_, wrong := deployKey(t)
		line := knownhosts.Line([]string{knownhosts.Normalize(addr)}, wrong) + "\n"
		if err := os.WriteFile(knownHosts, []byte(line), 0o644); err != nil {
			t.Fatal(err)
		}
		cfg := DefaultConfig(host, key.PrivateKeyPath)
		cfg.Port = port
		cfg.KnownHostsPath = knownHosts

		if _, err := Probe(context.Background(), cfg); err == nil {
			t.Fatal("expected a host key mismatch")
		}
	})

	t.Run("unknown host accepted without strict checking", func(t *testing.T) {
		if err := os.WriteFile(knownHosts, nil, 0o644); err != nil {
			t.Fatal(err)
		}
		cfg := DefaultConfig(host, key.PrivateKeyPath)
		cfg.Port = port
		cfg.KnownHostsPath = knownHosts

		if _, err := Probe(context.Background(), cfg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestProbe_Unreachable(t *testing.T) {
	key, _ := deployKey(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	ln.Close()
	port, _ := strconv.Atoi(portStr)

	cfg := DefaultConfig("127.0.0.1", key.PrivateKeyPath)
	cfg.Port = port
	cfg.KnownHostsPath = ""

	_, err = Probe(context.Background(), cfg)
	var te *TransportError
	if !errors.As(err, &te) || te.Op != "dial" {
		t.Fatalf("expected a dial error, got %v", err)
	}
	if !IsTemporary(err) {
		t.Errorf("expected an unreachable host to be temporary, got %v", err)
	}
}
