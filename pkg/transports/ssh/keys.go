package ssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

// DeployKey is an SSH keypair registered with the git host as a read-only deploy key.
type DeployKey struct {
	// PrivateKeyPath is the OpenSSH private key file.
	PrivateKeyPath string `json:"private_key_path"`

	// PublicKeyPath is the authorized_keys-format public key file.
	PublicKeyPath string `json:"public_key_path"`

	// PublicKey is the authorized_keys line to paste into the git host.
	PublicKey string `json:"public_key"`

	// Fingerprint is the SHA256 fingerprint of the public key.
	Fingerprint string `json:"fingerprint"`

	// Created reports whether the key was generated by this call.
	Created bool `json:"created"`
}

// DeployKeyExists reports whether a private key exists at path.
func DeployKeyExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// EnsureDeployKey loads the ed25519 keypair at path or generates one.
func EnsureDeployKey(path, comment string) (*DeployKey, error) {
	publicKeyPath := path + ".pub"

	if keyBytes, err := os.ReadFile(path); err == nil {
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, &TransportError{Op: "load deploy key", Err: fmt.Errorf("failed to parse %s: %w", path, err)}
		}
		pub := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(signer.PublicKey())))
		if comment != "" {
			pub += " " + comment
		}

		// Recreate a missing public half from the private key.
		if _, err := os.Stat(publicKeyPath); os.IsNotExist(err) {
			if err := os.WriteFile(publicKeyPath, []byte(pub+"\n"), 0o644); err != nil {
				return nil, &TransportError{Op: "load deploy key", Err: fmt.Errorf("failed to write public key: %w", err)}
			}
		} else if b, err := os.ReadFile(publicKeyPath); err == nil {
			pub = strings.TrimSpace(string(b))
		}

		return &DeployKey{
			PrivateKeyPath: path,
			PublicKeyPath:  publicKeyPath,
			PublicKey:      pub,
			Fingerprint:    ssh.FingerprintSHA256(signer.PublicKey()),
		}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, &TransportError{Op: "keygen", Err: fmt.Errorf("failed to create key directory: %w", err)}
	}

	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, &TransportError{Op: "keygen", Err: fmt.Errorf("failed to generate keypair: %w", err)}
	}

	privBlock, err := ssh.MarshalPrivateKey(privKey, comment)
	if err != nil {
		return nil, &TransportError{Op: "keygen", Err: fmt.Errorf("failed to marshal private key: %w", err)}
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(privBlock), 0o600); err != nil {
		return nil, &TransportError{Op: "keygen", Err: fmt.Errorf("failed to write private key: %w", err)}
	}

	sshPub, err := ssh.NewPublicKey(pubKey)
	if err != nil {
		return nil, &TransportError{Op: "keygen", Err: fmt.Errorf("failed to create public key: %w", err)}
	}
	pub := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub)))
	if comment != "" {
		pub += " " + comment
	}
	if err := os.WriteFile(publicKeyPath, []byte(pub+"\n"), 0o644); err != nil {
		return nil, &TransportError{Op: "keygen", Err: fmt.Errorf("failed to write public key: %w", err)}
	}

	return &DeployKey{
		PrivateKeyPath: path,
		PublicKeyPath:  publicKeyPath,
		PublicKey:      pub,
		Fingerprint:    ssh.FingerprintSHA256(sshPub),
		Created:        true,
	}, nil
}
