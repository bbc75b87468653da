package config

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"
)

// ErrPassphraseRequired is returned for an encrypted SSH key when no
// passphrase was supplied (see CHATDESK_SSH_PASSPHRASE).
var ErrPassphraseRequired = errors.New("SSH key is encrypted - passphrase required")

// loadSigner parses the private key at keyPath, using passphrase only when
// the key turns out to be encrypted.
func loadSigner(keyPath, passphrase string) (ssh.Signer, error) {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read SSH key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(keyData)
	if err == nil {
		return signer, nil
	}

	var missing *ssh.PassphraseMissingError
	if !errors.As(err, &missing) {
		return nil, fmt.Errorf("invalid SSH key: %w", err)
	}
	if passphrase == "" {
		return nil, ErrPassphraseRequired
	}

	signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(passphrase))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SSH key (wrong passphrase?): %w", err)
	}
	return signer, nil
}
