// Package gpg provides GPG signature verification capabilities.
package gpg

import (
	"fmt"
	"os"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// Verifier implements detached-signature verification for downloaded support
// libraries using ProtonMail's go-crypto, a maintained fork of
// golang.org/x/crypto/openpgp. This is in external-adapters to isolate the
// external dependency.
type Verifier struct {
	keyring openpgp.EntityList
}

// NewVerifier creates a new GPG verifier with an empty keyring
//
//nolint:revive // unexported-return: Intentionally returns concrete type for testability
func NewVerifier() *Verifier {
	return &Verifier{keyring: make(openpgp.EntityList, 0)}
}

// ImportKeysFromFile imports armored public keys from a local keys file.
func (v *Verifier) ImportKeysFromFile(path string) error {
	f, err := os.Open(path) //nolint:gosec // G304: keys file path is user-provided
	if err != nil {
		return fmt.Errorf("failed to open keys file: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer f.Close()

	keys, err := openpgp.ReadArmoredKeyRing(f)
	if err != nil {
		return fmt.Errorf("failed to parse keys file: %w", err)
	}
	v.keyring = append(v.keyring, keys...)
	return nil
}

// ImportArmoredKey imports a single armored public key block.
func (v *Verifier) ImportArmoredKey(armored string) error {
	keys, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armored))
	if err != nil {
		return fmt.Errorf("failed to parse armored key: %w", err)
	}
	v.keyring = append(v.keyring, keys...)
	return nil
}

// KeyCount returns the number of keys in the keyring.
func (v *Verifier) KeyCount() int {
	return len(v.keyring)
}

// VerifyDetached verifies filePath against the detached signature at sigPath.
func (v *Verifier) VerifyDetached(filePath, sigPath string) error {
	if len(v.keyring) == 0 {
		return fmt.Errorf("no GPG keys imported")
	}

	file, err := os.Open(filePath) //nolint:gosec // G304: file path comes from the locator
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer file.Close()

	sig, err := os.Open(sigPath) //nolint:gosec // G304: signature path derives from the file path
	if err != nil {
		return fmt.Errorf("failed to open signature: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer sig.Close()

	if _, err := openpgp.CheckArmoredDetachedSignature(v.keyring, file, sig, nil); err == nil {
		return nil
	}
	// Retry as a binary (non-armored) signature.
	if _, serr := file.Seek(0, 0); serr != nil {
		return fmt.Errorf("failed to rewind file: %w", serr)
	}
	if _, serr := sig.Seek(0, 0); serr != nil {
		return fmt.Errorf("failed to rewind signature: %w", serr)
	}
	if _, err := openpgp.CheckDetachedSignature(v.keyring, file, sig, nil); err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}
