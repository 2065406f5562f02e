package chrome

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Chrome's fixed key-derivation parameters for the v10 scheme.
const (
	keySalt          = "saltysalt"
	keyLength        = 16
	macIterations    = 1003
	linuxIterations  = 1
	linuxPassphrase  = "peanuts"
	keychainService  = "Chrome Safe Storage"
	keychainAccount  = "Chrome"
	securityToolPath = "security"
)

// ErrKeyUnavailable is returned when no decryption key can be obtained on the
// running platform.
var ErrKeyUnavailable = errors.New("encryption key unavailable")

// KeyProvider returns the 16-byte AES key Chrome uses for saved passwords.
type KeyProvider interface {
	Key(ctx context.Context) ([]byte, error)
}

// KeyFunc adapts a function to KeyProvider.
type KeyFunc func(ctx context.Context) ([]byte, error)

// Key implements KeyProvider.
func (f KeyFunc) Key(ctx context.Context) ([]byte, error) {
	return f(ctx)
}

// DeriveKey turns a Safe Storage passphrase into an AES-128 key
// (PBKDF2-HMAC-SHA1, salt "saltysalt").
func DeriveKey(passphrase string, iterations int) []byte {
	return pbkdf2.Key([]byte(passphrase), []byte(keySalt), iterations, keyLength, sha1.New)
}

// DefaultKeyProvider picks the key source for the running OS.
func DefaultKeyProvider() KeyProvider {
	return keyProviderFor(runtime.GOOS)
}

func keyProviderFor(goos string) KeyProvider {
	switch goos {
	case "darwin":
		return &KeychainKeyProvider{}
	case "linux":
		return StaticKeyProvider{Passphrase: linuxPassphrase, Iterations: linuxIterations}
	default:
		// Windows wraps the key with DPAPI in Local State (os_crypt.encrypted_key).
		// No DPAPI binding is linked, so Windows passwords cannot be decrypted.
		return unsupportedKeyProvider{goos: goos}
	}
}

// StaticKeyProvider derives the key from a fixed passphrase. Chrome on Linux
// uses "peanuts" with a single iteration when no keyring is available.
type StaticKeyProvider struct {
	Passphrase string
	Iterations int
}

// Key implements KeyProvider.
func (p StaticKeyProvider) Key(context.Context) ([]byte, error) {
	iterations := p.Iterations
	if iterations <= 0 {
		iterations = linuxIterations
	}
	return DeriveKey(p.Passphrase, iterations), nil
}

// KeychainKeyProvider reads the "Chrome Safe Storage" password from the macOS
// keychain with the security CLI.
type KeychainKeyProvider struct {
	// Run executes the keychain query; nil uses the security binary.
	Run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Key implements KeyProvider.
func (p *KeychainKeyProvider) Key(ctx context.Context) ([]byte, error) {
	run := p.Run
	if run == nil {
		run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		}
	}

	out, err := run(ctx, securityToolPath, "find-generic-password", "-w", "-s", keychainService, "-a", keychainAccount)
	if err != nil {
		return nil, fmt.Errorf("keychain query failed: %w", err)
	}

	passphrase := strings.TrimSpace(string(out))
	if passphrase == "" {
		return nil, fmt.Errorf("keychain returned an empty %s password: %w", keychainService, ErrKeyUnavailable)
	}
	return DeriveKey(passphrase, macIterations), nil
}

type unsupportedKeyProvider struct {
	goos string
}

func (p unsupportedKeyProvider) Key(context.Context) ([]byte, error) {
	return nil, fmt.Errorf("password decryption is not supported on %s: %w", p.goos, ErrKeyUnavailable)
}
