package hipaa

import (
	"fmt"
	"strings"
	"sync"
)

// KeyVersion prefix format: "v{version}:" prepended to ciphertext
const keyVersionPrefix = "v"
const keyVersionSeparator = ":"

// RotatingCipher supports encryption key rotation with versioned ciphertext.
// New values are always encrypted under the current key; previous keys remain
// available for decryption until their data has been re-encrypted.
type RotatingCipher struct {
	mu         sync.RWMutex
	current    *FieldCipher
	currentVer int
	previous   map[int]*FieldCipher
}

// NewRotatingCipher creates a new rotating cipher with the current key.
func NewRotatingCipher(currentKey []byte, currentVersion int) (*RotatingCipher, error) {
	enc, err := NewFieldCipher(currentKey)
	if err != nil {
		return nil, fmt.Errorf("rotating cipher: current key: %w", err)
	}
	return &RotatingCipher{
		current:    enc,
		currentVer: currentVersion,
		previous:   make(map[int]*FieldCipher),
	}, nil
}

// AddPreviousKey adds a rotated-out encryption key for decryption only.
func (r *RotatingCipher) AddPreviousKey(key []byte, version int) error {
	enc, err := NewFieldCipher(key)
	if err != nil {
		return fmt.Errorf("rotating cipher: previous key v%d: %w", version, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.previous[version] = enc
	return nil
}

// Encrypt encrypts with the current key and prepends the version prefix.
func (r *RotatingCipher) Encrypt(plaintext string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ciphertext, err := r.current.Encrypt(plaintext)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%d%s%s", keyVersionPrefix, r.currentVer, keyVersionSeparator, ciphertext), nil
}

// Decrypt detects the key version and decrypts with the appropriate key.
// Unversioned input is tried against the current key (pre-rotation data).
func (r *RotatingCipher) Decrypt(ciphertext string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	version, data, err := parseVersionedCiphertext(ciphertext)
	if err != nil {
		return r.current.Decrypt(ciphertext)
	}

	if version == r.currentVer {
		return r.current.Decrypt(data)
	}

	enc, ok := r.previous[version]
	if !ok {
		return "", fmt.Errorf("%w: no key available for version %d", ErrDecryption, version)
	}
	return enc.Decrypt(data)
}

// NeedsReEncryption checks if a ciphertext uses an old key version.
func (r *RotatingCipher) NeedsReEncryption(ciphertext string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	version, _, err := parseVersionedCiphertext(ciphertext)
	if err != nil {
		return true
	}
	return version != r.currentVer
}

// ReEncrypt decrypts with the old key and re-encrypts with the current key.
func (r *RotatingCipher) ReEncrypt(ciphertext string) (string, error) {
	plaintext, err := r.Decrypt(ciphertext)
	if err != nil {
		return "", fmt.Errorf("re-encrypt: decrypt: %w", err)
	}
	return r.Encrypt(plaintext)
}

// CurrentVersion returns the current key version.
func (r *RotatingCipher) CurrentVersion() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentVer
}

func parseVersionedCiphertext(s string) (int, string, error) {
	if !strings.HasPrefix(s, keyVersionPrefix) {
		return 0, "", fmt.Errorf("no version prefix")
	}

	idx := strings.Index(s, keyVersionSeparator)
	if idx < 0 {
		return 0, "", fmt.Errorf("no version separator")
	}

	versionStr := s[len(keyVersionPrefix):idx]
	var version int
	_, err := fmt.Sscanf(versionStr, "%d", &version)
	if err != nil {
		return 0, "", fmt.Errorf("invalid version: %w", err)
	}

	return version, s[idx+1:], nil
}
