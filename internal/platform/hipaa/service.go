package hipaa

import (
	"fmt"

	"github.com/rs/zerolog"
)

// EncryptionService provides field-level encryption for the application.
// It wraps a FieldEncryptor and adds a disabled mode for development
// environments where no encryption key is configured.
type EncryptionService struct {
	encryptor FieldEncryptor
	enabled   bool
}

// NewEncryptionService creates a new encryption service.
//
// If key is empty, encryption is disabled (development mode) and a warning is
// logged. All Encrypt/Decrypt calls become no-ops that return the value as-is.
//
// Otherwise the 32-byte key becomes the current key of a RotatingCipher at
// keyVersion; previousKeys (version -> raw key) stay available for decryption
// of data written before a rotation.
func NewEncryptionService(key []byte, keyVersion int, previousKeys map[int][]byte, logger zerolog.Logger) (*EncryptionService, error) {
	if len(key) == 0 {
		logger.Warn().Msg("field encryption disabled: ENCRYPTION_KEY is not set")
		return &EncryptionService{
			encryptor: nil,
			enabled:   false,
		}, nil
	}

	enc, err := NewRotatingCipher(key, keyVersion)
	if err != nil {
		return nil, fmt.Errorf("create field cipher: %w", err)
	}
	for ver, prev := range previousKeys {
		if err := enc.AddPreviousKey(prev, ver); err != nil {
			return nil, fmt.Errorf("add previous key v%d: %w", ver, err)
		}
	}

	logger.Info().Int("key_version", keyVersion).Msg("field-level encryption enabled")
	return &EncryptionService{
		encryptor: enc,
		enabled:   true,
	}, nil
}

// Encryptor returns the underlying FieldEncryptor, or nil if encryption is
// disabled.
func (s *EncryptionService) Encryptor() FieldEncryptor {
	return s.encryptor
}

// IsEnabled returns true if encryption is active.
func (s *EncryptionService) IsEnabled() bool {
	return s.enabled
}

// EncryptField encrypts a single sensitive field value. Returns the original
// value unchanged if encryption is disabled.
func (s *EncryptionService) EncryptField(value string) (string, error) {
	if !s.enabled {
		return value, nil
	}
	return s.encryptor.Encrypt(value)
}

// DecryptField decrypts a single sensitive field value. Returns the original
// value unchanged if encryption is disabled.
func (s *EncryptionService) DecryptField(value string) (string, error) {
	if !s.enabled {
		return value, nil
	}
	return s.encryptor.Decrypt(value)
}

// EncryptFields returns a copy of record with each named field encrypted.
// Only keys that are present with a non-empty string value are touched;
// everything else passes through unchanged. A named field holding a non-string
// value is an error: sensitive fields are string-typed by contract.
func (s *EncryptionService) EncryptFields(record map[string]any, fieldNames []string) (map[string]any, error) {
	return s.applyToFields(record, fieldNames, s.EncryptField)
}

// DecryptFields returns a copy of record with each named field decrypted.
// The same presence rules as EncryptFields apply. A value that does not
// decrypt fails with ErrDecryption; it is never passed through as-is.
func (s *EncryptionService) DecryptFields(record map[string]any, fieldNames []string) (map[string]any, error) {
	return s.applyToFields(record, fieldNames, s.DecryptField)
}

func (s *EncryptionService) applyToFields(record map[string]any, fieldNames []string, op func(string) (string, error)) (map[string]any, error) {
	out := make(map[string]any, len(record))
	for k, v := range record {
		out[k] = v
	}

	for _, name := range fieldNames {
		v, ok := out[name]
		if !ok || v == nil {
			continue
		}
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("sensitive field %q is %T, want string", name, v)
		}
		if str == "" {
			continue
		}
		transformed, err := op(str)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		out[name] = transformed
	}
	return out, nil
}
