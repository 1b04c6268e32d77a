package cloudvm_exchange

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters.
const (
	DefaultMemory      = 64 * 1024
	DefaultIterations  = 3
	DefaultParallelism = 2
	DefaultSaltLength  = 16
	DefaultKeyLength   = 32
)

var (
	ErrInvalidHash      = errors.New("invalid hash format")
	ErrIncompatibleHash = errors.New("incompatible hash version")
)

// PasswordHasher hashes passwords with Argon2id into the
// $argon2id$v=19$m=65536,t=3,p=2$<salt>$<hash> format.
type PasswordHasher struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	saltLength  uint32
	keyLength   uint32
}

func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{
		memory:      DefaultMemory,
		iterations:  DefaultIterations,
		parallelism: DefaultParallelism,
		saltLength:  DefaultSaltLength,
		keyLength:   DefaultKeyLength,
	}
}

// SetParams changes the cost parameters used for new hashes. Existing hashes keep
// verifying with the parameters encoded in them.
func (ph *PasswordHasher) SetParams(memory, iterations uint32, parallelism uint8) error {
	if memory < 1024 {
		return fmt.Errorf("memory must be at least 1024 KB")
	}
	if iterations < 1 {
		return fmt.Errorf("iterations must be at least 1")
	}
	if parallelism < 1 {
		return fmt.Errorf("parallelism must be at least 1")
	}
	ph.memory = memory
	ph.iterations = iterations
	ph.parallelism = parallelism
	return nil
}

func (ph *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, ph.saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, ph.iterations, ph.memory, ph.parallelism, ph.keyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, ph.memory, ph.iterations, ph.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Verify reports whether password matches encodedHash, comparing in constant time.
func (ph *PasswordHasher) Verify(password, encodedHash string) (bool, error) {
	memory, iterations, parallelism, salt, hash, err := decodeHash(encodedHash)
	if err != nil {
		return false, err
	}
	other := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(hash)))
	return subtle.ConstantTimeCompare(hash, other) == 1, nil
}

func decodeHash(encodedHash string) (memory uint32, iterations uint32, parallelism uint8, salt []byte, hash []byte, err error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		err = ErrInvalidHash
		return
	}
	var version int
	if _, err = fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		err = fmt.Errorf("%w: version: %v", ErrInvalidHash, err)
		return
	}
	if version != argon2.Version {
		err = ErrIncompatibleHash
		return
	}
	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		err = fmt.Errorf("%w: parameters: %v", ErrInvalidHash, err)
		return
	}
	if salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		err = fmt.Errorf("%w: salt: %v", ErrInvalidHash, err)
		return
	}
	if hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		err = fmt.Errorf("%w: hash: %v", ErrInvalidHash, err)
		return
	}
	if len(hash) == 0 {
		err = ErrInvalidHash
	}
	return
}
