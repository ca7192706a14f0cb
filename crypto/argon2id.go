package crypto

import (
	"errors"
	"fmt"

	"github.com/alexedwards/argon2id"
	"github.com/dannyz30w/wavelength-games/domain"
)

var errEmptyPassword = errors.New("empty room password")

// Argon2idHasher protects private room passwords at rest. Only the encoded
// hash is stored on the room row.
type Argon2idHasher struct {
	params *argon2id.Params
}

// NewArgon2idHasher creates a hasher with the given difficulty. memory is in KiB.
func NewArgon2idHasher(iterations, memory, keyLength, saltLength uint32, parallelism uint8) *Argon2idHasher {
	return &Argon2idHasher{
		params: &argon2id.Params{
			Memory:      memory,
			Iterations:  iterations,
			Parallelism: parallelism,
			SaltLength:  saltLength,
			KeyLength:   keyLength,
		},
	}
}

func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%w: %w", domain.UnexpectedPasswordHashError, errEmptyPassword)
	}
	hash, err := argon2id.CreateHash(password, h.params)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.UnexpectedPasswordHashError, err)
	}
	return hash, nil
}

// Compare reports whether password opens the room guarded by hash. A blank
// attempt never matches and is not hashed.
func (h *Argon2idHasher) Compare(hash, password string) (bool, error) {
	if password == "" {
		return false, nil
	}
	match, _, err := argon2id.CheckHash(password, hash)
	if err != nil {
		return false, fmt.Errorf("%w: %w", domain.UnexpectedPasswordHashError, err)
	}
	return match, nil
}
