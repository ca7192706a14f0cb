package game

import (
	crand "crypto/rand"
	"math/big"
	"math/rand/v2"
	"strings"
	"unicode/utf8"

	"github.com/dannyz30w/wavelength-games/domain"
)

const (
	RoomCodeLength = 4
	// RoomCodeChars leaves out 0/O and 1/I.
	RoomCodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	PasswordLength = 4

	MaxNameLength  = 24
	MaxTokenLength = 128
	MaxClueLength  = 100

	// codeAttempts bounds the retries on room code collisions.
	codeAttempts = 10
)

// CodeGenerator produces join codes and private room passwords.
type CodeGenerator interface {
	RoomCode() string
	Password() string
}

type cryptoCodes struct{}

// NewCodeGenerator returns the crypto/rand backed generator.
func NewCodeGenerator() CodeGenerator {
	return cryptoCodes{}
}

func randomString(alphabet string, length int) string {
	out := make([]byte, length)
	for i := range length {
		n, err := crand.Int(crand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			out[i] = alphabet[rand.IntN(len(alphabet))]
			continue
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out)
}

func (cryptoCodes) RoomCode() string { return randomString(RoomCodeChars, RoomCodeLength) }

func (cryptoCodes) Password() string { return randomString("0123456789", PasswordLength) }

// NormalizeCode upper-cases a user typed code and checks it against the alphabet.
func NormalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != RoomCodeLength {
		return "", domain.ErrMalformedCode
	}
	for _, c := range code {
		if !strings.ContainsRune(RoomCodeChars, c) {
			return "", domain.ErrMalformedCode
		}
	}
	return code, nil
}

func validateToken(token string) error {
	switch {
	case token == "":
		return domain.ErrMissingToken
	case len(token) > MaxTokenLength:
		return domain.ErrTokenTooLong
	}
	return nil
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", domain.ErrEmptyName
	case utf8.RuneCountInString(name) > MaxNameLength:
		return "", domain.ErrNameTooLong
	}
	return name, nil
}

func normalizeClue(clue string) (string, error) {
	clue = strings.TrimSpace(clue)
	switch {
	case clue == "":
		return "", domain.ErrEmptyClue
	case utf8.RuneCountInString(clue) > MaxClueLength:
		return "", domain.ErrClueTooLong
	}
	return clue, nil
}
