package auth

import "time"

type TokenManager interface {
	Generate(playerToken string, now time.Time) (string, error)
	Verify(token string) (string, error)
}

type TokenSource interface {
	NewToken() string
}
