package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dannyz30w/wavelength-games/domain"
	"github.com/dannyz30w/wavelength-games/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	CookieName = "identity"
	ContextKey = "token"
)

var (
	ErrMissingIdentityStr = "missing-identity"
	ErrExpiredIdentityStr = "expired-identity"
	ErrInvalidIdentityStr = "invalid-identity"
	ErrUnknownStr         = "unknown-error"
)

type uuidSource struct{}

func (uuidSource) NewToken() string { return uuid.NewString() }

type identityHandler struct {
	tokenManager TokenManager
	tokenSource  TokenSource
	cookieMaxAge time.Duration
	now          func() time.Time
}

func NewIdentityHandler(tokenManager TokenManager, cookieMaxAge time.Duration) *identityHandler {
	return &identityHandler{
		tokenManager: tokenManager,
		tokenSource:  uuidSource{},
		cookieMaxAge: cookieMaxAge,
		now:          time.Now,
	}
}

// WithTokenSource swaps the generator of fresh player tokens.
func (ih *identityHandler) WithTokenSource(src TokenSource) *identityHandler {
	ih.tokenSource = src
	return ih
}

// signedIdentity reads the signed identity from the cookie or a bearer header.
func signedIdentity(ctx *gin.Context) string {
	if cookie, err := ctx.Cookie(CookieName); err == nil && cookie != "" {
		return cookie
	}
	header := ctx.GetHeader("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}
	return ""
}

// IdentityHandler keeps the stable device token alive: a valid identity is
// re-signed with the same token, anything else gets a brand new token.
func (ih *identityHandler) IdentityHandler(ctx *gin.Context) {
	playerToken := ""
	if signed := signedIdentity(ctx); signed != "" {
		if token, err := ih.tokenManager.Verify(signed); err == nil {
			playerToken = token
		}
	}
	if playerToken == "" {
		playerToken = ih.tokenSource.NewToken()
	}

	signed, err := ih.tokenManager.Generate(playerToken, ih.now())
	if err != nil {
		logger.Criticalf("identity signing failed: %v", err)
		ctx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": ErrUnknownStr})
		return
	}

	ctx.SetSameSite(http.SameSiteNoneMode)
	ctx.SetCookie(CookieName, signed, int(ih.cookieMaxAge.Seconds()), "/", "", true, true)
	ctx.JSON(http.StatusOK, gin.H{"token": playerToken, "identity": signed})
}

// RequireIdentity verifies the signed identity and stores the player token
// under ContextKey.
func (ih *identityHandler) RequireIdentity() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		signed := signedIdentity(ctx)
		if signed == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrMissingIdentityStr})
			return
		}

		playerToken, err := ih.tokenManager.Verify(signed)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrExpiredToken):
				ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrExpiredIdentityStr})
			case errors.Is(err, domain.ErrInvalidSigningAlg), errors.Is(err, domain.ErrInvalidTokenSignature), errors.Is(err, domain.ErrCorruptedToken):
				logger.Warningf("rejected identity from %s: %v", ctx.ClientIP(), err)
				ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrInvalidIdentityStr})
			default:
				logger.Criticalf("identity verification failed: %v", err)
				ctx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": ErrUnknownStr})
			}
			return
		}

		ctx.Set(ContextKey, playerToken)
		ctx.Next()
	}
}

// OptionalIdentity is RequireIdentity without the rejection: requests without
// a valid identity pass through untouched.
func (ih *identityHandler) OptionalIdentity() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if signed := signedIdentity(ctx); signed != "" {
			if playerToken, err := ih.tokenManager.Verify(signed); err == nil {
				ctx.Set(ContextKey, playerToken)
			}
		}
		ctx.Next()
	}
}
