package api

import (
	"context"
	"strconv"
	"strings"

	"SignalDesk/internal/domain/models"
	drepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/usecase"
	xhttp "SignalDesk/pkg/http"

	"github.com/labstack/echo/v4"
)

const userContextKey = "signaldesk.user"

// DefaultSessionCookie carries the identity provider's access token.
const DefaultSessionCookie = "sb-access-token"

// Authorizer checks a session token against a capability tier.
type Authorizer interface {
	Require(ctx context.Context, token string, capability usecase.Capability) (*drepo.User, error)
}

// RateLimiter throttles callers by key.
type RateLimiter interface {
	Allow(key string) bool
}

// SessionToken returns the bearer token, falling back to the session cookie.
func SessionToken(c echo.Context, cookieName string) string {
	if h := c.Request().Header.Get(echo.HeaderAuthorization); h != "" {
		if scheme, tok, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
	}
	if cookieName == "" {
		cookieName = DefaultSessionCookie
	}
	if ck, err := c.Cookie(cookieName); err == nil {
		return ck.Value
	}
	return ""
}

// RequireCapability rejects callers lacking capability before the handler
// runs and stores the resolved user in the context.
func RequireCapability(gate Authorizer, cookieName string, capability usecase.Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, err := gate.Require(c.Request().Context(), SessionToken(c, cookieName), capability)
			if err != nil {
				return xhttp.AppErrorResponse(c, toAppError(err))
			}
			c.Set(userContextKey, user)
			return next(c)
		}
	}
}

// UserFromContext returns the user stored by RequireCapability.
func UserFromContext(c echo.Context) *drepo.User {
	u, _ := c.Get(userContextKey).(*drepo.User)
	return u
}

// Throttle applies a per-user budget. It must run after RequireCapability.
func Throttle(limiter RateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if limiter == nil {
				return next(c)
			}
			key := c.RealIP()
			if u := UserFromContext(c); u != nil {
				key = "user:" + strconv.FormatInt(u.ID, 10)
			}
			if !limiter.Allow(key) {
				return xhttp.AppErrorResponse(c, toAppError(models.ErrRateLimited))
			}
			return next(c)
		}
	}
}
