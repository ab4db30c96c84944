package middleware

import (
	"errors"
	"net/http"
	"slices"

	"marketplace-settlement/internal/dto"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

const (
	CtxUser  = "user"
	RoleUser = "user"
	// RoleAdmin is only ever trusted from a signed token.
	RoleAdmin = "admin"
)

type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

func jwtConfig(secret []byte) echojwt.Config {
	return echojwt.Config{
		SigningKey:    secret,
		SigningMethod: "HS256",
		ContextKey:    CtxUser,
		TokenLookup:   "header:Authorization:Bearer ,cookie:accessToken",
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(Claims)
		},
	}
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(secret []byte) echo.MiddlewareFunc {
	cfg := jwtConfig(secret)
	cfg.ErrorHandler = func(c echo.Context, err error) error {
		var missing *echojwt.TokenExtractionError
		if errors.As(err, &missing) {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
		}
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
	}
	return echojwt.WithConfig(cfg)
}

// OptionalAuth lets guests through but still rejects a bad token.
func OptionalAuth(secret []byte) echo.MiddlewareFunc {
	cfg := jwtConfig(secret)
	cfg.ContinueOnIgnoredError = true
	cfg.ErrorHandler = func(c echo.Context, err error) error {
		var missing *echojwt.TokenExtractionError
		if errors.As(err, &missing) {
			return nil
		}
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
	}
	return echojwt.WithConfig(cfg)
}

func RequireRole(required ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := claimsFrom(c)
			if claims == nil || claims.Role == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing role")
			}
			if !slices.Contains(required, claims.Role) {
				return echo.NewHTTPError(http.StatusForbidden, "you don't have enough rights for this action")
			}
			return next(c)
		}
	}
}

func claimsFrom(c echo.Context) *Claims {
	token, ok := c.Get(CtxUser).(*jwt.Token)
	if !ok || token == nil {
		return nil
	}
	claims, _ := token.Claims.(*Claims)
	return claims
}

// ActorFrom returns the caller, or the zero Actor for guests.
func ActorFrom(c echo.Context) dto.Actor {
	claims := claimsFrom(c)
	if claims == nil {
		return dto.Actor{}
	}
	return dto.Actor{
		ID:      claims.Subject,
		Email:   claims.Email,
		IsAdmin: claims.Role == RoleAdmin,
	}
}
