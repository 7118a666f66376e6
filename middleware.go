package main

import (
	_ "embed"
	"fmt"
	"net/http"

	"github.com/casbin/casbin/v2"
	casbinmodel "github.com/casbin/casbin/v2/model"
	stringadapter "github.com/casbin/casbin/v2/persist/string-adapter"
	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"rentease/handler"
	"rentease/model"
)

var (
	//go:embed auth_model.conf
	authModel string
	//go:embed policy.csv
	authPolicy string
)

const roleAnonymous = "anonymous"

func newEnforcer() (*casbin.Enforcer, error) {
	m, err := casbinmodel.NewModelFromString(authModel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse casbin model: %w", err)
	}

	e, err := casbin.NewEnforcer(m, stringadapter.NewAdapter(authPolicy))
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}
	return e, nil
}

type AuthorizationMW struct {
	Enforcer *casbin.Enforcer
}

// Authorize checks the route against the caller's roles. Requests without a token
// act as "anonymous"; an anonymous caller is asked to log in, everybody else is refused.
func (cfg AuthorizationMW) Authorize(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		userRoles := []string{roleAnonymous}
		user, err := handler.UserFromContext(c)
		authenticated := err == nil
		if !authenticated && c.Get("user_auth") != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired jwt")
		}
		if authenticated && len(user.Roles) > 0 {
			userRoles = user.Roles
		}

		for _, role := range userRoles {
			ok, casbinErr := cfg.Enforcer.Enforce(role, c.Path(), c.Request().Method)
			if casbinErr != nil {
				c.Logger().Error(casbinErr)
				return echo.NewHTTPError(http.StatusInternalServerError, "authorization error")
			}
			if ok {
				if authenticated {
					c.Set("user", &user)
				}
				return next(c)
			}
		}

		if !authenticated {
			return echo.NewHTTPError(http.StatusUnauthorized, "Authentication credentials were not provided.")
		}
		return echo.NewHTTPError(http.StatusForbidden, "You do not have permission to perform this action.")
	}
}

// Without an Authorization header the request continues anonymously; a header
// carrying a bad or expired token is still rejected.
func getJwtMVConfig(secret []byte) echojwt.Config {
	return echojwt.Config{
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(model.JwtCustomClaims)
		},
		ContextKey: "user_auth",
		SigningKey: secret,
		Skipper: func(c echo.Context) bool {
			return c.Request().Header.Get(echo.HeaderAuthorization) == ""
		},
	}
}
