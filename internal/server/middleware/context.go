package middleware

import (
	"context"

	"github.com/OFFIS-RIT/lexgraph/backend/pkg/query"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Answerer is implemented by *query.Synthesizer.
type Answerer interface {
	Answer(ctx context.Context, question string) (string, error)
	AnswerWithTrace(ctx context.Context, question string, t query.Tracer) (string, error)
}

type AppUser struct {
	Subject string
	Role    string
}

// App holds the long-lived dependencies shared by every request. Keyfunc
// is nil when no JWKS endpoint is configured.
type App struct {
	Synthesizer  Answerer
	Keyfunc      jwt.Keyfunc
	MasterAPIKey string
}

// AuthEnabled reports whether requests to protected routes need a token.
func (a *App) AuthEnabled() bool {
	return a.Keyfunc != nil || a.MasterAPIKey != ""
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}
