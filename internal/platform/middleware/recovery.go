package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/searchcore/pkg/search"
)

// Recovery converts handler panics into a 500 OperationOutcome response and
// logs the stack with the request correlation id. A panic after the response
// was committed is logged but cannot change the reply.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					var stack [4096]byte
					n := runtime.Stack(stack[:], false)

					logger.Error().
						Str("request_id", fmt.Sprintf("%v", c.Get("request_id"))).
						Str("panic", fmt.Sprintf("%v", r)).
						Str("stack", string(stack[:n])).
						Msg("panic recovered")

					if c.Response().Committed {
						return
					}
					outcome := search.NewOperationOutcome(search.IssueSeverityError, "exception",
						"an unexpected internal error occurred")
					err = c.JSON(http.StatusInternalServerError, outcome)
				}
			}()
			return next(c)
		}
	}
}
