package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const stackSize = 8 << 10

// Recovery turns a handler panic into a 500 carrying the request id, and
// logs the panic with the request it came from.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				stack := make([]byte, stackSize)
				stack = stack[:runtime.Stack(stack, false)]
				rid, _ := c.Get(RequestIDKey).(string)

				req := c.Request()
				logger.Error().
					Str("request_id", rid).
					Str("method", req.Method).
					Str("path", req.URL.Path).
					Str("route", c.Path()).
					Str("patient", c.Param("patient")).
					Str("panic", fmt.Sprint(r)).
					Bytes("stack", stack).
					Msg("panic recovered")

				body := map[string]string{"message": "internal server error"}
				if rid != "" {
					body["request_id"] = rid
				}
				err = echo.NewHTTPError(http.StatusInternalServerError, body)
			}()
			return next(c)
		}
	}
}
