package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/appctx"
)

// Logger logs one line per request. Probe routes log at debug.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}
			stop := time.Now()

			fields := appctx.Fields(req.Context())
			fields["status"] = res.Status
			fields["uri"] = req.RequestURI
			fields["route"] = c.Path()
			fields["user_agent"] = req.UserAgent()
			fields["response_time"] = stop.Sub(start)
			fields["response_size"] = strconv.FormatInt(res.Size, 10)

			log := logger.WithContext(req.Context()).WithFields(fields)
			if c.Path() == "/metrics" || strings.HasPrefix(c.Path(), "/api/v1/health") {
				log.Debug("Request")
			} else {
				log.Info("Request")
			}
			return nil
		}
	}
}
