package logger

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// RequestLogger logs every request at debug level once its handler returns.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// Let the error handler write the response so the logged status is final.
				c.Error(err)
			}
			logrus.WithFields(logrus.Fields{
				"component": "http",
				"method":    c.Request().Method,
				"uri":       c.Request().RequestURI,
				"status":    c.Response().Status,
				"latency":   time.Since(start),
			}).Debug("handled request")
			return nil
		}
	}
}
