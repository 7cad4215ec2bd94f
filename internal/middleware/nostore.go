package middleware

import "github.com/labstack/echo/v4"

// NoStore marks responses as uncacheable.  Profile responses carry the
// member's live barcode and must not be kept by browsers or proxies.
func NoStore(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := c.Response().Header()
		h.Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "0")
		return next(c)
	}
}
