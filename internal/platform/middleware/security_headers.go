package middleware

import (
	"github.com/labstack/echo/v4"
)

// SecurityHeaders hardens responses from the authenticated admin API. Admin
// responses carry lead contact data and are never cached or framed.
func SecurityHeaders() echo.MiddlewareFunc {
	return headers(map[string]string{
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"X-XSS-Protection":          "0",
		"Content-Security-Policy":   "default-src 'none'; frame-ancestors 'none'",
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
		"Referrer-Policy":           "no-referrer",
		"Permissions-Policy":        "camera=(), microphone=(), geolocation=()",
		"Cache-Control":             "no-store",
	})
}

// WidgetSecurityHeaders is the relaxed profile for the public widget
// endpoints. They are called cross-origin from arbitrary tenant sites and
// the config response is CDN-cacheable, so framing and caching headers are
// left to the handlers.
func WidgetSecurityHeaders() echo.MiddlewareFunc {
	return headers(map[string]string{
		"X-Content-Type-Options":    "nosniff",
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
		"Referrer-Policy":           "strict-origin-when-cross-origin",
	})
}

func headers(set map[string]string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for k, v := range set {
				h.Set(k, v)
			}
			return next(c)
		}
	}
}
