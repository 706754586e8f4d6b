package server

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// localOrigin reports whether a request Origin header names a page served
// from this machine. Requests without an Origin (curl, scripts) are not
// made by a browser page and are allowed.
func localOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// checkOrigin is the websocket upgrader's origin policy.
func checkOrigin(r *http.Request) bool {
	return localOrigin(r.Header.Get("Origin"))
}

// localCORS answers preflights for local tooling pages on other ports.
func localCORS() echo.MiddlewareFunc {
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOriginFunc: func(origin string) (bool, error) { return localOrigin(origin), nil },
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	})
}

// rejectForeignOrigin refuses every request a page on another host makes.
// The CORS middleware only withholds response headers, so without this a
// foreign page could still start capture or clear the transcript.
func rejectForeignOrigin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if origin := c.Request().Header.Get(echo.HeaderOrigin); !localOrigin(origin) {
				return echo.NewHTTPError(http.StatusForbidden, "origin not allowed")
			}
			return next(c)
		}
	}
}
