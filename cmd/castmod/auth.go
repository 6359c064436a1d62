package main

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const actorFidKey = "actorFid"

// event sources authenticate with a static key in the X-API-Key header
func (srv *Server) apiKeyAuth() echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup: "header:X-API-Key",
		Validator: func(key string, c echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), []byte(srv.apiKey)) == 1, nil
		},
		ErrorHandler: func(err error, c echo.Context) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing API key").SetInternal(err)
		},
	})
}

// Moderators authenticate with an HS256 bearer token whose subject is their fid. The fid is stored in the request context under actorFidKey.
func (srv *Server) actorAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw, ok := strings.CutPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
		}
		var claims jwt.RegisteredClaims
		_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
			return srv.jwtSecret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid bearer token").SetInternal(err)
		}
		fid, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil || fid <= 0 {
			return echo.NewHTTPError(http.StatusUnauthorized, "token subject is not a user fid")
		}
		c.Set(actorFidKey, fid)
		return next(c)
	}
}

func actorFid(c echo.Context) int64 {
	fid, _ := c.Get(actorFidKey).(int64)
	return fid
}
