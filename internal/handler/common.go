// Package handler exposes the HTTP surface of the booking service:
// public browsing, authenticated booking and the payment callbacks.
package handler

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/movie-ticket-booking/internal/middleware"
	"github.com/iliyamo/movie-ticket-booking/internal/model"
)

var errNoIdentity = errors.New("no authenticated identity in request context")

// bookerFromContext rebuilds the verified customer identity that the
// JWT middleware stored on the request. The snapshot travels onto new
// bookings unchanged.
func bookerFromContext(c echo.Context) (model.BookerIdentity, error) {
	uid, err := userIDFromContext(c)
	if err != nil {
		return model.BookerIdentity{}, err
	}
	booker := model.BookerIdentity{
		UserID: uid,
		Name:   ctxString(c, middleware.CtxCustomerName),
		Email:  ctxString(c, middleware.CtxCustomerEmail),
	}
	if phone := ctxString(c, middleware.CtxCustomerPhone); phone != "" {
		booker.Phone = &phone
	}
	return booker, nil
}

// userIDFromContext extracts the numeric user id set by the JWT
// middleware. The sub claim arrives as a string or, after JSON
// decoding, a float64.
func userIDFromContext(c echo.Context) (uint64, error) {
	switch v := c.Get(middleware.CtxUserID).(type) {
	case string:
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil || id == 0 {
			return 0, errNoIdentity
		}
		return id, nil
	case float64:
		if v <= 0 {
			return 0, errNoIdentity
		}
		return uint64(v), nil
	}
	return 0, errNoIdentity
}

func ctxString(c echo.Context, key string) string {
	if s, ok := c.Get(key).(string); ok {
		return s
	}
	return ""
}
