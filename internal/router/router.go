// Package router wires HTTP routes to their handlers and middleware.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/movie-ticket-booking/internal/config"
	"github.com/iliyamo/movie-ticket-booking/internal/handler"
	"github.com/iliyamo/movie-ticket-booking/internal/middleware"
)

// RegisterHealth exposes the liveness probe. No middleware applies.
func RegisterHealth(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterBrowse mounts the public read endpoints. The response cache
// fronts them when Redis is available; TTLs are short because seat maps
// go stale on every committed booking.
func RegisterBrowse(e *echo.Echo, b *handler.BrowseHandler, cacheCfg config.CacheConfig, rdb *redis.Client) {
	cached := middleware.ResponseCache(cacheCfg, rdb)
	e.GET("/v1/showtimes", b.ListShowtimes, cached)
	e.GET("/v1/showtimes/:id/seats", b.SeatMap, cached)
}

// RegisterBooking mounts the authenticated booking endpoints under /v1
// behind JWT verification and the token-bucket rate limiter. The
// limiter runs after JWTAuth so buckets key on the verified user id.
func RegisterBooking(e *echo.Echo, h *handler.BookingHandler, jwtSecret string, rlCfg config.RateLimitConfig, rdb *redis.Client) {
	g := e.Group("/v1")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RateLimit(rlCfg, rdb))

	g.POST("/bookings", h.Create)
	g.GET("/bookings/:id", h.Get)
	g.GET("/my-bookings", h.List)
}

// RegisterPayments mounts the payment result endpoints. The ECPay
// callback is server-to-server and authenticates via CheckMacValue, so
// it stays outside the JWT group; the generic confirm endpoint requires
// a token.
func RegisterPayments(e *echo.Echo, p *handler.PaymentHandler, jwtSecret string) {
	e.POST("/v1/payments/ecpay/callback", p.ECPayCallback)

	g := e.Group("/v1/payments")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.POST("/ecpay/checkout", p.Checkout)
	g.POST("/confirm", p.Confirm)
}
