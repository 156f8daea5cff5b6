package middleware

import (
	"bufio"
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/movie-ticket-booking/internal/config"
)

// cachedResponse is the Redis payload: status, selected headers and the
// raw body of a previously served browse response.
type cachedResponse struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    []byte            `json:"body"`
}

// captureWriter tees the response so a successful body can be stored
// after the handler runs.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    []byte
	limit  int
}

func (w *captureWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *captureWriter) Write(b []byte) (int, error) {
	if len(w.buf)+len(b) <= w.limit {
		w.buf = append(w.buf, b...)
	} else {
		// Oversized bodies are served normally but never cached.
		w.buf = nil
		w.limit = -1
	}
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *captureWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return w.ResponseWriter.(http.Hijacker).Hijack()
}

// ResponseCache caches successful browse responses in Redis for a short
// TTL. Seat maps go stale the instant a booking commits, so the TTL is
// small and the cache is advisory only; booking requests never pass
// through here.
func ResponseCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { return next(c) }
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !cfg.Methods[req.Method] {
				return next(c)
			}

			key := cacheKeyFrom(cfg, c)
			ctx := req.Context()

			if raw, err := rdb.Get(ctx, key).Bytes(); err == nil {
				var cached cachedResponse
				if json.Unmarshal(raw, &cached) == nil {
					h := c.Response().Header()
					for k, v := range cached.Headers {
						h.Set(k, v)
					}
					h.Set("X-Cache", "HIT")
					return c.Blob(cached.Status, h.Get(echo.HeaderContentType), cached.Body)
				}
			}

			cw := &captureWriter{
				ResponseWriter: c.Response().Writer,
				status:         http.StatusOK,
				limit:          cfg.MaxBodyBytes,
			}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")

			if err := next(c); err != nil {
				return err
			}

			if cw.status == http.StatusOK && cw.buf != nil {
				payload, err := json.Marshal(cachedResponse{
					Status: cw.status,
					Headers: map[string]string{
						echo.HeaderContentType: c.Response().Header().Get(echo.HeaderContentType),
					},
					Body: cw.buf,
				})
				if err == nil {
					// Best effort; a write failure only costs a cache miss.
					rdb.Set(ctx, key, payload, cfg.TTL)
				}
			}
			return nil
		}
	}
}

func cacheKeyFrom(cfg config.CacheConfig, c echo.Context) string {
	req := c.Request()
	parts := []string{cfg.Prefix, req.Method, req.URL.Path}
	switch strings.ToLower(cfg.KeyStrategy) {
	case "route":
		// path only
	default: // route_query
		if q := req.URL.RawQuery; q != "" {
			parts = append(parts, q)
		}
	}
	return strings.Join(parts, ":")
}
