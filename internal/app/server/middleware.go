package server

import (
	"bytes"
	"crypto/subtle"
	"io"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/far4599/video-downloader-api/internal/apierror"
	"github.com/far4599/video-downloader-api/internal/pkg/hash"
	"github.com/far4599/video-downloader-api/internal/pkg/log"
	"github.com/far4599/video-downloader-api/internal/service"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/valyala/fastjson"
)

const (
	apiKeyHeader = "X-API-Key"

	// only the head of a body is inspected for the access log
	peekBytes = 64 << 10
)

type rateLimitResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func cors(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[strings.TrimSpace(o)] = struct{}{}
	}
	_, anyOrigin := allowed["*"]

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				_, listed := allowed[origin]
				switch {
				case listed:
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				case anyOrigin:
					// a wildcard never grants credentials
					w.Header().Set("Access-Control-Allow-Origin", "*")
				}
				if listed || anyOrigin {
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+apiKeyHeader)
					w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
				}
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// apiKey rejects requests without the configured key. An empty key turns
// the check off.
func apiKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(apiKeyHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				service.WriteError(w, http.StatusUnauthorized, apierror.New(apierror.AuthFailed, apierror.MsgInvalidAPIKey))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimit counts requests per client address in fixed windows. When the
// store is unreachable requests are let through.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	limit, window := s.conf.RateLimit.Requests, s.conf.RateLimit.Window
	if limit <= 0 || s.limiter == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := s.clientIP(r)

		usage, err := s.limiter.Hit(r.Context(), hash.Key(ip, "api"), window)
		if err != nil {
			log.Logger.Errorw("rate limit check failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		remaining := limit - usage.Count
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if usage.Count > limit {
			retryAfter := int(math.Ceil(usage.ResetIn.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}

			s.access.Warn().
				Str("client_ip", ip).
				Str("path", r.URL.Path).
				Int64("count", usage.Count).
				Int("retry_after", retryAfter).
				Msg("rate limit exceeded")

			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			service.WriteJSON(w, http.StatusTooManyRequests, rateLimitResponse{
				Status:  "error",
				Message: "Rate limit exceeded: " + strconv.FormatInt(limit, 10) + " per " + window.String(),
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		var videoURL string
		if r.Method == http.MethodPost && r.Body != nil {
			videoURL = peekURL(r)
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		ev := s.access.WithLevel(accessLevel(status)).
			Str("client_ip", s.clientIP(r)).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("query", r.URL.RawQuery).
			Int("status_code", status).
			Float64("latency_ms", float64(time.Since(start).Microseconds())/1000).
			Str("request_id", middleware.GetReqID(r.Context()))
		if videoURL != "" {
			ev = ev.Str("url", log.MaskURL(videoURL))
		}

		ev.Msg("request")
	})
}

// peekURL reads the "url" field from a JSON body and restores the body for
// the next handler.
func peekURL(r *http.Request) string {
	head, err := io.ReadAll(io.LimitReader(r.Body, peekBytes))
	r.Body = readCloser{
		Reader: io.MultiReader(bytes.NewReader(head), r.Body),
		Closer: r.Body,
	}
	if err != nil {
		return ""
	}

	v, err := fastjson.ParseBytes(head)
	if err != nil {
		return ""
	}

	return string(v.GetStringBytes("url"))
}

type readCloser struct {
	io.Reader
	io.Closer
}

// clientIP is the socket peer, unless the peer is a trusted proxy. Then the
// nearest untrusted hop in X-Forwarded-For is used, or X-Real-IP when the
// chain has none.
func (s *Server) clientIP(r *http.Request) string {
	peer := remoteHost(r)
	if !s.isTrusted(peer) {
		return peer
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if _, err := netip.ParseAddr(hop); err != nil {
			// a garbled chain cannot be followed any further
			return peer
		}
		if !s.isTrusted(hop) {
			return hop
		}
	}

	if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); xr != "" {
		if _, err := netip.ParseAddr(xr); err == nil {
			return xr
		}
	}

	return peer
}

func (s *Server) isTrusted(ip string) bool {
	if len(s.trusted) == 0 {
		return false
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	for _, p := range s.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func accessLevel(status int) zerolog.Level {
	if status >= http.StatusBadRequest {
		return zerolog.WarnLevel
	}
	return zerolog.InfoLevel
}
