package rpc

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"nftescrow/observability"
)

type contextKey string

const (
	contextKeyRequestID contextKey = "rpc.requestID"

	requestIDHeader = "X-Request-ID"
	visitorTTL      = 5 * time.Minute
)

// requestID assigns every request an identifier, reusing a well formed one
// supplied by the client.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns the identifier assigned by the server.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps a token bucket per client address.
type rateLimiter struct {
	limit    rate.Limit
	burst    int
	mu       sync.Mutex
	visitors map[string]*visitor
	clockNow func() time.Time
}

func newRateLimiter(perSecond float64, burst int) *rateLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &rateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		visitors: make(map[string]*visitor),
		clockNow: time.Now,
	}
}

func (r *rateLimiter) allow(source string) bool {
	if r == nil {
		return true
	}
	if source == "" {
		source = "unknown"
	}
	now := r.clockNow()
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, v := range r.visitors {
		if now.Sub(v.lastSeen) > visitorTTL {
			delete(r.visitors, id)
		}
	}
	v, ok := r.visitors[source]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.visitors[source] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		source := s.clientSource(r)
		if !s.limiter.allow(source) {
			observability.ModuleMetrics().RecordThrottle("rpc", "rate_limit")
			writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", source)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientSource identifies the caller. Forwarding headers are only honoured
// when the direct peer is a trusted proxy.
func (s *Server) clientSource(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if _, trusted := s.trustedProxies[host]; !trusted {
		return host
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		candidate := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if ip := net.ParseIP(candidate); ip != nil {
			return ip.String()
		}
	}
	return host
}

// JWTConfig enables bearer token authentication for state changing methods.
type JWTConfig struct {
	Secret    string
	Issuer    string
	ClockSkew time.Duration
}

func (c JWTConfig) enabled() bool { return strings.TrimSpace(c.Secret) != "" }

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if !s.cfg.JWT.enabled() {
		return nil
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if err := s.verifyToken(token); err != nil {
		s.logger.Warn("rpc auth rejected", "error", err, "request_id", RequestIDFromContext(r.Context()))
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func (s *Server) verifyToken(raw string) error {
	skew := s.cfg.JWT.ClockSkew
	if skew <= 0 {
		skew = 2 * time.Minute
	}
	opts := []jwt.ParserOption{
		jwt.WithLeeway(skew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer := strings.TrimSpace(s.cfg.JWT.Issuer); issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(strings.TrimSpace(s.cfg.JWT.Secret)), nil
	}, opts...)
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("token invalid")
	}
	return nil
}

func logRequests(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("rpc request",
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", RequestIDFromContext(r.Context()),
				"duration", time.Since(start))
		})
	}
}
