package api

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"ticket-bazaar/internal/apierr"
	"ticket-bazaar/internal/auth"
	"ticket-bazaar/internal/mapper"
	"ticket-bazaar/internal/models"
)

// Session attaches an id-only account reference when the request carries a
// valid session cookie. A missing or bad cookie leaves Account nil.
func Session(sessions *auth.Sessions) Middleware {
	return func(next Handler) Handler {
		return func(req *Request) (any, error) {
			id, err := sessions.AccountID(req.Request)
			switch {
			case err == nil:
				req.Account = &models.Account{ID: id}
			case errors.Is(err, auth.ErrInvalidToken):
				req.Log.LogSecurity("BAD_SESSION", fmt.Sprintf("request %s from %s: %v", req.ID, req.RemoteAddr, err))
			}
			return next(req)
		}
	}
}

// AccountRequired rejects anonymous requests. With fetch it replaces the
// cookie's reference by the current row, read through the request
// transaction, so WithDB must run first.
func AccountRequired(fetch bool) Middleware {
	return func(next Handler) Handler {
		return func(req *Request) (any, error) {
			if req.Account == nil {
				return nil, apierr.InvalidSession()
			}
			if fetch {
				if req.Tx == nil {
					return nil, errors.New("AccountRequired(true) used outside WithDB")
				}
				account, err := models.AccountMapper.FindOne(req.Context(), req.Tx, mapper.Query{PK: req.Account.ID})
				if errors.Is(err, mapper.ErrNotFound) {
					return nil, apierr.InvalidSession()
				}
				if err != nil {
					return nil, err
				}
				req.Account = account
			}
			return next(req)
		}
	}
}

// RateLimiter hands out one token bucket per client address.
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(perMinute, burst int) *RateLimiter {
	return &RateLimiter{
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   burst,
		buckets: make(map[string]*bucket),
	}
}

func (rl *RateLimiter) allow(key string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now

	// Sweep idle buckets now and then so the map stays bounded.
	if len(rl.buckets) > 10000 {
		for k, other := range rl.buckets {
			if now.Sub(other.lastSeen) > 10*time.Minute {
				delete(rl.buckets, k)
			}
		}
	}
	return b.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) Middleware() Middleware {
	return func(next Handler) Handler {
		return func(req *Request) (any, error) {
			host, _, err := net.SplitHostPort(req.RemoteAddr)
			if err != nil {
				host = req.RemoteAddr
			}
			if !rl.allow(host, time.Now()) {
				req.Log.LogSecurity("RATE_LIMIT", fmt.Sprintf("%s %s from %s", req.Method, req.URL.Path, host))
				return nil, apierr.TooManyRequests()
			}
			return next(req)
		}
	}
}
