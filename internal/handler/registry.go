package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pavelanni/docexam/internal/exam"
)

// DefaultSessionTTL is how long an untouched session is kept.
const DefaultSessionTTL = 2 * time.Hour

// Registry holds live examination sessions. Sessions expire after the TTL
// since their last use; an expired or deleted session is reset, which
// drops its retrieval index.
type Registry struct {
	cache *cache.Cache
}

// NewRegistry creates a registry. reg may be nil.
func NewRegistry(ttl time.Duration, reg prometheus.Registerer) *Registry {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	c := cache.New(ttl, min(ttl, 10*time.Minute))
	c.OnEvicted(func(id string, v any) {
		s, ok := v.(*exam.Session)
		if !ok {
			return
		}
		if err := s.Reset(context.Background()); err != nil {
			slog.Warn("reset evicted session", "session", id, "error", err)
		}
		slog.Info("session closed", "session", id)
	})

	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "docexam_active_sessions",
		Help: "Examination sessions currently held in memory.",
	}, func() float64 { return float64(c.ItemCount()) })

	return &Registry{cache: c}
}

// Add stores a session under its ID.
func (r *Registry) Add(s *exam.Session) {
	r.cache.Set(s.ID(), s, cache.DefaultExpiration)
}

// Get returns a session and extends its lifetime.
func (r *Registry) Get(id string) (*exam.Session, bool) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, false
	}
	x, found := r.cache.Get(id)
	if !found {
		return nil, false
	}
	s := x.(*exam.Session)
	r.cache.Set(id, s, cache.DefaultExpiration)
	return s, true
}

// Delete removes and resets a session. It reports whether one existed.
func (r *Registry) Delete(id string) bool {
	if _, found := r.cache.Get(id); !found {
		return false
	}
	r.cache.Delete(id)
	return true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	return r.cache.ItemCount()
}
