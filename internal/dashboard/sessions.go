package dashboard

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"chainwatch/internal/analysis"
	"chainwatch/internal/chat"
	"chainwatch/internal/logging"
	"chainwatch/internal/observability"
)

// tabSession pairs the controller and chat session of one dashboard tab.
type tabSession struct {
	id         string
	created    time.Time
	controller *analysis.Controller
	chat       *chat.Session
}

func (s *tabSession) response() SessionResponse {
	return SessionResponse{
		ID:       s.id,
		Created:  s.created,
		Analysis: s.controller.Snapshot(),
		Chat:     s.chat.Snapshot(),
	}
}

// sessionRegistry keeps the most recently used sessions. Evicting a session
// ends it.
type sessionRegistry struct {
	mu      sync.Mutex
	cache   *lru.Cache[string, *tabSession]
	metrics *observability.MetricsCollector
	logger  logging.Logger
}

func newSessionRegistry(capacity int, metrics *observability.MetricsCollector, logger logging.Logger) (*sessionRegistry, error) {
	r := &sessionRegistry{metrics: metrics, logger: logging.OrNop(logger)}
	cache, err := lru.NewWithEvict(capacity, func(id string, _ *tabSession) {
		r.metrics.DecrementActiveSessions(context.Background())
		r.logger.Debug("session %s ended", id)
	})
	if err != nil {
		return nil, err
	}
	r.cache = cache
	return r, nil
}

func (r *sessionRegistry) add(session *tabSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics.IncrementActiveSessions(context.Background())
	r.cache.Add(session.id, session)
}

func (r *sessionRegistry) get(id string) (*tabSession, bool) {
	return r.cache.Get(id)
}

func (r *sessionRegistry) remove(id string) bool {
	return r.cache.Remove(id)
}

func (r *sessionRegistry) len() int {
	return r.cache.Len()
}

func (r *sessionRegistry) purge() {
	r.cache.Purge()
}
