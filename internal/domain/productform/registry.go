package productform

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// session tracks a form and the last time it was touched.
type session struct {
	form     *Form
	lastSeen time.Time
}

// Registry holds the open draft sessions. Each session owns one Form; idle
// sessions are closed after a TTL.
type Registry struct {
	ttl     time.Duration
	newForm func(id string) *Form
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

// NewRegistry creates a registry that builds forms with newForm and expires
// sessions idle for longer than ttl. A non-positive ttl disables expiry.
func NewRegistry(ttl time.Duration, newForm func(id string) *Form) *Registry {
	return &Registry{
		ttl:      ttl,
		newForm:  newForm,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// Open starts a new draft session.
func (r *Registry) Open() *Form {
	id := uuid.New().String()
	f := r.newForm(id)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &session{form: f, lastSeen: r.now()}
	return f
}

// Get returns the form of session id and marks the session as active.
func (r *Registry) Get(id string) (*Form, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, errors.Wrapf(ErrDraftNotFound, "draft %q", id)
	}
	s.lastSeen = r.now()
	return s.form, nil
}

// Discard closes session id and forgets it. In-flight previews of the
// session are dropped.
func (r *Registry) Discard(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return errors.Wrapf(ErrDraftNotFound, "draft %q", id)
	}
	s.form.Close()
	return nil
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// evict closes sessions idle since before now-ttl. Sessions with an
// outstanding submission are kept.
func (r *Registry) evict(now time.Time) []string {
	var expired []*session
	var ids []string

	r.mu.Lock()
	for id, s := range r.sessions {
		if now.Sub(s.lastSeen) < r.ttl || s.form.Submitting() {
			continue
		}
		delete(r.sessions, id)
		expired = append(expired, s)
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.form.Close()
	}
	return ids
}

// StartCleanup periodically expires idle sessions until ctx is cancelled.
func (r *Registry) StartCleanup(ctx context.Context) {
	if r.ttl <= 0 {
		return
	}
	interval := max(r.ttl/2, time.Second)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ids := r.evict(r.now()); len(ids) > 0 {
					zctx.From(ctx).Debug("Expired draft sessions", zap.Strings("ids", ids))
				}
			}
		}
	}()
}

// Close closes every session.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.form.Close()
	}
}

// Wait blocks until the preview workers of every open session finish.
func (r *Registry) Wait() {
	r.mu.Lock()
	forms := make([]*Form, 0, len(r.sessions))
	for _, s := range r.sessions {
		forms = append(forms, s.form)
	}
	r.mu.Unlock()

	for _, f := range forms {
		f.Wait()
	}
}
