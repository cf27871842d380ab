package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"costalloc/internal/allocation"
	"costalloc/internal/cache"
	"costalloc/internal/core"
	"costalloc/internal/log"
)

var ErrSessionNotFound = errors.New("session not found")

const maxSessions = 1024

// SessionManager keeps the open editing sessions. Sessions expire after ttl
// without activity.
type SessionManager struct {
	alloc    *AllocationService
	sessions *cache.LRUCache[*allocation.Session]
	logger   *log.Logger
}

func NewSessionManager(alloc *AllocationService, ttl time.Duration, logger *log.Logger) *SessionManager {
	if logger == nil {
		logger = log.Discard()
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &SessionManager{
		alloc:    alloc,
		sessions: cache.NewLRUCache[*allocation.Session](maxSessions, ttl),
		logger:   logger.WithComponent(log.ComponentAllocation),
	}
}

// Cleaner exposes the session cache for periodic expiry.
func (m *SessionManager) Cleaner() cache.Cleaner {
	return m.sessions
}

// Open loads the worksheet of p and t into a new session.
func (m *SessionManager) Open(ctx context.Context, p core.Period, t core.ProjectType) (*allocation.Session, error) {
	ws, err := m.alloc.Load(ctx, p, t)
	if err != nil {
		return nil, err
	}
	sess := allocation.NewSession(uuid.NewString(), ws, m.alloc.Engine())
	m.sessions.Set(sess.ID, sess)

	m.logger.InfoContext(ctx, "Session opened",
		log.FieldSession, sess.ID,
		log.FieldPeriod, p.String(),
		log.FieldProjectType, string(t))
	return sess, nil
}

// Get returns a live session and extends its lifetime.
func (m *SessionManager) Get(id string) (*allocation.Session, error) {
	sess, ok := m.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	m.sessions.Touch(id)
	return sess, nil
}

// Refresh merges the latest persisted state into a session. Pending edits
// are kept.
func (m *SessionManager) Refresh(ctx context.Context, id string) (*allocation.Session, error) {
	sess, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	ws, err := m.alloc.Load(ctx, sess.Period(), sess.Type())
	if err != nil {
		return nil, err
	}
	sess.ApplyRemote(ws)
	return sess, nil
}

// Edit applies one field edit. A *core.ValidationError result is a warning:
// the row was still updated with the value coerced to zero.
func (m *SessionManager) Edit(ctx context.Context, id, categoryID string, field allocation.Field, raw string) (*core.StandardRow, error) {
	sess, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	row, err := sess.Edit(categoryID, field, raw)
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		m.logger.WarnContext(ctx, "Non-numeric input stored as zero",
			log.FieldSession, id,
			log.FieldCategory, categoryID,
			"field", string(field),
			"value", raw)
	}
	return row, err
}

// Save persists the session's worksheet. Dirty marks are cleared only for
// the edits covered by a fully successful save.
func (m *SessionManager) Save(ctx context.Context, id string) (*allocation.Worksheet, error) {
	sess, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	ws, err := sess.BeginSave()
	if err != nil {
		return nil, err
	}
	saved, err := m.alloc.Save(ctx, ws)
	sess.EndSave(saved, err)
	return sess.Snapshot(), err
}

// Close drops a session.
func (m *SessionManager) Close(id string) {
	m.sessions.Delete(id)
}

// Count returns the number of open sessions.
func (m *SessionManager) Count() int {
	return m.sessions.Size()
}
