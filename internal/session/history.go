package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/manimchat/manimchat/internal/conversation"
	"github.com/manimchat/manimchat/internal/logging"
)

// CollectionKey is the single key the whole session collection is stored under.
const CollectionKey = "manimchat.sessions"

// SaveError reports a failed write of the session collection. The
// in-memory collection is left as it was before the operation.
type SaveError struct {
	Op  string
	Err error
}

func (e *SaveError) Error() string { return fmt.Sprintf("%s: save history: %v", e.Op, e.Err) }
func (e *SaveError) Unwrap() error { return e.Err }

// HistoryOptions configures a History. Zero values pick defaults.
type HistoryOptions struct {
	IDs         *conversation.IDAllocator // session id sequence; default starts at 1
	TitleLength int
	Now         func() time.Time
	Logger      logrus.FieldLogger
}

// History is the durable collection of archived sessions. The collection is
// read once at startup and rewritten in full after every change.
type History struct {
	kv       KV
	ids      *conversation.IDAllocator
	titleLen int
	now      func() time.Time
	log      logrus.FieldLogger

	mu       sync.Mutex
	sessions []Session
}

// NewHistory creates a History on top of kv. Call Load before use.
func NewHistory(kv KV, opts HistoryOptions) *History {
	h := &History{
		kv:       kv,
		ids:      opts.IDs,
		titleLen: opts.TitleLength,
		now:      opts.Now,
		log:      opts.Logger,
	}
	if h.ids == nil {
		h.ids = conversation.NewIDAllocator(1)
	}
	if h.titleLen <= 0 {
		h.titleLen = DefaultTitleLength
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.log == nil {
		h.log = logging.Discard()
	}
	return h
}

// Load reads the persisted collection. Missing, unreadable or corrupt data
// yields an empty collection; errors are logged, never returned.
func (h *History) Load(ctx context.Context) []Session {
	sessions := h.read(ctx)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions = sessions
	for _, s := range sessions {
		h.ids.Advance(s.ID)
	}
	return cloneSessions(sessions)
}

func (h *History) read(ctx context.Context) []Session {
	data, err := h.kv.Get(ctx, CollectionKey)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		h.log.WithError(err).Warn("history unreadable, starting empty")
		return nil
	}

	var sessions []Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		h.log.WithError(err).Warn("history corrupt, starting empty")
		return nil
	}
	return sessions
}

// SaveAll overwrites the persisted collection with sessions. On success the
// in-memory collection becomes sessions; on failure it is unchanged.
func (h *History) SaveAll(ctx context.Context, sessions []Session) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.saveLocked(ctx, "save", sessions)
}

func (h *History) saveLocked(ctx context.Context, op string, sessions []Session) error {
	if sessions == nil {
		sessions = []Session{}
	}
	data, err := json.Marshal(sessions)
	if err != nil {
		return &SaveError{Op: op, Err: fmt.Errorf("marshal sessions: %w", err)}
	}
	if err := h.kv.Put(ctx, CollectionKey, data); err != nil {
		h.log.WithError(err).WithField("op", op).Error("history write failed")
		return &SaveError{Op: op, Err: err}
	}
	h.sessions = cloneSessions(sessions)
	h.log.WithFields(logrus.Fields{"op": op, "sessions": len(sessions)}).Debug("history saved")
	return nil
}

// Archive turns a conversation snapshot into a Session and persists the
// collection. Snapshots without a resolved assistant turn are discarded and
// reported with ok=false. Pending turns are never stored.
func (h *History) Archive(ctx context.Context, turns []conversation.Turn) (Session, bool, error) {
	if !Archivable(turns) {
		return Session{}, false, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	s := Session{
		ID:        h.ids.Next(),
		Title:     DeriveTitle(turns, h.titleLen),
		Messages:  conversation.Completed(turns),
		Timestamp: h.now().UnixMilli(),
	}
	next := append(cloneSessions(h.sessions), s)
	if err := h.saveLocked(ctx, "archive", next); err != nil {
		return Session{}, false, err
	}
	return s, true, nil
}

// Remove deletes the session with id, if present, and persists.
func (h *History) Remove(ctx context.Context, id int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := make([]Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		if s.ID != id {
			next = append(next, s)
		}
	}
	return h.saveLocked(ctx, "remove", next)
}

// Reconcile replaces the turns of an archived session with a newer snapshot
// of the same conversation. It exists for replies that arrive after their
// conversation was archived. A missing id is ignored.
func (h *History) Reconcile(ctx context.Context, id int64, turns []conversation.Turn) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := cloneSessions(h.sessions)
	for i := range next {
		if next[i].ID != id {
			continue
		}
		next[i].Messages = conversation.Completed(turns)
		next[i].Title = DeriveTitle(turns, h.titleLen)
		return h.saveLocked(ctx, "reconcile", next)
	}
	return nil
}

// Sessions returns the collection in creation order.
func (h *History) Sessions() []Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return cloneSessions(h.sessions)
}

// Get returns the session with id.
func (h *History) Get(id int64) (Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.sessions {
		if s.ID == id {
			return cloneSessions([]Session{s})[0], true
		}
	}
	return Session{}, false
}

func cloneSessions(in []Session) []Session {
	out := make([]Session, len(in))
	for i, s := range in {
		out[i] = s
		out[i].Messages = conversation.Completed(s.Messages)
	}
	return out
}
