package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/manimchat/manimchat/internal/conversation"
	"github.com/manimchat/manimchat/internal/logging"
	"github.com/manimchat/manimchat/internal/session"
)

// ErrUnknownSession is returned for a session id not in the history.
var ErrUnknownSession = errors.New("unknown session")

// ErrSessionBusy rejects switching to a stored session while a reply for
// it is still in flight.
var ErrSessionBusy = errors.New("still waiting for a reply in that session; try again when it arrives")

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// IDs allocates turn ids across every conversation the manager creates.
	IDs              *conversation.IDAllocator
	MaxMessageLength int
	Logger           logrus.FieldLogger
}

// Manager owns the active conversation and moves it through its lifecycle:
// empty, active, archived into history, empty again. Archiving is a side
// effect of StartNewSession and SwitchToSession.
type Manager struct {
	orch   *Orchestrator
	hist   *session.History
	ids    *conversation.IDAllocator
	maxLen int
	log    logrus.FieldLogger

	mu     sync.Mutex
	active *conversation.Conversation
	// origin maps a conversation key to the stored session holding it, for
	// conversations that were archived or loaded from history.
	origin map[string]int64
	// loaded remembers how many turns a conversation had when it was
	// loaded from history, so leaving it unchanged writes nothing.
	loaded map[string]int
	// deferred holds conversations that were left with a reply still in
	// flight and nothing complete to archive yet.
	deferred map[string]bool
}

// NewManager creates a Manager with an empty active conversation.
// hist must already be loaded.
func NewManager(orch *Orchestrator, hist *session.History, opts ManagerOptions) *Manager {
	m := &Manager{
		orch:     orch,
		hist:     hist,
		ids:      opts.IDs,
		maxLen:   opts.MaxMessageLength,
		log:      opts.Logger,
		origin:   make(map[string]int64),
		loaded:   make(map[string]int),
		deferred: make(map[string]bool),
	}
	if m.ids == nil {
		m.ids = conversation.NewIDAllocator(1)
	}
	if m.log == nil {
		m.log = logging.Discard()
	}
	m.active = conversation.New(m.ids, m.maxLen)
	return m
}

// Active returns the active conversation.
func (m *Manager) Active() *conversation.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// ActiveSessionID returns the stored session the active conversation came
// from, if any.
func (m *Manager) ActiveSessionID() (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.origin[m.active.Key()]
	return id, ok
}

// Busy reports whether the active conversation has a send in flight.
func (m *Manager) Busy() bool {
	return m.orch.Busy(m.Active())
}

// Sessions lists the archived sessions in creation order.
func (m *Manager) Sessions() []session.Session {
	return m.hist.Sessions()
}

// Send sends text on the conversation that is active right now. If that
// conversation is no longer active when the reply arrives, the reply is
// carried into its archived session.
//
// A *session.SaveError from that late write is returned together with a
// valid Outcome.
func (m *Manager) Send(ctx context.Context, text string) (Outcome, error) {
	conv := m.Active()
	out, err := m.orch.Send(ctx, conv, text)
	if err != nil {
		return out, err
	}
	return out, m.settleLate(ctx, conv)
}

// settleLate persists a reply that arrived after conv stopped being active.
func (m *Manager) settleLate(ctx context.Context, conv *conversation.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conv == m.active {
		return nil
	}

	key := conv.Key()
	turns := conv.Turns()
	log := m.log.WithField("conversation", key)

	if id, ok := m.origin[key]; ok {
		log.WithField("session", id).Info("late reply reconciled into history")
		return m.hist.Reconcile(ctx, id, turns)
	}
	if !m.deferred[key] {
		return nil
	}
	s, ok, err := m.hist.Archive(ctx, turns)
	if err != nil {
		return err
	}
	if ok {
		delete(m.deferred, key)
		m.origin[key] = s.ID
		log.WithField("session", s.ID).Info("late reply archived")
	} else if !conv.HasPending() {
		delete(m.deferred, key)
	}
	return nil
}

// retireLocked archives the active conversation if it holds anything worth
// keeping. On a save error nothing changes and the caller must not swap
// the active conversation.
func (m *Manager) retireLocked(ctx context.Context) error {
	conv := m.active
	key := conv.Key()
	turns := conv.Turns()

	if id, ok := m.origin[key]; ok {
		if n, wasLoaded := m.loaded[key]; wasLoaded && n == len(turns) && !conv.HasPending() {
			return nil
		}
		if err := m.hist.Reconcile(ctx, id, turns); err != nil {
			return err
		}
		delete(m.loaded, key)
		return nil
	}

	s, ok, err := m.hist.Archive(ctx, turns)
	if err != nil {
		return err
	}
	switch {
	case ok:
		m.origin[key] = s.ID
		m.log.WithFields(logrus.Fields{"session": s.ID, "title": s.Title}).Info("session archived")
	case conv.HasPending():
		m.deferred[key] = true
	}
	return nil
}

// StartNewSession archives the active conversation, when it has something
// to keep, and replaces it with an empty one. If the archive write fails
// the active conversation is kept and the *session.SaveError is returned.
func (m *Manager) StartNewSession(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.retireLocked(ctx); err != nil {
		return err
	}
	m.active = conversation.New(m.ids, m.maxLen)
	return nil
}

// SwitchToSession archives the active conversation and makes the stored
// session id active. Leaving it again updates that session instead of
// archiving a copy.
func (m *Manager) SwitchToSession(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.hist.Get(id)
	if !ok {
		return fmt.Errorf("session %d: %w", id, ErrUnknownSession)
	}
	if cur, ok := m.origin[m.active.Key()]; ok && cur == id {
		return nil
	}
	if m.awaitingLocked(id) {
		return fmt.Errorf("session %d: %w", id, ErrSessionBusy)
	}
	if err := m.retireLocked(ctx); err != nil {
		return err
	}

	conv := conversation.New(m.ids, m.maxLen)
	conv.Load(stored.Messages)
	m.origin[conv.Key()] = id
	m.loaded[conv.Key()] = len(stored.Messages)
	m.active = conv
	return nil
}

// awaitingLocked reports whether a conversation stored as session id still
// has a send in flight. Its reply will be reconciled into the stored copy,
// so loading that copy now would miss it.
func (m *Manager) awaitingLocked(id int64) bool {
	for key, sid := range m.origin {
		if sid == id && m.orch.busyKey(key) {
			return true
		}
	}
	return false
}

// DeleteSession removes a stored session. Deleting the session the active
// conversation came from detaches the conversation, so leaving it later
// archives it as a new session.
func (m *Manager) DeleteSession(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.hist.Get(id); !ok {
		return fmt.Errorf("session %d: %w", id, ErrUnknownSession)
	}
	if err := m.hist.Remove(ctx, id); err != nil {
		return err
	}
	for key, sid := range m.origin {
		if sid == id {
			delete(m.origin, key)
			delete(m.loaded, key)
		}
	}
	return nil
}

// ClearActive drops the active conversation without archiving it.
// A reply still in flight for it is discarded when it arrives.
func (m *Manager) ClearActive() {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv := m.active
	delete(m.origin, conv.Key())
	delete(m.loaded, conv.Key())
	if conv.HasPending() {
		m.active = conversation.New(m.ids, m.maxLen)
		return
	}
	conv.Clear()
}
