// Package orchestrator turns user messages into backend calls and backend
// replies into resolved or failed assistant turns. It also owns the session
// lifecycle: which conversation is active and when it is archived.
package orchestrator

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/manimchat/manimchat/internal/backend"
	"github.com/manimchat/manimchat/internal/conversation"
	"github.com/manimchat/manimchat/internal/logging"
)

// ErrBusy rejects a send while another one on the same conversation is
// still waiting for the backend.
var ErrBusy = errors.New("a request is already in flight for this conversation")

// Generator performs one backend call. *backend.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, messages []backend.Message) (backend.Reply, error)
}

// Observer is notified as turns appear and settle, so a UI can show
// progress before the backend answers. Calls are made synchronously from
// the sending goroutine.
type Observer interface {
	TurnAppended(conversationKey string, t conversation.Turn)
	TurnSettled(conversationKey string, t conversation.Turn)
}

type nopObserver struct{}

func (nopObserver) TurnAppended(string, conversation.Turn) {}
func (nopObserver) TurnSettled(string, conversation.Turn)  {}

// Outcome describes a completed send. Assistant is the paired turn in its
// final state (resolved or failed).
type Outcome struct {
	ConversationKey string
	User            conversation.Turn
	Assistant       conversation.Turn
	// Err is the backend failure behind a failed turn, nil when resolved.
	Err error
}

// Failed reports whether the backend call ended in a failed turn.
func (o Outcome) Failed() bool { return o.Assistant.IsFailed() }

// Orchestrator issues exactly one backend call per user message.
type Orchestrator struct {
	gen Generator
	obs Observer
	log logrus.FieldLogger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithObserver registers the turn observer.
func WithObserver(o Observer) Option {
	return func(orch *Orchestrator) {
		if o != nil {
			orch.obs = o
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(orch *Orchestrator) {
		if l != nil {
			orch.log = l
		}
	}
}

// New creates an Orchestrator around gen.
func New(gen Generator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gen:      gen,
		obs:      nopObserver{},
		log:      logging.Discard(),
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Busy reports whether conv has a send in flight.
func (o *Orchestrator) Busy(conv *conversation.Conversation) bool {
	return o.busyKey(conv.Key())
}

func (o *Orchestrator) busyKey(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.inflight[key]
	return ok
}

func (o *Orchestrator) acquire(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.inflight[key]; ok {
		return false
	}
	o.inflight[key] = struct{}{}
	return true
}

func (o *Orchestrator) release(key string) {
	o.mu.Lock()
	delete(o.inflight, key)
	o.mu.Unlock()
}

// Send validates text, appends the user turn and a pending assistant turn to
// conv, calls the backend once and settles the assistant turn.
//
// The returned error is non-nil only when the message was rejected before
// anything was appended: a *conversation.ValidationError or ErrBusy.
// Backend failures end up in a failed turn and in Outcome.Err.
//
// conv is fixed for the whole call. If the caller makes another
// conversation active in the meantime, the reply still lands on conv.
func (o *Orchestrator) Send(ctx context.Context, conv *conversation.Conversation, text string) (Outcome, error) {
	trimmed, err := conversation.Validate(text, conv.MaxLength())
	if err != nil {
		return Outcome{}, err
	}

	key := conv.Key()
	if !o.acquire(key) {
		return Outcome{}, ErrBusy
	}
	defer o.release(key)

	payload := BuildPayload(conv.Turns(), trimmed)

	userTurn, err := conv.AppendUser(trimmed)
	if err != nil {
		return Outcome{}, err
	}
	o.obs.TurnAppended(key, userTurn)

	pendingID := conv.AppendPendingAssistant()
	pending, _ := conv.Turn(pendingID)
	o.obs.TurnAppended(key, pending)

	log := o.log.WithFields(logrus.Fields{"conversation": key, "turn": pendingID})
	log.WithField("messages", len(payload)).Debug("dispatching")

	out := Outcome{ConversationKey: key, User: userTurn}
	reply, callErr := o.gen.Generate(ctx, payload)
	if callErr == nil {
		var result conversation.Result
		result, callErr = resultFromReply(reply)
		if callErr == nil {
			callErr = conv.Resolve(pendingID, result)
		}
	}
	if callErr != nil {
		out.Err = callErr
		msg := backend.UserMessage(callErr)
		if err := conv.Fail(pendingID, msg); err != nil {
			log.WithError(err).Error("could not fail turn")
		}
		log.WithError(callErr).Info("turn failed")
	} else {
		log.WithField("kind", reply.Type).Debug("turn resolved")
	}

	out.Assistant, _ = conv.Turn(pendingID)
	o.obs.TurnSettled(key, out.Assistant)
	return out, nil
}
