package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manimchat/manimchat/internal/backend"
	"github.com/manimchat/manimchat/internal/conversation"
)

// genFunc adapts a function to Generator.
type genFunc func(ctx context.Context, messages []backend.Message) (backend.Reply, error)

func (f genFunc) Generate(ctx context.Context, messages []backend.Message) (backend.Reply, error) {
	return f(ctx, messages)
}

func replyWith(r backend.Reply, err error) genFunc {
	return func(context.Context, []backend.Message) (backend.Reply, error) { return r, err }
}

// gate is a Generator that blocks until released, recording each payload.
type gate struct {
	started chan []backend.Message
	release chan backend.Reply
}

func newGate() *gate {
	return &gate{started: make(chan []backend.Message, 4), release: make(chan backend.Reply)}
}

func (g *gate) Generate(ctx context.Context, messages []backend.Message) (backend.Reply, error) {
	g.started <- messages
	return <-g.release, nil
}

type recorder struct {
	mu      sync.Mutex
	events  []string
	settled []conversation.Turn
}

func (r *recorder) TurnAppended(_ string, t conversation.Turn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status := string(t.Status)
	if t.IsUser() {
		status = "user"
	}
	r.events = append(r.events, "append:"+status)
}

func (r *recorder) TurnSettled(_ string, t conversation.Turn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "settle:"+string(t.Status))
	r.settled = append(r.settled, t)
}

func TestBuildPayload(t *testing.T) {
	turns := []conversation.Turn{
		{ID: 1, Role: conversation.RoleUser, Text: "A"},
		{ID: 2, Role: conversation.RoleAssistant, Status: conversation.StatusResolved,
			Result: &conversation.Result{Kind: conversation.ResultText, Content: "B"}},
	}
	got := BuildPayload(turns, "C")
	assert.Equal(t, []backend.Message{
		{Role: backend.RoleUser, Content: "A"},
		{Role: backend.RoleAssistant, Content: "B"},
		{Role: backend.RoleUser, Content: "C"},
	}, got)
}

func TestBuildPayload_SkipsUnsettledAndSummarizesAnimations(t *testing.T) {
	turns := []conversation.Turn{
		{ID: 1, Role: conversation.RoleUser, Text: "bounce a ball"},
		{ID: 2, Role: conversation.RoleAssistant, Status: conversation.StatusResolved,
			Result: &conversation.Result{Kind: conversation.ResultAnimation, VideoURL: "/media/b.mp4", SceneName: "BouncingBall"}},
		{ID: 3, Role: conversation.RoleUser, Text: "slower"},
		{ID: 4, Role: conversation.RoleAssistant, Status: conversation.StatusFailed, Error: "render failed"},
		{ID: 5, Role: conversation.RoleUser, Text: "still there?"},
		{ID: 6, Role: conversation.RoleAssistant, Status: conversation.StatusPending},
	}
	got := BuildPayload(turns, "next")
	assert.Equal(t, []backend.Message{
		{Role: backend.RoleUser, Content: "bounce a ball"},
		{Role: backend.RoleAssistant, Content: "[Generated animation: BouncingBall]"},
		{Role: backend.RoleUser, Content: "slower"},
		{Role: backend.RoleUser, Content: "still there?"},
		{Role: backend.RoleUser, Content: "next"},
	}, got)
}

func TestSend_ResolvesText(t *testing.T) {
	var sent []backend.Message
	gen := genFunc(func(_ context.Context, m []backend.Message) (backend.Reply, error) {
		sent = m
		return backend.TextReply("B"), nil
	})
	rec := &recorder{}
	o := New(gen, WithObserver(rec))
	conv := conversation.New(nil, 0)

	out, err := o.Send(context.Background(), conv, "  A  ")
	require.NoError(t, err)
	assert.False(t, out.Failed())
	assert.Equal(t, "A", out.User.Text)
	require.NotNil(t, out.Assistant.Result)
	assert.Equal(t, conversation.TextResult("B"), *out.Assistant.Result)
	assert.Equal(t, []backend.Message{{Role: backend.RoleUser, Content: "A"}}, sent)
	assert.Equal(t, []string{"append:user", "append:pending", "settle:resolved"}, rec.events)

	turns := conv.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, conversation.StatusResolved, turns[1].Status)
}

func TestSend_ResolvesAnimation(t *testing.T) {
	o := New(replyWith(backend.AnimationReply("/media/videos/s/480p15/Wave.mp4", "Wave"), nil))
	conv := conversation.New(nil, 0)

	out, err := o.Send(context.Background(), conv, "draw a sine wave")
	require.NoError(t, err)
	require.NotNil(t, out.Assistant.Result)
	assert.Equal(t, conversation.ResultAnimation, out.Assistant.Result.Kind)
	assert.Equal(t, "Wave", out.Assistant.Result.SceneName)
}

func TestSend_SecondTurnCarriesContext(t *testing.T) {
	var payloads [][]backend.Message
	replies := []backend.Reply{backend.TextReply("B"), backend.TextReply("D")}
	gen := genFunc(func(_ context.Context, m []backend.Message) (backend.Reply, error) {
		payloads = append(payloads, m)
		r := replies[0]
		replies = replies[1:]
		return r, nil
	})
	o := New(gen)
	conv := conversation.New(nil, 0)

	_, err := o.Send(context.Background(), conv, "A")
	require.NoError(t, err)
	_, err = o.Send(context.Background(), conv, "C")
	require.NoError(t, err)

	require.Len(t, payloads, 2)
	assert.Equal(t, []backend.Message{
		{Role: backend.RoleUser, Content: "A"},
		{Role: backend.RoleAssistant, Content: "B"},
		{Role: backend.RoleUser, Content: "C"},
	}, payloads[1])
}

func TestSend_RejectsInvalidInputWithoutCalling(t *testing.T) {
	called := false
	gen := genFunc(func(context.Context, []backend.Message) (backend.Reply, error) {
		called = true
		return backend.TextReply("x"), nil
	})
	o := New(gen)
	conv := conversation.New(nil, 10)

	for _, text := range []string{"", "   \n\t", strings.Repeat("x", 11)} {
		_, err := o.Send(context.Background(), conv, text)
		var ve *conversation.ValidationError
		require.ErrorAs(t, err, &ve)
	}
	assert.False(t, called)
	assert.Zero(t, conv.Len())
}

func TestSend_RejectsWhileInFlight(t *testing.T) {
	g := newGate()
	o := New(g)
	conv := conversation.New(nil, 0)

	done := make(chan Outcome)
	go func() {
		out, err := o.Send(context.Background(), conv, "first")
		assert.NoError(t, err)
		done <- out
	}()
	<-g.started

	assert.True(t, o.Busy(conv))
	_, err := o.Send(context.Background(), conv, "second")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, 2, conv.Len(), "rejected send leaves the conversation unchanged")

	other := conversation.New(nil, 0)
	assert.False(t, o.Busy(other), "exclusivity is per conversation")

	g.release <- backend.TextReply("ok")
	out := <-done
	assert.True(t, out.Assistant.IsResolved())
	assert.False(t, o.Busy(conv), "released after completion")
}

func TestSend_FailuresBecomeFailedTurns(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"network", &backend.NetworkError{Err: errors.New("connection refused")}, backend.GenericFailureMessage},
		{"detail", &backend.BackendError{Status: 500, Detail: "No Scene class found"}, "No Scene class found"},
		{"no detail", &backend.BackendError{Status: 503}, backend.GenericFailureMessage},
		{"malformed", &backend.MalformedResponseError{Reason: "missing type tag"}, backend.GenericFailureMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			o := New(replyWith(backend.Reply{}, tt.err), WithObserver(rec))
			conv := conversation.New(nil, 0)

			out, err := o.Send(context.Background(), conv, "hello")
			require.NoError(t, err)
			assert.True(t, out.Failed())
			assert.Equal(t, tt.want, out.Assistant.Error)
			assert.ErrorIs(t, out.Err, tt.err)
			assert.False(t, o.Busy(conv))
			assert.Equal(t, "settle:failed", rec.events[len(rec.events)-1])
		})
	}
}

func TestSend_UnknownReplyTagFails(t *testing.T) {
	o := New(replyWith(backend.Reply{Type: "video"}, nil))
	conv := conversation.New(nil, 0)

	out, err := o.Send(context.Background(), conv, "hello")
	require.NoError(t, err)
	assert.True(t, out.Failed())
	assert.NotEmpty(t, out.Assistant.Error)
}

func TestSend_CanContinueAfterFailure(t *testing.T) {
	fail := true
	gen := genFunc(func(context.Context, []backend.Message) (backend.Reply, error) {
		if fail {
			fail = false
			return backend.Reply{}, &backend.NetworkError{Err: errors.New("down")}
		}
		return backend.TextReply("back"), nil
	})
	o := New(gen)
	conv := conversation.New(nil, 0)

	_, err := o.Send(context.Background(), conv, "one")
	require.NoError(t, err)
	out, err := o.Send(context.Background(), conv, "two")
	require.NoError(t, err)
	assert.True(t, out.Assistant.IsResolved())
	assert.Equal(t, 4, conv.Len())
}
