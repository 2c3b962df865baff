package conversation

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendUser_AssignsMonotonicIDs(t *testing.T) {
	c := New(NewIDAllocator(10), 0)

	a, err := c.AppendUser("first")
	require.NoError(t, err)
	id := c.AppendPendingAssistant()
	b, err := c.AppendUser("  second  ")
	require.NoError(t, err)

	assert.Equal(t, int64(10), a.ID)
	assert.Equal(t, int64(11), id)
	assert.Equal(t, int64(12), b.ID)
	assert.Equal(t, "second", b.Text, "text should be trimmed")
	assert.Equal(t, 3, c.Len())
}

func TestAppendUser_RejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		text string
		want error
	}{
		{"empty", "", ErrEmptyMessage},
		{"whitespace", " \n\t ", ErrEmptyMessage},
		{"too long", strings.Repeat("x", 1001), ErrMessageTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(nil, 1000)
			_, err := c.AppendUser(tt.text)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var verr *ValidationError
			assert.True(t, errors.As(err, &verr))
			assert.Equal(t, 0, c.Len(), "rejected input must not mutate the conversation")
		})
	}
}

func TestAppendUser_LengthBoundCountsCharacters(t *testing.T) {
	c := New(nil, 5)

	_, err := c.AppendUser("θθθθθ")
	assert.NoError(t, err, "five runes fit a five character bound")

	_, err = c.AppendUser("θθθθθθ")
	assert.ErrorIs(t, err, ErrMessageTooLong)
}

func TestResolve_TransitionsOnce(t *testing.T) {
	c := New(nil, 0)
	_, _ = c.AppendUser("explain recursion")
	id := c.AppendPendingAssistant()
	assert.True(t, c.HasPending())

	require.NoError(t, c.Resolve(id, TextResult("a function calling itself")))

	turn, ok := c.Turn(id)
	require.True(t, ok)
	assert.Equal(t, StatusResolved, turn.Status)
	require.NotNil(t, turn.Result)
	assert.Equal(t, "a function calling itself", turn.Result.Content)
	assert.False(t, c.HasPending())

	err := c.Resolve(id, TextResult("again"))
	assert.ErrorIs(t, err, ErrTurnNotPending)
	err = c.Fail(id, "late failure")
	assert.ErrorIs(t, err, ErrTurnNotPending)

	turn, _ = c.Turn(id)
	assert.Equal(t, StatusResolved, turn.Status, "resolved turns never change again")
	assert.Empty(t, turn.Error)
}

func TestFail_TransitionsOnce(t *testing.T) {
	c := New(nil, 0)
	id := c.AppendPendingAssistant()

	require.NoError(t, c.Fail(id, "backend unavailable"))
	turn, _ := c.Turn(id)
	assert.Equal(t, StatusFailed, turn.Status)
	assert.Equal(t, "backend unavailable", turn.Error)

	assert.ErrorIs(t, c.Resolve(id, TextResult("x")), ErrTurnNotPending)
	turn, _ = c.Turn(id)
	assert.Equal(t, StatusFailed, turn.Status)
}

func TestResolve_UnknownOrUserTurn(t *testing.T) {
	c := New(nil, 0)
	u, _ := c.AppendUser("hi")

	assert.ErrorIs(t, c.Resolve(999, TextResult("x")), ErrTurnNotFound)
	assert.ErrorIs(t, c.Fail(u.ID, "x"), ErrTurnNotFound, "user turns cannot be settled")
}

func TestResolve_RejectsInvalidResult(t *testing.T) {
	c := New(nil, 0)
	id := c.AppendPendingAssistant()

	err := c.Resolve(id, Result{Kind: "video"})
	require.Error(t, err)
	err = c.Resolve(id, AnimationResult("", "Scene"))
	require.Error(t, err)

	turn, _ := c.Turn(id)
	assert.Equal(t, StatusPending, turn.Status)
}

func TestReset_ReturnsSnapshotAndClears(t *testing.T) {
	c := New(nil, 0)
	_, _ = c.AppendUser("one")
	id := c.AppendPendingAssistant()
	_ = c.Resolve(id, AnimationResult("/media/a.mp4", "A"))

	snap := c.Reset()
	assert.Len(t, snap, 2)
	assert.Equal(t, 0, c.Len())

	// New turns keep allocating from the same sequence.
	u, _ := c.AppendUser("two")
	assert.Equal(t, int64(3), u.ID)
}

func TestClear(t *testing.T) {
	c := New(nil, 0)
	_, _ = c.AppendUser("one")
	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestLoad_AdvancesAllocator(t *testing.T) {
	ids := NewIDAllocator(1)
	c := New(ids, 0)
	c.Load([]Turn{
		{ID: 40, Role: RoleUser, Text: "stored"},
		{ID: 41, Role: RoleAssistant, Status: StatusResolved, Result: &Result{Kind: ResultText, Content: "ok"}},
	})

	u, err := c.AppendUser("next")
	require.NoError(t, err)
	assert.Equal(t, int64(42), u.ID)
}

func TestTurns_ReturnsCopies(t *testing.T) {
	c := New(nil, 0)
	id := c.AppendPendingAssistant()
	_ = c.Resolve(id, TextResult("original"))

	turns := c.Turns()
	turns[0].Result.Content = "mutated"

	turn, _ := c.Turn(id)
	assert.Equal(t, "original", turn.Result.Content)
}

func TestCompleted_DropsPendingOnly(t *testing.T) {
	turns := []Turn{
		{ID: 1, Role: RoleUser, Text: "a"},
		{ID: 2, Role: RoleAssistant, Status: StatusResolved, Result: &Result{Kind: ResultText}},
		{ID: 3, Role: RoleUser, Text: "b"},
		{ID: 4, Role: RoleAssistant, Status: StatusFailed, Error: "boom"},
		{ID: 5, Role: RoleUser, Text: "c"},
		{ID: 6, Role: RoleAssistant, Status: StatusPending},
	}

	got := Completed(turns)
	ids := make([]int64, 0, len(got))
	for _, t := range got {
		ids = append(ids, t.ID)
	}
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids)
	assert.True(t, HasResolved(turns))
	assert.False(t, HasResolved(turns[2:]))
}

func TestConcurrentSettle_OnlyOneWins(t *testing.T) {
	c := New(nil, 0)
	id := c.AppendPendingAssistant()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				err = c.Resolve(id, TextResult("ok"))
			} else {
				err = c.Fail(id, "no")
			}
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestIDAllocator(t *testing.T) {
	a := NewIDAllocator(5)
	assert.Equal(t, int64(5), a.Next())
	assert.Equal(t, int64(6), a.Peek())

	a.Advance(3)
	assert.Equal(t, int64(6), a.Next(), "advance never moves backwards")

	a.Advance(100)
	assert.Equal(t, int64(101), a.Next())

	a.Reset(1)
	assert.Equal(t, int64(1), a.Next())
}
