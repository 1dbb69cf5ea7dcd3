package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/draftsmith/internal/domain"
	"github.com/ashureev/draftsmith/internal/transport"
)

// stubStreamer replays fragments, pausing on gate between them when set.
// It deliberately ignores cancellation while emitting, like a slow network.
type stubStreamer struct {
	mu    sync.Mutex
	calls []domain.EditRequest
	plan  func(n int) (fragments []string, gate chan struct{}, err error)
}

func (s *stubStreamer) Stream(ctx context.Context, req domain.EditRequest, onChunk transport.ChunkFunc) (string, error) {
	s.mu.Lock()
	n := len(s.calls)
	s.calls = append(s.calls, req)
	s.mu.Unlock()

	fragments, gate, err := s.plan(n)
	var acc string
	for i, f := range fragments {
		if i > 0 && gate != nil {
			<-gate
		}
		acc += f
		onChunk(f)
	}
	if err != nil {
		return "", err
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return acc, nil
}

func (s *stubStreamer) request(i int) domain.EditRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[i]
}

func waitDone(t *testing.T, ex *Exchange) (string, error) {
	t.Helper()
	select {
	case <-ex.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("exchange did not finish")
	}
	return ex.Wait()
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "shorten this", Summary(domain.EditRequest{Instruction: "shorten this"}))
	assert.Equal(t, `Editing 2 target(s): Intro, "some text"`, Summary(domain.EditRequest{
		Instruction: "ignored",
		Targets:     []domain.EditTarget{{Label: "Intro"}, {Label: `"some text"`}},
	}))
}

func TestEditCompletionOverSSE(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range []transport.Event{
			transport.Chunk("Once"), transport.Chunk(" upon"), transport.Chunk(" a time."), transport.Done(),
		} {
			_ = transport.WriteSSE(w, ev)
			w.(http.Flusher).Flush()
		}
	}))
	defer srv.Close()

	completed := make(chan string, 1)
	o := New(transport.NewClient(srv.URL, nil, nil), func(r string) { completed <- r })

	ex := o.Send(context.Background(), domain.EditRequest{
		FullContent: "# Doc\nlong text",
		EditLevel:   domain.ScopeWhole,
		Mode:        domain.ModeEdit,
		Instruction: "shorten this",
	})
	got, err := waitDone(t, ex)
	require.NoError(t, err)
	assert.Equal(t, "Once upon a time.", got)
	assert.Equal(t, "Once upon a time.", <-completed)

	msgs := o.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.Equal(t, "shorten this", msgs[0].Content)
	assert.Equal(t, domain.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Once upon a time.", msgs[1].Content)
	assert.False(t, o.Streaming())
}

func TestUserTurnRecordedBeforeStreaming(t *testing.T) {
	gate := make(chan struct{})
	st := &stubStreamer{plan: func(int) ([]string, chan struct{}, error) {
		return []string{"a", "b"}, gate, nil
	}}
	o := New(st, nil)

	ex := o.Send(context.Background(), domain.EditRequest{Instruction: "go", EditLevel: domain.ScopeWhole, Mode: domain.ModeEdit})
	msgs := o.Messages()
	require.NotEmpty(t, msgs)
	assert.Equal(t, "go", msgs[0].Content)

	close(gate)
	_, err := waitDone(t, ex)
	require.NoError(t, err)
}

func TestAssistantMessageUpsertedNotDuplicated(t *testing.T) {
	st := &stubStreamer{plan: func(int) ([]string, chan struct{}, error) {
		return []string{"one ", "two ", "three"}, nil, nil
	}}
	o := New(st, nil)

	_, err := waitDone(t, o.Send(context.Background(), domain.EditRequest{Instruction: "hi", EditLevel: domain.ScopeChat, Mode: domain.ModeChat}))
	require.NoError(t, err)

	msgs := o.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "one two three", msgs[1].Content)
}

func TestSupersededFragmentsNeverMerged(t *testing.T) {
	gateA := make(chan struct{})
	st := &stubStreamer{plan: func(n int) ([]string, chan struct{}, error) {
		if n == 0 {
			return []string{"A1", "A2", "A3"}, gateA, nil
		}
		return []string{"B1", "B2"}, nil, nil
	}}

	var completions []string
	var cmu sync.Mutex
	o := New(st, func(r string) {
		cmu.Lock()
		completions = append(completions, r)
		cmu.Unlock()
	})

	exA := o.Send(context.Background(), domain.EditRequest{Instruction: "first", EditLevel: domain.ScopeWhole, Mode: domain.ModeEdit})
	require.Eventually(t, func() bool {
		for _, m := range o.Messages() {
			if m.Content == "A1" {
				return true
			}
		}
		return false
	}, 5*time.Second, 5*time.Millisecond)

	exB := o.Send(context.Background(), domain.EditRequest{Instruction: "second", EditLevel: domain.ScopeWhole, Mode: domain.ModeEdit})
	gotB, err := waitDone(t, exB)
	require.NoError(t, err)
	assert.Equal(t, "B1B2", gotB)

	// A keeps emitting after being superseded.
	close(gateA)
	_, errA := waitDone(t, exA)
	assert.ErrorIs(t, errA, context.Canceled)

	for _, m := range o.Messages() {
		assert.NotContains(t, m.Content, "A2")
		assert.NotContains(t, m.Content, "A3")
	}
	cmu.Lock()
	defer cmu.Unlock()
	assert.Equal(t, []string{"B1B2"}, completions)
}

func TestCompletionSkippedWhenSupersededAfterStream(t *testing.T) {
	st := &stubStreamer{plan: func(n int) ([]string, chan struct{}, error) {
		if n == 0 {
			return []string{"stale"}, nil, nil
		}
		return []string{"fresh"}, nil, nil
	}}

	var completions []string
	var cmu sync.Mutex
	o := New(st, func(r string) {
		cmu.Lock()
		completions = append(completions, r)
		cmu.Unlock()
	})

	// A's stream has already succeeded when B is sent.
	var once sync.Once
	var exB *Exchange
	o.beforeComplete = func() {
		once.Do(func() {
			exB = o.Send(context.Background(), domain.EditRequest{Instruction: "second", EditLevel: domain.ScopeWhole, Mode: domain.ModeEdit})
		})
	}

	exA := o.Send(context.Background(), domain.EditRequest{Instruction: "first", EditLevel: domain.ScopeWhole, Mode: domain.ModeEdit})
	_, errA := waitDone(t, exA)
	assert.ErrorIs(t, errA, context.Canceled)

	require.NotNil(t, exB)
	gotB, err := waitDone(t, exB)
	require.NoError(t, err)
	assert.Equal(t, "fresh", gotB)

	cmu.Lock()
	defer cmu.Unlock()
	assert.Equal(t, []string{"fresh"}, completions)
}

func TestCancelIsSilent(t *testing.T) {
	gate := make(chan struct{})
	st := &stubStreamer{plan: func(int) ([]string, chan struct{}, error) {
		return []string{"x", "y"}, gate, nil
	}}
	called := false
	o := New(st, func(string) { called = true })

	ex := o.Send(context.Background(), domain.EditRequest{Instruction: "go", EditLevel: domain.ScopeWhole, Mode: domain.ModeEdit})
	require.Eventually(t, func() bool { return len(o.Messages()) == 2 }, 5*time.Second, 5*time.Millisecond)

	o.Cancel()
	close(gate)
	_, err := waitDone(t, ex)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)

	msgs := o.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "x", msgs[1].Content)
	assert.False(t, o.Streaming())
}

func TestErrorAppendsMessage(t *testing.T) {
	st := &stubStreamer{plan: func(int) ([]string, chan struct{}, error) {
		return []string{"partial"}, nil, &transport.RemoteError{Message: "model overloaded"}
	}}
	called := false
	o := New(st, func(string) { called = true })

	_, err := waitDone(t, o.Send(context.Background(), domain.EditRequest{Instruction: "go", EditLevel: domain.ScopeWhole, Mode: domain.ModeEdit}))
	var re *transport.RemoteError
	require.True(t, errors.As(err, &re))
	assert.False(t, called)

	msgs := o.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "Error: model overloaded", msgs[2].Content)
	assert.Equal(t, domain.RoleAssistant, msgs[2].Role)
}

func TestChatCarriesPriorTurnsAndSkipsCompletion(t *testing.T) {
	st := &stubStreamer{plan: func(n int) ([]string, chan struct{}, error) {
		return []string{fmt.Sprintf("reply %d", n)}, nil, nil
	}}
	called := false
	o := New(st, func(string) { called = true })

	chat := func(msg string) domain.EditRequest {
		return domain.EditRequest{FullContent: "doc", EditLevel: domain.ScopeChat, Mode: domain.ModeChat, Instruction: msg}
	}
	_, err := waitDone(t, o.Send(context.Background(), chat("hello")))
	require.NoError(t, err)
	_, err = waitDone(t, o.Send(context.Background(), chat("again")))
	require.NoError(t, err)

	assert.Empty(t, st.request(0).History)
	assert.Equal(t, []domain.HistoryEntry{
		{Role: domain.RoleUser, Content: "hello"},
		{Role: domain.RoleAssistant, Content: "reply 0"},
	}, st.request(1).History)
	assert.False(t, called)
	assert.Len(t, o.Messages(), 4)
}

func TestClearDiscardsTurns(t *testing.T) {
	st := &stubStreamer{plan: func(int) ([]string, chan struct{}, error) {
		return []string{"r"}, nil, nil
	}}
	o := New(st, nil)
	_, err := waitDone(t, o.Send(context.Background(), domain.EditRequest{Instruction: "q", EditLevel: domain.ScopeChat, Mode: domain.ModeChat}))
	require.NoError(t, err)

	o.Clear()
	assert.Empty(t, o.Messages())

	_, err = waitDone(t, o.Send(context.Background(), domain.EditRequest{Instruction: "q2", EditLevel: domain.ScopeChat, Mode: domain.ModeChat}))
	require.NoError(t, err)
	assert.Empty(t, st.request(1).History)
}

func TestFragmentObserver(t *testing.T) {
	st := &stubStreamer{plan: func(int) ([]string, chan struct{}, error) {
		return []string{"a", "b"}, nil, nil
	}}
	var seen []string
	o := New(st, nil, WithFragmentFunc(func(f string) { seen = append(seen, f) }))

	_, err := waitDone(t, o.Send(context.Background(), domain.EditRequest{Instruction: "q", EditLevel: domain.ScopeWhole, Mode: domain.ModeEdit}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, seen)
}
