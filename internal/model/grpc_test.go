package model_test

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/ashureev/draftsmith/internal/model"
	"github.com/ashureev/draftsmith/internal/model/modeltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

func startGenerator(t *testing.T, st model.Streamer) *model.GRPCStreamer {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	model.RegisterGenerator(srv, st)
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	client, err := model.NewGRPCStreamer("passthrough:///bufnet", nil,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestGRPCStreamer_RoundTrip(t *testing.T) {
	backend := &modeltest.Scripted{Fragments: []string{"Once", " upon", " a time."}}
	client := startGenerator(t, backend)

	require.NoError(t, client.WaitForReady(context.Background()))

	frags, err := collect(t, client, model.Generation{Prompt: "shorten this", System: "sys", Model: "sonnet"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Once", " upon", " a time."}, frags)

	calls := backend.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, model.Generation{Prompt: "shorten this", System: "sys", Model: "sonnet"}, calls[0])
}

func TestGRPCStreamer_RemoteError(t *testing.T) {
	backend := &modeltest.Scripted{Fragments: []string{"partial"}, Err: errors.New("quota exhausted")}
	client := startGenerator(t, backend)

	frags, err := collect(t, client, model.Generation{Prompt: "p"})
	assert.Equal(t, []string{"partial"}, frags)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrStream)
	assert.Contains(t, err.Error(), "quota exhausted")
}

func TestGRPCStreamer_EmptyPromptRejected(t *testing.T) {
	client := startGenerator(t, &modeltest.Scripted{})

	_, err := collect(t, client, model.Generation{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prompt is required")
}
