package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/ashureev/draftsmith/internal/domain"
	"github.com/ashureev/draftsmith/internal/model"
	"github.com/ashureev/draftsmith/internal/orchestrator"
	"github.com/ashureev/draftsmith/internal/workspace"
	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	var useWS bool

	cmd := &cobra.Command{
		Use:   "chat FILE",
		Short: "Discuss a document with the model",
		Long: "Starts an interactive conversation about FILE. The document is never modified.\n" +
			"Type /clear to forget the conversation, /quit or end of input to leave.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			ws := workspace.New(string(data))
			id, err := model.ParseID(modelName)
			if err != nil {
				return err
			}
			ws.SetModel(id)
			if err := ws.SetScope(domain.ScopeChat); err != nil {
				return err
			}
			return runChat(cmd.Context(), ws, newStreamer(useWS), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&useWS, "ws", false, "stream over WebSocket instead of SSE")
	return cmd
}

// runChat reads one message per line from in until /quit or EOF. An
// interrupt cancels the reply in flight without leaving the session.
func runChat(ctx context.Context, ws *workspace.Workspace, streamer orchestrator.Streamer, in io.Reader, out io.Writer) error {
	orch := orchestrator.New(streamer, nil,
		orchestrator.WithLogger(logger),
		orchestrator.WithFragmentFunc(func(fragment string) { fmt.Fprint(out, fragment) }),
	)

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)
	done := make(chan struct{})
	defer close(done)
	cancelOnSignal(interrupts, done, orch.Cancel)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			orch.Clear()
			fmt.Fprintln(out, "conversation cleared")
			continue
		}

		req, err := ws.BuildRequest(line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		_, err = orch.Send(ctx, req).Wait()
		fmt.Fprintln(out)
		switch {
		case errors.Is(err, context.Canceled):
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(out, "(cancelled)")
		case err != nil:
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}
}

// cancelOnSignal calls cancel for every value received on sig until done is
// closed. The returned channel is closed once the watcher has exited.
func cancelOnSignal(sig <-chan os.Signal, done <-chan struct{}, cancel func()) <-chan struct{} {
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		for {
			select {
			case <-sig:
				cancel()
			case <-done:
				return
			}
		}
	}()
	return exited
}
