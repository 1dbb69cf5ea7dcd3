package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/ashureev/draftsmith/internal/document"
	"github.com/ashureev/draftsmith/internal/domain"
	"github.com/ashureev/draftsmith/internal/model"
	"github.com/ashureev/draftsmith/internal/orchestrator"
	"github.com/ashureev/draftsmith/internal/transport"
	"github.com/ashureev/draftsmith/internal/workspace"
	"github.com/spf13/cobra"
)

func newSectionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sections FILE",
		Short: "List the heading-delimited sections of a markdown file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			writeSections(cmd.OutOrStdout(), document.Parse(string(data)))
			return nil
		},
	}
}

// newStreamer picks the edit transport.
func newStreamer(useWS bool) orchestrator.Streamer {
	if useWS {
		return transport.NewWSClient(serverURL, logger)
	}
	return transport.NewClient(serverURL, nil, logger)
}

// liveWriter returns where fragments are echoed while streaming, or nil
// when output is not a terminal.
func liveWriter(w io.Writer) func(string) {
	if !isTerminal(w) {
		return nil
	}
	return func(fragment string) {
		fmt.Fprint(w, fragment)
	}
}

// editOptions collects the edit command's flags.
type editOptions struct {
	instruction       string
	sections          []string
	selections        []string
	targetInstruction string
	scope             string
	yes               bool
	useWS             bool
	save              bool
}

func newEditCmd() *cobra.Command {
	var opts editOptions

	cmd := &cobra.Command{
		Use:   "edit FILE",
		Short: "Rewrite a file, or parts of it, and review the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runEdit(ctx, cmd, args[0], opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.instruction, "instruction", "i", "", "editing instruction (required)")
	flags.StringArrayVarP(&opts.sections, "section", "s", nil, "target a section by id or heading title (repeatable)")
	flags.StringArrayVar(&opts.selections, "selection", nil, "target a from:to rune range (repeatable)")
	flags.StringVar(&opts.targetInstruction, "target-instruction", "", "additional instruction applied to every target")
	flags.StringVar(&opts.scope, "scope", "", "edit scope: whole, section or selection (inferred from targets)")
	flags.BoolVarP(&opts.yes, "yes", "y", false, "accept the proposed edit without asking")
	flags.BoolVar(&opts.useWS, "ws", false, "stream over WebSocket instead of SSE")
	flags.BoolVar(&opts.save, "save", false, "save the accepted document as a version")
	_ = cmd.MarkFlagRequired("instruction")

	return cmd
}

// prepareWorkspace loads targets and scope from opts into ws.
func prepareWorkspace(ws *workspace.Workspace, opts editOptions) error {
	id, err := model.ParseID(modelName)
	if err != nil {
		return err
	}
	ws.SetModel(id)

	scope := domain.Scope(opts.scope)
	if scope == "" {
		switch {
		case len(opts.sections) > 0:
			scope = domain.ScopeSection
		case len(opts.selections) > 0:
			scope = domain.ScopeSelection
		default:
			scope = domain.ScopeWhole
		}
	}
	if scope == domain.ScopeChat {
		return errors.New("use the chat command for conversations")
	}
	if err := ws.SetScope(scope); err != nil {
		return err
	}

	for _, ref := range opts.sections {
		s, err := resolveSection(ws.Content(), ref)
		if err != nil {
			return err
		}
		if _, err := ws.ToggleSection(s.ID); err != nil {
			return err
		}
	}
	for _, sel := range opts.selections {
		from, to, err := parseSelection(sel)
		if err != nil {
			return err
		}
		if _, err := ws.AddSelection(from, to); err != nil {
			return err
		}
	}
	if opts.targetInstruction != "" {
		for _, t := range ws.Targets() {
			if err := ws.SetTargetInstruction(t.ID, opts.targetInstruction); err != nil {
				return err
			}
		}
	}
	return nil
}

func runEdit(ctx context.Context, cmd *cobra.Command, path string, opts editOptions) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	ws := workspace.New(string(data))
	if err := prepareWorkspace(ws, opts); err != nil {
		return err
	}
	req, err := ws.BuildRequest(opts.instruction)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	live := liveWriter(errOut)

	var orchOpts []orchestrator.Option
	orchOpts = append(orchOpts, orchestrator.WithLogger(logger))
	if live != nil {
		orchOpts = append(orchOpts, orchestrator.WithFragmentFunc(live))
	}
	orch := orchestrator.New(newStreamer(opts.useWS), ws.SetPending, orchOpts...)

	fmt.Fprintln(errOut, orchestrator.Summary(req))
	if _, err := orch.Send(ctx, req).Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			return errAborted
		}
		return err
	}
	if live != nil {
		fmt.Fprintln(errOut)
	}

	proposed, ok := ws.Pending()
	if !ok {
		return errors.New("server returned no edit")
	}
	diff, err := unifiedDiff(path, ws.Content(), proposed)
	if err != nil {
		return err
	}
	if diff == "" {
		fmt.Fprintln(errOut, "no changes proposed")
		return ws.Reject()
	}
	fmt.Fprint(out, diff)

	accept := opts.yes
	if !accept {
		accept, err = confirm(bufio.NewReader(cmd.InOrStdin()), errOut, "Accept this edit?")
		if err != nil {
			return err
		}
	}
	if !accept {
		fmt.Fprintln(errOut, "edit rejected")
		return ws.Reject()
	}

	content, err := ws.Accept()
	if err != nil {
		return err
	}
	if err := writeFileKeepMode(path, content); err != nil {
		return err
	}
	fmt.Fprintf(errOut, "wrote %s (%s)\n", path, ws.Hash())

	if opts.save {
		meta, err := versionsClient().Save(ctx, content)
		if err != nil {
			return fmt.Errorf("save version: %w", err)
		}
		if meta == nil {
			fmt.Fprintln(errOut, "version unchanged")
		} else {
			fmt.Fprintf(errOut, "saved %s\n", meta.Label)
		}
	}
	return nil
}
