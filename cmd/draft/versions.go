package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ashureev/draftsmith/internal/domain"
	"github.com/ashureev/draftsmith/internal/store"
	"github.com/ashureev/draftsmith/internal/version"
	"github.com/spf13/cobra"
)

func newVersionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "versions",
		Short: "Manage the server's version history",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List saved versions, oldest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				metas, err := versionsClient().List(cmd.Context())
				if err != nil {
					return err
				}
				return writeVersions(cmd.OutOrStdout(), metas)
			},
		},
		&cobra.Command{
			Use:   "save FILE",
			Short: "Save FILE as a new version unless it matches the latest",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				meta, err := versionsClient().Save(cmd.Context(), string(data))
				if err != nil {
					return err
				}
				if meta == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "unchanged since the latest version")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", meta.ID, meta.Label, meta.Hash)
				return nil
			},
		},
		&cobra.Command{
			Use:   "show ID",
			Short: "Print the content of a version",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				content, err := fetchVersion(cmd, args[0])
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), content)
				return nil
			},
		},
		&cobra.Command{
			Use:   "diff ID FILE",
			Short: "Show how FILE differs from a version",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				content, err := fetchVersion(cmd, args[0])
				if err != nil {
					return err
				}
				data, err := os.ReadFile(args[1])
				if err != nil {
					return err
				}
				diff, err := unifiedDiff(args[1], content, string(data))
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), diff)
				return nil
			},
		},
		&cobra.Command{
			Use:   "restore ID FILE",
			Short: "Overwrite FILE with the content of a version",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				content, err := fetchVersion(cmd, args[0])
				if err != nil {
					return err
				}
				if err := writeFileKeepMode(args[1], content); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "restored %s into %s\n", args[0], args[1])
				return nil
			},
		},
		newVersionsClearCmd(),
	)
	return cmd
}

func newVersionsClearCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every saved version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to clear history without --yes")
			}
			if err := versionsClient().Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "version history cleared")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deletion")
	return cmd
}

func fetchVersion(cmd *cobra.Command, id string) (string, error) {
	content, err := versionsClient().Content(cmd.Context(), id)
	switch {
	case errors.Is(err, version.ErrNotFound):
		return "", fmt.Errorf("version %s not found", id)
	case errors.Is(err, version.ErrCorrupt):
		return "", fmt.Errorf("version %s is listed but its content is missing", id)
	}
	return content, err
}

func writeVersions(w io.Writer, metas []domain.VersionMeta) error {
	if len(metas) == 0 {
		fmt.Fprintln(w, "no versions")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLABEL\tSAVED\tHASH")
	for _, m := range metas {
		saved := time.UnixMilli(m.Timestamp).Local().Format(time.DateTime)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.ID, m.Label, saved, m.Hash)
	}
	return tw.Flush()
}

func newExchangesCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "exchanges",
		Short: "Show recent edit exchanges recorded by the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := versionsClient().Exchanges(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return writeExchanges(cmd.OutOrStdout(), rows)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of exchanges to show")
	return cmd
}

func writeExchanges(w io.Writer, rows []store.Exchange) error {
	if len(rows) == 0 {
		fmt.Fprintln(w, "no exchanges")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tVIA\tSCOPE\tMODEL\tTARGETS\tCHUNKS\tDURATION\tOUTCOME")
	for _, e := range rows {
		outcome := e.Outcome
		if e.Error != "" {
			outcome += ": " + e.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			e.StartedAt.Local().Format(time.DateTime),
			e.Transport, e.Scope, e.Model,
			e.Targets, e.Chunks,
			(time.Duration(e.DurationMs) * time.Millisecond).String(),
			outcome)
	}
	return tw.Flush()
}
