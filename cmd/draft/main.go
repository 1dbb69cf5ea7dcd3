// Command draft edits markdown files through a draftsmith server.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ashureev/draftsmith/internal/model"
	"github.com/ashureev/draftsmith/internal/transport"
	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8080"

var (
	serverURL string
	modelName string
	verbose   bool
	logger    = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
)

var rootCmd = &cobra.Command{
	Use:           "draft",
	Short:         "AI-assisted iterative markdown rewriting",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
		if _, err := model.ParseID(modelName); err != nil {
			return fmt.Errorf("invalid --model value: %w", err)
		}
		return nil
	},
}

func init() {
	server := os.Getenv("DRAFTSMITH_SERVER")
	if server == "" {
		server = defaultServer
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&serverURL, "server", server, "draftsmith server base URL")
	flags.StringVarP(&modelName, "model", "m", string(model.Default), "model selector: sonnet, opus or haiku")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newSectionsCmd())
	rootCmd.AddCommand(newEditCmd())
	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newVersionsCmd())
	rootCmd.AddCommand(newExchangesCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "draft: %v\n", err)
		os.Exit(1)
	}
}

func versionsClient() *transport.VersionsClient {
	return transport.NewVersionsClient(serverURL, logger)
}
