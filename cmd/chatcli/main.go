// Package main provides a terminal client for the chat orchestrator.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ai-chat-be/internal/bootstrap"
	"ai-chat-be/internal/config"
)

var (
	cfg       *config.Config
	container *bootstrap.Container
	storeKind string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chatcli",
		Short: "Terminal client for the streaming chat backend",
		Long: `chatcli drives the same conversation orchestrator the HTTP API uses.

Replies stream to stdout as they arrive. Sessions are scoped by APP_ID and CLIENT_ID.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&storeKind, "store", "", "Override CHAT_STORE (postgres|sqlite|memory)")

	rootCmd.AddCommand(
		sendCmd(),
		regenerateCmd(),
		historyCmd(),
		summaryCmd(),
		translateCmd(),
		sessionsCmd(),
		schemaCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// requireContainer builds the orchestrator on first use.
func requireContainer(ctx context.Context) *bootstrap.Container {
	if container != nil {
		return container
	}
	cfg = config.Load()
	if storeKind != "" {
		cfg.App.Store = storeKind
	}

	uowFactory, err := bootstrap.OpenStore(cfg)
	if err != nil {
		fatalError(err)
	}
	container, err = bootstrap.NewContainer(ctx, uowFactory, cfg)
	if err != nil {
		fatalError(err)
	}
	return container
}

// shutdown waits for queued writes so nothing is lost when the process exits.
func shutdown() {
	if container == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := container.Close(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
}

func fatalError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	shutdown()
	os.Exit(1)
}
