package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dinner-chat/internal/config"
)

// errNotReachable makes the status command exit non-zero without an error line.
var errNotReachable = errors.New("completion endpoint not reachable")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	// Lambda invokes the bootstrap without arguments.
	if len(os.Args) == 1 && config.InLambda() {
		root.SetArgs([]string{"lambda"})
	}
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errNotReachable) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:           "dinner-chat",
		Short:         "Dinner menu recommendation chat backed by a chat-completion API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	setup := func(cmd *cobra.Command) (*app, error) {
		cfg, err := config.Load(envFile)
		if err != nil {
			return nil, err
		}
		logger := newLogger(cfg, os.Stderr)
		return newApp(cmd.Context(), cfg, logger)
	}

	root.AddCommand(
		newServeCmd(setup),
		newLambdaCmd(setup),
		newChatCmd(setup),
		newStatusCmd(setup),
		newArchiveCmd(setup),
	)
	return root
}
