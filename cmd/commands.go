package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"dinner-chat/internal/domain"
	"dinner-chat/internal/server"
	"dinner-chat/internal/view"
)

type setupFunc func(cmd *cobra.Command) (*app, error)

func newServeCmd(setup setupFunc) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat widget and API over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			h, err := a.handler()
			if err != nil {
				return err
			}
			status := a.service.CheckStatus(cmd.Context(), nil)
			a.logger.Info("startup status check", "status", status.String())

			if port == "" {
				port = a.cfg.Port
			}
			return server.Run(cmd.Context(), ":"+port, server.NewRouter(h, a.logger), a.logger)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (defaults to PORT or 8080)")
	return cmd
}

func newLambdaCmd(setup setupFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Run as an AWS Lambda function behind API Gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			h, err := a.handler()
			if err != nil {
				return err
			}
			lambda.StartWithOptions(h.Handle, lambda.WithContext(cmd.Context()))
			return nil
		},
	}
}

func newChatCmd(setup setupFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat in the terminal (type :q to quit)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			term := view.NewTerminal(out)
			a.service.CheckStatus(ctx, term)

			sess, err := a.service.NewSession()
			if err != nil {
				return err
			}
			defer func() { _ = a.service.CloseSession(sess.ID()) }()

			scanner := bufio.NewScanner(cmd.InOrStdin())
			term.FocusInput()
			for scanner.Scan() {
				line := scanner.Text()
				switch strings.TrimSpace(line) {
				case ":q", ":quit", ":exit":
					return nil
				case "":
					term.FocusInput()
					continue
				}
				// Failures are already rendered inline.
				_, _ = sess.Send(ctx, term, line)
				if ctx.Err() != nil {
					return nil
				}
			}
			return scanner.Err()
		},
	}
}

func newStatusCmd(setup setupFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check whether the completion endpoint accepts the configured key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			status := a.service.CheckStatus(cmd.Context(), view.NewTerminal(cmd.OutOrStdout()))
			if !status.Reachable() {
				return errNotReachable
			}
			return nil
		},
	}
}

func newArchiveCmd(setup setupFunc) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "archive <session-id>",
		Short: "Print the archived exchanges of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			if a.archive == nil {
				return errArchiveDisabled
			}
			ctx := cmd.Context()
			sessionID := args[0]

			meta, ok, err := a.archive.GetSessionMeta(ctx, sessionID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no archived exchanges for session %s", sessionID)
			}
			exchanges, err := a.archive.GetExchanges(ctx, sessionID, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "session %s: %d turns, last activity %s\n", sessionID, meta.Turns, meta.LastActivity)
			term := view.NewTerminal(out)
			for _, ex := range exchanges {
				term.AppendMessage(domain.UserMessage(ex.Question))
				term.AppendMessage(domain.AssistantMessage(ex.Answer))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "only show the most recent N exchanges (0 = all)")
	return cmd
}
