package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dwizi/wa-assistant/internal/app"
	"github.com/dwizi/wa-assistant/internal/config"
)

const version = "0.1.0"

func NewRoot(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "wa-assistant",
		Short:         "wa-assistant routes WhatsApp contacts between the owner, a VIP and everyone else",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCommand(logger))
	root.AddCommand(newRouteCommand(logger))
	root.AddCommand(newStatusCommand(logger))
	root.AddCommand(newVersionCommand())

	return root
}

func newServeCommand(logger *slog.Logger) *cobra.Command {
	var exitOnEOF bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Read inbound JSON lines from stdin and write outbound messages to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			runtime, err := app.New(config.FromEnv(), logger, app.Options{
				Input:     cmd.InOrStdin(),
				Output:    cmd.OutOrStdout(),
				ExitOnEOF: exitOnEOF,
			})
			if err != nil {
				return err
			}
			defer runtime.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runtime.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&exitOnEOF, "exit-on-eof", false, "stop once stdin is exhausted and queued messages are handled")
	return cmd
}

func newRouteCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "route <sender> <text...>",
		Short: "Route one message and print the decision as JSON without sending it",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			runtime, err := app.New(config.FromEnv(), logger, app.Options{Output: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer runtime.Close()

			decision, err := runtime.Route(commandContext(cmd), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetEscapeHTML(false)
			encoder.SetIndent("", "  ")
			return encoder.Encode(decision)
		},
	}
}

func newStatusCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the assistant configuration and active session counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			runtime, err := app.New(config.FromEnv(), logger, app.Options{Output: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer runtime.Close()

			status, err := runtime.Status(commandContext(cmd))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), status)
			return err
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version)
		},
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
