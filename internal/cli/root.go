// Package cli implements the boardclient command, a headless board client
// that talks to the relay the same way a browser canvas does.
package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"realtime-whiteboard/internal/boardsync"
	"realtime-whiteboard/internal/channel"
	"realtime-whiteboard/internal/config"
	"realtime-whiteboard/internal/session"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Board      string
	Format     string // "json" | "text"
	Verbose    bool
	JoinWait   time.Duration

	// Connector and Persister replace the relay socket and REST store (for testing).
	Connector channel.Connector
	Persister boardsync.Persister
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the board client.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "boardclient",
		Short: "Headless whiteboard client",
		Long: `Join a whiteboard as a regular participant: create and edit objects,
watch live changes and presence, and run agent commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Format != "text" && opts.Format != "json" {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "client config file (yaml)")
	cmd.PersistentFlags().StringVarP(&opts.Board, "board", "b", "", "board id")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().DurationVar(&opts.JoinWait, "join-wait", 5*time.Second, "how long to wait for the channel before editing")

	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newCreateCommand(opts))
	cmd.AddCommand(newConnectCommand(opts))
	cmd.AddCommand(newMoveCommand(opts))
	cmd.AddCommand(newColorCommand(opts))
	cmd.AddCommand(newTextCommand(opts))
	cmd.AddCommand(newDuplicateCommand(opts))
	cmd.AddCommand(newDeleteCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newAICommand(opts))
	cmd.AddCommand(newTokenCommand())

	return cmd
}

func (o *RootOptions) logger(cfg *config.ClientConfig) *zap.Logger {
	if !o.Verbose && !cfg.Debug {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// open loads the client config and starts a session on the selected board.
// The returned session is joined unless the relay could not be reached within
// JoinWait, in which case edits are still applied and persisted.
func (o *RootOptions) open(cmd *cobra.Command) (*session.Session, error) {
	if o.Board == "" {
		return nil, errors.New("--board is required")
	}
	cfg, err := config.LoadClient(o.ConfigPath)
	if err != nil {
		return nil, err
	}

	s, err := session.New(session.Options{
		BoardID:   o.Board,
		Config:    cfg,
		Connector: o.Connector,
		Persister: o.Persister,
		Logger:    o.logger(cfg),
	})
	if err != nil {
		return nil, err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.Start(ctx); err != nil {
		s.Close()
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, o.JoinWait)
	defer cancel()
	if err := s.WaitJoined(waitCtx); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: channel not joined (%s), peers will catch up on refresh\n", s.Status())
	}
	return s, nil
}
