package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"realtime-whiteboard/internal/model"
	"realtime-whiteboard/internal/session"
)

// withSession opens a session for the duration of fn.
func withSession(opts *RootOptions, cmd *cobra.Command, fn func(s *session.Session) error) error {
	s, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func parsePoint(xs, ys string) (float64, float64, error) {
	x, err := strconv.ParseFloat(xs, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid x %q", xs)
	}
	y, err := strconv.ParseFloat(ys, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid y %q", ys)
	}
	return x, y, nil
}

func newListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the board's objects in paint order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(opts, cmd, func(s *session.Session) error {
				return printObjects(cmd.OutOrStdout(), opts.Format, s.Store.List())
			})
		},
	}
}

func newCreateCommand(opts *RootOptions) *cobra.Command {
	var text string

	cmd := &cobra.Command{
		Use:   "create <type> <x> <y>",
		Short: "Place a new object centred on a world position",
		Long: `Place a new object centred on a world position.

Types: rectangle, circle, sticky_note, text, frame.

Example:
  boardclient create sticky_note 400 300 --board b1 --text "Ship it"`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			x, y, err := parsePoint(args[1], args[2])
			if err != nil {
				return err
			}
			return withSession(opts, cmd, func(s *session.Session) error {
				obj, err := s.Coordinator.CreateAt(cmd.Context(), model.ObjectType(args[0]), x, y)
				if err != nil {
					return err
				}
				if text != "" {
					if err := s.Coordinator.SetText(cmd.Context(), obj.ID, text); err != nil {
						return err
					}
					obj, _ = s.Store.Get(obj.ID)
				}
				return printObjects(cmd.OutOrStdout(), opts.Format, []model.BoardObject{obj})
			})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "initial text")
	return cmd
}

func newConnectCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "connect <from-id> <to-id>",
		Short: "Draw a connector between two objects",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(opts, cmd, func(s *session.Session) error {
				obj, err := s.Coordinator.CreateConnector(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return printObjects(cmd.OutOrStdout(), opts.Format, []model.BoardObject{obj})
			})
		},
	}
}

func newMoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <x> <y>",
		Short: "Move an object",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			x, y, err := parsePoint(args[1], args[2])
			if err != nil {
				return err
			}
			return withSession(opts, cmd, func(s *session.Session) error {
				return s.Coordinator.Move(cmd.Context(), args[0], x, y)
			})
		},
	}
}

func newColorCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "color <color> <id>...",
		Short: "Recolour objects",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(opts, cmd, func(s *session.Session) error {
				return s.Coordinator.SetColor(cmd.Context(), args[1:], args[0])
			})
		},
	}
}

func newTextCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "text <id> <text>",
		Short: "Replace an object's text",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(opts, cmd, func(s *session.Session) error {
				return s.Coordinator.SetText(cmd.Context(), args[0], args[1])
			})
		},
	}
}

func newDuplicateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "duplicate <id>...",
		Short: "Copy objects next to their originals",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(opts, cmd, func(s *session.Session) error {
				copies, err := s.Coordinator.Duplicate(cmd.Context(), args)
				if err != nil {
					return err
				}
				return printObjects(cmd.OutOrStdout(), opts.Format, copies)
			})
		},
	}
}

func newDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete objects",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(opts, cmd, func(s *session.Session) error {
				return s.Coordinator.DeleteAll(cmd.Context(), args)
			})
		},
	}
}
