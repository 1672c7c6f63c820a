package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"realtime-whiteboard/internal/session"
)

func newAICommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ai <message>...",
		Short: "Ask the board agent to edit the board",
		Long: `Send a natural-language command to the board agent. The agent edits the
board directly; this client and every peer then reload the board.

Example:
  boardclient ai --board b1 "add a SWOT analysis frame"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(opts, cmd, func(s *session.Session) error {
				reply, err := s.Command(cmd.Context(), strings.Join(args, " "))
				if reply != "" {
					if opts.Format == "json" {
						if perr := printJSON(cmd.OutOrStdout(), map[string]string{"response": reply}); perr != nil {
							return perr
						}
					} else {
						fmt.Fprintln(cmd.OutOrStdout(), reply)
					}
				}
				return err
			})
		},
	}
}
