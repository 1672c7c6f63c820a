package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"realtime-whiteboard/internal/model"
	"realtime-whiteboard/internal/objectstore"
	"realtime-whiteboard/internal/session"
)

// watchEvent is one line of watch output.
type watchEvent struct {
	Kind   string               `json:"kind"`
	ID     string               `json:"id,omitempty"`
	Object *model.BoardObject   `json:"object,omitempty"`
	Count  int                  `json:"count,omitempty"`
	Online []model.PresenceUser `json:"online,omitempty"`
}

// watcher serialises store and presence events onto w.
type watcher struct {
	mu     sync.Mutex
	w      io.Writer
	format string
	s      *session.Session
}

func (wt *watcher) emit(ev watchEvent) {
	wt.mu.Lock()
	defer wt.mu.Unlock()

	if wt.format == "json" {
		_ = printJSON(wt.w, ev)
		return
	}
	switch {
	case ev.Object != nil:
		fmt.Fprintf(wt.w, "%-8s %s %s (%.0f,%.0f) %q\n", ev.Kind, ev.ID, ev.Object.Type, ev.Object.X, ev.Object.Y, ev.Object.Text)
	case ev.Online != nil:
		names := make([]string, len(ev.Online))
		for i, u := range ev.Online {
			names[i] = u.UserName
		}
		fmt.Fprintf(wt.w, "%-8s %v\n", ev.Kind, names)
	case ev.ID != "":
		fmt.Fprintf(wt.w, "%-8s %s\n", ev.Kind, ev.ID)
	default:
		fmt.Fprintf(wt.w, "%-8s %d objects\n", ev.Kind, ev.Count)
	}
}

func (wt *watcher) onChange(c objectstore.Change) {
	ev := watchEvent{Kind: c.Kind.String(), ID: c.ID}
	switch c.Kind {
	case objectstore.ChangeReplaced:
		ev.Count = wt.s.Store.Len()
	case objectstore.ChangeUpserted:
		if obj, ok := wt.s.Store.Get(c.ID); ok {
			ev.Object = &obj
		}
	}
	wt.emit(ev)
}

func (wt *watcher) onPresence() {
	wt.emit(watchEvent{Kind: "online", Online: wt.s.Cursors.Online()})
}

func newWatchCommand(opts *RootOptions) *cobra.Command {
	var presence bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream object changes until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			return withSession(opts, cmd, func(s *session.Session) error {
				wt := &watcher{w: cmd.OutOrStdout(), format: opts.Format, s: s}
				wt.emit(watchEvent{Kind: "loaded", Count: s.Store.Len()})
				s.Store.OnChange(wt.onChange)
				if presence {
					s.Cursors.OnChange(wt.onPresence)
				}

				<-ctx.Done()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&presence, "presence", false, "also print roster and cursor updates")
	return cmd
}
