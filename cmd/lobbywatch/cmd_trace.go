package main

import (
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/thebtf/lobbywatch/internal/config"
	"github.com/thebtf/lobbywatch/internal/textutil"
	"github.com/thebtf/lobbywatch/internal/trace"
)

const tracePayloadWidth = 160

func newTraceCmd() *cobra.Command {
	var (
		sessionID string
		limit     int
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show frames captured by the frame recorder",
		Long: `Read back WebSocket frames from the trace database. Without --session the
most recent frames are shown, oldest first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			path := cfg.TraceDBPath
			if path == "" {
				path = config.TraceDBPath()
			}

			rec, err := trace.OpenRecorder(path)
			if err != nil {
				return err
			}
			defer rec.Close()

			var frames []trace.Frame
			if sessionID != "" {
				frames, err = rec.BySession(cmd.Context(), sessionID)
			} else {
				frames, err = rec.Recent(cmd.Context(), limit)
				reverse(frames)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(frames)
			}
			if len(frames) == 0 {
				fmt.Fprintln(out, dimStyle.Render("No frames recorded in "+path))
				return nil
			}
			for _, f := range frames {
				renderFrame(out, f)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Only frames tagged with this session id")
	cmd.Flags().IntVar(&limit, "limit", 50, "Number of recent frames to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print frames as JSON")
	return cmd
}

func renderFrame(w io.Writer, f trace.Frame) {
	arrow := "<-"
	if f.Direction == trace.DirectionOutbound {
		arrow = "->"
	}
	typ := f.Type
	if typ == "" {
		typ = "?"
	}
	fmt.Fprintf(w, "%s %s %s %s %s\n",
		dimStyle.Render(f.RecordedAt.Format("15:04:05.000")),
		arrow,
		agentStyle.Render(typ),
		dimStyle.Render(f.SessionID),
		textutil.Truncate(f.Payload, tracePayloadWidth),
	)
}

func reverse(frames []trace.Frame) {
	for i, j := 0, len(frames)-1; i < j; i, j = i+1, j-1 {
		frames[i], frames[j] = frames[j], frames[i]
	}
}
