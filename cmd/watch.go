package cmd

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-watch/internal/config"
	"github.com/kozaktomas/face-watch/internal/protocol"
	"github.com/kozaktomas/face-watch/internal/stream"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch <frame-dir>",
	Short: "Stream frames to the recognition server",
	Long: `Stream JPEG frames from a directory to the remote recognition server over
websocket and print each answer. Frames are sent in filename order, at most
one per frame interval, one in flight at a time.

The session reconnects on transport failures with a fixed backoff and gives
up when the retry budget is spent. Stop with Ctrl+C.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().String("observer", "", "Observer id reported with each frame (defaults to a random UUID)")
	watchCmd.Flags().Bool("loop", false, "Start over after the last frame instead of exiting")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	observerID := mustGetString(cmd, "observer")
	if observerID == "" {
		observerID = uuid.New().String()
	}

	source, err := stream.NewFileSource(args[0], mustGetBool(cmd, "loop"))
	if err != nil {
		return err
	}

	session := stream.NewSession(stream.Options{
		ServerURL:       cfg.Stream.ServerURL,
		ObserverID:      observerID,
		FrameInterval:   cfg.Stream.FrameInterval,
		ResponseTimeout: cfg.Stream.ResponseTimeout,
		MaxRetries:      cfg.Stream.MaxRetries,
		Backoff:         cfg.Stream.Backoff,
		OnResult:        printResult,
	}, &stream.WebsocketTransport{}, source)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Streaming to %s as observer %s\n", cfg.Stream.ServerURL, observerID)
	if err := session.Run(ctx); err != nil {
		if ctx.Err() != nil {
			fmt.Println("\nStopped")
			return nil
		}
		return err
	}
	return nil
}

func printResult(frameID protocol.FrameID, resp protocol.Response) {
	switch {
	case resp.Error != "":
		fmt.Printf("frame %s: error: %s\n", frameID, resp.Error)
	case resp.Found != nil && *resp.Found:
		var names []string
		for _, m := range resp.Matches {
			names = append(names, fmt.Sprintf("%s (%.0f%%)", m.Person.Name, m.Confidence))
		}
		fmt.Printf("frame %s: %s\n", frameID, strings.Join(names, ", "))
	default:
		msg := resp.Message
		if msg == "" {
			msg = "no match"
		}
		fmt.Printf("frame %s: %s\n", frameID, msg)
	}
}
