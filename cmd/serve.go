package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/face-watch/internal/config"
	"github.com/kozaktomas/face-watch/internal/encoder"
	"github.com/kozaktomas/face-watch/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the recognition server",
	Long: `Start the recognition server: the websocket endpoint for camera clients and
the REST API for people, reference images, sightings, and the model
lifecycle.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 3000, "Port to listen on (overrides SERVER_PORT)")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to (overrides SERVER_HOST)")
	serveCmd.Flags().String("results", "output/results.jsonl", "Recognition result log path (empty disables logging)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := cmd.Context()

	host := cfg.Server.Host
	port := cfg.Server.Port
	if cmd.Flags().Changed("host") {
		host = mustGetString(cmd, "host")
	}
	if cmd.Flags().Changed("port") {
		port = mustGetInt(cmd, "port")
	}

	fmt.Println("Connecting to the person directory...")
	pool, repo, err := openDirectory(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	var results *server.ResultLog
	if path := mustGetString(cmd, "results"); path != "" {
		results, err = server.OpenResultLog(path)
		if err != nil {
			return err
		}
		fmt.Printf("Logging recognition results to %s\n", path)
	}

	enc := encoder.NewClient(&cfg.Encoder)
	srv := server.NewServer(cfg, repo, enc, results, fmt.Sprintf("%s:%d", host, port))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Camera clients connect to ws://%s:%d/ws\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := srv.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
