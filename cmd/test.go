package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/kozaktomas/face-watch/internal/annotate"
	"github.com/kozaktomas/face-watch/internal/config"
	"github.com/kozaktomas/face-watch/internal/encoder"
	"github.com/kozaktomas/face-watch/internal/gallery"
	"github.com/kozaktomas/face-watch/internal/match"
	"github.com/kozaktomas/face-watch/internal/protocol"
	"github.com/kozaktomas/face-watch/internal/resolve"
	"github.com/spf13/cobra"
)

var testCmd = &cobra.Command{
	Use:   "test <image>",
	Short: "Recognize faces in a single image",
	Long: `Run the recognition pipeline on one image file and print the result as JSON.

Matching modes:
  vote  count gallery entries within tolerance per person (default)
  best  pick the closest entry and derive confidence from its distance

A missing or corrupt gallery is reported as a JSON error, not a crash.`,
	Args: cobra.ExactArgs(1),
	RunE: runTest,
}

func init() {
	rootCmd.AddCommand(testCmd)

	testCmd.Flags().String("mode", "vote", "Matching mode: vote or best")
	testCmd.Flags().String("save-annotated", "", "Write a copy of the image with labeled face boxes to this path")
}

func runTest(cmd *cobra.Command, args []string) error {
	mode, err := resolve.ParseMode(mustGetString(cmd, "mode"))
	if err != nil {
		return err
	}
	annotatedPath := mustGetString(cmd, "save-annotated")
	cfg := config.Load()
	ctx := cmd.Context()

	imageData, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	g, err := gallery.Load(cfg.Gallery.Path)
	if err != nil {
		if errors.Is(err, gallery.ErrUnavailable) || errors.Is(err, gallery.ErrCorrupt) {
			return outputJSON(map[string]string{"error": err.Error()})
		}
		return err
	}

	pool, repo, err := openDirectory(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	enc := encoder.NewClient(&cfg.Encoder)
	detection, err := enc.DetectFaces(ctx, imageData)
	if err != nil {
		return fmt.Errorf("detecting faces: %w", err)
	}

	embeddings := make([][]float32, 0, len(detection.Faces))
	for _, face := range detection.Faces {
		embeddings = append(embeddings, face.Embedding)
	}

	engine := match.NewEngine(cfg.Recognition.Tolerance, cfg.Recognition.MinConfidence)
	resolver, err := resolve.NewResolver(g, engine, repo, mode)
	if err != nil {
		return err
	}
	result, err := resolver.Resolve(ctx, embeddings)
	if err != nil {
		return err
	}

	if annotatedPath != "" {
		if err := saveAnnotated(annotatedPath, imageData, detection, engine, mode, g); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to save annotated image: %v\n", err)
		}
	}

	return outputJSON(protocol.FromResult(result))
}

// saveAnnotated draws one labeled box per detected face.
func saveAnnotated(path string, imageData []byte, detection *encoder.Result, engine *match.Engine, mode resolve.Mode, g *gallery.Gallery) error {
	boxes := make([]annotate.Box, 0, len(detection.Faces))
	for _, face := range detection.Faces {
		box := annotate.Box{BBox: face.BBox, Label: "unknown"}

		var candidate match.Candidate
		var ok bool
		if mode == resolve.ModeVote {
			candidate, ok = engine.Vote(face.Embedding, g)
		} else {
			candidate, ok = engine.Best(face.Embedding, g)
		}
		if ok {
			box.Label = candidate.DisplayName
			box.Confidence = candidate.Confidence
		}
		boxes = append(boxes, box)
	}

	annotated, err := annotate.Frame(imageData, boxes)
	if err != nil {
		return err
	}
	return os.WriteFile(path, annotated, 0o644)
}
