package cmd

import (
	"errors"
	"fmt"

	"github.com/kozaktomas/face-watch/internal/config"
	"github.com/kozaktomas/face-watch/internal/encoder"
	"github.com/kozaktomas/face-watch/internal/gallery"
	"github.com/kozaktomas/face-watch/internal/train"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Build the recognition model from reference images",
	Long: `Encode every labeled reference image in the person directory and write the
resulting encoding gallery to disk. The gallery is what the test, validate,
and serve commands match against.

The previous gallery file is kept when training fails.`,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().Bool("json", false, "Output as JSON")
}

func runTrain(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	cfg := config.Load()
	ctx := cmd.Context()

	pool, repo, err := openDirectory(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	images, err := repo.ListReferenceImages(ctx)
	if err != nil {
		return fmt.Errorf("listing reference images: %w", err)
	}
	if !jsonOutput {
		fmt.Printf("Encoding %d reference images with model %s\n", len(images), cfg.Encoder.Model)
	}

	var bar *progressbar.ProgressBar
	progress := func() {}
	if !jsonOutput {
		bar = progressbar.NewOptions(len(images),
			progressbar.OptionSetDescription("Training"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
		progress = func() { _ = bar.Add(1) }
	}

	enc := encoder.NewClient(&cfg.Encoder)
	trainer := train.NewTrainer(enc, repo, repo, cfg.Encoder.Model, cfg.Gallery.Path)

	_, summary, err := trainer.Run(ctx, progress)
	if err != nil {
		if errors.Is(err, gallery.ErrNoTrainingFaces) {
			if jsonOutput {
				return outputJSON(map[string]string{"error": err.Error()})
			}
			fmt.Printf("\n%s\n", err.Error())
			return nil
		}
		return err
	}

	if jsonOutput {
		return outputJSON(summary)
	}
	fmt.Printf("\nTrained %d faces of %d people, gallery written to %s\n",
		summary.TotalFaces, summary.UniquePeople, cfg.Gallery.Path)
	if summary.NoFaceImages > 0 {
		fmt.Printf("No faces found in %d reference images\n", summary.NoFaceImages)
	}
	if summary.SkippedImages > 0 {
		fmt.Printf("Skipped %d unreadable reference images\n", summary.SkippedImages)
	}
	return nil
}
