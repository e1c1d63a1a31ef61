package cmd

import (
	"errors"
	"fmt"

	"github.com/kozaktomas/face-watch/internal/config"
	"github.com/kozaktomas/face-watch/internal/encoder"
	"github.com/kozaktomas/face-watch/internal/gallery"
	"github.com/kozaktomas/face-watch/internal/match"
	"github.com/kozaktomas/face-watch/internal/resolve"
	"github.com/kozaktomas/face-watch/internal/validate"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Measure recognition accuracy against the reference images",
	Long: `Encode every labeled reference image and check whether the trained gallery
matches it back to its own person. Reports accuracy as a percentage.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().Bool("json", false, "Output as JSON")
	validateCmd.Flags().String("mode", "best", "Matching mode to score: best or vote")
}

func runValidate(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	mode, err := resolve.ParseMode(mustGetString(cmd, "mode"))
	if err != nil {
		return err
	}
	cfg := config.Load()
	ctx := cmd.Context()

	g, err := gallery.Load(cfg.Gallery.Path)
	if err != nil {
		if errors.Is(err, gallery.ErrUnavailable) || errors.Is(err, gallery.ErrCorrupt) {
			if jsonOutput {
				return outputJSON(map[string]string{"error": err.Error()})
			}
			fmt.Println(err.Error())
			return nil
		}
		return err
	}

	pool, repo, err := openDirectory(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	refs, err := repo.ListReferenceImages(ctx)
	if err != nil {
		return fmt.Errorf("listing validation images: %w", err)
	}

	var bar *progressbar.ProgressBar
	progress := func() {}
	if !jsonOutput {
		fmt.Printf("Validating %d images against %d trained faces\n", len(refs), g.Len())
		bar = progressbar.NewOptions(len(refs),
			progressbar.OptionSetDescription("Validating"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
		progress = func() { _ = bar.Add(1) }
	}

	enc := encoder.NewClient(&cfg.Encoder)
	engine := match.NewEngine(cfg.Recognition.Tolerance, cfg.Recognition.MinConfidence)
	harness := validate.NewHarness(enc, engine, g, mode)

	report, err := harness.Run(ctx, refs, progress)
	if err != nil {
		if errors.Is(err, validate.ErrNoValidationFaces) {
			if jsonOutput {
				return outputJSON(map[string]string{"error": err.Error()})
			}
			fmt.Printf("\n%s\n", err.Error())
			return nil
		}
		return err
	}

	if jsonOutput {
		return outputJSON(report)
	}
	fmt.Printf("\nAccuracy: %.2f%% (%d of %d faces correct)\n",
		report.Accuracy, report.CorrectMatches, report.TotalTested)
	if report.SkippedImages > 0 {
		fmt.Printf("Skipped %d images without detectable faces\n", report.SkippedImages)
	}
	return nil
}
