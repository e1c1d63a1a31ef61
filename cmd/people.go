package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/kozaktomas/face-watch/internal/config"
	"github.com/kozaktomas/face-watch/internal/directory"
	"github.com/kozaktomas/face-watch/internal/encoder"
	"github.com/kozaktomas/face-watch/internal/names"
	"github.com/spf13/cobra"
)

var peopleCmd = &cobra.Command{
	Use:   "people",
	Short: "Manage the person directory",
}

var peopleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List people in the directory",
	RunE:  runPeopleList,
}

var peopleAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a person",
	Args:  cobra.ExactArgs(1),
	RunE:  runPeopleAdd,
}

var peopleShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a person's profile, reference images, and recent sightings",
	Args:  cobra.ExactArgs(1),
	RunE:  runPeopleShow,
}

var peopleRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Remove a person and their reference images",
	Args:  cobra.ExactArgs(1),
	RunE:  runPeopleRm,
}

var peopleAddImageCmd = &cobra.Command{
	Use:   "add-image <id> <image>...",
	Short: "Attach reference images to a person",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runPeopleAddImage,
}

var peopleFindCmd = &cobra.Command{
	Use:   "find <image>",
	Short: "Find people whose reference images resemble the faces in an image",
	Long: `Encode the faces in an image and search the reference embedding index for
similar faces. Requires a prior train run to populate the index.`,
	Args: cobra.ExactArgs(1),
	RunE: runPeopleFind,
}

func init() {
	rootCmd.AddCommand(peopleCmd)
	peopleCmd.AddCommand(peopleListCmd, peopleAddCmd, peopleShowCmd, peopleRmCmd, peopleAddImageCmd, peopleFindCmd)

	peopleListCmd.Flags().String("filter", "", "Only show people whose name contains this (diacritics insensitive)")
	peopleListCmd.Flags().Bool("json", false, "Output as JSON")

	peopleAddCmd.Flags().Int("age", 0, "Age")
	peopleAddCmd.Flags().String("address", "", "Address")
	peopleAddCmd.Flags().String("info", "", "Free form notes")
	peopleAddCmd.Flags().String("email", "", "Email address")
	peopleAddCmd.Flags().String("phone", "", "Phone number")
	peopleAddCmd.Flags().String("gender", "", "Gender")
	peopleAddCmd.Flags().String("nationality", "", "Nationality")

	peopleFindCmd.Flags().Float64("max-distance", 0.6, "Maximum embedding distance")
	peopleFindCmd.Flags().Int("limit", 10, "Maximum results per face")
	peopleFindCmd.Flags().Bool("json", false, "Output as JSON")
}

func parsePersonID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid person id %q", arg)
	}
	return id, nil
}

func runPeopleList(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := cmd.Context()

	pool, repo, err := openDirectory(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	people, err := repo.ListPeople(ctx)
	if err != nil {
		return err
	}

	if filter := mustGetString(cmd, "filter"); filter != "" {
		needle := names.Normalize(names.RemoveDiacritics(filter))
		var filtered []directory.Person
		for _, p := range people {
			if strings.Contains(names.Normalize(names.RemoveDiacritics(p.Name)), needle) {
				filtered = append(filtered, p)
			}
		}
		people = filtered
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(people)
	}

	if len(people) == 0 {
		fmt.Println("No people in the directory")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tAGE\tEMAIL\tNATIONALITY")
	for _, p := range people {
		age := "-"
		if p.Age > 0 {
			age = strconv.Itoa(p.Age)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", p.ID, p.Name, age, orDash(p.Email), orDash(p.Nationality))
	}
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func runPeopleAdd(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := cmd.Context()

	pool, repo, err := openDirectory(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	person := &directory.Person{
		Name:        args[0],
		Age:         mustGetInt(cmd, "age"),
		Address:     mustGetString(cmd, "address"),
		Info:        mustGetString(cmd, "info"),
		Email:       mustGetString(cmd, "email"),
		Phone:       mustGetString(cmd, "phone"),
		Gender:      mustGetString(cmd, "gender"),
		Nationality: mustGetString(cmd, "nationality"),
	}

	id, err := repo.AddPerson(ctx, person)
	if err != nil {
		return err
	}
	fmt.Printf("Added %s with id %d\n", person.Name, id)
	return nil
}

func runPeopleShow(cmd *cobra.Command, args []string) error {
	id, err := parsePersonID(args[0])
	if err != nil {
		return err
	}
	cfg := config.Load()
	ctx := cmd.Context()

	pool, repo, err := openDirectory(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	person, err := repo.GetPerson(ctx, id)
	if err != nil {
		return err
	}
	if person == nil {
		return fmt.Errorf("person %d not found", id)
	}

	fmt.Printf("Name:        %s\n", person.Name)
	if person.Age > 0 {
		fmt.Printf("Age:         %d\n", person.Age)
	}
	for _, field := range []struct{ label, value string }{
		{"Address", person.Address},
		{"Email", person.Email},
		{"Phone", person.Phone},
		{"Gender", person.Gender},
		{"Nationality", person.Nationality},
		{"Info", person.Info},
	} {
		if field.value != "" {
			fmt.Printf("%-12s %s\n", field.label+":", field.value)
		}
	}

	refs, err := repo.ListPersonReferences(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("\nReference images: %d\n", len(refs))

	sightings, err := repo.ListSightings(ctx, id)
	if err != nil {
		return err
	}
	if len(sightings) > 0 {
		fmt.Printf("\nRecent sightings:\n")
		limit := len(sightings)
		if limit > 10 {
			limit = 10
		}
		for _, s := range sightings[:limit] {
			fmt.Printf("  %s by %s (%.0f%%)\n",
				s.CreatedAt.Format("2006-01-02 15:04:05"), s.ObserverID, s.Confidence)
		}
	}
	return nil
}

func runPeopleRm(cmd *cobra.Command, args []string) error {
	id, err := parsePersonID(args[0])
	if err != nil {
		return err
	}
	cfg := config.Load()
	ctx := cmd.Context()

	pool, repo, err := openDirectory(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := repo.DeletePerson(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Removed person %d\n", id)
	fmt.Println("Run train to rebuild the gallery without their faces")
	return nil
}

func runPeopleAddImage(cmd *cobra.Command, args []string) error {
	id, err := parsePersonID(args[0])
	if err != nil {
		return err
	}
	cfg := config.Load()
	ctx := cmd.Context()

	pool, repo, err := openDirectory(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	person, err := repo.GetPerson(ctx, id)
	if err != nil {
		return err
	}
	if person == nil {
		return fmt.Errorf("person %d not found", id)
	}

	for _, path := range args[1:] {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		refID, err := repo.AddReference(ctx, id, data)
		if err != nil {
			return fmt.Errorf("storing %s: %w", path, err)
		}
		fmt.Printf("Added %s as reference %d\n", path, refID)
	}
	fmt.Println("Run train to include the new images in the gallery")
	return nil
}

func runPeopleFind(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := cmd.Context()

	imageData, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	pool, repo, err := openDirectory(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	enc := encoder.NewClient(&cfg.Encoder)
	embeddings, err := enc.EncodeFaces(ctx, imageData)
	if err != nil {
		return fmt.Errorf("encoding image: %w", err)
	}
	if len(embeddings) == 0 {
		fmt.Println("No faces detected in the image")
		return nil
	}

	maxDistance := mustGetFloat64(cmd, "max-distance")
	limit := mustGetInt(cmd, "limit")

	type faceMatches struct {
		Face    int                        `json:"face"`
		Matches []directory.ReferenceMatch `json:"matches"`
	}
	var all []faceMatches

	for i, embedding := range embeddings {
		matches, err := repo.FindSimilarReferences(ctx, embedding, limit, maxDistance)
		if err != nil {
			return fmt.Errorf("searching similar references: %w", err)
		}
		all = append(all, faceMatches{Face: i, Matches: matches})
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(all)
	}

	for _, fm := range all {
		fmt.Printf("Face %d:\n", fm.Face)
		if len(fm.Matches) == 0 {
			fmt.Println("  no similar reference images")
			continue
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  PERSON\tNAME\tREFERENCE\tDISTANCE")
		for _, m := range fm.Matches {
			fmt.Fprintf(w, "  %d\t%s\t%d\t%.4f\n", m.PersonID, m.DisplayName, m.ReferenceID, m.Distance)
		}
		w.Flush()
	}
	return nil
}
