package resolve

import (
	"context"
	"errors"
	"testing"

	"github.com/kozaktomas/face-watch/internal/directory"
	"github.com/kozaktomas/face-watch/internal/directory/mock"
	"github.com/kozaktomas/face-watch/internal/gallery"
	"github.com/kozaktomas/face-watch/internal/match"
)

// vec128 builds a 128-dim vector with the given value in the first component.
func vec128(first float32) []float32 {
	v := make([]float32, 128)
	v[0] = first
	return v
}

func testGallery() *gallery.Gallery {
	return &gallery.Gallery{
		Model: "hog",
		Entries: []gallery.Embedding{
			{Vector: vec128(0.0), PersonID: 1, DisplayName: "Alice Johnson"},
			{Vector: vec128(0.1), PersonID: 1, DisplayName: "Alice Johnson"},
			{Vector: vec128(2.0), PersonID: 2, DisplayName: "Bob Smith"},
		},
	}
}

func testDirectory(t *testing.T) *mock.Directory {
	t.Helper()
	dir := mock.New()
	ctx := context.Background()
	for _, p := range []directory.Person{
		{ID: 1, Name: "Alice Johnson", Age: 34},
		{ID: 2, Name: "Bob Smith", Age: 41},
	} {
		person := p
		if _, err := dir.AddPerson(ctx, &person); err != nil {
			t.Fatalf("failed to seed person: %v", err)
		}
	}
	return dir
}

func TestNewResolverRequiresGallery(t *testing.T) {
	_, err := NewResolver(nil, match.NewEngine(0, 0), mock.New(), ModeBest)
	if !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{"best", ModeBest, false},
		{"vote", ModeVote, false},
		{"", ModeBest, false},
		{"hybrid", "", true},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseMode(%q): expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMode(%q): unexpected error %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestResolveNoFaces(t *testing.T) {
	dir := testDirectory(t)
	resolver, err := NewResolver(testGallery(), match.NewEngine(0, 0), dir, ModeBest)
	if err != nil {
		t.Fatalf("failed to create resolver: %v", err)
	}

	result, err := resolver.Resolve(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Found {
		t.Error("expected not found for empty embeddings")
	}
	if result.Message != "no faces detected" {
		t.Errorf("expected 'no faces detected', got %q", result.Message)
	}
	if dir.GetPersonCalls != 0 {
		t.Errorf("directory queried %d times for an empty frame", dir.GetPersonCalls)
	}
}

func TestResolveKnownFace(t *testing.T) {
	dir := testDirectory(t)
	resolver, err := NewResolver(testGallery(), match.NewEngine(0, 0), dir, ModeBest)
	if err != nil {
		t.Fatalf("failed to create resolver: %v", err)
	}

	// Distance 0.05 to Alice's closest entry.
	result, err := resolver.Resolve(context.Background(), [][]float32{vec128(0.05)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Found {
		t.Fatal("expected a match")
	}
	if len(result.Matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(result.Matches))
	}
	m := result.Matches[0]
	if m.Person.ID != 1 {
		t.Errorf("expected person 1, got %d", m.Person.ID)
	}
	if m.Person.Name != "Alice Johnson" {
		t.Errorf("expected profile from directory, got %q", m.Person.Name)
	}
	if m.Person.Age != 34 {
		t.Errorf("expected hydrated age 34, got %d", m.Person.Age)
	}
	if m.Confidence <= 50 || m.Confidence > 100 {
		t.Errorf("confidence %f outside expected range", m.Confidence)
	}
}

func TestResolveUnknownFace(t *testing.T) {
	dir := testDirectory(t)
	resolver, err := NewResolver(testGallery(), match.NewEngine(0, 0), dir, ModeBest)
	if err != nil {
		t.Fatalf("failed to create resolver: %v", err)
	}

	// Far from every gallery entry.
	result, err := resolver.Resolve(context.Background(), [][]float32{vec128(10.0)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Found {
		t.Error("expected no match beyond tolerance")
	}
	if result.Message != "face detected but not recognized" {
		t.Errorf("unexpected message %q", result.Message)
	}
	if dir.GetPersonCalls != 0 {
		t.Errorf("directory queried %d times without a candidate", dir.GetPersonCalls)
	}
}

func TestResolveStalePersonDropped(t *testing.T) {
	dir := mock.New()
	ctx := context.Background()
	// Only Bob exists; Alice was deleted after training.
	if _, err := dir.AddPerson(ctx, &directory.Person{ID: 2, Name: "Bob Smith"}); err != nil {
		t.Fatalf("failed to seed person: %v", err)
	}

	resolver, err := NewResolver(testGallery(), match.NewEngine(0, 0), dir, ModeBest)
	if err != nil {
		t.Fatalf("failed to create resolver: %v", err)
	}

	result, err := resolver.Resolve(ctx, [][]float32{vec128(0.05)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Found {
		t.Error("stale person id should resolve to no match")
	}
}

func TestResolveMultipleFacesDeduplicated(t *testing.T) {
	dir := testDirectory(t)
	resolver, err := NewResolver(testGallery(), match.NewEngine(0, 0), dir, ModeBest)
	if err != nil {
		t.Fatalf("failed to create resolver: %v", err)
	}

	// Two faces of the same person plus one of Bob.
	result, err := resolver.Resolve(context.Background(), [][]float32{
		vec128(0.05),
		vec128(0.08),
		vec128(2.02),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Found {
		t.Fatal("expected matches")
	}
	if len(result.Matches) != 2 {
		t.Fatalf("expected 2 distinct people, got %d", len(result.Matches))
	}
	if result.Matches[0].Person.ID == result.Matches[1].Person.ID {
		t.Error("duplicate person in result")
	}
}

func TestResolveDirectoryError(t *testing.T) {
	dir := testDirectory(t)
	dir.GetPersonError = errors.New("connection refused")

	resolver, err := NewResolver(testGallery(), match.NewEngine(0, 0), dir, ModeBest)
	if err != nil {
		t.Fatalf("failed to create resolver: %v", err)
	}

	_, err = resolver.Resolve(context.Background(), [][]float32{vec128(0.05)})
	if err == nil {
		t.Error("expected directory error to propagate")
	}
}

func TestResolveVoteMode(t *testing.T) {
	dir := testDirectory(t)
	resolver, err := NewResolver(testGallery(), match.NewEngine(0, 0), dir, ModeVote)
	if err != nil {
		t.Fatalf("failed to create resolver: %v", err)
	}

	result, err := resolver.Resolve(context.Background(), [][]float32{vec128(0.05)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Found {
		t.Fatal("expected a match")
	}
	if result.Matches[0].Confidence != 100 {
		t.Errorf("vote mode reports fixed confidence 100, got %f", result.Matches[0].Confidence)
	}
}

func TestSwapGallery(t *testing.T) {
	dir := testDirectory(t)
	resolver, err := NewResolver(testGallery(), match.NewEngine(0, 0), dir, ModeBest)
	if err != nil {
		t.Fatalf("failed to create resolver: %v", err)
	}

	if err := resolver.SwapGallery(nil); !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable on nil swap, got %v", err)
	}

	empty := &gallery.Gallery{Model: "hog"}
	if err := resolver.SwapGallery(empty); err != nil {
		t.Fatalf("failed to swap gallery: %v", err)
	}

	result, err := resolver.Resolve(context.Background(), [][]float32{vec128(0.05)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Found {
		t.Error("expected no match against empty gallery")
	}
}
