package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-watch/internal/directory"
	"github.com/kozaktomas/face-watch/internal/gallery"
	"github.com/kozaktomas/face-watch/internal/protocol"
	"github.com/kozaktomas/face-watch/internal/resolve"
	"github.com/kozaktomas/face-watch/internal/validate"
)

const errInvalidRequestBody = "invalid request body"

// maxUploadSize bounds reference and recognition image uploads.
const maxUploadSize = 20 << 20

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// pathID parses the {id} URL parameter.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id")
	}
	return id, nil
}

// readImageUpload extracts image bytes from a multipart "image" field or a raw
// request body.
func readImageUpload(r *http.Request) ([]byte, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			return nil, fmt.Errorf("parsing multipart form: %w", err)
		}
		file, _, err := r.FormFile("image")
		if err != nil {
			return nil, fmt.Errorf("missing image field: %w", err)
		}
		defer file.Close()
		return io.ReadAll(file)
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadSize))
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image body")
	}
	return data, nil
}

func (s *Server) listPeople(w http.ResponseWriter, r *http.Request) {
	people, err := s.store.ListPeople(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"people": people, "count": len(people)})
}

func (s *Server) getPerson(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	person, err := s.store.GetPerson(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if person == nil {
		respondError(w, http.StatusNotFound, fmt.Sprintf("person %d not found", id))
		return
	}
	respondJSON(w, http.StatusOK, person)
}

func (s *Server) addPerson(w http.ResponseWriter, r *http.Request) {
	var person directory.Person
	if err := json.NewDecoder(r.Body).Decode(&person); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if person.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	id, err := s.store.AddPerson(r.Context(), &person)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	person.ID = id
	respondJSON(w, http.StatusCreated, person)
}

func (s *Server) updatePerson(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var person directory.Person
	if err := json.NewDecoder(r.Body).Decode(&person); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	person.ID = id

	if err := s.store.UpdatePerson(r.Context(), &person); err != nil {
		if strings.Contains(err.Error(), "not found") {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, person)
}

func (s *Server) deletePerson(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.DeletePerson(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// referenceInfo is reference image metadata without the raw bytes.
type referenceInfo struct {
	ID        int64  `json:"id"`
	PersonID  int64  `json:"person_id"`
	SizeBytes int    `json:"size_bytes"`
	CreatedAt string `json:"created_at"`
}

func (s *Server) listReferences(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	refs, err := s.store.ListPersonReferences(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	infos := make([]referenceInfo, 0, len(refs))
	for _, ref := range refs {
		infos = append(infos, referenceInfo{
			ID:        ref.ID,
			PersonID:  ref.PersonID,
			SizeBytes: len(ref.Data),
			CreatedAt: ref.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"references": infos, "count": len(infos)})
}

func (s *Server) addReference(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	person, err := s.store.GetPerson(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if person == nil {
		respondError(w, http.StatusNotFound, fmt.Sprintf("person %d not found", id))
		return
	}

	data, err := readImageUpload(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	refID, err := s.store.AddReference(r.Context(), id, data)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]int64{"id": refID})
}

func (s *Server) deleteReference(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.DeleteReference(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listSightings(w http.ResponseWriter, r *http.Request) {
	var personID int64
	if raw := r.URL.Query().Get("person_id"); raw != "" {
		var err error
		personID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || personID <= 0 {
			respondError(w, http.StatusBadRequest, "invalid person_id")
			return
		}
	}

	sightings, err := s.store.ListSightings(r.Context(), personID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sightings": sightings, "count": len(sightings)})
}

// recognize runs the full pipeline for one image: encode, match, hydrate.
func (s *Server) recognize(ctx context.Context, image []byte) (*resolve.Result, error) {
	g, err := s.model.Current()
	if err != nil {
		return nil, err
	}

	embeddings, err := s.encoder.EncodeFaces(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("encoding image: %w", err)
	}

	resolver, err := resolve.NewResolver(g, s.engine, s.store, resolve.ModeBest)
	if err != nil {
		return nil, err
	}
	return resolver.Resolve(ctx, embeddings)
}

// recordSightings stores one sighting per matched person. Failures are logged,
// never surfaced to the client.
func (s *Server) recordSightings(ctx context.Context, observerID string, result *resolve.Result) {
	if !result.Found {
		return
	}
	for _, m := range result.Matches {
		_, err := s.store.RecordSighting(ctx, &directory.Sighting{
			ObserverID: observerID,
			PersonID:   m.Person.ID,
			Confidence: m.Confidence,
		})
		if err != nil {
			log.Printf("failed to record sighting of person %d: %v", m.Person.ID, err)
		}
	}
}

func (s *Server) recognizeImage(w http.ResponseWriter, r *http.Request) {
	data, err := readImageUpload(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.recognize(r.Context(), data)
	if err != nil {
		if errors.Is(err, gallery.ErrUnavailable) || errors.Is(err, gallery.ErrCorrupt) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.recordSightings(r.Context(), "api", result)
	respondJSON(w, http.StatusOK, protocol.FromResult(result))
}

func (s *Server) modelStatus(w http.ResponseWriter, r *http.Request) {
	g, err := s.model.Current()
	if err != nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"loaded": false,
			"error":  err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"loaded":        true,
		"model":         g.Model,
		"total_faces":   g.Len(),
		"unique_people": g.UniquePeople(),
	})
}

func (s *Server) trainModel(w http.ResponseWriter, r *http.Request) {
	g, summary, err := s.trainer.Run(r.Context(), nil)
	if err != nil {
		if errors.Is(err, gallery.ErrNoTrainingFaces) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.model.Swap(g)
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) validateModel(w http.ResponseWriter, r *http.Request) {
	g, err := s.model.Current()
	if err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}

	mode, err := resolve.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	refs, err := s.store.ListReferenceImages(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	harness := validate.NewHarness(s.encoder, s.engine, g, mode)
	report, err := harness.Run(r.Context(), refs, nil)
	if err != nil {
		if errors.Is(err, validate.ErrNoValidationFaces) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, report)
}
