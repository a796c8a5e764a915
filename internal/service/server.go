// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"time"

	"github.com/gorilla/mux"
)

// maxUploadBytes bounds multipart image uploads.
const maxUploadBytes = 16 << 20

var validTag = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Server exposes the instrument store over HTTP.
type Server struct {
	store *Store
	log   *slog.Logger
}

// NewServer wraps store in an HTTP handler. A nil logger falls back to
// the default slog logger.
func NewServer(store *Store, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{store: store, log: log}
}

// Router builds the route table for the instrument endpoints.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.HandleFunc("/instruments/{tag}/exists", s.handleExists).Methods(http.MethodGet)
	r.HandleFunc("/instruments/{tag}", s.handleFetch).Methods(http.MethodGet)
	r.HandleFunc("/instruments/{tag}/pair", s.handlePair).Methods(http.MethodPost)
	r.HandleFunc("/instruments/{tag}/pair", s.handleUnpair).Methods(http.MethodDelete)
	r.HandleFunc("/instruments/{tag}/image", s.handleImageFetch).Methods(http.MethodGet)
	r.HandleFunc("/instruments/{tag}/image", s.handleImageUpload).Methods(http.MethodPost)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requestTag pulls the tag route variable and rejects tags that could
// escape the images directory when used as a filename.
func requestTag(w http.ResponseWriter, r *http.Request) (string, bool) {
	tag := mux.Vars(r)["tag"]
	if !validTag.MatchString(tag) {
		writeError(w, http.StatusBadRequest, "invalid tag")
		return "", false
	}
	return tag, true
}

func (s *Server) handleExists(w http.ResponseWriter, r *http.Request) {
	tag, ok := requestTag(w, r)
	if !ok {
		return
	}

	exists, err := s.store.TagExists(r.Context(), tag)
	if err != nil {
		s.log.Error("tag check failed", "tag", tag, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	tag, ok := requestTag(w, r)
	if !ok {
		return
	}

	rec, err := s.store.RecordByTag(r.Context(), tag)
	if errors.Is(err, ErrNoInstrument) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no instrument paired with tag: %s", tag))
		return
	}
	if err != nil {
		s.log.Error("record fetch failed", "tag", tag, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handlePair(w http.ResponseWriter, r *http.Request) {
	tag, ok := requestTag(w, r)
	if !ok {
		return
	}

	var req struct {
		Serial string `json:"serial"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Serial == "" {
		writeError(w, http.StatusBadRequest, "serial is required")
		return
	}

	rec, err := s.store.Pair(r.Context(), tag, req.Serial)
	var conflict *ConflictError
	switch {
	case errors.Is(err, ErrSerialUnknown):
		writeError(w, http.StatusNotFound,
			fmt.Sprintf("no instrument found with serial number: %s", req.Serial))
		return
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, conflict.Message)
		return
	case err != nil:
		s.log.Error("pairing failed", "tag", tag, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.log.Info("paired", "tag", tag, "serial", req.Serial)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    fmt.Sprintf("successfully paired tag %s with %s", tag, rec.Name),
		"instrument": rec,
	})
}

func (s *Server) handleUnpair(w http.ResponseWriter, r *http.Request) {
	tag, ok := requestTag(w, r)
	if !ok {
		return
	}

	name, err := s.store.Unpair(r.Context(), tag)
	if errors.Is(err, ErrNoInstrument) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no instrument paired with tag: %s", tag))
		return
	}
	if err != nil {
		s.log.Error("unpair failed", "tag", tag, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.log.Info("unpaired", "tag", tag, "instrument", name)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("unpaired tag %s from %s", tag, name),
	})
}

func (s *Server) handleImageFetch(w http.ResponseWriter, r *http.Request) {
	tag, ok := requestTag(w, r)
	if !ok {
		return
	}

	path := s.store.ImagePath(tag)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no image for tag: %s", tag))
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handleImageUpload(w http.ResponseWriter, r *http.Request) {
	tag, ok := requestTag(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing image field")
		return
	}
	defer file.Close()

	if err := s.store.SaveImage(tag, file); err != nil {
		s.log.Error("image save failed", "tag", tag, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.log.Info("image saved", "tag", tag)
	writeJSON(w, http.StatusCreated, map[string]string{"message": "image saved"})
}
