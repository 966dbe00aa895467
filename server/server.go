// Package server exposes the perturbation engine and experiment data
// collection over HTTP: search requests, rendered previews, participant
// group assignment, and CSV result persistence.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pthm-cable/prism/config"
	"github.com/pthm-cable/prism/field"
	"github.com/pthm-cable/prism/palette"
	"github.com/pthm-cable/prism/search"
	"github.com/pthm-cable/prism/telemetry"
)

// Server wires the HTTP handlers to the engine and the data directory.
type Server struct {
	cfg    *config.Config
	store  *AssignmentStore
	output *telemetry.OutputManager
	mux    *http.ServeMux
}

// New creates a server. The output manager may be nil (trial logging
// disabled).
func New(cfg *config.Config, output *telemetry.OutputManager, rng *rand.Rand) (*Server, error) {
	if err := os.MkdirAll(cfg.Server.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	s := &Server{
		cfg: cfg,
		store: NewAssignmentStore(
			filepath.Join(cfg.Server.DataDir, "assignments.json"),
			cfg.Server.Groups,
			time.Duration(cfg.Server.AssignTimeoutMins)*time.Minute,
			rng,
		),
		output: output,
		mux:    http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /api/search", s.handleSearch)
	s.mux.HandleFunc("POST /api/render", s.handleRender)
	s.mux.HandleFunc("POST /api/assign", s.handleAssign)
	s.mux.HandleFunc("POST /api/save_data", s.handleSaveData)
	s.mux.HandleFunc("GET /api/list_data", s.handleListData)
	s.mux.HandleFunc("GET /api/get_data/{name}", s.handleGetData)

	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe blocks serving on the configured address.
func (s *Server) ListenAndServe() error {
	slog.Info("server listening", "addr", s.cfg.Server.Addr, "data_dir", s.cfg.Server.DataDir)
	return http.ListenAndServe(s.cfg.Server.Addr, s.mux)
}

// errorPayload is the wire error form.
type errorPayload struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writing response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorPayload{Error: err.Error()})
}

// handleSearch runs one magnitude search. Every request gets its own
// goroutine (the serve loop's) and rebuilds its own state from the posted
// snapshot, so concurrent searches never share anything.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req search.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding search request: %w", err))
		return
	}
	if req.Seed == 0 {
		req.Seed = time.Now().UnixNano()
	}
	tolerance := req.Tolerance
	if tolerance <= 0 {
		tolerance = s.cfg.Search.Tolerance
	}

	trialID := uuid.NewString()
	start := time.Now()
	res, err := search.Run(req, s.cfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	elapsed := time.Since(start)

	record := telemetry.TrialRecord{
		TrialID:        trialID,
		Band:           req.Band,
		TargetMetric:   req.TargetMetric,
		AchievedMetric: res.AchievedMetric,
		AchievedDiff:   res.AchievedDiff,
		Magnitude:      res.Magnitude,
		Retries:        res.Retries,
		Iterations:     res.Iterations,
		Converged:      res.AchievedDiff < tolerance || req.IsEngagementCheck,
		ElapsedMs:      float64(elapsed.Microseconds()) / 1000,
		EngagementChk:  req.IsEngagementCheck,
	}
	slog.Info("search complete", "trial", record)
	if err := s.output.WriteTrial(record); err != nil {
		slog.Error("recording trial", "error", err)
	}

	writeJSON(w, http.StatusOK, res.Response())
}

// renderRequest asks for a PNG preview of a snapshot.
type renderRequest struct {
	Snapshot  *field.Snapshot `json:"snapshot"`
	PaletteID string          `json:"paletteId"`
	Exponent  float64         `json:"exponent"`
	Compress  bool            `json:"compress"`
}

// handleRender renders a posted snapshot through a palette to PNG.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding render request: %w", err))
		return
	}
	if req.Snapshot == nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing snapshot"))
		return
	}
	mix, err := field.FromSnapshot(req.Snapshot)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	grid := mix.RenderToGrid(field.StateCurrent, field.RenderOptions{
		Exponent: req.Exponent,
		Compress: req.Compress,
		Noise:    field.NewNoiseLayer(s.cfg.Generator.Noise),
	})

	w.Header().Set("Content-Type", "image/png")
	if err := palette.EncodePNG(w, grid, req.PaletteID); err != nil {
		slog.Error("encoding render", "error", err)
	}
}

// assignRequest/assignResponse mirror the original experiment backend.
type assignRequest struct {
	ParticipantID string `json:"participantId"`
}

type assignResponse struct {
	Group  int    `json:"group"`
	Status string `json:"status"`
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ParticipantID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("no participant id"))
		return
	}

	group, status, err := s.store.Assign(req.ParticipantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	slog.Info("assigned participant", "participant", req.ParticipantID, "group", group, "status", status)
	writeJSON(w, http.StatusOK, assignResponse{Group: group, Status: status})
}

// saveDataRequest carries a participant's collected CSV results.
type saveDataRequest struct {
	ParticipantID string `json:"participantId"`
	CSVData       string `json:"csvData"`
}

type saveDataResponse struct {
	Status   string `json:"status"`
	Filename string `json:"filename"`
}

// handleSaveData persists a participant's CSV and marks their assignment
// completed.
func (s *Server) handleSaveData(w http.ResponseWriter, r *http.Request) {
	var req saveDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding save request: %w", err))
		return
	}
	if req.CSVData == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("no CSV data provided"))
		return
	}
	participant := req.ParticipantID
	if participant == "" {
		participant = "unknown"
	}

	filename := fmt.Sprintf("%s_%d.csv", sanitizeName(participant), time.Now().Unix())
	path := filepath.Join(s.cfg.Server.DataDir, filename)
	if err := os.WriteFile(path, []byte(req.CSVData), 0644); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("saving data: %w", err))
		return
	}

	if err := s.store.Complete(participant); err != nil {
		// Data is saved; a stale ledger is a warning, not a failure.
		slog.Warn("updating assignment stats", "participant", participant, "error", err)
	}

	slog.Info("saved participant data", "participant", participant, "file", filename)
	writeJSON(w, http.StatusOK, saveDataResponse{Status: "success", Filename: filename})
}

func (s *Server) handleListData(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.cfg.Server.DataDir)
	if err != nil {
		writeJSON(w, http.StatusOK, []string{})
		return
	}
	files := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".csv") {
			files = append(files, e.Name())
		}
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleGetData(w http.ResponseWriter, r *http.Request) {
	name := sanitizeName(r.PathValue("name"))
	if !strings.HasSuffix(name, ".csv") {
		writeError(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	http.ServeFile(w, r, filepath.Join(s.cfg.Server.DataDir, name))
}

// sanitizeName strips path separators so data files stay inside the data
// directory.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	return name
}
