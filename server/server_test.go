package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/png"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pthm-cable/prism/config"
	"github.com/pthm-cable/prism/field"
	"github.com/pthm-cable/prism/perturb"
	"github.com/pthm-cable/prism/search"
)

func testServer(t *testing.T) (*Server, *config.Config) {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("loading default config: %v", err)
	}
	cfg.Server.DataDir = t.TempDir()

	// Small grid keeps the search endpoint fast.
	cfg.Grid.Width = 80
	cfg.Grid.Height = 80
	cfg.Bands.Fine = config.BandConfig{NominalScale: 6, Count: 1}
	cfg.Bands.Medium = config.BandConfig{NominalScale: 10, Count: 1}
	cfg.Bands.Coarse = config.BandConfig{NominalScale: 20, Count: 2}

	s, err := New(cfg, nil, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("creating server: %v", err)
	}
	return s, cfg
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func testSnapshot(t *testing.T, cfg *config.Config) *field.Snapshot {
	t.Helper()
	m := field.NewMixture(cfg.Grid.Width, cfg.Grid.Height, field.BandSetFromConfig(cfg.Bands))
	m.GenerateAll(cfg.Generator, rand.New(rand.NewSource(7)))
	return m.Snapshot()
}

// ---------- /api/search ----------

func TestHandleSearch(t *testing.T) {
	s, cfg := testServer(t)

	req := search.Request{
		TargetMetric:    0.9,
		Band:            "coarse",
		MixtureSnapshot: testSnapshot(t, cfg),
		Coefficients:    perturb.Coefficients{Position: 1, Amplitude: 1},
		Ratio:           1,
		MaxRetries:      2,
		MaxIterPerTry:   20,
		Seed:            5,
	}

	w := postJSON(t, s.Handler(), "/api/search", req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body)
	}

	var resp search.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Data) != cfg.Grid.Width*cfg.Grid.Height {
		t.Errorf("field length %d, expected %d", len(resp.Data), cfg.Grid.Width*cfg.Grid.Height)
	}
	if resp.AchievedMetric < 0 || resp.AchievedMetric > 1 {
		t.Errorf("achieved metric %f outside [0, 1]", resp.AchievedMetric)
	}
}

func TestHandleSearch_InvalidRequest(t *testing.T) {
	s, cfg := testServer(t)

	req := search.Request{
		TargetMetric:    0.9,
		Band:            "ultra",
		MixtureSnapshot: testSnapshot(t, cfg),
		Coefficients:    perturb.Coefficients{Position: 1},
	}
	w := postJSON(t, s.Handler(), "/api/search", req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid band: status %d, expected 400", w.Code)
	}

	badBody := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, badBody)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status %d, expected 400", rec.Code)
	}
}

// ---------- /api/render ----------

func TestHandleRender(t *testing.T) {
	s, cfg := testServer(t)

	w := postJSON(t, s.Handler(), "/api/render", map[string]any{
		"snapshot":  testSnapshot(t, cfg),
		"paletteId": "viridis",
		"compress":  true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type %q", ct)
	}

	img, err := png.Decode(w.Body)
	if err != nil {
		t.Fatalf("response is not valid PNG: %v", err)
	}
	if img.Bounds().Dx() != cfg.Grid.Width || img.Bounds().Dy() != cfg.Grid.Height {
		t.Errorf("image dimensions %v", img.Bounds())
	}
}

func TestHandleRender_MissingSnapshot(t *testing.T) {
	s, _ := testServer(t)
	w := postJSON(t, s.Handler(), "/api/render", map[string]any{"paletteId": "gray"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status %d, expected 400", w.Code)
	}
}

// ---------- /api/assign ----------

func TestHandleAssign(t *testing.T) {
	s, cfg := testServer(t)

	w := postJSON(t, s.Handler(), "/api/assign", map[string]string{"participantId": "p1"})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body)
	}

	var resp struct {
		Group  int    `json:"group"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Group < 0 || resp.Group >= cfg.Server.Groups {
		t.Errorf("group %d out of range", resp.Group)
	}
	if resp.Status != "new" {
		t.Errorf("status %q, expected new", resp.Status)
	}

	// Same participant again keeps the group.
	w = postJSON(t, s.Handler(), "/api/assign", map[string]string{"participantId": "p1"})
	var again struct {
		Group  int    `json:"group"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &again); err != nil {
		t.Fatal(err)
	}
	if again.Status != "existing" || again.Group != resp.Group {
		t.Errorf("repeat assign: %+v vs first %+v", again, resp)
	}
}

func TestHandleAssign_MissingID(t *testing.T) {
	s, _ := testServer(t)
	w := postJSON(t, s.Handler(), "/api/assign", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status %d, expected 400", w.Code)
	}
}

// ---------- Data round trip ----------

func TestSaveListGetData(t *testing.T) {
	s, _ := testServer(t)
	h := s.Handler()

	csv := "trial,response\n1,same\n2,different\n"
	w := postJSON(t, h, "/api/save_data", map[string]string{
		"participantId": "p42",
		"csvData":       csv,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("save status %d: %s", w.Code, w.Body)
	}
	var saved struct {
		Status   string `json:"status"`
		Filename string `json:"filename"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &saved); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(saved.Filename, "p42_") || !strings.HasSuffix(saved.Filename, ".csv") {
		t.Errorf("unexpected filename %q", saved.Filename)
	}

	// The file shows up in the listing.
	req := httptest.NewRequest(http.MethodGet, "/api/list_data", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status %d", rec.Code)
	}
	var files []string
	if err := json.Unmarshal(rec.Body.Bytes(), &files); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range files {
		if f == saved.Filename {
			found = true
		}
	}
	if !found {
		t.Fatalf("saved file %q missing from listing %v", saved.Filename, files)
	}

	// And it reads back byte for byte.
	req = httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/get_data/%s", saved.Filename), nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status %d", rec.Code)
	}
	if rec.Body.String() != csv {
		t.Errorf("round-tripped CSV differs:\n%q\nvs\n%q", rec.Body.String(), csv)
	}
}

func TestSaveData_RejectsEmpty(t *testing.T) {
	s, _ := testServer(t)
	w := postJSON(t, s.Handler(), "/api/save_data", map[string]string{"participantId": "p1"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status %d, expected 400", w.Code)
	}
}

func TestGetData_RejectsNonCSV(t *testing.T) {
	s, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/get_data/assignments.json", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status %d, expected 404 for non-CSV name", rec.Code)
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"plain":          "plain",
		"a/b":            "a_b",
		"a\\b":           "a_b",
		"..secret":       "_secret",
		"../../etc/pass": "____etc_pass",
	}
	for in, want := range cases {
		if got := sanitizeName(in); got != want {
			t.Errorf("sanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
