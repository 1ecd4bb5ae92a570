// Package testutil provides testing utilities for the sync core.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Wire shapes the mock can answer /papers requests in.
const (
	ShapeItems   = "items"   // {"items": [...], "pagination": {...}}
	ShapeBare    = "bare"    // [...]
	ShapeWrapped = "wrapped" // {"data": {...}}
)

// MockService is a configurable in-memory paper service for testing. It
// serves paginated paper listings in any of the three wire shapes, accepts
// field patches, and plays back scripted job listings.
type MockService struct {
	server *httptest.Server

	mu         sync.RWMutex
	papers     []map[string]any
	shape      string
	delay      time.Duration
	failPatch  bool
	jobsScript []string

	// Tracking
	ListCount  int
	PatchCount int
	JobsCount  int
	LastQuery  map[string]string
}

// NewMockService starts a mock paper service with the given papers. Each
// paper must carry an "id" field.
func NewMockService(papers []map[string]any) *MockService {
	m := &MockService{
		papers: papers,
		shape:  ShapeItems,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/papers", m.handlePapers)
	mux.HandleFunc("/papers/", m.handlePaper)
	mux.HandleFunc("/jobs", m.handleJobs)
	m.server = httptest.NewServer(mux)

	return m
}

// URL returns the mock server URL.
func (m *MockService) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockService) Close() {
	m.server.Close()
}

// SetShape selects the wire shape for /papers responses.
func (m *MockService) SetShape(shape string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shape = shape
}

// SetDelay makes every response wait before answering.
func (m *MockService) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// SetFailPatch makes PATCH /papers/{id} answer 500.
func (m *MockService) SetFailPatch(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPatch = fail
}

// ScriptJobs queues raw JSON bodies that successive /jobs requests return
// in order. After the script is exhausted the last body repeats.
func (m *MockService) ScriptJobs(bodies ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobsScript = bodies
}

// Paper returns a copy of the stored paper with the given id.
func (m *MockService) Paper(id string) (map[string]any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.papers {
		if paperID(p) == id {
			clone := make(map[string]any, len(p))
			for k, v := range p {
				clone[k] = v
			}
			return clone, true
		}
	}
	return nil, false
}

func (m *MockService) handlePapers(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.ListCount++
	m.LastQuery = map[string]string{}
	for k := range r.URL.Query() {
		m.LastQuery[k] = r.URL.Query().Get(k)
	}
	delay := m.delay
	shape := m.shape
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", 20)
	status := r.URL.Query().Get("status")

	m.mu.RLock()
	var matched []map[string]any
	for _, p := range m.papers {
		if status != "" {
			if s, _ := p["status"].(string); s != status {
				continue
			}
		}
		matched = append(matched, p)
	}
	m.mu.RUnlock()

	total := len(matched)
	totalPages := (total + perPage - 1) / perPage
	start := (page - 1) * perPage
	end := start + perPage
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	items := matched[start:end]
	if items == nil {
		items = []map[string]any{}
	}

	w.Header().Set("Content-Type", "application/json")
	switch shape {
	case ShapeBare:
		writeJSON(w, items)
	case ShapeWrapped:
		writeJSON(w, map[string]any{
			"data": map[string]any{
				"items":       items,
				"page":        page,
				"per_page":    perPage,
				"total":       total,
				"total_pages": totalPages,
			},
		})
	default:
		writeJSON(w, map[string]any{
			"items": items,
			"pagination": map[string]any{
				"page":        page,
				"per_page":    perPage,
				"total":       total,
				"total_pages": totalPages,
				"has_prev":    page > 1,
				"has_next":    page < totalPages,
			},
		})
	}
}

func (m *MockService) handlePaper(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/papers/")

	m.mu.Lock()
	defer m.mu.Unlock()
	m.PatchCount++

	if m.failPatch {
		http.Error(w, `{"error": "internal error"}`, http.StatusInternalServerError)
		return
	}

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, fmt.Sprintf(`{"error": %q}`, err), http.StatusBadRequest)
		return
	}

	for _, p := range m.papers {
		if paperID(p) == id {
			for k, v := range patch {
				p[k] = v
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	http.Error(w, `{"error": "not found"}`, http.StatusNotFound)
}

func (m *MockService) handleJobs(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.JobsCount++
	var body string
	switch {
	case len(m.jobsScript) > 1:
		body = m.jobsScript[0]
		m.jobsScript = m.jobsScript[1:]
	case len(m.jobsScript) == 1:
		body = m.jobsScript[0]
	default:
		body = `[]`
	}
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(body))
}

// GetListCount returns the number of /papers listing requests served.
func (m *MockService) GetListCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ListCount
}

// GetJobsCount returns the number of /jobs requests served.
func (m *MockService) GetJobsCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.JobsCount
}

func paperID(p map[string]any) string {
	switch v := p["id"].(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	_ = json.NewEncoder(w).Encode(v)
}

// SamplePapers returns a small fixture set spanning both statuses.
func SamplePapers() []map[string]any {
	return []map[string]any{
		{"id": "1", "title": "Attention Is All You Need", "status": "unread", "starred": false},
		{"id": "2", "title": "Deep Residual Learning", "status": "unread", "starred": true},
		{"id": "3", "title": "BERT Pre-training", "status": "read", "starred": false},
		{"id": "4", "title": "Scaling Laws", "status": "unread", "starred": false},
		{"id": "5", "title": "Denoising Diffusion Models", "status": "read", "starred": true},
	}
}
