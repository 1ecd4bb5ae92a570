package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Chen-m-y/doresearch-sync/internal/testutil"
	"github.com/Chen-m-y/doresearch-sync/pkg/bus"
	"github.com/Chen-m-y/doresearch-sync/pkg/mutation"
)

// newTestServer wires an apiServer against a mock paper service.
func newTestServer(t *testing.T) (*http.Server, *testutil.MockService) {
	t.Helper()

	svc := testutil.NewMockService(testutil.SamplePapers())
	t.Cleanup(svc.Close)

	b := bus.New()
	t.Cleanup(b.Close)

	coord, err := mutation.NewCoordinator(b, mutation.Config{
		Notify: func(message, kind string) {},
	})
	if err != nil {
		t.Fatalf("Failed to create coordinator: %v", err)
	}

	client := &serviceClient{
		baseURL: svc.URL(),
		http:    http.DefaultClient,
	}
	return apiServer("127.0.0.1:0", coord, client), svc
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	server.Handler.ServeHTTP(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestPatchEndpoint_CommitsToService(t *testing.T) {
	server, svc := newTestServer(t)

	req := httptest.NewRequest("PATCH", "/papers/1", strings.NewReader(`{"status": "read"}`))
	w := httptest.NewRecorder()
	server.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d", w.Code)
	}
	if p, ok := svc.Paper("1"); !ok || p["status"] != "read" {
		t.Errorf("Server paper 1 status = %v, want read", p["status"])
	}
}

func TestPatchEndpoint_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "wrong method", method: "GET", path: "/papers/1", want: http.StatusMethodNotAllowed},
		{name: "missing id", method: "PATCH", path: "/papers/", body: `{"status": "read"}`, want: http.StatusBadRequest},
		{name: "bad json", method: "PATCH", path: "/papers/1", body: `{"status":`, want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newTestServer(t)

			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			server.Handler.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestPatchEndpoint_ServerFailure(t *testing.T) {
	server, svc := newTestServer(t)
	svc.SetFailPatch(true)

	req := httptest.NewRequest("PATCH", "/papers/1", strings.NewReader(`{"status": "read"}`))
	w := httptest.NewRecorder()
	server.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("Expected status 502, got %d", w.Code)
	}
	if p, ok := svc.Paper("1"); !ok || p["status"] != "unread" {
		t.Errorf("Server paper 1 status = %v, want unread after failed commit", p["status"])
	}
}
