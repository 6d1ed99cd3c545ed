package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// StoreServer imitates the extension update service. It serves the container registered
// for the ID named in the x=id%3D<id>%26uc parameter and answers 204 for unknown IDs.
type StoreServer struct {
	*httptest.Server

	requests atomic.Int64

	mu       sync.Mutex
	bodies   map[string][]byte
	handlers map[string]http.HandlerFunc
	hits     map[string]int
}

// NewStoreServer starts a StoreServer that is closed when the test ends.
func NewStoreServer(t *testing.T) *StoreServer {
	t.Helper()
	s := &StoreServer{
		bodies:   make(map[string][]byte),
		handlers: make(map[string]http.HandlerFunc),
		hits:     make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Add registers the container served for id.
func (s *StoreServer) Add(id string, body []byte) *StoreServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodies[id] = body
	return s
}

// Handle registers a custom handler for id, replacing any container.
func (s *StoreServer) Handle(id string, h http.HandlerFunc) *StoreServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[id] = h
	return s
}

// Hits returns how many requests named id.
func (s *StoreServer) Hits(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[id]
}

// Requests returns the total number of requests served.
func (s *StoreServer) Requests() int64 {
	return s.requests.Load()
}

func (s *StoreServer) serve(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)
	id := ExtensionID(r)

	s.mu.Lock()
	s.hits[id]++
	handler, hasHandler := s.handlers[id]
	body, hasBody := s.bodies[id]
	s.mu.Unlock()

	switch {
	case hasHandler:
		handler(w, r)
	case hasBody:
		w.Header().Set("Content-Type", "application/x-chrome-extension")
		_, _ = w.Write(body)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// ExtensionID extracts the extension ID from an update service request.
func ExtensionID(r *http.Request) string {
	x := r.URL.Query().Get("x")
	return strings.TrimSuffix(strings.TrimPrefix(x, "id="), "&uc")
}
