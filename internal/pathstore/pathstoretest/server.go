// Package pathstoretest provides an in-memory pathstore HTTP server for
// tests.
package pathstoretest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dgallion1/annodoc/internal/pathstore"
)

// Server is a fake pathstore. Keys are stored in slash form and reported in
// the dotted key_path form the real service returns.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	nodes    map[string]pathstore.NodeRequest
	links    []pathstore.LinkRequest
	failures []int
	requests int
}

// New starts a fake pathstore. It is closed when the test ends.
func New(t interface{ Cleanup(func()) }) *Server {
	s := &Server{nodes: map[string]pathstore.NodeRequest{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/kv/", s.handleKV)
	mux.HandleFunc("/links", s.handleLinks)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Client returns a pathstore client pointed at the fake.
func (s *Server) Client() *pathstore.Client {
	return pathstore.NewClient(s.URL, "test-key")
}

// FailNext makes the next len(codes) requests fail with the given statuses.
func (s *Server) FailNext(codes ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, codes...)
}

// Node returns the stored request for key.
func (s *Server) Node(key string) (pathstore.NodeRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[key]
	return n, ok
}

// Keys returns every stored key in sorted order.
func (s *Server) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.nodes))
	for k := range s.nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Links returns the recorded links.
func (s *Server) Links() []pathstore.LinkRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pathstore.LinkRequest(nil), s.links...)
}

// Requests returns the number of requests served.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// Seed stores a node directly.
func (s *Server) Seed(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[key] = pathstore.NodeRequest{Value: value}
}

func (s *Server) fail(w http.ResponseWriter) bool {
	s.mu.Lock()
	s.requests++
	if len(s.failures) == 0 {
		s.mu.Unlock()
		return false
	}
	code := s.failures[0]
	s.failures = s.failures[1:]
	s.mu.Unlock()
	http.Error(w, "injected failure", code)
	return true
}

func dotted(key string) string { return strings.ReplaceAll(key, "/", ".") }

func (s *Server) handleKV(w http.ResponseWriter, r *http.Request) {
	if s.fail(w) {
		return
	}
	key := strings.TrimPrefix(r.URL.Path, "/kv/")

	switch r.Method {
	case http.MethodPut:
		var req pathstore.NodeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		_, existed := s.nodes[key]
		s.nodes[key] = req
		s.mu.Unlock()
		if existed {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusCreated)
		}

	case http.MethodGet:
		if prefix, ok := strings.CutSuffix(key, "/*"); ok {
			s.list(w, prefix, r.URL.Query().Get("limit"))
			return
		}
		s.mu.Lock()
		n, ok := s.nodes[key]
		s.mu.Unlock()
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		writeJSON(w, pathstore.NodeResponse{Key: dotted(key), Value: n.Value, MemoryType: n.MemoryType, Salience: n.Salience})

	case http.MethodDelete:
		recursive := r.URL.Query().Get("children") == "true"
		s.mu.Lock()
		_, found := s.nodes[key]
		delete(s.nodes, key)
		if recursive {
			for k := range s.nodes {
				if strings.HasPrefix(k, key+"/") {
					delete(s.nodes, k)
					found = true
				}
			}
		}
		s.mu.Unlock()
		if !found {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) list(w http.ResponseWriter, prefix, limit string) {
	n, _ := strconv.Atoi(limit)
	var nodes []pathstore.Child
	for _, k := range s.Keys() {
		if !strings.HasPrefix(k, prefix+"/") {
			continue
		}
		node, _ := s.Node(k)
		nodes = append(nodes, pathstore.Child{Key: dotted(k), Value: node.Value})
		if n > 0 && len(nodes) == n {
			break
		}
	}
	if nodes == nil {
		nodes = []pathstore.Child{}
	}
	writeJSON(w, map[string]any{"nodes": nodes})
}

func (s *Server) handleLinks(w http.ResponseWriter, r *http.Request) {
	if s.fail(w) {
		return
	}
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req pathstore.LinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.links = append(s.links, req)
	s.mu.Unlock()
	w.WriteHeader(http.StatusCreated)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
