// Package todoisttest provides an in-memory fake of the Todoist REST API
// for tests, with failure injection.
package todoisttest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/gtdsync/gtd/internal/todoist"
)

// Token is the credential the fake server accepts.
const Token = "test-token"

// Call records one request received by the server.
type Call struct {
	Method string
	Path   string
	Body   map[string]any
}

// Server is a fake Todoist backend.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	nextID   int
	projects []*todoist.Project
	sections []*todoist.Section
	tasks    []*todoist.Task
	labels   []*todoist.Label
	failures map[string]int
	calls    []Call
}

// NewServer starts a fake server that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{nextID: 1000, failures: make(map[string]int)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /tasks", s.listTasks)
	mux.HandleFunc("POST /tasks", s.createTask)
	mux.HandleFunc("GET /tasks/{id}", s.getTask)
	mux.HandleFunc("POST /tasks/{id}", s.updateTask)
	mux.HandleFunc("DELETE /tasks/{id}", s.deleteTask)
	mux.HandleFunc("POST /tasks/{id}/close", s.closeTask)
	mux.HandleFunc("POST /tasks/{id}/reopen", s.reopenTask)
	mux.HandleFunc("GET /projects", s.listProjects)
	mux.HandleFunc("POST /projects", s.createProject)
	mux.HandleFunc("GET /projects/{id}", s.getProject)
	mux.HandleFunc("POST /projects/{id}", s.updateProject)
	mux.HandleFunc("DELETE /projects/{id}", s.deleteProject)
	mux.HandleFunc("GET /sections", s.listSections)
	mux.HandleFunc("POST /sections", s.createSection)
	mux.HandleFunc("GET /sections/{id}", s.getSection)
	mux.HandleFunc("POST /sections/{id}", s.updateSection)
	mux.HandleFunc("DELETE /sections/{id}", s.deleteSection)
	mux.HandleFunc("GET /labels", s.listLabels)
	mux.HandleFunc("GET /labels/{id}", s.getLabel)

	s.Server = httptest.NewServer(s.intercept(mux))
	t.Cleanup(s.Close)
	return s
}

// Client returns a todoist client pointed at the server.
func (s *Server) Client(t testing.TB) *todoist.Client {
	t.Helper()
	c, err := todoist.NewClient(Token, todoist.WithBaseURL(s.URL), todoist.WithHTTPClient(s.Server.Client()))
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}
	return c
}

// Fail makes every request matching "METHOD /path-prefix" answer with status.
// A bare "*" fails every request.
func (s *Server) Fail(route string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = status
}

// Heal removes all injected failures.
func (s *Server) Heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.failures)
}

// Calls returns the requests received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// CallsTo counts received requests matching method and exact path.
func (s *Server) CallsTo(method, path string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

// ResetCalls forgets the recorded requests.
func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// AddProject seeds a remote project.
func (s *Server) AddProject(p todoist.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = s.newID()
	}
	s.projects = append(s.projects, &p)
}

// AddSection seeds a remote section.
func (s *Server) AddSection(sec todoist.Section) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sec.ID == "" {
		sec.ID = s.newID()
	}
	s.sections = append(s.sections, &sec)
}

// AddTask seeds a remote task.
func (s *Server) AddTask(t todoist.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = s.newID()
	}
	if t.Labels == nil {
		t.Labels = []string{}
	}
	s.tasks = append(s.tasks, &t)
}

// AddLabel seeds a remote label.
func (s *Server) AddLabel(l todoist.Label) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == "" {
		l.ID = s.newID()
	}
	s.labels = append(s.labels, &l)
}

// MoveSection reassigns a remote section to another project.
func (s *Server) MoveSection(id, projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sec := range s.sections {
		if sec.ID == id {
			sec.ProjectID = projectID
		}
	}
}

// SetProjectParent nests a remote project under parentID, or lifts it to
// the top level when parentID is empty.
func (s *Server) SetProjectParent(id, parentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.projects {
		if p.ID == id {
			p.ParentID = parentID
		}
	}
}

// Task returns a copy of a remote task, or nil.
func (s *Server) Task(id string) *todoist.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.findTask(id); t != nil {
		cp := *t
		cp.Labels = slices.Clone(t.Labels)
		return &cp
	}
	return nil
}

// Project returns a copy of a remote project, or nil.
func (s *Server) Project(id string) *todoist.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.projects {
		if p.ID == id {
			cp := *p
			return &cp
		}
	}
	return nil
}

// TaskCount returns the number of remote tasks.
func (s *Server) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *Server) newID() string {
	s.nextID++
	return fmt.Sprintf("%d", s.nextID)
}

// intercept records calls, checks the bearer token and applies injected failures.
func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := Call{Method: r.Method, Path: r.URL.Path}
		if r.Body != nil && r.ContentLength != 0 {
			_ = json.NewDecoder(r.Body).Decode(&call.Body)
		}

		s.mu.Lock()
		s.calls = append(s.calls, call)
		status := s.failureFor(r.Method, r.URL.Path)
		s.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer "+Token {
			http.Error(w, "Forbidden", http.StatusUnauthorized)
			return
		}
		if status != 0 {
			http.Error(w, http.StatusText(status), status)
			return
		}

		if call.Body != nil {
			r = r.WithContext(withBody(r.Context(), call.Body))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) failureFor(method, path string) int {
	if status, ok := s.failures["*"]; ok {
		return status
	}
	for route, status := range s.failures {
		m, prefix, ok := strings.Cut(route, " ")
		if ok && m == method && strings.HasPrefix(path, prefix) {
			return status
		}
	}
	return 0
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
