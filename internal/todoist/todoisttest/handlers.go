package todoisttest

import (
	"context"
	"net/http"
	"slices"

	"github.com/gtdsync/gtd/internal/todoist"
)

type bodyKey struct{}

func withBody(ctx context.Context, body map[string]any) context.Context {
	return context.WithValue(ctx, bodyKey{}, body)
}

func bodyOf(r *http.Request) map[string]any {
	b, _ := r.Context().Value(bodyKey{}).(map[string]any)
	if b == nil {
		return map[string]any{}
	}
	return b
}

func str(b map[string]any, key string) (string, bool) {
	v, ok := b[key].(string)
	return v, ok
}

func num(b map[string]any, key string) (int, bool) {
	v, ok := b[key].(float64)
	return int(v), ok
}

func boolean(b map[string]any, key string) (bool, bool) {
	v, ok := b[key].(bool)
	return v, ok
}

func stringList(b map[string]any, key string) ([]string, bool) {
	raw, ok := b[key].([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, true
}

func (s *Server) findTask(id string) *todoist.Task {
	for _, t := range s.tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]todoist.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if !t.IsCompleted {
			out = append(out, *t)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.findTask(r.PathValue("id"))
	if t == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	b := bodyOf(r)
	content, _ := str(b, "content")
	if content == "" {
		http.Error(w, "Argument content is missing", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t := &todoist.Task{ID: s.newID(), Content: content, Priority: 1, Labels: []string{}}
	applyTask(t, b)
	if t.ProjectID == "" && len(s.projects) > 0 {
		t.ProjectID = s.projects[0].ID
	}
	s.tasks = append(s.tasks, t)
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.findTask(r.PathValue("id"))
	if t == nil {
		http.NotFound(w, r)
		return
	}
	applyTask(t, bodyOf(r))
	writeJSON(w, http.StatusOK, t)
}

func applyTask(t *todoist.Task, b map[string]any) {
	if v, ok := str(b, "content"); ok {
		t.Content = v
	}
	if v, ok := str(b, "description"); ok {
		t.Description = v
	}
	if v, ok := num(b, "priority"); ok {
		t.Priority = v
	}
	if v, ok := str(b, "due_date"); ok {
		t.Due = &todoist.Due{Date: v, String: v}
	}
	if v, ok := str(b, "due_string"); ok && v == todoist.NoDate {
		t.Due = nil
	}
	if v, ok := stringList(b, "labels"); ok {
		t.Labels = v
	}
	if v, ok := str(b, "project_id"); ok {
		t.ProjectID = v
	}
	if v, ok := str(b, "section_id"); ok {
		t.SectionID = v
	}
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := r.PathValue("id")
	n := len(s.tasks)
	s.tasks = slices.DeleteFunc(s.tasks, func(t *todoist.Task) bool { return t.ID == id })
	if len(s.tasks) == n {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) closeTask(w http.ResponseWriter, r *http.Request) {
	s.setCompleted(w, r, true)
}

func (s *Server) reopenTask(w http.ResponseWriter, r *http.Request) {
	s.setCompleted(w, r, false)
}

func (s *Server) setCompleted(w http.ResponseWriter, r *http.Request, done bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.findTask(r.PathValue("id"))
	if t == nil {
		http.NotFound(w, r)
		return
	}
	t.IsCompleted = done
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]todoist.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, *p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.projects {
		if p.ID == r.PathValue("id") {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	http.NotFound(w, r)
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	b := bodyOf(r)
	name, _ := str(b, "name")
	if name == "" {
		http.Error(w, "Argument name is missing", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p := &todoist.Project{ID: s.newID(), Name: name, Color: "charcoal", ViewStyle: "list", Order: len(s.projects) + 1}
	applyProject(p, b)
	if v, ok := str(b, "parent_id"); ok {
		p.ParentID = v
	}
	s.projects = append(s.projects, p)
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) updateProject(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.projects {
		if p.ID == r.PathValue("id") {
			applyProject(p, bodyOf(r))
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	http.NotFound(w, r)
}

func applyProject(p *todoist.Project, b map[string]any) {
	if v, ok := str(b, "name"); ok {
		p.Name = v
	}
	if v, ok := str(b, "color"); ok {
		p.Color = v
	}
	if v, ok := boolean(b, "is_favorite"); ok {
		p.IsFavorite = v
	}
	if v, ok := str(b, "view_style"); ok {
		p.ViewStyle = v
	}
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := r.PathValue("id")
	n := len(s.projects)
	s.projects = slices.DeleteFunc(s.projects, func(p *todoist.Project) bool { return p.ID == id })
	if len(s.projects) == n {
		http.NotFound(w, r)
		return
	}
	s.sections = slices.DeleteFunc(s.sections, func(sec *todoist.Section) bool { return sec.ProjectID == id })
	s.tasks = slices.DeleteFunc(s.tasks, func(t *todoist.Task) bool { return t.ProjectID == id })
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listSections(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	projectID := r.URL.Query().Get("project_id")
	out := make([]todoist.Section, 0, len(s.sections))
	for _, sec := range s.sections {
		if projectID == "" || sec.ProjectID == projectID {
			out = append(out, *sec)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getSection(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sec := range s.sections {
		if sec.ID == r.PathValue("id") {
			writeJSON(w, http.StatusOK, sec)
			return
		}
	}
	http.NotFound(w, r)
}

func (s *Server) createSection(w http.ResponseWriter, r *http.Request) {
	b := bodyOf(r)
	name, _ := str(b, "name")
	projectID, _ := str(b, "project_id")
	if name == "" || projectID == "" {
		http.Error(w, "Argument name or project_id is missing", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sec := &todoist.Section{ID: s.newID(), Name: name, ProjectID: projectID}
	if v, ok := num(b, "order"); ok {
		sec.Order = v
	}
	s.sections = append(s.sections, sec)
	writeJSON(w, http.StatusOK, sec)
}

func (s *Server) updateSection(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sec := range s.sections {
		if sec.ID == r.PathValue("id") {
			if v, ok := str(bodyOf(r), "name"); ok {
				sec.Name = v
			}
			writeJSON(w, http.StatusOK, sec)
			return
		}
	}
	http.NotFound(w, r)
}

func (s *Server) deleteSection(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := r.PathValue("id")
	n := len(s.sections)
	s.sections = slices.DeleteFunc(s.sections, func(sec *todoist.Section) bool { return sec.ID == id })
	if len(s.sections) == n {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listLabels(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]todoist.Label, 0, len(s.labels))
	for _, l := range s.labels {
		out = append(out, *l)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getLabel(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.labels {
		if l.ID == r.PathValue("id") {
			writeJSON(w, http.StatusOK, l)
			return
		}
	}
	http.NotFound(w, r)
}
