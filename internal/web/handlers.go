package web

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gtdsync/gtd/internal/db"
	"github.com/gtdsync/gtd/internal/schema"
	"github.com/gtdsync/gtd/internal/service"
)

const maxListLimit = 500

// Task handlers

func (s *Server) handleListTasks(c *gin.Context) {
	filter, err := taskFilter(c)
	if err != nil {
		s.badRequest(c, err)
		return
	}
	tasks, err := s.svc.ListTasks(c.Request.Context(), currentUser(c).ID, filter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, tasks)
}

func taskFilter(c *gin.Context) (db.TaskFilter, error) {
	filter := db.TaskFilter{
		ProjectID: c.Query("project_id"),
		SectionID: c.Query("section_id"),
		Type:      schema.TaskType(c.Query("type")),
		Label:     c.Query("label"),
		Context:   c.Query("context"),
	}
	if v := c.Query("completed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, fmt.Errorf("invalid completed value %q", v)
		}
		filter.Completed = &b
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, fmt.Errorf("invalid limit %q", v)
		}
		filter.Limit = min(n, maxListLimit)
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, fmt.Errorf("invalid offset %q", v)
		}
		filter.Offset = n
	}
	return filter, nil
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var in service.CreateTaskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.badRequest(c, err)
		return
	}
	task, err := s.svc.CreateTask(c.Request.Context(), currentUser(c).ID, in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, http.StatusCreated, task)
}

func (s *Server) handleGetTask(c *gin.Context) {
	task, err := s.svc.GetTask(c.Request.Context(), currentUser(c).ID, c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, task)
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	var patch service.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		s.badRequest(c, err)
		return
	}
	task, err := s.svc.UpdateTask(c.Request.Context(), currentUser(c).ID, c.Param("id"), patch)
	if err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	if err := s.svc.DeleteTask(c.Request.Context(), currentUser(c).ID, c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Project handlers

func (s *Server) handleListProjects(c *gin.Context) {
	projects, err := s.svc.ListProjects(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, projects)
}

func (s *Server) handleCreateProject(c *gin.Context) {
	var in service.CreateProjectInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.badRequest(c, err)
		return
	}
	project, err := s.svc.CreateProject(c.Request.Context(), currentUser(c).ID, in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, http.StatusCreated, project)
}

func (s *Server) handleGetProject(c *gin.Context) {
	project, err := s.svc.GetProject(c.Request.Context(), currentUser(c).ID, c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, project)
}

func (s *Server) handleUpdateProject(c *gin.Context) {
	var patch service.ProjectPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		s.badRequest(c, err)
		return
	}
	project, err := s.svc.UpdateProject(c.Request.Context(), currentUser(c).ID, c.Param("id"), patch)
	if err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, project)
}

func (s *Server) handleDeleteProject(c *gin.Context) {
	if err := s.svc.DeleteProject(c.Request.Context(), currentUser(c).ID, c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Section handlers

func (s *Server) handleListSections(c *gin.Context) {
	sections, err := s.svc.ListSections(c.Request.Context(), currentUser(c).ID, c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, sections)
}

func (s *Server) handleCreateSection(c *gin.Context) {
	var in service.CreateSectionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.badRequest(c, err)
		return
	}
	section, err := s.svc.CreateSection(c.Request.Context(), currentUser(c).ID, in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, http.StatusCreated, section)
}

func (s *Server) handleUpdateSection(c *gin.Context) {
	var patch service.SectionPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		s.badRequest(c, err)
		return
	}
	section, err := s.svc.UpdateSection(c.Request.Context(), currentUser(c).ID, c.Param("id"), patch)
	if err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, section)
}

func (s *Server) handleDeleteSection(c *gin.Context) {
	if err := s.svc.DeleteSection(c.Request.Context(), currentUser(c).ID, c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListLabels(c *gin.Context) {
	labels, err := s.svc.ListLabels(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, labels)
}
