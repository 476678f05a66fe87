package dashboard

import (
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/gtdsync/gtd/internal/schema"
	"github.com/gtdsync/gtd/internal/service"
	"github.com/gtdsync/gtd/internal/sync"
)

// TaskUpdateData contains task change information
type TaskUpdateData struct {
	TaskID    string `json:"task_id"`
	Action    string `json:"action"` // created, updated, deleted
	Title     string `json:"title,omitempty"`
	Priority  int    `json:"priority,omitempty"`
	Completed bool   `json:"completed,omitempty"`
	Type      string `json:"type,omitempty"`
	Linked    bool   `json:"linked,omitempty"`
}

// ProjectUpdateData contains project change information
type ProjectUpdateData struct {
	ProjectID string `json:"project_id"`
	Action    string `json:"action"`
	Name      string `json:"name,omitempty"`
	Linked    bool   `json:"linked,omitempty"`
}

// SectionUpdateData contains section change information
type SectionUpdateData struct {
	SectionID string `json:"section_id"`
	ProjectID string `json:"project_id,omitempty"`
	Action    string `json:"action"`
	Name      string `json:"name,omitempty"`
}

// SyncFailedData carries the reason a reconciliation aborted
type SyncFailedData struct {
	Error string `json:"error"`
}

// Handler turns service and sync events into dashboard messages.
type Handler struct {
	hub    *Hub
	logger *log.Logger
}

var (
	_ service.Notifier = (*Handler)(nil)
	_ sync.Notifier    = (*Handler)(nil)
)

// NewHandler creates a handler publishing to hub.
func NewHandler(hub *Hub, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}
	return &Handler{hub: hub, logger: logger}
}

// OnTaskChanged handles task creation and update events
func (h *Handler) OnTaskChanged(userID string, action service.Action, task *schema.Task) {
	h.publish(userID, MessageTypeTaskUpdate, TaskUpdateData{
		TaskID:    task.ID,
		Action:    string(action),
		Title:     task.Title,
		Priority:  task.Priority,
		Completed: task.Completed,
		Type:      string(task.Type),
		Linked:    task.IsLinked(),
	})
}

// OnTaskDeleted handles task deletion events
func (h *Handler) OnTaskDeleted(userID, taskID string) {
	h.publish(userID, MessageTypeTaskUpdate, TaskUpdateData{
		TaskID: taskID,
		Action: string(service.ActionDeleted),
	})
}

// OnProjectChanged handles project creation and update events
func (h *Handler) OnProjectChanged(userID string, action service.Action, project *schema.Project) {
	h.publish(userID, MessageTypeProjectUpdate, ProjectUpdateData{
		ProjectID: project.ID,
		Action:    string(action),
		Name:      project.Name,
		Linked:    project.IsLinked(),
	})
}

// OnProjectDeleted handles project deletion events
func (h *Handler) OnProjectDeleted(userID, projectID string) {
	h.publish(userID, MessageTypeProjectUpdate, ProjectUpdateData{
		ProjectID: projectID,
		Action:    string(service.ActionDeleted),
	})
}

// OnSectionChanged handles section creation and update events
func (h *Handler) OnSectionChanged(userID string, action service.Action, section *schema.Section) {
	h.publish(userID, MessageTypeSectionUpdate, SectionUpdateData{
		SectionID: section.ID,
		ProjectID: section.ProjectID,
		Action:    string(action),
		Name:      section.Name,
	})
}

// OnSectionDeleted handles section deletion events
func (h *Handler) OnSectionDeleted(userID, sectionID string) {
	h.publish(userID, MessageTypeSectionUpdate, SectionUpdateData{
		SectionID: sectionID,
		Action:    string(service.ActionDeleted),
	})
}

// OnSyncCompleted handles finished reconciliations
func (h *Handler) OnSyncCompleted(userID string, result *sync.Result) {
	h.publish(userID, MessageTypeSyncComplete, result)
}

// OnSyncFailed handles aborted reconciliations
func (h *Handler) OnSyncFailed(userID string, err error) {
	h.publish(userID, MessageTypeSyncFailed, SyncFailedData{Error: err.Error()})
}

func (h *Handler) publish(userID string, typ MessageType, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.hub.Publish(userID, Message{
		Type:      typ,
		Timestamp: time.Now().UTC(),
		Data:      dataJSON,
	})
}
