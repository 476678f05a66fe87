package service

import (
	"bytes"
	"context"
	"log"
	"net/http"
	"reflect"
	"strings"
	"testing"

	"github.com/gtdsync/gtd/internal/apperr"
	"github.com/gtdsync/gtd/internal/db"
	"github.com/gtdsync/gtd/internal/schema"
)

func TestCreateTask_SyncSuccess(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	project, err := f.svc.CreateProject(ctx, f.user.ID, CreateProjectInput{Name: "Work", SyncToTodoist: true})
	if err != nil {
		t.Fatalf("CreateProject() failed: %v", err)
	}
	task, err := f.svc.CreateTask(ctx, f.user.ID, CreateTaskInput{
		Title:         "Ship it",
		Priority:      1,
		Due:           "2024-07-01",
		ProjectID:     project.ID,
		Labels:        []string{"urgent", "work", "urgent"},
		Type:          schema.TaskTypeNextAction,
		Energy:        schema.EnergyHigh,
		SyncToTodoist: true,
	})
	if err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}
	if !task.IsLinked() || task.SyncedAt == nil {
		t.Fatalf("task not linked: todoist_id=%v synced_at=%v", task.TodoistID, task.SyncedAt)
	}

	remote := f.srv.Task(*task.TodoistID)
	if remote == nil {
		t.Fatal("remote task missing")
	}
	if remote.Content != "Ship it" {
		t.Errorf("remote content = %q", remote.Content)
	}
	if remote.Priority != 4 {
		t.Errorf("remote priority = %d, want 4", remote.Priority)
	}
	if remote.DueDate() != "2024-07-01" {
		t.Errorf("remote due = %q", remote.DueDate())
	}
	if remote.ProjectID != *project.TodoistID {
		t.Errorf("remote project = %q, want %q", remote.ProjectID, *project.TodoistID)
	}
	if !reflect.DeepEqual(remote.Labels, []string{"urgent", "work"}) {
		t.Errorf("remote labels = %v", remote.Labels)
	}

	stored, err := f.store.GetTask(ctx, task.ID, f.user.ID)
	if err != nil {
		t.Fatalf("GetTask() failed: %v", err)
	}
	if stored.Type != schema.TaskTypeNextAction || stored.Energy != schema.EnergyHigh {
		t.Errorf("GTD fields not stored: %+v", stored)
	}
	if !reflect.DeepEqual(stored.Labels, []string{"urgent", "work"}) {
		t.Errorf("stored labels = %v", stored.Labels)
	}
}

func TestCreateTask_RemoteFailureKeepsLocal(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.srv.Fail("POST /tasks", http.StatusServiceUnavailable)

	task, err := f.svc.CreateTask(ctx, f.user.ID, CreateTaskInput{Title: "Offline", SyncToTodoist: true})
	if err != nil {
		t.Fatalf("CreateTask() should succeed locally, got %v", err)
	}
	if task.TodoistID != nil || task.SyncedAt != nil {
		t.Errorf("task should be local-only: %+v", task)
	}
	if f.srv.CallsTo("POST", "/tasks") != 1 {
		t.Errorf("expected one create attempt, got %d", f.srv.CallsTo("POST", "/tasks"))
	}
	if _, err := f.store.GetTask(ctx, task.ID, f.user.ID); err != nil {
		t.Errorf("task not stored: %v", err)
	}
}

func TestCreateTask_NoSyncRequested(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	task, err := f.svc.CreateTask(ctx, f.user.ID, CreateTaskInput{Title: "Local"})
	if err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}
	if task.IsLinked() {
		t.Error("task should not be linked")
	}
	if len(f.srv.Calls()) != 0 {
		t.Errorf("unexpected remote calls: %+v", f.srv.Calls())
	}
}

func TestCreateTask_NoToken(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	task, err := f.svc.CreateTask(ctx, f.other.ID, CreateTaskInput{Title: "Local", SyncToTodoist: true})
	if err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}
	if task.IsLinked() {
		t.Error("task should not be linked")
	}
	if len(f.srv.Calls()) != 0 {
		t.Errorf("unexpected remote calls: %+v", f.srv.Calls())
	}
}

func TestCreateTask_Validation(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreateTaskInput
	}{
		{"empty title", CreateTaskInput{Title: ""}},
		{"priority too high", CreateTaskInput{Title: "x", Priority: 5}},
		{"negative priority", CreateTaskInput{Title: "x", Priority: -1}},
		{"unknown type", CreateTaskInput{Title: "x", Type: "errand"}},
		{"unknown energy", CreateTaskInput{Title: "x", Energy: "extreme"}},
		{"negative estimate", CreateTaskInput{Title: "x", TimeEstimate: ptr(-5)}},
		{"unparseable due", CreateTaskInput{Title: "x", Due: "xyzzy"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.SyncToTodoist = true
			_, err := f.svc.CreateTask(ctx, f.user.ID, tt.in)
			if !apperr.IsValidation(err) {
				t.Errorf("CreateTask() = %v, want validation error", err)
			}
		})
	}

	if len(f.srv.Calls()) != 0 {
		t.Errorf("validation failures must not reach todoist: %+v", f.srv.Calls())
	}
	tasks, _ := f.svc.ListTasks(ctx, f.user.ID, db.TaskFilter{})
	if len(tasks) != 0 {
		t.Errorf("validation failures must not store tasks, got %d", len(tasks))
	}
}

func TestCreateTask_Placement(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	home, _ := f.svc.CreateProject(ctx, f.user.ID, CreateProjectInput{Name: "Home"})
	work, _ := f.svc.CreateProject(ctx, f.user.ID, CreateProjectInput{Name: "Work"})
	section, err := f.svc.CreateSection(ctx, f.user.ID, CreateSectionInput{ProjectID: home.ID, Name: "Garden"})
	if err != nil {
		t.Fatalf("CreateSection() failed: %v", err)
	}

	_, err = f.svc.CreateTask(ctx, f.user.ID, CreateTaskInput{Title: "Mow", ProjectID: work.ID, SectionID: section.ID})
	if !apperr.IsValidation(err) {
		t.Errorf("mismatched section = %v, want validation error", err)
	}

	task, err := f.svc.CreateTask(ctx, f.user.ID, CreateTaskInput{Title: "Mow", SectionID: section.ID})
	if err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}
	if schema.Deref(task.ProjectID) != home.ID {
		t.Errorf("ProjectID = %v, want section's project %s", schema.Deref(task.ProjectID), home.ID)
	}

	foreign, _ := f.svc.CreateProject(ctx, f.other.ID, CreateProjectInput{Name: "Bob's"})
	_, err = f.svc.CreateTask(ctx, f.user.ID, CreateTaskInput{Title: "Steal", ProjectID: foreign.ID})
	if !apperr.IsNotFound(err) {
		t.Errorf("foreign project = %v, want not found", err)
	}
}

func TestUpdateTask_TitleIsOneCall(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	task := f.linkedTask(t, "Draft")

	updated, err := f.svc.UpdateTask(ctx, f.user.ID, task.ID, TaskPatch{Title: ptr("Final")})
	if err != nil {
		t.Fatalf("UpdateTask() failed: %v", err)
	}
	if updated.Title != "Final" || updated.SyncedAt == nil {
		t.Errorf("unexpected task: %+v", updated)
	}

	calls := f.srv.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected exactly one remote call, got %+v", calls)
	}
	if calls[0].Path != "/tasks/"+*task.TodoistID {
		t.Errorf("call path = %s", calls[0].Path)
	}
	if len(calls[0].Body) != 1 || calls[0].Body["content"] != "Final" {
		t.Errorf("update should only carry content, got %v", calls[0].Body)
	}
}

func TestUpdateTask_UnchangedMakesNoCalls(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	task := f.linkedTask(t, "Same")

	updated, err := f.svc.UpdateTask(ctx, f.user.ID, task.ID, TaskPatch{
		Title:   ptr("Same"),
		Context: ptr("@home"),
	})
	if err != nil {
		t.Fatalf("UpdateTask() failed: %v", err)
	}
	if len(f.srv.Calls()) != 0 {
		t.Errorf("unexpected remote calls: %+v", f.srv.Calls())
	}
	if updated.SyncedAt == nil || !updated.SyncedAt.Equal(*task.SyncedAt) {
		t.Errorf("SyncedAt = %v, want unchanged %v", updated.SyncedAt, task.SyncedAt)
	}
	if updated.Context != "@home" {
		t.Errorf("Context = %q", updated.Context)
	}
}

func TestUpdateTask_Completion(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	task := f.linkedTask(t, "Finish")
	path := "/tasks/" + *task.TodoistID

	if _, err := f.svc.UpdateTask(ctx, f.user.ID, task.ID, TaskPatch{Completed: ptr(true)}); err != nil {
		t.Fatalf("UpdateTask(complete) failed: %v", err)
	}
	if n := f.srv.CallsTo("POST", path+"/close"); n != 1 {
		t.Errorf("close calls = %d, want 1", n)
	}
	if n := f.srv.CallsTo("POST", path); n != 0 {
		t.Errorf("update calls = %d, want 0", n)
	}
	if remote := f.srv.Task(*task.TodoistID); remote == nil || !remote.IsCompleted {
		t.Error("remote task not closed")
	}

	if _, err := f.svc.UpdateTask(ctx, f.user.ID, task.ID, TaskPatch{Completed: ptr(false)}); err != nil {
		t.Fatalf("UpdateTask(reopen) failed: %v", err)
	}
	if n := f.srv.CallsTo("POST", path+"/reopen"); n != 1 {
		t.Errorf("reopen calls = %d, want 1", n)
	}

	stored, _ := f.store.GetTask(ctx, task.ID, f.user.ID)
	if stored.Completed {
		t.Error("stored task should be open")
	}
}

func TestUpdateTask_FailureClearsSyncedAt(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	task := f.linkedTask(t, "Flaky")
	f.srv.Fail("POST /tasks/", http.StatusInternalServerError)

	updated, err := f.svc.UpdateTask(ctx, f.user.ID, task.ID, TaskPatch{Title: ptr("Edited offline")})
	if err != nil {
		t.Fatalf("UpdateTask() should succeed locally, got %v", err)
	}
	if updated.SyncedAt != nil {
		t.Errorf("SyncedAt = %v, want nil after failed push", updated.SyncedAt)
	}

	stored, _ := f.store.GetTask(ctx, task.ID, f.user.ID)
	if stored.Title != "Edited offline" || stored.SyncedAt != nil {
		t.Errorf("stored task = %+v", stored)
	}
	if !stored.IsLinked() {
		t.Error("a failed push must keep the remote id")
	}
}

func TestUpdateTask_FailureLogsCause(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   string
	}{
		{"unauthorized", http.StatusUnauthorized, "rejected the stored token"},
		{"forbidden", http.StatusForbidden, "rejected the stored token"},
		{"rate limited", http.StatusTooManyRequests, "rate limited update task"},
		{"server error", http.StatusBadGateway, "update task failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupFixture(t)
			task := f.linkedTask(t, "Logged")

			var buf bytes.Buffer
			f.svc.logger = log.New(&buf, "", 0)
			f.srv.Fail("POST /tasks/", tt.status)

			updated, err := f.svc.UpdateTask(context.Background(), f.user.ID, task.ID, TaskPatch{Title: ptr("Edited")})
			if err != nil {
				t.Fatalf("UpdateTask() failed: %v", err)
			}
			if updated.SyncedAt != nil {
				t.Errorf("SyncedAt = %v, want nil", updated.SyncedAt)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("log = %q, want it to contain %q", buf.String(), tt.want)
			}
		})
	}
}

func TestUpdateTask_LinkedWithoutToken(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	task := f.linkedTask(t, "Orphaned")
	if err := f.svc.ClearTodoistToken(ctx, f.user.ID); err != nil {
		t.Fatalf("ClearTodoistToken() failed: %v", err)
	}

	updated, err := f.svc.UpdateTask(ctx, f.user.ID, task.ID, TaskPatch{Title: ptr("Changed")})
	if err != nil {
		t.Fatalf("UpdateTask() failed: %v", err)
	}
	if updated.SyncedAt != nil {
		t.Error("an unpushed change must clear SyncedAt")
	}
	if len(f.srv.Calls()) != 0 {
		t.Errorf("unexpected remote calls: %+v", f.srv.Calls())
	}
}

func TestUpdateTask_MoveMarksStale(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	task := f.linkedTask(t, "Wanderer")
	project, _ := f.svc.CreateProject(ctx, f.user.ID, CreateProjectInput{Name: "Elsewhere"})

	updated, err := f.svc.UpdateTask(ctx, f.user.ID, task.ID, TaskPatch{ProjectID: ptr(project.ID)})
	if err != nil {
		t.Fatalf("UpdateTask() failed: %v", err)
	}
	if schema.Deref(updated.ProjectID) != project.ID {
		t.Errorf("ProjectID = %v", schema.Deref(updated.ProjectID))
	}
	if updated.SyncedAt != nil {
		t.Error("a move that cannot be mirrored must clear SyncedAt")
	}
}

func TestUpdateTask_ReplacesLabels(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	task := f.linkedTask(t, "Tagged")

	updated, err := f.svc.UpdateTask(ctx, f.user.ID, task.ID, TaskPatch{Labels: &[]string{"home", "later"}})
	if err != nil {
		t.Fatalf("UpdateTask() failed: %v", err)
	}
	if !reflect.DeepEqual(updated.Labels, []string{"home", "later"}) {
		t.Errorf("Labels = %v", updated.Labels)
	}

	stored, _ := f.store.GetTask(ctx, task.ID, f.user.ID)
	if !reflect.DeepEqual(stored.Labels, []string{"home", "later"}) {
		t.Errorf("stored labels = %v", stored.Labels)
	}
	remote := f.srv.Task(*task.TodoistID)
	if !reflect.DeepEqual(remote.Labels, []string{"home", "later"}) {
		t.Errorf("remote labels = %v", remote.Labels)
	}

	labels, _ := f.store.ListLabels(ctx)
	if len(labels) != 3 {
		t.Errorf("detaching must keep label rows, got %+v", labels)
	}
}

func TestUpdateTask_ClearDue(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	task, err := f.svc.CreateTask(ctx, f.user.ID, CreateTaskInput{Title: "Dated", Due: "2024-07-01", SyncToTodoist: true})
	if err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}

	updated, err := f.svc.UpdateTask(ctx, f.user.ID, task.ID, TaskPatch{Due: ptr("")})
	if err != nil {
		t.Fatalf("UpdateTask() failed: %v", err)
	}
	if updated.DueDate != nil {
		t.Errorf("DueDate = %v, want nil", updated.DueDate)
	}
	if remote := f.srv.Task(*task.TodoistID); remote.Due != nil {
		t.Errorf("remote due = %+v, want cleared", remote.Due)
	}
}

func TestTask_OwnershipIsolation(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	task := f.linkedTask(t, "Private")

	if _, err := f.svc.GetTask(ctx, f.other.ID, task.ID); !apperr.IsNotFound(err) {
		t.Errorf("GetTask() = %v, want not found", err)
	}
	if _, err := f.svc.UpdateTask(ctx, f.other.ID, task.ID, TaskPatch{Title: ptr("Mine")}); !apperr.IsNotFound(err) {
		t.Errorf("UpdateTask() = %v, want not found", err)
	}
	if err := f.svc.DeleteTask(ctx, f.other.ID, task.ID); !apperr.IsNotFound(err) {
		t.Errorf("DeleteTask() = %v, want not found", err)
	}
	if len(f.srv.Calls()) != 0 {
		t.Errorf("foreign access must not reach todoist: %+v", f.srv.Calls())
	}

	tasks, err := f.svc.ListTasks(ctx, f.other.ID, db.TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks() failed: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("other user sees %d tasks", len(tasks))
	}
}

func TestDeleteTask(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	task := f.linkedTask(t, "Gone")
	if err := f.svc.DeleteTask(ctx, f.user.ID, task.ID); err != nil {
		t.Fatalf("DeleteTask() failed: %v", err)
	}
	if f.srv.Task(*task.TodoistID) != nil {
		t.Error("remote task should be deleted")
	}

	flaky := f.linkedTask(t, "Stubborn")
	f.srv.Fail("DELETE /tasks", http.StatusInternalServerError)
	if err := f.svc.DeleteTask(ctx, f.user.ID, flaky.ID); err != nil {
		t.Fatalf("DeleteTask() should swallow remote failure, got %v", err)
	}
	if _, err := f.store.GetTask(ctx, flaky.ID, f.user.ID); !apperr.IsNotFound(err) {
		t.Errorf("local task should be deleted, got %v", err)
	}
	if f.srv.Task(*flaky.TodoistID) == nil {
		t.Error("remote task should survive the failed delete")
	}
}

func TestTask_Notifications(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	task, _ := f.svc.CreateTask(ctx, f.user.ID, CreateTaskInput{Title: "Watched"})
	_, _ = f.svc.UpdateTask(ctx, f.user.ID, task.ID, TaskPatch{Title: ptr("Still watched")})
	_ = f.svc.DeleteTask(ctx, f.user.ID, task.ID)
	_, _ = f.svc.CreateTask(ctx, f.user.ID, CreateTaskInput{Title: ""})

	want := []event{
		{"task", f.user.ID, ActionCreated, task.ID},
		{"task", f.user.ID, ActionUpdated, task.ID},
		{"task", f.user.ID, ActionDeleted, task.ID},
	}
	if !reflect.DeepEqual(f.notifier.events, want) {
		t.Errorf("events = %+v, want %+v", f.notifier.events, want)
	}
}
