package db

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/gtdsync/gtd/internal/apperr"
	"github.com/gtdsync/gtd/internal/schema"
)

func TestCreateTask_Defaults(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "ann@example.com")

	task := &schema.Task{UserID: u.ID, Title: "Buy milk"}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}
	if task.ID == "" {
		t.Fatal("CreateTask() should assign an ID")
	}

	got, err := db.GetTask(ctx, task.ID, u.ID)
	if err != nil {
		t.Fatalf("GetTask() failed: %v", err)
	}
	if got.Priority != 4 {
		t.Errorf("Priority = %d, want 4", got.Priority)
	}
	if got.Type != schema.TaskTypeInbox {
		t.Errorf("Type = %q, want inbox", got.Type)
	}
	if got.TodoistID != nil || got.SyncedAt != nil {
		t.Error("new local task should not be linked")
	}
	if len(got.Labels) != 0 {
		t.Errorf("Labels = %v, want empty", got.Labels)
	}
}

func TestCreateTask_Invalid(t *testing.T) {
	db := setupTestDB(t)
	u := createTestUser(t, db, "ann@example.com")

	err := db.CreateTask(context.Background(), &schema.Task{UserID: u.ID, Priority: 9, Title: "x"})
	if !apperr.IsValidation(err) {
		t.Errorf("CreateTask() error = %v, want ErrValidation", err)
	}
}

func TestTask_RoundTripAllFields(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "ann@example.com")

	project := &schema.Project{UserID: u.ID, Name: "Work"}
	if err := db.CreateProject(ctx, project); err != nil {
		t.Fatalf("CreateProject() failed: %v", err)
	}
	section := &schema.Section{ProjectID: project.ID, Name: "Todo"}
	if err := db.CreateSection(ctx, section); err != nil {
		t.Fatalf("CreateSection() failed: %v", err)
	}

	due, _ := schema.ParseDate("2024-06-01")
	synced := time.Now().UTC()
	estimate := 30
	remote := "T1"
	task := &schema.Task{
		UserID:       u.ID,
		TodoistID:    &remote,
		Title:        "Ship it",
		Description:  "release notes",
		Priority:     2,
		DueDate:      due,
		SyncedAt:     &synced,
		ProjectID:    &project.ID,
		SectionID:    &section.ID,
		Position:     3,
		Type:         schema.TaskTypeWaiting,
		WaitingFor:   "Bob",
		Energy:       schema.EnergyHigh,
		TimeEstimate: &estimate,
		Context:      "@office",
		Labels:       []string{"urgent", "work"},
	}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}

	got, err := db.FindTaskByTodoistID(ctx, "T1", u.ID)
	if err != nil {
		t.Fatalf("FindTaskByTodoistID() failed: %v", err)
	}
	if got.ID != task.ID || got.Title != "Ship it" || got.Description != "release notes" {
		t.Errorf("unexpected task: %+v", got)
	}
	if got.DueDateString() != "2024-06-01" {
		t.Errorf("DueDate = %q, want 2024-06-01", got.DueDateString())
	}
	if got.SyncedAt == nil || !got.SyncedAt.Equal(synced) {
		t.Errorf("SyncedAt = %v, want %v", got.SyncedAt, synced)
	}
	if schema.Deref(got.ProjectID) != project.ID || schema.Deref(got.SectionID) != section.ID {
		t.Error("project/section not persisted")
	}
	if got.Type != schema.TaskTypeWaiting || got.WaitingFor != "Bob" || got.Energy != schema.EnergyHigh {
		t.Errorf("GTD fields not persisted: %+v", got)
	}
	if got.TimeEstimate == nil || *got.TimeEstimate != 30 || got.Context != "@office" {
		t.Errorf("estimate/context not persisted: %+v", got)
	}
	if !reflect.DeepEqual(got.Labels, []string{"urgent", "work"}) {
		t.Errorf("Labels = %v, want [urgent work]", got.Labels)
	}
}

func TestUpdateTask(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "ann@example.com")

	task := &schema.Task{UserID: u.ID, Title: "Draft"}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}

	task.Title = "Final"
	task.Completed = true
	task.Priority = 1
	if err := db.UpdateTask(ctx, task); err != nil {
		t.Fatalf("UpdateTask() failed: %v", err)
	}

	got, err := db.GetTask(ctx, task.ID, u.ID)
	if err != nil {
		t.Fatalf("GetTask() failed: %v", err)
	}
	if got.Title != "Final" || !got.Completed || got.Priority != 1 {
		t.Errorf("update not applied: %+v", got)
	}
}

func TestTask_OwnershipIsolation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")

	task := &schema.Task{UserID: bob.ID, Title: "Bob's task"}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}

	if _, err := db.GetTask(ctx, task.ID, alice.ID); !apperr.IsNotFound(err) {
		t.Errorf("GetTask() as other user error = %v, want ErrNotFound", err)
	}

	stolen := *task
	stolen.UserID = alice.ID
	stolen.Title = "mine now"
	if err := db.UpdateTask(ctx, &stolen); !apperr.IsNotFound(err) {
		t.Errorf("UpdateTask() as other user error = %v, want ErrNotFound", err)
	}

	if err := db.DeleteTask(ctx, task.ID, alice.ID); !apperr.IsNotFound(err) {
		t.Errorf("DeleteTask() as other user error = %v, want ErrNotFound", err)
	}

	got, err := db.GetTask(ctx, task.ID, bob.ID)
	if err != nil {
		t.Fatalf("GetTask() as owner failed: %v", err)
	}
	if got.Title != "Bob's task" {
		t.Errorf("Title = %q, task was modified by another user", got.Title)
	}
}

func TestTask_TodoistIDUniquePerUser(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")

	remote := "T1"
	if err := db.CreateTask(ctx, &schema.Task{UserID: alice.ID, Title: "a", TodoistID: &remote}); err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}
	if err := db.CreateTask(ctx, &schema.Task{UserID: alice.ID, Title: "b", TodoistID: &remote}); err == nil {
		t.Error("second task with same todoist id for same user should fail")
	}
	if err := db.CreateTask(ctx, &schema.Task{UserID: bob.ID, Title: "c", TodoistID: &remote}); err != nil {
		t.Errorf("same todoist id for another user should succeed: %v", err)
	}
}

func TestReplaceTaskLabels(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "ann@example.com")

	a := &schema.Task{UserID: u.ID, Title: "A", Labels: []string{"work", "urgent"}}
	b := &schema.Task{UserID: u.ID, Title: "B", Labels: []string{"urgent"}}
	for _, task := range []*schema.Task{a, b} {
		if err := db.CreateTask(ctx, task); err != nil {
			t.Fatalf("CreateTask() failed: %v", err)
		}
	}

	before, err := db.ListLabels(ctx)
	if err != nil {
		t.Fatalf("ListLabels() failed: %v", err)
	}
	workID := labelID(before, "work")

	if err := db.ReplaceTaskLabels(ctx, a.ID, []string{"work", "archived"}); err != nil {
		t.Fatalf("ReplaceTaskLabels() failed: %v", err)
	}

	got, err := db.GetTask(ctx, a.ID, u.ID)
	if err != nil {
		t.Fatalf("GetTask() failed: %v", err)
	}
	if !reflect.DeepEqual(got.Labels, []string{"archived", "work"}) {
		t.Errorf("Labels = %v, want [archived work]", got.Labels)
	}

	after, err := db.ListLabels(ctx)
	if err != nil {
		t.Fatalf("ListLabels() failed: %v", err)
	}
	if len(after) != 3 {
		t.Errorf("label table has %d rows, want 3: %v", len(after), after)
	}
	if labelID(after, "work") != workID {
		t.Error("label work should be reused, not recreated")
	}
	if labelID(after, "urgent") == 0 {
		t.Error("label urgent should stay in the label table")
	}

	other, err := db.GetTask(ctx, b.ID, u.ID)
	if err != nil {
		t.Fatalf("GetTask() failed: %v", err)
	}
	if !reflect.DeepEqual(other.Labels, []string{"urgent"}) {
		t.Errorf("other task labels = %v, want [urgent]", other.Labels)
	}

	if err := db.ReplaceTaskLabels(ctx, a.ID, nil); err != nil {
		t.Fatalf("ReplaceTaskLabels(nil) failed: %v", err)
	}
	got, _ = db.GetTask(ctx, a.ID, u.ID)
	if len(got.Labels) != 0 {
		t.Errorf("Labels = %v, want empty", got.Labels)
	}
}

func TestReplaceTaskLabels_CaseSensitive(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "ann@example.com")

	task := &schema.Task{UserID: u.ID, Title: "A"}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}
	if err := db.ReplaceTaskLabels(ctx, task.ID, []string{"Work", "work"}); err != nil {
		t.Fatalf("ReplaceTaskLabels() failed: %v", err)
	}

	labels, err := db.ListLabels(ctx)
	if err != nil {
		t.Fatalf("ListLabels() failed: %v", err)
	}
	if len(labels) != 2 {
		t.Fatalf("label table has %d rows, want 2: %v", len(labels), labels)
	}
	upper, lower := labelID(labels, "Work"), labelID(labels, "work")
	if upper == 0 || lower == 0 || upper == lower {
		t.Errorf("Work and work should be distinct rows: %v", labels)
	}

	got, err := db.GetTask(ctx, task.ID, u.ID)
	if err != nil {
		t.Fatalf("GetTask() failed: %v", err)
	}
	if !reflect.DeepEqual(got.Labels, []string{"Work", "work"}) {
		t.Errorf("Labels = %v, want [Work work]", got.Labels)
	}
}

func labelID(labels []schema.Label, name string) int64 {
	for _, l := range labels {
		if l.Name == name {
			return l.ID
		}
	}
	return 0
}

func TestListTasks_Filters(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "ann@example.com")
	other := createTestUser(t, db, "other@example.com")

	project := &schema.Project{UserID: u.ID, Name: "Home"}
	if err := db.CreateProject(ctx, project); err != nil {
		t.Fatalf("CreateProject() failed: %v", err)
	}

	tasks := []*schema.Task{
		{UserID: u.ID, Title: "inbox item"},
		{UserID: u.ID, Title: "next", Type: schema.TaskTypeNextAction, Priority: 1, Labels: []string{"home"}},
		{UserID: u.ID, Title: "done", Completed: true, ProjectID: &project.ID},
		{UserID: u.ID, Title: "calls", Type: schema.TaskTypeNextAction, Context: "@phone"},
		{UserID: other.ID, Title: "not mine"},
	}
	for _, task := range tasks {
		if err := db.CreateTask(ctx, task); err != nil {
			t.Fatalf("CreateTask() failed: %v", err)
		}
	}

	done := true
	open := false
	tests := []struct {
		name   string
		filter TaskFilter
		want   int
	}{
		{"all", TaskFilter{}, 4},
		{"by type", TaskFilter{Type: schema.TaskTypeNextAction}, 2},
		{"completed", TaskFilter{Completed: &done}, 1},
		{"open", TaskFilter{Completed: &open}, 3},
		{"by project", TaskFilter{ProjectID: project.ID}, 1},
		{"by label", TaskFilter{Label: "home"}, 1},
		{"by context", TaskFilter{Context: "@phone"}, 1},
		{"limit", TaskFilter{Limit: 2}, 2},
		{"limit offset", TaskFilter{Limit: 2, Offset: 3}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.ListTasks(ctx, u.ID, tt.filter)
			if err != nil {
				t.Fatalf("ListTasks() failed: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("ListTasks() returned %d tasks, want %d", len(got), tt.want)
			}
		})
	}

	// Open tasks come first, then by priority
	all, _ := db.ListTasks(ctx, u.ID, TaskFilter{})
	if all[0].Title != "next" {
		t.Errorf("first task = %q, want next", all[0].Title)
	}
	if all[len(all)-1].Title != "done" {
		t.Errorf("last task = %q, want done", all[len(all)-1].Title)
	}
}

func TestListLinkedTasks(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "ann@example.com")

	remote := "T9"
	for _, task := range []*schema.Task{
		{UserID: u.ID, Title: "local"},
		{UserID: u.ID, Title: "linked", TodoistID: &remote, Labels: []string{"x"}},
	} {
		if err := db.CreateTask(ctx, task); err != nil {
			t.Fatalf("CreateTask() failed: %v", err)
		}
	}

	linked, err := db.ListLinkedTasks(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListLinkedTasks() failed: %v", err)
	}
	if len(linked) != 1 || schema.Deref(linked[0].TodoistID) != "T9" {
		t.Fatalf("ListLinkedTasks() = %v", linked)
	}
	if !reflect.DeepEqual(linked[0].Labels, []string{"x"}) {
		t.Errorf("Labels = %v, want [x]", linked[0].Labels)
	}
}
