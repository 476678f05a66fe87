package sync

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gtdsync/gtd/internal/apperr"
	"github.com/gtdsync/gtd/internal/db"
	"github.com/gtdsync/gtd/internal/schema"
	"github.com/gtdsync/gtd/internal/todoist"
	"github.com/gtdsync/gtd/internal/todoist/todoisttest"
)

type fixture struct {
	store  *db.DB
	srv    *todoisttest.Server
	user   *schema.User
	engine Engine
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// setupFixture opens a store with one connected user and a fake Todoist server.
func setupFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	user := &schema.User{Email: "ann@example.com"}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	if err := store.SetTodoistToken(ctx, user.ID, todoisttest.Token); err != nil {
		t.Fatalf("SetTodoistToken() failed: %v", err)
	}

	srv := todoisttest.NewServer(t)
	factory := TodoistFactory(todoist.WithBaseURL(srv.URL), todoist.WithLogger(quietLogger()))

	return &fixture{
		store:  store,
		srv:    srv,
		user:   user,
		engine: New(store, factory, nil, quietLogger()),
	}
}

// seedScenario adds project P1 "Work", section S1 "Todo" and task T1 "Ship it".
func seedScenario(srv *todoisttest.Server) {
	srv.AddProject(todoist.Project{ID: "P1", Name: "Work", Color: "blue", Order: 1})
	srv.AddSection(todoist.Section{ID: "S1", ProjectID: "P1", Name: "Todo", Order: 1})
	srv.AddTask(todoist.Task{
		ID:        "T1",
		Content:   "Ship it",
		Priority:  3,
		ProjectID: "P1",
		SectionID: "S1",
		Labels:    []string{"urgent"},
		Due:       &todoist.Due{Date: "2024-07-01"},
	})
}

func TestSyncAll_EndToEnd(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	seedScenario(f.srv)

	result, err := f.engine.SyncAll(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("SyncAll() failed: %v", err)
	}
	want := Result{
		Projects: Counts{Imported: 1},
		Sections: Counts{Imported: 1},
		Tasks:    Counts{Imported: 1},
	}
	if *result != want {
		t.Fatalf("first SyncAll() = %+v, want %+v", *result, want)
	}

	project, err := f.store.FindProjectByTodoistID(ctx, "P1", f.user.ID)
	if err != nil {
		t.Fatalf("project P1 not imported: %v", err)
	}
	if project.Name != "Work" || project.Color != "blue" || project.SyncedAt == nil {
		t.Errorf("unexpected project: %+v", project)
	}
	section, err := f.store.FindSectionByTodoistID(ctx, "S1", project.ID)
	if err != nil {
		t.Fatalf("section S1 not imported: %v", err)
	}

	task, err := f.store.FindTaskByTodoistID(ctx, "T1", f.user.ID)
	if err != nil {
		t.Fatalf("task T1 not imported: %v", err)
	}
	if task.Title != "Ship it" {
		t.Errorf("Title = %q", task.Title)
	}
	if task.Priority != 2 {
		t.Errorf("Priority = %d, want 2", task.Priority)
	}
	if schema.Deref(task.ProjectID) != project.ID {
		t.Errorf("ProjectID = %v, want %s", task.ProjectID, project.ID)
	}
	if schema.Deref(task.SectionID) != section.ID {
		t.Errorf("SectionID = %v, want %s", task.SectionID, section.ID)
	}
	if !reflect.DeepEqual(task.Labels, []string{"urgent"}) {
		t.Errorf("Labels = %v, want [urgent]", task.Labels)
	}
	if task.DueDateString() != "2024-07-01" {
		t.Errorf("DueDate = %q", task.DueDateString())
	}
	if task.SyncedAt == nil {
		t.Error("SyncedAt should be set")
	}

	result, err = f.engine.SyncAll(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("second SyncAll() failed: %v", err)
	}
	want = Result{
		Projects: Counts{Updated: 1},
		Sections: Counts{Updated: 1},
		Tasks:    Counts{Updated: 1},
	}
	if *result != want {
		t.Errorf("second SyncAll() = %+v, want %+v", *result, want)
	}

	stats, err := f.store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	if stats.Projects != 1 || stats.Sections != 1 || stats.Tasks != 1 || stats.Labels != 1 {
		t.Errorf("second run duplicated rows: %+v", stats)
	}
}

func TestSyncAll_Idempotent(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		id := string(rune('A' + i))
		f.srv.AddProject(todoist.Project{ID: "P" + id, Name: "Project " + id})
		f.srv.AddTask(todoist.Task{ID: "T" + id, Content: "Task " + id, Priority: 1, ProjectID: "P" + id})
	}
	f.srv.AddTask(todoist.Task{ID: "TX", Content: "Inbox", Priority: 4})

	first, err := f.engine.SyncAll(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("SyncAll() failed: %v", err)
	}
	if first.Projects.Imported != 3 || first.Tasks.Imported != 4 {
		t.Fatalf("first SyncAll() = %+v", first)
	}

	second, err := f.engine.SyncAll(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("SyncAll() failed: %v", err)
	}
	if second.Projects != (Counts{Updated: 3}) || second.Tasks != (Counts{Updated: 4}) {
		t.Errorf("second SyncAll() = %+v", second)
	}
}

func TestSyncAll_AppliesRemoteChanges(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	seedScenario(f.srv)

	if _, err := f.engine.SyncAll(ctx, f.user.ID); err != nil {
		t.Fatalf("SyncAll() failed: %v", err)
	}

	client := f.srv.Client(t)
	content := "Ship it today"
	prio := 4
	labels := []string{"work", "archived"}
	args := todoist.UpdateTaskArgs{Content: &content, Priority: &prio, Labels: &labels}
	args.SetDueDate("")
	if _, err := client.UpdateTask(ctx, "T1", args); err != nil {
		t.Fatalf("UpdateTask() failed: %v", err)
	}

	if _, err := f.engine.SyncAll(ctx, f.user.ID); err != nil {
		t.Fatalf("SyncAll() failed: %v", err)
	}

	task, err := f.store.FindTaskByTodoistID(ctx, "T1", f.user.ID)
	if err != nil {
		t.Fatalf("FindTaskByTodoistID() failed: %v", err)
	}
	if task.Title != content || task.Priority != 1 {
		t.Errorf("task not updated: %+v", task)
	}
	if task.DueDate != nil {
		t.Errorf("DueDate = %v, want cleared", task.DueDate)
	}
	if !reflect.DeepEqual(task.Labels, []string{"archived", "work"}) {
		t.Errorf("Labels = %v, want [archived work]", task.Labels)
	}
}

func TestSyncAll_KeepsLocalGTDFields(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	seedScenario(f.srv)

	if _, err := f.engine.SyncAll(ctx, f.user.ID); err != nil {
		t.Fatalf("SyncAll() failed: %v", err)
	}
	task, _ := f.store.FindTaskByTodoistID(ctx, "T1", f.user.ID)
	task.Type = schema.TaskTypeNextAction
	task.Context = "@office"
	task.Energy = schema.EnergyLow
	if err := f.store.UpdateTask(ctx, task); err != nil {
		t.Fatalf("UpdateTask() failed: %v", err)
	}

	if _, err := f.engine.SyncAll(ctx, f.user.ID); err != nil {
		t.Fatalf("SyncAll() failed: %v", err)
	}
	got, _ := f.store.FindTaskByTodoistID(ctx, "T1", f.user.ID)
	if got.Type != schema.TaskTypeNextAction || got.Context != "@office" || got.Energy != schema.EnergyLow {
		t.Errorf("local GTD fields overwritten: %+v", got)
	}
}

func TestSyncAll_NoCredential(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	if err := f.store.SetTodoistToken(ctx, f.user.ID, ""); err != nil {
		t.Fatalf("SetTodoistToken() failed: %v", err)
	}

	_, err := f.engine.SyncAll(ctx, f.user.ID)
	if !errors.Is(err, apperr.ErrNoCredential) {
		t.Fatalf("SyncAll() error = %v, want ErrNoCredential", err)
	}
	if n := len(f.srv.Calls()); n != 0 {
		t.Errorf("server received %d calls, want 0", n)
	}
}

func TestSyncAll_FetchFailureAborts(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	seedScenario(f.srv)
	f.srv.Fail("GET /tasks", http.StatusServiceUnavailable)

	_, err := f.engine.SyncAll(ctx, f.user.ID)
	if !errors.Is(err, apperr.ErrInternal) {
		t.Fatalf("SyncAll() error = %v, want ErrInternal", err)
	}
	var apiErr *todoist.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("error should carry the remote status, got %v", err)
	}

	// Earlier passes stay committed
	if _, err := f.store.FindProjectByTodoistID(ctx, "P1", f.user.ID); err != nil {
		t.Errorf("project from completed pass should be kept: %v", err)
	}
	if _, err := f.store.FindTaskByTodoistID(ctx, "T1", f.user.ID); !apperr.IsNotFound(err) {
		t.Errorf("task should not be imported, got %v", err)
	}
}

func TestSyncAll_SkipsSectionsOfUnknownProjects(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.srv.AddSection(todoist.Section{ID: "S9", ProjectID: "P-missing", Name: "Lost"})
	f.srv.AddTask(todoist.Task{ID: "T9", Content: "Lost task", Priority: 2, ProjectID: "P-missing", SectionID: "S9"})

	result, err := f.engine.SyncAll(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("SyncAll() failed: %v", err)
	}
	if result.Sections != (Counts{}) {
		t.Errorf("Sections = %+v, want none", result.Sections)
	}
	if result.Tasks.Imported != 1 {
		t.Errorf("Tasks = %+v, want one import", result.Tasks)
	}

	task, err := f.store.FindTaskByTodoistID(ctx, "T9", f.user.ID)
	if err != nil {
		t.Fatalf("FindTaskByTodoistID() failed: %v", err)
	}
	if task.ProjectID != nil || task.SectionID != nil {
		t.Errorf("orphan task should have no project/section: %+v", task)
	}
}

func TestSyncTasks_BeforeProjectsImportsOrphans(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	seedScenario(f.srv)

	r := f.engine.(*engine).newRun(f.user.ID, f.srv.Client(t))
	counts, err := r.syncTasks(ctx)
	if err != nil {
		t.Fatalf("syncTasks() failed: %v", err)
	}
	if counts.Imported != 1 {
		t.Fatalf("syncTasks() = %+v, want one import", counts)
	}

	task, err := f.store.FindTaskByTodoistID(ctx, "T1", f.user.ID)
	if err != nil {
		t.Fatalf("FindTaskByTodoistID() failed: %v", err)
	}
	if task.ProjectID != nil || task.SectionID != nil {
		t.Errorf("task should be imported as orphan: %+v", task)
	}

	// A full run afterwards links the existing task instead of duplicating it
	result, err := f.engine.SyncAll(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("SyncAll() failed: %v", err)
	}
	if result.Tasks != (Counts{Updated: 1}) {
		t.Errorf("Tasks = %+v, want one update", result.Tasks)
	}
	task, _ = f.store.FindTaskByTodoistID(ctx, "T1", f.user.ID)
	if task.ProjectID == nil || task.SectionID == nil {
		t.Error("task should be linked to its project and section after full sync")
	}
}

func TestSyncAll_LinksProjectParents(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	// Child listed before its parent
	f.srv.AddProject(todoist.Project{ID: "P2", Name: "Child", ParentID: "P1"})
	f.srv.AddProject(todoist.Project{ID: "P1", Name: "Parent"})

	if _, err := f.engine.SyncAll(ctx, f.user.ID); err != nil {
		t.Fatalf("SyncAll() failed: %v", err)
	}

	parent, _ := f.store.FindProjectByTodoistID(ctx, "P1", f.user.ID)
	child, err := f.store.FindProjectByTodoistID(ctx, "P2", f.user.ID)
	if err != nil {
		t.Fatalf("FindProjectByTodoistID() failed: %v", err)
	}
	if schema.Deref(child.ParentID) != parent.ID {
		t.Errorf("ParentID = %v, want %s", child.ParentID, parent.ID)
	}
}

func TestSyncAll_DetachesProjectMovedToTop(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.srv.AddProject(todoist.Project{ID: "P1", Name: "Parent"})
	f.srv.AddProject(todoist.Project{ID: "P2", Name: "Child", ParentID: "P1"})
	if _, err := f.engine.SyncAll(ctx, f.user.ID); err != nil {
		t.Fatalf("SyncAll() failed: %v", err)
	}

	f.srv.SetProjectParent("P2", "")
	if _, err := f.engine.SyncAll(ctx, f.user.ID); err != nil {
		t.Fatalf("second SyncAll() failed: %v", err)
	}

	child, err := f.store.FindProjectByTodoistID(ctx, "P2", f.user.ID)
	if err != nil {
		t.Fatalf("FindProjectByTodoistID() failed: %v", err)
	}
	if child.ParentID != nil {
		t.Errorf("ParentID = %q, want nil after moving to the top level", *child.ParentID)
	}
}

func TestSyncAll_SectionMovedBetweenProjects(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	seedScenario(f.srv)
	f.srv.AddProject(todoist.Project{ID: "P2", Name: "Home", Order: 2})
	if _, err := f.engine.SyncAll(ctx, f.user.ID); err != nil {
		t.Fatalf("SyncAll() failed: %v", err)
	}
	home, _ := f.store.FindProjectByTodoistID(ctx, "P2", f.user.ID)
	before, err := f.store.FindUserSectionByTodoistID(ctx, "S1", f.user.ID)
	if err != nil {
		t.Fatalf("FindUserSectionByTodoistID() failed: %v", err)
	}

	f.srv.MoveSection("S1", "P2")
	result, err := f.engine.SyncAll(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("second SyncAll() failed: %v", err)
	}
	if result.Sections != (Counts{Updated: 1}) {
		t.Errorf("Sections = %+v, want one update and no import", result.Sections)
	}

	sections, err := f.store.ListUserSections(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("ListUserSections() failed: %v", err)
	}
	if len(sections) != 1 {
		t.Fatalf("got %d local sections, want 1: %v", len(sections), sections)
	}
	if sections[0].ID != before.ID || sections[0].ProjectID != home.ID {
		t.Errorf("section = %+v, want id %s under project %s", sections[0], before.ID, home.ID)
	}
}

func TestSyncAll_InvalidRemotePriority(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.srv.AddTask(todoist.Task{ID: "T0", Content: "Odd", Priority: 0})

	if _, err := f.engine.SyncAll(ctx, f.user.ID); err != nil {
		t.Fatalf("SyncAll() failed: %v", err)
	}
	task, _ := f.store.FindTaskByTodoistID(ctx, "T0", f.user.ID)
	if task.Priority != 4 {
		t.Errorf("Priority = %d, want 4", task.Priority)
	}
}

type recordingNotifier struct {
	completed []*Result
	failed    []error
}

func (n *recordingNotifier) OnSyncCompleted(userID string, r *Result) {
	n.completed = append(n.completed, r)
}

func (n *recordingNotifier) OnSyncFailed(userID string, err error) {
	n.failed = append(n.failed, err)
}

func TestSyncAll_Notifies(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	seedScenario(f.srv)

	notifier := &recordingNotifier{}
	factory := TodoistFactory(todoist.WithBaseURL(f.srv.URL), todoist.WithLogger(quietLogger()))
	engine := New(f.store, factory, notifier, quietLogger())

	if _, err := engine.SyncAll(ctx, f.user.ID); err != nil {
		t.Fatalf("SyncAll() failed: %v", err)
	}
	f.srv.Fail("*", http.StatusInternalServerError)
	if _, err := engine.SyncAll(ctx, f.user.ID); err == nil {
		t.Fatal("expected failure")
	}

	if len(notifier.completed) != 1 || notifier.completed[0].Tasks.Imported != 1 {
		t.Errorf("completed notifications = %+v", notifier.completed)
	}
	if len(notifier.failed) != 1 {
		t.Errorf("failed notifications = %d, want 1", len(notifier.failed))
	}
}

// blockingRemote holds the first project fetch until released.
type blockingRemote struct {
	Remote
	started chan struct{}
	release chan struct{}
	fired   atomic.Bool
}

func (b *blockingRemote) ListProjects(ctx context.Context) ([]todoist.Project, error) {
	if b.fired.CompareAndSwap(false, true) {
		close(b.started)
	}
	<-b.release
	return b.Remote.ListProjects(ctx)
}

func TestSyncAll_ConcurrentCallsShareOneRun(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	seedScenario(f.srv)

	remote := &blockingRemote{
		Remote:  f.srv.Client(t),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	var built atomic.Int32
	factory := func(token string) (Remote, error) {
		built.Add(1)
		return remote, nil
	}
	engine := New(f.store, factory, nil, quietLogger())

	type outcome struct {
		result *Result
		err    error
	}
	results := make(chan outcome, 2)
	call := func() {
		r, err := engine.SyncAll(ctx, f.user.ID)
		results <- outcome{r, err}
	}

	go call()
	<-remote.started
	go call()
	time.Sleep(100 * time.Millisecond)
	close(remote.release)

	for i := 0; i < 2; i++ {
		o := <-results
		if o.err != nil {
			t.Fatalf("SyncAll() failed: %v", o.err)
		}
		if o.result.Tasks.Imported != 1 {
			t.Errorf("result = %+v, want the shared first-run counts", o.result)
		}
	}

	if n := built.Load(); n != 1 {
		t.Errorf("remote built %d times, want 1", n)
	}
	stats, _ := f.store.Stats(ctx)
	if stats.Tasks != 1 || stats.Projects != 1 {
		t.Errorf("concurrent syncs duplicated rows: %+v", stats)
	}
}
