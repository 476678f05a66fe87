package todoist

// Due is the due-date object attached to remote tasks.
type Due struct {
	Date        string `json:"date"`
	String      string `json:"string,omitempty"`
	IsRecurring bool   `json:"is_recurring"`
	Datetime    string `json:"datetime,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
}

// Task is a remote task snapshot. Priority is on the remote scale (4 = most urgent).
type Task struct {
	ID          string   `json:"id"`
	Content     string   `json:"content"`
	Description string   `json:"description"`
	IsCompleted bool     `json:"is_completed"`
	Priority    int      `json:"priority"`
	Due         *Due     `json:"due"`
	Labels      []string `json:"labels"`
	ProjectID   string   `json:"project_id"`
	SectionID   string   `json:"section_id,omitempty"`
	ParentID    string   `json:"parent_id,omitempty"`
	Order       int      `json:"order"`
	CreatedAt   string   `json:"created_at,omitempty"`
	URL         string   `json:"url,omitempty"`
}

// DueDate returns the calendar date of the task's due, or "".
func (t *Task) DueDate() string {
	if t.Due == nil {
		return ""
	}
	return t.Due.Date
}

// Project is a remote project snapshot.
type Project struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Color          string `json:"color"`
	IsFavorite     bool   `json:"is_favorite"`
	IsInboxProject bool   `json:"is_inbox_project"`
	ViewStyle      string `json:"view_style"`
	Order          int    `json:"order"`
	ParentID       string `json:"parent_id,omitempty"`
	URL            string `json:"url,omitempty"`
}

// Section is a remote section snapshot.
type Section struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Order     int    `json:"order"`
}

// Label is a remote personal label.
type Label struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Color      string `json:"color"`
	Order      int    `json:"order"`
	IsFavorite bool   `json:"is_favorite"`
}

// CreateTaskArgs is the body of a task create call.
type CreateTaskArgs struct {
	Content     string   `json:"content"`
	Description string   `json:"description,omitempty"`
	Priority    int      `json:"priority,omitempty"`
	DueDate     string   `json:"due_date,omitempty"`
	Labels      []string `json:"labels,omitempty"`
	ProjectID   string   `json:"project_id,omitempty"`
	SectionID   string   `json:"section_id,omitempty"`
}

// NoDate is the due_string that removes a task's due date.
const NoDate = "no date"

// UpdateTaskArgs is the body of a task update call. Nil fields are not sent.
type UpdateTaskArgs struct {
	Content     *string   `json:"content,omitempty"`
	Description *string   `json:"description,omitempty"`
	Priority    *int      `json:"priority,omitempty"`
	DueDate     *string   `json:"due_date,omitempty"`
	DueString   *string   `json:"due_string,omitempty"`
	Labels      *[]string `json:"labels,omitempty"`
}

// IsEmpty reports whether the update would change nothing.
func (a UpdateTaskArgs) IsEmpty() bool {
	return a.Content == nil && a.Description == nil && a.Priority == nil &&
		a.DueDate == nil && a.DueString == nil && a.Labels == nil
}

// SetDueDate sets the due date, or clears it when date is "".
func (a *UpdateTaskArgs) SetDueDate(date string) {
	if date == "" {
		s := NoDate
		a.DueString = &s
		a.DueDate = nil
		return
	}
	a.DueDate = &date
	a.DueString = nil
}

// CreateProjectArgs is the body of a project create call.
type CreateProjectArgs struct {
	Name       string `json:"name"`
	Color      string `json:"color,omitempty"`
	IsFavorite bool   `json:"is_favorite,omitempty"`
	ViewStyle  string `json:"view_style,omitempty"`
	ParentID   string `json:"parent_id,omitempty"`
}

// UpdateProjectArgs is the body of a project update call. Nil fields are not sent.
type UpdateProjectArgs struct {
	Name       *string `json:"name,omitempty"`
	Color      *string `json:"color,omitempty"`
	IsFavorite *bool   `json:"is_favorite,omitempty"`
	ViewStyle  *string `json:"view_style,omitempty"`
}

// IsEmpty reports whether the update would change nothing.
func (a UpdateProjectArgs) IsEmpty() bool {
	return a.Name == nil && a.Color == nil && a.IsFavorite == nil && a.ViewStyle == nil
}

// CreateSectionArgs is the body of a section create call.
type CreateSectionArgs struct {
	Name      string `json:"name"`
	ProjectID string `json:"project_id"`
	Order     int    `json:"order,omitempty"`
}

// UpdateSectionArgs is the body of a section update call.
type UpdateSectionArgs struct {
	Name string `json:"name"`
}
