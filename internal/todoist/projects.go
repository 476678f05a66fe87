package todoist

import (
	"context"
	"net/http"
	"net/url"
)

// ListProjects returns all projects of the account.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := c.do(ctx, http.MethodGet, "/projects", nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// GetProject returns one project by id.
func (c *Client) GetProject(ctx context.Context, id string) (*Project, error) {
	var p Project
	if err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProject creates a project.
func (c *Client) CreateProject(ctx context.Context, args CreateProjectArgs) (*Project, error) {
	var p Project
	if err := c.do(ctx, http.MethodPost, "/projects", args, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProject applies the non-nil fields of args to a project.
func (c *Client) UpdateProject(ctx context.Context, id string, args UpdateProjectArgs) (*Project, error) {
	var p Project
	if err := c.do(ctx, http.MethodPost, "/projects/"+url.PathEscape(id), args, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DeleteProject deletes a project with its sections and tasks.
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/projects/"+url.PathEscape(id), nil, nil)
}

// ListSections returns the sections of one project, or all sections when projectID is "".
func (c *Client) ListSections(ctx context.Context, projectID string) ([]Section, error) {
	path := "/sections"
	if projectID != "" {
		path += "?" + url.Values{"project_id": {projectID}}.Encode()
	}
	var sections []Section
	if err := c.do(ctx, http.MethodGet, path, nil, &sections); err != nil {
		return nil, err
	}
	return sections, nil
}

// GetSection returns one section by id.
func (c *Client) GetSection(ctx context.Context, id string) (*Section, error) {
	var s Section
	if err := c.do(ctx, http.MethodGet, "/sections/"+url.PathEscape(id), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSection creates a section in a project.
func (c *Client) CreateSection(ctx context.Context, args CreateSectionArgs) (*Section, error) {
	var s Section
	if err := c.do(ctx, http.MethodPost, "/sections", args, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateSection renames a section.
func (c *Client) UpdateSection(ctx context.Context, id string, args UpdateSectionArgs) (*Section, error) {
	var s Section
	if err := c.do(ctx, http.MethodPost, "/sections/"+url.PathEscape(id), args, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteSection deletes a section and its tasks.
func (c *Client) DeleteSection(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/sections/"+url.PathEscape(id), nil, nil)
}

// ListLabels returns the account's personal labels.
func (c *Client) ListLabels(ctx context.Context) ([]Label, error) {
	var labels []Label
	if err := c.do(ctx, http.MethodGet, "/labels", nil, &labels); err != nil {
		return nil, err
	}
	return labels, nil
}

// GetLabel returns one personal label by id.
func (c *Client) GetLabel(ctx context.Context, id string) (*Label, error) {
	var l Label
	if err := c.do(ctx, http.MethodGet, "/labels/"+url.PathEscape(id), nil, &l); err != nil {
		return nil, err
	}
	return &l, nil
}
