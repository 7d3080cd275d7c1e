package linear

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// TestPrefix marks artifacts created while test mode is on.
const TestPrefix = "[TEST] "

// IssueInput describes an issue to create. Names are resolved to ids
// before the mutation is sent.
type IssueInput struct {
	Title         string
	Description   string
	Team          string // falls back to the client's team
	Priority      *int   // 0 none, 1 urgent .. 4 low; nil means 2
	Estimate      *float64
	AssigneeEmail string
	Project       string
	Milestone     string
	DueDate       string // YYYY-MM-DD
}

// IssueRef identifies an issue returned by a mutation.
type IssueRef struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
	URL        string `json:"url"`
}

// TeamID returns the id of the team with the given name.
func (c *Client) TeamID(ctx context.Context, name string) (string, error) {
	var data struct {
		Teams struct {
			Nodes []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
				Key  string `json:"key"`
			} `json:"nodes"`
		} `json:"teams"`
	}
	if err := c.do(ctx, `query Teams { teams { nodes { id name key } } }`, nil, &data); err != nil {
		return "", fmt.Errorf("lookup team: %w", err)
	}
	for _, t := range data.Teams.Nodes {
		if t.Name == name || strings.EqualFold(t.Key, name) {
			return t.ID, nil
		}
	}
	return "", fmt.Errorf("linear: team %q not found", name)
}

// UserID returns the id of the user with the given email, or "" if none.
func (c *Client) UserID(ctx context.Context, email string) (string, error) {
	var data struct {
		Users struct {
			Nodes []struct {
				ID    string `json:"id"`
				Email string `json:"email"`
			} `json:"nodes"`
		} `json:"users"`
	}
	if err := c.do(ctx, `query Users { users { nodes { id email name } } }`, nil, &data); err != nil {
		return "", fmt.Errorf("lookup user: %w", err)
	}
	for _, u := range data.Users.Nodes {
		if strings.EqualFold(u.Email, email) {
			return u.ID, nil
		}
	}
	return "", nil
}

// ProjectID returns the id of the named project, or "" if none. Projects
// created in test mode carry TestPrefix and match either form.
func (c *Client) ProjectID(ctx context.Context, name string) (string, error) {
	var data struct {
		Projects struct {
			Nodes []ref `json:"nodes"`
		} `json:"projects"`
	}
	if err := c.do(ctx, `query Projects { projects { nodes { id name } } }`, nil, &data); err != nil {
		return "", fmt.Errorf("lookup project: %w", err)
	}
	for _, p := range data.Projects.Nodes {
		if p.Name == name || p.Name == TestPrefix+name {
			return p.ID, nil
		}
	}
	return "", nil
}

// MilestoneID returns the id of the named milestone, or "" if none. A
// non-empty projectID restricts the match to that project.
func (c *Client) MilestoneID(ctx context.Context, name, projectID string) (string, error) {
	var data struct {
		ProjectMilestones struct {
			Nodes []struct {
				ID      string `json:"id"`
				Name    string `json:"name"`
				Project *ref   `json:"project"`
			} `json:"nodes"`
		} `json:"projectMilestones"`
	}
	q := `query Milestones { projectMilestones { nodes { id name project { id name } } } }`
	if err := c.do(ctx, q, nil, &data); err != nil {
		return "", fmt.Errorf("lookup milestone: %w", err)
	}
	for _, m := range data.ProjectMilestones.Nodes {
		if m.Name != name && m.Name != TestPrefix+name {
			continue
		}
		if projectID != "" && (m.Project == nil || m.Project.ID != projectID) {
			continue
		}
		return m.ID, nil
	}
	return "", nil
}

// EnsureProject returns the named project's id, creating it if needed.
func (c *Client) EnsureProject(ctx context.Context, name, description string) (string, error) {
	if err := c.requireTestMode("projectCreate"); err != nil {
		return "", err
	}
	if id, err := c.ProjectID(ctx, name); err != nil || id != "" {
		return id, err
	}
	teamID, err := c.TeamID(ctx, c.team)
	if err != nil {
		return "", err
	}

	var data struct {
		ProjectCreate struct {
			Success bool `json:"success"`
			Project ref  `json:"project"`
		} `json:"projectCreate"`
	}
	m := `mutation CreateProject($input: ProjectCreateInput!) {
  projectCreate(input: $input) { success project { id name } }
}`
	vars := map[string]any{"input": map[string]any{
		"name":        TestPrefix + name,
		"description": description,
		"teamIds":     []string{teamID},
		"state":       "started",
	}}
	if err := c.do(ctx, m, vars, &data); err != nil {
		return "", fmt.Errorf("create project: %w", err)
	}
	if !data.ProjectCreate.Success {
		return "", fmt.Errorf("linear: project %q was not created", name)
	}
	c.logger.Info("linear project created", "name", name, "id", data.ProjectCreate.Project.ID)
	return data.ProjectCreate.Project.ID, nil
}

// EnsureMilestone returns the named milestone's id within projectID,
// creating it if needed.
func (c *Client) EnsureMilestone(ctx context.Context, name, projectID string) (string, error) {
	if err := c.requireTestMode("projectMilestoneCreate"); err != nil {
		return "", err
	}
	if id, err := c.MilestoneID(ctx, name, projectID); err != nil || id != "" {
		return id, err
	}

	var data struct {
		ProjectMilestoneCreate struct {
			Success          bool `json:"success"`
			ProjectMilestone ref  `json:"projectMilestone"`
		} `json:"projectMilestoneCreate"`
	}
	m := `mutation CreateProjectMilestone($input: ProjectMilestoneCreateInput!) {
  projectMilestoneCreate(input: $input) { success projectMilestone { id name } }
}`
	vars := map[string]any{"input": map[string]any{
		"name":      TestPrefix + name,
		"projectId": projectID,
	}}
	if err := c.do(ctx, m, vars, &data); err != nil {
		return "", fmt.Errorf("create milestone: %w", err)
	}
	if !data.ProjectMilestoneCreate.Success {
		return "", fmt.Errorf("linear: milestone %q was not created", name)
	}
	return data.ProjectMilestoneCreate.ProjectMilestone.ID, nil
}

// CreateIssue resolves the input's names and creates the issue. Project and
// milestone resolution failures are logged and the issue is created without
// them.
func (c *Client) CreateIssue(ctx context.Context, in IssueInput) (*IssueRef, error) {
	if err := c.requireTestMode("issueCreate"); err != nil {
		return nil, err
	}

	team := in.Team
	if team == "" {
		team = c.team
	}
	teamID, err := c.TeamID(ctx, team)
	if err != nil {
		return nil, err
	}

	priority := 2
	if in.Priority != nil {
		priority = *in.Priority
	}
	input := map[string]any{
		"title":       in.Title,
		"description": in.Description,
		"teamId":      teamID,
		"priority":    priority,
	}
	if in.Estimate != nil {
		input["estimate"] = int(*in.Estimate)
	}
	if in.DueDate != "" {
		input["dueDate"] = in.DueDate
	}
	if in.AssigneeEmail != "" {
		if id, err := c.UserID(ctx, in.AssigneeEmail); err != nil {
			c.logger.Warn("linear assignee lookup failed", "email", in.AssigneeEmail, "error", err)
		} else if id != "" {
			input["assigneeId"] = id
		}
	}
	if in.Project != "" {
		projectID, err := c.EnsureProject(ctx, in.Project, "")
		if err != nil {
			c.logger.Warn("linear project unresolved", "project", in.Project, "error", err)
		} else {
			input["projectId"] = projectID
			if in.Milestone != "" {
				if msID, err := c.EnsureMilestone(ctx, in.Milestone, projectID); err != nil {
					c.logger.Warn("linear milestone unresolved", "milestone", in.Milestone, "error", err)
				} else {
					input["projectMilestoneId"] = msID
				}
			}
		}
	}

	var data struct {
		IssueCreate struct {
			Success bool     `json:"success"`
			Issue   IssueRef `json:"issue"`
		} `json:"issueCreate"`
	}
	m := `mutation CreateIssue($input: IssueCreateInput!) {
  issueCreate(input: $input) { success issue { id identifier title url } }
}`
	if err := c.do(ctx, m, map[string]any{"input": input}, &data); err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}
	if !data.IssueCreate.Success {
		return nil, fmt.Errorf("linear: issue %q was not created", in.Title)
	}
	c.logger.Info("linear issue created", "id", data.IssueCreate.Issue.Identifier, "title", in.Title)
	return &data.IssueCreate.Issue, nil
}

// UpdateIssue applies updates to the issue with the given id or identifier.
// Recognized keys: title, description, priority, estimate, due_date
// (or dueDate, deadline), assignee (email), status (workflow state name).
func (c *Client) UpdateIssue(ctx context.Context, id string, updates map[string]any) (*IssueRef, error) {
	if err := c.requireTestMode("issueUpdate"); err != nil {
		return nil, err
	}

	input := make(map[string]any)
	for key, raw := range updates {
		switch key {
		case "title", "description":
			input[key] = fmt.Sprint(raw)
		case "priority":
			n, err := toFloat(raw)
			if err != nil {
				return nil, fmt.Errorf("linear: priority: %w", err)
			}
			input["priority"] = int(n)
		case "estimate":
			n, err := toFloat(raw)
			if err != nil {
				return nil, fmt.Errorf("linear: estimate: %w", err)
			}
			input["estimate"] = int(n)
		case "due_date", "dueDate", "deadline":
			input["dueDate"] = fmt.Sprint(raw)
		case "assignee", "assignee_email":
			uid, err := c.UserID(ctx, fmt.Sprint(raw))
			if err != nil {
				return nil, err
			}
			if uid == "" {
				return nil, fmt.Errorf("linear: no user with email %q", raw)
			}
			input["assigneeId"] = uid
		case "status", "state":
			sid, err := c.stateID(ctx, fmt.Sprint(raw))
			if err != nil {
				return nil, err
			}
			input["stateId"] = sid
		default:
			c.logger.Debug("linear update field ignored", "field", key)
		}
	}
	if len(input) == 0 {
		return nil, fmt.Errorf("linear: no supported fields in update for %s", id)
	}

	var data struct {
		IssueUpdate struct {
			Success bool     `json:"success"`
			Issue   IssueRef `json:"issue"`
		} `json:"issueUpdate"`
	}
	m := `mutation UpdateIssue($id: String!, $input: IssueUpdateInput!) {
  issueUpdate(id: $id, input: $input) { success issue { id identifier title url } }
}`
	if err := c.do(ctx, m, map[string]any{"id": id, "input": input}, &data); err != nil {
		return nil, fmt.Errorf("update issue: %w", err)
	}
	if !data.IssueUpdate.Success {
		return nil, fmt.Errorf("linear: issue %s was not updated", id)
	}
	return &data.IssueUpdate.Issue, nil
}

// DeleteIssue removes an issue.
func (c *Client) DeleteIssue(ctx context.Context, id string) error {
	if err := c.requireTestMode("issueDelete"); err != nil {
		return err
	}
	var data struct {
		IssueDelete struct {
			Success bool `json:"success"`
		} `json:"issueDelete"`
	}
	m := `mutation DeleteIssue($id: String!) { issueDelete(id: $id) { success } }`
	if err := c.do(ctx, m, map[string]any{"id": id}, &data); err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	if !data.IssueDelete.Success {
		return fmt.Errorf("linear: issue %s was not deleted", id)
	}
	return nil
}

func (c *Client) stateID(ctx context.Context, name string) (string, error) {
	var data struct {
		WorkflowStates struct {
			Nodes []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
				Team *ref   `json:"team"`
			} `json:"nodes"`
		} `json:"workflowStates"`
	}
	q := `query States { workflowStates { nodes { id name team { id name } } } }`
	if err := c.do(ctx, q, nil, &data); err != nil {
		return "", fmt.Errorf("lookup state: %w", err)
	}
	var fallback string
	for _, s := range data.WorkflowStates.Nodes {
		if !strings.EqualFold(s.Name, name) {
			continue
		}
		if s.Team != nil && s.Team.Name == c.team {
			return s.ID, nil
		}
		if fallback == "" {
			fallback = s.ID
		}
	}
	if fallback == "" {
		return "", fmt.Errorf("linear: workflow state %q not found", name)
	}
	return fallback, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
