package linear

import (
	"context"
	"fmt"
)

// Project is a Linear project.
type Project struct {
	ID          string
	Name        string
	Description string
	State       string
	TargetDate  string
	Progress    float64 // 0..1
	Teams       []string
}

// Milestone is a project milestone.
type Milestone struct {
	ID          string
	Name        string
	Description string
	TargetDate  string
	ProjectID   string
	ProjectName string
}

// Issue is a Linear issue with its relations flattened.
type Issue struct {
	ID            string
	Identifier    string
	Title         string
	Description   string
	StateName     string
	StateType     string
	Priority      int
	Estimate      float64
	AssigneeName  string
	TeamName      string
	ProjectID     string
	ProjectName   string
	MilestoneID   string
	MilestoneName string
}

// Active reports whether the issue is not yet completed.
func (i Issue) Active() bool { return i.StateType != "completed" }

// Workspace is a point-in-time read of projects, milestones and issues.
// It is rendered into prompt text and discarded.
type Workspace struct {
	Projects   []Project
	Milestones []Milestone
	Issues     []Issue
}

// Empty reports whether the snapshot has no data at all.
func (w *Workspace) Empty() bool {
	return w == nil || (len(w.Projects) == 0 && len(w.Milestones) == 0 && len(w.Issues) == 0)
}

const workspaceQuery = `query Workspace {
  projects {
    nodes { id name description state targetDate progress teams { nodes { name key } } }
  }
  projectMilestones {
    nodes { id name description targetDate project { id name } }
  }
  issues {
    nodes {
      id identifier title description
      state { name type }
      priority estimate
      assignee { name }
      team { name key }
      project { id name }
      projectMilestone { id name }
    }
  }
}`

type ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type workspaceData struct {
	Projects struct {
		Nodes []struct {
			ID          string  `json:"id"`
			Name        string  `json:"name"`
			Description string  `json:"description"`
			State       string  `json:"state"`
			TargetDate  string  `json:"targetDate"`
			Progress    float64 `json:"progress"`
			Teams       struct {
				Nodes []ref `json:"nodes"`
			} `json:"teams"`
		} `json:"nodes"`
	} `json:"projects"`
	ProjectMilestones struct {
		Nodes []struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			Description string `json:"description"`
			TargetDate  string `json:"targetDate"`
			Project     *ref   `json:"project"`
		} `json:"nodes"`
	} `json:"projectMilestones"`
	Issues struct {
		Nodes []struct {
			ID          string `json:"id"`
			Identifier  string `json:"identifier"`
			Title       string `json:"title"`
			Description string `json:"description"`
			State       *struct {
				Name string `json:"name"`
				Type string `json:"type"`
			} `json:"state"`
			Priority         int     `json:"priority"`
			Estimate         float64 `json:"estimate"`
			Assignee         *ref    `json:"assignee"`
			Team             *ref    `json:"team"`
			Project          *ref    `json:"project"`
			ProjectMilestone *ref    `json:"projectMilestone"`
		} `json:"nodes"`
	} `json:"issues"`
}

// Workspace fetches the current projects, milestones and issues.
func (c *Client) Workspace(ctx context.Context) (*Workspace, error) {
	var data workspaceData
	if err := c.do(ctx, workspaceQuery, nil, &data); err != nil {
		return nil, fmt.Errorf("fetch workspace: %w", err)
	}

	ws := &Workspace{}
	for _, p := range data.Projects.Nodes {
		proj := Project{
			ID:          p.ID,
			Name:        orDefault(p.Name, "Unknown Project"),
			Description: p.Description,
			State:       p.State,
			TargetDate:  p.TargetDate,
			Progress:    p.Progress,
		}
		for _, t := range p.Teams.Nodes {
			proj.Teams = append(proj.Teams, t.Name)
		}
		ws.Projects = append(ws.Projects, proj)
	}
	for _, m := range data.ProjectMilestones.Nodes {
		ms := Milestone{
			ID:          m.ID,
			Name:        orDefault(m.Name, "Unknown Milestone"),
			Description: m.Description,
			TargetDate:  m.TargetDate,
		}
		if m.Project != nil {
			ms.ProjectID, ms.ProjectName = m.Project.ID, m.Project.Name
		}
		ws.Milestones = append(ws.Milestones, ms)
	}
	for _, i := range data.Issues.Nodes {
		is := Issue{
			ID:          i.ID,
			Identifier:  i.Identifier,
			Title:       orDefault(i.Title, "No title"),
			Description: i.Description,
			Priority:    i.Priority,
			Estimate:    i.Estimate,
		}
		if i.State != nil {
			is.StateName, is.StateType = i.State.Name, i.State.Type
		}
		if i.Assignee != nil {
			is.AssigneeName = i.Assignee.Name
		}
		if i.Team != nil {
			is.TeamName = i.Team.Name
		}
		if i.Project != nil {
			is.ProjectID, is.ProjectName = i.Project.ID, i.Project.Name
		}
		if i.ProjectMilestone != nil {
			is.MilestoneID, is.MilestoneName = i.ProjectMilestone.ID, i.ProjectMilestone.Name
		}
		ws.Issues = append(ws.Issues, is)
	}
	return ws, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
