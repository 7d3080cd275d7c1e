package assembler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/alpha-machine/alphabot/internal/linear"
)

// recentCompleted caps the completed issues listed per project.
const recentCompleted = 5

// FormatWorkspace renders a workspace snapshot as Project → Milestones →
// Issues followed by a per-assignee workload rollup and upcoming milestones.
func FormatWorkspace(ws *linear.Workspace) string {
	if ws == nil || (len(ws.Projects) == 0 && len(ws.Issues) == 0) {
		return "📝 LINEAR: No workspace data available"
	}

	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	var active []linear.Issue
	for _, is := range ws.Issues {
		if is.Active() {
			active = append(active, is)
		}
	}
	total := len(ws.Issues)
	completed := total - len(active)
	rate := 0.0
	if total > 0 {
		rate = float64(completed) / float64(total) * 100
	}

	line("🎯 LINEAR WORKSPACE CONTEXT")
	line("%s", strings.Repeat("=", 50))
	line("📊 SUMMARY: %d projects | %d active issues | %d completed", len(ws.Projects), len(active), completed)
	line("📈 Completion Rate: %.1f%%", rate)
	line("")

	line("🚀 ACTIVE PROJECTS:")
	if len(ws.Projects) == 0 {
		line("• No projects found")
	}
	for _, p := range ws.Projects {
		if p.State != "started" {
			continue
		}
		line("📋 %s (%.1f%% complete)", p.Name, p.Progress*100)
		if p.Description != "" {
			line("   📝 %s", p.Description)
		} else {
			line("   📝 No description")
		}

		var milestones []linear.Milestone
		for _, m := range ws.Milestones {
			if m.ProjectID == p.ID {
				milestones = append(milestones, m)
			}
		}
		if len(milestones) > 0 {
			line("   🎯 Milestones:")
			for _, m := range milestones {
				line("     • %s (Target: %s)", m.Name, orTBD(m.TargetDate))
				if m.Description != "" {
					line("       📝 %s", m.Description)
				}
			}
		}

		var issues, done []linear.Issue
		for _, is := range ws.Issues {
			switch {
			case is.ProjectID != p.ID:
			case is.Active():
				issues = append(issues, is)
			default:
				done = append(done, is)
			}
		}
		if len(issues) == 0 {
			line("   📋 No active issues")
		} else {
			line("   🔥 Active Issues (%d):", len(issues))
		}
		for i, is := range issues {
			line("   ┌─ Issue #%d: %s %s", i+1, priorityEmoji(is.Priority), issueLabel(is))
			line("   │  👤 %s | ⏱️ %sh | Status: %s", assignee(is), estimate(is.Estimate), is.StateName)
			for _, dl := range descriptionLines(is.Description) {
				line("   │  📝 %s", dl)
			}
			line("   └─────────────────────────────────────────────")
			line("")
		}
		if len(done) > 0 {
			if len(done) > recentCompleted {
				done = done[len(done)-recentCompleted:]
			}
			line("   ✅ Recently Completed:")
			for _, is := range done {
				line("     • %s (%s)", issueLabel(is), assignee(is))
			}
		}
		line("")
	}

	var other []linear.Project
	for _, p := range ws.Projects {
		if p.State != "started" {
			other = append(other, p)
		}
	}
	if len(other) > 0 {
		line("💤 OTHER PROJECTS:")
		for _, p := range other {
			line("• %s (%s)", p.Name, orUnknown(p.State))
		}
		line("")
	}

	line("👥 TEAM WORKLOAD:")
	type load struct {
		name   string
		issues []linear.Issue
	}
	byName := make(map[string]*load)
	var loads []*load
	for _, is := range active {
		n := assignee(is)
		l, ok := byName[n]
		if !ok {
			l = &load{name: n}
			byName[n] = l
			loads = append(loads, l)
		}
		l.issues = append(l.issues, is)
	}
	if len(loads) == 0 {
		line("• No active issues assigned")
	}
	sort.SliceStable(loads, func(i, j int) bool { return len(loads[i].issues) > len(loads[j].issues) })
	for _, l := range loads {
		var hours float64
		high := 0
		for _, is := range l.issues {
			hours += is.Estimate
			if is.Priority == 1 {
				high++
			}
		}
		line("👤 %s: %d issues | %sh total | %d high priority", l.name, len(l.issues), strconv.FormatFloat(hours, 'f', -1, 64), high)
		for i, is := range l.issues {
			line("   ├─ #%d: %s %s", i+1, priorityEmoji(is.Priority), issueLabel(is))
			for _, dl := range descriptionLines(is.Description) {
				line("   │    📝 %s", dl)
			}
			line("   │")
		}
	}
	line("")

	if len(ws.Milestones) > 0 {
		line("🎯 UPCOMING MILESTONES:")
		var dated []linear.Milestone
		for _, m := range ws.Milestones {
			if m.TargetDate != "" {
				dated = append(dated, m)
			}
		}
		sort.SliceStable(dated, func(i, j int) bool { return dated[i].TargetDate < dated[j].TargetDate })
		for _, m := range dated {
			n := 0
			for _, is := range active {
				if is.MilestoneID == m.ID {
					n++
				}
			}
			line("📍 %s (Target: %s)", m.Name, m.TargetDate)
			line("   🚀 Project: %s", m.ProjectName)
			if m.Description != "" {
				line("   📝 %s", m.Description)
			}
			line("   📋 Active Issues: %d", n)
		}
		line("")
	}

	b.WriteString(strings.Repeat("=", 50))
	return b.String()
}

func priorityEmoji(p int) string {
	switch p {
	case 1:
		return "🔴"
	case 2:
		return "🟡"
	case 3:
		return "🟢"
	default:
		return "⚪"
	}
}

// issueLabel prefixes the identifier so update requests can name it.
func issueLabel(is linear.Issue) string {
	if is.Identifier == "" {
		return is.Title
	}
	return is.Identifier + " " + is.Title
}

func assignee(is linear.Issue) string {
	if is.AssigneeName == "" {
		return "Unassigned"
	}
	return is.AssigneeName
}

func estimate(v float64) string {
	if v == 0 {
		return "No"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func orTBD(s string) string {
	if s == "" {
		return "TBD"
	}
	return s
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func descriptionLines(desc string) []string {
	var out []string
	for _, l := range strings.Split(desc, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
