// Package roles mirrors the dashboard's static role-to-capability table so
// the harness can predict what a role should see.
package roles

import "sort"

// Capabilities gated by role.
const (
	Upload        = "upload"
	Evaluate      = "evaluate"
	Review        = "review"
	DLQRequeue    = "dlq_requeue"
	DLQDiscard    = "dlq_discard"
	AuditView     = "audit_view"
	ProjectsWrite = "projects_write"
	RulesWrite    = "rules_write"
)

// Roles.
const (
	Admin     = "admin"
	Agent     = "agent"
	Evaluator = "evaluator"
	Viewer    = "viewer"
)

var matrix = map[string]map[string]bool{
	Admin: {
		Upload: true, Evaluate: true, Review: true, DLQRequeue: true,
		DLQDiscard: true, AuditView: true, ProjectsWrite: true, RulesWrite: true,
	},
	Agent: {
		Upload: true, Evaluate: true, Review: true, DLQRequeue: true,
		ProjectsWrite: true, RulesWrite: true,
	},
	Evaluator: {
		Upload: true, Evaluate: true, Review: true,
	},
	Viewer: {},
}

// Normalize maps an unknown or empty role to Viewer.
func Normalize(role string) string {
	if _, ok := matrix[role]; ok {
		return role
	}
	return Viewer
}

// Can reports whether role holds capability. Unknown roles get viewer rights.
func Can(role, capability string) bool {
	return matrix[Normalize(role)][capability]
}

// Capabilities lists role's capabilities, sorted.
func Capabilities(role string) []string {
	caps := make([]string, 0, len(matrix[Normalize(role)]))
	for c, ok := range matrix[Normalize(role)] {
		if ok {
			caps = append(caps, c)
		}
	}
	sort.Strings(caps)
	return caps
}

// All lists the known roles, sorted.
func All() []string {
	out := make([]string, 0, len(matrix))
	for r := range matrix {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
