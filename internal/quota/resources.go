package quota

import "fmt"

// Resource is a counted quantity bounded per tier.
type Resource string

const (
	ResourceProjects          Resource = "projects"
	ResourceTeamMembers       Resource = "team_members"
	ResourceQuestionsPerMonth Resource = "questions_per_month"
)

var allResources = []Resource{
	ResourceProjects,
	ResourceTeamMembers,
	ResourceQuestionsPerMonth,
}

func AllResources() []Resource {
	return append([]Resource(nil), allResources...)
}

func (r Resource) label() string {
	switch r {
	case ResourceProjects:
		return "Project"
	case ResourceTeamMembers:
		return "Team member"
	case ResourceQuestionsPerMonth:
		return "Monthly question"
	default:
		return string(r)
	}
}

// Limits bounds each resource for one tier. A nil limit is unlimited.
type Limits struct {
	Projects          *int `json:"projects"`
	TeamMembers       *int `json:"team_members"`
	QuestionsPerMonth *int `json:"questions_per_month"`
}

func (l Limits) For(r Resource) (*int, error) {
	switch r {
	case ResourceProjects:
		return l.Projects, nil
	case ResourceTeamMembers:
		return l.TeamMembers, nil
	case ResourceQuestionsPerMonth:
		return l.QuestionsPerMonth, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownResource, string(r))
	}
}

// Usage is a user's current consumption as reported by the subscription store.
type Usage struct {
	Projects           int `json:"projects"`
	TeamMembers        int `json:"team_members"`
	QuestionsThisMonth int `json:"questions_this_month"`
}

func (u Usage) For(r Resource) (int, error) {
	switch r {
	case ResourceProjects:
		return u.Projects, nil
	case ResourceTeamMembers:
		return u.TeamMembers, nil
	case ResourceQuestionsPerMonth:
		return u.QuestionsThisMonth, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownResource, string(r))
	}
}

// Limit returns a pointer to n for building Limits literals.
func Limit(n int) *int {
	return &n
}
