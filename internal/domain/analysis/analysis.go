package analysis

import (
	"fmt"
	"net/url"
	"strings"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	default:
		return false
	}
}

// Result is the structured analysis produced by the generative model for one
// submission. Tags is always the pair [data structure, key algorithm].
type Result struct {
	Name         string     `json:"name"`
	ApproachName string     `json:"approachName"`
	PseudoCode   []string   `json:"pseudoCode"`
	Time         string     `json:"time"`
	Space        string     `json:"space"`
	Tags         []string   `json:"tags"`
	Difficulty   Difficulty `json:"difficulty"`
}

func (r Result) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("analysis: missing name")
	}
	if strings.TrimSpace(r.ApproachName) == "" {
		return fmt.Errorf("analysis: missing approachName")
	}
	if len(r.PseudoCode) == 0 {
		return fmt.Errorf("analysis: missing pseudoCode")
	}
	if strings.TrimSpace(r.Time) == "" || strings.TrimSpace(r.Space) == "" {
		return fmt.Errorf("analysis: missing complexity terms")
	}
	if len(r.Tags) < 2 || strings.TrimSpace(r.Tags[0]) == "" || strings.TrimSpace(r.Tags[1]) == "" {
		return fmt.Errorf("analysis: tags must be the [domain, keyAlgorithm] pair")
	}
	if !r.Difficulty.Valid() {
		return fmt.Errorf("analysis: invalid difficulty %q", r.Difficulty)
	}
	return nil
}

// Domain returns the first tag (the broad data-structure topic).
func (r Result) Domain() string { return strings.TrimSpace(r.Tags[0]) }

// KeyAlgorithm returns the second tag.
func (r Result) KeyAlgorithm() string { return strings.TrimSpace(r.Tags[1]) }

// UserDetails is the profile slice forwarded with fan-out jobs so the
// consumer can create the user row without a session of its own.
type UserDetails struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

// RecordPayload is the body of the relational-writer fan-out job.
type RecordPayload struct {
	UserID       string      `json:"userId"`
	UserDetails  UserDetails `json:"userDetails"`
	Link         string      `json:"link"`
	Notes        string      `json:"notes,omitempty"`
	AnalysisData Result      `json:"analysisData"`
}

func (p RecordPayload) Validate() error {
	if strings.TrimSpace(p.UserID) == "" {
		return fmt.Errorf("record payload: missing userId")
	}
	if strings.TrimSpace(p.Link) == "" {
		return fmt.Errorf("record payload: missing link")
	}
	return p.AnalysisData.Validate()
}

// GraphProblem is the minimal normalized problem descriptor the graph
// consumer needs. Normalization (trimming, humanizing machine-cased names)
// happens once, before publishing; the consumer only re-trims defensively.
type GraphProblem struct {
	URL          string `json:"url"`
	Name         string `json:"name"`
	Domain       string `json:"domain"`
	ApproachName string `json:"approachName"`
}

// GraphPayload is the body of the graph-writer fan-out job.
type GraphPayload struct {
	UserID  string       `json:"userId"`
	Problem GraphProblem `json:"problem"`
}

// Sanitize trims every string field in place.
func (p *GraphPayload) Sanitize() {
	p.UserID = strings.TrimSpace(p.UserID)
	p.Problem.URL = strings.TrimSpace(p.Problem.URL)
	p.Problem.Name = strings.TrimSpace(p.Problem.Name)
	p.Problem.Domain = strings.TrimSpace(p.Problem.Domain)
	p.Problem.ApproachName = strings.TrimSpace(p.Problem.ApproachName)
}

func (p GraphPayload) Validate() error {
	if p.UserID == "" {
		return fmt.Errorf("graph payload: missing userId")
	}
	if p.Problem.URL == "" {
		return fmt.Errorf("graph payload: missing problem.url")
	}
	if u, err := url.Parse(p.Problem.URL); err != nil || u.Host == "" || u.Scheme == "" {
		return fmt.Errorf("graph payload: problem.url is not an absolute url")
	}
	if p.Problem.Name == "" || p.Problem.Domain == "" || p.Problem.ApproachName == "" {
		return fmt.Errorf("graph payload: missing problem fields")
	}
	return nil
}
