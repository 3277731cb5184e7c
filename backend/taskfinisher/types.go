// Package taskfinisher drives the clarify-then-finalize negotiation in which
// the model either asks a bounded number of clarifying questions or returns
// a final technical task artifact.
package taskfinisher

import "encoding/json"

const (
	TypeClarifyingQuestions = "clarifying_questions"
	TypeArtifact            = "artifact"

	StatusFinal = "final"
	EndToken    = "【END】"

	DefaultMaxQuestions = 3
	DefaultMaxRounds    = 5
)

type ClarifyingQuestion struct {
	ID       string `json:"id" yaml:"id"`
	Text     string `json:"text" yaml:"text"`
	Required bool   `json:"required" yaml:"required"`
	// Options is empty when the model offers no choices. An absent list and
	// an empty one mean the same thing.
	Options []string `json:"options,omitempty" yaml:"options,omitempty"`
}

// HasOptions reports whether the question offers predefined answers.
func (q ClarifyingQuestion) HasOptions() bool {
	return len(q.Options) > 0
}

// ChecklistItem is informational. Status is expected to be one of
// missing, partial or complete but is not checked.
type ChecklistItem struct {
	Field  string `json:"field" yaml:"field"`
	Status string `json:"status" yaml:"status"`
}

type ClarifyingPayload struct {
	Type         string               `json:"type" yaml:"type"`
	Turn         int                  `json:"turn" yaml:"turn"`
	MaxQuestions int                  `json:"max_questions" yaml:"max_questions"`
	Questions    []ClarifyingQuestion `json:"questions" yaml:"questions"`
	Checklist    []ChecklistItem      `json:"checklist" yaml:"checklist"`
	NextAction   string               `json:"next_action" yaml:"next_action"`
}

type Stakeholder struct {
	Role        string `json:"role" yaml:"role"`
	Description string `json:"description" yaml:"description"`
}

type Scope struct {
	InScope    []string `json:"in_scope" yaml:"in_scope"`
	OutOfScope []string `json:"out_of_scope" yaml:"out_of_scope"`
}

type FunctionalRequirement struct {
	ID        string  `json:"id" yaml:"id"`
	Statement string  `json:"statement" yaml:"statement"`
	Rationale *string `json:"rationale,omitempty" yaml:"rationale,omitempty"`
}

type NonFunctionalRequirement struct {
	ID       string `json:"id" yaml:"id"`
	Category string `json:"category" yaml:"category"`
	Target   string `json:"target" yaml:"target"`
}

type Requirements struct {
	Functional    []FunctionalRequirement    `json:"functional" yaml:"functional"`
	NonFunctional []NonFunctionalRequirement `json:"non_functional" yaml:"non_functional"`
}

type RPCProviders struct {
	Selection []string       `json:"selection" yaml:"selection"`
	Endpoints map[string]any `json:"endpoints" yaml:"endpoints"`
}

type PriceSource struct {
	Provider   string  `json:"provider" yaml:"provider"`
	TTLSeconds *uint64 `json:"ttl_seconds,omitempty" yaml:"ttl_seconds,omitempty"`
}

type DataIntegrations struct {
	RPCProviders RPCProviders `json:"rpc_providers" yaml:"rpc_providers"`
	PriceSource  PriceSource  `json:"price_source" yaml:"price_source"`
}

type Risk struct {
	ID          string `json:"id" yaml:"id"`
	Description string `json:"description" yaml:"description"`
	Mitigation  string `json:"mitigation" yaml:"mitigation"`
}

type Milestone struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Deliverables []string `json:"deliverables" yaml:"deliverables"`
}

type AcceptanceCriterion struct {
	ID    string `json:"id" yaml:"id"`
	Given string `json:"given" yaml:"given"`
	When  string `json:"when" yaml:"when"`
	Then  string `json:"then" yaml:"then"`
}

// Artifact is the technical task document that ends a negotiation. Its
// contents are passed through as produced by the model.
type Artifact struct {
	Type               string                `json:"type" yaml:"type"`
	ArtifactName       string                `json:"artifact_name" yaml:"artifact_name"`
	Version            string                `json:"version" yaml:"version"`
	Title              string                `json:"title" yaml:"title"`
	Summary            string                `json:"summary" yaml:"summary"`
	Stakeholders       []Stakeholder         `json:"stakeholders" yaml:"stakeholders"`
	Scope              Scope                 `json:"scope" yaml:"scope"`
	Requirements       Requirements          `json:"requirements" yaml:"requirements"`
	DataIntegrations   DataIntegrations      `json:"data_integrations" yaml:"data_integrations"`
	Constraints        []string              `json:"constraints" yaml:"constraints"`
	Assumptions        []string              `json:"assumptions" yaml:"assumptions"`
	Risks              []Risk                `json:"risks" yaml:"risks"`
	Milestones         []Milestone           `json:"milestones" yaml:"milestones"`
	AcceptanceCriteria []AcceptanceCriterion `json:"acceptance_criteria" yaml:"acceptance_criteria"`
	OpenQuestions      []string              `json:"open_questions" yaml:"open_questions"`
	Status             string                `json:"status" yaml:"status"`
	EndToken           string                `json:"end_token" yaml:"end_token"`
}

// IsFinal reports whether the model followed the completion signal.
func (a *Artifact) IsFinal() bool {
	return a.Status == StatusFinal && a.EndToken == EndToken
}

type AnswerItem struct {
	ID     string `json:"id" yaml:"id"`
	Answer string `json:"answer" yaml:"answer"`
}

type AnswersPayload struct {
	Answers []AnswerItem `json:"answers" yaml:"answers"`
}

// Encode renders the payload as the user turn sent back to the model. A
// payload without answers is encoded as an empty list, never null.
func (p *AnswersPayload) Encode() (string, error) {
	payload := AnswersPayload{Answers: []AnswerItem{}}
	if p != nil && p.Answers != nil {
		payload.Answers = p.Answers
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Response is a parsed model reply. Exactly one of Clarifying and Artifact is
// set.
type Response struct {
	Clarifying *ClarifyingPayload
	Artifact   *Artifact
	Raw        string
}

func (r *Response) IsArtifact() bool {
	return r.Artifact != nil
}
