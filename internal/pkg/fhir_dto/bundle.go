package fhir_dto

import "github.com/goccy/go-json"

type FHIRBundle struct {
	ResourceType string  `json:"resourceType"`
	ID           string  `json:"id,omitempty"`
	Type         string  `json:"type"`
	Total        int     `json:"total"`
	Entry        []Entry `json:"entry"`
}

type Entry struct {
	FullUrl  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource"`
	Search   *EntrySearch    `json:"search,omitempty"`
}

type EntrySearch struct {
	Mode string `json:"mode,omitempty"`
}

type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

type OperationOutcomeIssue struct {
	Severity    string           `json:"severity"`
	Code        string           `json:"code"`
	Details     *CodeableConcept `json:"details,omitempty"`
	Diagnostics string           `json:"diagnostics,omitempty"`
}

// Message returns the first issue's diagnostics, falling back to its details text and code.
func (o *OperationOutcome) Message() string {
	if o == nil || len(o.Issue) == 0 {
		return ""
	}
	issue := o.Issue[0]
	if issue.Diagnostics != "" {
		return issue.Diagnostics
	}
	if issue.Details != nil && issue.Details.Text != "" {
		return issue.Details.Text
	}
	return issue.Code
}

// MatchedResources decodes the entries returned as search matches. Included
// resources and outcome entries are skipped.
func MatchedResources[T any](bundle *FHIRBundle) ([]T, error) {
	resources := make([]T, 0, len(bundle.Entry))
	for _, entry := range bundle.Entry {
		if entry.Search != nil && entry.Search.Mode != "" && entry.Search.Mode != "match" {
			continue
		}
		if len(entry.Resource) == 0 {
			continue
		}
		var resource T
		if err := json.Unmarshal(entry.Resource, &resource); err != nil {
			return nil, err
		}
		resources = append(resources, resource)
	}
	return resources, nil
}
