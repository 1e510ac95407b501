package fhir_dto

import (
	"discharge-export-service/internal/pkg/constvars"
	"fmt"
	"strings"
)

type DocumentReference struct {
	ID           string                     `json:"id,omitempty"`
	ResourceType string                     `json:"resourceType"`
	Meta         *Meta                      `json:"meta,omitempty"`
	Identifier   []Identifier               `json:"identifier,omitempty"`
	Status       string                     `json:"status"`
	DocStatus    string                     `json:"docStatus,omitempty"`
	Type         *CodeableConcept           `json:"type,omitempty"`
	Category     []CodeableConcept          `json:"category,omitempty"`
	Subject      *Reference                 `json:"subject,omitempty"`
	Date         string                     `json:"date,omitempty"`
	Description  string                     `json:"description,omitempty"`
	Content      []DocumentReferenceContent `json:"content"`
	Context      *DocumentReferenceContext  `json:"context,omitempty"`
}

type DocumentReferenceContent struct {
	Attachment Attachment `json:"attachment"`
	Format     *Coding    `json:"format,omitempty"`
}

type DocumentReferenceContext struct {
	Encounter []Reference `json:"encounter,omitempty"`
	Period    *Period     `json:"period,omitempty"`
	Related   []Reference `json:"related,omitempty"`
}

func (d *DocumentReference) Validate() error {
	if d == nil {
		return fmt.Errorf("document reference is empty")
	}
	if d.ResourceType != "" && d.ResourceType != constvars.ResourceDocumentReference {
		return fmt.Errorf("unexpected resourceType %q, want %s", d.ResourceType, constvars.ResourceDocumentReference)
	}
	if len(d.Content) == 0 {
		return fmt.Errorf("document reference %s has no content", d.ID)
	}
	attachment := d.Content[0].Attachment
	if attachment.Data == "" && attachment.Url == "" {
		return fmt.Errorf("document reference %s attachment has neither data nor url", d.ID)
	}
	return nil
}

// PrimaryAttachment returns the first content attachment.
func (d *DocumentReference) PrimaryAttachment() Attachment {
	if len(d.Content) == 0 {
		return Attachment{}
	}
	return d.Content[0].Attachment
}

// SubjectID returns the logical id of a Patient subject reference.
func (d *DocumentReference) SubjectID() string {
	if d.Subject == nil {
		return ""
	}
	resourceType, id := SplitReference(d.Subject.Reference)
	if resourceType != constvars.ResourcePatient {
		return ""
	}
	return id
}

// BinaryID returns the id of the Binary referenced by the primary attachment url,
// accepting relative ("Binary/123") and absolute ("https://host/fhir/Binary/123") urls.
func (d *DocumentReference) BinaryID() string {
	resourceType, id := SplitReference(d.PrimaryAttachment().Url)
	if resourceType != constvars.ResourceBinary {
		return ""
	}
	return id
}

// SplitReference parses "[base/]Type/id[/_history/v]" into its type and id.
func SplitReference(reference string) (string, string) {
	reference = strings.TrimSpace(reference)
	if i := strings.Index(reference, "/_history/"); i >= 0 {
		reference = reference[:i]
	}
	parts := strings.Split(strings.TrimRight(reference, "/"), "/")
	if len(parts) < 2 {
		return "", ""
	}
	return parts[len(parts)-2], parts[len(parts)-1]
}

func NewReference(resourceType, id string) *Reference {
	return &Reference{Reference: fmt.Sprintf("%s/%s", resourceType, id)}
}

func (d *DocumentReference) HasIdentifier(system, value string) bool {
	for _, identifier := range d.Identifier {
		if identifier.System == system && identifier.Value == value {
			return true
		}
	}
	return false
}
