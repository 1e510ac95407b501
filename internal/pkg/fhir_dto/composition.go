package fhir_dto

import (
	"discharge-export-service/internal/pkg/constvars"
	"fmt"
)

type Composition struct {
	ID           string               `json:"id,omitempty"`
	ResourceType string               `json:"resourceType"`
	Meta         *Meta                `json:"meta,omitempty"`
	Identifier   *Identifier          `json:"identifier,omitempty"`
	Status       string               `json:"status"`
	Type         CodeableConcept      `json:"type"`
	Subject      *Reference           `json:"subject,omitempty"`
	Encounter    *Reference           `json:"encounter,omitempty"`
	Date         string               `json:"date"`
	Author       []Reference          `json:"author"`
	Title        string               `json:"title"`
	Section      []CompositionSection `json:"section,omitempty"`
}

type CompositionSection struct {
	Title string           `json:"title,omitempty"`
	Code  *CodeableConcept `json:"code,omitempty"`
	Text  *Narrative       `json:"text,omitempty"`
	Entry []Reference      `json:"entry,omitempty"`
}

func (c *Composition) Validate() error {
	if c == nil {
		return fmt.Errorf("composition is empty")
	}
	if c.ResourceType != constvars.ResourceComposition {
		return fmt.Errorf("unexpected resourceType %q, want %s", c.ResourceType, constvars.ResourceComposition)
	}
	if c.Status == "" || c.Date == "" || c.Title == "" {
		return fmt.Errorf("composition requires status, date and title")
	}
	if len(c.Author) == 0 {
		return fmt.Errorf("composition requires at least one author")
	}
	if c.Subject == nil {
		return fmt.Errorf("composition requires a subject")
	}
	return nil
}
