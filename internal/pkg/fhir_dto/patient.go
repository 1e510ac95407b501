package fhir_dto

import (
	"discharge-export-service/internal/pkg/constvars"
	"fmt"
)

type Patient struct {
	ID           string         `json:"id,omitempty"`
	ResourceType string         `json:"resourceType"`
	Meta         *Meta          `json:"meta,omitempty"`
	Identifier   []Identifier   `json:"identifier,omitempty"`
	Active       bool           `json:"active,omitempty"`
	Name         []HumanName    `json:"name,omitempty"`
	Telecom      []ContactPoint `json:"telecom,omitempty"`
	Gender       string         `json:"gender,omitempty"`
	BirthDate    string         `json:"birthDate,omitempty"`
	Address      []Address      `json:"address,omitempty"`
}

func (p *Patient) Validate() error {
	if p == nil {
		return fmt.Errorf("patient is empty")
	}
	if p.ResourceType != "" && p.ResourceType != constvars.ResourcePatient {
		return fmt.Errorf("unexpected resourceType %q, want %s", p.ResourceType, constvars.ResourcePatient)
	}
	if p.ID == "" {
		return fmt.Errorf("patient has no id")
	}
	return nil
}
