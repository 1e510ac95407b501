package fhir_dto

import (
	"discharge-export-service/internal/pkg/constvars"
	"encoding/base64"
	"fmt"
)

type Binary struct {
	ID              string     `json:"id,omitempty"`
	ResourceType    string     `json:"resourceType"`
	Meta            *Meta      `json:"meta,omitempty"`
	ContentType     string     `json:"contentType"`
	SecurityContext *Reference `json:"securityContext,omitempty"`
	Data            string     `json:"data,omitempty"`
}

func NewBinary(contentType string, content []byte) *Binary {
	return &Binary{
		ResourceType: constvars.ResourceBinary,
		ContentType:  contentType,
		Data:         base64.StdEncoding.EncodeToString(content),
	}
}

func (b *Binary) Validate() error {
	if b == nil {
		return fmt.Errorf("binary is empty")
	}
	if b.ResourceType != "" && b.ResourceType != constvars.ResourceBinary {
		return fmt.Errorf("unexpected resourceType %q, want %s", b.ResourceType, constvars.ResourceBinary)
	}
	if b.ContentType == "" {
		return fmt.Errorf("binary %s has no contentType", b.ID)
	}
	if b.Data == "" {
		return fmt.Errorf("binary %s has no data", b.ID)
	}
	return nil
}

// Content decodes the base64 payload.
func (b *Binary) Content() ([]byte, error) {
	content, err := base64.StdEncoding.DecodeString(b.Data)
	if err != nil {
		return nil, fmt.Errorf("binary %s data is not valid base64: %w", b.ID, err)
	}
	return content, nil
}
