package models

import "time"

type DocumentExportEvent struct {
	EventID             string                 `json:"eventId"`
	DocumentReferenceID string                 `json:"documentReferenceId,omitempty"`
	SourceDocumentID    string                 `json:"sourceDocumentId"`
	TenantID            string                 `json:"tenantId"`
	PatientID           string                 `json:"patientId,omitempty"`
	ExportTimestamp     time.Time              `json:"exportTimestamp"`
	Status              string                 `json:"status"`
	Error               string                 `json:"error,omitempty"`
	Metadata            map[string]interface{} `json:"metadata,omitempty"`
}
