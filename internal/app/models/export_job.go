package models

import (
	"discharge-export-service/internal/pkg/constvars"
	"fmt"
)

// ExportJob is one unit of work handed to the orchestrator. It is never
// mutated after it is accepted.
type ExportJob struct {
	TenantID         string `json:"tenantId" validate:"required,max=128,excludes=0x7C"`
	SourcePatientID  string `json:"sourcePatientId" validate:"required,max=256,excludes=0x7C"`
	SourceDocumentID string `json:"sourceDocumentId" validate:"required,max=256,excludes=0x7C"`
	EncounterID      string `json:"encounterId,omitempty" validate:"max=256"`
}

// LockKey identifies the job for the worker lock; one source document per tenant
// is exported by at most one worker at a time.
func (j ExportJob) LockKey() string {
	return fmt.Sprintf(constvars.RedisExportJobLockKeyFormat, j.TenantID, j.SourceDocumentID)
}

type ExportBatchRequest struct {
	Jobs []ExportJob `json:"jobs"`
}

type ExportBatchResponse struct {
	Total     int             `json:"total"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Results   []*ExportResult `json:"results"`
}

type EnqueueExportResponse struct {
	RequestID string    `json:"requestId"`
	Job       ExportJob `json:"job"`
}
