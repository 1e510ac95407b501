package models

import "time"

type ExportState string

const (
	ExportStateFetching          ExportState = "Fetching"
	ExportStateResolvingPatient  ExportState = "ResolvingPatient"
	ExportStateCheckingDuplicate ExportState = "CheckingDuplicate"
	ExportStateAlreadyExported   ExportState = "AlreadyExported"
	ExportStateWriting           ExportState = "Writing"
	ExportStatePublishing        ExportState = "Publishing"
	ExportStateDone              ExportState = "Done"
	ExportStateFailed            ExportState = "Failed"
)

// Non-fatal failure classes recorded on ExportResult.Diagnostics.
const (
	DiagnosticPublishFailedAfterWrite = "PublishFailedAfterWrite"
	DiagnosticPublishFailed           = "PublishFailed"
	DiagnosticArchiveFailed           = "ArchiveFailed"
	DiagnosticDiscardFailed           = "DiscardFailed"
)

type ExportMetadata struct {
	OriginalSize    *int64    `json:"originalSize,omitempty"`
	ContentType     string    `json:"contentType,omitempty"`
	ExportTimestamp time.Time `json:"exportTimestamp"`
	PatientMapping  string    `json:"patientMapping,omitempty"`
	DuplicateCheck  string    `json:"duplicateCheck,omitempty"`
	Fingerprint     string    `json:"fingerprint,omitempty"`
	ArchiveObject   string    `json:"archiveObject,omitempty"`
	// Adopted is set when a concurrent writer won and its resources were reported.
	Adopted bool `json:"adopted,omitempty"`
}

type Diagnostic struct {
	Class   string `json:"class"`
	Message string `json:"message"`
}

// ExportResult is the terminal outcome of one ExportJob.
type ExportResult struct {
	Success                        bool           `json:"success"`
	TenantID                       string         `json:"tenantId"`
	SourceDocumentID               string         `json:"sourceDocumentId"`
	SourcePatientID                string         `json:"sourcePatientId"`
	EncounterID                    string         `json:"encounterId,omitempty"`
	DestinationPatientID           string         `json:"destinationPatientId,omitempty"`
	DestinationBinaryID            string         `json:"destinationBinaryId,omitempty"`
	DestinationDocumentReferenceID string         `json:"destinationDocumentReferenceId,omitempty"`
	DestinationCompositionID       string         `json:"destinationCompositionId,omitempty"`
	Error                          string         `json:"error,omitempty"`
	FailureKind                    string         `json:"failureKind,omitempty"`
	FailedState                    ExportState    `json:"failedState,omitempty"`
	// Retryable marks failures worth re-running the whole job for.
	Retryable                      bool           `json:"retryable,omitempty"`
	Metadata                       ExportMetadata `json:"metadata"`
	Diagnostics                    []Diagnostic   `json:"diagnostics,omitempty"`
}

func (r *ExportResult) HasDiagnostic(class string) bool {
	for _, d := range r.Diagnostics {
		if d.Class == class {
			return true
		}
	}
	return false
}
