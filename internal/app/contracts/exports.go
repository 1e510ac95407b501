package contracts

import (
	"context"
	"discharge-export-service/internal/app/models"
	"net/http"
)

type PatientIdentityResolver interface {
	ResolvePatient(ctx context.Context, tenantID, sourcePatientID string) (*models.ResolvedPatient, error)
}

type DuplicateDetector interface {
	IsDuplicate(ctx context.Context, tenantID, destinationPatientID, sourceDocumentID string) (*models.DuplicateCheck, error)
}

type DocumentWriter interface {
	WriteDocument(ctx context.Context, input *models.WriteDocumentInput) (*models.WrittenDocument, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event *models.DocumentExportEvent) error
}

// DocumentArchive stores exported bytes and returns the object name.
type DocumentArchive interface {
	Archive(ctx context.Context, tenantID, fingerprint, contentType string, content []byte) (string, error)
}

type ExportJobQueue interface {
	EnqueueJob(ctx context.Context, job *models.ExportJob) error
}

type ExportUsecase interface {
	RunExport(ctx context.Context, job *models.ExportJob) *models.ExportResult
	RunBatch(ctx context.Context, jobs []models.ExportJob) []*models.ExportResult
	EnqueueExport(ctx context.Context, job *models.ExportJob) error
}

type ExportController interface {
	RunExport(w http.ResponseWriter, r *http.Request)
	EnqueueExport(w http.ResponseWriter, r *http.Request)
	RunBatch(w http.ResponseWriter, r *http.Request)
}
