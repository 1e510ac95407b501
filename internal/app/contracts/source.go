package contracts

import (
	"context"
	"discharge-export-service/internal/app/models"
	"discharge-export-service/internal/pkg/fhir_dto"
)

// SourceEHRClient reads from a tenant's source EHR. It never writes.
type SourceEHRClient interface {
	FetchDocument(ctx context.Context, tenantID, sourceDocumentID string) (*models.SourceDocument, error)
	FetchPatient(ctx context.Context, tenantID, sourcePatientID string) (*fhir_dto.Patient, error)
}

type TenantDirectory interface {
	SourceConnection(ctx context.Context, tenantID string) (*models.SourceConnection, error)
}
