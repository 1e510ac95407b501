package contracts

import (
	"context"
	"discharge-export-service/internal/app/models"
)

// PatientMappingRepository is the durable mapping store. InsertMapping returns
// exceptions.ErrPatientMappingConflict when the key already exists.
type PatientMappingRepository interface {
	FindMapping(ctx context.Context, tenantID, sourcePatientID string) (*models.PatientMapping, error)
	InsertMapping(ctx context.Context, mapping *models.PatientMapping) error
}

// PatientMappingCache is a lookaside cache; misses return nil, nil.
type PatientMappingCache interface {
	GetMapping(ctx context.Context, tenantID, sourcePatientID string) (*models.PatientMapping, error)
	SetMapping(ctx context.Context, mapping *models.PatientMapping) error
}
