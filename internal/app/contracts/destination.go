package contracts

import (
	"context"
	"discharge-export-service/internal/pkg/fhir_dto"
)

type PatientFhirClient interface {
	CreatePatient(ctx context.Context, request *fhir_dto.Patient) (resource *fhir_dto.Patient, created bool, err error)
	DeletePatient(ctx context.Context, patientID string) error
}

type BinaryFhirClient interface {
	CreateBinary(ctx context.Context, request *fhir_dto.Binary) (*fhir_dto.Binary, error)
	DeleteBinary(ctx context.Context, binaryID string) error
}

// DocumentReferenceFhirClient creates with If-None-Exist when ifNoneExist is
// not empty. created is false when the server matched an existing resource.
type DocumentReferenceFhirClient interface {
	CreateDocumentReference(ctx context.Context, request *fhir_dto.DocumentReference, ifNoneExist string) (resource *fhir_dto.DocumentReference, created bool, err error)
	FindDocumentReferences(ctx context.Context, patientID, identifierToken string) ([]fhir_dto.DocumentReference, error)
	DeleteDocumentReference(ctx context.Context, documentReferenceID string) error
}

type CompositionFhirClient interface {
	CreateComposition(ctx context.Context, request *fhir_dto.Composition, ifNoneExist string) (resource *fhir_dto.Composition, created bool, err error)
	FindCompositionsByIdentifier(ctx context.Context, identifierToken string) ([]fhir_dto.Composition, error)
	DeleteComposition(ctx context.Context, compositionID string) error
}
