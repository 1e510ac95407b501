package duplicates

import (
	"context"
	"discharge-export-service/internal/app/contracts"
	"discharge-export-service/internal/app/models"
	"discharge-export-service/internal/pkg/constvars"
	"discharge-export-service/internal/pkg/exceptions"
	"discharge-export-service/internal/pkg/fhir_dto"
	"discharge-export-service/internal/pkg/utils"
	"errors"

	"go.uber.org/zap"
)

type duplicateDetector struct {
	DocumentReferenceFhirClient contracts.DocumentReferenceFhirClient
	CompositionFhirClient       contracts.CompositionFhirClient
	IdentifierSystem            string
	Log                         *zap.Logger
}

func NewDuplicateDetector(
	documentReferenceFhirClient contracts.DocumentReferenceFhirClient,
	compositionFhirClient contracts.CompositionFhirClient,
	identifierSystem string,
	logger *zap.Logger,
) contracts.DuplicateDetector {
	return &duplicateDetector{
		DocumentReferenceFhirClient: documentReferenceFhirClient,
		CompositionFhirClient:       compositionFhirClient,
		IdentifierSystem:            identifierSystem,
		Log:                         logger,
	}
}

// IsDuplicate reports an export as done only when the tagged DocumentReference
// and its Composition both exist. A DocumentReference without a Composition is
// left from an interrupted write and is reported as new so the writer finishes
// the set through its conditional creates.
func (d *duplicateDetector) IsDuplicate(ctx context.Context, tenantID, destinationPatientID, sourceDocumentID string) (*models.DuplicateCheck, error) {
	requestID, _ := ctx.Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
	d.Log.Info("duplicateDetector.IsDuplicate called",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(constvars.LoggingTenantIDKey, tenantID),
		zap.String(constvars.LoggingDestinationPatientIDKey, destinationPatientID),
		zap.String(constvars.LoggingSourceDocumentIDKey, sourceDocumentID),
	)

	if destinationPatientID == "" || sourceDocumentID == "" {
		return nil, exceptions.ErrDestinationReadFailed("check duplicate", false, errors.New("destination patient id and source document id are required"))
	}

	system := utils.SourceDocumentIdentifierSystem(d.IdentifierSystem, tenantID)
	documentReferences, err := d.DocumentReferenceFhirClient.FindDocumentReferences(ctx, destinationPatientID, utils.IdentifierToken(system, sourceDocumentID))
	if err != nil {
		d.Log.Error("duplicateDetector.IsDuplicate error searching document references",
			zap.String(constvars.LoggingRequestIDKey, requestID),
			zap.Error(err),
		)
		return nil, err
	}

	matches := make([]fhir_dto.DocumentReference, 0, len(documentReferences))
	for _, documentReference := range documentReferences {
		if documentReference.SubjectID() == destinationPatientID && documentReference.HasIdentifier(system, sourceDocumentID) {
			matches = append(matches, documentReference)
		}
	}

	existing := fhir_dto.OldestDocumentReference(matches)
	if existing == nil {
		d.Log.Info("duplicateDetector.IsDuplicate succeeded",
			zap.String(constvars.LoggingRequestIDKey, requestID),
			zap.String(constvars.LoggingDuplicateCheckKey, constvars.DuplicateCheckNew),
		)
		return &models.DuplicateCheck{}, nil
	}

	fingerprint := utils.ExportFingerprint(tenantID, destinationPatientID, sourceDocumentID)
	compositions, err := d.CompositionFhirClient.FindCompositionsByIdentifier(ctx, utils.IdentifierToken(utils.FingerprintIdentifierSystem(d.IdentifierSystem), fingerprint))
	if err != nil {
		d.Log.Error("duplicateDetector.IsDuplicate error searching compositions",
			zap.String(constvars.LoggingRequestIDKey, requestID),
			zap.Error(err),
		)
		return nil, err
	}

	composition := fhir_dto.OldestComposition(compositions)
	if composition == nil {
		d.Log.Warn("duplicateDetector.IsDuplicate found document reference without composition",
			zap.String(constvars.LoggingRequestIDKey, requestID),
			zap.String(constvars.LoggingDocumentReferenceIDKey, existing.ID),
		)
		return &models.DuplicateCheck{}, nil
	}

	check := &models.DuplicateCheck{
		Duplicate:                   true,
		ExistingDocumentReferenceID: existing.ID,
		ExistingBinaryID:            existing.BinaryID(),
		ExistingCompositionID:       composition.ID,
	}
	d.Log.Info("duplicateDetector.IsDuplicate succeeded",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(constvars.LoggingDuplicateCheckKey, constvars.DuplicateCheckDuplicate),
		zap.String(constvars.LoggingDocumentReferenceIDKey, check.ExistingDocumentReferenceID),
		zap.String(constvars.LoggingCompositionIDKey, check.ExistingCompositionID),
	)
	return check, nil
}
