package document_writer

import (
	"context"
	"discharge-export-service/internal/app/contracts"
	"discharge-export-service/internal/app/models"
	"discharge-export-service/internal/app/services/shared/fhirclient"
	"discharge-export-service/internal/pkg/constvars"
	"discharge-export-service/internal/pkg/exceptions"
	"discharge-export-service/internal/pkg/fhir_dto"
	"discharge-export-service/internal/pkg/utils"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type documentWriter struct {
	BinaryFhirClient            contracts.BinaryFhirClient
	DocumentReferenceFhirClient contracts.DocumentReferenceFhirClient
	CompositionFhirClient       contracts.CompositionFhirClient
	IdentifierSystem            string
	Log                         *zap.Logger
}

func NewDocumentWriter(
	binaryFhirClient contracts.BinaryFhirClient,
	documentReferenceFhirClient contracts.DocumentReferenceFhirClient,
	compositionFhirClient contracts.CompositionFhirClient,
	identifierSystem string,
	logger *zap.Logger,
) contracts.DocumentWriter {
	return &documentWriter{
		BinaryFhirClient:            binaryFhirClient,
		DocumentReferenceFhirClient: documentReferenceFhirClient,
		CompositionFhirClient:       compositionFhirClient,
		IdentifierSystem:            identifierSystem,
		Log:                         logger,
	}
}

// writeState tracks what this writer created itself, the only resources it
// may discard.
type writeState struct {
	requestID string
	result    models.WrittenDocument

	ownBinaryID            string
	ownDocumentReferenceID string
	ownCompositionID       string
}

// WriteDocument writes Binary, DocumentReference and Composition in order.
// DocumentReference and Composition are conditional creates keyed on the
// export fingerprint. After each of them the writer re-reads its peers and
// keeps the oldest; when another writer got there first this one discards
// what it created and reports the winner's identifiers. A DocumentReference
// left by an earlier interrupted run is reused without counting as adopted;
// Adopted is set only when another writer holds the final set.
func (w *documentWriter) WriteDocument(ctx context.Context, input *models.WriteDocumentInput) (*models.WrittenDocument, error) {
	requestID, _ := ctx.Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
	if err := validateInput(input); err != nil {
		w.Log.Error("documentWriter.WriteDocument invalid input",
			zap.String(constvars.LoggingRequestIDKey, requestID),
			zap.Error(err),
		)
		return nil, exceptions.ErrDestinationWriteFailed("validate document", false, err)
	}
	w.Log.Info("documentWriter.WriteDocument called",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(constvars.LoggingTenantIDKey, input.TenantID),
		zap.String(constvars.LoggingDestinationPatientIDKey, input.DestinationPatientID),
		zap.String(constvars.LoggingSourceDocumentIDKey, input.SourceDocumentID),
		zap.Int(constvars.LoggingContentSizeKey, len(input.Content)),
	)
	if input.Fingerprint == "" {
		input.Fingerprint = utils.ExportFingerprint(input.TenantID, input.DestinationPatientID, input.SourceDocumentID)
	}
	if err := ctx.Err(); err != nil {
		return nil, exceptions.ErrCancelled("create binary", err)
	}

	state := &writeState{requestID: requestID}

	binary, err := w.BinaryFhirClient.CreateBinary(ctx, w.buildBinary(input))
	if err != nil {
		w.Log.Error("documentWriter.WriteDocument error creating binary",
			zap.String(constvars.LoggingRequestIDKey, requestID),
			zap.Error(err),
		)
		return nil, err
	}
	state.ownBinaryID = binary.ID
	state.result.BinaryID = binary.ID

	if err := w.writeDocumentReference(ctx, state, input); err != nil {
		return nil, err
	}
	if err := w.writeComposition(ctx, state, input); err != nil {
		return nil, err
	}

	w.Log.Info("documentWriter.WriteDocument succeeded",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(constvars.LoggingBinaryIDKey, state.result.BinaryID),
		zap.String(constvars.LoggingDocumentReferenceIDKey, state.result.DocumentReferenceID),
		zap.String(constvars.LoggingCompositionIDKey, state.result.CompositionID),
		zap.Bool("adopted", state.result.Adopted),
	)
	result := state.result
	return &result, nil
}

func (w *documentWriter) writeDocumentReference(ctx context.Context, state *writeState, input *models.WriteDocumentInput) error {
	sourceSystem := utils.SourceDocumentIdentifierSystem(w.IdentifierSystem, input.TenantID)
	ifNoneExist := fhirclient.IdentifierCondition(utils.FingerprintIdentifierSystem(w.IdentifierSystem), input.Fingerprint)

	documentReference, created, err := w.DocumentReferenceFhirClient.CreateDocumentReference(ctx, w.buildDocumentReference(input, state.ownBinaryID), ifNoneExist)
	if err != nil {
		w.Log.Error("documentWriter.writeDocumentReference error creating document reference",
			zap.String(constvars.LoggingRequestIDKey, state.requestID),
			zap.Error(err),
		)
		return err
	}
	if created {
		state.ownDocumentReferenceID = documentReference.ID
	}
	winner := documentReference

	peers, err := w.DocumentReferenceFhirClient.FindDocumentReferences(ctx, input.DestinationPatientID, utils.IdentifierToken(sourceSystem, input.SourceDocumentID))
	if err != nil {
		w.Log.Warn("documentWriter.writeDocumentReference error verifying document reference, keeping own",
			zap.String(constvars.LoggingRequestIDKey, state.requestID),
			zap.Error(err),
		)
	} else {
		matches := make([]fhir_dto.DocumentReference, 0, len(peers)+1)
		for _, peer := range peers {
			if peer.SubjectID() == input.DestinationPatientID && peer.HasIdentifier(sourceSystem, input.SourceDocumentID) {
				matches = append(matches, peer)
			}
		}
		matches = append(matches, *documentReference)
		winner = fhir_dto.OldestDocumentReference(matches)
	}

	state.result.DocumentReferenceID = winner.ID
	if winner.ID == state.ownDocumentReferenceID {
		return nil
	}

	if state.ownDocumentReferenceID != "" {
		w.Log.Warn("documentWriter.writeDocumentReference lost race, adopting winner",
			zap.String(constvars.LoggingRequestIDKey, state.requestID),
			zap.String(constvars.LoggingDocumentReferenceIDKey, winner.ID),
		)
		state.result.Adopted = true
	} else {
		w.Log.Info("documentWriter.writeDocumentReference reusing existing document reference",
			zap.String(constvars.LoggingRequestIDKey, state.requestID),
			zap.String(constvars.LoggingDocumentReferenceIDKey, winner.ID),
		)
	}
	if winnerBinaryID := winner.BinaryID(); winnerBinaryID != "" {
		state.result.BinaryID = winnerBinaryID
	}
	if state.ownDocumentReferenceID != "" {
		w.discard(ctx, state, constvars.ResourceDocumentReference, state.ownDocumentReferenceID, w.DocumentReferenceFhirClient.DeleteDocumentReference)
		state.ownDocumentReferenceID = ""
	}
	if state.result.BinaryID != state.ownBinaryID {
		w.discard(ctx, state, constvars.ResourceBinary, state.ownBinaryID, w.BinaryFhirClient.DeleteBinary)
		state.ownBinaryID = ""
	}
	return nil
}

func (w *documentWriter) writeComposition(ctx context.Context, state *writeState, input *models.WriteDocumentInput) error {
	fingerprintSystem := utils.FingerprintIdentifierSystem(w.IdentifierSystem)
	ifNoneExist := fhirclient.IdentifierCondition(fingerprintSystem, input.Fingerprint)

	composition, created, err := w.CompositionFhirClient.CreateComposition(ctx, w.buildComposition(input, state.result.DocumentReferenceID), ifNoneExist)
	if err != nil {
		w.Log.Error("documentWriter.writeComposition error creating composition",
			zap.String(constvars.LoggingRequestIDKey, state.requestID),
			zap.Error(err),
		)
		return err
	}
	if created {
		state.ownCompositionID = composition.ID
	}
	winner := composition

	peers, err := w.CompositionFhirClient.FindCompositionsByIdentifier(ctx, utils.IdentifierToken(fingerprintSystem, input.Fingerprint))
	if err != nil {
		w.Log.Warn("documentWriter.writeComposition error verifying composition, keeping own",
			zap.String(constvars.LoggingRequestIDKey, state.requestID),
			zap.Error(err),
		)
	} else {
		winner = fhir_dto.OldestComposition(append(peers, *composition))
	}

	state.result.CompositionID = winner.ID
	if winner.ID == state.ownCompositionID {
		return nil
	}

	w.Log.Warn("documentWriter.writeComposition lost race, adopting winner",
		zap.String(constvars.LoggingRequestIDKey, state.requestID),
		zap.String(constvars.LoggingCompositionIDKey, winner.ID),
		zap.Bool("created", created),
	)
	state.result.Adopted = true
	if state.ownCompositionID != "" {
		w.discard(ctx, state, constvars.ResourceComposition, state.ownCompositionID, w.CompositionFhirClient.DeleteComposition)
		state.ownCompositionID = ""
	}
	return nil
}

// discard deletes a losing resource. It runs detached from cancellation and
// never fails the write; failures are recorded on the result.
func (w *documentWriter) discard(ctx context.Context, state *writeState, resourceType, id string, deleteFn func(context.Context, string) error) {
	if id == "" {
		return
	}
	if err := deleteFn(context.WithoutCancel(ctx), id); err != nil {
		w.Log.Error("documentWriter.discard error deleting losing resource",
			zap.String(constvars.LoggingRequestIDKey, state.requestID),
			zap.String(constvars.LoggingResourceTypeKey, resourceType),
			zap.String(constvars.LoggingResourceIDKey, id),
			zap.Error(err),
		)
		state.result.DiscardErrors = append(state.result.DiscardErrors, fmt.Errorf("discard %s/%s: %w", resourceType, id, err))
	}
}

func (w *documentWriter) buildBinary(input *models.WriteDocumentInput) *fhir_dto.Binary {
	binary := fhir_dto.NewBinary(input.ContentType, input.Content)
	binary.SecurityContext = fhir_dto.NewReference(constvars.ResourcePatient, input.DestinationPatientID)
	return binary
}

func (w *documentWriter) buildDocumentReference(input *models.WriteDocumentInput, binaryID string) *fhir_dto.DocumentReference {
	documentReference := &fhir_dto.DocumentReference{
		ResourceType: constvars.ResourceDocumentReference,
		Identifier: []fhir_dto.Identifier{
			{
				Use:    constvars.FhirIdentifierUseOfficial,
				System: utils.SourceDocumentIdentifierSystem(w.IdentifierSystem, input.TenantID),
				Value:  input.SourceDocumentID,
			},
			{
				Use:    constvars.FhirIdentifierUseSecondary,
				System: utils.FingerprintIdentifierSystem(w.IdentifierSystem),
				Value:  input.Fingerprint,
				Type: &fhir_dto.CodeableConcept{
					Coding: []fhir_dto.Coding{{System: constvars.DefaultExportIdentifierSystem, Code: constvars.FingerprintTagCode}},
				},
			},
		},
		Status:      constvars.FhirDocumentReferenceStatusCurrent,
		DocStatus:   constvars.FhirDocStatusFinal,
		Type:        dischargeSummaryType(),
		Subject:     fhir_dto.NewReference(constvars.ResourcePatient, input.DestinationPatientID),
		Date:        time.Now().UTC().Format(time.RFC3339),
		Description: input.Title,
		Content: []fhir_dto.DocumentReferenceContent{{
			Attachment: fhir_dto.Attachment{
				ContentType: input.ContentType,
				Url:         fmt.Sprintf("%s/%s", constvars.ResourceBinary, binaryID),
				Size:        int64(len(input.Content)),
				Hash:        utils.AttachmentHash(input.Content),
				Title:       input.Title,
			},
		}},
	}
	if input.EncounterID != "" {
		documentReference.Context = &fhir_dto.DocumentReferenceContext{
			Encounter: []fhir_dto.Reference{*fhir_dto.NewReference(constvars.ResourceEncounter, input.EncounterID)},
		}
	}
	return documentReference
}

func (w *documentWriter) buildComposition(input *models.WriteDocumentInput, documentReferenceID string) *fhir_dto.Composition {
	composition := &fhir_dto.Composition{
		ResourceType: constvars.ResourceComposition,
		Identifier: &fhir_dto.Identifier{
			System: utils.FingerprintIdentifierSystem(w.IdentifierSystem),
			Value:  input.Fingerprint,
		},
		Status:  constvars.FhirCompositionStatusFinal,
		Type:    *dischargeSummaryType(),
		Subject: fhir_dto.NewReference(constvars.ResourcePatient, input.DestinationPatientID),
		Date:    time.Now().UTC().Format(time.RFC3339),
		Author:  []fhir_dto.Reference{{Display: constvars.ExportAuthorDisplay}},
		Title:   input.Title,
		Section: []fhir_dto.CompositionSection{{
			Title: input.Title,
			Code:  dischargeSummaryType(),
			Entry: []fhir_dto.Reference{*fhir_dto.NewReference(constvars.ResourceDocumentReference, documentReferenceID)},
		}},
	}
	if input.EncounterID != "" {
		composition.Encounter = fhir_dto.NewReference(constvars.ResourceEncounter, input.EncounterID)
	}
	return composition
}

func dischargeSummaryType() *fhir_dto.CodeableConcept {
	return &fhir_dto.CodeableConcept{
		Coding: []fhir_dto.Coding{{
			System:  constvars.FhirLoincSystem,
			Code:    constvars.FhirLoincDischargeSummary,
			Display: constvars.FhirLoincDischargeSummaryTxt,
		}},
		Text: constvars.FhirLoincDischargeSummaryTxt,
	}
}

func validateInput(input *models.WriteDocumentInput) error {
	switch {
	case input == nil:
		return errors.New("write input is empty")
	case input.DestinationPatientID == "":
		return errors.New("destination patient id is required")
	case input.SourceDocumentID == "":
		return errors.New("source document id is required")
	case len(input.Content) == 0:
		return errors.New("content is empty")
	case input.ContentType == "":
		return errors.New("content type is required")
	}
	if input.Title == "" {
		input.Title = constvars.FhirLoincDischargeSummaryTxt
	}
	return nil
}
