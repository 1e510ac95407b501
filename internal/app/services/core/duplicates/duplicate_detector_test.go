package duplicates

import (
	"context"
	"discharge-export-service/internal/app/services/fhir_destination/fhirdesttest"
	"discharge-export-service/internal/pkg/constvars"
	"discharge-export-service/internal/pkg/fhir_dto"
	"discharge-export-service/internal/pkg/utils"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func seedDocumentReference(t *testing.T, store *fhirdesttest.Store, patientID, sourceDocumentID, binaryID string) *fhir_dto.DocumentReference {
	t.Helper()
	documentReference, _, err := store.CreateDocumentReference(context.Background(), &fhir_dto.DocumentReference{
		ResourceType: constvars.ResourceDocumentReference,
		Identifier:   []fhir_dto.Identifier{{System: "urn:test:source-document:t1", Value: sourceDocumentID}},
		Status:       constvars.FhirDocumentReferenceStatusCurrent,
		Subject:      fhir_dto.NewReference(constvars.ResourcePatient, patientID),
		Content: []fhir_dto.DocumentReferenceContent{{
			Attachment: fhir_dto.Attachment{ContentType: "text/plain", Url: "Binary/" + binaryID},
		}},
	}, "")
	require.NoError(t, err)
	return documentReference
}

func seedComposition(t *testing.T, store *fhirdesttest.Store, patientID, sourceDocumentID string) *fhir_dto.Composition {
	t.Helper()
	composition, _, err := store.CreateComposition(context.Background(), &fhir_dto.Composition{
		ResourceType: constvars.ResourceComposition,
		Identifier: &fhir_dto.Identifier{
			System: "urn:test:fingerprint",
			Value:  utils.ExportFingerprint("t1", patientID, sourceDocumentID),
		},
	}, "")
	require.NoError(t, err)
	return composition
}

func TestIsDuplicate(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing exported yet", func(t *testing.T) {
		store := fhirdesttest.NewStore()
		detector := NewDuplicateDetector(store, store, "urn:test", zap.NewNop())

		check, err := detector.IsDuplicate(ctx, "t1", "patient-1", "d1")
		require.NoError(t, err)
		assert.False(t, check.Duplicate)
		assert.Empty(t, check.ExistingDocumentReferenceID)
	})

	t.Run("complete export is a duplicate with its identifiers", func(t *testing.T) {
		store := fhirdesttest.NewStore()
		documentReference := seedDocumentReference(t, store, "patient-1", "d1", "bin-1")
		composition := seedComposition(t, store, "patient-1", "d1")
		detector := NewDuplicateDetector(store, store, "urn:test", zap.NewNop())

		check, err := detector.IsDuplicate(ctx, "t1", "patient-1", "d1")
		require.NoError(t, err)
		assert.True(t, check.Duplicate)
		assert.Equal(t, documentReference.ID, check.ExistingDocumentReferenceID)
		assert.Equal(t, "bin-1", check.ExistingBinaryID)
		assert.Equal(t, composition.ID, check.ExistingCompositionID)
	})

	t.Run("oldest document reference is reported when several exist", func(t *testing.T) {
		store := fhirdesttest.NewStore()
		oldest := seedDocumentReference(t, store, "patient-1", "d1", "bin-1")
		seedDocumentReference(t, store, "patient-1", "d1", "bin-2")
		seedComposition(t, store, "patient-1", "d1")
		detector := NewDuplicateDetector(store, store, "urn:test", zap.NewNop())

		check, err := detector.IsDuplicate(ctx, "t1", "patient-1", "d1")
		require.NoError(t, err)
		assert.Equal(t, oldest.ID, check.ExistingDocumentReferenceID)
		assert.Equal(t, "bin-1", check.ExistingBinaryID)
	})

	t.Run("document reference without composition is not yet exported", func(t *testing.T) {
		store := fhirdesttest.NewStore()
		seedDocumentReference(t, store, "patient-1", "d1", "bin-1")
		detector := NewDuplicateDetector(store, store, "urn:test", zap.NewNop())

		check, err := detector.IsDuplicate(ctx, "t1", "patient-1", "d1")
		require.NoError(t, err)
		assert.False(t, check.Duplicate)
	})

	t.Run("other patient or other document does not match", func(t *testing.T) {
		store := fhirdesttest.NewStore()
		seedDocumentReference(t, store, "patient-2", "d1", "bin-1")
		seedDocumentReference(t, store, "patient-1", "d2", "bin-2")
		detector := NewDuplicateDetector(store, store, "urn:test", zap.NewNop())

		check, err := detector.IsDuplicate(ctx, "t1", "patient-1", "d1")
		require.NoError(t, err)
		assert.False(t, check.Duplicate)
	})

	t.Run("the detector never writes", func(t *testing.T) {
		store := fhirdesttest.NewStore()
		detector := NewDuplicateDetector(store, store, "urn:test", zap.NewNop())

		_, err := detector.IsDuplicate(ctx, "t1", "patient-1", "d1")
		require.NoError(t, err)
		assert.Zero(t, store.TotalCreates())
	})
}
