package document_writer

import (
	"context"
	"discharge-export-service/internal/app/models"
	"discharge-export-service/internal/app/services/fhir_destination/fhirdesttest"
	"discharge-export-service/internal/pkg/constvars"
	"discharge-export-service/internal/pkg/exceptions"
	"discharge-export-service/internal/pkg/utils"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const identifierSystem = "urn:test"

func newWriter(store *fhirdesttest.Store) *documentWriter {
	return NewDocumentWriter(store, store, store, identifierSystem, zap.NewNop()).(*documentWriter)
}

func writeInput() *models.WriteDocumentInput {
	return &models.WriteDocumentInput{
		TenantID:             "t1",
		DestinationPatientID: "patient-1",
		EncounterID:          "enc-1",
		SourceDocumentID:     "d1",
		Content:              []byte("discharge summary body"),
		ContentType:          "text/plain; charset=utf-8",
		Title:                "Discharge summary",
	}
}

func TestWriteDocument_FreshWrite(t *testing.T) {
	store := fhirdesttest.NewStore()
	written, err := newWriter(store).WriteDocument(context.Background(), writeInput())
	require.NoError(t, err)
	assert.False(t, written.Adopted)
	assert.Empty(t, written.DiscardErrors)

	binary := store.Binary(written.BinaryID)
	require.NotNil(t, binary)
	content, err := binary.Content()
	require.NoError(t, err)
	assert.Equal(t, "discharge summary body", string(content))
	assert.Equal(t, "Patient/patient-1", binary.SecurityContext.Reference)

	documentReference := store.DocumentReference(written.DocumentReferenceID)
	require.NotNil(t, documentReference)
	fingerprint := utils.ExportFingerprint("t1", "patient-1", "d1")
	assert.True(t, documentReference.HasIdentifier("urn:test:source-document:t1", "d1"))
	assert.True(t, documentReference.HasIdentifier("urn:test:fingerprint", fingerprint))
	assert.Equal(t, "patient-1", documentReference.SubjectID())
	assert.Equal(t, written.BinaryID, documentReference.BinaryID())
	require.NotNil(t, documentReference.Context)
	assert.Equal(t, "Encounter/enc-1", documentReference.Context.Encounter[0].Reference)

	composition := store.Composition(written.CompositionID)
	require.NotNil(t, composition)
	assert.Equal(t, fingerprint, composition.Identifier.Value)
	assert.Equal(t, "Encounter/enc-1", composition.Encounter.Reference)
	assert.Equal(t, "DocumentReference/"+written.DocumentReferenceID, composition.Section[0].Entry[0].Reference)
	assert.NoError(t, composition.Validate())
}

func TestWriteDocument_ConditionalMatchAdoptsExisting(t *testing.T) {
	store := fhirdesttest.NewStore()
	writer := newWriter(store)

	first, err := writer.WriteDocument(context.Background(), writeInput())
	require.NoError(t, err)
	second, err := writer.WriteDocument(context.Background(), writeInput())
	require.NoError(t, err)

	assert.True(t, second.Adopted)
	assert.Equal(t, first.BinaryID, second.BinaryID)
	assert.Equal(t, first.DocumentReferenceID, second.DocumentReferenceID)
	assert.Equal(t, first.CompositionID, second.CompositionID)
	assert.Equal(t, 1, store.Count(constvars.ResourceBinary))
	assert.Equal(t, 1, store.Count(constvars.ResourceDocumentReference))
	assert.Equal(t, 1, store.Count(constvars.ResourceComposition))
}

func TestWriteDocument_LoserDiscardsOwnResources(t *testing.T) {
	store := fhirdesttest.NewStore()
	store.IgnoreIfNoneExist = true
	writer := newWriter(store)

	first, err := writer.WriteDocument(context.Background(), writeInput())
	require.NoError(t, err)
	second, err := writer.WriteDocument(context.Background(), writeInput())
	require.NoError(t, err)

	assert.True(t, second.Adopted)
	assert.Equal(t, first.DocumentReferenceID, second.DocumentReferenceID)
	assert.Equal(t, first.BinaryID, second.BinaryID)
	assert.Equal(t, first.CompositionID, second.CompositionID)
	assert.Equal(t, 2, store.Creates(constvars.ResourceDocumentReference))
	assert.Equal(t, 1, store.Count(constvars.ResourceBinary))
	assert.Equal(t, 1, store.Count(constvars.ResourceDocumentReference))
	assert.Equal(t, 1, store.Count(constvars.ResourceComposition))
	assert.Len(t, store.Deletes(), 3)
}

func TestWriteDocument_ConcurrentWritersConverge(t *testing.T) {
	const writers = 8
	store := fhirdesttest.NewStore()
	store.IgnoreIfNoneExist = true

	results := make([]*models.WrittenDocument, writers)
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = newWriter(store).WriteDocument(context.Background(), writeInput())
		}(i)
	}
	wg.Wait()

	for i := 0; i < writers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].DocumentReferenceID, results[i].DocumentReferenceID)
		assert.Equal(t, results[0].BinaryID, results[i].BinaryID)
		assert.Equal(t, results[0].CompositionID, results[i].CompositionID)
	}
	assert.Equal(t, 1, store.Count(constvars.ResourceBinary))
	assert.Equal(t, 1, store.Count(constvars.ResourceDocumentReference))
	assert.Equal(t, 1, store.Count(constvars.ResourceComposition))
}

func TestWriteDocument_Failures(t *testing.T) {
	t.Run("document reference failure surfaces DestinationWriteFailed", func(t *testing.T) {
		store := fhirdesttest.NewStore()
		store.FailCreate = func(resourceType string) error {
			if resourceType == constvars.ResourceDocumentReference {
				return exceptions.ErrDestinationWriteFailed("create document reference", false, errors.New("422"))
			}
			return nil
		}

		_, err := newWriter(store).WriteDocument(context.Background(), writeInput())
		require.Error(t, err)
		assert.Equal(t, exceptions.KindDestinationWriteFailed, exceptions.KindOf(err))
		assert.Equal(t, 1, store.Count(constvars.ResourceBinary))
		assert.Zero(t, store.Count(constvars.ResourceDocumentReference))
	})

	t.Run("cancelled context writes nothing", func(t *testing.T) {
		store := fhirdesttest.NewStore()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := newWriter(store).WriteDocument(ctx, writeInput())
		require.Error(t, err)
		assert.Equal(t, exceptions.KindCancelled, exceptions.KindOf(err))
		assert.Zero(t, store.TotalCreates())
	})

	t.Run("nil input is rejected without panicking", func(t *testing.T) {
		store := fhirdesttest.NewStore()

		var written *models.WrittenDocument
		var err error
		require.NotPanics(t, func() {
			written, err = newWriter(store).WriteDocument(context.Background(), nil)
		})
		require.Error(t, err)
		assert.Nil(t, written)
		assert.Equal(t, exceptions.KindDestinationWriteFailed, exceptions.KindOf(err))
		assert.Zero(t, store.TotalCreates())
	})

	t.Run("empty content is rejected before any write", func(t *testing.T) {
		store := fhirdesttest.NewStore()
		input := writeInput()
		input.Content = nil

		_, err := newWriter(store).WriteDocument(context.Background(), input)
		require.Error(t, err)
		assert.Equal(t, exceptions.KindDestinationWriteFailed, exceptions.KindOf(err))
		assert.Zero(t, store.TotalCreates())
	})
}

func TestWriteDocument_CompletesInterruptedWrite(t *testing.T) {
	store := fhirdesttest.NewStore()
	failComposition := true
	store.FailCreate = func(resourceType string) error {
		if resourceType == constvars.ResourceComposition && failComposition {
			return exceptions.ErrDestinationWriteFailed("create composition", true, errors.New("503"))
		}
		return nil
	}
	writer := newWriter(store)

	_, err := writer.WriteDocument(context.Background(), writeInput())
	require.Error(t, err)
	require.Equal(t, 1, store.Count(constvars.ResourceDocumentReference))

	failComposition = false
	written, err := writer.WriteDocument(context.Background(), writeInput())
	require.NoError(t, err)
	assert.False(t, written.Adopted, "completing an own interrupted write is not adoption")
	assert.Equal(t, 1, store.Count(constvars.ResourceBinary))
	assert.Equal(t, 1, store.Count(constvars.ResourceDocumentReference))
	assert.Equal(t, 1, store.Count(constvars.ResourceComposition))
	assert.Equal(t, "DocumentReference/"+written.DocumentReferenceID, store.Composition(written.CompositionID).Section[0].Entry[0].Reference)
}
