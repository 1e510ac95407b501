package exports

import (
	"context"
	"discharge-export-service/internal/app/config"
	"discharge-export-service/internal/app/contracts"
	"discharge-export-service/internal/app/models"
	"discharge-export-service/internal/app/services/core/document_writer"
	"discharge-export-service/internal/app/services/core/duplicates"
	"discharge-export-service/internal/app/services/core/patient_identity"
	"discharge-export-service/internal/app/services/fhir_destination/fhirdesttest"
	"discharge-export-service/internal/pkg/constvars"
	"discharge-export-service/internal/pkg/exceptions"
	"discharge-export-service/internal/pkg/fhir_dto"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const identifierSystem = "urn:test"

type MockSourceEHRClient struct {
	mock.Mock
}

func (m *MockSourceEHRClient) FetchDocument(ctx context.Context, tenantID, sourceDocumentID string) (*models.SourceDocument, error) {
	args := m.Called(ctx, tenantID, sourceDocumentID)
	doc, _ := args.Get(0).(*models.SourceDocument)
	return doc, args.Error(1)
}

func (m *MockSourceEHRClient) FetchPatient(ctx context.Context, tenantID, sourcePatientID string) (*fhir_dto.Patient, error) {
	args := m.Called(ctx, tenantID, sourcePatientID)
	patient, _ := args.Get(0).(*fhir_dto.Patient)
	return patient, args.Error(1)
}

type memoryMappings struct {
	mu       sync.Mutex
	mappings map[string]models.PatientMapping
}

func (m *memoryMappings) FindMapping(ctx context.Context, tenantID, sourcePatientID string) (*models.PatientMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mapping, ok := m.mappings[tenantID+"/"+sourcePatientID]
	if !ok {
		return nil, nil
	}
	return &mapping, nil
}

func (m *memoryMappings) InsertMapping(ctx context.Context, mapping *models.PatientMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := mapping.TenantID + "/" + mapping.SourcePatientID
	if _, ok := m.mappings[key]; ok {
		return exceptions.ErrPatientMappingConflict
	}
	m.mappings[key] = *mapping
	return nil
}

// stalledMappings and stalledArchive never answer until the caller's context ends.
type stalledMappings struct{}

func (stalledMappings) FindMapping(ctx context.Context, tenantID, sourcePatientID string) (*models.PatientMapping, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stalledMappings) InsertMapping(ctx context.Context, mapping *models.PatientMapping) error {
	<-ctx.Done()
	return ctx.Err()
}

type stalledArchive struct{}

func (stalledArchive) Archive(ctx context.Context, tenantID, fingerprint, contentType string, content []byte) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.DocumentExportEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event *models.DocumentExportEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) recorded() []*models.DocumentExportEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*models.DocumentExportEvent(nil), p.events...)
}

type fakeArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (a *fakeArchive) Archive(ctx context.Context, tenantID, fingerprint, contentType string, content []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	name := tenantID + "/" + fingerprint
	a.objects[name] = content
	return name, nil
}

type fakeQueue struct {
	jobs []models.ExportJob
	err  error
}

func (q *fakeQueue) EnqueueJob(ctx context.Context, job *models.ExportJob) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, *job)
	return nil
}

type fixture struct {
	source    *MockSourceEHRClient
	store     *fhirdesttest.Store
	publisher *recordingPublisher
	archive   *fakeArchive
	queue     *fakeQueue
	usecase   contracts.ExportUsecase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		source:    new(MockSourceEHRClient),
		store:     fhirdesttest.NewStore(),
		publisher: &recordingPublisher{},
		archive:   &fakeArchive{objects: map[string][]byte{}},
		queue:     &fakeQueue{},
	}
	log := zap.NewNop()
	mappings := &memoryMappings{mappings: map[string]models.PatientMapping{}}
	resolver := patient_identity.NewPatientIdentityResolver(mappings, nil, f.source, f.store, identifierSystem, 0, log)
	detector := duplicates.NewDuplicateDetector(f.store, f.store, identifierSystem, log)
	writer := document_writer.NewDocumentWriter(f.store, f.store, f.store, identifierSystem, log)
	cfg := &config.InternalConfig{Export: config.AppExport{WorkerConcurrency: 2}}
	f.usecase = NewExportUsecase(f.source, resolver, detector, writer, f.publisher, f.archive, f.queue, cfg, log)
	return f
}

func (f *fixture) withUsecase(publisher contracts.EventPublisher, archive contracts.DocumentArchive, queue contracts.ExportJobQueue) {
	uc := f.usecase.(*exportUsecase)
	f.usecase = NewExportUsecase(uc.SourceEHRClient, uc.PatientIdentityResolver, uc.DuplicateDetector, uc.DocumentWriter, publisher, archive, queue, uc.InternalConfig, uc.Log)
}

func sourceDocument(subject string) *models.SourceDocument {
	content := []byte("Discharge summary for Jane Doe")
	return &models.SourceDocument{
		Metadata: &fhir_dto.DocumentReference{
			ResourceType: constvars.ResourceDocumentReference,
			ID:           "d1",
			Status:       "current",
			Subject:      &fhir_dto.Reference{Reference: "Patient/" + subject},
			Description:  "Discharge summary",
		},
		Content:     content,
		ContentType: "text/plain",
		Size:        int64(len(content)),
	}
}

func sourcePatient() *fhir_dto.Patient {
	return &fhir_dto.Patient{
		ResourceType: "Patient",
		ID:           "p1",
		Name:         []fhir_dto.HumanName{{Family: "Doe", Given: []string{"Jane"}}},
		Gender:       "female",
		BirthDate:    "1970-01-01",
	}
}

func job() *models.ExportJob {
	return &models.ExportJob{TenantID: "t1", SourcePatientID: "p1", SourceDocumentID: "d1", EncounterID: "e1"}
}

func (f *fixture) expectHappySource() {
	f.source.On("FetchDocument", mock.Anything, "t1", "d1").Return(sourceDocument("p1"), nil)
	f.source.On("FetchPatient", mock.Anything, "t1", "p1").Return(sourcePatient(), nil)
}

func TestRunExport_FirstRunCreatesThenRerunIsDuplicate(t *testing.T) {
	f := newFixture(t)
	f.expectHappySource()

	first := f.usecase.RunExport(context.Background(), job())
	require.True(t, first.Success, first.Error)
	assert.Equal(t, constvars.PatientMappingCreated, first.Metadata.PatientMapping)
	assert.Equal(t, constvars.DuplicateCheckNew, first.Metadata.DuplicateCheck)
	assert.NotEmpty(t, first.DestinationPatientID)
	assert.NotEmpty(t, first.DestinationBinaryID)
	assert.NotEmpty(t, first.DestinationDocumentReferenceID)
	assert.NotEmpty(t, first.DestinationCompositionID)
	require.NotNil(t, first.Metadata.OriginalSize)
	assert.Equal(t, int64(len("Discharge summary for Jane Doe")), *first.Metadata.OriginalSize)
	assert.Equal(t, "text/plain", first.Metadata.ContentType)
	assert.Equal(t, "t1/"+first.Metadata.Fingerprint, first.Metadata.ArchiveObject)

	second := f.usecase.RunExport(context.Background(), job())
	require.True(t, second.Success, second.Error)
	assert.Equal(t, constvars.PatientMappingFound, second.Metadata.PatientMapping)
	assert.Equal(t, constvars.DuplicateCheckDuplicate, second.Metadata.DuplicateCheck)
	assert.Equal(t, first.DestinationPatientID, second.DestinationPatientID)
	assert.Equal(t, first.DestinationDocumentReferenceID, second.DestinationDocumentReferenceID)
	assert.Equal(t, first.DestinationCompositionID, second.DestinationCompositionID)

	assert.Equal(t, 1, f.store.Count(constvars.ResourcePatient))
	assert.Equal(t, 1, f.store.Count(constvars.ResourceBinary))
	assert.Equal(t, 1, f.store.Count(constvars.ResourceDocumentReference))
	assert.Equal(t, 1, f.store.Count(constvars.ResourceComposition))
	f.source.AssertNumberOfCalls(t, "FetchPatient", 1)

	events := f.publisher.recorded()
	require.Len(t, events, 2)
	assert.Equal(t, constvars.EventStatusSuccess, events[0].Status)
	assert.Equal(t, first.DestinationDocumentReferenceID, events[0].DocumentReferenceID)
	assert.Equal(t, first.DestinationPatientID, events[0].PatientID)
	assert.Equal(t, "t1", events[0].TenantID)
	assert.Equal(t, "d1", events[0].SourceDocumentID)
	assert.Equal(t, constvars.PatientMappingCreated, events[0].Metadata["patientMapping"])
	assert.Equal(t, "e1", events[0].Metadata["encounterId"])
	assert.Equal(t, constvars.DuplicateCheckDuplicate, events[1].Metadata["duplicateCheck"])
	assert.NotEqual(t, events[0].EventID, events[1].EventID)
}

func TestRunExport_SourceNotFoundFailsWithoutWrites(t *testing.T) {
	f := newFixture(t)
	f.source.On("FetchDocument", mock.Anything, "t1", "d1").
		Return(nil, exceptions.ErrSourceNotFound("fetch document", errors.New("404 Not Found")))

	result := f.usecase.RunExport(context.Background(), job())

	assert.False(t, result.Success)
	assert.Equal(t, string(exceptions.KindSourceNotFound), result.FailureKind)
	assert.Equal(t, models.ExportStateFetching, result.FailedState)
	assert.False(t, result.Retryable)
	assert.Contains(t, result.Error, "404")
	assert.Zero(t, f.store.TotalCreates())
	f.source.AssertNumberOfCalls(t, "FetchDocument", 1)
	f.source.AssertNotCalled(t, "FetchPatient", mock.Anything, mock.Anything, mock.Anything)

	events := f.publisher.recorded()
	require.Len(t, events, 1)
	assert.Equal(t, constvars.EventStatusFailed, events[0].Status)
	assert.Equal(t, result.Error, events[0].Error)
	assert.Empty(t, events[0].DocumentReferenceID)
	assert.Equal(t, string(exceptions.KindSourceNotFound), events[0].Metadata["failureKind"])
}

func TestRunExport_TransientSourceFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.source.On("FetchDocument", mock.Anything, "t1", "d1").
		Return(nil, exceptions.ErrSourceUnavailable("fetch document", errors.New("503 Service Unavailable")))

	result := f.usecase.RunExport(context.Background(), job())

	assert.False(t, result.Success)
	assert.Equal(t, string(exceptions.KindSourceUnavailable), result.FailureKind)
	assert.True(t, result.Retryable)
	assert.Len(t, f.publisher.recorded(), 1)
}

func TestRunExport_SubjectMismatchIsMalformed(t *testing.T) {
	f := newFixture(t)
	f.source.On("FetchDocument", mock.Anything, "t1", "d1").Return(sourceDocument("someone-else"), nil)

	result := f.usecase.RunExport(context.Background(), job())

	assert.False(t, result.Success)
	assert.Equal(t, string(exceptions.KindMalformedContent), result.FailureKind)
	assert.Zero(t, f.store.TotalCreates())
	assert.Len(t, f.publisher.recorded(), 1)
}

func TestRunExport_InvalidJobIsMalformed(t *testing.T) {
	f := newFixture(t)

	result := f.usecase.RunExport(context.Background(), &models.ExportJob{TenantID: "t|1", SourcePatientID: "p1", SourceDocumentID: "d1"})

	assert.False(t, result.Success)
	assert.Equal(t, string(exceptions.KindMalformedContent), result.FailureKind)
	f.source.AssertNotCalled(t, "FetchDocument", mock.Anything, mock.Anything, mock.Anything)
	assert.Len(t, f.publisher.recorded(), 1)
}

func TestRunExport_PublishFailureAfterWriteKeepsSuccess(t *testing.T) {
	f := newFixture(t)
	f.expectHappySource()
	f.publisher.err = exceptions.ErrPublishUnavailable(errors.New("broker down"))

	result := f.usecase.RunExport(context.Background(), job())

	assert.True(t, result.Success)
	assert.True(t, result.HasDiagnostic(models.DiagnosticPublishFailedAfterWrite))
	assert.Equal(t, 1, f.store.Count(constvars.ResourceDocumentReference))
	assert.Len(t, f.publisher.recorded(), 1)
}

func TestRunExport_PublishFailureOnFailedJob(t *testing.T) {
	f := newFixture(t)
	f.source.On("FetchDocument", mock.Anything, "t1", "d1").
		Return(nil, exceptions.ErrSourceNotFound("fetch document", errors.New("gone")))
	f.publisher.err = errors.New("broker down")

	result := f.usecase.RunExport(context.Background(), job())

	assert.False(t, result.Success)
	assert.Equal(t, string(exceptions.KindSourceNotFound), result.FailureKind)
	assert.True(t, result.HasDiagnostic(models.DiagnosticPublishFailed))
	assert.False(t, result.HasDiagnostic(models.DiagnosticPublishFailedAfterWrite))
}

func TestRunExport_CancelledBeforeWriteLeavesNoResources(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.source.On("FetchDocument", mock.Anything, "t1", "d1").Return(sourceDocument("p1"), nil)
	f.source.On("FetchPatient", mock.Anything, "t1", "p1").
		Run(func(mock.Arguments) { cancel() }).
		Return(sourcePatient(), nil)

	result := f.usecase.RunExport(ctx, job())

	assert.False(t, result.Success)
	assert.Equal(t, string(exceptions.KindCancelled), result.FailureKind)
	assert.True(t, result.Retryable)
	assert.Zero(t, f.store.TotalCreates())

	events := f.publisher.recorded()
	require.Len(t, events, 1)
	assert.Equal(t, constvars.EventStatusFailed, events[0].Status)
}

func TestRunExport_DestinationWriteFailure(t *testing.T) {
	f := newFixture(t)
	f.expectHappySource()
	f.store.FailCreate = func(resourceType string) error {
		if resourceType == constvars.ResourceComposition {
			return exceptions.ErrDestinationWriteFailed("create composition", false, errors.New("422 Unprocessable Entity"))
		}
		return nil
	}

	result := f.usecase.RunExport(context.Background(), job())

	assert.False(t, result.Success)
	assert.Equal(t, string(exceptions.KindDestinationWriteFailed), result.FailureKind)
	assert.Equal(t, models.ExportStateWriting, result.FailedState)
	assert.Len(t, f.publisher.recorded(), 1)

	// The next run completes the partially written set instead of duplicating it.
	f.store.FailCreate = nil
	retried := f.usecase.RunExport(context.Background(), job())
	require.True(t, retried.Success, retried.Error)
	assert.Equal(t, 1, f.store.Count(constvars.ResourceDocumentReference))
	assert.Equal(t, 1, f.store.Count(constvars.ResourceComposition))
	assert.Equal(t, 1, f.store.Count(constvars.ResourceBinary))
}

func TestRunExport_ResumedWriteIsArchived(t *testing.T) {
	f := newFixture(t)
	f.expectHappySource()
	f.store.FailCreate = func(resourceType string) error {
		if resourceType == constvars.ResourceComposition {
			return exceptions.ErrDestinationWriteFailed("create composition", true, errors.New("503 Service Unavailable"))
		}
		return nil
	}

	failed := f.usecase.RunExport(context.Background(), job())
	require.False(t, failed.Success)
	assert.True(t, failed.Retryable)
	assert.Empty(t, f.archive.objects)

	f.store.FailCreate = nil
	resumed := f.usecase.RunExport(context.Background(), job())
	require.True(t, resumed.Success, resumed.Error)
	assert.Equal(t, constvars.DuplicateCheckNew, resumed.Metadata.DuplicateCheck)
	assert.False(t, resumed.Metadata.Adopted)
	assert.NotEmpty(t, resumed.Metadata.ArchiveObject)
	assert.Contains(t, f.archive.objects, resumed.Metadata.ArchiveObject)

	events := f.publisher.recorded()
	require.Len(t, events, 2)
	assert.NotContains(t, events[1].Metadata, "adopted")
	assert.Equal(t, resumed.Metadata.ArchiveObject, events[1].Metadata["archiveObject"])

	again := f.usecase.RunExport(context.Background(), job())
	require.True(t, again.Success, again.Error)
	assert.Equal(t, constvars.DuplicateCheckDuplicate, again.Metadata.DuplicateCheck)
	assert.Len(t, f.archive.objects, 1)
}

func TestRunExport_StalledMappingStoreHitsCallTimeout(t *testing.T) {
	source := new(MockSourceEHRClient)
	source.On("FetchDocument", mock.Anything, "t1", "d1").Return(sourceDocument("p1"), nil)
	store := fhirdesttest.NewStore()
	publisher := &recordingPublisher{}
	log := zap.NewNop()
	resolver := patient_identity.NewPatientIdentityResolver(stalledMappings{}, nil, source, store, identifierSystem, time.Second, log)
	detector := duplicates.NewDuplicateDetector(store, store, identifierSystem, log)
	writer := document_writer.NewDocumentWriter(store, store, store, identifierSystem, log)
	cfg := &config.InternalConfig{Export: config.AppExport{CallTimeoutInSeconds: 1}}
	usecase := NewExportUsecase(source, resolver, detector, writer, publisher, nil, nil, cfg, log)

	done := make(chan *models.ExportResult, 1)
	go func() { done <- usecase.RunExport(context.Background(), job()) }()

	select {
	case result := <-done:
		assert.False(t, result.Success)
		assert.Equal(t, string(exceptions.KindPatientResolutionFailed), result.FailureKind)
		assert.Equal(t, models.ExportStateResolvingPatient, result.FailedState)
		assert.True(t, result.Retryable)
		assert.Zero(t, store.TotalCreates())
		assert.Len(t, publisher.recorded(), 1)
	case <-time.After(4 * time.Second):
		t.Fatal("RunExport blocked on the mapping store past the per-call timeout")
	}
}

func TestRunExport_StalledArchiveHitsCallTimeout(t *testing.T) {
	f := newFixture(t)
	f.expectHappySource()
	uc := f.usecase.(*exportUsecase)
	cfg := &config.InternalConfig{Export: config.AppExport{CallTimeoutInSeconds: 1}}
	f.usecase = NewExportUsecase(uc.SourceEHRClient, uc.PatientIdentityResolver, uc.DuplicateDetector, uc.DocumentWriter, f.publisher, stalledArchive{}, f.queue, cfg, uc.Log)

	done := make(chan *models.ExportResult, 1)
	go func() { done <- f.usecase.RunExport(context.Background(), job()) }()

	select {
	case result := <-done:
		assert.True(t, result.Success, result.Error)
		assert.True(t, result.HasDiagnostic(models.DiagnosticArchiveFailed))
	case <-time.After(4 * time.Second):
		t.Fatal("RunExport blocked on the archive past the per-call timeout")
	}
}

func TestRunExport_ArchiveFailureIsDiagnostic(t *testing.T) {
	f := newFixture(t)
	f.expectHappySource()
	f.withUsecase(f.publisher, &fakeArchive{objects: map[string][]byte{}, err: errors.New("bucket unavailable")}, f.queue)

	result := f.usecase.RunExport(context.Background(), job())

	assert.True(t, result.Success)
	assert.True(t, result.HasDiagnostic(models.DiagnosticArchiveFailed))
	assert.Empty(t, result.Metadata.ArchiveObject)
}

func TestRunExport_ConcurrentRunsConverge(t *testing.T) {
	f := newFixture(t)
	f.expectHappySource()

	const runs = 8
	results := make([]*models.ExportResult, runs)
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.usecase.RunExport(context.Background(), job())
		}(i)
	}
	wg.Wait()

	for _, result := range results {
		require.True(t, result.Success, result.Error)
		assert.Equal(t, results[0].DestinationPatientID, result.DestinationPatientID)
		assert.Equal(t, results[0].DestinationDocumentReferenceID, result.DestinationDocumentReferenceID)
	}
	assert.Equal(t, 1, f.store.Count(constvars.ResourcePatient))
	assert.Equal(t, 1, f.store.Count(constvars.ResourceDocumentReference))
	assert.Equal(t, 1, f.store.Count(constvars.ResourceComposition))
	assert.Len(t, f.publisher.recorded(), runs)
}

func TestRunBatch_PreservesJobOrder(t *testing.T) {
	f := newFixture(t)
	f.expectHappySource()
	f.source.On("FetchDocument", mock.Anything, "t1", "missing").
		Return(nil, exceptions.ErrSourceNotFound("fetch document", errors.New("404")))

	jobs := []models.ExportJob{
		*job(),
		{TenantID: "t1", SourcePatientID: "p1", SourceDocumentID: "missing"},
		*job(),
	}
	results := f.usecase.RunBatch(context.Background(), jobs)

	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.Equal(t, "missing", results[1].SourceDocumentID)
	assert.False(t, results[1].Success)
	assert.True(t, results[2].Success)
	assert.Len(t, f.publisher.recorded(), 3)
	assert.Equal(t, 1, f.store.Count(constvars.ResourceDocumentReference))
}

func TestEnqueueExport(t *testing.T) {
	t.Run("enqueues a valid job", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.usecase.EnqueueExport(context.Background(), job()))
		assert.Equal(t, []models.ExportJob{*job()}, f.queue.jobs)
	})

	t.Run("rejects an invalid job", func(t *testing.T) {
		f := newFixture(t)
		err := f.usecase.EnqueueExport(context.Background(), &models.ExportJob{TenantID: "t1"})
		require.Error(t, err)
		assert.Empty(t, f.queue.jobs)
	})

	t.Run("fails when the queue is disabled", func(t *testing.T) {
		f := newFixture(t)
		f.withUsecase(f.publisher, f.archive, nil)
		err := f.usecase.EnqueueExport(context.Background(), job())
		var customErr *exceptions.CustomError
		require.ErrorAs(t, err, &customErr)
		assert.Equal(t, exceptions.ErrExportQueueDisabled().StatusCode, customErr.StatusCode)
	})

	t.Run("propagates queue errors", func(t *testing.T) {
		f := newFixture(t)
		f.queue.err = errors.New("channel closed")
		assert.EqualError(t, f.usecase.EnqueueExport(context.Background(), job()), "channel closed")
	})
}
