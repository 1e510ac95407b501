package exports

import (
	"context"
	"discharge-export-service/internal/app/config"
	"discharge-export-service/internal/app/contracts"
	"discharge-export-service/internal/app/models"
	"discharge-export-service/internal/pkg/constvars"
	"discharge-export-service/internal/pkg/exceptions"
	"discharge-export-service/internal/pkg/utils"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPublishTimeout   = 30 * time.Second
	defaultBatchConcurrency = 4
)

type exportUsecase struct {
	SourceEHRClient         contracts.SourceEHRClient
	PatientIdentityResolver contracts.PatientIdentityResolver
	DuplicateDetector       contracts.DuplicateDetector
	DocumentWriter          contracts.DocumentWriter
	EventPublisher          contracts.EventPublisher
	DocumentArchive         contracts.DocumentArchive
	ExportJobQueue          contracts.ExportJobQueue
	InternalConfig          *config.InternalConfig
	Log                     *zap.Logger
}

// NewExportUsecase wires the orchestrator. documentArchive and exportJobQueue
// may be nil when archiving or the async trigger is disabled.
func NewExportUsecase(
	sourceEHRClient contracts.SourceEHRClient,
	patientIdentityResolver contracts.PatientIdentityResolver,
	duplicateDetector contracts.DuplicateDetector,
	documentWriter contracts.DocumentWriter,
	eventPublisher contracts.EventPublisher,
	documentArchive contracts.DocumentArchive,
	exportJobQueue contracts.ExportJobQueue,
	internalConfig *config.InternalConfig,
	logger *zap.Logger,
) contracts.ExportUsecase {
	return &exportUsecase{
		SourceEHRClient:         sourceEHRClient,
		PatientIdentityResolver: patientIdentityResolver,
		DuplicateDetector:       duplicateDetector,
		DocumentWriter:          documentWriter,
		EventPublisher:          eventPublisher,
		DocumentArchive:         documentArchive,
		ExportJobQueue:          exportJobQueue,
		InternalConfig:          internalConfig,
		Log:                     logger,
	}
}

// exportRun is the mutable state of one RunExport call. The result is handed
// out only once the run is terminal.
type exportRun struct {
	requestID string
	job       *models.ExportJob
	state     models.ExportState
	result    *models.ExportResult
	wrote     bool
}

func (run *exportRun) transition(log *zap.Logger, state models.ExportState) {
	run.state = state
	log.Debug("exportUsecase.RunExport state changed",
		zap.String(constvars.LoggingRequestIDKey, run.requestID),
		zap.String(constvars.LoggingSourceDocumentIDKey, run.job.SourceDocumentID),
		zap.String(constvars.LoggingExportStateKey, string(state)),
	)
}

// RunExport drives one job through Fetching, ResolvingPatient,
// CheckingDuplicate, Writing and Publishing. Every call ends in exactly one
// ExportResult and one published DocumentExportEvent, failures included.
func (uc *exportUsecase) RunExport(ctx context.Context, job *models.ExportJob) *models.ExportResult {
	requestID, _ := ctx.Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
	uc.Log.Info("exportUsecase.RunExport called",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(constvars.LoggingTenantIDKey, job.TenantID),
		zap.String(constvars.LoggingSourcePatientIDKey, job.SourcePatientID),
		zap.String(constvars.LoggingSourceDocumentIDKey, job.SourceDocumentID),
	)

	run := &exportRun{
		requestID: requestID,
		job:       job,
		state:     models.ExportStateFetching,
		result: &models.ExportResult{
			TenantID:         job.TenantID,
			SourceDocumentID: job.SourceDocumentID,
			SourcePatientID:  job.SourcePatientID,
			EncounterID:      job.EncounterID,
			Metadata:         models.ExportMetadata{ExportTimestamp: time.Now().UTC()},
		},
	}

	if err := uc.execute(ctx, run); err != nil {
		uc.fail(run, err)
	} else {
		run.result.Success = true
	}

	uc.publish(ctx, run)

	if run.result.Success {
		run.transition(uc.Log, models.ExportStateDone)
		uc.Log.Info("exportUsecase.RunExport succeeded",
			zap.String(constvars.LoggingRequestIDKey, requestID),
			zap.String(constvars.LoggingDocumentReferenceIDKey, run.result.DestinationDocumentReferenceID),
			zap.String(constvars.LoggingPatientMappingKey, run.result.Metadata.PatientMapping),
			zap.String(constvars.LoggingDuplicateCheckKey, run.result.Metadata.DuplicateCheck),
		)
	} else {
		run.transition(uc.Log, models.ExportStateFailed)
	}
	return run.result
}

func (uc *exportUsecase) execute(ctx context.Context, run *exportRun) error {
	job, result := run.job, run.result

	if err := utils.ValidateStruct(job); err != nil {
		return exceptions.NewExportError(exceptions.KindMalformedContent, "validate job", false, errors.New(exceptions.FormatFirstValidationError(err)))
	}

	run.transition(uc.Log, models.ExportStateFetching)
	document, err := uc.SourceEHRClient.FetchDocument(ctx, job.TenantID, job.SourceDocumentID)
	if err != nil {
		return err
	}
	size := document.Size
	result.Metadata.OriginalSize = &size
	result.Metadata.ContentType = document.ContentType
	if document.Metadata == nil {
		return exceptions.ErrMalformedContent("read document metadata", errors.New("source returned no document metadata"))
	}
	if subject := document.Metadata.SubjectID(); subject != "" && subject != job.SourcePatientID {
		return exceptions.ErrMalformedContent("verify document subject",
			fmt.Errorf("document %s belongs to patient %s, not %s", job.SourceDocumentID, subject, job.SourcePatientID))
	}

	run.transition(uc.Log, models.ExportStateResolvingPatient)
	resolved, err := uc.PatientIdentityResolver.ResolvePatient(ctx, job.TenantID, job.SourcePatientID)
	if err != nil {
		return err
	}
	result.DestinationPatientID = resolved.DestinationPatientID
	result.Metadata.PatientMapping = constvars.PatientMappingFound
	if resolved.Created {
		result.Metadata.PatientMapping = constvars.PatientMappingCreated
	}

	run.transition(uc.Log, models.ExportStateCheckingDuplicate)
	fingerprint := utils.ExportFingerprint(job.TenantID, resolved.DestinationPatientID, job.SourceDocumentID)
	result.Metadata.Fingerprint = fingerprint
	check, err := uc.DuplicateDetector.IsDuplicate(ctx, job.TenantID, resolved.DestinationPatientID, job.SourceDocumentID)
	if err != nil {
		return err
	}
	if check.Duplicate {
		run.transition(uc.Log, models.ExportStateAlreadyExported)
		result.Metadata.DuplicateCheck = constvars.DuplicateCheckDuplicate
		result.DestinationDocumentReferenceID = check.ExistingDocumentReferenceID
		result.DestinationBinaryID = check.ExistingBinaryID
		result.DestinationCompositionID = check.ExistingCompositionID
		return nil
	}
	result.Metadata.DuplicateCheck = constvars.DuplicateCheckNew

	if err := ctx.Err(); err != nil {
		return exceptions.ErrCancelled("write document", err)
	}

	run.transition(uc.Log, models.ExportStateWriting)
	written, err := uc.DocumentWriter.WriteDocument(ctx, &models.WriteDocumentInput{
		TenantID:             job.TenantID,
		DestinationPatientID: resolved.DestinationPatientID,
		EncounterID:          job.EncounterID,
		SourceDocumentID:     job.SourceDocumentID,
		Content:              document.Content,
		ContentType:          document.ContentType,
		Title:                documentTitle(document),
		Fingerprint:          fingerprint,
	})
	if err != nil {
		return err
	}
	run.wrote = true
	result.DestinationBinaryID = written.BinaryID
	result.DestinationDocumentReferenceID = written.DocumentReferenceID
	result.DestinationCompositionID = written.CompositionID
	result.Metadata.Adopted = written.Adopted
	for _, discardErr := range written.DiscardErrors {
		uc.diagnose(run, models.DiagnosticDiscardFailed, discardErr)
	}

	uc.archive(ctx, run, document)
	return nil
}

// archive keeps a copy of a newly exported document. Failure never fails the job.
func (uc *exportUsecase) archive(ctx context.Context, run *exportRun, document *models.SourceDocument) {
	if uc.DocumentArchive == nil || run.result.Metadata.Adopted {
		return
	}
	archiveCtx, cancel := uc.callContext(ctx)
	defer cancel()
	objectName, err := uc.DocumentArchive.Archive(archiveCtx, run.job.TenantID, run.result.Metadata.Fingerprint, document.ContentType, document.Content)
	if err != nil {
		uc.diagnose(run, models.DiagnosticArchiveFailed, err)
		return
	}
	run.result.Metadata.ArchiveObject = objectName
}

func (uc *exportUsecase) fail(run *exportRun, err error) {
	var exportErr *exceptions.ExportError
	if !errors.As(err, &exportErr) {
		err = exceptions.NewExportError(unclassifiedKind(run.state), string(run.state), false, err)
	}
	kind := exceptions.KindOf(err)

	run.result.Success = false
	run.result.Error = err.Error()
	run.result.FailureKind = string(kind)
	run.result.FailedState = run.state
	run.result.Retryable = kind == exceptions.KindCancelled || exceptions.HasTransientCause(err)

	uc.Log.Error("exportUsecase.RunExport failed",
		zap.String(constvars.LoggingRequestIDKey, run.requestID),
		zap.String(constvars.LoggingSourceDocumentIDKey, run.job.SourceDocumentID),
		zap.String(constvars.LoggingExportStateKey, string(run.state)),
		zap.String(constvars.LoggingFailureKindKey, string(kind)),
		zap.Bool("retryable", run.result.Retryable),
		zap.Error(err),
	)
}

// publish emits the terminal event. It runs detached from the caller's
// cancellation so a cancelled job still reports its failure.
func (uc *exportUsecase) publish(ctx context.Context, run *exportRun) {
	run.transition(uc.Log, models.ExportStatePublishing)

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.publishTimeout())
	defer cancel()

	err := uc.EventPublisher.Publish(publishCtx, uc.buildEvent(run.result))
	if err == nil {
		return
	}
	if run.result.Success {
		// The destination already holds the document; only the notification is missing.
		uc.diagnose(run, models.DiagnosticPublishFailedAfterWrite, exceptions.ErrPublishFailedAfterWrite(err))
		return
	}
	uc.diagnose(run, models.DiagnosticPublishFailed, err)
}

func (uc *exportUsecase) diagnose(run *exportRun, class string, err error) {
	run.result.Diagnostics = append(run.result.Diagnostics, models.Diagnostic{Class: class, Message: err.Error()})
	uc.Log.Error("exportUsecase.RunExport non-fatal failure",
		zap.String(constvars.LoggingRequestIDKey, run.requestID),
		zap.String(constvars.LoggingSourceDocumentIDKey, run.job.SourceDocumentID),
		zap.String(constvars.LoggingFailureClassKey, class),
		zap.Bool("wrote", run.wrote),
		zap.Error(err),
	)
}

func (uc *exportUsecase) buildEvent(result *models.ExportResult) *models.DocumentExportEvent {
	event := &models.DocumentExportEvent{
		EventID:             uuid.NewString(),
		DocumentReferenceID: result.DestinationDocumentReferenceID,
		SourceDocumentID:    result.SourceDocumentID,
		TenantID:            result.TenantID,
		PatientID:           result.DestinationPatientID,
		ExportTimestamp:     result.Metadata.ExportTimestamp,
		Status:              constvars.EventStatusSuccess,
		Metadata: map[string]interface{}{
			"sourcePatientId": result.SourcePatientID,
		},
	}
	if !result.Success {
		event.Status = constvars.EventStatusFailed
		event.Error = result.Error
		event.Metadata["failureKind"] = result.FailureKind
		event.Metadata["failedState"] = string(result.FailedState)
	}

	optional := map[string]string{
		"encounterId":    result.EncounterID,
		"binaryId":       result.DestinationBinaryID,
		"compositionId":  result.DestinationCompositionID,
		"contentType":    result.Metadata.ContentType,
		"patientMapping": result.Metadata.PatientMapping,
		"duplicateCheck": result.Metadata.DuplicateCheck,
		"fingerprint":    result.Metadata.Fingerprint,
		"archiveObject":  result.Metadata.ArchiveObject,
	}
	for key, value := range optional {
		if value != "" {
			event.Metadata[key] = value
		}
	}
	if result.Metadata.OriginalSize != nil {
		event.Metadata["originalSize"] = *result.Metadata.OriginalSize
	}
	if result.Metadata.Adopted {
		event.Metadata["adopted"] = true
	}
	return event
}

func (uc *exportUsecase) publishTimeout() time.Duration {
	if uc.InternalConfig == nil || uc.InternalConfig.Export.CallTimeoutInSeconds <= 0 {
		return defaultPublishTimeout
	}
	attempts := uc.InternalConfig.Export.RetryMaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return time.Duration(uc.InternalConfig.Export.CallTimeoutInSeconds*attempts) * time.Second
}

// callContext bounds a single call to an external store by the configured
// per-call timeout.
func (uc *exportUsecase) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if uc.InternalConfig == nil || uc.InternalConfig.Export.CallTimeoutInSeconds <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(uc.InternalConfig.Export.CallTimeoutInSeconds)*time.Second)
}

// RunBatch runs jobs concurrently, bounded by the worker concurrency, and
// returns results in job order.
func (uc *exportUsecase) RunBatch(ctx context.Context, jobs []models.ExportJob) []*models.ExportResult {
	requestID, _ := ctx.Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
	uc.Log.Info("exportUsecase.RunBatch called",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.Int(constvars.LoggingCountKey, len(jobs)),
	)

	limit := defaultBatchConcurrency
	if uc.InternalConfig != nil && uc.InternalConfig.Export.WorkerConcurrency > 0 {
		limit = uc.InternalConfig.Export.WorkerConcurrency
	}

	results := make([]*models.ExportResult, len(jobs))
	var group errgroup.Group
	group.SetLimit(limit)
	for i := range jobs {
		i := i
		group.Go(func() error {
			results[i] = uc.RunExport(ctx, &jobs[i])
			return nil
		})
	}
	_ = group.Wait()

	return results
}

func (uc *exportUsecase) EnqueueExport(ctx context.Context, job *models.ExportJob) error {
	requestID, _ := ctx.Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
	uc.Log.Info("exportUsecase.EnqueueExport called",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(constvars.LoggingTenantIDKey, job.TenantID),
		zap.String(constvars.LoggingSourceDocumentIDKey, job.SourceDocumentID),
	)

	if err := utils.ValidateStruct(job); err != nil {
		return exceptions.ErrInputValidation(err)
	}
	if uc.ExportJobQueue == nil {
		return exceptions.ErrExportQueueDisabled()
	}
	if err := uc.ExportJobQueue.EnqueueJob(ctx, job); err != nil {
		uc.Log.Error("exportUsecase.EnqueueExport error enqueueing job",
			zap.String(constvars.LoggingRequestIDKey, requestID),
			zap.Error(err),
		)
		return err
	}

	uc.Log.Info("exportUsecase.EnqueueExport succeeded",
		zap.String(constvars.LoggingRequestIDKey, requestID),
	)
	return nil
}

func documentTitle(document *models.SourceDocument) string {
	metadata := document.Metadata
	switch {
	case metadata == nil:
	case metadata.Description != "":
		return metadata.Description
	case metadata.Type != nil && metadata.Type.Text != "":
		return metadata.Type.Text
	case metadata.Type != nil && len(metadata.Type.Coding) > 0 && metadata.Type.Coding[0].Display != "":
		return metadata.Type.Coding[0].Display
	}
	return constvars.FhirLoincDischargeSummaryTxt
}

func unclassifiedKind(state models.ExportState) exceptions.ExportErrorKind {
	switch state {
	case models.ExportStateFetching:
		return exceptions.KindSourceUnavailable
	case models.ExportStateResolvingPatient:
		return exceptions.KindPatientResolutionFailed
	case models.ExportStateCheckingDuplicate:
		return exceptions.KindDestinationReadFailed
	default:
		return exceptions.KindDestinationWriteFailed
	}
}
