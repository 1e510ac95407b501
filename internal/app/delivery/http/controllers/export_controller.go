package controllers

import (
	"discharge-export-service/internal/app/contracts"
	"discharge-export-service/internal/app/models"
	"discharge-export-service/internal/pkg/constvars"
	"discharge-export-service/internal/pkg/exceptions"
	"discharge-export-service/internal/pkg/utils"
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

type ExportController struct {
	Log           *zap.Logger
	ExportUsecase contracts.ExportUsecase
}

func NewExportController(logger *zap.Logger, exportUsecase contracts.ExportUsecase) contracts.ExportController {
	return &ExportController{
		Log:           logger,
		ExportUsecase: exportUsecase,
	}
}

// RunExport exports one document synchronously. The request context is the
// job's context, so a client that disconnects cancels the export.
func (ctrl *ExportController) RunExport(w http.ResponseWriter, r *http.Request) {
	requestID, ok := r.Context().Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
	if !ok || requestID == "" {
		ctrl.Log.Error("ExportController.RunExport requestID not found in context")
		utils.BuildErrorResponse(ctrl.Log, w, exceptions.ErrMissingRequestID(nil))
		return
	}
	ctrl.Log.Info("ExportController.RunExport called",
		zap.String(constvars.LoggingRequestIDKey, requestID),
	)

	job := new(models.ExportJob)
	if err := decodeBody(r.Body, job); err != nil {
		ctrl.Log.Error("ExportController.RunExport error decoding request body",
			zap.String(constvars.LoggingRequestIDKey, requestID),
			zap.Error(err),
		)
		utils.BuildErrorResponse(ctrl.Log, w, err)
		return
	}
	if err := utils.ValidateStruct(job); err != nil {
		ctrl.Log.Error("ExportController.RunExport invalid request",
			zap.String(constvars.LoggingRequestIDKey, requestID),
			zap.Error(err),
		)
		utils.BuildErrorResponse(ctrl.Log, w, exceptions.ErrInputValidation(err))
		return
	}

	result := ctrl.ExportUsecase.RunExport(r.Context(), job)

	utils.LogExportEvent(ctrl.Log, "document_export_finished", requestID, result.Success,
		zap.String(constvars.LoggingTenantIDKey, result.TenantID),
		zap.String(constvars.LoggingSourceDocumentIDKey, result.SourceDocumentID),
		zap.String(constvars.LoggingFailureKindKey, result.FailureKind),
	)
	utils.BuildDataResponse(w, statusForResult(result), result.Success, messageForResult(result), result)
}

// EnqueueExport accepts a job for the background worker and answers 202.
func (ctrl *ExportController) EnqueueExport(w http.ResponseWriter, r *http.Request) {
	requestID, ok := r.Context().Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
	if !ok || requestID == "" {
		ctrl.Log.Error("ExportController.EnqueueExport requestID not found in context")
		utils.BuildErrorResponse(ctrl.Log, w, exceptions.ErrMissingRequestID(nil))
		return
	}
	ctrl.Log.Info("ExportController.EnqueueExport called",
		zap.String(constvars.LoggingRequestIDKey, requestID),
	)

	job := new(models.ExportJob)
	if err := decodeBody(r.Body, job); err != nil {
		utils.BuildErrorResponse(ctrl.Log, w, err)
		return
	}

	if err := ctrl.ExportUsecase.EnqueueExport(r.Context(), job); err != nil {
		ctrl.Log.Error("ExportController.EnqueueExport error from usecase",
			zap.String(constvars.LoggingRequestIDKey, requestID),
			zap.Error(err),
		)
		utils.BuildErrorResponse(ctrl.Log, w, err)
		return
	}

	utils.BuildSuccessResponse(w, constvars.StatusAccepted, constvars.ExportEnqueuedMessage, &models.EnqueueExportResponse{
		RequestID: requestID,
		Job:       *job,
	})
}

// RunBatch exports up to MaxExportBatchSize documents and reports every
// result in request order. Individual failures do not fail the request.
func (ctrl *ExportController) RunBatch(w http.ResponseWriter, r *http.Request) {
	requestID, ok := r.Context().Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
	if !ok || requestID == "" {
		ctrl.Log.Error("ExportController.RunBatch requestID not found in context")
		utils.BuildErrorResponse(ctrl.Log, w, exceptions.ErrMissingRequestID(nil))
		return
	}
	ctrl.Log.Info("ExportController.RunBatch called",
		zap.String(constvars.LoggingRequestIDKey, requestID),
	)

	request := new(models.ExportBatchRequest)
	if err := decodeBody(r.Body, request); err != nil {
		utils.BuildErrorResponse(ctrl.Log, w, err)
		return
	}
	if len(request.Jobs) == 0 || len(request.Jobs) > constvars.MaxExportBatchSize {
		utils.BuildErrorResponse(ctrl.Log, w, exceptions.ErrExportBatchInvalid(len(request.Jobs), constvars.MaxExportBatchSize))
		return
	}

	results := ctrl.ExportUsecase.RunBatch(r.Context(), request.Jobs)

	response := &models.ExportBatchResponse{Total: len(results), Results: results}
	for _, result := range results {
		if result.Success {
			response.Succeeded++
		} else {
			response.Failed++
		}
	}

	ctrl.Log.Info("ExportController.RunBatch succeeded",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.Int("succeeded", response.Succeeded),
		zap.Int("failed", response.Failed),
	)
	utils.BuildSuccessResponse(w, constvars.StatusOK, constvars.ExportBatchFinishedMessage, response)
}

func decodeBody(body io.Reader, dst interface{}) error {
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return exceptions.ErrRequestBodyTooLarge(err)
		}
		return exceptions.ErrCannotParseJSON(err)
	}
	return nil
}

func statusForResult(result *models.ExportResult) int {
	if result.Success {
		return constvars.StatusOK
	}
	switch exceptions.ExportErrorKind(result.FailureKind) {
	case exceptions.KindMalformedContent:
		return constvars.StatusUnprocessableEntity
	case exceptions.KindSourceNotFound:
		return constvars.StatusNotFound
	case exceptions.KindCancelled:
		return constvars.StatusServiceUnavailable
	default:
		return constvars.StatusBadGateway
	}
}

func messageForResult(result *models.ExportResult) string {
	switch {
	case !result.Success:
		return constvars.ExportFailedMessage
	case result.Metadata.DuplicateCheck == constvars.DuplicateCheckDuplicate:
		return constvars.ExportAlreadyExistedMessage
	default:
		return constvars.ExportSucceededMessage
	}
}
