package routers

import (
	"bytes"
	"context"
	"discharge-export-service/internal/app/config"
	"discharge-export-service/internal/app/delivery/http/controllers"
	"discharge-export-service/internal/app/delivery/http/middlewares"
	"discharge-export-service/internal/app/models"
	"discharge-export-service/internal/pkg/constvars"
	"discharge-export-service/internal/pkg/exceptions"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testAPIKey = "test-export-api-key-12345"

type MockExportUsecase struct {
	mock.Mock
}

func (m *MockExportUsecase) RunExport(ctx context.Context, job *models.ExportJob) *models.ExportResult {
	args := m.Called(ctx, job)
	return args.Get(0).(*models.ExportResult)
}

func (m *MockExportUsecase) RunBatch(ctx context.Context, jobs []models.ExportJob) []*models.ExportResult {
	args := m.Called(ctx, jobs)
	return args.Get(0).([]*models.ExportResult)
}

func (m *MockExportUsecase) EnqueueExport(ctx context.Context, job *models.ExportJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

type resultResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    models.ExportResult `json:"data"`
}

type batchResponse struct {
	Success bool                       `json:"success"`
	Data    models.ExportBatchResponse `json:"data"`
}

func newTestRouter(mockUsecase *MockExportUsecase) *chi.Mux {
	logger := zap.NewNop()
	internalConfig := &config.InternalConfig{
		App: config.App{
			EndpointPrefix:             "api",
			Version:                    "v1",
			MaxRequests:                1000,
			APIKey:                     testAPIKey,
			APIKeyRateLimit:            1000,
			RequestBodyLimitInMegabyte: 1,
		},
	}
	router := chi.NewRouter()
	SetupRoutes(router, internalConfig, middlewares.NewMiddlewares(logger, internalConfig), controllers.NewExportController(logger, mockUsecase))
	return router
}

func doRequest(router http.Handler, method, path string, body interface{}, apiKey string) *httptest.ResponseRecorder {
	var payload []byte
	switch b := body.(type) {
	case nil:
	case string:
		payload = []byte(b)
	default:
		payload, _ = json.Marshal(b)
	}
	req := httptest.NewRequest(method, path, bytes.NewBuffer(payload))
	req.Header.Set(constvars.HeaderContentType, constvars.MIMEApplicationJSON)
	if apiKey != "" {
		req.Header.Set(constvars.HeaderXAPIKey, apiKey)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func exportJob() models.ExportJob {
	return models.ExportJob{TenantID: "t1", SourcePatientID: "p1", SourceDocumentID: "d1"}
}

func TestExportRouter_RunExport(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockUsecase := new(MockExportUsecase)
		job := exportJob()
		mockUsecase.On("RunExport", mock.Anything, &job).Return(&models.ExportResult{
			Success:                        true,
			TenantID:                       "t1",
			SourceDocumentID:               "d1",
			DestinationDocumentReferenceID: "documentreference-1",
			Metadata:                       models.ExportMetadata{DuplicateCheck: constvars.DuplicateCheckNew},
		})

		rr := doRequest(newTestRouter(mockUsecase), http.MethodPost, "/api/v1/exports", job, testAPIKey)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.NotEmpty(t, rr.Header().Get(constvars.HeaderXRequestID))
		var response resultResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
		assert.True(t, response.Success)
		assert.Equal(t, constvars.ExportSucceededMessage, response.Message)
		assert.Equal(t, "documentreference-1", response.Data.DestinationDocumentReferenceID)
		mockUsecase.AssertExpectations(t)
	})

	t.Run("Already Exported", func(t *testing.T) {
		mockUsecase := new(MockExportUsecase)
		mockUsecase.On("RunExport", mock.Anything, mock.Anything).Return(&models.ExportResult{
			Success:  true,
			Metadata: models.ExportMetadata{DuplicateCheck: constvars.DuplicateCheckDuplicate},
		})

		rr := doRequest(newTestRouter(mockUsecase), http.MethodPost, "/api/v1/exports", exportJob(), testAPIKey)

		assert.Equal(t, http.StatusOK, rr.Code)
		var response resultResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
		assert.Equal(t, constvars.ExportAlreadyExistedMessage, response.Message)
	})

	t.Run("Failed Result Maps Status", func(t *testing.T) {
		cases := map[exceptions.ExportErrorKind]int{
			exceptions.KindSourceNotFound:         http.StatusNotFound,
			exceptions.KindMalformedContent:       http.StatusUnprocessableEntity,
			exceptions.KindSourceUnavailable:      http.StatusBadGateway,
			exceptions.KindDestinationWriteFailed: http.StatusBadGateway,
			exceptions.KindCancelled:              http.StatusServiceUnavailable,
		}
		for kind, status := range cases {
			mockUsecase := new(MockExportUsecase)
			mockUsecase.On("RunExport", mock.Anything, mock.Anything).Return(&models.ExportResult{
				FailureKind: string(kind),
				Error:       string(kind) + ": failed",
			})

			rr := doRequest(newTestRouter(mockUsecase), http.MethodPost, "/api/v1/exports", exportJob(), testAPIKey)

			assert.Equal(t, status, rr.Code, "status for %s", kind)
			var response resultResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
			assert.False(t, response.Success)
			assert.Equal(t, string(kind), response.Data.FailureKind)
		}
	})

	t.Run("Malformed JSON", func(t *testing.T) {
		mockUsecase := new(MockExportUsecase)
		rr := doRequest(newTestRouter(mockUsecase), http.MethodPost, "/api/v1/exports", "{not json", testAPIKey)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockUsecase.AssertNotCalled(t, "RunExport", mock.Anything, mock.Anything)
	})

	t.Run("Missing Fields", func(t *testing.T) {
		mockUsecase := new(MockExportUsecase)
		rr := doRequest(newTestRouter(mockUsecase), http.MethodPost, "/api/v1/exports", models.ExportJob{TenantID: "t1"}, testAPIKey)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "sourcePatientId")
		mockUsecase.AssertNotCalled(t, "RunExport", mock.Anything, mock.Anything)
	})

	t.Run("Missing API Key", func(t *testing.T) {
		mockUsecase := new(MockExportUsecase)
		rr := doRequest(newTestRouter(mockUsecase), http.MethodPost, "/api/v1/exports", exportJob(), "")

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		mockUsecase.AssertNotCalled(t, "RunExport", mock.Anything, mock.Anything)
	})
}

func TestExportRouter_EnqueueExport(t *testing.T) {
	t.Run("Accepted", func(t *testing.T) {
		mockUsecase := new(MockExportUsecase)
		mockUsecase.On("EnqueueExport", mock.Anything, mock.AnythingOfType("*models.ExportJob")).Return(nil)

		rr := doRequest(newTestRouter(mockUsecase), http.MethodPost, "/api/v1/exports/async", exportJob(), testAPIKey)

		assert.Equal(t, http.StatusAccepted, rr.Code)
		assert.Contains(t, rr.Body.String(), `"sourceDocumentId":"d1"`)
		mockUsecase.AssertExpectations(t)
	})

	t.Run("Queue Disabled", func(t *testing.T) {
		mockUsecase := new(MockExportUsecase)
		mockUsecase.On("EnqueueExport", mock.Anything, mock.Anything).Return(exceptions.ErrExportQueueDisabled())

		rr := doRequest(newTestRouter(mockUsecase), http.MethodPost, "/api/v1/exports/async", exportJob(), testAPIKey)

		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Contains(t, rr.Body.String(), constvars.ErrClientExportQueueUnavailable)
	})
}

func TestExportRouter_RunBatch(t *testing.T) {
	t.Run("Reports Every Result", func(t *testing.T) {
		mockUsecase := new(MockExportUsecase)
		jobs := []models.ExportJob{exportJob(), {TenantID: "t1", SourcePatientID: "p1", SourceDocumentID: "d2"}}
		mockUsecase.On("RunBatch", mock.Anything, jobs).Return([]*models.ExportResult{
			{Success: true, SourceDocumentID: "d1"},
			{SourceDocumentID: "d2", FailureKind: string(exceptions.KindSourceNotFound)},
		})

		rr := doRequest(newTestRouter(mockUsecase), http.MethodPost, "/api/v1/exports/batch", models.ExportBatchRequest{Jobs: jobs}, testAPIKey)

		assert.Equal(t, http.StatusOK, rr.Code)
		var response batchResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
		assert.Equal(t, 2, response.Data.Total)
		assert.Equal(t, 1, response.Data.Succeeded)
		assert.Equal(t, 1, response.Data.Failed)
		require.Len(t, response.Data.Results, 2)
		assert.Equal(t, "d2", response.Data.Results[1].SourceDocumentID)
	})

	t.Run("Empty Batch", func(t *testing.T) {
		mockUsecase := new(MockExportUsecase)
		rr := doRequest(newTestRouter(mockUsecase), http.MethodPost, "/api/v1/exports/batch", models.ExportBatchRequest{}, testAPIKey)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockUsecase.AssertNotCalled(t, "RunBatch", mock.Anything, mock.Anything)
	})

	t.Run("Oversized Batch", func(t *testing.T) {
		mockUsecase := new(MockExportUsecase)
		jobs := make([]models.ExportJob, constvars.MaxExportBatchSize+1)
		for i := range jobs {
			jobs[i] = exportJob()
		}
		rr := doRequest(newTestRouter(mockUsecase), http.MethodPost, "/api/v1/exports/batch", models.ExportBatchRequest{Jobs: jobs}, testAPIKey)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockUsecase.AssertNotCalled(t, "RunBatch", mock.Anything, mock.Anything)
	})
}

func TestHealthRoute(t *testing.T) {
	rr := doRequest(newTestRouter(new(MockExportUsecase)), http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
}
