package fhir_source

import (
	"context"
	"discharge-export-service/internal/app/contracts"
	"discharge-export-service/internal/app/models"
	"discharge-export-service/internal/app/services/shared/fhirclient"
	"discharge-export-service/internal/app/services/shared/retry"
	"discharge-export-service/internal/pkg/constvars"
	"discharge-export-service/internal/pkg/exceptions"
	"discharge-export-service/internal/pkg/fhir_dto"
	"discharge-export-service/internal/pkg/utils"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

type sourceEHRClient struct {
	Tenants     contracts.TenantDirectory
	Retry       retry.Policy
	CallTimeout time.Duration
	Breaker     gobreaker.Settings
	Log         *zap.Logger

	mu       sync.Mutex
	sessions map[string]*sourceSession
}

// DefaultBreakerSettings opens after five consecutive transient failures and
// tries again after thirty seconds. Name is filled per tenant.
func DefaultBreakerSettings() gobreaker.Settings {
	return gobreaker.Settings{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !fhirclient.IsTransient(err)
		},
	}
}

func NewSourceEHRClient(tenants contracts.TenantDirectory, retryPolicy retry.Policy, callTimeout time.Duration, breaker gobreaker.Settings, logger *zap.Logger) contracts.SourceEHRClient {
	return &sourceEHRClient{
		Tenants:     tenants,
		Retry:       retryPolicy.WithRetryable(isRetryableSourceError),
		CallTimeout: callTimeout,
		Breaker:     breaker,
		Log:         logger,
		sessions:    map[string]*sourceSession{},
	}
}

// isRetryableSourceError limits retries to transient SourceUnavailable.
func isRetryableSourceError(err error) bool {
	return exceptions.KindOf(err) == exceptions.KindSourceUnavailable && exceptions.IsTransient(err)
}

func (c *sourceEHRClient) FetchDocument(ctx context.Context, tenantID, sourceDocumentID string) (*models.SourceDocument, error) {
	requestID, _ := ctx.Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
	c.Log.Info("sourceEHRClient.FetchDocument called",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(constvars.LoggingTenantIDKey, tenantID),
		zap.String(constvars.LoggingSourceDocumentIDKey, sourceDocumentID),
	)

	session, err := c.session(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	document, err := retry.Do(ctx, c.Retry, func(ctx context.Context, attempt int) (*models.SourceDocument, error) {
		return withAuthRefresh(ctx, session, func(ctx context.Context) (*models.SourceDocument, error) {
			return c.fetchDocumentOnce(ctx, session, sourceDocumentID)
		})
	})
	if err != nil {
		c.Log.Error("sourceEHRClient.FetchDocument error fetching document",
			zap.String(constvars.LoggingRequestIDKey, requestID),
			zap.String(constvars.LoggingSourceDocumentIDKey, sourceDocumentID),
			zap.String(constvars.LoggingFailureKindKey, string(exceptions.KindOf(err))),
			zap.Error(err),
		)
		return nil, err
	}

	c.Log.Info("sourceEHRClient.FetchDocument succeeded",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(constvars.LoggingSourceDocumentIDKey, sourceDocumentID),
		zap.String(constvars.LoggingContentTypeKey, document.ContentType),
		zap.Int64(constvars.LoggingContentSizeKey, document.Size),
	)
	return document, nil
}

func (c *sourceEHRClient) FetchPatient(ctx context.Context, tenantID, sourcePatientID string) (*fhir_dto.Patient, error) {
	requestID, _ := ctx.Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
	c.Log.Info("sourceEHRClient.FetchPatient called",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(constvars.LoggingTenantIDKey, tenantID),
		zap.String(constvars.LoggingSourcePatientIDKey, sourcePatientID),
	)

	session, err := c.session(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	patient, err := retry.Do(ctx, c.Retry, func(ctx context.Context, attempt int) (*fhir_dto.Patient, error) {
		return withAuthRefresh(ctx, session, func(ctx context.Context) (*fhir_dto.Patient, error) {
			patient := new(fhir_dto.Patient)
			err := c.call(ctx, session, "fetch patient", func(ctx context.Context) error {
				return session.fhir.Read(ctx, constvars.ResourcePatient, sourcePatientID, patient)
			})
			if err != nil {
				return nil, err
			}
			if err := patient.Validate(); err != nil {
				return nil, exceptions.ErrMalformedContent("fetch patient", err)
			}
			return patient, nil
		})
	})
	if err != nil {
		c.Log.Error("sourceEHRClient.FetchPatient error fetching patient",
			zap.String(constvars.LoggingRequestIDKey, requestID),
			zap.String(constvars.LoggingSourcePatientIDKey, sourcePatientID),
			zap.Error(err),
		)
		return nil, err
	}

	c.Log.Info("sourceEHRClient.FetchPatient succeeded",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(constvars.LoggingSourcePatientIDKey, sourcePatientID),
	)
	return patient, nil
}

func (c *sourceEHRClient) fetchDocumentOnce(ctx context.Context, session *sourceSession, sourceDocumentID string) (*models.SourceDocument, error) {
	documentReference := new(fhir_dto.DocumentReference)
	err := c.call(ctx, session, "fetch document reference", func(ctx context.Context) error {
		return session.fhir.Read(ctx, constvars.ResourceDocumentReference, sourceDocumentID, documentReference)
	})
	if err != nil {
		return nil, err
	}
	if err := documentReference.Validate(); err != nil {
		return nil, exceptions.ErrMalformedContent("validate document reference", err)
	}

	attachment := documentReference.PrimaryAttachment()
	contentType := attachment.ContentType
	var content []byte

	if attachment.Data != "" {
		content, err = base64.StdEncoding.DecodeString(attachment.Data)
		if err != nil {
			return nil, exceptions.ErrMalformedContent("decode attachment", err)
		}
	} else {
		binaryID := documentReference.BinaryID()
		if binaryID == "" {
			return nil, exceptions.ErrMalformedContent("resolve attachment", fmt.Errorf("attachment url %q does not reference a Binary", attachment.Url))
		}
		binary := new(fhir_dto.Binary)
		err := c.call(ctx, session, "fetch binary", func(ctx context.Context) error {
			return session.fhir.Read(ctx, constvars.ResourceBinary, binaryID, binary)
		})
		if err != nil {
			return nil, err
		}
		if err := binary.Validate(); err != nil {
			return nil, exceptions.ErrMalformedContent("validate binary", err)
		}
		content, err = binary.Content()
		if err != nil {
			return nil, exceptions.ErrMalformedContent("decode binary", err)
		}
		if binary.ContentType != "" {
			contentType = binary.ContentType
		}
	}

	if len(content) == 0 {
		return nil, exceptions.ErrMalformedContent("read content", fmt.Errorf("document %s has empty content", sourceDocumentID))
	}

	return &models.SourceDocument{
		Metadata:    documentReference,
		Content:     content,
		ContentType: utils.NormalizeContentType(contentType),
		Size:        int64(len(content)),
	}, nil
}

// call runs one source request behind the tenant's limiter and breaker and
// classifies the outcome.
func (c *sourceEHRClient) call(ctx context.Context, session *sourceSession, step string, do func(ctx context.Context) error) error {
	if err := session.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return exceptions.ErrCancelled(step, ctx.Err())
		}
		return exceptions.ErrSourceUnavailable(step, err)
	}

	_, err := session.breaker.Execute(func() (interface{}, error) {
		return nil, do(ctx)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return exceptions.ErrSourceUnavailable(step, err)
	}
	return classifySourceError(step, err)
}

func classifySourceError(step string, err error) error {
	if errors.Is(err, context.Canceled) {
		return exceptions.ErrCancelled(step, err)
	}

	var authErr *fhirclient.AuthError
	if errors.As(err, &authErr) {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil && retrieveErr.Response.StatusCode < http.StatusInternalServerError {
			return exceptions.NewExportError(exceptions.KindSourceUnavailable, step, false, err)
		}
		return exceptions.ErrSourceUnavailable(step, err)
	}

	var decodeErr *fhirclient.DecodeError
	if errors.As(err, &decodeErr) {
		return exceptions.ErrMalformedContent(step, err)
	}

	switch status := fhirclient.StatusCode(err); {
	case status == http.StatusNotFound, status == http.StatusGone:
		return exceptions.ErrSourceNotFound(step, err)
	case status == http.StatusUnauthorized:
		// Only a stale token is refreshable; 403 falls through as a permanent auth failure.
		return exceptions.ErrSourceAuthExpired(step, err)
	case fhirclient.IsTransient(err):
		return exceptions.ErrSourceUnavailable(step, err)
	default:
		return exceptions.NewExportError(exceptions.KindSourceUnavailable, step, false, err)
	}
}

// withAuthRefresh retries op exactly once with a new token when the source
// rejects the current one.
func withAuthRefresh[T any](ctx context.Context, session *sourceSession, op func(ctx context.Context) (T, error)) (T, error) {
	value, err := op(ctx)
	if exceptions.KindOf(err) != exceptions.KindSourceAuthExpired || !session.canRefresh() {
		return value, err
	}
	session.refreshToken()
	return op(ctx)
}

func (c *sourceEHRClient) session(ctx context.Context, tenantID string) (*sourceSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if session, ok := c.sessions[tenantID]; ok {
		return session, nil
	}

	connection, err := c.Tenants.SourceConnection(ctx, tenantID)
	if err != nil {
		return nil, exceptions.NewExportError(exceptions.KindSourceUnavailable, "resolve tenant", false, err)
	}
	session, err := newSourceSession(connection, c.CallTimeout, c.Breaker, c.Log)
	if err != nil {
		return nil, exceptions.NewExportError(exceptions.KindSourceUnavailable, "configure source session", false, err)
	}
	c.sessions[tenantID] = session
	return session, nil
}
