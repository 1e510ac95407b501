package fhir_destination

import (
	"context"
	"discharge-export-service/internal/app/contracts"
	"discharge-export-service/internal/app/services/shared/fhirclient"
	"discharge-export-service/internal/app/services/shared/retry"
	"discharge-export-service/internal/pkg/constvars"
	"discharge-export-service/internal/pkg/fhir_dto"

	"go.uber.org/zap"
)

type binaryFhirClient struct {
	Client *fhirclient.Client
	Retry  retry.Policy
	Log    *zap.Logger
}

func NewBinaryFhirClient(client *fhirclient.Client, retryPolicy retry.Policy, logger *zap.Logger) contracts.BinaryFhirClient {
	return &binaryFhirClient{
		Client: client,
		Retry:  retryPolicy,
		Log:    logger,
	}
}

// CreateBinary is retried on transient failures. A lost response may leave an
// unreferenced Binary behind, which is tolerated.
func (c *binaryFhirClient) CreateBinary(ctx context.Context, request *fhir_dto.Binary) (*fhir_dto.Binary, error) {
	requestID, _ := ctx.Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
	c.Log.Info("binaryFhirClient.CreateBinary called",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(constvars.LoggingContentTypeKey, request.ContentType),
	)

	if err := request.Validate(); err != nil {
		return nil, writeError("create binary", err)
	}

	binary, err := retry.Do(ctx, c.Retry, func(ctx context.Context, attempt int) (*fhir_dto.Binary, error) {
		binary := new(fhir_dto.Binary)
		if _, err := c.Client.Create(ctx, constvars.ResourceBinary, request, "", binary); err != nil {
			c.Log.Error("binaryFhirClient.CreateBinary error creating resource",
				zap.String(constvars.LoggingRequestIDKey, requestID),
				zap.Int(constvars.LoggingAttemptKey, attempt),
				zap.Error(err),
			)
			return nil, writeError("create binary", err)
		}
		return binary, nil
	})
	if err != nil {
		return nil, err
	}

	c.Log.Info("binaryFhirClient.CreateBinary succeeded",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(constvars.LoggingBinaryIDKey, binary.ID),
	)
	return binary, nil
}

func (c *binaryFhirClient) DeleteBinary(ctx context.Context, binaryID string) error {
	requestID, _ := ctx.Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
	c.Log.Info("binaryFhirClient.DeleteBinary called",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(constvars.LoggingBinaryIDKey, binaryID),
	)

	return retry.Run(ctx, c.Retry, func(ctx context.Context, attempt int) error {
		if err := c.Client.Delete(ctx, constvars.ResourceBinary, binaryID); err != nil {
			c.Log.Error("binaryFhirClient.DeleteBinary error deleting resource",
				zap.String(constvars.LoggingRequestIDKey, requestID),
				zap.Int(constvars.LoggingAttemptKey, attempt),
				zap.Error(err),
			)
			return writeError("delete binary", err)
		}
		return nil
	})
}
