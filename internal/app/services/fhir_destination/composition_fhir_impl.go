package fhir_destination

import (
	"context"
	"discharge-export-service/internal/app/contracts"
	"discharge-export-service/internal/app/services/shared/fhirclient"
	"discharge-export-service/internal/app/services/shared/retry"
	"discharge-export-service/internal/pkg/constvars"
	"discharge-export-service/internal/pkg/fhir_dto"
	"net/url"

	"go.uber.org/zap"
)

type compositionFhirClient struct {
	Client *fhirclient.Client
	Retry  retry.Policy
	Log    *zap.Logger
}

func NewCompositionFhirClient(client *fhirclient.Client, retryPolicy retry.Policy, logger *zap.Logger) contracts.CompositionFhirClient {
	return &compositionFhirClient{
		Client: client,
		Retry:  retryPolicy,
		Log:    logger,
	}
}

func (c *compositionFhirClient) CreateComposition(ctx context.Context, request *fhir_dto.Composition, ifNoneExist string) (*fhir_dto.Composition, bool, error) {
	requestID, _ := ctx.Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
	c.Log.Info("compositionFhirClient.CreateComposition called",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String("if_none_exist", ifNoneExist),
	)

	if err := request.Validate(); err != nil {
		return nil, false, writeError("create composition", err)
	}

	created := false
	composition, err := retry.Do(ctx, c.Retry, func(ctx context.Context, attempt int) (*fhir_dto.Composition, error) {
		composition := new(fhir_dto.Composition)
		var err error
		created, err = c.Client.Create(ctx, constvars.ResourceComposition, request, ifNoneExist, composition)
		if err != nil {
			c.Log.Error("compositionFhirClient.CreateComposition error creating resource",
				zap.String(constvars.LoggingRequestIDKey, requestID),
				zap.Int(constvars.LoggingAttemptKey, attempt),
				zap.Error(err),
			)
			return nil, writeError("create composition", err)
		}
		return composition, nil
	})
	if err != nil {
		return nil, false, err
	}

	c.Log.Info("compositionFhirClient.CreateComposition succeeded",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(constvars.LoggingCompositionIDKey, composition.ID),
		zap.Bool("created", created),
	)
	return composition, created, nil
}

func (c *compositionFhirClient) FindCompositionsByIdentifier(ctx context.Context, identifierToken string) ([]fhir_dto.Composition, error) {
	requestID, _ := ctx.Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
	c.Log.Info("compositionFhirClient.FindCompositionsByIdentifier called",
		zap.String(constvars.LoggingRequestIDKey, requestID),
	)

	query := url.Values{}
	query.Set(constvars.FhirSearchParamIdentifier, identifierToken)

	compositions, err := retry.Do(ctx, c.Retry, func(ctx context.Context, attempt int) ([]fhir_dto.Composition, error) {
		bundle, err := c.Client.Search(ctx, constvars.ResourceComposition, query)
		if err != nil {
			c.Log.Error("compositionFhirClient.FindCompositionsByIdentifier error searching resources",
				zap.String(constvars.LoggingRequestIDKey, requestID),
				zap.Int(constvars.LoggingAttemptKey, attempt),
				zap.Error(err),
			)
			return nil, readError("search compositions", err)
		}
		compositions, err := fhir_dto.MatchedResources[fhir_dto.Composition](bundle)
		if err != nil {
			return nil, readError("search compositions", err)
		}
		return compositions, nil
	})
	if err != nil {
		return nil, err
	}

	c.Log.Info("compositionFhirClient.FindCompositionsByIdentifier succeeded",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.Int(constvars.LoggingCountKey, len(compositions)),
	)
	return compositions, nil
}

func (c *compositionFhirClient) DeleteComposition(ctx context.Context, compositionID string) error {
	requestID, _ := ctx.Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
	c.Log.Info("compositionFhirClient.DeleteComposition called",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(constvars.LoggingCompositionIDKey, compositionID),
	)

	return retry.Run(ctx, c.Retry, func(ctx context.Context, attempt int) error {
		if err := c.Client.Delete(ctx, constvars.ResourceComposition, compositionID); err != nil {
			c.Log.Error("compositionFhirClient.DeleteComposition error deleting resource",
				zap.String(constvars.LoggingRequestIDKey, requestID),
				zap.Int(constvars.LoggingAttemptKey, attempt),
				zap.Error(err),
			)
			return writeError("delete composition", err)
		}
		return nil
	})
}
