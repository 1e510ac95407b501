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

type documentReferenceFhirClient struct {
	Client *fhirclient.Client
	Retry  retry.Policy
	Log    *zap.Logger
}

func NewDocumentReferenceFhirClient(client *fhirclient.Client, retryPolicy retry.Policy, logger *zap.Logger) contracts.DocumentReferenceFhirClient {
	return &documentReferenceFhirClient{
		Client: client,
		Retry:  retryPolicy,
		Log:    logger,
	}
}

func (c *documentReferenceFhirClient) CreateDocumentReference(ctx context.Context, request *fhir_dto.DocumentReference, ifNoneExist string) (*fhir_dto.DocumentReference, bool, error) {
	requestID, _ := ctx.Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
	c.Log.Info("documentReferenceFhirClient.CreateDocumentReference called",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String("if_none_exist", ifNoneExist),
	)

	if err := request.Validate(); err != nil {
		return nil, false, writeError("create document reference", err)
	}

	created := false
	documentReference, err := retry.Do(ctx, c.Retry, func(ctx context.Context, attempt int) (*fhir_dto.DocumentReference, error) {
		documentReference := new(fhir_dto.DocumentReference)
		var err error
		created, err = c.Client.Create(ctx, constvars.ResourceDocumentReference, request, ifNoneExist, documentReference)
		if err != nil {
			c.Log.Error("documentReferenceFhirClient.CreateDocumentReference error creating resource",
				zap.String(constvars.LoggingRequestIDKey, requestID),
				zap.Int(constvars.LoggingAttemptKey, attempt),
				zap.Error(err),
			)
			return nil, writeError("create document reference", err)
		}
		return documentReference, nil
	})
	if err != nil {
		return nil, false, err
	}

	c.Log.Info("documentReferenceFhirClient.CreateDocumentReference succeeded",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(constvars.LoggingDocumentReferenceIDKey, documentReference.ID),
		zap.Bool("created", created),
	)
	return documentReference, created, nil
}

// FindDocumentReferences searches by patient and identifier token. Either
// filter may be empty.
func (c *documentReferenceFhirClient) FindDocumentReferences(ctx context.Context, patientID, identifierToken string) ([]fhir_dto.DocumentReference, error) {
	requestID, _ := ctx.Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
	c.Log.Info("documentReferenceFhirClient.FindDocumentReferences called",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(constvars.LoggingDestinationPatientIDKey, patientID),
	)

	query := url.Values{}
	if patientID != "" {
		query.Set(constvars.FhirSearchParamPatient, patientID)
	}
	if identifierToken != "" {
		query.Set(constvars.FhirSearchParamIdentifier, identifierToken)
	}
	query.Set(constvars.FhirSearchParamCount, "50")

	documentReferences, err := retry.Do(ctx, c.Retry, func(ctx context.Context, attempt int) ([]fhir_dto.DocumentReference, error) {
		bundle, err := c.Client.Search(ctx, constvars.ResourceDocumentReference, query)
		if err != nil {
			c.Log.Error("documentReferenceFhirClient.FindDocumentReferences error searching resources",
				zap.String(constvars.LoggingRequestIDKey, requestID),
				zap.Int(constvars.LoggingAttemptKey, attempt),
				zap.Error(err),
			)
			return nil, readError("search document references", err)
		}
		documentReferences, err := fhir_dto.MatchedResources[fhir_dto.DocumentReference](bundle)
		if err != nil {
			c.Log.Error("documentReferenceFhirClient.FindDocumentReferences error decoding bundle entries",
				zap.String(constvars.LoggingRequestIDKey, requestID),
				zap.Error(err),
			)
			return nil, readError("search document references", err)
		}
		return documentReferences, nil
	})
	if err != nil {
		return nil, err
	}

	c.Log.Info("documentReferenceFhirClient.FindDocumentReferences succeeded",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.Int(constvars.LoggingCountKey, len(documentReferences)),
	)
	return documentReferences, nil
}

func (c *documentReferenceFhirClient) DeleteDocumentReference(ctx context.Context, documentReferenceID string) error {
	requestID, _ := ctx.Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
	c.Log.Info("documentReferenceFhirClient.DeleteDocumentReference called",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(constvars.LoggingDocumentReferenceIDKey, documentReferenceID),
	)

	return retry.Run(ctx, c.Retry, func(ctx context.Context, attempt int) error {
		if err := c.Client.Delete(ctx, constvars.ResourceDocumentReference, documentReferenceID); err != nil {
			c.Log.Error("documentReferenceFhirClient.DeleteDocumentReference error deleting resource",
				zap.String(constvars.LoggingRequestIDKey, requestID),
				zap.Int(constvars.LoggingAttemptKey, attempt),
				zap.Error(err),
			)
			return writeError("delete document reference", err)
		}
		return nil
	})
}
