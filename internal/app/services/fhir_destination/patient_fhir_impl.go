package fhir_destination

import (
	"context"
	"discharge-export-service/internal/app/contracts"
	"discharge-export-service/internal/app/services/shared/fhirclient"
	"discharge-export-service/internal/app/services/shared/retry"
	"discharge-export-service/internal/pkg/constvars"
	"discharge-export-service/internal/pkg/fhir_dto"
	"fmt"

	"go.uber.org/zap"
)

type patientFhirClient struct {
	Client *fhirclient.Client
	Retry  retry.Policy
	Log    *zap.Logger
}

func NewPatientFhirClient(client *fhirclient.Client, retryPolicy retry.Policy, logger *zap.Logger) contracts.PatientFhirClient {
	return &patientFhirClient{
		Client: client,
		Retry:  retryPolicy,
		Log:    logger,
	}
}

// CreatePatient creates conditionally on the request's first identifier, so a
// retried POST or an earlier crashed resolution never yields a second Patient.
// created is false when the server matched an existing Patient.
func (c *patientFhirClient) CreatePatient(ctx context.Context, request *fhir_dto.Patient) (*fhir_dto.Patient, bool, error) {
	requestID, _ := ctx.Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
	c.Log.Info("patientFhirClient.CreatePatient called",
		zap.String(constvars.LoggingRequestIDKey, requestID),
	)

	if len(request.Identifier) == 0 {
		err := fmt.Errorf("patient to create carries no identifier")
		c.Log.Error("patientFhirClient.CreatePatient error validating resource",
			zap.String(constvars.LoggingRequestIDKey, requestID),
			zap.Error(err),
		)
		return nil, false, writeError("create patient", err)
	}
	ifNoneExist := fhirclient.IdentifierCondition(request.Identifier[0].System, request.Identifier[0].Value)

	created := false
	patient, err := retry.Do(ctx, c.Retry, func(ctx context.Context, attempt int) (*fhir_dto.Patient, error) {
		patient := new(fhir_dto.Patient)
		var err error
		created, err = c.Client.Create(ctx, constvars.ResourcePatient, request, ifNoneExist, patient)
		if err != nil {
			c.Log.Error("patientFhirClient.CreatePatient error creating resource",
				zap.String(constvars.LoggingRequestIDKey, requestID),
				zap.Int(constvars.LoggingAttemptKey, attempt),
				zap.Error(err),
			)
			return nil, writeError("create patient", err)
		}
		return patient, nil
	})
	if err != nil {
		return nil, false, err
	}

	c.Log.Info("patientFhirClient.CreatePatient succeeded",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(constvars.LoggingDestinationPatientIDKey, patient.ID),
		zap.Bool("created", created),
	)
	return patient, created, nil
}

func (c *patientFhirClient) DeletePatient(ctx context.Context, patientID string) error {
	requestID, _ := ctx.Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
	c.Log.Info("patientFhirClient.DeletePatient called",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(constvars.LoggingDestinationPatientIDKey, patientID),
	)

	err := retry.Run(ctx, c.Retry, func(ctx context.Context, attempt int) error {
		if err := c.Client.Delete(ctx, constvars.ResourcePatient, patientID); err != nil {
			c.Log.Error("patientFhirClient.DeletePatient error deleting resource",
				zap.String(constvars.LoggingRequestIDKey, requestID),
				zap.Int(constvars.LoggingAttemptKey, attempt),
				zap.Error(err),
			)
			return writeError("delete patient", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.Log.Info("patientFhirClient.DeletePatient succeeded",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(constvars.LoggingDestinationPatientIDKey, patientID),
	)
	return nil
}
