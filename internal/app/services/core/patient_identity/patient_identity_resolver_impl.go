package patient_identity

import (
	"context"
	"discharge-export-service/internal/app/contracts"
	"discharge-export-service/internal/app/models"
	"discharge-export-service/internal/pkg/constvars"
	"discharge-export-service/internal/pkg/exceptions"
	"discharge-export-service/internal/pkg/fhir_dto"
	"discharge-export-service/internal/pkg/utils"
	"errors"
	"time"

	"go.uber.org/zap"
)

type patientIdentityResolver struct {
	MappingRepository contracts.PatientMappingRepository
	MappingCache      contracts.PatientMappingCache
	SourceEHRClient   contracts.SourceEHRClient
	PatientFhirClient contracts.PatientFhirClient
	IdentifierSystem  string
	CallTimeout       time.Duration
	Log               *zap.Logger
}

// NewPatientIdentityResolver builds the resolver. mappingCache may be nil.
// callTimeout bounds each mapping store and cache call; zero leaves them
// bounded only by the caller's context.
func NewPatientIdentityResolver(
	mappingRepository contracts.PatientMappingRepository,
	mappingCache contracts.PatientMappingCache,
	sourceEHRClient contracts.SourceEHRClient,
	patientFhirClient contracts.PatientFhirClient,
	identifierSystem string,
	callTimeout time.Duration,
	logger *zap.Logger,
) contracts.PatientIdentityResolver {
	return &patientIdentityResolver{
		MappingRepository: mappingRepository,
		MappingCache:      mappingCache,
		SourceEHRClient:   sourceEHRClient,
		PatientFhirClient: patientFhirClient,
		IdentifierSystem:  identifierSystem,
		CallTimeout:       callTimeout,
		Log:               logger,
	}
}

// ResolvePatient returns the destination Patient for a source patient,
// creating both the Patient and the mapping on first encounter. When a
// concurrent resolver wins the mapping insert, this one discards the Patient
// it created and adopts the winner.
func (r *patientIdentityResolver) ResolvePatient(ctx context.Context, tenantID, sourcePatientID string) (*models.ResolvedPatient, error) {
	requestID, _ := ctx.Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
	r.Log.Info("patientIdentityResolver.ResolvePatient called",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(constvars.LoggingTenantIDKey, tenantID),
		zap.String(constvars.LoggingSourcePatientIDKey, sourcePatientID),
	)

	if tenantID == "" || sourcePatientID == "" {
		return nil, exceptions.ErrPatientResolutionFailed("validate input", errors.New("tenant id and source patient id are required"))
	}

	mapping := r.cachedMapping(ctx, requestID, tenantID, sourcePatientID)
	if mapping == nil {
		var err error
		mapping, err = r.findMapping(ctx, tenantID, sourcePatientID)
		if err != nil {
			r.Log.Error("patientIdentityResolver.ResolvePatient error finding patient mapping",
				zap.String(constvars.LoggingRequestIDKey, requestID),
				zap.Error(err),
			)
			return nil, resolutionError(ctx, "find patient mapping", err)
		}
		if mapping != nil {
			r.cacheMapping(ctx, requestID, mapping)
		}
	}
	if mapping != nil {
		r.Log.Info("patientIdentityResolver.ResolvePatient found existing mapping",
			zap.String(constvars.LoggingRequestIDKey, requestID),
			zap.String(constvars.LoggingDestinationPatientIDKey, mapping.DestinationPatientID),
		)
		return &models.ResolvedPatient{DestinationPatientID: mapping.DestinationPatientID}, nil
	}

	sourcePatient, err := r.SourceEHRClient.FetchPatient(ctx, tenantID, sourcePatientID)
	if err != nil {
		r.Log.Error("patientIdentityResolver.ResolvePatient error fetching source patient",
			zap.String(constvars.LoggingRequestIDKey, requestID),
			zap.Error(err),
		)
		return nil, resolutionError(ctx, "fetch source patient", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, exceptions.ErrCancelled("create destination patient", err)
	}

	destinationPatient, created, err := r.PatientFhirClient.CreatePatient(ctx, r.buildDestinationPatient(tenantID, sourcePatientID, sourcePatient))
	if err != nil {
		r.Log.Error("patientIdentityResolver.ResolvePatient error creating destination patient",
			zap.String(constvars.LoggingRequestIDKey, requestID),
			zap.Error(err),
		)
		return nil, resolutionError(ctx, "create destination patient", err)
	}

	newMapping := &models.PatientMapping{
		TenantID:             tenantID,
		SourcePatientID:      sourcePatientID,
		DestinationPatientID: destinationPatient.ID,
		CreatedAt:            time.Now().UTC(),
	}
	err = r.insertMapping(ctx, newMapping)
	if err == nil {
		r.cacheMapping(ctx, requestID, newMapping)
		r.Log.Info("patientIdentityResolver.ResolvePatient succeeded",
			zap.String(constvars.LoggingRequestIDKey, requestID),
			zap.String(constvars.LoggingDestinationPatientIDKey, destinationPatient.ID),
			zap.String(constvars.LoggingPatientMappingKey, constvars.PatientMappingCreated),
		)
		return &models.ResolvedPatient{DestinationPatientID: destinationPatient.ID, Created: true}, nil
	}
	if !errors.Is(err, exceptions.ErrPatientMappingConflict) {
		r.Log.Error("patientIdentityResolver.ResolvePatient error inserting patient mapping",
			zap.String(constvars.LoggingRequestIDKey, requestID),
			zap.Error(err),
		)
		return nil, resolutionError(ctx, "persist patient mapping", err)
	}

	winner, err := r.findMapping(ctx, tenantID, sourcePatientID)
	if err != nil {
		return nil, resolutionError(ctx, "re-read patient mapping", err)
	}
	if winner == nil {
		return nil, exceptions.ErrPatientResolutionFailed("re-read patient mapping", errors.New("mapping conflict reported but no mapping found"))
	}

	r.Log.Warn("patientIdentityResolver.ResolvePatient lost mapping race, adopting winner",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(constvars.LoggingDestinationPatientIDKey, winner.DestinationPatientID),
		zap.String(constvars.LoggingResourceIDKey, destinationPatient.ID),
	)
	if created && winner.DestinationPatientID != destinationPatient.ID {
		r.discardPatient(ctx, requestID, destinationPatient.ID)
	}
	r.cacheMapping(ctx, requestID, winner)

	return &models.ResolvedPatient{DestinationPatientID: winner.DestinationPatientID}, nil
}

// buildDestinationPatient copies the demographics and stamps the tenant scoped
// source patient identifier first, which the destination client uses as the
// conditional create key.
func (r *patientIdentityResolver) buildDestinationPatient(tenantID, sourcePatientID string, source *fhir_dto.Patient) *fhir_dto.Patient {
	identifiers := []fhir_dto.Identifier{{
		Use:    constvars.FhirIdentifierUseSecondary,
		System: utils.SourcePatientIdentifierSystem(r.IdentifierSystem, tenantID),
		Value:  sourcePatientID,
	}}
	for _, identifier := range source.Identifier {
		if identifier.System == "" || identifier.Value == "" {
			continue
		}
		identifiers = append(identifiers, fhir_dto.Identifier{
			System: identifier.System,
			Value:  identifier.Value,
			Type:   identifier.Type,
		})
	}

	return &fhir_dto.Patient{
		ResourceType: constvars.ResourcePatient,
		Identifier:   identifiers,
		Active:       true,
		Name:         source.Name,
		Telecom:      source.Telecom,
		Gender:       source.Gender,
		BirthDate:    source.BirthDate,
		Address:      source.Address,
	}
}

func (r *patientIdentityResolver) cachedMapping(ctx context.Context, requestID, tenantID, sourcePatientID string) *models.PatientMapping {
	if r.MappingCache == nil {
		return nil
	}
	callCtx, cancel := r.callContext(ctx)
	defer cancel()
	mapping, err := r.MappingCache.GetMapping(callCtx, tenantID, sourcePatientID)
	if err != nil {
		r.Log.Warn("patientIdentityResolver.cachedMapping error reading mapping cache",
			zap.String(constvars.LoggingRequestIDKey, requestID),
			zap.Error(err),
		)
		return nil
	}
	return mapping
}

func (r *patientIdentityResolver) cacheMapping(ctx context.Context, requestID string, mapping *models.PatientMapping) {
	if r.MappingCache == nil {
		return
	}
	callCtx, cancel := r.callContext(ctx)
	defer cancel()
	if err := r.MappingCache.SetMapping(callCtx, mapping); err != nil {
		r.Log.Warn("patientIdentityResolver.cacheMapping error writing mapping cache",
			zap.String(constvars.LoggingRequestIDKey, requestID),
			zap.Error(err),
		)
	}
}

func (r *patientIdentityResolver) findMapping(ctx context.Context, tenantID, sourcePatientID string) (*models.PatientMapping, error) {
	callCtx, cancel := r.callContext(ctx)
	defer cancel()
	return r.MappingRepository.FindMapping(callCtx, tenantID, sourcePatientID)
}

func (r *patientIdentityResolver) insertMapping(ctx context.Context, mapping *models.PatientMapping) error {
	callCtx, cancel := r.callContext(ctx)
	defer cancel()
	return r.MappingRepository.InsertMapping(callCtx, mapping)
}

func (r *patientIdentityResolver) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.CallTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.CallTimeout)
}

func (r *patientIdentityResolver) discardPatient(ctx context.Context, requestID, patientID string) {
	if err := r.PatientFhirClient.DeletePatient(context.WithoutCancel(ctx), patientID); err != nil {
		r.Log.Error("patientIdentityResolver.discardPatient error deleting losing patient",
			zap.String(constvars.LoggingRequestIDKey, requestID),
			zap.String(constvars.LoggingResourceIDKey, patientID),
			zap.Error(err),
		)
	}
}

func resolutionError(ctx context.Context, step string, err error) error {
	if exceptions.IsKind(err, exceptions.KindCancelled) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return exceptions.ErrCancelled(step, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return exceptions.NewExportError(exceptions.KindPatientResolutionFailed, step, true, err)
	}
	return exceptions.ErrPatientResolutionFailed(step, err)
}
