package patient_mappings

import (
	"context"
	"discharge-export-service/internal/app/contracts"
	"discharge-export-service/internal/app/models"
	"discharge-export-service/internal/pkg/constvars"
	"discharge-export-service/internal/pkg/exceptions"
	"fmt"

	"github.com/goccy/go-json"
)

type patientMappingRedisCache struct {
	redisRepo contracts.RedisRepository
}

// NewPatientMappingRedisCache caches mappings without expiry; a mapping never
// changes once written.
func NewPatientMappingRedisCache(redisRepo contracts.RedisRepository) contracts.PatientMappingCache {
	return &patientMappingRedisCache{redisRepo: redisRepo}
}

func patientMappingKey(tenantID, sourcePatientID string) string {
	return fmt.Sprintf(constvars.RedisPatientMappingKeyFormat, tenantID, sourcePatientID)
}

func (c *patientMappingRedisCache) GetMapping(ctx context.Context, tenantID, sourcePatientID string) (*models.PatientMapping, error) {
	raw, err := c.redisRepo.Get(ctx, patientMappingKey(tenantID, sourcePatientID))
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}

	var mapping models.PatientMapping
	if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
		return nil, exceptions.ErrCannotParseJSON(err)
	}
	if mapping.DestinationPatientID == "" {
		return nil, nil
	}
	return &mapping, nil
}

func (c *patientMappingRedisCache) SetMapping(ctx context.Context, mapping *models.PatientMapping) error {
	return c.redisRepo.Set(ctx, patientMappingKey(mapping.TenantID, mapping.SourcePatientID), mapping, 0)
}
