package tenants

import (
	"context"
	"discharge-export-service/internal/app/config"
	"discharge-export-service/internal/app/contracts"
	"discharge-export-service/internal/app/models"
	"discharge-export-service/internal/pkg/constvars"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ErrUnknownTenant is returned in strict mode for tenants missing from the file.
var ErrUnknownTenant = fmt.Errorf("unknown tenant")

type tenantEntry struct {
	SourceFHIR models.SourceConnection `mapstructure:"source_fhir"`
}

type tenantsFile struct {
	Strict  bool                   `mapstructure:"strict"`
	Tenants map[string]tenantEntry `mapstructure:"tenants"`
}

// directory resolves per-tenant source EHR connections. Tenants without an
// entry fall back to the SOURCE_FHIR_* defaults unless the file is strict.
// Tenant ids are matched case-insensitively.
type directory struct {
	defaults models.SourceConnection
	strict   bool
	tenants  map[string]models.SourceConnection
	log      *zap.Logger
}

func NewTenantDirectory(internalConfig *config.InternalConfig, logger *zap.Logger) (contracts.TenantDirectory, error) {
	source := internalConfig.Source
	d := &directory{
		defaults: models.SourceConnection{
			BaseUrl:       source.BaseUrl,
			TokenUrl:      source.TokenUrl,
			ClientID:      source.ClientID,
			ClientSecret:  source.ClientSecret,
			PrivateKey:    source.PrivateKey,
			KeyID:         source.KeyID,
			Scopes:        source.Scopes,
			RatePerSecond: source.RatePerSecond,
			Burst:         source.Burst,
		},
		tenants: map[string]models.SourceConnection{},
		log:     logger,
	}

	path := internalConfig.Export.TenantsConfigFile
	if path == "" {
		return d, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read tenants file %s: %w", path, err)
	}
	var file tenantsFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("decode tenants file %s: %w", path, err)
	}

	d.strict = file.Strict
	for tenantID, entry := range file.Tenants {
		d.tenants[strings.ToLower(tenantID)] = entry.SourceFHIR
	}
	logger.Info("tenant directory loaded",
		zap.String("file", path),
		zap.Int(constvars.LoggingCountKey, len(d.tenants)),
		zap.Bool("strict", d.strict),
	)
	return d, nil
}

func (d *directory) SourceConnection(ctx context.Context, tenantID string) (*models.SourceConnection, error) {
	requestID, _ := ctx.Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)

	connection := d.defaults
	override, ok := d.tenants[strings.ToLower(tenantID)]
	if !ok && d.strict {
		d.log.Warn("tenantDirectory.SourceConnection unknown tenant",
			zap.String(constvars.LoggingRequestIDKey, requestID),
			zap.String(constvars.LoggingTenantIDKey, tenantID),
		)
		return nil, fmt.Errorf("%w: %s", ErrUnknownTenant, tenantID)
	}
	if ok {
		connection = merge(connection, override)
	}
	connection.TenantID = tenantID

	if connection.BaseUrl == "" {
		return nil, fmt.Errorf("tenant %s has no source FHIR base url", tenantID)
	}
	return &connection, nil
}

// merge overlays the non-zero fields of override on base. Credentials are
// taken as a unit so a tenant never mixes its client id with the default secret.
func merge(base, override models.SourceConnection) models.SourceConnection {
	if override.BaseUrl != "" {
		base.BaseUrl = override.BaseUrl
	}
	if override.TokenUrl != "" || override.ClientID != "" {
		base.TokenUrl = override.TokenUrl
		base.ClientID = override.ClientID
		base.ClientSecret = override.ClientSecret
		base.PrivateKey = override.PrivateKey
		base.KeyID = override.KeyID
	}
	if len(override.Scopes) > 0 {
		base.Scopes = override.Scopes
	}
	if override.RatePerSecond > 0 {
		base.RatePerSecond = override.RatePerSecond
	}
	if override.Burst > 0 {
		base.Burst = override.Burst
	}
	return base
}
