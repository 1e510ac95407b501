package tenants

import (
	"context"
	"discharge-export-service/internal/app/config"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const tenantsYAML = `
strict: %s
tenants:
  hospital-a:
    source_fhir:
      base_url: https://ehr-a.example/fhir
      token_url: https://ehr-a.example/token
      client_id: client-a
      client_secret: secret-a
      scopes: ["system/DocumentReference.read"]
      rate_per_second: 2
  hospital-b:
    source_fhir:
      base_url: https://ehr-b.example/fhir
`

func writeTenantsFile(t *testing.T, strict string) string {
	path := filepath.Join(t.TempDir(), "tenants.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(tenantsYAML, strict)), 0o600))
	return path
}

func baseConfig(path string) *config.InternalConfig {
	return &config.InternalConfig{
		Source: config.AppSourceFHIR{
			BaseUrl:       "https://default.example/fhir",
			TokenUrl:      "https://default.example/token",
			ClientID:      "default-client",
			ClientSecret:  "default-secret",
			Scopes:        []string{"system/*.read"},
			RatePerSecond: 10,
			Burst:         5,
		},
		Export: config.AppExport{TenantsConfigFile: path},
	}
}

func TestTenantDirectory_SourceConnection(t *testing.T) {
	ctx := context.Background()

	t.Run("without a file every tenant uses the defaults", func(t *testing.T) {
		dir, err := NewTenantDirectory(baseConfig(""), zap.NewNop())
		require.NoError(t, err)

		conn, err := dir.SourceConnection(ctx, "anyone")
		require.NoError(t, err)
		assert.Equal(t, "anyone", conn.TenantID)
		assert.Equal(t, "https://default.example/fhir", conn.BaseUrl)
		assert.Equal(t, "default-client", conn.ClientID)
	})

	t.Run("overrides replace credentials as a unit", func(t *testing.T) {
		dir, err := NewTenantDirectory(baseConfig(writeTenantsFile(t, "false")), zap.NewNop())
		require.NoError(t, err)

		conn, err := dir.SourceConnection(ctx, "Hospital-A")
		require.NoError(t, err)
		assert.Equal(t, "https://ehr-a.example/fhir", conn.BaseUrl)
		assert.Equal(t, "client-a", conn.ClientID)
		assert.Equal(t, "secret-a", conn.ClientSecret)
		assert.Equal(t, []string{"system/DocumentReference.read"}, conn.Scopes)
		assert.Equal(t, float64(2), conn.RatePerSecond)
		assert.Equal(t, 5, conn.Burst)
	})

	t.Run("base url only override keeps default credentials", func(t *testing.T) {
		dir, err := NewTenantDirectory(baseConfig(writeTenantsFile(t, "false")), zap.NewNop())
		require.NoError(t, err)

		conn, err := dir.SourceConnection(ctx, "hospital-b")
		require.NoError(t, err)
		assert.Equal(t, "https://ehr-b.example/fhir", conn.BaseUrl)
		assert.Equal(t, "default-client", conn.ClientID)
	})

	t.Run("strict mode rejects unknown tenants", func(t *testing.T) {
		dir, err := NewTenantDirectory(baseConfig(writeTenantsFile(t, "true")), zap.NewNop())
		require.NoError(t, err)

		_, err = dir.SourceConnection(ctx, "hospital-z")
		assert.ErrorIs(t, err, ErrUnknownTenant)
	})

	t.Run("missing file fails construction", func(t *testing.T) {
		_, err := NewTenantDirectory(baseConfig(filepath.Join(t.TempDir(), "nope.yaml")), zap.NewNop())
		assert.Error(t, err)
	})
}
