package fhir_source

import (
	"context"
	"discharge-export-service/internal/app/models"
	"discharge-export-service/internal/app/services/shared/jwtmanager"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// backendTokenSource fetches client-credentials tokens. With a signing key it
// authenticates with a fresh SMART client assertion per token request,
// otherwise with the client secret.
type backendTokenSource struct {
	connection *models.SourceConnection
	assertions *jwtmanager.JWTManager
	timeout    time.Duration
	log        *zap.Logger
}

func (s *backendTokenSource) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	cfg := &clientcredentials.Config{
		ClientID:     s.connection.ClientID,
		ClientSecret: s.connection.ClientSecret,
		TokenURL:     s.connection.TokenUrl,
		Scopes:       s.connection.Scopes,
	}

	if s.assertions != nil {
		assertion, err := s.assertions.CreateClientAssertion(ctx, &jwtmanager.CreateClientAssertionInput{
			ClientID: s.connection.ClientID,
			TokenUrl: s.connection.TokenUrl,
		})
		if err != nil {
			return nil, err
		}
		cfg.ClientSecret = ""
		cfg.AuthStyle = oauth2.AuthStyleInParams
		cfg.EndpointParams = url.Values{
			"client_assertion_type": {jwtmanager.ClientAssertionType},
			"client_assertion":      {assertion.Token},
		}
	}

	token, err := cfg.Token(ctx)
	if err != nil {
		s.log.Error("backendTokenSource.Token error requesting access token",
			zap.String("tenant_id", s.connection.TenantID),
			zap.Error(err),
		)
		return nil, err
	}
	s.log.Debug("backendTokenSource.Token succeeded",
		zap.String("tenant_id", s.connection.TenantID),
		zap.Time("expiry", token.Expiry),
	)
	return token, nil
}
