package fhir_source

import (
	"context"
	"discharge-export-service/internal/app/models"
	"discharge-export-service/internal/app/services/shared/fhirclient"
	"discharge-export-service/internal/app/services/shared/jwtmanager"
	"discharge-export-service/internal/pkg/constvars"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// sourceSession holds everything scoped to one tenant's EHR: the REST client,
// the cached token, the client-side limiter and the circuit breaker.
type sourceSession struct {
	connection *models.SourceConnection
	fhir       *fhirclient.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker

	mu     sync.Mutex
	base   oauth2.TokenSource
	tokens oauth2.TokenSource
}

func newSourceSession(connection *models.SourceConnection, callTimeout time.Duration, breakerSettings gobreaker.Settings, logger *zap.Logger) (*sourceSession, error) {
	limit := rate.Inf
	if connection.RatePerSecond > 0 {
		limit = rate.Limit(connection.RatePerSecond)
	}
	burst := connection.Burst
	if burst <= 0 {
		burst = 1
	}

	breakerSettings.Name = fmt.Sprintf("source-ehr:%s", connection.TenantID)
	session := &sourceSession{
		connection: connection,
		fhir:       fhirclient.NewClient(connection.BaseUrl, callTimeout, logger),
		limiter:    rate.NewLimiter(limit, burst),
		breaker:    gobreaker.NewCircuitBreaker(breakerSettings),
	}

	if connection.TokenUrl != "" {
		var assertions *jwtmanager.JWTManager
		if connection.PrivateKey != "" {
			var err error
			assertions, err = jwtmanager.NewJWTManager(connection.PrivateKey, connection.KeyID, logger)
			if err != nil {
				return nil, err
			}
		}
		session.base = &backendTokenSource{
			connection: connection,
			assertions: assertions,
			timeout:    callTimeout,
			log:        logger,
		}
		session.tokens = oauth2.ReuseTokenSource(nil, session.base)
		session.fhir.Authorization = session.authorization
	}
	return session, nil
}

func (s *sourceSession) authorization(ctx context.Context) (string, error) {
	s.mu.Lock()
	tokens := s.tokens
	s.mu.Unlock()

	token, err := tokens.Token()
	if err != nil {
		return "", err
	}
	return constvars.BearerTokenPrefix + token.AccessToken, nil
}

// canRefresh reports whether a rejected token can be replaced.
func (s *sourceSession) canRefresh() bool {
	return s.base != nil
}

// refreshToken drops the cached token so the next call fetches a new one.
func (s *sourceSession) refreshToken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base != nil {
		s.tokens = oauth2.ReuseTokenSource(nil, s.base)
	}
}
