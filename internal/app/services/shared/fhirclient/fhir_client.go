package fhirclient

import (
	"bytes"
	"context"
	"discharge-export-service/internal/pkg/constvars"
	"discharge-export-service/internal/pkg/fhir_dto"
	"discharge-export-service/internal/pkg/utils"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const defaultCallTimeout = 15 * time.Second

// AuthorizationFunc returns the Authorization header value for the next call.
// An empty value sends the request unauthenticated.
type AuthorizationFunc func(ctx context.Context) (string, error)

// Client is a thin FHIR R4 REST client. Every call is bounded by CallTimeout
// and non-2xx responses come back as *StatusError.
type Client struct {
	BaseUrl       string
	CallTimeout   time.Duration
	HTTPClient    *http.Client
	Authorization AuthorizationFunc
	Log           *zap.Logger
}

type Request struct {
	Method string
	// Path is relative to BaseUrl, e.g. "Patient" or "Binary/123".
	Path   string
	Query  url.Values
	Body   interface{}
	Header map[string]string
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func NewClient(baseUrl string, callTimeout time.Duration, logger *zap.Logger) *Client {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &Client{
		BaseUrl:     strings.TrimRight(baseUrl, "/"),
		CallTimeout: callTimeout,
		HTTPClient:  &http.Client{},
		Log:         logger,
	}
}

func (c *Client) Do(ctx context.Context, request *Request) (*Response, error) {
	requestID, _ := ctx.Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
	endpoint := c.endpoint(request)

	callCtx, cancel := context.WithTimeout(ctx, c.CallTimeout)
	defer cancel()

	var body io.Reader
	if request.Body != nil {
		requestJSON, err := json.Marshal(request.Body)
		if err != nil {
			c.Log.Error("fhirClient.Do error marshaling JSON",
				zap.String(constvars.LoggingRequestIDKey, requestID),
				zap.String(constvars.LoggingURLKey, endpoint),
				zap.Error(err),
			)
			return nil, err
		}
		body = bytes.NewReader(requestJSON)
	}

	req, err := http.NewRequestWithContext(callCtx, request.Method, endpoint, body)
	if err != nil {
		c.Log.Error("fhirClient.Do error creating HTTP request",
			zap.String(constvars.LoggingRequestIDKey, requestID),
			zap.String(constvars.LoggingURLKey, endpoint),
			zap.Error(err),
		)
		return nil, err
	}
	req.Header.Set(constvars.HeaderAccept, constvars.MIMEApplicationFHIRJSON)
	if request.Body != nil {
		req.Header.Set(constvars.HeaderContentType, constvars.MIMEApplicationFHIRJSON)
	}
	if requestID != "" {
		req.Header.Set(constvars.HeaderXRequestID, requestID)
	}
	for key, value := range request.Header {
		req.Header.Set(key, value)
	}
	if c.Authorization != nil {
		authorization, err := c.Authorization(callCtx)
		if err != nil {
			c.Log.Error("fhirClient.Do error acquiring authorization",
				zap.String(constvars.LoggingRequestIDKey, requestID),
				zap.Error(err),
			)
			return nil, &AuthError{Err: err}
		}
		if authorization != "" {
			req.Header.Set(constvars.HeaderAuthorization, authorization)
		}
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		err = c.classifyTransportError(ctx, callCtx, err)
		c.Log.Error("fhirClient.Do error sending HTTP request",
			zap.String(constvars.LoggingRequestIDKey, requestID),
			zap.String(constvars.LoggingMethodKey, request.Method),
			zap.String(constvars.LoggingURLKey, endpoint),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		err = c.classifyTransportError(ctx, callCtx, err)
		c.Log.Error("fhirClient.Do error reading response body",
			zap.String(constvars.LoggingRequestIDKey, requestID),
			zap.String(constvars.LoggingURLKey, endpoint),
			zap.Error(err),
		)
		return nil, err
	}

	c.Log.Debug("fhirClient.Do response received",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(constvars.LoggingMethodKey, request.Method),
		zap.String(constvars.LoggingURLKey, endpoint),
		zap.Int(constvars.LoggingStatusCodeKey, resp.StatusCode),
		zap.Duration(constvars.LoggingDurationKey, time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newStatusError(request.Method, endpoint, resp, responseBody)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       responseBody,
	}, nil
}

// Read fetches Type/id into out.
func (c *Client) Read(ctx context.Context, resourceType, id string, out interface{}) error {
	resp, err := c.Do(ctx, &Request{
		Method: constvars.MethodGet,
		Path:   fmt.Sprintf("%s/%s", resourceType, url.PathEscape(id)),
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return &DecodeError{ResourceType: resourceType, Err: err}
	}
	return nil
}

// Create POSTs resource. With a non-empty ifNoneExist the server is asked for a
// conditional create; created reports whether the server made a new resource
// (201) or matched an existing one (200).
func (c *Client) Create(ctx context.Context, resourceType string, resource interface{}, ifNoneExist string, out interface{}) (created bool, err error) {
	header := map[string]string{constvars.HeaderPrefer: constvars.PreferReturnRepresentation}
	if ifNoneExist != "" {
		header[constvars.HeaderIfNoneExist] = ifNoneExist
	}
	resp, err := c.Do(ctx, &Request{
		Method: constvars.MethodPost,
		Path:   resourceType,
		Body:   resource,
		Header: header,
	})
	if err != nil {
		return false, err
	}

	created = resp.StatusCode == constvars.StatusCreated
	if len(bytes.TrimSpace(resp.Body)) > 0 {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return created, &DecodeError{ResourceType: resourceType, Err: err}
		}
		return created, nil
	}

	// Servers that ignore Prefer answer with an empty body and a Location header.
	_, id := fhir_dto.SplitReference(resp.Header.Get(constvars.HeaderLocation))
	if id == "" {
		return created, &DecodeError{ResourceType: resourceType, Err: errors.New("response has neither body nor location")}
	}
	return created, c.Read(ctx, resourceType, id, out)
}

// Search runs a type-level search and returns the raw bundle.
func (c *Client) Search(ctx context.Context, resourceType string, query url.Values) (*fhir_dto.FHIRBundle, error) {
	resp, err := c.Do(ctx, &Request{
		Method: constvars.MethodGet,
		Path:   resourceType,
		Query:  query,
	})
	if err != nil {
		return nil, err
	}
	bundle := new(fhir_dto.FHIRBundle)
	if err := json.Unmarshal(resp.Body, bundle); err != nil {
		return nil, &DecodeError{ResourceType: constvars.ResourceBundle, Err: err}
	}
	return bundle, nil
}

// Delete removes Type/id. A resource that is already gone is not an error.
func (c *Client) Delete(ctx context.Context, resourceType, id string) error {
	_, err := c.Do(ctx, &Request{
		Method: constvars.MethodDelete,
		Path:   fmt.Sprintf("%s/%s", resourceType, url.PathEscape(id)),
	})
	var statusErr *StatusError
	if errors.As(err, &statusErr) && (statusErr.StatusCode == constvars.StatusNotFound || statusErr.StatusCode == constvars.StatusGone) {
		return nil
	}
	return err
}

func (c *Client) endpoint(request *Request) string {
	endpoint := c.BaseUrl
	if request.Path != "" {
		endpoint = fmt.Sprintf("%s/%s", c.BaseUrl, strings.TrimLeft(request.Path, "/"))
	}
	if len(request.Query) > 0 {
		endpoint = fmt.Sprintf("%s?%s", endpoint, request.Query.Encode())
	}
	return endpoint
}

// classifyTransportError tells the per-call timeout apart from cancellation of
// the caller's context.
func (c *Client) classifyTransportError(parent, callCtx context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{After: c.CallTimeout, Err: err}
	}
	return &TransportError{Err: err}
}

func newStatusError(method, endpoint string, resp *http.Response, body []byte) *StatusError {
	statusErr := &StatusError{
		Method:     method,
		URL:        endpoint,
		StatusCode: resp.StatusCode,
	}
	if seconds, err := strconv.Atoi(resp.Header.Get(constvars.HeaderRetryAfter)); err == nil && seconds > 0 {
		statusErr.RetryAfter = time.Duration(seconds) * time.Second
	}
	var outcome fhir_dto.OperationOutcome
	if err := json.Unmarshal(body, &outcome); err == nil {
		statusErr.Outcome = outcome.Message()
	}
	return statusErr
}

// IsTransient reports whether err is worth retrying: timeouts, connection
// failures, 408, 429 and 5xx responses.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Transient()
	}
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return true
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

// IdentifierCondition renders the If-None-Exist query for an identifier token.
func IdentifierCondition(system, value string) string {
	return url.Values{constvars.FhirSearchParamIdentifier: []string{utils.IdentifierToken(system, value)}}.Encode()
}
