// Package remotestore is the cloud transaction store: a document API
// scoped under the signed-in principal's namespace, reached over a
// retrying HTTP transport, with a polling live feed.
package remotestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	"github.com/moneta-app/moneta-go/internal/types"
	"github.com/moneta-app/moneta-go/pkg/moneta"
)

const (
	transactionsPath = "/v1/users/%s/transactions"
	transactionPath  = "/v1/users/%s/transactions/%s"
	budgetPath       = "/v1/users/%s/budgets/%s"

	authHeaderKey = "Authorization"
	contentType   = "application/json"
)

// Options configures the remote store.
type Options struct {
	// BaseURL of the document API. Required.
	BaseURL string

	// HTTPClient allows using a custom HTTP client
	HTTPClient *http.Client

	// RetryConfig configures retry behavior
	RetryConfig *types.RetryConfig

	// Logger for debug logging
	Logger moneta.Logger

	// PollInterval is the live-feed polling cadence
	PollInterval time.Duration
}

// Store implements moneta.Store, moneta.Feed and moneta.BudgetProvider
// against the document API. All calls are scoped under the current
// session's user id; calls without a session fail with
// types.ErrNotAuthenticated.
type Store struct {
	baseURL      string
	retryClient  *retryablehttp.Client
	logger       moneta.Logger
	pollInterval time.Duration

	mu      sync.RWMutex
	session *types.Session
}

// New creates a remote store.
func New(opts *Options) (*Store, error) {
	if opts == nil || opts.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: types.DefaultTimeout}
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = httpClient
	retryClient.Logger = nil
	if opts.RetryConfig != nil {
		retryClient.RetryMax = opts.RetryConfig.MaxRetries
		retryClient.RetryWaitMin = opts.RetryConfig.RetryWait
		retryClient.RetryWaitMax = opts.RetryConfig.MaxWait
	}

	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = types.DefaultPollInterval
	}

	return &Store{
		baseURL:      opts.BaseURL,
		retryClient:  retryClient,
		logger:       opts.Logger,
		pollInterval: pollInterval,
	}, nil
}

// SetSession installs the authenticated session scoping every call.
// Passing nil drops it.
func (s *Store) SetSession(session *types.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session
}

func (s *Store) currentSession() (*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil || s.session.Token == "" {
		return nil, types.ErrNotAuthenticated
	}
	if s.session.Expired(time.Now()) {
		return nil, types.ErrSessionExpired
	}
	return s.session, nil
}

// List returns the month's transactions, filtered server-side by the
// date-range predicate firstOfMonth..lastOfMonth 23:59:59.
func (s *Store) List(ctx context.Context, month moneta.Month) ([]*moneta.Transaction, error) {
	session, err := s.currentSession()
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("start", month.FirstDay().String())
	query.Set("end", month.LastDay().String()+"T23:59:59")

	var result struct {
		Transactions []*moneta.Transaction `json:"transactions"`
	}
	path := fmt.Sprintf(transactionsPath, session.UserID) + "?" + query.Encode()
	if err := s.do(ctx, session, http.MethodGet, path, nil, &result); err != nil {
		return nil, errors.Wrap(err, "failed to list transactions")
	}

	for _, txn := range result.Transactions {
		txn.Normalize()
	}
	return result.Transactions, nil
}

// ListUpcoming returns future-dated transactions after the given date.
func (s *Store) ListUpcoming(ctx context.Context, after moneta.Date, limit int) ([]*moneta.Transaction, error) {
	session, err := s.currentSession()
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("after", after.String())
	query.Set("limit", fmt.Sprintf("%d", limit))

	var result struct {
		Transactions []*moneta.Transaction `json:"transactions"`
	}
	path := fmt.Sprintf(transactionsPath, session.UserID) + "?" + query.Encode()
	if err := s.do(ctx, session, http.MethodGet, path, nil, &result); err != nil {
		return nil, errors.Wrap(err, "failed to list upcoming transactions")
	}

	for _, txn := range result.Transactions {
		txn.Normalize()
	}
	return result.Transactions, nil
}

// Insert stores a new document. Ids are client-generated so the write is
// a single idempotent set instead of a create-then-read pair.
func (s *Store) Insert(ctx context.Context, txn *moneta.Transaction) (string, error) {
	session, err := s.currentSession()
	if err != nil {
		return "", err
	}

	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}

	path := fmt.Sprintf(transactionPath, session.UserID, txn.ID)
	if err := s.do(ctx, session, http.MethodPut, path, txn, nil); err != nil {
		return "", errors.Wrap(err, "failed to insert transaction")
	}
	return txn.ID, nil
}

// Update merges the document with the given id.
func (s *Store) Update(ctx context.Context, id string, txn *moneta.Transaction) error {
	session, err := s.currentSession()
	if err != nil {
		return err
	}

	path := fmt.Sprintf(transactionPath, session.UserID, id)
	if err := s.do(ctx, session, http.MethodPatch, path, txn, nil); err != nil {
		return errors.Wrap(err, "failed to update transaction")
	}
	return nil
}

// Delete removes the document with the given id.
func (s *Store) Delete(ctx context.Context, id string) error {
	session, err := s.currentSession()
	if err != nil {
		return err
	}

	path := fmt.Sprintf(transactionPath, session.UserID, id)
	if err := s.do(ctx, session, http.MethodDelete, path, nil, nil); err != nil {
		return errors.Wrap(err, "failed to delete transaction")
	}
	return nil
}

// MonthlyBudget returns the configured budget for the month, zero when
// none is set.
func (s *Store) MonthlyBudget(ctx context.Context, month moneta.Month) (float64, error) {
	session, err := s.currentSession()
	if err != nil {
		return 0, err
	}

	var result struct {
		Amount float64 `json:"amount"`
	}
	path := fmt.Sprintf(budgetPath, session.UserID, month.String())
	err = s.do(ctx, session, http.MethodGet, path, nil, &result)
	if errors.Is(err, types.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to get monthly budget")
	}
	return result.Amount, nil
}

// do executes one request against the document API and decodes the JSON
// response into result when non-nil. The session is the one the caller
// resolved when building the path, so the path's user id and the auth
// header always belong to the same session even across a mid-flight
// session swap.
func (s *Store) do(ctx context.Context, session *types.Session, method, path string, body, result interface{}) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal request body")
		}
		payload = bytes.NewReader(data)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, s.baseURL+path, payload)
	if err != nil {
		return errors.Wrap(err, "create request")
	}

	req.Header.Set("Accept", contentType)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", types.UserAgent)
	req.Header.Set(authHeaderKey, "Token "+session.Token)

	if s.logger != nil {
		s.logger.Debug("remote store request", "method", method, "path", path)
	}

	resp, err := s.retryClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return types.ErrNotAuthenticated
	case resp.StatusCode == http.StatusNotFound:
		return types.ErrNotFound
	case resp.StatusCode >= 500:
		return errors.Wrapf(types.ErrServerError, "status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		data, _ := io.ReadAll(resp.Body)
		return errors.Errorf("request failed with status %d: %s", resp.StatusCode, string(data))
	}

	if result == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}
