package types

import (
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/moneta-app/moneta-go/pkg/moneta"
)

const (
	// DefaultTimeout is the default HTTP client timeout
	DefaultTimeout = 30 * time.Second

	// DefaultPollInterval is the default live-feed polling cadence
	DefaultPollInterval = 2 * time.Second

	// UserAgent is the user agent string
	UserAgent = "moneta-go/1.0.0"
)

// Common transport errors. The authentication pair chains through
// moneta.ErrAuthRequired so callers can classify against the public
// taxonomy without knowing the transport sentinels.
var (
	// ErrNotAuthenticated is returned when authentication is required
	ErrNotAuthenticated = pkgerrors.Wrap(moneta.ErrAuthRequired, "not authenticated")

	// ErrSessionExpired is returned when the session has expired
	ErrSessionExpired = pkgerrors.Wrap(moneta.ErrAuthRequired, "session expired")

	// ErrNotFound is returned when a document does not exist
	ErrNotFound = errors.New("document not found")

	// ErrServerError is returned for server errors
	ErrServerError = errors.New("server error")
)
