package model

import (
	"errors"
	"fmt"
)

type StockErrorKind string

const (
	StockErrInvalidAPIKey     StockErrorKind = "invalid_api_key"
	StockErrNetwork           StockErrorKind = "network_error"
	StockErrParse             StockErrorKind = "parse_error"
	StockErrRateLimitExceeded StockErrorKind = "rate_limit_exceeded"
	StockErrSymbolNotFound    StockErrorKind = "symbol_not_found"
	StockErrInvalidSymbol     StockErrorKind = "invalid_symbol"
	StockErrProvider          StockErrorKind = "provider_error"
	StockErrConfig            StockErrorKind = "config_error"
)

// StockError is returned by market data providers and the stock service.
// Compare with errors.Is against the Err* sentinels below.
type StockError struct {
	Kind    StockErrorKind
	Message string
	Err     error
}

var (
	ErrInvalidAPIKey     = &StockError{Kind: StockErrInvalidAPIKey}
	ErrNetwork           = &StockError{Kind: StockErrNetwork}
	ErrParse             = &StockError{Kind: StockErrParse}
	ErrRateLimitExceeded = &StockError{Kind: StockErrRateLimitExceeded}
	ErrSymbolNotFound    = &StockError{Kind: StockErrSymbolNotFound}
	ErrInvalidSymbol     = &StockError{Kind: StockErrInvalidSymbol}
	ErrProvider          = &StockError{Kind: StockErrProvider}
	ErrConfig            = &StockError{Kind: StockErrConfig}
)

func NewStockError(kind StockErrorKind, format string, args ...interface{}) *StockError {
	return &StockError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func WrapStockError(kind StockErrorKind, err error, message string) *StockError {
	return &StockError{Kind: kind, Message: message, Err: err}
}

func (e *StockError) Error() string {
	var prefix string
	switch e.Kind {
	case StockErrInvalidAPIKey:
		prefix = "Invalid API key"
	case StockErrNetwork:
		prefix = "Network error"
	case StockErrParse:
		prefix = "Parse error"
	case StockErrRateLimitExceeded:
		prefix = "Rate limit exceeded"
	case StockErrSymbolNotFound:
		prefix = "Symbol not found"
	case StockErrInvalidSymbol:
		prefix = "Invalid symbol"
	case StockErrProvider:
		prefix = "Provider error"
	case StockErrConfig:
		prefix = "Configuration error"
	default:
		prefix = string(e.Kind)
	}
	if e.Message == "" {
		return prefix
	}
	return prefix + ": " + e.Message
}

func (e *StockError) Unwrap() error {
	return e.Err
}

// Is matches any StockError of the same kind.
func (e *StockError) Is(target error) bool {
	t, ok := target.(*StockError)
	return ok && t.Kind == e.Kind
}

// StockErrorKindOf extracts the kind of a StockError anywhere in err's chain.
func StockErrorKindOf(err error) (StockErrorKind, bool) {
	var se *StockError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

type DatabaseErrorKind string

const (
	DBErrConnection        DatabaseErrorKind = "connection_error"
	DBErrNotFound          DatabaseErrorKind = "not_found"
	DBErrValidation        DatabaseErrorKind = "validation_error"
	DBErrConflict          DatabaseErrorKind = "conflict_error"
	DBErrRateLimitExceeded DatabaseErrorKind = "rate_limit_exceeded"
	DBErrSerialization     DatabaseErrorKind = "serialization_error"
	DBErrUnknown           DatabaseErrorKind = "unknown"
)

// DatabaseError is returned by StockDatabase implementations.
type DatabaseError struct {
	Kind    DatabaseErrorKind
	Message string
	Err     error
}

var (
	ErrDBConnection    = &DatabaseError{Kind: DBErrConnection}
	ErrDBNotFound      = &DatabaseError{Kind: DBErrNotFound}
	ErrDBValidation    = &DatabaseError{Kind: DBErrValidation}
	ErrDBConflict      = &DatabaseError{Kind: DBErrConflict}
	ErrDBRateLimit     = &DatabaseError{Kind: DBErrRateLimitExceeded}
	ErrDBSerialization = &DatabaseError{Kind: DBErrSerialization}
	ErrDBUnknown       = &DatabaseError{Kind: DBErrUnknown}
)

func NewDatabaseError(kind DatabaseErrorKind, err error, format string, args ...interface{}) *DatabaseError {
	return &DatabaseError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *DatabaseError) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

func (e *DatabaseError) Is(target error) bool {
	t, ok := target.(*DatabaseError)
	return ok && t.Kind == e.Kind
}

var (
	// ErrAIConfig means the backend for a model cannot be built, usually a
	// missing API key.
	ErrAIConfig         = errors.New("ai backend not configured")
	ErrUnsupportedModel = errors.New("unsupported AI model")
	ErrEmptyAIResponse  = errors.New("AI returned no content")
	ErrAIChatThrottled  = errors.New("too many AI requests from this chat, slow down")
)

var (
	ErrAlreadySubscribed = errors.New("group is already subscribed to this symbol")
	ErrNotSubscribed     = errors.New("group is not subscribed to this symbol")
	ErrSubscriptionLimit = errors.New("subscription limit reached")
	ErrNotGroupAdmin     = errors.New("only group admins can change settings")
	ErrInvalidSetting    = errors.New("invalid group setting")
)
