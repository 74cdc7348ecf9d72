package mediacache

import (
	"errors"

	"github.com/hupe1980/mediacache/mediatype"
	"github.com/hupe1980/mediacache/scheduler"
)

var (
	// ErrClosed is returned when an operation is attempted on a closed engine.
	ErrClosed = errors.New("engine is closed")

	// ErrInvalidURL is returned when a URL is malformed or uses a non-http(s)
	// scheme. Alias of the mediatype sentinel so callers only need this package.
	ErrInvalidURL = mediatype.ErrInvalidURL

	// ErrUnsupportedFormat is returned when a URL resolves to no known media
	// format.
	ErrUnsupportedFormat = mediatype.ErrUnsupportedFormat
)

// ErrorKind is the typed failure class carried in a preload Result.
type ErrorKind = scheduler.ErrorKind

// Failure classes reported by preload results.
const (
	ErrorNone              = scheduler.ErrorNone
	ErrorInvalidURL        = scheduler.ErrorInvalidURL
	ErrorUnsupportedFormat = scheduler.ErrorUnsupportedFormat
	ErrorNetwork           = scheduler.ErrorNetwork
	ErrorTimeout           = scheduler.ErrorTimeout
	ErrorLoadFailed        = scheduler.ErrorLoadFailed
)
