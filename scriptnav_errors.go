// scriptnav/scriptnav_errors.go
// Contains exported error definitions for the scriptnav package.
package scriptnav

import "errors"

// =============================================================================
// Exported Errors
// =============================================================================

var (
	// ErrMalformedTree indicates a syntax tree violated a structural assumption
	// (unknown field, wrong node kind in a slot). Navigation recovers from the
	// resulting panic and reports this error instead.
	ErrMalformedTree = errors.New("malformed syntax tree")

	// ErrParse indicates a source file could not be read or parsed.
	ErrParse = errors.New("parse failed")

	// ErrConfig indicates non-fatal errors during config loading or processing.
	ErrConfig = errors.New("configuration error")

	// ErrInvalidConfig indicates a configuration value is invalid after validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrCache indicates a general cache operation failure.
	ErrCache = errors.New("cache operation failed")

	// ErrCacheRead indicates failure reading from the cache.
	ErrCacheRead = errors.New("cache read failed")

	// ErrCacheWrite indicates failure writing to the cache.
	ErrCacheWrite = errors.New("cache write failed")

	// ErrCacheDecode indicates failure decoding data read from the cache.
	ErrCacheDecode = errors.New("cache decode failed")

	// ErrCacheEncode indicates failure encoding data for writing to the cache.
	ErrCacheEncode = errors.New("cache encode failed")

	// ErrModuleSearch indicates the cross-module name search was aborted.
	ErrModuleSearch = errors.New("module search failed")

	// ErrPositionConversion indicates failure converting between position formats (e.g., LSP <-> byte offset).
	ErrPositionConversion = errors.New("position conversion failed")

	// ErrInvalidPositionInput indicates input position values (line/col) are invalid.
	ErrInvalidPositionInput = errors.New("invalid input position")

	// ErrPositionOutOfRange indicates a position is outside the valid bounds of the file or line.
	ErrPositionOutOfRange = errors.New("position out of range")

	// ErrInvalidUTF8 indicates an invalid UTF-8 sequence was encountered during processing.
	ErrInvalidUTF8 = errors.New("invalid utf-8 sequence")

	// ErrInvalidURI indicates a document URI is invalid or uses an unsupported scheme.
	ErrInvalidURI = errors.New("invalid document URI")

	// ErrDocumentNotOpen indicates a request referenced a document the server does not track.
	ErrDocumentNotOpen = errors.New("document not open")
)
