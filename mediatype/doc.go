// Package mediatype classifies media URLs into broad kinds (image, video,
// animated image) and selects preferred output encodings.
//
// All functions are pure: classification errors are returned as data in the
// Detection result, and runtime format support is injected via CapabilityProbe
// rather than probed from a live rendering surface.
//
// # Classification precedence
//
//  1. Explicit MIME hint (exact table lookup)
//  2. File extension from the URL path (query parameters ignored)
//  3. KindUnknown with ErrUnsupportedFormat
//
// URLs that are malformed or not http(s) classify as invalid with
// ErrInvalidURL before any kind lookup happens.
package mediatype
