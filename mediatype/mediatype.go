package mediatype

import (
	"errors"
	"net/url"
	"path"
	"regexp"
	"strings"
)

var (
	// ErrInvalidURL is returned when a URL is malformed or uses a non-http(s) scheme.
	ErrInvalidURL = errors.New("invalid media URL")

	// ErrUnsupportedFormat is returned when neither the MIME hint nor the file
	// extension maps to a known media kind.
	ErrUnsupportedFormat = errors.New("unsupported media format")
)

// Kind identifies the broad class of a media resource.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindImage
	KindVideo
	KindAnimated // animated images (GIF, APNG); distinct from video
)

// String returns a stable lowercase name for the kind.
func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	case KindAnimated:
		return "animated"
	default:
		return "unknown"
	}
}

// Detection is the result of classifying a media URL.
// Classification errors are reported as data in Err, never panicked or logged.
type Detection struct {
	Kind             Kind
	IsValid          bool
	IsSpecialService bool
	MIME             string // resolved MIME type, empty if unknown
	Ext              string // lowercase file extension without the dot
	Err              error  // ErrInvalidURL or ErrUnsupportedFormat
}

// MIME lookup tables. Exact matches only; hints outside these tables fall
// through to extension-based detection.
var mimeKinds = map[string]Kind{
	"image/jpeg":            KindImage,
	"image/jpg":             KindImage,
	"image/png":             KindImage,
	"image/webp":            KindImage,
	"image/avif":            KindImage,
	"image/bmp":             KindImage,
	"image/svg+xml":         KindImage,
	"image/tiff":            KindImage,
	"image/gif":             KindAnimated,
	"image/apng":            KindAnimated,
	"video/mp4":             KindVideo,
	"video/webm":            KindVideo,
	"video/ogg":             KindVideo,
	"video/quicktime":       KindVideo,
	"video/x-matroska":      KindVideo,
	"video/x-msvideo":       KindVideo,
	"application/x-mpegurl": KindVideo,
}

var extKinds = map[string]Kind{
	"jpg":  KindImage,
	"jpeg": KindImage,
	"png":  KindImage,
	"webp": KindImage,
	"avif": KindImage,
	"bmp":  KindImage,
	"svg":  KindImage,
	"tif":  KindImage,
	"tiff": KindImage,
	"gif":  KindAnimated,
	"apng": KindAnimated,
	"mp4":  KindVideo,
	"m4v":  KindVideo,
	"webm": KindVideo,
	"ogv":  KindVideo,
	"mov":  KindVideo,
	"mkv":  KindVideo,
	"avi":  KindVideo,
}

// specialServiceRE matches URLs served by a pictrs-style image proxy, which
// supports on-the-fly resizing via query parameters. Only URLs matching this
// pattern may be rewritten by the optimizer.
var specialServiceRE = regexp.MustCompile(`/pictrs/image/([A-Za-z0-9._-]+)\.([A-Za-z0-9]+)$`)

// Keywords that suggest animated content when no definitive kind is known.
var animatedKeywords = []string{"gif", "animated", "anim_", "loop"}

// Detect classifies a media URL, optionally guided by a MIME hint.
//
// Precedence: a MIME hint matching the known tables wins; otherwise the file
// extension of the URL path decides (query parameters ignored). If neither
// resolves, the result carries KindUnknown and ErrUnsupportedFormat.
func Detect(rawURL, mimeHint string) Detection {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Detection{Err: ErrInvalidURL}
	}

	d := Detection{
		IsSpecialService: specialServiceRE.MatchString(u.Path),
		Ext:              extOf(u.Path),
	}

	if mimeHint != "" {
		if kind, ok := mimeKinds[strings.ToLower(strings.TrimSpace(mimeHint))]; ok {
			d.Kind = kind
			d.MIME = strings.ToLower(strings.TrimSpace(mimeHint))
			d.IsValid = true
			return d
		}
	}

	if kind, ok := extKinds[d.Ext]; ok {
		d.Kind = kind
		d.IsValid = true
		return d
	}

	d.Err = ErrUnsupportedFormat
	return d
}

// IsSpecialService reports whether the URL points at the known image-processing
// proxy. Malformed URLs are never special-service.
func IsSpecialService(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return specialServiceRE.MatchString(u.Path)
}

// SpecialServiceParts extracts the opaque id and extension from a
// special-service URL path. ok is false when the URL does not match.
func SpecialServiceParts(rawURL string) (id, ext string, ok bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", false
	}
	m := specialServiceRE.FindStringSubmatch(u.Path)
	if m == nil {
		return "", "", false
	}
	return m[1], strings.ToLower(m[2]), true
}

// IsLikelyAnimated reports whether the URL probably refers to animated content.
// A definitive kind (animated or video) always wins; the keyword scan is a
// heuristic fallback for URLs that don't classify.
func IsLikelyAnimated(rawURL string) bool {
	d := Detect(rawURL, "")
	if d.IsValid {
		return d.Kind == KindAnimated || d.Kind == KindVideo
	}

	lower := strings.ToLower(rawURL)
	for _, kw := range animatedKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func extOf(urlPath string) string {
	ext := path.Ext(urlPath)
	if ext == "" {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
