package optimize

import (
	"math"
	"net/url"
	"strconv"

	"github.com/hupe1980/mediacache/mediatype"
)

// Speed classifies the observed connection quality. It shifts default quality
// targets and, at the scheduler level, the worker pool size.
type Speed uint8

const (
	SpeedUnknown Speed = iota
	SpeedSlow
	SpeedMedium
	SpeedFast
)

// String returns a stable lowercase name for the speed class.
func (s Speed) String() string {
	switch s {
	case SpeedSlow:
		return "slow"
	case SpeedMedium:
		return "medium"
	case SpeedFast:
		return "fast"
	default:
		return "unknown"
	}
}

// Sizing and quality defaults. Quality never leaves [qualityFloor, qualityCeil]
// regardless of caller overrides or speed adjustments.
const (
	defaultWidthMobile  = 640
	defaultWidthDesktop = 1280

	defaultQualityMobile  = 75
	defaultQualityDesktop = 85

	qualityFloor = 50
	qualityCeil  = 95

	slowQualityPenalty = 15
	fastQualityBonus   = 5

	// Below this target width the rewrite overhead isn't worth it.
	minOptimizeWidth = 200
)

// Options are caller-supplied hints for a single Optimize call. The zero value
// means "desktop, unknown speed, library defaults".
type Options struct {
	Width      int     // target CSS width in px; 0 uses the device default
	Height     int     // target CSS height in px; 0 omits the height parameter
	Quality    int     // 1-100; 0 uses the device/speed default
	PixelRatio float64 // device pixel ratio; <= 0 treated as 1.0
	Mobile     bool
	Speed      Speed
	Format     string // output format override; "" selects via CapabilityProbe
}

// Variant is an alternate rendition of the same image for one density multiple.
type Variant struct {
	URL     string
	Scale   float64
	Quality int
}

// Result describes the outcome of an Optimize call. For URLs that cannot be
// rewritten, OptimizedURL equals OriginalURL and Variants is empty.
type Result struct {
	OriginalURL  string
	OptimizedURL string
	Variants     []Variant
	SizeHint     int64 // coarse decoded-size estimate in bytes
	Kind         mediatype.Kind
}

// Rewritten reports whether the optimizer produced a distinct URL.
func (r Result) Rewritten() bool { return r.OptimizedURL != r.OriginalURL }

// Optimizer rewrites special-service URLs into bandwidth-appropriate variants.
//
// Optimize is pure and deterministic: the same (url, options) pair always
// yields byte-identical output, so rewritten URLs are stable cache keys.
type Optimizer struct {
	probe mediatype.CapabilityProbe
}

// New creates an Optimizer. A nil probe falls back to the default baseline
// capability set.
func New(probe mediatype.CapabilityProbe) *Optimizer {
	if probe == nil {
		probe = mediatype.DefaultProbe()
	}
	return &Optimizer{probe: probe}
}

// Optimize rewrites rawURL according to opts. URLs that are invalid or do not
// belong to the special image-processing service pass through unchanged.
func (o *Optimizer) Optimize(rawURL string, opts Options) Result {
	d := mediatype.Detect(rawURL, "")

	res := Result{
		OriginalURL:  rawURL,
		OptimizedURL: rawURL,
		Kind:         d.Kind,
	}
	if !d.IsValid || !d.IsSpecialService {
		return res
	}

	ratio := opts.PixelRatio
	if ratio <= 0 {
		ratio = 1.0
	}

	width := opts.Width
	if width <= 0 {
		if opts.Mobile {
			width = defaultWidthMobile
		} else {
			width = defaultWidthDesktop
		}
	}

	quality := baseQuality(opts)
	format := opts.Format
	if format == "" {
		format = mediatype.OptimalFormat(d.Kind, o.probe)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return res
	}

	res.OptimizedURL = rewriteURL(u, format, scaleDim(width, ratio), scaleDim(opts.Height, ratio), quality)
	res.SizeHint = sizeHint(scaleDim(width, ratio), scaleDim(opts.Height, ratio))

	// Density variants: quality steps down slightly as density rises so the
	// total payload stays bounded.
	scales := []float64{1, 1.5, 2}
	if opts.Mobile {
		scales = []float64{1, 2, 3}
	}
	steps := []int{0, 5, 10}

	res.Variants = make([]Variant, 0, len(scales))
	for i, scale := range scales {
		vq := clampQuality(quality - steps[i])
		vw := scaleDim(width, scale)
		vh := scaleDim(opts.Height, scale)
		res.Variants = append(res.Variants, Variant{
			URL:     rewriteURL(u, format, vw, vh, vq),
			Scale:   scale,
			Quality: vq,
		})
	}

	return res
}

// ShouldOptimize reports whether rewriting rawURL is worthwhile. It is false
// when the URL is not rewritable, or when targetWidth is known and below the
// minimum threshold.
func (o *Optimizer) ShouldOptimize(rawURL string, targetWidth int) bool {
	d := mediatype.Detect(rawURL, "")
	if !d.IsValid || !d.IsSpecialService {
		return false
	}
	if targetWidth > 0 && targetWidth < minOptimizeWidth {
		return false
	}
	return true
}

func baseQuality(opts Options) int {
	q := opts.Quality
	if q <= 0 {
		if opts.Mobile {
			q = defaultQualityMobile
		} else {
			q = defaultQualityDesktop
		}
	}

	switch opts.Speed {
	case SpeedSlow:
		q -= slowQualityPenalty
	case SpeedFast:
		q += fastQualityBonus
	}

	return clampQuality(q)
}

func clampQuality(q int) int {
	if q < qualityFloor {
		return qualityFloor
	}
	if q > qualityCeil {
		return qualityCeil
	}
	return q
}

func scaleDim(dim int, factor float64) int {
	if dim <= 0 {
		return 0
	}
	return int(math.Round(float64(dim) * factor))
}

// rewriteURL builds the rewritten URL. url.Values encodes in sorted key order,
// which keeps the output deterministic.
func rewriteURL(u *url.URL, format string, width, height, quality int) string {
	q := url.Values{}
	if format != "" {
		q.Set("format", format)
	}
	if width > 0 {
		q.Set("width", strconv.Itoa(width))
	}
	if height > 0 {
		q.Set("height", strconv.Itoa(height))
	}
	q.Set("quality", strconv.Itoa(quality))

	rewritten := *u
	rewritten.RawQuery = q.Encode()
	return rewritten.String()
}

// sizeHint approximates the decoded size at 4 bytes per pixel. When no height
// is known a 4:3 aspect is assumed. Coarse on purpose: this only needs to be
// consistent enough to bound memory.
func sizeHint(width, height int) int64 {
	if width <= 0 {
		return 0
	}
	if height <= 0 {
		height = width * 3 / 4
	}
	return int64(width) * int64(height) * 4
}
