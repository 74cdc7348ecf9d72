package mediatype

// CapabilityProbe reports which encode formats the consuming runtime can
// display. Abstracting this behind an interface keeps format selection pure
// and host-independent; production callers feed it from a real feature probe,
// tests use a StaticProbe.
type CapabilityProbe interface {
	// Supports reports whether the runtime can decode the given format
	// (lowercase, e.g. "webp", "avif", "jpeg").
	Supports(format string) bool
}

// StaticProbe is a CapabilityProbe backed by a fixed format set.
type StaticProbe map[string]bool

func (p StaticProbe) Supports(format string) bool { return p[format] }

// NewStaticProbe creates a StaticProbe from a list of supported formats.
func NewStaticProbe(formats ...string) StaticProbe {
	p := make(StaticProbe, len(formats))
	for _, f := range formats {
		p[f] = true
	}
	return p
}

// DefaultProbe returns the universally safe baseline capability set.
func DefaultProbe() CapabilityProbe {
	return NewStaticProbe("jpeg", "png", "webp")
}

// OptimalFormat returns the preferred output encoding for a media kind given
// the runtime capabilities.
//
// Images prefer modern formats (avif, then webp) when supported, falling back
// to jpeg. Video always maps to the most compatible container. Animated images
// return "" meaning keep the native format: re-encoding would lose animation.
func OptimalFormat(kind Kind, probe CapabilityProbe) string {
	if probe == nil {
		probe = DefaultProbe()
	}

	switch kind {
	case KindImage:
		if probe.Supports("avif") {
			return "avif"
		}
		if probe.Supports("webp") {
			return "webp"
		}
		return "jpeg"
	case KindVideo:
		return "mp4"
	default:
		// Animated and unknown keep their native encoding.
		return ""
	}
}
