package cache

import (
	"time"

	"github.com/hupe1980/mediacache/mediatype"
)

// Handle is an opaque decoded media object living only in memory (for example
// a decoded image or a video element owned by the rendering layer). Handles
// cannot be serialized generically, so they are never mirrored to the
// persistent tier; only their dimensions are needed for size accounting.
type Handle interface {
	// Bounds returns the decoded width and height in pixels.
	Bounds() (width, height int)
}

// Payload is what a loader produced for a URL: raw bytes, a decoded handle,
// or both.
type Payload struct {
	Data   []byte
	Handle Handle
}

// SizeEstimate returns the byte cost charged against the memory budget.
// Raw bytes are exact; decoded handles use width*height*4 - intentionally
// coarse, it only needs to be consistent enough to bound memory.
func (p Payload) SizeEstimate() int64 {
	if len(p.Data) > 0 {
		return int64(len(p.Data))
	}
	if p.Handle != nil {
		w, h := p.Handle.Bounds()
		if w > 0 && h > 0 {
			return int64(w) * int64(h) * 4
		}
	}
	return 0
}

// Entry is a resident cache entry. Values returned from Store.Get are
// snapshots; the payload slice is shared and must be treated as read-only.
type Entry struct {
	Key          string
	Kind         mediatype.Kind
	Data         []byte
	Handle       Handle
	Size         int64
	CreatedAt    time.Time
	LastAccessed time.Time
	AccessCount  int64
}
