package agent

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// ImageData is one generated image kept for follow-up requests within the
// same context (e.g. "now make it blue").
type ImageData struct {
	ID       string
	MimeType string
	Bytes    []byte
}

// ImageCache is an in-process cache of generated images keyed by context
// and image ID. Entries are bounded by total byte cost and expire after the
// TTL, so an idle session does not pin image payloads forever.
type ImageCache struct {
	c   *ristretto.Cache[string, *ImageData]
	ttl time.Duration
}

// NewImageCache creates a cache holding at most maxCostBytes of image data.
func NewImageCache(maxCostBytes int64, ttl time.Duration) (*ImageCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, *ImageData]{
		NumCounters: maxCostBytes / 100 * 10, // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &ImageCache{c: c, ttl: ttl}, nil
}

func cacheKey(contextID, imageID string) string {
	return contextID + "/" + imageID
}

// Get retrieves an image generated earlier in the context.
func (ic *ImageCache) Get(contextID, imageID string) (*ImageData, bool) {
	return ic.c.Get(cacheKey(contextID, imageID))
}

// Put stores a generated image.
func (ic *ImageCache) Put(contextID string, img *ImageData) {
	ic.c.SetWithTTL(cacheKey(contextID, img.ID), img, int64(len(img.Bytes)), ic.ttl)
}

// Wait blocks until buffered writes have been applied.
func (ic *ImageCache) Wait() {
	ic.c.Wait()
}

// Close releases cache resources.
func (ic *ImageCache) Close() {
	ic.c.Close()
}
