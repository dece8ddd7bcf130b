package render

import (
	"container/list"
	"crypto/sha256"
	"image"
	"sync"
)

// DefaultCacheBytes is the default budget of the decoded image cache.
const DefaultCacheBytes int64 = 64 << 20

// ImageCache keeps decoded images in least recently used order. Entries
// are keyed by the SHA-256 of their src so that inline data URIs are not
// held twice, and the total size is bounded by an estimate of the decoded
// pixel memory.
type ImageCache struct {
	mu      sync.Mutex
	entries map[[sha256.Size]byte]*list.Element
	lru     *list.List
	size    int64
	maxSize int64
}

type cacheEntry struct {
	key  [sha256.Size]byte
	img  image.Image
	size int64
}

func NewImageCache(maxBytes int64) *ImageCache {
	if maxBytes <= 0 {
		maxBytes = DefaultCacheBytes
	}
	return &ImageCache{
		entries: make(map[[sha256.Size]byte]*list.Element),
		lru:     list.New(),
		maxSize: maxBytes,
	}
}

func (c *ImageCache) Get(src string) (image.Image, bool) {
	key := sha256.Sum256([]byte(src))

	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(el)
	return el.Value.(*cacheEntry).img, true
}

// Put stores img, evicting the least recently used entries until it fits.
// Images larger than the whole budget are not cached.
func (c *ImageCache) Put(src string, img image.Image) {
	size := imageBytes(img)
	if size > c.maxSize {
		return
	}
	key := sha256.Sum256([]byte(src))

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.remove(el)
	}
	for c.size+size > c.maxSize {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.remove(oldest)
	}
	c.entries[key] = c.lru.PushFront(&cacheEntry{key: key, img: img, size: size})
	c.size += size
}

func (c *ImageCache) remove(el *list.Element) {
	e := el.Value.(*cacheEntry)
	c.lru.Remove(el)
	delete(c.entries, e.key)
	c.size -= e.size
}

// Size is the estimated memory held by the cached images.
func (c *ImageCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *ImageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func imageBytes(img image.Image) int64 {
	b := img.Bounds()
	return int64(b.Dx()) * int64(b.Dy()) * 4
}
