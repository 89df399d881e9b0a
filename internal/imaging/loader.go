package imaging

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anthonynsimon/bild/clone"
	"github.com/disintegration/imaging"
	"github.com/patrickmn/go-cache"
)

// SupportedExtensions lists the file extensions accepted as microscope images.
var SupportedExtensions = []string{".jpg", ".jpeg", ".png"}

// IsSupported reports whether path has a supported image extension (case-insensitive).
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// DefaultCacheTTL is how long an unused decoded image stays cached.
const DefaultCacheTTL = 10 * time.Minute

// ImageCache provides thread-safe caching of loaded images to avoid redundant disk reads.
//
// The cache stores decoded RGB buffers keyed by their file path together with the
// file's modification time and size. Callers must treat the returned buffers as
// read-only; the detection adapter copies before drawing.
//
// # Memory Management
//
// Entries expire after the TTL given to NewImageCache and are dropped by a
// background janitor. An entry whose file changed on disk, or disappeared, is
// replaced or removed on the next Load.
type ImageCache struct {
	items *cache.Cache
}

// cachedImage is a decoded buffer plus the file state it was decoded from.
type cachedImage struct {
	modTime time.Time
	size    int64
	img     *image.RGBA
}

// NewImageCache creates an empty image cache whose entries expire after ttl.
// A non-positive ttl means DefaultCacheTTL.
func NewImageCache(ttl time.Duration) *ImageCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ImageCache{items: cache.New(ttl, ttl*2)}
}

// Load retrieves an image from the cache or loads it from disk if not cached.
//
// The image is decoded with EXIF orientation applied and converted to RGB. A
// cached entry is reused only while the file's modification time and size are
// unchanged. Different paths to the same file result in separate cache entries.
func (c *ImageCache) Load(path string) (*image.RGBA, error) {
	info, err := os.Stat(path)
	if err != nil {
		c.items.Delete(path)
		return nil, fmt.Errorf("failed to open image: %w", err)
	}

	if v, ok := c.items.Get(path); ok {
		e := v.(cachedImage)
		if e.size == info.Size() && e.modTime.Equal(info.ModTime()) {
			return e.img, nil
		}
	}

	img, err := Open(path)
	if err != nil {
		c.items.Delete(path)
		return nil, err
	}

	c.items.SetDefault(path, cachedImage{modTime: info.ModTime(), size: info.Size(), img: img})
	return img, nil
}

// Len returns the number of cached images, including expired entries the
// janitor has not removed yet.
func (c *ImageCache) Len() int {
	return c.items.ItemCount()
}

// Open decodes the image at path and returns it as an owned RGB buffer.
//
// PNG and JPEG are supported. EXIF orientation is honoured so microscope captures
// from cameras that write rotated JPEGs come out upright.
func Open(path string) (*image.RGBA, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	return ToRGB(img), nil
}

// Decode reads an image from r and returns it as an owned RGB buffer.
func Decode(r io.Reader) (*image.RGBA, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return ToRGB(img), nil
}

// ToRGB returns a copy of img as an opaque RGBA buffer whose bounds start at
// (0,0), so box coordinates from a model are valid pixel coordinates on it.
//
// The source is never modified. Opaque sources are copied directly; sources with
// transparency keep their straight (unpremultiplied) colour and get alpha 255.
func ToRGB(img image.Image) *image.RGBA {
	var dst *image.RGBA
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		dst = clone.AsRGBA(img)
	} else {
		bounds := img.Bounds()
		dst = image.NewRGBA(bounds)
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				dst.SetRGBA(x, y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 255})
			}
		}
	}
	// Pix is addressed relative to Rect.Min, so moving the rectangle keeps the pixels.
	dst.Rect = dst.Rect.Sub(dst.Rect.Min)
	return dst
}

// EncodePNG writes img to w as a lossless PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	if err := imaging.Encode(w, img, imaging.PNG); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}
	return nil
}

// SavePNG writes img to path as a PNG, creating or truncating the file.
func SavePNG(path string, img image.Image) error {
	if !strings.EqualFold(filepath.Ext(path), ".png") {
		return fmt.Errorf("refusing to save PNG data under %q", path)
	}
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	return nil
}
