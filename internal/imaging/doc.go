// Package imaging provides the raster primitives the detection pipeline needs:
// loading images as owned RGB buffers, rendering detection overlays, and encoding
// PNG output.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//   - Boxes are (x1, y1, x2, y2) with x1 <= x2 and y1 <= y2, in pixels
//
// # Channel Order
//
// Every buffer produced here is an *image.RGBA with opaque alpha. The R, G, B
// channels are in that order regardless of how the source file stored them
// (grayscale, paletted, NRGBA, YCbCr JPEG). Transparent sources have their alpha
// dropped rather than composited.
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. ToRGB and DrawOverlay never
// modify their source image; DrawOverlay writes only to the destination buffer
// it is given, so concurrent calls on different destinations are safe.
//
// # Overlay Rendering
//
// Detection boxes are drawn as rectangle outlines in a per-class colour. Labels use
// the 7x13 fixed bitmap face from golang.org/x/image on a filled background in the
// box colour, with black or white text chosen for contrast.
package imaging
