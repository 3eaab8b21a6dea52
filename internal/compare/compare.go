// Package compare implements the perceptual pixel comparison used to decide
// whether a fresh screenshot still matches its baseline.
//
// The metric follows pixelmatch: each pixel pair is converted to YIQ and the
// weighted squared distance is compared against 35215*threshold². Pixels that
// look like anti-aliasing artifacts on either image can be left out of the
// count so font smoothing differences do not fail a run.
package compare

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
)

// maxYIQDelta is the largest possible YIQ distance between two colors
const maxYIQDelta = 35215

// ErrDimensionMismatch is returned when the images do not have the same size
var ErrDimensionMismatch = errors.New("image dimensions do not match")

// DimensionError carries both sizes of a failed comparison
type DimensionError struct {
	Baseline  image.Point
	Candidate image.Point
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%v: baseline %dx%d, candidate %dx%d", ErrDimensionMismatch,
		e.Baseline.X, e.Baseline.Y, e.Candidate.X, e.Candidate.Y)
}

func (e *DimensionError) Unwrap() error { return ErrDimensionMismatch }

// Options configure a comparison
type Options struct {
	// Threshold is the color distance tolerance, 0..1. Smaller is stricter.
	Threshold float64
	// IncludeAA counts anti-aliased pixels as different when true.
	IncludeAA bool
	// AlphaDim is the opacity of unchanged pixels in the diff image.
	AlphaDim float64
	// DiffColor marks differing pixels.
	DiffColor color.NRGBA
	// AAColor marks anti-aliased pixels that were not counted.
	AAColor color.NRGBA
}

// DefaultOptions returns pixelmatch's defaults with the given threshold and AA policy
func DefaultOptions(threshold float64, includeAA bool) Options {
	return Options{
		Threshold: threshold,
		IncludeAA: includeAA,
		AlphaDim:  0.1,
		DiffColor: color.NRGBA{R: 255, A: 255},
		AAColor:   color.NRGBA{R: 255, G: 255, A: 255},
	}
}

// Result is the outcome of a comparison
type Result struct {
	DiffPixels int
	Width      int
	Height     int
	Diff       *image.NRGBA
}

// Passes reports whether the number of differing pixels is within budget
func Passes(diffPixels, allowedFailures int) bool {
	return diffPixels <= allowedFailures
}

// Compare counts the pixels that differ between baseline and candidate and
// renders a diff image. Images of different sizes are rejected with a
// *DimensionError before any pixel is inspected.
func Compare(baseline, candidate image.Image, opts Options) (*Result, error) {
	bb, cb := baseline.Bounds(), candidate.Bounds()
	if bb.Dx() != cb.Dx() || bb.Dy() != cb.Dy() {
		return nil, &DimensionError{Baseline: bb.Size(), Candidate: cb.Size()}
	}

	img1 := toNRGBA(baseline)
	img2 := toNRGBA(candidate)
	width, height := bb.Dx(), bb.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, width, height))

	maxDelta := maxYIQDelta * opts.Threshold * opts.Threshold
	diff := 0

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			pos := y*img1.Stride + x*4
			delta := colorDelta(img1.Pix, img2.Pix, pos, pos, false)

			if abs(delta) > maxDelta {
				if !opts.IncludeAA && (antialiased(img1, x, y, img2) || antialiased(img2, x, y, img1)) {
					out.SetNRGBA(x, y, opts.AAColor)
				} else {
					out.SetNRGBA(x, y, opts.DiffColor)
					diff++
				}
				continue
			}
			drawGrayPixel(img1.Pix, pos, opts.AlphaDim, out, x, y)
		}
	}

	return &Result{DiffPixels: diff, Width: width, Height: height, Diff: out}, nil
}

// Decode reads a PNG image
func Decode(r io.Reader) (image.Image, error) {
	img, err := png.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode png: %w", err)
	}
	return img, nil
}

// DecodeBytes reads a PNG image from memory
func DecodeBytes(data []byte) (image.Image, error) {
	return Decode(bytes.NewReader(data))
}

// EncodePNG renders img as PNG bytes
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func toNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	if n, ok := img.(*image.NRGBA); ok && b.Min == (image.Point{}) && n.Stride == 4*b.Dx() {
		return n
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// antialiased checks whether the pixel at (x1, y1) of img sits on an
// anti-aliased edge, using other to confirm the edge exists on both sides.
func antialiased(img *image.NRGBA, x1, y1 int, other *image.NRGBA) bool {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	x0, y0 := max(x1-1, 0), max(y1-1, 0)
	x2, y2 := min(x1+1, width-1), min(y1+1, height-1)
	pos := y1*img.Stride + x1*4

	zeroes := 0
	if x1 == x0 || x1 == x2 || y1 == y0 || y1 == y2 {
		zeroes = 1
	}
	var minDelta, maxDelta float64
	var minX, minY, maxX, maxY int

	for x := x0; x <= x2; x++ {
		for y := y0; y <= y2; y++ {
			if x == x1 && y == y1 {
				continue
			}
			delta := colorDelta(img.Pix, img.Pix, pos, y*img.Stride+x*4, true)
			switch {
			case delta == 0:
				zeroes++
				if zeroes > 2 {
					return false
				}
			case delta < minDelta:
				minDelta, minX, minY = delta, x, y
			case delta > maxDelta:
				maxDelta, maxX, maxY = delta, x, y
			}
		}
	}

	// no darker or no brighter neighbour: not an edge
	if minDelta == 0 || maxDelta == 0 {
		return false
	}

	return (hasManySiblings(img, minX, minY) && hasManySiblings(other, minX, minY)) ||
		(hasManySiblings(img, maxX, maxY) && hasManySiblings(other, maxX, maxY))
}

// hasManySiblings reports whether more than two neighbours share the exact color of (x1, y1)
func hasManySiblings(img *image.NRGBA, x1, y1 int) bool {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	x0, y0 := max(x1-1, 0), max(y1-1, 0)
	x2, y2 := min(x1+1, width-1), min(y1+1, height-1)
	pos := y1*img.Stride + x1*4

	zeroes := 0
	if x1 == x0 || x1 == x2 || y1 == y0 || y1 == y2 {
		zeroes = 1
	}
	for x := x0; x <= x2; x++ {
		for y := y0; y <= y2; y++ {
			if x == x1 && y == y1 {
				continue
			}
			pos2 := y*img.Stride + x*4
			if bytes.Equal(img.Pix[pos:pos+4], img.Pix[pos2:pos2+4]) {
				zeroes++
			}
			if zeroes > 2 {
				return true
			}
		}
	}
	return false
}

// colorDelta returns the signed YIQ distance between the pixels at k and m.
// With yOnly set only the brightness difference is returned.
func colorDelta(pix1, pix2 []uint8, k, m int, yOnly bool) float64 {
	r1, g1, b1, a1 := float64(pix1[k]), float64(pix1[k+1]), float64(pix1[k+2]), float64(pix1[k+3])
	r2, g2, b2, a2 := float64(pix2[m]), float64(pix2[m+1]), float64(pix2[m+2]), float64(pix2[m+3])

	if a1 == a2 && r1 == r2 && g1 == g2 && b1 == b2 {
		return 0
	}

	if a1 < 255 {
		a1 /= 255
		r1, g1, b1 = blend(r1, a1), blend(g1, a1), blend(b1, a1)
	}
	if a2 < 255 {
		a2 /= 255
		r2, g2, b2 = blend(r2, a2), blend(g2, a2), blend(b2, a2)
	}

	y1, y2 := rgb2y(r1, g1, b1), rgb2y(r2, g2, b2)
	y := y1 - y2
	if yOnly {
		return y
	}

	i := rgb2i(r1, g1, b1) - rgb2i(r2, g2, b2)
	q := rgb2q(r1, g1, b1) - rgb2q(r2, g2, b2)
	delta := 0.5053*y*y + 0.299*i*i + 0.1957*q*q

	// the sign encodes whether the pixel got lighter or darker
	if y1 > y2 {
		return -delta
	}
	return delta
}

func drawGrayPixel(pix []uint8, pos int, alpha float64, out *image.NRGBA, x, y int) {
	r, g, b, a := float64(pix[pos]), float64(pix[pos+1]), float64(pix[pos+2]), float64(pix[pos+3])
	gray := min(max(blend(rgb2y(r, g, b), alpha*a/255), 0), 255)
	val := uint8(gray)
	out.SetNRGBA(x, y, color.NRGBA{R: val, G: val, B: val, A: 255})
}

func rgb2y(r, g, b float64) float64 { return r*0.29889531 + g*0.58662247 + b*0.11448223 }
func rgb2i(r, g, b float64) float64 { return r*0.59597799 - g*0.27417610 - b*0.32180189 }
func rgb2q(r, g, b float64) float64 { return r*0.21147017 - g*0.52261711 + b*0.31114694 }

// blend composites c with alpha a over white
func blend(c, a float64) float64 { return 255 + (c-255)*a }

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
