package grid

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	defaultCellSize = 4
	legendHeight    = 24
	maxCellSize     = 256
	maxPadding      = 1024
)

// MaxRenderPixels bounds the pixel area of a rendered slice.
const MaxRenderPixels = 1 << 25

// SliceRenderer draws a phase dispersion heatmap of one grid slice.
// Dispersion is mapped linearly from 0 (blue) to π (red); cells above
// Threshold get a black outline when the cell is large enough to show one.
type SliceRenderer struct {
	Slice     *Slice
	CellSize  int     // Pixels per voxel
	Padding   int     // Padding around the grid
	Threshold float64 // Flag threshold in radians; 0 disables outlines
}

// NewSliceRenderer creates a renderer with default settings
func NewSliceRenderer(s *Slice) *SliceRenderer {
	return &SliceRenderer{
		Slice:     s,
		CellSize:  defaultCellSize,
		Padding:   8,
		Threshold: DegToRad(DefaultDispersionThresholdDeg),
	}
}

// DispersionColor maps a dispersion in radians onto a blue-to-red ramp
func DispersionColor(d float64) color.RGBA {
	t := d / math.Pi
	if t < 0 || math.IsNaN(t) {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return color.RGBA{
		R: uint8(math.Round(255 * t)),
		G: uint8(math.Round(64 * (1 - math.Abs(2*t-1)))),
		B: uint8(math.Round(255 * (1 - t))),
		A: 255,
	}
}

// Size returns the pixel dimensions of the rendered slice. Slices whose
// image would exceed MaxRenderPixels yield ErrTooLarge.
func (r *SliceRenderer) Size() (width, height int, err error) {
	if r.Slice == nil {
		return 0, 0, fmt.Errorf("render slice: nil slice")
	}
	cs := r.cellSize()
	w, h := r.Slice.Width, r.Slice.Height
	if w < 0 || h < 0 || r.Padding < 0 {
		return 0, 0, fmt.Errorf("render slice: negative size %dx%d padding %d", w, h, r.Padding)
	}
	if w > MaxGridDim || h > MaxGridDim || cs > maxCellSize || r.Padding > maxPadding {
		return 0, 0, fmt.Errorf("%w: %dx%d cells at %dpx", ErrTooLarge, w, h, cs)
	}
	width = w*cs + 2*r.Padding
	height = h*cs + 2*r.Padding + legendHeight
	if width*height > MaxRenderPixels {
		return 0, 0, fmt.Errorf("%w: %dx%d pixels exceeds %d", ErrTooLarge, width, height, MaxRenderPixels)
	}
	return width, height, nil
}

func (r *SliceRenderer) cellSize() int {
	if r.CellSize <= 0 {
		return defaultCellSize
	}
	return r.CellSize
}

// Render draws the slice onto a new RGBA image
func (r *SliceRenderer) Render() (*image.RGBA, error) {
	width, height, err := r.Size()
	if err != nil {
		return nil, err
	}
	cs := r.cellSize()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	white := color.RGBA{255, 255, 255, 255}
	empty := color.RGBA{230, 230, 230, 255}
	black := color.RGBA{0, 0, 0, 255}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, white)
		}
	}

	// Grid area background marks voxels that received no merged point
	for y := 0; y < r.Slice.Height*cs; y++ {
		for x := 0; x < r.Slice.Width*cs; x++ {
			img.Set(r.Padding+x, r.Padding+y, empty)
		}
	}

	for _, c := range r.Slice.Cells {
		x0 := r.Padding + c.U*cs
		// V grows upwards
		y0 := r.Padding + (r.Slice.Height-1-c.V)*cs
		fill := DispersionColor(c.Point.PhaseDispersion)
		flagged := r.Threshold > 0 && c.Point.PhaseDispersion > r.Threshold && cs >= 3

		for dy := 0; dy < cs; dy++ {
			for dx := 0; dx < cs; dx++ {
				edge := dx == 0 || dy == 0 || dx == cs-1 || dy == cs-1
				if flagged && edge {
					img.Set(x0+dx, y0+dy, black)
				} else {
					img.Set(x0+dx, y0+dy, fill)
				}
			}
		}
	}

	legend := fmt.Sprintf("%s=%d  cells=%d  max=%.1fdeg",
		r.Slice.Axis, r.Slice.K, len(r.Slice.Cells), r.Slice.MaxDispersion()*180/math.Pi)
	drawText(img, r.Padding, height-8, legend, black)

	return img, nil
}

// SavePNG renders the slice and writes it to path
func (r *SliceRenderer) SavePNG(path string) error {
	img, err := r.Render()
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encoding PNG: %w", err)
	}
	return nil
}

// drawText renders text onto an image at the specified baseline position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
