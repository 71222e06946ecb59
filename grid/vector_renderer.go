package grid

import (
	"image/color"
	"io"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/svg"
)

// canvasRenderer is the subset of the canvas renderers used for slices
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderSVG writes the slice heatmap as SVG. One voxel is CellSize units.
func (r *SliceRenderer) RenderSVG(w io.Writer) error {
	if _, _, err := r.Size(); err != nil {
		return err
	}
	cs := float64(r.cellSize())
	pad := float64(r.Padding)
	width := float64(r.Slice.Width)*cs + 2*pad
	height := float64(r.Slice.Height)*cs + 2*pad

	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, cs, pad, width, height)
	return svgRenderer.Close()
}

func (r *SliceRenderer) renderToCanvas(renderer canvasRenderer, cs, pad, width, height float64) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	bgStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	gridStyle := canvas.DefaultStyle
	gridStyle.Fill = canvas.Paint{Color: color.RGBA{230, 230, 230, 255}}
	gridStyle.Stroke = canvas.Paint{Color: canvas.Gray}
	gridStyle.StrokeWidth = 0.5
	grid := canvas.Rectangle(float64(r.Slice.Width)*cs, float64(r.Slice.Height)*cs).Translate(pad, pad)
	renderer.RenderPath(grid, gridStyle, canvas.Identity)

	// canvas has a bottom-left origin, so V maps directly onto y
	for _, c := range r.Slice.Cells {
		style := canvas.DefaultStyle
		style.Fill = canvas.Paint{Color: DispersionColor(c.Point.PhaseDispersion)}
		style.Stroke = canvas.Paint{Color: canvas.Transparent}
		if r.Threshold > 0 && c.Point.PhaseDispersion > r.Threshold {
			style.Stroke = canvas.Paint{Color: canvas.Black}
			style.StrokeWidth = cs / 8
		}

		cell := canvas.Rectangle(cs, cs).Translate(pad+float64(c.U)*cs, pad+float64(c.V)*cs)
		renderer.RenderPath(cell, style, canvas.Identity)
	}
}
