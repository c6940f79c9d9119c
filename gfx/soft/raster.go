// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package soft

import (
	"image"
	"image/color"

	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"golang.org/x/image/vector"

	"github.com/devblok/hellotriangle/model"
)

// draw rasterizes a triangle list into dst.
func (ps *PipelineState) draw(dst *image.RGBA, vp Viewport, vertices []model.Vertex) error {
	if len(vertices)%3 != 0 {
		return errors.Errorf("triangle list of %d vertices", len(vertices))
	}
	for i := 0; i < len(vertices); i += 3 {
		var tri [3]model.Vertex
		for j := range tri {
			tri[j] = ps.vs(vertices[i+j])
		}
		ps.rasterize(dst, vp, tri)
	}
	return nil
}

func (ps *PipelineState) rasterize(dst *image.RGBA, vp Viewport, tri [3]model.Vertex) {
	var screen [3]glm.Vec2
	for i, v := range tri {
		screen[i] = glm.Vec2{
			vp.TopLeftX + (v.Pos.X()+1)*0.5*vp.Width,
			vp.TopLeftY + (1-v.Pos.Y())*0.5*vp.Height,
		}
	}

	area := edge(screen[0], screen[1], screen[2])
	switch {
	case area == 0:
		return
	case ps.cull == CullBack && area < 0:
		return
	case ps.cull == CullFront && area > 0:
		return
	}

	bounds := dst.Bounds()
	r := vector.NewRasterizer(bounds.Dx(), bounds.Dy())
	r.MoveTo(screen[0].X(), screen[0].Y())
	r.LineTo(screen[1].X(), screen[1].Y())
	r.LineTo(screen[2].X(), screen[2].Y())
	r.ClosePath()

	r.Draw(dst, bounds, &barycentric{
		screen: screen,
		tri:    tri,
		area:   area,
		ps:     ps.ps,
		bounds: bounds,
	}, image.Point{})
}

// edge is twice the signed area of abc, positive when clockwise on screen.
func edge(a, b, c glm.Vec2) float32 {
	return (b.X()-a.X())*(c.Y()-a.Y()) - (b.Y()-a.Y())*(c.X()-a.X())
}

// barycentric is an image whose pixels are the pixel shader output of
// the vertex data interpolated at the pixel center.
type barycentric struct {
	screen [3]glm.Vec2
	tri    [3]model.Vertex
	area   float32
	ps     PixelShader
	bounds image.Rectangle
}

func (b *barycentric) ColorModel() color.Model {
	return color.NRGBAModel
}

func (b *barycentric) Bounds() image.Rectangle {
	return b.bounds
}

func (b *barycentric) At(x, y int) color.Color {
	p := glm.Vec2{float32(x) + 0.5, float32(y) + 0.5}
	w0 := glm.Clamp(edge(b.screen[1], b.screen[2], p)/b.area, 0, 1)
	w1 := glm.Clamp(edge(b.screen[2], b.screen[0], p)/b.area, 0, 1)
	w2 := glm.Clamp(1-w0-w1, 0, 1)

	v := model.Vertex{
		Pos:   b.tri[0].Pos.Mul(w0).Add(b.tri[1].Pos.Mul(w1)).Add(b.tri[2].Pos.Mul(w2)),
		Color: b.tri[0].Color.Mul(w0).Add(b.tri[1].Color.Mul(w1)).Add(b.tri[2].Color.Mul(w2)),
	}
	return toRGBA(b.ps(v))
}
