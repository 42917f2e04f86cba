package canvasrenderer

import (
	"image/color"

	"github.com/tdewolff/canvas"
	"golang.org/x/image/math/f64"

	"github.com/ByLCY/adsmith/fonts"
)

// affine 以 y 轴向下的画布像素坐标表示仿射变换：
// x' = m[0]*x + m[1]*y + m[2]，y' = m[3]*x + m[4]*y + m[5]。
type affine = f64.Aff3

func apply(m affine, p fonts.Point) fonts.Point {
	return fonts.Point{
		X: m[0]*p.X + m[1]*p.Y + m[2],
		Y: m[3]*p.X + m[4]*p.Y + m[5],
	}
}

// glyphPainter 把字形轮廓回放到 tdewolff canvas 上。canvas 使用 y 轴向上的
// 默认坐标系，因此每个点在变换后都要按画布高度翻转。
type glyphPainter struct {
	ctx    *canvas.Context
	height float64
	m      affine
}

func newGlyphPainter(ctx *canvas.Context, height float64, m affine) *glyphPainter {
	return &glyphPainter{ctx: ctx, height: height, m: m}
}

func (g *glyphPainter) point(p fonts.Point) (float64, float64) {
	q := apply(g.m, p)
	return q.X, g.height - q.Y
}

// Path 将轮廓命令逐条转换为 canvas.Path，MoveTo/LineTo/QuadTo/CubeTo/Close 保持各自语义。
func (g *glyphPainter) Path(outline fonts.Outline) *canvas.Path {
	p := &canvas.Path{}
	for _, cmd := range outline {
		switch cmd.Op {
		case fonts.MoveTo:
			x, y := g.point(cmd.Points[0])
			p.MoveTo(x, y)
		case fonts.LineTo:
			x, y := g.point(cmd.Points[0])
			p.LineTo(x, y)
		case fonts.QuadTo:
			cx, cy := g.point(cmd.Points[0])
			x, y := g.point(cmd.Points[1])
			p.QuadTo(cx, cy, x, y)
		case fonts.CubeTo:
			c1x, c1y := g.point(cmd.Points[0])
			c2x, c2y := g.point(cmd.Points[1])
			x, y := g.point(cmd.Points[2])
			p.CubeTo(c1x, c1y, c2x, c2y, x, y)
		case fonts.Close:
			p.Close()
		}
	}
	return p
}

// Fill 填充一段轮廓。
func (g *glyphPainter) Fill(outline fonts.Outline, col color.Color) {
	if len(outline) == 0 {
		return
	}
	g.ctx.SetFillColor(col)
	g.ctx.SetStrokeColor(canvas.Transparent)
	g.ctx.DrawPath(0, 0, g.Path(outline))
}

// Underline 绘制以 y 为中心线、宽 width、粗 thickness 的下划线。
func (g *glyphPainter) Underline(x, y, width, thickness float64, col color.Color) {
	if width <= 0 {
		return
	}
	half := thickness / 2
	g.Fill(fonts.Outline{
		{Op: fonts.MoveTo, Points: [3]fonts.Point{{X: x, Y: y - half}}},
		{Op: fonts.LineTo, Points: [3]fonts.Point{{X: x + width, Y: y - half}}},
		{Op: fonts.LineTo, Points: [3]fonts.Point{{X: x + width, Y: y + half}}},
		{Op: fonts.LineTo, Points: [3]fonts.Point{{X: x, Y: y + half}}},
		{Op: fonts.Close},
	}, col)
}
