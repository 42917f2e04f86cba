package canvasrenderer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"
	"go.uber.org/zap"

	"github.com/ByLCY/adsmith/binding"
	"github.com/ByLCY/adsmith/fonts"
	"github.com/ByLCY/adsmith/layout"
	"github.com/ByLCY/adsmith/renderer"
)

// FontResolver 按字体族与粗斜体标记解析字体。*fonts.Store 满足该接口。
type FontResolver interface {
	Resolve(family string, bold, italic bool) (*fonts.Font, error)
}

// AssetFetcher 加载远程或本地图片，失败时返回 nil。*assets.Fetcher 满足该接口。
type AssetFetcher interface {
	FetchImage(ctx context.Context, ref string) image.Image
}

// Renderer composites templates with github.com/tdewolff/canvas for glyphs and
// golang.org/x/image/draw for raster layers.
type Renderer struct {
	fonts     FontResolver
	assets    AssetFetcher
	formatter *binding.Formatter
	fit       layout.FitOptions
	logger    *zap.Logger
}

var (
	_ renderer.Renderer = (*Renderer)(nil)
	_ layout.Typesetter = (*fonts.Font)(nil)
)

// Options configures the canvas renderer.
type Options struct {
	Fonts     FontResolver
	Assets    AssetFetcher
	Formatter *binding.Formatter
	Fit       *layout.FitOptions
	Logger    *zap.Logger
}

// NewRenderer creates a renderer. Fonts and Assets may be nil, in which case
// text and fetched-image layers are reported as failed or skipped.
func NewRenderer(opts Options) *Renderer {
	r := &Renderer{
		fonts:     opts.Fonts,
		assets:    opts.Assets,
		formatter: opts.Formatter,
		fit:       layout.DefaultFitOptions(),
		logger:    opts.Logger,
	}
	if opts.Fit != nil {
		r.fit = *opts.Fit
	}
	if r.formatter == nil {
		r.formatter = binding.NewFormatter()
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r
}

// Render composites the record and encodes the canvas as PNG.
func (r *Renderer) Render(ctx context.Context, tpl *layout.Template, record renderer.Record) ([]byte, error) {
	data, _, err := r.RenderWithReport(ctx, tpl, record)
	return data, err
}

// RenderWithReport is Render plus the per-layer report.
func (r *Renderer) RenderWithReport(ctx context.Context, tpl *layout.Template, record renderer.Record) ([]byte, *Report, error) {
	img, report, err := r.Composite(ctx, tpl, record)
	if err != nil {
		return nil, report, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, report, fmt.Errorf("编码 PNG 失败: %w", err)
	}
	return buf.Bytes(), report, nil
}

// Composite 在白色画布上按存储顺序的逆序绘制图层（最后存储的最先绘制）。
// 单个图层的失败只记录在报告中，不会中断合成；只有模板无效或 ctx 取消才返回错误。
func (r *Renderer) Composite(ctx context.Context, tpl *layout.Template, record renderer.Record) (*image.RGBA, *Report, error) {
	if tpl == nil {
		return nil, nil, fmt.Errorf("模板为空")
	}
	width, height, err := tpl.Dimensions()
	if err != nil {
		return nil, nil, err
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, xdraw.Src)

	report := &Report{Width: width, Height: height}
	for i := len(tpl.Layers) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, report, err
		}
		layer := tpl.Layers[i]
		entry := r.paintLayer(ctx, dst, layer, record)
		entry.Index = i
		entry.Type = layer.Kind()
		if entry.Status == StatusFailed {
			r.logger.Warn("layer failed",
				zap.Int("layer", i),
				zap.String("type", string(layer.Kind())),
				zap.String("reason", entry.Reason),
			)
		}
		report.Layers = append(report.Layers, entry)
	}
	return dst, report, nil
}

func (r *Renderer) paintLayer(ctx context.Context, dst *image.RGBA, layer layout.Layer, record renderer.Record) (entry LayerReport) {
	base := layer.Base()
	if !base.IsVisible() {
		return skipped("hidden")
	}
	if !base.Renderable() {
		return skipped("unrenderable: " + base.Problem)
	}
	defer func() {
		if p := recover(); p != nil {
			entry = failed(fmt.Errorf("panic: %v", p))
		}
	}()

	switch l := layer.(type) {
	case *layout.DesignLayer:
		return r.paintDesign(dst, l)
	case *layout.ImageLayer:
		return r.paintImage(ctx, dst, l, record)
	case *layout.PictureLayer:
		return r.paintPicture(dst, l)
	case *layout.TextLayer:
		return r.paintText(dst, l, record)
	case *layout.QRCodeLayer:
		return r.paintQRCode(dst, l, record)
	}
	return failed(fmt.Errorf("unsupported layer %T", layer))
}

// layerTransform 返回 translate(left, top) 后 rotate(angle) 的变换。
func layerTransform(p *layout.Properties) affine {
	rad := p.Angle * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	return affine{cos, -sin, p.Left, sin, cos, p.Top}
}

// drawTransformed 将 src 缩放到 (width*scaleX, height*scaleY) 并按图层变换绘制。
func drawTransformed(dst *image.RGBA, src image.Image, p *layout.Properties) error {
	b := src.Bounds()
	if b.Empty() {
		return errors.New("image has no pixels")
	}
	w, h := p.Size()
	kx := w / float64(b.Dx())
	ky := h / float64(b.Dy())
	l := layerTransform(p)
	minX, minY := float64(b.Min.X), float64(b.Min.Y)
	m := affine{
		l[0] * kx, l[1] * ky, l[2] - l[0]*kx*minX - l[1]*ky*minY,
		l[3] * kx, l[4] * ky, l[5] - l[3]*kx*minX - l[4]*ky*minY,
	}
	xdraw.CatmullRom.Transform(dst, m, src, b, xdraw.Over, nil)
	return nil
}

func toColor(c layout.Color) color.NRGBA {
	return color.NRGBA{R: uint8(c.R), G: uint8(c.G), B: uint8(c.B), A: uint8(c.A)}
}
