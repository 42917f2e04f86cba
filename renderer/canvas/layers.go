package canvasrenderer

import (
	"context"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/disintegration/imaging"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	xdraw "golang.org/x/image/draw"

	"github.com/ByLCY/adsmith/assets"
	"github.com/ByLCY/adsmith/binding"
	"github.com/ByLCY/adsmith/layout"
	"github.com/ByLCY/adsmith/renderer"
)

// paintDesign 将背景图拉伸铺满整个画布，忽略图层自身的变换。
func (r *Renderer) paintDesign(dst *image.RGBA, l *layout.DesignLayer) LayerReport {
	img := assets.DecodeImage(assets.DecodeDataURI(l.Src))
	if img == nil {
		return skipped("design source is not a decodable data URI")
	}
	b := dst.Bounds()
	filled := imaging.Resize(img, b.Dx(), b.Dy(), imaging.Lanczos)
	xdraw.Draw(dst, b, filled, image.Point{}, xdraw.Over)
	return painted()
}

// paintImage 绘制记录中的第 imageIndex 张图片，越界时取最后一张。
func (r *Renderer) paintImage(ctx context.Context, dst *image.RGBA, l *layout.ImageLayer, record renderer.Record) LayerReport {
	images := recordImages(record)
	if len(images) == 0 {
		return skipped("record has no images")
	}
	idx := l.ImageIndex
	if idx >= len(images) {
		idx = len(images) - 1
	}
	if r.assets == nil {
		return skipped("no asset fetcher configured")
	}
	img := r.assets.FetchImage(ctx, images[idx])
	// 图片不可达只跳过本图层，不使整条记录失败。
	if img == nil {
		return skipped(fmt.Sprintf("image %q unavailable", images[idx]))
	}
	if err := drawTransformed(dst, img, l.Properties); err != nil {
		return failed(err)
	}
	entry := painted()
	entry.Source = images[idx]
	return entry
}

// paintPicture 绘制内联 data URI 图片。
func (r *Renderer) paintPicture(dst *image.RGBA, l *layout.PictureLayer) LayerReport {
	img := assets.DecodeImage(assets.DecodeDataURI(l.Src))
	if img == nil {
		return skipped("picture source is not a decodable data URI")
	}
	if err := drawTransformed(dst, img, l.Properties); err != nil {
		return failed(err)
	}
	return painted()
}

// paintQRCode 把记录字段编码为二维码并按图层变换绘制。
func (r *Renderer) paintQRCode(dst *image.RGBA, l *layout.QRCodeLayer, record renderer.Record) LayerReport {
	value, ok := binding.Lookup(record, l.Variable)
	if !ok || !binding.Truthy(value) {
		return skipped(fmt.Sprintf("variable %q absent", l.Variable))
	}
	content := binding.Stringify(value)
	code, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return failed(fmt.Errorf("encode qr code: %w", err))
	}
	w, h := l.Properties.Size()
	side := int(math.Ceil(math.Max(w, h)))
	if err := drawTransformed(dst, code.Image(side), l.Properties); err != nil {
		return failed(err)
	}
	entry := painted()
	entry.Text = content
	return entry
}

// paintText 绑定变量、格式化、拟合字号后以字形路径绘制，可选下划线。
func (r *Renderer) paintText(dst *image.RGBA, l *layout.TextLayer, record renderer.Record) LayerReport {
	value, ok := binding.Lookup(record, l.Variable)
	if !ok || !binding.Truthy(value) {
		return skipped(fmt.Sprintf("variable %q absent", l.Variable))
	}
	text := r.formatter.Format(value, l.Variable, l.Format)
	if strings.TrimSpace(text) == "" {
		return skipped("formatted text is empty")
	}

	props := l.Properties
	if r.fonts == nil {
		return failed(fmt.Errorf("no font resolver configured"))
	}
	font, err := r.fonts.Resolve(props.FontFamily, l.IsBold(), l.IsItalic())
	if err != nil {
		return failed(err)
	}
	col, err := layout.ParseColor(l.TextColor())
	if err != nil {
		r.logger.Debug("invalid text color, using black")
		col = layout.Black
	}

	boxW, boxH := props.Size()
	block := layout.FitWithOptions(font, text, boxW, boxH, r.fit)

	b := dst.Bounds()
	height := float64(b.Dy())
	c := canvas.New(float64(b.Dx()), height)
	cctx := canvas.NewContext(c)
	painter := newGlyphPainter(cctx, height, layerTransform(props))
	fill := toColor(col)
	underline := l.IsUnderlined()
	for i, line := range block.Lines {
		x := layout.AlignOffset(props.TextAlign, boxW, line.Width)
		baseline := block.Baseline(i, boxH)
		outline, err := font.Outline(line.Content, x, baseline, block.FontSize)
		if err != nil {
			return failed(err)
		}
		painter.Fill(outline, fill)
		if underline {
			thickness := math.Max(1, block.FontSize*0.05)
			painter.Underline(x, baseline+block.Descent*0.5, line.Width, thickness, fill)
		}
	}
	glyphs := rasterizer.Draw(c, canvas.DPMM(1.0), canvas.DefaultColorSpace)
	xdraw.Draw(dst, b, glyphs, glyphs.Bounds().Min, xdraw.Over)

	entry := painted()
	entry.Text = text
	entry.Font = font.Family + " " + string(font.Variant)
	entry.Block = &block
	return entry
}

// recordImages 读取记录中的 images 字段，兼容 []string 与 []any。
func recordImages(record renderer.Record) []string {
	raw, ok := binding.Lookup(record, "images")
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
