package layout

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidTemplate 表示模板无法加载（未知画布比例、未知图层类型或 JSON 格式错误）。
var ErrInvalidTemplate = errors.New("invalid template")

// BaseWidth 是所有画布比例共用的像素宽度。
const BaseWidth = 1000

// DesignSize 是画布比例，例如 "4:5"。
type DesignSize string

const (
	Square    DesignSize = "1:1"
	Portrait  DesignSize = "4:5"
	Story     DesignSize = "9:16"
	Landscape DesignSize = "16:9"
)

// Dimensions 返回画布像素尺寸：宽度固定 1000，高度按比例取整。
func (d DesignSize) Dimensions() (int, int, error) {
	switch d {
	case Square, Portrait, Story, Landscape:
	default:
		return 0, 0, fmt.Errorf("%w: unknown design size %q", ErrInvalidTemplate, string(d))
	}
	w, h, _ := strings.Cut(string(d), ":")
	rw, _ := strconv.Atoi(w)
	rh, _ := strconv.Atoi(h)
	return BaseWidth, int(math.Round(BaseWidth * float64(rh) / float64(rw))), nil
}

// LayerType 是图层联合类型的标签。
type LayerType string

const (
	LayerDesign  LayerType = "design"
	LayerImage   LayerType = "image"
	LayerPicture LayerType = "picture"
	LayerText    LayerType = "text"
	LayerQRCode  LayerType = "qrcode"
)

// Layer 是模板中的一个图层。具体类型为 *DesignLayer、*ImageLayer、
// *PictureLayer、*TextLayer 或 *QRCodeLayer。
type Layer interface {
	Kind() LayerType
	Base() *LayerBase
}

// LayerBase 保存所有图层共有的字段。
type LayerBase struct {
	Type       LayerType   `json:"type"`
	Name       string      `json:"name,omitempty"`
	Visible    *bool       `json:"visible,omitempty"`
	Properties *Properties `json:"properties,omitempty" validate:"-"`

	// Problem 非空表示图层在加载时校验失败，合成时会被跳过。
	Problem string `json:"-"`
}

// Base implements Layer.
func (b *LayerBase) Base() *LayerBase { return b }

// IsVisible reports whether the layer should be painted. Missing means visible.
func (b *LayerBase) IsVisible() bool { return b.Visible == nil || *b.Visible }

// Renderable reports whether the layer passed load-time validation.
func (b *LayerBase) Renderable() bool { return b.Problem == "" }

// Properties 是图层的变换与文本样式，坐标单位为画布像素。
type Properties struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width" validate:"gt=0"`
	Height float64 `json:"height" validate:"gt=0"`
	ScaleX float64 `json:"scaleX,omitempty" validate:"gte=0"`
	ScaleY float64 `json:"scaleY,omitempty" validate:"gte=0"`
	Angle  float64 `json:"angle,omitempty"`

	FontFamily string `json:"fontFamily,omitempty"`
	BoldFlag   *bool  `json:"bold,omitempty"`
	ItalicFlag *bool  `json:"italic,omitempty"`
	Color      string `json:"color,omitempty"`
	Underline  bool   `json:"underline,omitempty"`
	TextAlign  string `json:"textAlign,omitempty" validate:"omitempty,oneof=left center right justify start end"`

	// fabric.js 风格的别名，仅在 bold/italic/color 缺省时生效。
	FontWeight FontWeight `json:"fontWeight,omitempty"`
	FontStyle  string     `json:"fontStyle,omitempty" validate:"omitempty,oneof=normal italic oblique"`
	Fill       string     `json:"fill,omitempty"`
}

// Scale 返回缩放系数，缺省（0）视为 1。
func (p *Properties) Scale() (float64, float64) {
	sx, sy := p.ScaleX, p.ScaleY
	if sx == 0 {
		sx = 1
	}
	if sy == 0 {
		sy = 1
	}
	return sx, sy
}

// Size 返回缩放后的绘制尺寸。
func (p *Properties) Size() (float64, float64) {
	sx, sy := p.Scale()
	return p.Width * sx, p.Height * sy
}

// Bold reports whether a bold face is requested: bold first, then fontWeight.
func (p *Properties) Bold() bool {
	if p.BoldFlag != nil {
		return *p.BoldFlag
	}
	return p.FontWeight.Bold()
}

// Italic reports whether an italic face is requested: italic first, then fontStyle.
func (p *Properties) Italic() bool {
	if p.ItalicFlag != nil {
		return *p.ItalicFlag
	}
	style := strings.ToLower(p.FontStyle)
	return style == "italic" || style == "oblique"
}

// TextColor 返回文本颜色：color 优先，其次 fill。
func (p *Properties) TextColor() string {
	if p.Color != "" {
		return p.Color
	}
	return p.Fill
}

// FontWeight 接受 "bold"/"normal" 字符串或 100-900 数值。
type FontWeight string

// UnmarshalJSON implements json.Unmarshaler.
func (w *FontWeight) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*w = FontWeight(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("fontWeight must be a string or number: %w", err)
	}
	*w = FontWeight(n.String())
	return nil
}

// Bold reports whether the weight is bold (bold, bolder or >= 600).
func (w FontWeight) Bold() bool {
	s := strings.ToLower(strings.TrimSpace(string(w)))
	switch s {
	case "bold", "bolder":
		return true
	}
	n, err := strconv.Atoi(s)
	return err == nil && n >= 600
}

// DesignLayer 是铺满整个画布的背景图，忽略自身变换。
type DesignLayer struct {
	LayerBase
	Src string `json:"src" validate:"required"`
}

// ImageLayer 绘制记录中第 ImageIndex 张图片。
type ImageLayer struct {
	LayerBase
	ImageIndex int `json:"imageIndex" validate:"gte=0"`
}

// PictureLayer 绘制内联 data URI 图片。
type PictureLayer struct {
	LayerBase
	Src string `json:"src" validate:"required"`
}

// TextLayer 绘制记录中 Variable 字段经 Format 格式化后的文本。
// 图层上的 bold/italic/color/underline 优先于 properties 中的同名字段。
type TextLayer struct {
	LayerBase
	Variable  string `json:"variable" validate:"required"`
	Format    string `json:"format,omitempty"`
	Bold      *bool  `json:"bold,omitempty"`
	Italic    *bool  `json:"italic,omitempty"`
	Color     string `json:"color,omitempty"`
	Underline *bool  `json:"underline,omitempty"`
}

// IsBold reports whether the layer asks for a bold face.
func (l *TextLayer) IsBold() bool {
	if l.Bold != nil {
		return *l.Bold
	}
	return l.Properties != nil && l.Properties.Bold()
}

// IsItalic reports whether the layer asks for an italic face.
func (l *TextLayer) IsItalic() bool {
	if l.Italic != nil {
		return *l.Italic
	}
	return l.Properties != nil && l.Properties.Italic()
}

// IsUnderlined reports whether each line gets an underline.
func (l *TextLayer) IsUnderlined() bool {
	if l.Underline != nil {
		return *l.Underline
	}
	return l.Properties != nil && l.Properties.Underline
}

// TextColor 返回文本颜色字符串，空串表示默认黑色。
func (l *TextLayer) TextColor() string {
	if l.Color != "" {
		return l.Color
	}
	if l.Properties == nil {
		return ""
	}
	return l.Properties.TextColor()
}

// QRCodeLayer 将记录字段编码为二维码。
type QRCodeLayer struct {
	LayerBase
	Variable string `json:"variable" validate:"required"`
}

func (*DesignLayer) Kind() LayerType  { return LayerDesign }
func (*ImageLayer) Kind() LayerType   { return LayerImage }
func (*PictureLayer) Kind() LayerType { return LayerPicture }
func (*TextLayer) Kind() LayerType    { return LayerText }
func (*QRCodeLayer) Kind() LayerType  { return LayerQRCode }

// Template 是一个设计模板：画布比例加上按前到后顺序存储的图层。
type Template struct {
	DesignSize DesignSize `json:"designSize"`
	Layers     []Layer    `json:"layers"`
}

// LayerProblem 描述一个加载时校验失败的图层。
type LayerProblem struct {
	Index   int       `json:"index"`
	Type    LayerType `json:"type"`
	Message string    `json:"message"`
}

// Dimensions returns the canvas size in pixels.
func (t *Template) Dimensions() (int, int, error) {
	return t.DesignSize.Dimensions()
}

// Problems 列出所有无法渲染的图层。
func (t *Template) Problems() []LayerProblem {
	var out []LayerProblem
	for i, l := range t.Layers {
		if b := l.Base(); !b.Renderable() {
			out = append(out, LayerProblem{Index: i, Type: l.Kind(), Message: b.Problem})
		}
	}
	return out
}

// Strict 在存在无法渲染的图层时返回错误，用于保存模板前的校验。
func (t *Template) Strict() error {
	problems := t.Problems()
	if len(problems) == 0 {
		return nil
	}
	msgs := make([]string, len(problems))
	for i, p := range problems {
		msgs[i] = fmt.Sprintf("layer %d (%s): %s", p.Index, p.Type, p.Message)
	}
	return fmt.Errorf("%w: %s", ErrInvalidTemplate, strings.Join(msgs, "; "))
}

// UnmarshalJSON 按 type 标签解码图层并在加载时校验。
func (t *Template) UnmarshalJSON(data []byte) error {
	var raw struct {
		DesignSize DesignSize        `json:"designSize"`
		Layers     []json.RawMessage `json:"layers"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	if _, _, err := raw.DesignSize.Dimensions(); err != nil {
		return err
	}
	layers := make([]Layer, 0, len(raw.Layers))
	for i, msg := range raw.Layers {
		layer, err := decodeLayer(msg)
		if err != nil {
			return fmt.Errorf("%w: layer %d: %v", ErrInvalidTemplate, i, err)
		}
		layers = append(layers, layer)
	}
	t.DesignSize = raw.DesignSize
	t.Layers = layers
	return nil
}

// ParseTemplate 解析模板 JSON。
func ParseTemplate(data []byte) (*Template, error) {
	var t Template
	if err := json.Unmarshal(data, &t); err != nil {
		if errors.Is(err, ErrInvalidTemplate) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	return &t, nil
}

func decodeLayer(data json.RawMessage) (Layer, error) {
	var head struct {
		Type LayerType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	var layer Layer
	switch head.Type {
	case LayerDesign:
		layer = &DesignLayer{}
	case LayerImage:
		layer = &ImageLayer{}
	case LayerPicture:
		layer = &PictureLayer{}
	case LayerText:
		layer = &TextLayer{}
	case LayerQRCode:
		layer = &QRCodeLayer{}
	default:
		return nil, fmt.Errorf("unknown layer type %q", head.Type)
	}
	if err := json.Unmarshal(data, layer); err != nil {
		return nil, err
	}
	layer.Base().Type = head.Type
	layer.Base().Problem = checkLayer(layer)
	return layer, nil
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func layerValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// checkLayer 返回图层的校验问题，空串表示可以渲染。
func checkLayer(layer Layer) string {
	base := layer.Base()
	if err := layerValidator().Struct(layer); err != nil {
		return describeValidation(err)
	}
	if layer.Kind() == LayerDesign {
		return ""
	}
	if base.Properties == nil {
		return "missing properties"
	}
	if err := layerValidator().Struct(base.Properties); err != nil {
		return describeValidation(err)
	}
	if layer.Kind() == LayerText && strings.TrimSpace(base.Properties.FontFamily) == "" {
		return "properties.fontFamily is required"
	}
	return ""
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
