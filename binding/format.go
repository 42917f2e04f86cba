package binding

import (
	"strings"
	"sync"

	"golang.org/x/text/language"

	"github.com/ByLCY/adsmith/dsl"
)

// DefaultLocale is used by toLocaleString() when no locale argument is given.
var DefaultLocale = language.MustParse("en-ZA")

// Formatter 编译并缓存格式表达式。编译结果只读，可被并发的渲染共享。
type Formatter struct {
	locale language.Tag
	cache  sync.Map // format -> compiled
}

type compiled struct {
	expr *dsl.Expression
	err  error
}

// FormatterOption configures a Formatter.
type FormatterOption func(*Formatter)

// WithLocale sets the default locale for toLocaleString().
func WithLocale(tag language.Tag) FormatterOption {
	return func(f *Formatter) { f.locale = tag }
}

// NewFormatter creates a Formatter.
func NewFormatter(opts ...FormatterOption) *Formatter {
	f := &Formatter{locale: DefaultLocale}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

var defaultFormatter = NewFormatter()

// Format 使用默认 Formatter 格式化变量值。
func Format(value any, variable, format string) string {
	return defaultFormatter.Format(value, variable, format)
}

// Format evaluates format with variable bound to value. An empty format, or one
// that fails to compile or evaluate, yields the plain string form of value.
func (f *Formatter) Format(value any, variable, format string) string {
	if strings.TrimSpace(format) == "" {
		return Stringify(value)
	}
	out, err := f.Evaluate(format, bindVariable(variable, value))
	if err != nil {
		return Stringify(value)
	}
	return Stringify(out)
}

// Evaluate compiles (cached) and evaluates format against scope.
func (f *Formatter) Evaluate(format string, scope Scope) (any, error) {
	expr, err := f.compile(format)
	if err != nil {
		return nil, err
	}
	ev := &evaluator{scope: scope, locale: f.locale}
	return ev.expr(expr)
}

func (f *Formatter) compile(format string) (*dsl.Expression, error) {
	if c, ok := f.cache.Load(format); ok {
		entry := c.(compiled)
		return entry.expr, entry.err
	}
	expr, err := dsl.ParseString(format)
	f.cache.Store(format, compiled{expr: expr, err: err})
	return expr, err
}

// bindVariable 绑定变量名；路径形式（如 "agent.name"）同时绑定最后一段。
func bindVariable(variable string, value any) Scope {
	scope := Scope{}
	variable = strings.TrimSpace(variable)
	if variable == "" {
		return scope
	}
	scope[variable] = value
	if i := strings.LastIndexAny(variable, ".]"); i != -1 && i+1 < len(variable) {
		scope[variable[i+1:]] = value
	}
	return scope
}
