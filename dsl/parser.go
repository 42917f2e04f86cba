package dsl

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var (
	exprLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
		{Name: "Template", Pattern: "`(?:\\\\.|[^`\\\\])*`"},
		{Name: "String", Pattern: `"(?:\\.|[^"\\])*"|'(?:\\.|[^'\\])*'`},
		{Name: "Number", Pattern: `\d+(?:\.\d+)?(?:[eE][+-]?\d+)?|\.\d+`},
		{Name: "Ident", Pattern: `[A-Za-z_$][A-Za-z0-9_$]*`},
		{Name: "Operator", Pattern: `===|!==|==|!=|<=|>=|&&|\|\||\?\?|[-+*/%<>!?:.,()\[\]]`},
	})

	exprParser = participle.MustBuild[Expression](
		participle.Lexer(exprLexer),
		participle.Elide("Whitespace"),
		participle.UseLookahead(2),
	)
)

// Expression 是格式表达式的根节点：Cond 或 Cond ? Then : Else。
type Expression struct {
	Pos    lexer.Position `parser:"" json:"-"`
	Cond   *Coalesce      `parser:"@@"`
	Branch *Conditional   `parser:"@@?"`
}

// Conditional is the `? then : else` tail of a ternary.
type Conditional struct {
	Then *Expression `parser:"'?' @@"`
	Else *Expression `parser:"':' @@"`
}

// Coalesce handles `a ?? b`.
type Coalesce struct {
	Head *LogicalOr   `parser:"@@"`
	Tail []*LogicalOr `parser:"( '??' @@ )*"`
}

// LogicalOr handles `a || b`.
type LogicalOr struct {
	Head *LogicalAnd   `parser:"@@"`
	Tail []*LogicalAnd `parser:"( '||' @@ )*"`
}

// LogicalAnd handles `a && b`.
type LogicalAnd struct {
	Head *Equality   `parser:"@@"`
	Tail []*Equality `parser:"( '&&' @@ )*"`
}

// Equality handles `=== !== == !=`.
type Equality struct {
	Head *Relational   `parser:"@@"`
	Tail []*EqualityOp `parser:"@@*"`
}

type EqualityOp struct {
	Op      string      `parser:"@( '===' | '!==' | '==' | '!=' )"`
	Operand *Relational `parser:"@@"`
}

// Relational handles `< <= > >=`.
type Relational struct {
	Head *Additive       `parser:"@@"`
	Tail []*RelationalOp `parser:"@@*"`
}

type RelationalOp struct {
	Op      string    `parser:"@( '<=' | '>=' | '<' | '>' )"`
	Operand *Additive `parser:"@@"`
}

// Additive handles `+ -`.
type Additive struct {
	Head *Multiplicative `parser:"@@"`
	Tail []*AdditiveOp   `parser:"@@*"`
}

type AdditiveOp struct {
	Op      string          `parser:"@( '+' | '-' )"`
	Operand *Multiplicative `parser:"@@"`
}

// Multiplicative handles `* / %`.
type Multiplicative struct {
	Head *Unary              `parser:"@@"`
	Tail []*MultiplicativeOp `parser:"@@*"`
}

type MultiplicativeOp struct {
	Op      string `parser:"@( '*' | '/' | '%' )"`
	Operand *Unary `parser:"@@"`
}

// Unary 前缀运算符按出现顺序记录，求值时从右向左应用。
type Unary struct {
	Ops     []string `parser:"@( '-' | '+' | '!' )*"`
	Operand *Postfix `parser:"@@"`
}

// Postfix is a primary followed by member accesses, method calls and indexes.
type Postfix struct {
	Primary   *Primary    `parser:"@@"`
	Accessors []*Accessor `parser:"@@*"`
}

// Accessor is `.name`, `.name(args)` or `[expr]`.
type Accessor struct {
	Member *Member     `parser:"  @@"`
	Index  *Expression `parser:"| '[' @@ ']'"`
}

// Member is a property read, or a method call when Call is set.
type Member struct {
	Name string    `parser:"'.' @Ident"`
	Call *CallArgs `parser:"@@?"`
}

// CallArgs is a parenthesised argument list.
type CallArgs struct {
	Args []*Expression `parser:"'(' ( @@ ( ',' @@ )* )? ')'"`
}

// Primary literal or reference.
type Primary struct {
	Number   *float64       `parser:"  @Number"`
	String   *StringLiteral `parser:"| @String"`
	Template *Template      `parser:"| @Template"`
	Bool     *Boolean       `parser:"| @( 'true' | 'false' )"`
	Null     bool           `parser:"| @( 'null' | 'undefined' )"`
	Ref      *Reference     `parser:"| @@"`
	Group    *Expression    `parser:"| '(' @@ ')'"`
}

// Reference is an identifier, or a function call when Call is set.
type Reference struct {
	Pos  lexer.Position `parser:"" json:"-"`
	Name string         `parser:"@Ident"`
	Call *CallArgs      `parser:"@@?"`
}

// Boolean captures true/false.
type Boolean bool

// Capture implements participle.Capture.
func (b *Boolean) Capture(values []string) error {
	*b = Boolean(values[0] == "true")
	return nil
}

// StringLiteral unquotes '...' and "..." strings on capture.
type StringLiteral string

// Capture implements participle.Capture.
func (s *StringLiteral) Capture(values []string) error {
	if len(values) == 0 {
		return fmt.Errorf("string literal capture requires value")
	}
	raw := values[0]
	if len(raw) < 2 {
		return fmt.Errorf("invalid string literal %s", raw)
	}
	val, err := unescape(raw[1 : len(raw)-1])
	if err != nil {
		return err
	}
	*s = StringLiteral(val)
	return nil
}

// Template 是反引号模板字符串，文本片段与 ${...} 表达式交替出现。
type Template struct {
	Parts []*TemplatePart
}

// TemplatePart holds either literal text or an embedded expression.
type TemplatePart struct {
	Text string
	Expr *Expression
}

// Capture implements participle.Capture; embedded expressions are parsed eagerly.
func (t *Template) Capture(values []string) error {
	if len(values) == 0 {
		return fmt.Errorf("template literal capture requires value")
	}
	raw := values[0]
	if len(raw) < 2 {
		return fmt.Errorf("invalid template literal %s", raw)
	}
	parts, err := parseTemplate(raw[1 : len(raw)-1])
	if err != nil {
		return err
	}
	t.Parts = parts
	return nil
}

// Parse parses a format expression from an io.Reader.
func Parse(r io.Reader) (*Expression, error) {
	return exprParser.Parse("", r)
}

// ParseString parses a format expression.
func ParseString(input string) (*Expression, error) {
	return exprParser.ParseString("", input)
}

func parseTemplate(body string) ([]*TemplatePart, error) {
	var (
		parts []*TemplatePart
		text  strings.Builder
	)
	flush := func() {
		if text.Len() > 0 {
			parts = append(parts, &TemplatePart{Text: text.String()})
			text.Reset()
		}
	}
	for i := 0; i < len(body); {
		switch {
		case body[i] == '\\' && i+1 < len(body):
			r, size := utf8.DecodeRuneInString(body[i+1:])
			text.WriteString(escapeRune(r))
			i += 1 + size
		case strings.HasPrefix(body[i:], "${"):
			end, err := matchBrace(body, i+2)
			if err != nil {
				return nil, err
			}
			inner := body[i+2 : end]
			expr, err := ParseString(inner)
			if err != nil {
				return nil, fmt.Errorf("template expression %q: %w", inner, err)
			}
			flush()
			parts = append(parts, &TemplatePart{Expr: expr})
			i = end + 1
		default:
			r, size := utf8.DecodeRuneInString(body[i:])
			text.WriteRune(r)
			i += size
		}
	}
	flush()
	return parts, nil
}

// matchBrace 返回与 start 之前的 "${" 配对的 "}" 下标，跳过引号内的内容。
func matchBrace(body string, start int) (int, error) {
	depth := 0
	var quote byte
	for i := start; i < len(body); i++ {
		c := body[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '{':
			depth++
		case '}':
			if depth == 0 {
				return i, nil
			}
			depth--
		}
	}
	return 0, fmt.Errorf("unterminated ${ in template literal")
}

func unescape(s string) (string, error) {
	if !strings.ContainsRune(s, '\\') {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		if s[i] != '\\' {
			r, size := utf8.DecodeRuneInString(s[i:])
			b.WriteRune(r)
			i += size
			continue
		}
		if i+1 >= len(s) {
			return "", fmt.Errorf("dangling escape in %q", s)
		}
		if s[i+1] == 'u' && i+6 <= len(s) {
			code, err := strconv.ParseUint(s[i+2:i+6], 16, 32)
			if err != nil {
				return "", fmt.Errorf("invalid unicode escape in %q", s)
			}
			b.WriteRune(rune(code))
			i += 6
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i+1:])
		b.WriteString(escapeRune(r))
		i += 1 + size
	}
	return b.String(), nil
}

func escapeRune(r rune) string {
	switch r {
	case 'n':
		return "\n"
	case 't':
		return "\t"
	case 'r':
		return "\r"
	default:
		return string(r)
	}
}
