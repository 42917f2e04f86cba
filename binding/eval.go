package binding

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/ByLCY/adsmith/dsl"
)

// Scope 是表达式中可见的变量，除此之外只有内置函数可用。
type Scope map[string]any

// ErrUndefined is returned when an expression references an unbound name.
var ErrUndefined = errors.New("undefined reference")

type mathNamespace struct{}

type evaluator struct {
	scope  Scope
	locale language.Tag
}

func (e *evaluator) expr(x *dsl.Expression) (any, error) {
	v, err := e.coalesce(x.Cond)
	if err != nil || x.Branch == nil {
		return v, err
	}
	if truthy(v) {
		return e.expr(x.Branch.Then)
	}
	return e.expr(x.Branch.Else)
}

func (e *evaluator) coalesce(x *dsl.Coalesce) (any, error) {
	v, err := e.or(x.Head)
	if err != nil {
		return nil, err
	}
	for _, next := range x.Tail {
		if v != nil {
			return v, nil
		}
		if v, err = e.or(next); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (e *evaluator) or(x *dsl.LogicalOr) (any, error) {
	v, err := e.and(x.Head)
	if err != nil {
		return nil, err
	}
	for _, next := range x.Tail {
		if truthy(v) {
			return v, nil
		}
		if v, err = e.and(next); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (e *evaluator) and(x *dsl.LogicalAnd) (any, error) {
	v, err := e.equality(x.Head)
	if err != nil {
		return nil, err
	}
	for _, next := range x.Tail {
		if !truthy(v) {
			return v, nil
		}
		if v, err = e.equality(next); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (e *evaluator) equality(x *dsl.Equality) (any, error) {
	v, err := e.relational(x.Head)
	if err != nil {
		return nil, err
	}
	for _, op := range x.Tail {
		rhs, err := e.relational(op.Operand)
		if err != nil {
			return nil, err
		}
		switch op.Op {
		case "===":
			v = strictEqual(v, rhs)
		case "!==":
			v = !strictEqual(v, rhs)
		case "==":
			v = looseEqual(v, rhs)
		case "!=":
			v = !looseEqual(v, rhs)
		}
	}
	return v, nil
}

func (e *evaluator) relational(x *dsl.Relational) (any, error) {
	v, err := e.additive(x.Head)
	if err != nil {
		return nil, err
	}
	for _, op := range x.Tail {
		rhs, err := e.additive(op.Operand)
		if err != nil {
			return nil, err
		}
		v = compare(v, rhs, op.Op)
	}
	return v, nil
}

func (e *evaluator) additive(x *dsl.Additive) (any, error) {
	v, err := e.multiplicative(x.Head)
	if err != nil {
		return nil, err
	}
	for _, op := range x.Tail {
		rhs, err := e.multiplicative(op.Operand)
		if err != nil {
			return nil, err
		}
		if op.Op == "+" {
			v = add(v, rhs)
		} else {
			v = toNumber(v) - toNumber(rhs)
		}
	}
	return v, nil
}

func (e *evaluator) multiplicative(x *dsl.Multiplicative) (any, error) {
	v, err := e.unary(x.Head)
	if err != nil {
		return nil, err
	}
	for _, op := range x.Tail {
		rhs, err := e.unary(op.Operand)
		if err != nil {
			return nil, err
		}
		a, b := toNumber(v), toNumber(rhs)
		switch op.Op {
		case "*":
			v = a * b
		case "/":
			v = a / b
		case "%":
			v = math.Mod(a, b)
		}
	}
	return v, nil
}

func (e *evaluator) unary(x *dsl.Unary) (any, error) {
	v, err := e.postfix(x.Operand)
	if err != nil {
		return nil, err
	}
	for i := len(x.Ops) - 1; i >= 0; i-- {
		switch x.Ops[i] {
		case "-":
			v = -toNumber(v)
		case "+":
			v = toNumber(v)
		case "!":
			v = !truthy(v)
		}
	}
	return v, nil
}

func (e *evaluator) postfix(x *dsl.Postfix) (any, error) {
	var (
		v   any
		err error
	)
	if ref := x.Primary.Ref; ref != nil && ref.Call == nil && ref.Name == "Math" {
		if _, shadowed := e.scope["Math"]; !shadowed {
			v = mathNamespace{}
		}
	}
	if v == nil {
		if v, err = e.primary(x.Primary); err != nil {
			return nil, err
		}
	}
	for _, acc := range x.Accessors {
		switch {
		case acc.Member != nil && acc.Member.Call != nil:
			args, err := e.args(acc.Member.Call)
			if err != nil {
				return nil, err
			}
			if v, err = e.method(v, acc.Member.Name, args); err != nil {
				return nil, err
			}
		case acc.Member != nil:
			v = property(v, acc.Member.Name)
		case acc.Index != nil:
			key, err := e.expr(acc.Index)
			if err != nil {
				return nil, err
			}
			v = index(v, key)
		}
	}
	return v, nil
}

func (e *evaluator) primary(x *dsl.Primary) (any, error) {
	switch {
	case x.Number != nil:
		return *x.Number, nil
	case x.String != nil:
		return string(*x.String), nil
	case x.Template != nil:
		var b strings.Builder
		for _, part := range x.Template.Parts {
			if part.Expr == nil {
				b.WriteString(part.Text)
				continue
			}
			v, err := e.expr(part.Expr)
			if err != nil {
				return nil, err
			}
			b.WriteString(Stringify(v))
		}
		return b.String(), nil
	case x.Bool != nil:
		return bool(*x.Bool), nil
	case x.Null:
		return nil, nil
	case x.Group != nil:
		return e.expr(x.Group)
	case x.Ref != nil:
		if x.Ref.Call != nil {
			args, err := e.args(x.Ref.Call)
			if err != nil {
				return nil, err
			}
			return e.call(x.Ref.Name, args)
		}
		v, ok := e.scope[x.Ref.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUndefined, x.Ref.Name)
		}
		return v, nil
	}
	return nil, fmt.Errorf("empty expression")
}

func (e *evaluator) args(call *dsl.CallArgs) ([]any, error) {
	out := make([]any, len(call.Args))
	for i, arg := range call.Args {
		v, err := e.expr(arg)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// call 只开放白名单内的函数。
func (e *evaluator) call(name string, args []any) (any, error) {
	switch name {
	case "Number":
		return toNumber(arg(args, 0)), nil
	case "String":
		return Stringify(arg(args, 0)), nil
	case "Boolean":
		return truthy(arg(args, 0)), nil
	case "parseFloat":
		return toNumber(strings.TrimSpace(Stringify(arg(args, 0)))), nil
	case "parseInt":
		return math.Trunc(toNumber(strings.TrimSpace(Stringify(arg(args, 0))))), nil
	case "isNaN":
		return math.IsNaN(toNumber(arg(args, 0))), nil
	case "currency":
		symbol := "R"
		if len(args) > 1 {
			symbol = Stringify(args[1])
		}
		digits, err := digitsArg("currency", args, 2)
		if err != nil {
			return nil, err
		}
		n := toNumber(arg(args, 0))
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, fmt.Errorf("currency: %v is not a finite number", arg(args, 0))
		}
		amount := groupDigits(decimal.NewFromFloat(n).StringFixed(int32(digits)), " ")
		if symbol == "" {
			return amount, nil
		}
		return symbol + " " + amount, nil
	case "thousands":
		sep := ","
		if len(args) > 1 {
			sep = Stringify(args[1])
		}
		n := toNumber(arg(args, 0))
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, fmt.Errorf("thousands: %v is not a finite number", arg(args, 0))
		}
		return groupDigits(formatNumber(n), sep), nil
	case "round":
		digits, err := digitsArg("round", args, 1)
		if err != nil {
			return nil, err
		}
		n := toNumber(arg(args, 0))
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return n, nil
		}
		return decimal.NewFromFloat(n).Round(int32(digits)).InexactFloat64(), nil
	case "plural":
		if len(args) < 3 {
			return nil, fmt.Errorf("plural expects (value, singular, plural)")
		}
		n := toNumber(args[0])
		word := Stringify(args[2])
		if n == 1 {
			word = Stringify(args[1])
		}
		return formatNumber(n) + " " + word, nil
	case "upper":
		return strings.ToUpper(Stringify(arg(args, 0))), nil
	case "lower":
		return strings.ToLower(Stringify(arg(args, 0))), nil
	}
	return nil, fmt.Errorf("%w: %s is not a function", ErrUndefined, name)
}

func (e *evaluator) method(recv any, name string, args []any) (any, error) {
	if _, ok := recv.(mathNamespace); ok {
		return mathCall(name, args)
	}
	switch name {
	case "toString":
		return Stringify(recv), nil
	case "toFixed":
		n, ok := numberValue(recv)
		if !ok {
			return nil, fmt.Errorf("toFixed: %T is not a number", recv)
		}
		digits, err := digitsArg("toFixed", args, 0)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return formatNumber(n), nil
		}
		return decimal.NewFromFloat(n).StringFixed(int32(digits)), nil
	case "toLocaleString":
		n, ok := numberValue(recv)
		if !ok {
			return Stringify(recv), nil
		}
		tag := e.locale
		if len(args) > 0 {
			parsed, err := language.Parse(Stringify(args[0]))
			if err != nil {
				return nil, fmt.Errorf("toLocaleString: %w", err)
			}
			tag = parsed
		}
		return message.NewPrinter(tag).Sprint(number.Decimal(n, number.MaxFractionDigits(3))), nil
	case "toUpperCase", "toLowerCase", "trim":
		s, ok := recv.(string)
		if !ok {
			return nil, fmt.Errorf("%s: %T is not a string", name, recv)
		}
		switch name {
		case "toUpperCase":
			return strings.ToUpper(s), nil
		case "toLowerCase":
			return strings.ToLower(s), nil
		default:
			return strings.TrimSpace(s), nil
		}
	}
	return nil, fmt.Errorf("%w: %s is not a function", ErrUndefined, name)
}

func mathCall(name string, args []any) (any, error) {
	x := toNumber(arg(args, 0))
	switch name {
	case "round":
		return math.Floor(x + 0.5), nil
	case "floor":
		return math.Floor(x), nil
	case "ceil":
		return math.Ceil(x), nil
	case "abs":
		return math.Abs(x), nil
	case "trunc":
		return math.Trunc(x), nil
	case "min", "max":
		if len(args) == 0 {
			if name == "min" {
				return math.Inf(1), nil
			}
			return math.Inf(-1), nil
		}
		out := x
		for _, a := range args[1:] {
			n := toNumber(a)
			if name == "min" {
				out = math.Min(out, n)
			} else {
				out = math.Max(out, n)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: Math.%s is not a function", ErrUndefined, name)
}

func property(recv any, name string) any {
	if name == "length" {
		switch v := recv.(type) {
		case string:
			return float64(utf8.RuneCountInString(v))
		case []any:
			return float64(len(v))
		case []string:
			return float64(len(v))
		}
	}
	v, _ := descendMap(recv, name)
	return v
}

func index(recv any, key any) any {
	if s, ok := key.(string); ok {
		return property(recv, s)
	}
	i := toNumber(key)
	if math.IsNaN(i) || i != math.Trunc(i) {
		return nil
	}
	if s, ok := recv.(string); ok {
		runes := []rune(s)
		if i < 0 || int(i) >= len(runes) {
			return nil
		}
		return string(runes[int(i)])
	}
	v, _ := descendArray(recv, int(i))
	return v
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func intArg(args []any, i, def int) (int, error) {
	if i >= len(args) || args[i] == nil {
		return def, nil
	}
	n := toNumber(args[i])
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("argument %d is not a number", i)
	}
	if n > math.MaxInt32 || n < math.MinInt32 {
		return 0, fmt.Errorf("argument %d out of range", i)
	}
	return int(n), nil
}

// maxDigits 是小数位参数的上限，与 Number.prototype.toFixed 一致。
const maxDigits = 100

// digitsArg 读取小数位参数，缺省为 0，超出 [0, maxDigits] 返回错误。
func digitsArg(fn string, args []any, i int) (int, error) {
	digits, err := intArg(args, i, 0)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", fn, err)
	}
	if digits < 0 || digits > maxDigits {
		return 0, fmt.Errorf("%s: digits %d out of range", fn, digits)
	}
	return digits, nil
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	}
	if n, ok := asNumber(v); ok {
		return n != 0 && !math.IsNaN(n)
	}
	return true
}

// numberValue reports whether v is a number (not a numeric string).
func numberValue(v any) (float64, bool) {
	switch v.(type) {
	case string, bool, nil:
		return 0, false
	}
	return asNumber(v)
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case decimal.Decimal:
		return n.InexactFloat64(), true
	}
	return 0, false
}

func toNumber(v any) float64 {
	switch val := v.(type) {
	case nil:
		return math.NaN()
	case bool:
		if val {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	}
	if n, ok := asNumber(v); ok {
		return n
	}
	return math.NaN()
}

func add(a, b any) any {
	_, as := a.(string)
	_, bs := b.(string)
	if as || bs {
		return Stringify(a) + Stringify(b)
	}
	return toNumber(a) + toNumber(b)
}

func strictEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if x, ok := numberValue(a); ok {
		y, ok := numberValue(b)
		return ok && x == y
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	}
	return false
}

func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	as, aStr := a.(string)
	bs, bStr := b.(string)
	if aStr && bStr {
		return as == bs
	}
	if _, ok := a.(bool); ok || aStr {
		return toNumber(a) == toNumber(b)
	}
	if _, ok := b.(bool); ok || bStr {
		return toNumber(a) == toNumber(b)
	}
	return strictEqual(a, b)
}

func compare(a, b any, op string) bool {
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			switch op {
			case "<":
				return as < bs
			case "<=":
				return as <= bs
			case ">":
				return as > bs
			default:
				return as >= bs
			}
		}
	}
	x, y := toNumber(a), toNumber(b)
	switch op {
	case "<":
		return x < y
	case "<=":
		return x <= y
	case ">":
		return x > y
	default:
		return x >= y
	}
}

// groupDigits 在整数部分每三位插入分隔符，保留符号与小数部分。
func groupDigits(s, sep string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")
	if len(intPart) <= 3 {
		if hasFrac {
			return sign + intPart + "." + frac
		}
		return sign + intPart
	}
	var b strings.Builder
	head := len(intPart) % 3
	if head > 0 {
		b.WriteString(intPart[:head])
	}
	for i := head; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(intPart[i : i+3])
	}
	out := sign + b.String()
	if hasFrac {
		out += "." + frac
	}
	return out
}

// Truthy 按 JavaScript 的真值规则判断：nil、false、0、NaN 与空串为假。
func Truthy(v any) bool { return truthy(v) }
