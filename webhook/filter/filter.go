package filter

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/marcelsud/webhook-relay/webhook/payload"
	"github.com/ohler55/ojg/jp"
)

// Context is the data a filter expression is evaluated against
type Context struct {
	Headers   map[string]string
	Body      payload.Value
	EventType string
}

const (
	andOperator = " && "
	orOperator  = " || "
)

/* Single predicate forms, checked in order
 * Literals are quoted with single or double quotes and may not contain their own quote character
 */
var (
	equalsExpr    = regexp.MustCompile(`^(\$\S*)\s*==\s*(?:'([^']*)'|"([^"]*)")$`)
	notEqualsExpr = regexp.MustCompile(`^(\$\S*)\s*!=\s*(?:'([^']*)'|"([^"]*)")$`)
	containsExpr  = regexp.MustCompile(`^(\$\S*)\s+contains\s+(?:'([^']*)'|"([^"]*)")$`)
	existsExpr    = regexp.MustCompile(`^(\$\S*)\s+exists$`)
)

// Evaluate reports whether the expression holds for the context
// A blank expression always matches and any error is a non-match
func Evaluate(expression string, ctx Context) bool {
	ok, err := Check(expression, ctx)
	return err == nil && ok
}

/* Check evaluates the expression and reports evaluation errors so callers can log them
 *
 * Composition is literal: the expression is split on " && " first, otherwise on " || ".
 * Only one operator type is honoured per expression, a part of an "&&" split that still
 * contains "||" is an unrecognised predicate and does not hold.
 * Anything that is not a known predicate is evaluated as a JSONPath and holds when it
 * selects at least one value.
 */
func Check(expression string, ctx Context) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("evaluating filter %q: %v", expression, r)
		}
	}()

	expression = strings.TrimSpace(expression)
	if expression == "" {
		return true, nil
	}
	data := ctx.data()

	switch {
	case strings.Contains(expression, andOperator):
		for _, part := range strings.Split(expression, andOperator) {
			if strings.Contains(part, strings.TrimSpace(orOperator)) {
				return false, nil
			}
			holds, err := predicate(strings.TrimSpace(part), data)
			if err != nil || !holds {
				return false, err
			}
		}
		return true, nil
	case strings.Contains(expression, orOperator):
		var firstErr error
		for _, part := range strings.Split(expression, orOperator) {
			holds, err := predicate(strings.TrimSpace(part), data)
			if err != nil && firstErr == nil {
				firstErr = err
			}
			if holds {
				return true, nil
			}
		}
		return false, firstErr
	default:
		return predicate(expression, data)
	}
}

func predicate(expr string, data map[string]any) (bool, error) {
	if m := equalsExpr.FindStringSubmatch(expr); m != nil {
		values, err := resolve(m[1], data)
		if err != nil {
			return false, err
		}
		return len(values) > 0 && equal(values[0], literal(m)), nil
	}
	if m := notEqualsExpr.FindStringSubmatch(expr); m != nil {
		values, err := resolve(m[1], data)
		if err != nil {
			return false, err
		}
		return len(values) == 0 || !equal(values[0], literal(m)), nil
	}
	if m := containsExpr.FindStringSubmatch(expr); m != nil {
		values, err := resolve(m[1], data)
		if err != nil {
			return false, err
		}
		return len(values) > 0 && contains(values[0], literal(m)), nil
	}
	if m := existsExpr.FindStringSubmatch(expr); m != nil {
		values, err := resolve(m[1], data)
		if err != nil {
			return false, err
		}
		return len(values) > 0 && values[0] != nil, nil
	}

	// unknown forms fall back to a plain JSONPath lookup
	values, err := resolve(expr, data)
	if err != nil {
		return false, err
	}
	return len(values) > 0, nil
}

func resolve(path string, data map[string]any) ([]any, error) {
	x, err := jp.ParseString(bracketSegments(path))
	if err != nil {
		return nil, fmt.Errorf("parsing path %q: %w", path, err)
	}
	return x.Get(data), nil
}

/* bracketSegments rewrites dotted segments JSONPath cannot parse into bracket form
 * so header names read naturally: $.headers.x-github-event becomes $.headers['x-github-event']
 * Bracketed parts are copied as they are; a segment holding a quote is left alone.
 */
func bracketSegments(path string) string {
	var b strings.Builder
	for i := 0; i < len(path); {
		switch path[i] {
		case '[':
			end := closingBracket(path, i)
			b.WriteString(path[i:end])
			i = end
		case '.':
			dots := i
			for i < len(path) && path[i] == '.' {
				i++
			}
			start := i
			for i < len(path) && path[i] != '.' && path[i] != '[' {
				i++
			}
			segment := path[start:i]
			if !needsBracket(segment) {
				b.WriteString(path[dots:i])
				continue
			}
			if start-dots > 1 {
				b.WriteString(path[dots:start])
			}
			b.WriteString("['" + segment + "']")
		default:
			b.WriteByte(path[i])
			i++
		}
	}
	return b.String()
}

// closingBracket returns the index just past the bracket opened at start, or len(path)
func closingBracket(path string, start int) int {
	var quote byte
	for i := start + 1; i < len(path); i++ {
		c := path[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == ']':
			return i + 1
		}
	}
	return len(path)
}

func needsBracket(segment string) bool {
	if segment == "" || strings.ContainsAny(segment, `'"`) {
		return false
	}
	for _, r := range segment {
		if r != '_' && r != '*' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func literal(m []string) string {
	if m[2] != "" {
		return m[2]
	}
	return m[3]
}

func equal(value any, lit string) bool {
	if s, ok := value.(string); ok {
		return s == lit
	}
	if value == nil {
		return false
	}
	return payload.From(value).Text() == lit
}

func contains(value any, lit string) bool {
	switch v := value.(type) {
	case string:
		return strings.Contains(v, lit)
	case []any:
		for _, item := range v {
			if equal(item, lit) {
				return true
			}
		}
	}
	return false
}

func (c Context) data() map[string]any {
	headers := make(map[string]any, len(c.Headers))
	for k, v := range c.Headers {
		headers[k] = v
	}
	body := c.Body.Raw()
	return map[string]any{
		"headers":   headers,
		"body":      body,
		"payload":   body,
		"eventType": c.EventType,
	}
}
