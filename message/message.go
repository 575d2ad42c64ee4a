package message

import (
	"fmt"
	"strings"

	"github.com/aymerick/raymond"
	"github.com/marcelsud/webhook-relay/webhook/payload"
)

// DefaultTemplate is used when a route has neither a template nor message content
const DefaultTemplate = "New event: {{eventType}}"

// Ref identifies the endpoint or organization an event belongs to
type Ref struct {
	ID   string
	Slug string
	Name string
}

// Context is the data exposed to message templates
type Context struct {
	Headers      map[string]string
	Payload      payload.Value
	EventType    string
	Endpoint     *Ref
	Organization *Ref
}

/* Render executes a handlebars template against the event context
 * Rendering never fails: a broken template yields a visible error line followed by the default message
 * {{ }} HTML-escapes the value, {{{ }}} inserts it raw
 */
func Render(template string, ctx Context) (out string) {
	if strings.TrimSpace(template) == "" {
		template = DefaultTemplate
	}

	defer func() {
		if r := recover(); r != nil {
			out = fallback(ctx, fmt.Errorf("%v", r))
		}
	}()

	tpl, err := raymond.Parse(template)
	if err != nil {
		return fallback(ctx, err)
	}
	tpl.RegisterHelpers(helpers)

	out, err = tpl.Exec(ctx.data())
	if err != nil {
		return fallback(ctx, err)
	}
	return out
}

func fallback(ctx Context, err error) string {
	return fmt.Sprintf("[template error: %s] New event: %s", err.Error(), ctx.EventType)
}

func (c Context) data() map[string]interface{} {
	headers := make(map[string]interface{}, len(c.Headers))
	for k, v := range c.Headers {
		headers[k] = v
	}
	data := map[string]interface{}{
		"headers":   headers,
		"payload":   c.Payload.Raw(),
		"body":      c.Payload.Raw(),
		"eventType": c.EventType,
	}
	if c.Endpoint != nil {
		data["endpoint"] = c.Endpoint.data()
	}
	if c.Organization != nil {
		data["organization"] = c.Organization.data()
	}
	return data
}

func (r Ref) data() map[string]interface{} {
	return map[string]interface{}{
		"id":   r.ID,
		"slug": r.Slug,
		"name": r.Name,
	}
}
