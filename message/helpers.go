package message

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/aymerick/raymond"
)

// DefaultDateFormat is the layout used by formatDate without a format hash argument
const DefaultDateFormat = "2006-01-02 15:04:05 UTC"

var helpers = map[string]interface{}{
	"formatDate": formatDate,
	"truncate":   truncate,
	"json":       toJSON,
	"uppercase":  uppercase,
	"lowercase":  lowercase,
	"eq":         eq,
	"get":        getHelper,
}

// formatDate accepts RFC 3339 strings or unix seconds; {{formatDate payload.created_at format="2006-01-02"}}
func formatDate(value interface{}, options *raymond.Options) string {
	layout := DefaultDateFormat
	if f := options.HashStr("format"); f != "" {
		layout = f
	}

	text := raymond.Str(value)
	if t, ok := parseTime(text); ok {
		return t.UTC().Format(layout)
	}
	return text
}

func parseTime(text string) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05 -0700", "2006-01-02"} {
		if t, err := time.Parse(layout, text); err == nil {
			return t, true
		}
	}
	if secs, err := strconv.ParseFloat(text, 64); err == nil {
		return time.Unix(0, int64(secs*float64(time.Second))), true
	}
	return time.Time{}, false
}

// truncate cuts text to length runes and appends "..." when it was cut
func truncate(text interface{}, length interface{}) string {
	s := raymond.Str(text)
	n, err := strconv.Atoi(raymond.Str(length))
	if err != nil || n < 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func toJSON(value interface{}) raymond.SafeString {
	b, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return raymond.SafeString(raymond.Str(value))
	}
	return raymond.SafeString(b)
}

func uppercase(value interface{}) string {
	return strings.ToUpper(raymond.Str(value))
}

func lowercase(value interface{}) string {
	return strings.ToLower(raymond.Str(value))
}

// eq compares by text so numbers from payloads match literals in templates
func eq(a, b interface{}) bool {
	return raymond.Str(a) == raymond.Str(b)
}

func getHelper(obj interface{}, path interface{}) interface{} {
	if v := get(obj, path); v != nil {
		return v
	}
	return ""
}

// get walks a dotted path through maps and arrays: {{get payload "commits.0.message"}}
func get(obj interface{}, path interface{}) interface{} {
	cur := obj
	for _, key := range strings.Split(raymond.Str(path), ".") {
		if key == "" {
			continue
		}
		switch v := cur.(type) {
		case map[string]interface{}:
			cur = v[key]
		case map[string]string:
			cur = v[key]
		case []interface{}:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(v) {
				return nil
			}
			cur = v[i]
		default:
			rv := reflect.ValueOf(cur)
			if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
				return nil
			}
			item := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
			if !item.IsValid() {
				return nil
			}
			cur = item.Interface()
		}
		if cur == nil {
			return nil
		}
	}
	return cur
}
