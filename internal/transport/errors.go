package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	// ErrUnauthorized matches any *Error carrying a 401 status.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound matches any *Error carrying a 404 status.
	ErrNotFound = errors.New("not found")
	// ErrNetwork matches failures where no response was received.
	ErrNetwork = errors.New("network error")
)

// Error is returned for every failed request. Status 0 means the request never
// produced a response (DNS, connection refused, cancelled context, ...).
type Error struct {
	Method  string
	Path    string
	Status  int
	Body    []byte
	Detail  string
	Message string
	Fields  map[string][]string
	Err     error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	}
	if text := e.Text(); text != "" {
		return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.Status, text)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets callers match on status classes with errors.Is.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrNetwork:
		return e.Status == 0
	}
	return false
}

// IsNetwork reports whether no response was received.
func (e *Error) IsNetwork() bool { return e.Status == 0 }

// Text is the best human-readable summary the server provided.
func (e *Error) Text() string {
	switch {
	case e.Detail != "":
		return e.Detail
	case e.Message != "":
		return e.Message
	case len(e.Fields) > 0:
		return strings.Join(e.FieldMessages(), "; ")
	}
	return ""
}

// FieldMessages flattens field errors into "field: message" lines sorted by field.
func (e *Error) FieldMessages() []string {
	if len(e.Fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []string
	for _, k := range keys {
		for _, msg := range e.Fields[k] {
			out = append(out, k+": "+msg)
		}
	}
	return out
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// parseErrorBody fills Detail, Message and Fields from the usual backend shapes:
// {"detail": ...}, {"message": ...}, {"errors": {field: [...]}} and top-level
// {field: [...]} validation maps. Unknown shapes leave only Body set.
func parseErrorBody(e *Error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(e.Body, &raw); err != nil {
		return
	}
	for key, val := range raw {
		switch key {
		case "detail":
			e.Detail = stringOrJoined(val)
		case "message":
			e.Message = stringOrJoined(val)
		case "errors":
			var nested map[string]json.RawMessage
			if json.Unmarshal(val, &nested) == nil {
				for f, msgs := range nested {
					e.addField(f, messagesOf(msgs))
				}
			} else if msgs := messagesOf(val); len(msgs) > 0 {
				e.addField("non_field_errors", msgs)
			}
		default:
			if msgs := messagesOf(val); len(msgs) > 0 && isFieldList(val) {
				e.addField(key, msgs)
			}
		}
	}
}

func (e *Error) addField(field string, msgs []string) {
	if len(msgs) == 0 {
		return
	}
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msgs...)
}

func isFieldList(val json.RawMessage) bool {
	var list []json.RawMessage
	return json.Unmarshal(val, &list) == nil
}

func messagesOf(val json.RawMessage) []string {
	var list []string
	if err := json.Unmarshal(val, &list); err == nil {
		return list
	}
	var one string
	if err := json.Unmarshal(val, &one); err == nil && one != "" {
		return []string{one}
	}
	return nil
}

func stringOrJoined(val json.RawMessage) string {
	return strings.Join(messagesOf(val), " ")
}
