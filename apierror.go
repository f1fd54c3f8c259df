package lkcosmetics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// PayloadKind tags the shape of a backend error body.
type PayloadKind uint8

const (
	// PayloadUnknown is an empty or unrecognized body.
	PayloadUnknown PayloadKind = iota
	// PayloadFieldErrors is a map of field name to messages.
	PayloadFieldErrors
	// PayloadDetail is {"detail": "..."}.
	PayloadDetail
	// PayloadMessage is {"message": "..."}, a bare JSON string, or plain text.
	PayloadMessage
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadFieldErrors:
		return "field_errors"
	case PayloadDetail:
		return "detail"
	case PayloadMessage:
		return "message"
	default:
		return "unknown"
	}
}

const maxPlainPayload = 512

// ErrorPayload is a normalized backend error body. Exactly one of Fields or Text
// is meaningful, as selected by Kind.
type ErrorPayload struct {
	Kind   PayloadKind
	Fields map[string][]string
	Text   string
}

// NormalizeErrorPayload classifies a backend error body. "detail" wins over
// "message"; an object whose values are strings or string lists is treated as
// field errors; non-JSON text is kept as a truncated message.
func NormalizeErrorPayload(body []byte) ErrorPayload {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ErrorPayload{Kind: PayloadUnknown}
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err == nil {
		if s, ok := rawString(obj["detail"]); ok && s != "" {
			return ErrorPayload{Kind: PayloadDetail, Text: s}
		}
		if s, ok := rawString(obj["message"]); ok && s != "" {
			return ErrorPayload{Kind: PayloadMessage, Text: s}
		}
		if fields, ok := fieldErrors(obj); ok {
			return ErrorPayload{Kind: PayloadFieldErrors, Fields: fields}
		}
		return ErrorPayload{Kind: PayloadUnknown}
	}

	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		if s == "" {
			return ErrorPayload{Kind: PayloadUnknown}
		}
		return ErrorPayload{Kind: PayloadMessage, Text: s}
	}

	if body[0] == '{' || body[0] == '[' || body[0] == '<' || !utf8.Valid(body) {
		return ErrorPayload{Kind: PayloadUnknown}
	}
	text := string(body)
	if len(text) > maxPlainPayload {
		text = text[:maxPlainPayload]
	}
	return ErrorPayload{Kind: PayloadMessage, Text: text}
}

func rawString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func fieldErrors(obj map[string]json.RawMessage) (map[string][]string, bool) {
	if len(obj) == 0 {
		return nil, false
	}
	out := make(map[string][]string, len(obj))
	for field, raw := range obj {
		if s, ok := rawString(raw); ok {
			out[field] = []string{s}
			continue
		}
		var list []string
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, false
		}
		out[field] = list
	}
	return out, true
}

// Message renders the payload as a single operator-facing line, or "" for
// PayloadUnknown. Field errors are sorted by field, with non_field_errors first.
func (p ErrorPayload) Message() string {
	switch p.Kind {
	case PayloadDetail, PayloadMessage:
		return p.Text
	case PayloadFieldErrors:
		fields := make([]string, 0, len(p.Fields))
		for f := range p.Fields {
			fields = append(fields, f)
		}
		sort.Slice(fields, func(i, j int) bool {
			if fields[i] == "non_field_errors" {
				return fields[j] != "non_field_errors"
			}
			if fields[j] == "non_field_errors" {
				return false
			}
			return fields[i] < fields[j]
		})
		parts := make([]string, 0, len(fields))
		for _, f := range fields {
			msg := strings.Join(p.Fields[f], " ")
			if f == "non_field_errors" {
				parts = append(parts, msg)
				continue
			}
			parts = append(parts, f+": "+msg)
		}
		return strings.Join(parts, "; ")
	default:
		return ""
	}
}

// APIError is returned for backend responses with status >= 400.
type APIError struct {
	Status  int
	Method  string
	Path    string
	Payload ErrorPayload
}

func (e *APIError) Error() string {
	msg := e.Payload.Message()
	if msg == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, msg)
}
