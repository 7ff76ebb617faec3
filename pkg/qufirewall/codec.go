package qufirewall

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// excerptLimit caps the offending content embedded in a [ParseError].
const excerptLimit = 2000

// ErrNotAList reports a rules field whose content decodes to something other
// than a JSON list.
var ErrNotAList = errors.New("field does not contain a JSON list")

// ParseError wraps a JSON decoding failure with the offending field content,
// so the operator can locate the bad value without opening the export.
type ParseError struct {
	Err     error
	Column  string
	Content string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q field: %v\ncontent (truncated): %s", e.Column, e.Err, e.Content)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func newParseError(column, content string, err error) *ParseError {
	return &ParseError{Err: err, Column: column, Content: truncate(content, excerptLimit)}
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	return string(runes[:limit])
}

// Item is one element of a rule list: either a JSON object decoded as a
// [Rule], or any other JSON value carried through byte for byte. Passthrough
// items take no part in matching or renumbering.
type Item struct {
	Rule *Rule
	Raw  json.RawMessage
}

// List is an ordered rule collection decoded from a single table field.
type List struct {
	Items []Item
}

// DecodeList decodes one table field into a [List]. Empty content and JSON
// null both mean an empty list. column is only used for error context.
func DecodeList(column, content string) (*List, error) {
	if content == "" {
		return &List{}, nil
	}

	var top json.RawMessage

	err := json.Unmarshal([]byte(content), &top)
	if err != nil {
		return nil, newParseError(column, content, err)
	}

	value := bytes.TrimSpace(top)

	switch {
	case bytes.Equal(value, []byte("null")):
		return &List{}, nil

	case len(value) > 0 && value[0] == '[':

	default:
		return nil, fmt.Errorf("%q column: %w", column, ErrNotAList)
	}

	var rawItems []json.RawMessage

	err = json.Unmarshal(value, &rawItems)
	if err != nil {
		return nil, newParseError(column, content, err)
	}

	list := &List{Items: make([]Item, 0, len(rawItems))}

	for _, raw := range rawItems {
		if !isObject(raw) {
			list.Items = append(list.Items, Item{Raw: raw})

			continue
		}

		rule, err := ParseRule(raw)
		if err != nil {
			return nil, newParseError(column, content, err)
		}

		list.Items = append(list.Items, Item{Rule: rule})
	}

	return list, nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)

	return len(trimmed) > 0 && trimmed[0] == '{'
}

// Encode serializes the list the way the QuFirewall export formats its rule
// fields: ", " between items and fields, ": " after keys, non-ASCII text
// kept raw. Rule fields keep their stored order; passthrough items are
// emitted verbatim.
func (l *List) Encode() string {
	var buf bytes.Buffer

	buf.WriteByte('[')

	for i, item := range l.Items {
		if i > 0 {
			buf.WriteString(", ")
		}

		item.encode(&buf)
	}

	buf.WriteByte(']')

	return buf.String()
}

// Lines renders one item per line, for change previews.
func (l *List) Lines() []string {
	lines := make([]string, 0, len(l.Items))

	for _, item := range l.Items {
		var buf bytes.Buffer

		item.encode(&buf)
		lines = append(lines, buf.String())
	}

	return lines
}

// MaxID returns the highest coercible id among the list's rules, or 0.
func (l *List) MaxID() int {
	maxID := 0

	for _, item := range l.Items {
		if item.Rule == nil {
			continue
		}

		if id, ok := item.Rule.ID(); ok && id > maxID {
			maxID = id
		}
	}

	return maxID
}

func (it Item) encode(buf *bytes.Buffer) {
	if it.Rule != nil {
		it.Rule.encode(buf)

		return
	}

	buf.Write(bytes.TrimSpace(it.Raw))
}

func (r *Rule) encode(buf *bytes.Buffer) {
	buf.WriteByte('{')

	for i, f := range r.fields {
		if i > 0 {
			buf.WriteString(", ")
		}

		buf.Write(encodeString(f.Key))
		buf.WriteString(": ")
		rewriteValue(buf, f.Value)
	}

	buf.WriteByte('}')
}

// rewriteValue re-emits a raw JSON value with the export's separator style.
// Number lexemes pass through untouched. The raw value is already known to
// be valid JSON; if the tokenizer disagrees anyway, the value is emitted
// verbatim instead.
func rewriteValue(buf *bytes.Buffer, raw json.RawMessage) {
	var tmp bytes.Buffer

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	err := writeValue(&tmp, dec)
	if err != nil {
		buf.Write(bytes.TrimSpace(raw))

		return
	}

	buf.Write(tmp.Bytes())
}

func writeValue(buf *bytes.Buffer, dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return writeObject(buf, dec)
		case '[':
			return writeArray(buf, dec)
		}

		return fmt.Errorf("unexpected delimiter %v", t)

	case string:
		buf.Write(encodeString(t))

	case json.Number:
		buf.WriteString(t.String())

	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}

	case nil:
		buf.WriteString("null")
	}

	return nil
}

func writeObject(buf *bytes.Buffer, dec *json.Decoder) error {
	buf.WriteByte('{')

	first := true
	for dec.More() {
		if !first {
			buf.WriteString(", ")
		}

		first = false

		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}

		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected key token %v", keyTok)
		}

		buf.Write(encodeString(key))
		buf.WriteString(": ")

		err = writeValue(buf, dec)
		if err != nil {
			return err
		}
	}

	_, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}

	buf.WriteByte('}')

	return nil
}

func writeArray(buf *bytes.Buffer, dec *json.Decoder) error {
	buf.WriteByte('[')

	first := true
	for dec.More() {
		if !first {
			buf.WriteString(", ")
		}

		first = false

		err := writeValue(buf, dec)
		if err != nil {
			return err
		}
	}

	_, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}

	buf.WriteByte(']')

	return nil
}

// encodeString JSON-encodes s without HTML escaping, matching the export's
// raw-unicode style.
func encodeString(s string) []byte {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s) // Encoding a plain string cannot fail.

	return bytes.TrimRight(buf.Bytes(), "\n")
}
