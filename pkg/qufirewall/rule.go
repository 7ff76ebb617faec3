package qufirewall

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Keys QuFirewall uses in rule objects, in the order it writes them.
const (
	KeyEnable           = "enable"
	KeyProtocol         = "protocol"
	KeyPermission       = "permission"
	KeyInterfaceWarning = "interface_warning"
	KeyPortOption       = "port_option"
	KeySrcIP            = "src_ip"
	KeyInterface        = "interface"
	KeyDisplayName      = "display_name"
	KeyID               = "id"
)

// Field is one key/value pair of a rule object. Values stay raw JSON so
// unknown vendor fields and unusual value types survive a round trip.
type Field struct {
	Key   string
	Value json.RawMessage
}

// Rule is a single firewall rule. It remembers the order fields appeared in,
// and re-encodes them in that order.
type Rule struct {
	fields []Field
}

// ParseRule decodes a JSON object into a [Rule]. A duplicate key keeps its
// first position and its last value.
func ParseRule(data []byte) (*Rule, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode rule: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("decode rule: unexpected token %v", tok)
	}

	r := &Rule{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode rule key: %w", err)
		}

		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("decode rule key: unexpected token %v", keyTok)
		}

		var value json.RawMessage

		err = dec.Decode(&value)
		if err != nil {
			return nil, fmt.Errorf("decode rule field %q: %w", key, err)
		}

		r.Set(key, value)
	}

	_, err = dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode rule: %w", err)
	}

	return r, nil
}

// Fields returns the rule's fields in encoding order.
func (r *Rule) Fields() []Field {
	return r.fields
}

// Get returns the raw value stored for key.
func (r *Rule) Get(key string) (json.RawMessage, bool) {
	for _, f := range r.fields {
		if f.Key == key {
			return f.Value, true
		}
	}

	return nil, false
}

// Set stores a raw value, replacing in place when the key already exists and
// appending otherwise.
func (r *Rule) Set(key string, value json.RawMessage) {
	for i, f := range r.fields {
		if f.Key == key {
			r.fields[i].Value = value

			return
		}
	}

	r.fields = append(r.fields, Field{Key: key, Value: value})
}

// SrcIP returns the rule's src_ip when it is a JSON string. Rules without a
// string src_ip take no part in allow-list matching.
func (r *Rule) SrcIP() (string, bool) {
	raw, ok := r.Get(KeySrcIP)
	if !ok {
		return "", false
	}

	var s string

	err := json.Unmarshal(raw, &s)
	if err != nil {
		return "", false
	}

	return s, true
}

// ID returns the rule's id coerced to an integer: JSON integers as-is, JSON
// floats truncated toward zero, decimal strings parsed. Anything else
// reports false and is ignored for id bookkeeping.
func (r *Rule) ID() (int, bool) {
	raw, ok := r.Get(KeyID)
	if !ok {
		return 0, false
	}

	return coerceInt(raw)
}

// SetID overwrites the rule's id, keeping its position when already present.
func (r *Rule) SetID(id int) {
	r.Set(KeyID, json.RawMessage(strconv.Itoa(id)))
}

func coerceInt(raw json.RawMessage) (int, bool) {
	var num json.Number

	err := json.Unmarshal(raw, &num)
	if err == nil {
		i, err := strconv.ParseInt(num.String(), 10, 64)
		if err == nil {
			return int(i), true
		}

		f, err := num.Float64()
		if err == nil {
			return int(f), true
		}

		return 0, false
	}

	var s string

	err = json.Unmarshal(raw, &s)
	if err != nil {
		return 0, false
	}

	i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, false
	}

	return int(i), true
}

// Template holds the policy fields applied to rules synthesized for
// allow-list addresses that have no existing rule. Field names mirror the
// QuFirewall rule object keys.
type Template struct {
	// Enable activates the rule. QuFirewall uses 1 for active rules.
	Enable int `json:"enable"`
	// Protocol matched by the rule, e.g. Any, TCP, UDP.
	Protocol string `json:"protocol"`
	// Permission is the rule action, e.g. Allow or Deny.
	Permission string `json:"permission"`
	// InterfaceWarning is the interface warning flag, normally 0.
	InterfaceWarning int `json:"interface_warning"`
	// PortOption is the port match, e.g. Any.
	PortOption string `json:"port_option"`
	// Interface the rule applies to, e.g. All.
	Interface string `json:"interface"`
	// DisplayName is the interface display name, e.g. All.
	DisplayName string `json:"display_name"`
}

// DefaultTemplate matches the policy QuFirewall applies to a manually added
// allow rule.
func DefaultTemplate() Template {
	return Template{
		Enable:           1,
		Protocol:         "Any",
		Permission:       "Allow",
		InterfaceWarning: 0,
		PortOption:       "Any",
		Interface:        "All",
		DisplayName:      "All",
	}
}

// NewRule builds a rule for addr with the template's policy fields, in the
// canonical field order.
func NewRule(addr string, id int, tmpl Template) *Rule {
	r := &Rule{fields: make([]Field, 0, 9)}
	r.Set(KeyEnable, rawInt(tmpl.Enable))
	r.Set(KeyProtocol, rawString(tmpl.Protocol))
	r.Set(KeyPermission, rawString(tmpl.Permission))
	r.Set(KeyInterfaceWarning, rawInt(tmpl.InterfaceWarning))
	r.Set(KeyPortOption, rawString(tmpl.PortOption))
	r.Set(KeySrcIP, rawString(addr))
	r.Set(KeyInterface, rawString(tmpl.Interface))
	r.Set(KeyDisplayName, rawString(tmpl.DisplayName))
	r.SetID(id)

	return r
}

func rawInt(i int) json.RawMessage {
	return json.RawMessage(strconv.Itoa(i))
}

func rawString(s string) json.RawMessage {
	return json.RawMessage(encodeString(s))
}
