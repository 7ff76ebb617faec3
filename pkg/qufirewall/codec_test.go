package qufirewall_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbzz/add-qufirewall-rules/pkg/qufirewall"
)

func TestDecodeListEmpty(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		content string
	}{
		"empty string": {content: ""},
		"json null":    {content: "null"},
		"empty list":   {content: "[]"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			list, err := qufirewall.DecodeList("rules", tc.content)
			require.NoError(t, err)

			assert.Empty(t, list.Items)
			assert.Equal(t, "[]", list.Encode())
		})
	}
}

func TestDecodeListNotAList(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		content string
	}{
		"object":  {content: `{"a": 1}`},
		"number":  {content: `42`},
		"string":  {content: `"rules"`},
		"boolean": {content: `true`},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := qufirewall.DecodeList("rules", tc.content)

			require.Error(t, err)
			assert.ErrorIs(t, err, qufirewall.ErrNotAList)
			assert.Contains(t, err.Error(), "rules")
		})
	}
}

func TestDecodeListParseError(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		content string
	}{
		"unterminated list": {content: `[{"id": 1}`},
		"bad token":         {content: `[{]`},
		"trailing garbage":  {content: `[1] tail`},
		"lone whitespace":   {content: ` `},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := qufirewall.DecodeList("rules", tc.content)
			require.Error(t, err)

			var parseErr *qufirewall.ParseError

			require.ErrorAs(t, err, &parseErr)
			assert.Equal(t, "rules", parseErr.Column)
			assert.Equal(t, tc.content, parseErr.Content)
			assert.Contains(t, err.Error(), "content (truncated)")
		})
	}
}

func TestParseErrorTruncatesContent(t *testing.T) {
	t.Parallel()

	content := "[" + strings.Repeat("x", 3000)

	_, err := qufirewall.DecodeList("rules", content)
	require.Error(t, err)

	var parseErr *qufirewall.ParseError

	require.ErrorAs(t, err, &parseErr)
	assert.Len(t, parseErr.Content, 2000)
	assert.True(t, strings.HasPrefix(content, parseErr.Content))
}

func TestListEncode(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		content string
		want    string
	}{
		"separator style": {
			content: `[{"enable":1,"src_ip":"1.2.3.4","id":1}]`,
			want:    `[{"enable": 1, "src_ip": "1.2.3.4", "id": 1}]`,
		},
		"nested values reformatted": {
			content: `[{"src_ip":"a","meta":{"x":[1,2],"y":"b"}}]`,
			want:    `[{"src_ip": "a", "meta": {"x": [1, 2], "y": "b"}}]`,
		},
		"number lexemes preserved": {
			content: `[{"id":1,"ratio":0.50,"big":1e10}]`,
			want:    `[{"id": 1, "ratio": 0.50, "big": 1e10}]`,
		},
		"unicode and html kept raw": {
			content: `[{"display_name":"测试<&>"}]`,
			want:    `[{"display_name": "测试<&>"}]`,
		},
		"passthrough items verbatim": {
			content: `[{"id":1}, "note", 42, null, true, [1,  2]]`,
			want:    `[{"id": 1}, "note", 42, null, true, [1,  2]]`,
		},
		"booleans and null inside rules": {
			content: `[{"enable":true,"note":null}]`,
			want:    `[{"enable": true, "note": null}]`,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			list, err := qufirewall.DecodeList("rules", tc.content)
			require.NoError(t, err)

			assert.Equal(t, tc.want, list.Encode())
		})
	}
}

func TestListLines(t *testing.T) {
	t.Parallel()

	list, err := qufirewall.DecodeList("rules", `[{"id":1,"src_ip":"a"}, 42, {"id":2}]`)
	require.NoError(t, err)

	assert.Equal(t, []string{
		`{"id": 1, "src_ip": "a"}`,
		`42`,
		`{"id": 2}`,
	}, list.Lines())
}

func TestListMaxID(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		content string
		want    int
	}{
		"plain ids": {
			content: `[{"id": 3}, {"id": 7}, {"id": 5}]`,
			want:    7,
		},
		"junk ids ignored": {
			content: `[{"id": "junk"}, {"id": 4}, {"id": null}]`,
			want:    4,
		},
		"string and float ids coerced": {
			content: `[{"id": "12"}, {"id": 9.9}]`,
			want:    12,
		},
		"passthrough items ignored": {
			content: `[41, {"id": 2}]`,
			want:    2,
		},
		"negative ids floor at zero": {
			content: `[{"id": -5}]`,
			want:    0,
		},
		"empty": {
			content: `[]`,
			want:    0,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			list, err := qufirewall.DecodeList("rules", tc.content)
			require.NoError(t, err)

			assert.Equal(t, tc.want, list.MaxID())
		})
	}
}
