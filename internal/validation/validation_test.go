package validation

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func TestValidatePage(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	cases := []struct {
		name  string
		doc   string
		valid bool
		field string
	}{
		{"full page", `{"pageId":"home","title":"Home","published":true,"hero":{"a":1}}`, true, ""},
		{"partial update", `{"hero":{"headline":"Hi"}}`, true, ""},
		{"empty update", `{}`, true, ""},
		{"title not a string", `{"title":42}`, false, "/title"},
		{"published not a bool", `{"published":"yes"}`, false, "/published"},
		{"page id with slash", `{"pageId":"../etc"}`, false, "/pageId"},
		{"dotted section key", `{"hero.title":"x"}`, false, "hero.title"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := v.Validate(decode(t, tc.doc))
			assert.Equal(t, tc.valid, res.Valid)
			if tc.valid {
				assert.Empty(t, res.Errors)
				return
			}
			require.NotEmpty(t, res.Errors)
			assert.True(t, strings.Contains(strings.Join(res.Errors, "\n"), tc.field), res.Errors)
		})
	}
}

func TestValidateContentData(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	assert.True(t, v.ValidateContentData(decode(t, `{"jobOpenings":[{"id":"a"},{"id":3}],"departments":["Sales"]}`)).Valid)
	assert.False(t, v.ValidateContentData(decode(t, `{"jobOpenings":{"id":"a"}}`)).Valid)
	assert.False(t, v.ValidateContentData(decode(t, `{"jobOpenings":["nope"]}`)).Valid)
}
