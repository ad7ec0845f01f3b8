package environment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func envOf(kv map[string]string) func(string) string {
	return func(k string) string { return kv[k] }
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want Mode
	}{
		{"nothing set", map[string]string{}, ReadOnly},
		{"development", map[string]string{"SERVER_ENVIRONMENT": "development"}, Writable},
		{"test", map[string]string{"SERVER_ENVIRONMENT": "TEST"}, Writable},
		{"production", map[string]string{"SERVER_ENVIRONMENT": "production"}, ReadOnly},
		{"unknown environment", map[string]string{"SERVER_ENVIRONMENT": "staging"}, ReadOnly},
		{"vercel wins over development", map[string]string{"SERVER_ENVIRONMENT": "development", "VERCEL": "1"}, ReadOnly},
		{"cloud run", map[string]string{"SERVER_ENVIRONMENT": "development", "K_SERVICE": "site"}, ReadOnly},
		{"override writable", map[string]string{"CONTENT_FS_MODE": "writable", "VERCEL": "1"}, Writable},
		{"override readonly", map[string]string{"CONTENT_FS_MODE": "read-only", "SERVER_ENVIRONMENT": "development"}, ReadOnly},
		{"bogus override ignored", map[string]string{"CONTENT_FS_MODE": "maybe", "SERVER_ENVIRONMENT": "dev"}, Writable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(envOf(tc.env)))
			assert.Equal(t, tc.want == ReadOnly, IsReadOnlyFileSystem(envOf(tc.env)))
		})
	}
}

func TestClassifyNilGetenvIsReadOnly(t *testing.T) {
	assert.Equal(t, ReadOnly, Classify(nil))
	assert.True(t, IsReadOnlyFileSystem(nil))
	assert.Equal(t, "readonly", ReadOnly.String())
	assert.Equal(t, "writable", Writable.String())
}
