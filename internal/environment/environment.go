// Package environment decides whether the running deployment can durably
// write to its filesystem.
package environment

import "strings"

// Mode is the filesystem classification of a deployment.
type Mode int

const (
	// ReadOnly deployments (immutable images, serverless platforms) make the
	// database authoritative. It is the zero value.
	ReadOnly Mode = iota
	// Writable deployments (local development) keep page files primary.
	Writable
)

// Writable reports whether file writes should be attempted.
func (m Mode) Writable() bool { return m == Writable }

func (m Mode) String() string {
	if m == Writable {
		return "writable"
	}
	return "readonly"
}

// platform markers set by hosts whose filesystem does not survive a deploy
var readOnlyPlatforms = []string{"VERCEL", "NETLIFY", "AWS_LAMBDA_FUNCTION_NAME", "K_SERVICE"}

// Classify inspects process configuration through getenv. Anything it cannot
// positively identify as writable is treated as read-only.
func Classify(getenv func(string) string) Mode {
	if getenv == nil {
		return ReadOnly
	}
	switch strings.ToLower(strings.TrimSpace(getenv("CONTENT_FS_MODE"))) {
	case "writable", "rw":
		return Writable
	case "readonly", "read-only", "ro":
		return ReadOnly
	}
	for _, key := range readOnlyPlatforms {
		if strings.TrimSpace(getenv(key)) != "" {
			return ReadOnly
		}
	}
	switch strings.ToLower(strings.TrimSpace(getenv("SERVER_ENVIRONMENT"))) {
	case "development", "dev", "local", "test":
		return Writable
	}
	return ReadOnly
}

// IsReadOnlyFileSystem is Classify reduced to a boolean.
func IsReadOnlyFileSystem(getenv func(string) string) bool {
	return !Classify(getenv).Writable()
}
