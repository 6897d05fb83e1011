// Package jobid validates and mints the opaque tokens that correlate a
// generation request with its progress stream.
package jobid

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxLen is the longest accepted job ID.
const MaxLen = 100

var pattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Valid reports whether id starts with a letter or digit, contains only
// letters, digits, dots, underscores and hyphens, and is at most MaxLen long.
func Valid(id string) bool {
	return id != "" && len(id) <= MaxLen && pattern.MatchString(id)
}

// New mints a job ID of the form job-<unix ms>-<9 lowercase alphanumerics>.
func New() string {
	return NewAt(time.Now())
}

// NewAt is New with an explicit clock reading.
func NewAt(t time.Time) string {
	return fmt.Sprintf("job-%d-%s", t.UnixMilli(), suffix())
}

// suffix derives 9 base-36 characters from a random UUID.
func suffix() string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	u := uuid.New()
	var b strings.Builder
	for i := 0; i < 9; i++ {
		b.WriteByte(alphabet[int(u[i])%len(alphabet)])
	}
	return b.String()
}
