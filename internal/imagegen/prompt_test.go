package imagegen_test

import (
	"strings"
	"testing"

	"github.com/frontier-design/projectory-web-to-print/internal/imagegen"
	"github.com/stretchr/testify/assert"
)

func TestBuildMarkerCartoonPrompt_Defaults(t *testing.T) {
	p := imagegen.BuildMarkerCartoonPrompt("  a toaster that could sing  ", imagegen.PromptOptions{})

	assert.True(t, strings.HasPrefix(p, "a toaster that could sing, shown clearly and centered.\n"))
	assert.Contains(t, p, "- full-body, front view.")
	assert.Contains(t, p, "- 2:3 portrait orientation.")
	assert.Contains(t, p, "MOOD:\n- playful and friendly")
	assert.Contains(t, p, "- 2:3 portrait aspect ratio, portrait format image.")
	assert.Contains(t, p, "subject occupies ~70% of the frame")
	assert.Contains(t, p, "No shading at all.")
	assert.True(t, strings.HasSuffix(p, "landscape orientation, square format."))
}

func TestBuildMarkerCartoonPrompt_CustomOptions(t *testing.T) {
	p := imagegen.BuildMarkerCartoonPrompt("a cat", imagegen.PromptOptions{
		Framing: "half-body",
		View:    "three-quarter view",
		Mood:    "curious",
	})

	assert.Contains(t, p, "- half-body, three-quarter view.")
	assert.Contains(t, p, "MOOD:\n- curious")
	assert.Contains(t, p, "- 2:3 portrait orientation.")
}
