package imagegen

import (
	"fmt"
	"strings"
)

// PromptOptions tunes the composition lines of the marker-cartoon prompt.
// The style, shading and background rules are fixed.
type PromptOptions struct {
	Framing     string
	View        string
	Mood        string
	AspectRatio string
}

// DefaultPromptOptions is used for every pipeline image.
var DefaultPromptOptions = PromptOptions{
	Framing:     "full-body",
	View:        "front view",
	Mood:        "playful and friendly",
	AspectRatio: "2:3 portrait",
}

func (o PromptOptions) withDefaults() PromptOptions {
	if o.Framing == "" {
		o.Framing = DefaultPromptOptions.Framing
	}
	if o.View == "" {
		o.View = DefaultPromptOptions.View
	}
	if o.Mood == "" {
		o.Mood = DefaultPromptOptions.Mood
	}
	if o.AspectRatio == "" {
		o.AspectRatio = DefaultPromptOptions.AspectRatio
	}
	return o
}

// BuildMarkerCartoonPrompt wraps subject in instructions for a two-tone
// black-marker-on-white cartoon with no shading.
func BuildMarkerCartoonPrompt(subject string, opts PromptOptions) string {
	o := opts.withDefaults()

	var b strings.Builder
	fmt.Fprintf(&b, "%s, shown clearly and centered.\n\n", strings.TrimSpace(subject))

	b.WriteString(`STYLE LOCK (must follow):
- Hand drawn with a black Sharpie / felt-tip marker on pure white paper.
- Two-tone palette only: pure black ink (#000000) and pure white background (#FFFFFF).
- No grayscale, no gray pixels, no gradients, no soft shadows, no textures.
- High-contrast, hard-thresholded ink look (screen-printed / comic ink consistency).
- Hand drawn clean readable silhouette, simple shapes, cartoon illustration.

LINEWORK:
- Bold smooth outer contour lines.
- Thinner inner details.
- Controlled stroke variation (natural Sharpie pressure variation, but not sketchy).
- No sketch lines, no pencil marks, no scribbles, no messy strokes.

SHADING:
- No shading at all.
- No hatching.
- No crosshatching.
- No filled shadow shapes.

`)

	fmt.Fprintf(&b, `COMPOSITION:
- %s, %s.
- Subject fully visible, no cropped limbs, no cut-off edges.
- Single main subject only unless explicitly specified.
- Centered composition, subject occupies ~70%% of the frame.
- Straight-on camera, no dramatic perspective tilt.
- %s orientation.

MOOD:
- %s

`, o.Framing, o.View, o.AspectRatio, o.Mood)

	b.WriteString(`BACKGROUND:
- Pure white background only.
- No environment, no scenery, no props unless specified.
- No cast shadow, no drop shadow, no vignette.

`)

	fmt.Fprintf(&b, `OUTPUT REQUIREMENTS:
- Monochrome only: black ink on white.
- No color, no grayscale, no halftones.
- Crisp high-contrast poster-like readability.
- %s aspect ratio, portrait format image.

`, o.AspectRatio)

	b.WriteString(`NEGATIVE PROMPTS:
color, grayscale, gray, gradients, shadows, soft lighting, texture, paper grain, photorealism, 3D render, pencil, charcoal, watercolor, hatching, crosshatching, shading, shadow shapes, filled shadows, noisy lines, blur, cluttered background, detailed scenery, text, watermark, logo, landscape orientation, square format.`)

	return b.String()
}
