package render

import (
	"strings"

	"github.com/frontier-design/projectory-web-to-print/pkg/models"
)

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#039;",
)

// EscapeHTML escapes text for use in element content and quoted attributes.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// overrideCSS pins the card layout for server-side rendering, where several
// surfaces share one document.
const overrideCSS = `
    .card {
      position: relative !important;
    }

    .overlay-text {
      position: absolute !important;
      top: 50% !important;
      left: 50% !important;
      transform: translate(-50%, -50%) !important;
      text-align: center !important;
      width: 75% !important;
      font-size: 2.2rem !important;
      font-family: 'FounderGrotesk_Medium', sans-serif !important;
      color: #fff !important;
      z-index: 10 !important;
      border: none !important;
    }

    body {
      margin: 0;
      padding: 0;
    }
`

// BuildHTML composes one printable document holding a surface per item.
func BuildHTML(items []models.Item, a *Assets) string {
	var b strings.Builder

	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n  <meta charset=\"UTF-8\">\n  <style>\n")
	b.WriteString(a.CSS)
	b.WriteString("\n    .orange-card {\n      background-image: url('data:image/svg+xml;base64,")
	b.WriteString(a.OrangeSVG)
	b.WriteString("');\n    }\n    .blue-card {\n      background-image: url('data:image/svg+xml;base64,")
	b.WriteString(a.BlueSVG)
	b.WriteString("');\n    }\n")
	b.WriteString(overrideCSS)
	b.WriteString("  </style>\n</head>\n<body>\n  <div id=\"print-container\">\n")

	for _, item := range items {
		writeSurface(&b, item)
	}

	b.WriteString("  </div>\n</body>\n</html>\n")
	return b.String()
}

func writeSurface(b *strings.Builder, item models.Item) {
	b.WriteString(`    <div class="print-surface">
      <div class="cards">
        <div class="card orange-card">
          <div class="overlay-text">`)
	b.WriteString(EscapeHTML(item.WhatIsA))
	b.WriteString(`</div>
        </div>
        <div class="card blue-card">
          <div class="overlay-text">`)
	b.WriteString(EscapeHTML(item.ThatCould))
	b.WriteString(`</div>
        </div>
      </div>
      <div class="answer">
        <div class="answer-box">`)
	b.WriteString(EscapeHTML(item.FreeText))
	b.WriteString("</div>\n      </div>\n")

	if item.AIImage != "" {
		b.WriteString(`      <div class="ai-image-container">
        <img src="`)
		b.WriteString(EscapeHTML(item.AIImage))
		b.WriteString(`" alt="AI Generated Image" class="ai-image" />
      </div>
`)
	}
	b.WriteString("    </div>\n")
}
