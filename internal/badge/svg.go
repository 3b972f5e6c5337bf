// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pudim Contributors

package badge

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/pudim-dev/pudim/pkg/types"
)

// rankColors maps a rank color token to its fill color.
var rankColors = map[string]string{
	"gold":   "#d4a017",
	"purple": "#8250df",
	"blue":   "#0969da",
	"green":  "#1a7f37",
	"gray":   "#57606a",
}

const defaultRankColor = "#57606a"

var svgTemplate = template.Must(template.New("badge").Parse(`<svg xmlns="http://www.w3.org/2000/svg" width="320" height="80" role="img" aria-label="GitHub score badge">
  <rect width="320" height="80" rx="8" fill="#0d1117"/>
  <rect x="4" y="4" width="312" height="72" rx="6" fill="none" stroke="{{.Color}}" stroke-width="2"/>
  <text x="16" y="30" font-family="Verdana,sans-serif" font-size="14" fill="#e6edf3">{{.Username}}</text>
  <text x="16" y="58" font-family="Verdana,sans-serif" font-size="20" font-weight="bold" fill="{{.Color}}">{{.Emoji}} {{.Score}}</text>
  <text x="304" y="58" text-anchor="end" font-family="Verdana,sans-serif" font-size="12" fill="#8b949e">{{.RankCode}} &#183; {{.Title}}</text>
</svg>
`))

// SVGRenderer renders the badge as a standalone SVG document.
type SVGRenderer struct{}

// NewSVGRenderer creates the default badge renderer.
func NewSVGRenderer() *SVGRenderer {
	return &SVGRenderer{}
}

// ContentType implements Renderer.
func (r *SVGRenderer) ContentType() string {
	return "image/svg+xml"
}

// Render implements Renderer. User-supplied fields pass through the
// template engine's escaping, so a hostile username cannot inject markup.
func (r *SVGRenderer) Render(stats *types.CachedStats, rank types.Rank, scoreValue float64) ([]byte, error) {
	if stats == nil {
		return nil, fmt.Errorf("rendering badge: nil stats")
	}

	color, ok := rankColors[rank.ColorToken]
	if !ok {
		color = defaultRankColor
	}

	var buf bytes.Buffer
	err := svgTemplate.Execute(&buf, map[string]any{
		"Username": stats.Username,
		"Score":    fmt.Sprintf("%.0f", scoreValue),
		"Emoji":    rank.Emoji,
		"RankCode": rank.Code,
		"Title":    rank.Title,
		"Color":    color,
	})
	if err != nil {
		return nil, fmt.Errorf("rendering badge: %w", err)
	}
	return buf.Bytes(), nil
}
