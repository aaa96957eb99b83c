// Package style extracts inline presentation directives from message text.
// Directive tokens are plain words viewers type after their message, e.g.
// "通知 居中 黄" renders "通知" top-fixed in yellow.
package style

import (
	"strings"

	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/domain"
)

// positionKeywords maps directive tokens to render positions.
var positionKeywords = map[string]domain.Position{
	"居中":  domain.PositionTopFixed,
	"下居中": domain.PositionBottomFixed,
}

// colorKeywords maps the eight named colors to their fixed hex values.
var colorKeywords = map[string]string{
	"白": "#FFFFFF",
	"黄": "#FFCC02",
	"红": "#FF3B2F",
	"橙": "#FF9500",
	"蓝": "#31ADE6",
	"绿": "#35C759",
	"紫": "#AF52DE",
	"灰": "#8E8E93",
}

// outlineColors are the darker hues that need a contrasting stroke.
var outlineColors = map[string]bool{
	"蓝": true,
	"绿": true,
	"紫": true,
	"灰": true,
}

// Parse splits text on whitespace and consumes directive tokens. The first
// token is always content. For each category the last directive wins.
// Content token order is preserved with directives excised, so parsing the
// returned text again is a no-op.
func Parse(text string) (string, domain.Style) {
	s := domain.DefaultStyle()

	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return "", s
	}

	content := tokens[:1]
	for _, tok := range tokens[1:] {
		if pos, ok := positionKeywords[tok]; ok {
			s.Position = pos
			continue
		}
		if hex, ok := colorKeywords[tok]; ok {
			s.Color = hex
			s.Outline = outlineColors[tok]
			continue
		}
		content = append(content, tok)
	}

	return strings.Join(content, " "), s
}
