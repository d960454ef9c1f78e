package cli

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/amp-labs/amp-fsm/envutil"
)

const (
	boxTopLeft     = "╒"
	boxBottomLeft  = "└"
	boxTopRight    = "╕"
	boxBottomRight = "┘"
	boxSide        = "│"
	boxTop         = "═"
	boxBottom      = "─"
	ellipsis       = "…"
)

const (
	AlignLeft = iota
	AlignCenter
	AlignRight

	bannerPadding   = 2
	truncateReserve = 1
	halfDivisor     = 2
)

// DefaultWidth is the banner width fsmctl uses.
const DefaultWidth = 60

var suppressBanner = sync.OnceValue(func() bool { //nolint:gochecknoglobals
	return envutil.Bool(context.Background(), "FSM_NO_BANNER", envutil.Default(false)).ValueOrElse(false)
})

// Banner draws s in a box of the given width. Setting FSM_NO_BANNER returns s unboxed.
func Banner(s string, width int, alignment int) string {
	if suppressBanner() {
		return s + "\n"
	}

	return banner(s, width, alignment)
}

func banner(s string, width int, alignment int) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")

	if width <= bannerPadding {
		return ""
	}

	inner := width - bannerPadding
	parts := []string{boxTopLeft + strings.Repeat(boxTop, inner) + boxTopRight}

	for _, l := range lines {
		var line string

		switch alignment {
		case AlignCenter:
			line = pad(l, inner, func(diff int) (int, int) { return diff / halfDivisor, diff - diff/halfDivisor })
		case AlignLeft:
			line = pad(l, inner, func(diff int) (int, int) { return 0, diff })
		case AlignRight:
			line = pad(l, inner, func(diff int) (int, int) { return diff, 0 })
		default:
			return ""
		}

		parts = append(parts, boxSide+line+boxSide)
	}

	parts = append(parts, boxBottomLeft+strings.Repeat(boxBottom, inner)+boxBottomRight)

	return strings.Join(parts, "\n") + "\n"
}

func countGraphic(s string) int {
	count := 0

	for _, r := range s {
		if unicode.IsGraphic(r) {
			count++
		}
	}

	return count
}

func truncateGraphic(s string, n int) (string, int) {
	var out strings.Builder

	count := 0

	for _, r := range s {
		if unicode.IsGraphic(r) {
			if count == n {
				break
			}

			count++
		}

		out.WriteRune(r)
	}

	return out.String(), count
}

// pad fits text to width, truncating with an ellipsis when it is too long.
// split divides the remaining space into left and right padding.
func pad(text string, width int, split func(diff int) (int, int)) string {
	length := countGraphic(text)
	if length == width {
		return text
	}

	if length > width {
		text, length = truncateGraphic(text, width-truncateReserve)
		text += ellipsis
		length++
	}

	left, right := split(width - length)

	return fmt.Sprintf("%s%s%s", strings.Repeat(" ", left), text, strings.Repeat(" ", right))
}
