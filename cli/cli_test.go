package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerItems(t *testing.T) {
	t.Parallel()

	items := triggerItems([]string{"step10", "approve", "step2", "approve"}, false)
	assert.Equal(t, []string{itemQuit, "approve", "step2", "step10"}, items)

	items = triggerItems(nil, true)
	assert.Equal(t, []string{itemQuit, itemOther}, items)
}

func TestSearcher(t *testing.T) {
	t.Parallel()

	items := triggerItems([]string{"melt", "freeze", "evaporate"}, true)
	search := searcher(items)

	var matched []string

	for i := range items {
		if search("f", i) {
			matched = append(matched, items[i])
		}
	}

	assert.Equal(t, []string{"freeze"}, matched)
	assert.False(t, search("", 1))
	assert.False(t, search("[", 0), "control entries never match")
}

func TestTriggerSelect_NothingToSelect(t *testing.T) {
	t.Parallel()

	_, err := TriggerSelect{Label: "gas"}.Run()
	require.ErrorIs(t, err, ErrNoTriggers)
}

func TestBanner(t *testing.T) {
	t.Parallel()

	out := banner("door\npending", 12, AlignCenter)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")

	require.Len(t, lines, 4)
	assert.Equal(t, "╒══════════╕", lines[0])
	assert.Equal(t, "│   door   │", lines[1])
	assert.Equal(t, "│ pending  │", lines[2])
	assert.Equal(t, "└──────────┘", lines[3])

	assert.Equal(t, "│door      │", strings.Split(banner("door", 12, AlignLeft), "\n")[1])
	assert.Equal(t, "│      door│", strings.Split(banner("door", 12, AlignRight), "\n")[1])
	assert.Equal(t, "│approve-a…│", strings.Split(banner("approve-and-close", 12, AlignLeft), "\n")[1])

	assert.Empty(t, banner("door", 2, AlignLeft))
	assert.Empty(t, banner("door", 12, 99))
}

func TestNonEmpty(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, nonEmpty("  "), errEmpty)
	require.NoError(t, nonEmpty("melt"))
}
