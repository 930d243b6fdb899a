package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/casesync/internal/tracker"
)

func rec(sys tracker.System, id, title string, st tracker.Status) tracker.Record {
	return tracker.Record{ID: id, Title: title, Status: st, System: sys}
}

func TestMatch_ExactTitle(t *testing.T) {
	primary := []tracker.Record{
		rec(tracker.SystemA, "1", "Printer jam", "Open"),
		rec(tracker.SystemA, "2", "VPN down", "Closed"),
	}
	secondary := []tracker.Record{
		rec(tracker.SystemB, "9", "VPN down", "New"),
	}

	pairs := Match(primary, secondary)
	require.Len(t, pairs, 2)

	assert.False(t, pairs[0].Matched())
	assert.Equal(t, 0, pairs[0].Candidates)

	require.True(t, pairs[1].Matched())
	assert.Equal(t, "9", pairs[1].Counterpart.ID)
	assert.False(t, pairs[1].Ambiguous())
}

func TestMatch_CaseSensitive(t *testing.T) {
	pairs := Match(
		[]tracker.Record{rec(tracker.SystemA, "1", "VPN Down", "Open")},
		[]tracker.Record{rec(tracker.SystemB, "9", "VPN down", "New")},
	)
	assert.False(t, pairs[0].Matched())
}

func TestMatch_NoFuzzyWhitespace(t *testing.T) {
	pairs := Match(
		[]tracker.Record{rec(tracker.SystemA, "1", "VPN down ", "Open")},
		[]tracker.Record{rec(tracker.SystemB, "9", "VPN down", "New")},
	)
	assert.False(t, pairs[0].Matched())
}

func TestMatch_UnicodeNormalization(t *testing.T) {
	// "Café" precomposed vs. "Cafe" + combining acute accent.
	pairs := Match(
		[]tracker.Record{rec(tracker.SystemA, "1", "Caf\u00e9 login", "Open")},
		[]tracker.Record{rec(tracker.SystemB, "9", "Cafe\u0301 login", "New")},
	)
	require.True(t, pairs[0].Matched())
	assert.Equal(t, "9", pairs[0].Counterpart.ID)
}

func TestMatch_FirstMatchWins(t *testing.T) {
	secondary := []tracker.Record{
		rec(tracker.SystemB, "7", "X", "Active"),
		rec(tracker.SystemB, "3", "X", "New"),
		rec(tracker.SystemB, "5", "Y", "New"),
	}

	pairs := Match([]tracker.Record{rec(tracker.SystemA, "1", "X", "Closed")}, secondary)
	require.True(t, pairs[0].Matched())
	assert.Equal(t, "7", pairs[0].Counterpart.ID, "encounter order decides, not ID order")
	assert.True(t, pairs[0].Ambiguous())
	assert.Equal(t, 2, pairs[0].Candidates)
}

func TestMatch_CounterpartIsCopy(t *testing.T) {
	secondary := []tracker.Record{rec(tracker.SystemB, "9", "X", "New")}
	pairs := Match([]tracker.Record{rec(tracker.SystemA, "1", "X", "Closed")}, secondary)

	pairs[0].Counterpart.Status = "Closed"
	assert.Equal(t, tracker.Status("New"), secondary[0].Status)
}

func TestUnmatched(t *testing.T) {
	pairs := Match(
		[]tracker.Record{
			rec(tracker.SystemA, "1", "X", "Open"),
			rec(tracker.SystemA, "2", "Y", "Open"),
		},
		[]tracker.Record{rec(tracker.SystemB, "9", "Y", "New")},
	)
	unmatched := Unmatched(pairs)
	require.Len(t, unmatched, 1)
	assert.Equal(t, "1", unmatched[0].ID)
}

func TestMatch_EmptyInputs(t *testing.T) {
	assert.Empty(t, Match(nil, nil))
	pairs := Match([]tracker.Record{rec(tracker.SystemA, "1", "X", "Open")}, nil)
	assert.False(t, pairs[0].Matched())
}
