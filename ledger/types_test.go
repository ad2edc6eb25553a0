package ledger_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlane/invoice-engine/ledger"
)

// =============================================================================
// MONTH VALIDATION
// =============================================================================

func TestNewMonth_Valid(t *testing.T) {
	m, err := ledger.NewMonth(2026, 3)
	require.NoError(t, err)
	assert.Equal(t, 2026, m.Year)
	assert.Equal(t, time.March, m.Month)
}

func TestNewMonth_OutOfRange(t *testing.T) {
	_, err := ledger.NewMonth(2026, 0)
	assert.Error(t, err)

	_, err = ledger.NewMonth(2026, 13)
	assert.Error(t, err)

	_, err = ledger.NewMonth(0, 5)
	assert.Error(t, err)
}

// =============================================================================
// MONTH BOUNDARIES
// =============================================================================

func TestMonth_Boundaries(t *testing.T) {
	// GIVEN: March 2026
	// THEN: The month covers [Mar 1, Apr 1) exactly

	m := ledger.Month{Year: 2026, Month: time.March}

	assert.Equal(t, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), m.Start())
	assert.Equal(t, time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC), m.End())

	assert.True(t, m.Contains(time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, m.Contains(time.Date(2026, time.March, 31, 23, 59, 59, 0, time.UTC)))
	assert.False(t, m.Contains(time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, m.Contains(time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC)))
}

func TestMonth_DecemberRollsIntoNextYear(t *testing.T) {
	m := ledger.Month{Year: 2025, Month: time.December}

	assert.Equal(t, time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC), m.End())
	assert.Equal(t, ledger.Month{Year: 2026, Month: time.January}, m.Next())
}

func TestMonth_Ordering(t *testing.T) {
	feb := ledger.Month{Year: 2026, Month: time.February}
	mar := ledger.Month{Year: 2026, Month: time.March}
	dec25 := ledger.Month{Year: 2025, Month: time.December}

	assert.True(t, feb.Before(mar))
	assert.False(t, mar.Before(feb))
	assert.True(t, dec25.Before(feb))
	assert.True(t, feb.Equal(feb))
	assert.False(t, feb.Equal(mar))
}

func TestMonth_LabelAndKey(t *testing.T) {
	m := ledger.Month{Year: 2026, Month: time.March}

	assert.Equal(t, "March 2026", m.Label())
	assert.Equal(t, "2026-03", m.Key())
}

func TestMonthOf(t *testing.T) {
	m := ledger.MonthOf(time.Date(2026, time.July, 15, 10, 30, 0, 0, time.UTC))
	assert.Equal(t, ledger.Month{Year: 2026, Month: time.July}, m)
}
