package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFraudAlert_Transition(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	t.Run("open to investigating to blocked", func(t *testing.T) {
		a := &FraudAlert{ID: "A1", Status: AlertOpen}
		require.NoError(t, a.Transition(AlertInvestigating, now))
		require.NoError(t, a.Transition(AlertBlocked, now.Add(time.Minute)))
		assert.Equal(t, AlertBlocked, a.Status)
		assert.Equal(t, now.Add(time.Minute), a.UpdatedAt)
	})

	t.Run("terminal states reject transitions", func(t *testing.T) {
		a := &FraudAlert{ID: "A2", Status: AlertDismissed}
		err := a.Transition(AlertBlocked, now)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, AlertDismissed, a.Status)
	})

	t.Run("cannot reopen", func(t *testing.T) {
		a := &FraudAlert{ID: "A3", Status: AlertInvestigating}
		assert.ErrorIs(t, a.Transition(AlertOpen, now), ErrInvalidTransition)
	})
}

func TestInvestigation_Close(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	i := &Investigation{ID: "I1", Status: InvestigationOpen}
	require.NoError(t, i.Close(InvestigationResolved, now))
	assert.Equal(t, InvestigationResolved, i.Status)
	require.NotNil(t, i.ClosedAt)

	assert.ErrorIs(t, i.Close(InvestigationIgnored, now), ErrInvalidTransition)

	j := &Investigation{ID: "I2", Status: InvestigationOpen}
	assert.ErrorIs(t, j.Close(InvestigationOpen, now), ErrInvalidTransition)
}

func TestSeverity_AtLeast(t *testing.T) {
	assert.True(t, SeverityHigh.AtLeast(SeverityMedium))
	assert.True(t, SeverityMedium.AtLeast(SeverityMedium))
	assert.False(t, SeverityLow.AtLeast(SeverityMedium))
	assert.False(t, Severity("bogus").Valid())
}
