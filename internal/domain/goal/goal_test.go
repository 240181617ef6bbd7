package goal

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/personal-finance-ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNewGoal(t *testing.T) {
	owner := uuid.New()
	source := uuid.New()
	now := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC) // Monday

	t.Run("UnscheduledGoal", func(t *testing.T) {
		g, err := NewGoal(owner, Params{Name: " Emergency Fund ", TargetAmount: 500000}, now)

		require.NoError(t, err)
		assert.Equal(t, "Emergency Fund", g.Name)
		assert.Equal(t, StatusActive, g.Status)
		assert.Equal(t, FrequencyNone, g.Frequency)
		assert.Nil(t, g.NextContributionDate)
		assert.Empty(t, g.MilestonesReached)
	})

	t.Run("WeeklyScheduleComputesFirstDate", func(t *testing.T) {
		g, err := NewGoal(owner, Params{
			Name:               "Vacation",
			TargetAmount:       200000,
			SourceAccountID:    &source,
			Frequency:          FrequencyWeekly,
			DayOfWeek:          intPtr(5),
			ContributionAmount: 5000,
		}, now)

		require.NoError(t, err)
		require.NotNil(t, g.NextContributionDate)
		assert.Equal(t, day(2024, 6, 7), *g.NextContributionDate)
	})

	invalid := []struct {
		name   string
		params Params
	}{
		{"missing name", Params{TargetAmount: 100}},
		{"zero target", Params{Name: "x"}},
		{"negative contribution", Params{Name: "x", TargetAmount: 100, ContributionAmount: -1}},
		{"bad weekday", Params{Name: "x", TargetAmount: 100, DayOfWeek: intPtr(7)}},
		{"bad month day", Params{Name: "x", TargetAmount: 100, DayOfMonth: intPtr(0)}},
		{"schedule without amount", Params{Name: "x", TargetAmount: 100, Frequency: FrequencyDaily}},
		{"schedule without source", Params{Name: "x", TargetAmount: 100, Frequency: FrequencyDaily, ContributionAmount: 500}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGoal(owner, tt.params, now)
			assert.Equal(t, shared.KindValidation, shared.KindOf(err))
		})
	}
}

func TestNewMilestones(t *testing.T) {
	tests := []struct {
		name      string
		newAmount int64
		target    int64
		recorded  []int
		expected  []int
	}{
		{name: "crossing sixty", newAmount: 65, target: 100, recorded: []int{10, 25, 40}, expected: []int{60}},
		{name: "already recorded", newAmount: 65, target: 100, recorded: []int{10, 25, 40, 60}, expected: nil},
		{name: "exactly on threshold", newAmount: 2500, target: 10000, recorded: []int{10}, expected: []int{25}},
		{name: "just below threshold", newAmount: 2499, target: 10000, recorded: []int{10}, expected: nil},
		{name: "jump over several", newAmount: 80, target: 100, recorded: []int{10}, expected: []int{25, 40, 60, 75}},
		{name: "hundred is not a milestone", newAmount: 100, target: 100, recorded: []int{10, 25, 40, 60, 75, 90}, expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NewMilestones(tt.newAmount, tt.target, tt.recorded))
		})
	}
}

func TestGoal_ApplyContribution(t *testing.T) {
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

	t.Run("CompletesGoalAndFiresNinety", func(t *testing.T) {
		g := &Goal{
			ID:                uuid.New(),
			TargetAmount:      500000,
			CurrentAmount:     490000,
			Status:            StatusActive,
			Frequency:         FrequencyMonthly,
			MilestonesReached: []int{10, 25, 40, 60, 75},
		}

		out, err := g.ApplyContribution(20000, now)

		require.NoError(t, err)
		assert.Equal(t, int64(510000), g.CurrentAmount)
		assert.Equal(t, []int{90}, out.NewMilestones)
		assert.True(t, out.Completed)
		assert.Equal(t, StatusCompleted, g.Status)
		assert.Nil(t, g.NextContributionDate)
		assert.Equal(t, []int{10, 25, 40, 60, 75, 90}, g.MilestonesReached)
	})

	t.Run("MilestoneRecordedOnce", func(t *testing.T) {
		g := &Goal{ID: uuid.New(), TargetAmount: 10000, CurrentAmount: 5500, Status: StatusActive, Frequency: FrequencyNone, MilestonesReached: []int{10, 25, 40}}

		first, err := g.ApplyContribution(1000, now)
		require.NoError(t, err)
		second, err := g.ApplyContribution(100, now)
		require.NoError(t, err)

		assert.Equal(t, []int{60}, first.NewMilestones)
		assert.Empty(t, second.NewMilestones)
		assert.False(t, second.Completed)
	})

	t.Run("AdvancesSchedule", func(t *testing.T) {
		g := &Goal{ID: uuid.New(), TargetAmount: 10000, Status: StatusActive, Frequency: FrequencyDaily}

		_, err := g.ApplyContribution(100, now)

		require.NoError(t, err)
		require.NotNil(t, g.NextContributionDate)
		assert.Equal(t, day(2024, 6, 4), *g.NextContributionDate)
	})

	t.Run("PausedGoalRejected", func(t *testing.T) {
		g := &Goal{ID: uuid.New(), TargetAmount: 10000, Status: StatusPaused}

		_, err := g.ApplyContribution(100, now)

		assert.ErrorAs(t, err, &ErrGoalNotActive{})
		assert.Equal(t, int64(0), g.CurrentAmount)
	})
}

func TestGoal_CheckOwner(t *testing.T) {
	g := &Goal{ID: uuid.New(), OwnerID: uuid.New()}
	assert.NoError(t, g.CheckOwner(g.OwnerID))
	assert.Equal(t, shared.KindAuthorization, shared.KindOf(g.CheckOwner(uuid.New())))
}
