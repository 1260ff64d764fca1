package policy

import (
	"testing"
	"time"

	communitydomain "github.com/communityhq/billingcore/internal/community/domain"
	"github.com/stretchr/testify/assert"
)

var now = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func ptrTime(t time.Time) *time.Time { return &t }

func TestEvaluatePaid(t *testing.T) {
	c := &communitydomain.Community{PaymentStatus: communitydomain.PaymentStatusPaid}

	d := Evaluate(c, now)
	assert.True(t, d.HasAccess)
	assert.Equal(t, SourcePaid, d.Source)
	assert.Equal(t, 0, d.DaysRemaining)
	assert.False(t, d.TrialEligible)
}

func TestEvaluateActiveTrial(t *testing.T) {
	c := &communitydomain.Community{
		PaymentStatus: communitydomain.PaymentStatusUnpaid,
		Trial: communitydomain.TrialInfo{
			Activated:    true,
			HasUsedTrial: true,
			EndDate:      ptrTime(now.Add(5 * 24 * time.Hour)),
		},
	}

	d := Evaluate(c, now)
	assert.True(t, d.HasAccess)
	assert.Equal(t, SourceTrial, d.Source)
	assert.Equal(t, 5, d.DaysRemaining)
	assert.False(t, d.TrialEligible)
}

func TestEvaluateTrialEndedNoAccess(t *testing.T) {
	c := &communitydomain.Community{
		Trial: communitydomain.TrialInfo{
			Activated:    true,
			HasUsedTrial: true,
			EndDate:      ptrTime(now.Add(-time.Hour)),
		},
	}

	d := Evaluate(c, now)
	assert.False(t, d.HasAccess)
	assert.Equal(t, SourceNone, d.Source)
	assert.False(t, d.TrialEligible, "a used trial is never eligible again")
}

func TestEvaluateLegacyTrial(t *testing.T) {
	c := &communitydomain.Community{
		FreeTrialActivated:  true,
		SubscriptionEndDate: ptrTime(now.Add(48 * time.Hour)),
	}

	d := Evaluate(c, now)
	assert.True(t, d.HasAccess)
	assert.Equal(t, SourceLegacyTrial, d.Source)
	assert.Equal(t, 2, d.DaysRemaining)
}

func TestEvaluateFailsClosedOnMissingTrialEnd(t *testing.T) {
	c := &communitydomain.Community{
		Trial: communitydomain.TrialInfo{Activated: true, HasUsedTrial: true},
	}

	d := Evaluate(c, now)
	assert.False(t, d.HasAccess)
	assert.True(t, d.Fault)
}

func TestEvaluateFailsClosedOnMissingLegacyEnd(t *testing.T) {
	c := &communitydomain.Community{FreeTrialActivated: true}

	d := Evaluate(c, now)
	assert.False(t, d.HasAccess)
	assert.True(t, d.Fault)
}

func TestEvaluateNilCommunity(t *testing.T) {
	d := Evaluate(nil, now)
	assert.False(t, d.HasAccess)
	assert.True(t, d.Fault)
}

func TestTrialEligibleWhenUnused(t *testing.T) {
	c := &communitydomain.Community{}

	d := Evaluate(c, now)
	assert.False(t, d.HasAccess)
	assert.True(t, d.TrialEligible)
}

func TestDaysRemainingRoundsUp(t *testing.T) {
	cases := []struct {
		name string
		end  time.Time
		want int
	}{
		{"exactly five days", now.Add(5 * 24 * time.Hour), 5},
		{"five days minus a second", now.Add(5*24*time.Hour - time.Second), 5},
		{"one second left", now.Add(time.Second), 1},
		{"already ended", now.Add(-time.Second), 0},
		{"ends right now", now, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := &communitydomain.Community{
				Trial: communitydomain.TrialInfo{
					Activated:    true,
					HasUsedTrial: true,
					EndDate:      ptrTime(tc.end),
				},
			}
			assert.Equal(t, tc.want, DaysRemaining(c, now))
		})
	}
}

func TestDaysRemainingPrefersTrialEnd(t *testing.T) {
	c := &communitydomain.Community{
		Trial:               communitydomain.TrialInfo{EndDate: ptrTime(now.Add(3 * 24 * time.Hour))},
		SubscriptionEndDate: ptrTime(now.Add(10 * 24 * time.Hour)),
	}
	assert.Equal(t, 3, DaysRemaining(c, now))
}

func TestDaysRemainingZeroWhenPaid(t *testing.T) {
	c := &communitydomain.Community{
		PaymentStatus:       communitydomain.PaymentStatusPaid,
		SubscriptionEndDate: ptrTime(now.Add(10 * 24 * time.Hour)),
	}
	assert.Equal(t, 0, DaysRemaining(c, now))
}

func TestTrialExpired(t *testing.T) {
	expired := &communitydomain.Community{
		Trial: communitydomain.TrialInfo{
			Activated: true,
			EndDate:   ptrTime(now.Add(-time.Minute)),
		},
	}
	assert.True(t, TrialExpired(expired, now))

	converted := &communitydomain.Community{
		Trial: communitydomain.TrialInfo{
			Activated: true,
			Converted: true,
			EndDate:   ptrTime(now.Add(-time.Minute)),
		},
	}
	assert.False(t, TrialExpired(converted, now))

	running := &communitydomain.Community{
		Trial: communitydomain.TrialInfo{
			Activated: true,
			EndDate:   ptrTime(now.Add(time.Minute)),
		},
	}
	assert.False(t, TrialExpired(running, now))
}
