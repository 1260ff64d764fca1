// Package policy computes access, trial eligibility and remaining days for a
// community from its billing state and the current time. Everything here is
// pure; writes (suspension, expiry) happen in the scheduler and the
// reconciliation service, which call into this package.
package policy

import (
	"time"

	communitydomain "github.com/communityhq/billingcore/internal/community/domain"
)

// AccessSource says which grant is backing access right now.
type AccessSource string

const (
	SourceNone        AccessSource = "none"
	SourcePaid        AccessSource = "paid"
	SourceTrial       AccessSource = "trial"
	SourceLegacyTrial AccessSource = "legacy_trial"
)

// Decision is the outcome of evaluating one community at one instant.
type Decision struct {
	HasAccess     bool
	Source        AccessSource
	DaysRemaining int
	TrialEligible bool
	// Fault is set when grant data is malformed (activated trial without an
	// end date, period ending before it starts). The engine fails closed;
	// the caller decides whether to apply the documented fail-open default.
	Fault bool
}

// Evaluate applies the access rules:
// paid, or an activated trial that has not ended, or the legacy free-trial
// flag backed by the subscription end date.
func Evaluate(c *communitydomain.Community, now time.Time) Decision {
	d := Decision{Source: SourceNone}
	if c == nil {
		d.Fault = true
		return d
	}

	if c.PaymentStatus == communitydomain.PaymentStatusPaid {
		d.HasAccess = true
		d.Source = SourcePaid
		return d
	}

	if c.Trial.Activated && !c.Trial.Cancelled {
		if c.Trial.EndDate == nil {
			d.Fault = true
		} else if c.Trial.EndDate.After(now) {
			d.HasAccess = true
			d.Source = SourceTrial
			d.DaysRemaining = daysRemaining(*c.Trial.EndDate, now)
		}
	}

	if !d.HasAccess && c.FreeTrialActivated {
		if c.SubscriptionEndDate == nil {
			d.Fault = true
		} else if c.SubscriptionEndDate.After(now) {
			d.HasAccess = true
			d.Source = SourceLegacyTrial
			d.DaysRemaining = daysRemaining(*c.SubscriptionEndDate, now)
		}
	}

	d.TrialEligible = !d.HasAccess && !c.Trial.HasUsedTrial
	return d
}

// DaysRemaining reports days left on the active time-boxed grant, zero when
// fully paid or nothing is running. Trial end is preferred over the
// subscription end date.
func DaysRemaining(c *communitydomain.Community, now time.Time) int {
	if c == nil {
		return 0
	}
	if c.PaymentStatus == communitydomain.PaymentStatusPaid {
		return 0
	}
	end := c.Trial.EndDate
	if end == nil {
		end = c.SubscriptionEndDate
	}
	if end == nil {
		return 0
	}
	return daysRemaining(*end, now)
}

// TrialExpired reports whether an activated, unconverted trial has run out.
func TrialExpired(c *communitydomain.Community, now time.Time) bool {
	if c == nil || !c.Trial.Activated || c.Trial.Converted || c.Trial.Cancelled {
		return false
	}
	return c.Trial.EndDate != nil && c.Trial.EndDate.Before(now)
}

// daysRemaining rounds up: 5 days minus one second still counts as 5.
func daysRemaining(end, now time.Time) int {
	remaining := end.Sub(now)
	if remaining <= 0 {
		return 0
	}
	days := int((remaining + 24*time.Hour - 1) / (24 * time.Hour))
	return days
}
