package policy

import (
	"time"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"go-bridge-quorum/model"
)

// Window is the length of the rolling volume window.
const Window = 24 * time.Hour

// Change describes an administrative update so it can be audited.
type Change struct {
	Field string
	Old   string
	New   string
}

// RateLimiter applies per-transfer bounds and the rolling daily cap to the
// state it wraps. It has no other side effects.
type RateLimiter struct {
	s *model.RateLimitState
}

func NewRateLimiter(s *model.RateLimitState) RateLimiter {
	return RateLimiter{s: s}
}

// ResetWindowIfExpired starts a new window at now if the current one is at
// least Window old. The window drifts: it is not aligned to calendar days.
func (r RateLimiter) ResetWindowIfExpired(now time.Time) bool {
	if now.Before(r.s.WindowStart.Add(Window)) {
		return false
	}
	r.s.DailyTotal.Clear()
	r.s.WindowStart = now
	return true
}

// CheckAndReserve validates a deposit amount and adds it to the daily total.
func (r RateLimiter) CheckAndReserve(amount *uint256.Int) error {
	return r.checkAndReserve(amount, true)
}

// CheckAndReserveWithdrawal is CheckAndReserve without the minimum bound.
func (r RateLimiter) CheckAndReserveWithdrawal(amount *uint256.Int) error {
	return r.checkAndReserve(amount, false)
}

func (r RateLimiter) checkAndReserve(amount *uint256.Int, enforceMin bool) error {
	if amount.Gt(&r.s.MaxPerTx) {
		return errors.Wrapf(model.ErrExceedsMax, "amount %s max %s", amount.Dec(), r.s.MaxPerTx.Dec())
	}
	if enforceMin && amount.Lt(&r.s.MinPerTx) {
		return errors.Wrapf(model.ErrBelowMin, "amount %s min %s", amount.Dec(), r.s.MinPerTx.Dec())
	}
	total, overflow := new(uint256.Int).AddOverflow(&r.s.DailyTotal, amount)
	if overflow || total.Gt(&r.s.DailyCap) {
		return errors.Wrapf(model.ErrExceedsDailyCap, "daily total %s amount %s cap %s",
			r.s.DailyTotal.Dec(), amount.Dec(), r.s.DailyCap.Dec())
	}
	r.s.DailyTotal.Set(total)
	return nil
}

func (r RateLimiter) SetMax(v *uint256.Int) (Change, error) {
	if v.IsZero() || v.Lt(&r.s.MinPerTx) {
		return Change{}, errors.Wrapf(model.ErrInvalidParameter, "max %s below min %s", v.Dec(), r.s.MinPerTx.Dec())
	}
	c := Change{Field: "maxPerTx", Old: r.s.MaxPerTx.Dec(), New: v.Dec()}
	r.s.MaxPerTx.Set(v)
	return c, nil
}

func (r RateLimiter) SetMin(v *uint256.Int) (Change, error) {
	if v.Gt(&r.s.MaxPerTx) {
		return Change{}, errors.Wrapf(model.ErrInvalidParameter, "min %s above max %s", v.Dec(), r.s.MaxPerTx.Dec())
	}
	c := Change{Field: "minPerTx", Old: r.s.MinPerTx.Dec(), New: v.Dec()}
	r.s.MinPerTx.Set(v)
	return c, nil
}

func (r RateLimiter) SetDailyCap(v *uint256.Int) (Change, error) {
	if v.IsZero() {
		return Change{}, errors.Wrap(model.ErrInvalidParameter, "daily cap must be positive")
	}
	c := Change{Field: "dailyCap", Old: r.s.DailyCap.Dec(), New: v.Dec()}
	r.s.DailyCap.Set(v)
	return c, nil
}
