// Package pricing resolves the catalog windows covering a requested time
// range and evaluates pricing rules on top of their base prices.  Everything
// here is a pure function of its inputs; loading definitions and rules is
// the caller's job.
package pricing

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/iliyamo/court-slot-booking/internal/model"
)

// ErrNoDefinitionFound is returned when the requested window does not align
// with a contiguous run of active catalog windows.
var ErrNoDefinitionFound = errors.New("no time slot definition covers the window")

// ErrInvalidRule is returned when a matching rule carries an unusable value.
var ErrInvalidRule = errors.New("invalid pricing rule")

// Cover returns the active definitions that tile [start, end) exactly, in
// start order.  defs must belong to a single court and weekday.
func Cover(defs []model.TimeSlotDefinition, start, end model.TimeOfDay) ([]model.TimeSlotDefinition, error) {
	if start >= end {
		return nil, ErrNoDefinitionFound
	}
	inside := make([]model.TimeSlotDefinition, 0, len(defs))
	for _, d := range defs {
		if !d.IsActive {
			continue
		}
		if d.StartTime >= start && d.EndTime <= end {
			inside = append(inside, d)
		}
	}
	if len(inside) == 0 {
		return nil, ErrNoDefinitionFound
	}
	sort.Slice(inside, func(i, j int) bool { return inside[i].StartTime < inside[j].StartTime })
	cursor := start
	for _, d := range inside {
		if d.StartTime != cursor {
			return nil, ErrNoDefinitionFound
		}
		cursor = d.EndTime
	}
	if cursor != end {
		return nil, ErrNoDefinitionFound
	}
	return inside, nil
}

// Price sums the slot price of every covered definition on date.
func Price(covered []model.TimeSlotDefinition, date time.Time, rules []model.PricingRule) (int64, error) {
	if len(covered) == 0 {
		return 0, ErrNoDefinitionFound
	}
	var total int64
	for _, d := range covered {
		p, err := SlotPrice(d, date, rules)
		if err != nil {
			return 0, err
		}
		total += p
	}
	return total, nil
}

// SlotPrice evaluates the rules applicable to one slot.  The catalog base
// price is replaced by the first matching base_price rule; the first
// matching fixed_override then wins outright; otherwise every matching
// multiplier is applied.  The result is floored to the minor unit.
func SlotPrice(def model.TimeSlotDefinition, date time.Time, rules []model.PricingRule) (int64, error) {
	matching := Applicable(def, date, rules)

	price := new(big.Rat).SetInt64(def.BasePrice)
	for _, r := range matching {
		if r.RuleType != model.RuleBasePrice {
			continue
		}
		v, err := value(r)
		if err != nil {
			return 0, err
		}
		price = v
		break
	}
	for _, r := range matching {
		if r.RuleType != model.RuleFixedOverride {
			continue
		}
		v, err := value(r)
		if err != nil {
			return 0, err
		}
		return floor(v)
	}
	for _, r := range matching {
		if r.RuleType != model.RuleMultiplier {
			continue
		}
		v, err := value(r)
		if err != nil {
			return 0, err
		}
		price.Mul(price, v)
	}
	return floor(price)
}

// Applicable returns the rules that match def on date in evaluation order:
// priority ascending, then the more specific rule, then the smaller id.
func Applicable(def model.TimeSlotDefinition, date time.Time, rules []model.PricingRule) []model.PricingRule {
	out := make([]model.PricingRule, 0, len(rules))
	for _, r := range rules {
		if matches(r, def, date) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return before(out[i], out[j]) })
	return out
}

func matches(r model.PricingRule, def model.TimeSlotDefinition, date time.Time) bool {
	if !r.IsActive || r.VenueID != def.VenueID {
		return false
	}
	if r.CourtID != nil && *r.CourtID != def.CourtID {
		return false
	}
	if date.Before(r.ValidFrom) || date.After(r.ValidTo) {
		return false
	}
	if r.DayOfWeek != nil && *r.DayOfWeek != date.Weekday() {
		return false
	}
	if r.StartTime != nil && def.StartTime < *r.StartTime {
		return false
	}
	if r.EndTime != nil && def.EndTime > *r.EndTime {
		return false
	}
	return true
}

func before(a, b model.PricingRule) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if (a.CourtID != nil) != (b.CourtID != nil) {
		return a.CourtID != nil
	}
	if wa, wb := width(a), width(b); wa != wb {
		return wa < wb
	}
	if (a.DayOfWeek != nil) != (b.DayOfWeek != nil) {
		return a.DayOfWeek != nil
	}
	return a.ID < b.ID
}

// width is the length of the rule's time filter; an open side extends to
// the start or end of the day.
func width(r model.PricingRule) model.TimeOfDay {
	start, end := model.TimeOfDay(0), model.TimeOfDay(model.MinutesPerDay)
	if r.StartTime != nil {
		start = *r.StartTime
	}
	if r.EndTime != nil {
		end = *r.EndTime
	}
	return end - start
}

func value(r model.PricingRule) (*big.Rat, error) {
	v, ok := new(big.Rat).SetString(r.PriceValue)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: rule %d has value %q", ErrInvalidRule, r.ID, r.PriceValue)
	}
	return v, nil
}

func floor(v *big.Rat) (int64, error) {
	q := new(big.Int).Quo(v.Num(), v.Denom())
	if !q.IsInt64() {
		return 0, fmt.Errorf("%w: price overflows", ErrInvalidRule)
	}
	return q.Int64(), nil
}
