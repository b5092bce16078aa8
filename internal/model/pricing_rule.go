package model

import "time"

// RuleType selects how a pricing rule affects a slot price.
type RuleType string

const (
    RuleBasePrice     RuleType = "base_price"
    RuleMultiplier    RuleType = "multiplier"
    RuleFixedOverride RuleType = "fixed_override"
)

// PricingRule adjusts catalog prices for a venue or a single court.  The
// optional filters narrow the rule to a weekday and/or a time window.
// PriceValue is the decimal literal as stored: minor units for base_price
// and fixed_override, a factor such as "1.2" for multiplier.
type PricingRule struct {
    ID         uint64        `json:"id"`                    // pricing_rules.id
    VenueID    uint64        `json:"venue_id"`              // pricing_rules.venue_id
    CourtID    *uint64       `json:"court_id,omitempty"`    // pricing_rules.court_id (nullable)
    RuleType   RuleType      `json:"rule_type"`             // pricing_rules.rule_type
    DayOfWeek  *time.Weekday `json:"day_of_week,omitempty"` // pricing_rules.day_of_week (nullable)
    StartTime  *TimeOfDay    `json:"start_time,omitempty"`  // pricing_rules.start_time (nullable)
    EndTime    *TimeOfDay    `json:"end_time,omitempty"`    // pricing_rules.end_time (nullable)
    PriceValue string        `json:"price_value"`           // pricing_rules.price_value DECIMAL(12,4)
    ValidFrom  time.Time     `json:"valid_from"`            // pricing_rules.valid_from
    ValidTo    time.Time     `json:"valid_to"`              // pricing_rules.valid_to
    Priority   int           `json:"priority"`              // pricing_rules.priority
    IsActive   bool          `json:"is_active"`             // pricing_rules.is_active
}
