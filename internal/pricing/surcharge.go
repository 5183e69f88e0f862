package pricing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type SurchargeType string

const (
	SurchargeCutoffTime SurchargeType = "CUTOFF_TIME"
	SurchargeTimeLeft   SurchargeType = "TIME_LEFT"
	SurchargeDateTime   SurchargeType = "DATETIME"
)

type SurchargeApplication string

const (
	ApplyPercentage  SurchargeApplication = "PERCENTAGE"
	ApplyFixedAmount SurchargeApplication = "FIXED_AMOUNT"
)

// Condition is the per-type trigger of a surcharge: a booking lead-time
// threshold or a time-of-day/date window. Each variant carries exactly the
// fields its type requires.
type Condition interface {
	Type() SurchargeType
	Validate() error
	// Matches decides applicability at quote time. minutesUntilPickup is nil
	// when the booking lead time is unknown; lead-time conditions never match
	// in that case.
	Matches(at time.Time, minutesUntilPickup *float64) bool
}

// CutoffTime triggers when the booking is made close to pickup.
type CutoffTime struct {
	CutoffMinutes float64 `json:"cutoff_minutes"`
}

func (c CutoffTime) Type() SurchargeType { return SurchargeCutoffTime }

func (c CutoffTime) Validate() error {
	if c.CutoffMinutes <= 0 {
		return fmt.Errorf("%w: CUTOFF_TIME requires cutoff_minutes", ErrInvalidSurcharge)
	}
	return nil
}

func (c CutoffTime) Matches(_ time.Time, minutesUntilPickup *float64) bool {
	return minutesUntilPickup != nil && *minutesUntilPickup <= c.CutoffMinutes
}

// TimeLeft triggers when little lead time remains before pickup.
type TimeLeft struct {
	TimeLeftMinutes float64 `json:"time_left_minutes"`
}

func (c TimeLeft) Type() SurchargeType { return SurchargeTimeLeft }

func (c TimeLeft) Validate() error {
	if c.TimeLeftMinutes <= 0 {
		return fmt.Errorf("%w: TIME_LEFT requires time_left_minutes", ErrInvalidSurcharge)
	}
	return nil
}

func (c TimeLeft) Matches(_ time.Time, minutesUntilPickup *float64) bool {
	return minutesUntilPickup != nil && *minutesUntilPickup <= c.TimeLeftMinutes
}

// ClockTime is minutes since local midnight, parsed from "HH:mm".
type ClockTime int

func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse clock time %q: %w", s, err)
	}
	return ClockTime(t.Hour()*60 + t.Minute()), nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := ParseClockTime(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ClockRange is a recurring daily window. Start > End means the window
// wraps past midnight, e.g. 22:00-06:00 covers 23:30 and 05:00.
type ClockRange struct {
	Start ClockTime `json:"start"`
	End   ClockTime `json:"end"`
}

func (r ClockRange) contains(c ClockTime) bool {
	if r.Start > r.End {
		return c >= r.Start || c <= r.End
	}
	return c >= r.Start && c <= r.End
}

// AbsoluteRange is a one-off window in absolute time, inclusive both ends.
type AbsoluteRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (r AbsoluteRange) contains(at time.Time) bool {
	return !at.Before(r.Start) && !at.After(r.End)
}

// DateTimeWindow triggers inside a recurring daily window or a one-off
// absolute window. Exactly one of TimeRange/DateTimeRange must be set.
// DaysOfWeek, when present, restricts the recurring window to those days.
type DateTimeWindow struct {
	TimeRange     *ClockRange    `json:"time_range,omitempty"`
	DateTimeRange *AbsoluteRange `json:"date_time_range,omitempty"`
	DaysOfWeek    []time.Weekday `json:"days_of_week,omitempty"`
}

func (c DateTimeWindow) Type() SurchargeType { return SurchargeDateTime }

func (c DateTimeWindow) Validate() error {
	if (c.TimeRange == nil) == (c.DateTimeRange == nil) {
		return fmt.Errorf("%w: DATETIME requires exactly one of time_range or date_time_range", ErrInvalidSurcharge)
	}
	for _, d := range c.DaysOfWeek {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("%w: day of week %d out of range", ErrInvalidSurcharge, d)
		}
	}
	return nil
}

func (c DateTimeWindow) Matches(at time.Time, _ *float64) bool {
	if c.DateTimeRange != nil {
		return c.DateTimeRange.contains(at)
	}
	if c.TimeRange == nil {
		return false
	}
	if len(c.DaysOfWeek) > 0 {
		ok := false
		for _, d := range c.DaysOfWeek {
			if at.Weekday() == d {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	clock := ClockTime(at.Hour()*60 + at.Minute())
	return c.TimeRange.contains(clock)
}

// Surcharge is a conditional fare modifier scoped to a region. All
// applicable surcharges stack additively against the pre-surcharge subtotal;
// Priority only orders the list.
type Surcharge struct {
	ID          string               `json:"id"`
	RegionID    string               `json:"region_id"`
	Name        string               `json:"name"`
	Condition   Condition            `json:"-"`
	Application SurchargeApplication `json:"application"`
	Value       decimal.Decimal      `json:"value"`
	Currency    string               `json:"currency,omitempty"`
	Active      bool                 `json:"active"`
	Priority    int                  `json:"priority"`
	ValidFrom   *time.Time           `json:"valid_from,omitempty"`
	ValidUntil  *time.Time           `json:"valid_until,omitempty"`
}

// Validate enforces the per-type required fields and the application rules.
// Runs at configuration-write time; the evaluator assumes valid records.
func (s Surcharge) Validate() error {
	if s.Condition == nil {
		return fmt.Errorf("%w: condition is required", ErrInvalidSurcharge)
	}
	if err := s.Condition.Validate(); err != nil {
		return err
	}
	switch s.Application {
	case ApplyPercentage:
	case ApplyFixedAmount:
		if s.Currency == "" {
			return fmt.Errorf("%w: FIXED_AMOUNT requires a currency", ErrInvalidSurcharge)
		}
	default:
		return fmt.Errorf("%w: unknown application %q", ErrInvalidSurcharge, s.Application)
	}
	if s.Value.IsNegative() {
		return fmt.Errorf("%w: value must not be negative", ErrInvalidSurcharge)
	}
	return nil
}

// conditionEnvelope is the JSON wire form with a type discriminator.
type conditionEnvelope struct {
	Type       SurchargeType   `json:"type"`
	CutoffTime json.RawMessage `json:"cutoff_time,omitempty"`
	TimeLeft   json.RawMessage `json:"time_left,omitempty"`
	DateTime   json.RawMessage `json:"datetime,omitempty"`
}

func MarshalCondition(c Condition) ([]byte, error) {
	if c == nil {
		return []byte("null"), nil
	}
	env := conditionEnvelope{Type: c.Type()}
	body, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	switch c.Type() {
	case SurchargeCutoffTime:
		env.CutoffTime = body
	case SurchargeTimeLeft:
		env.TimeLeft = body
	case SurchargeDateTime:
		env.DateTime = body
	default:
		return nil, fmt.Errorf("%w: unknown condition type %q", ErrInvalidSurcharge, c.Type())
	}
	return json.Marshal(env)
}

func UnmarshalCondition(data []byte) (Condition, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var env conditionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode condition envelope: %w", err)
	}
	switch env.Type {
	case SurchargeCutoffTime:
		var c CutoffTime
		if err := json.Unmarshal(env.CutoffTime, &c); err != nil {
			return nil, fmt.Errorf("decode cutoff_time: %w", err)
		}
		return c, nil
	case SurchargeTimeLeft:
		var c TimeLeft
		if err := json.Unmarshal(env.TimeLeft, &c); err != nil {
			return nil, fmt.Errorf("decode time_left: %w", err)
		}
		return c, nil
	case SurchargeDateTime:
		var c DateTimeWindow
		if err := json.Unmarshal(env.DateTime, &c); err != nil {
			return nil, fmt.Errorf("decode datetime: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: unknown condition type %q", ErrInvalidSurcharge, env.Type)
	}
}
