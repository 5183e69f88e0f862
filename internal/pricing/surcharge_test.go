package pricing

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func mustClock(t *testing.T, s string) ClockTime {
	t.Helper()
	c, err := ParseClockTime(s)
	if err != nil {
		t.Fatalf("ParseClockTime(%q): %v", s, err)
	}
	return c
}

func TestParseClockTime(t *testing.T) {
	tests := []struct {
		in      string
		want    ClockTime
		wantErr bool
	}{
		{"00:00", 0, false},
		{"22:00", 22 * 60, false},
		{"23:59", 23*60 + 59, false},
		{"06:00", 6 * 60, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"noon", 0, true},
		{"12:34xyz", 0, true},
		{"007:1", 0, true},
		{"12:3", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseClockTime(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseClockTime(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseClockTime(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseClockTime(%q)=%d want %d", tt.in, got, tt.want)
		}
	}
}

func TestSurchargeValidate_RequiredFieldsPerType(t *testing.T) {
	tests := []struct {
		name string
		s    Surcharge
		ok   bool
	}{
		{
			name: "valid cutoff",
			s: Surcharge{
				Condition:   CutoffTime{CutoffMinutes: 60},
				Application: ApplyPercentage,
				Value:       decimal.NewFromInt(25),
			},
			ok: true,
		},
		{
			name: "cutoff missing minutes",
			s:    Surcharge{Condition: CutoffTime{}, Application: ApplyPercentage},
		},
		{
			name: "time left missing minutes",
			s:    Surcharge{Condition: TimeLeft{}, Application: ApplyPercentage},
		},
		{
			name: "datetime with neither range",
			s:    Surcharge{Condition: DateTimeWindow{}, Application: ApplyPercentage},
		},
		{
			name: "datetime with both ranges",
			s: Surcharge{
				Condition: DateTimeWindow{
					TimeRange:     &ClockRange{Start: 0, End: 60},
					DateTimeRange: &AbsoluteRange{Start: time.Now(), End: time.Now().Add(time.Hour)},
				},
				Application: ApplyPercentage,
			},
		},
		{
			name: "fixed amount without currency",
			s: Surcharge{
				Condition:   CutoffTime{CutoffMinutes: 30},
				Application: ApplyFixedAmount,
				Value:       decimal.NewFromInt(10),
			},
		},
		{
			name: "fixed amount with currency",
			s: Surcharge{
				Condition:   CutoffTime{CutoffMinutes: 30},
				Application: ApplyFixedAmount,
				Value:       decimal.NewFromInt(10),
				Currency:    "AED",
			},
			ok: true,
		},
		{
			name: "negative value",
			s: Surcharge{
				Condition:   CutoffTime{CutoffMinutes: 30},
				Application: ApplyPercentage,
				Value:       decimal.NewFromInt(-1),
			},
		},
		{
			name: "missing condition",
			s:    Surcharge{Application: ApplyPercentage},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			if tt.ok && err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidSurcharge) {
				t.Fatalf("err=%v want ErrInvalidSurcharge", err)
			}
		})
	}
}

func TestClockRange_WrapsPastMidnight(t *testing.T) {
	night := ClockRange{Start: mustClock(t, "22:00"), End: mustClock(t, "06:00")}

	tests := []struct {
		clock string
		want  bool
	}{
		{"23:30", true},
		{"05:00", true},
		{"22:00", true},
		{"06:00", true},
		{"12:00", false},
		{"21:59", false},
		{"06:01", false},
	}
	for _, tt := range tests {
		if got := night.contains(mustClock(t, tt.clock)); got != tt.want {
			t.Fatalf("contains(%s)=%v want %v", tt.clock, got, tt.want)
		}
	}

	day := ClockRange{Start: mustClock(t, "09:00"), End: mustClock(t, "17:00")}
	if !day.contains(mustClock(t, "12:00")) || day.contains(mustClock(t, "20:00")) {
		t.Fatalf("non-wrapping range misbehaves")
	}
}

func TestDateTimeWindow_DaysOfWeekGate(t *testing.T) {
	weekendNights := DateTimeWindow{
		TimeRange:  &ClockRange{Start: mustClock(t, "22:00"), End: mustClock(t, "06:00")},
		DaysOfWeek: []time.Weekday{time.Friday, time.Saturday},
	}

	friNight := time.Date(2026, 8, 28, 23, 0, 0, 0, time.UTC) // Friday
	monNight := time.Date(2026, 8, 24, 23, 0, 0, 0, time.UTC) // Monday

	if !weekendNights.Matches(friNight, nil) {
		t.Fatalf("Friday night should match")
	}
	if weekendNights.Matches(monNight, nil) {
		t.Fatalf("Monday night must not match")
	}
}

func TestDateTimeWindow_AbsoluteRangeInclusive(t *testing.T) {
	start := time.Date(2026, 12, 24, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 12, 26, 23, 59, 0, 0, time.UTC)
	holiday := DateTimeWindow{DateTimeRange: &AbsoluteRange{Start: start, End: end}}

	if !holiday.Matches(start, nil) || !holiday.Matches(end, nil) {
		t.Fatalf("range bounds must be inclusive")
	}
	if holiday.Matches(start.Add(-time.Minute), nil) {
		t.Fatalf("before range must not match")
	}
}

func TestLeadTimeConditions_UnknownLeadNeverMatches(t *testing.T) {
	now := time.Now()
	lead := 30.0

	if (CutoffTime{CutoffMinutes: 60}).Matches(now, nil) {
		t.Fatalf("cutoff matched with unknown lead time")
	}
	if !(CutoffTime{CutoffMinutes: 60}).Matches(now, &lead) {
		t.Fatalf("cutoff should match lead 30 <= 60")
	}
	far := 120.0
	if (TimeLeft{TimeLeftMinutes: 60}).Matches(now, &far) {
		t.Fatalf("time left matched lead 120 > 60")
	}
}

func TestConditionRoundTrip(t *testing.T) {
	conds := []Condition{
		CutoffTime{CutoffMinutes: 45},
		TimeLeft{TimeLeftMinutes: 90},
		DateTimeWindow{
			TimeRange:  &ClockRange{Start: mustClock(t, "22:00"), End: mustClock(t, "06:00")},
			DaysOfWeek: []time.Weekday{time.Friday},
		},
	}
	for _, c := range conds {
		data, err := MarshalCondition(c)
		if err != nil {
			t.Fatalf("MarshalCondition(%s): %v", c.Type(), err)
		}
		back, err := UnmarshalCondition(data)
		if err != nil {
			t.Fatalf("UnmarshalCondition(%s): %v", c.Type(), err)
		}
		if back.Type() != c.Type() {
			t.Fatalf("type=%s want %s", back.Type(), c.Type())
		}
		if err := back.Validate(); err != nil {
			t.Fatalf("decoded condition invalid: %v", err)
		}
	}
}
