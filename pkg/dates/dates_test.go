package dates

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		ok   bool
		want string
	}{
		{"2025-12-16", true, "2025-12-16"},
		{"2024-02-29", true, "2024-02-29"},
		{"2025-02-29", false, ""},
		{"2025-02-30", false, ""},
		{"2025-13-01", false, ""},
		{"2025-1-01", false, ""},
		{"16.12.2025", false, ""},
		{" 2025-12-16", false, ""},
		{"", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in, time.UTC)
			if tt.ok != (err == nil) {
				t.Fatalf("Parse(%q) err = %v", tt.in, err)
			}
			if tt.ok && Key(got) != tt.want {
				t.Fatalf("Key = %s, want %s", Key(got), tt.want)
			}
		})
	}
}

func TestFormatting(t *testing.T) {
	d := time.Date(2025, 12, 16, 15, 4, 0, 0, time.UTC)
	if got := Calendar(d); got != "16.12.2025" {
		t.Fatalf("Calendar = %s", got)
	}
	if got := WithWeekday(d); got != "16.12.2025 (Вт)" {
		t.Fatalf("WithWeekday = %s", got)
	}
}

func TestAfterDays_CrossesMonth(t *testing.T) {
	now := time.Date(2025, 12, 31, 23, 30, 0, 0, time.UTC)
	got := AfterDays(now, 1)
	if Key(got) != "2026-01-01" || got.Hour() != 0 {
		t.Fatalf("AfterDays = %v", got)
	}
}

func TestLoadLocation_Fallback(t *testing.T) {
	if loc := LoadLocation("Nowhere/Invalid"); loc == nil || loc.String() != "MSK" {
		t.Fatalf("fallback = %v", loc)
	}
}
