package main

import (
	"testing"
	"time"
)

var testNow = time.Date(2025, time.November, 15, 14, 30, 0, 0, time.UTC)

func TestComputeThresholds(t *testing.T) {
	th := ComputeThresholds(testNow)

	if th.Today != time.Date(2025, time.November, 15, 0, 0, 0, 0, time.UTC) {
		t.Errorf("Today = %v, want midnight Nov 15", th.Today)
	}
	if th.Yesterday != time.Date(2025, time.November, 14, 0, 0, 0, 0, time.UTC) {
		t.Errorf("Yesterday = %v, want midnight Nov 14", th.Yesterday)
	}
	if th.Last7 != time.Date(2025, time.November, 9, 0, 0, 0, 0, time.UTC) {
		t.Errorf("Last7 = %v, want midnight Nov 9", th.Last7)
	}
	if th.Last30 != time.Date(2025, time.October, 17, 0, 0, 0, 0, time.UTC) {
		t.Errorf("Last30 = %v, want midnight Oct 17", th.Last30)
	}
}

func TestCategorize(t *testing.T) {
	th := ComputeThresholds(testNow)

	tests := []struct {
		name     string
		dateText string
		expected Category
	}{
		{"today boundary", "Nov 15, 2025", CategoryToday},
		{"yesterday boundary", "Nov 14, 2025", CategoryYesterday},
		{"six days back", "Nov 9, 2025", CategoryLast7Days},
		{"seven days back", "Nov 8, 2025", CategoryLast30Days},
		{"29 days back", "Oct 17, 2025", CategoryLast30Days},
		{"30 days back", "Oct 16, 2025", CategoryOlder},
		{"month day assumes current year", "Nov 14", CategoryYesterday},
		{"iso layout", "2025-11-15", CategoryToday},
		{"slash layout", "11/9/2025", CategoryLast7Days},
		{"future clamps to today", "Nov 20, 2025", CategoryToday},
		{"relative string", "2 hours ago", CategoryOlder},
		{"garbage", "garbage", CategoryOlder},
		{"empty", "", CategoryOlder},
		{"ancient", "Jan 2, 1999", CategoryOlder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Categorize(tt.dateText, th)
			if result != tt.expected {
				t.Errorf("Categorize(%q) = %q, want %q", tt.dateText, result, tt.expected)
			}
		})
	}
}

// Walking one day at a time backwards from today must visit the buckets in
// CategoryOrder without ever skipping back to an earlier bucket.
func TestCategorizeMonotonic(t *testing.T) {
	th := ComputeThresholds(testNow)

	rank := make(map[Category]int)
	for i, c := range CategoryOrder {
		rank[c] = i
	}

	prev := -1
	for days := 0; days < 60; days++ {
		date := th.Today.AddDate(0, 0, -days).Format("Jan 2, 2006")
		got := rank[Categorize(date, th)]
		if got < prev {
			t.Fatalf("day -%d (%s): bucket rank went backwards (%d after %d)", days, date, got, prev)
		}
		prev = got
	}
}

func TestGroupByCategory(t *testing.T) {
	th := ComputeThresholds(testNow)
	rows := []Row{
		{Subject: "a", DateText: "Nov 15, 2025"},
		{Subject: "b", DateText: "Nov 14, 2025"},
		{Subject: "c", DateText: "Nov 15, 2025"},
		{Subject: "d", DateText: "nonsense"},
	}

	groups := GroupByCategory(rows, th)

	if len(groups[CategoryToday]) != 2 {
		t.Errorf("Today group = %d rows, want 2", len(groups[CategoryToday]))
	}
	if groups[CategoryToday][0].Subject != "a" || groups[CategoryToday][1].Subject != "c" {
		t.Error("Today group lost row order")
	}
	if len(groups[CategoryYesterday]) != 1 {
		t.Errorf("Yesterday group = %d rows, want 1", len(groups[CategoryYesterday]))
	}
	if len(groups[CategoryOlder]) != 1 {
		t.Errorf("Older group = %d rows, want 1", len(groups[CategoryOlder]))
	}
}
