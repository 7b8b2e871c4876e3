package domain

import "testing"

func TestNextStatus(t *testing.T) {
	tests := []struct {
		current Status
		want    Status
		ok      bool
	}{
		{current: StatusPending, want: StatusInProgress, ok: true},
		{current: StatusInProgress, want: StatusCompleted, ok: true},
		{current: StatusCompleted, ok: false},
		{current: StatusCancelled, ok: false},
		{current: Status("archived"), ok: false},
		{current: Status(""), ok: false},
	}
	for _, tt := range tests {
		t.Run(string(tt.current), func(t *testing.T) {
			got, ok := NextStatus(tt.current)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("NextStatus(%q) = (%q, %v), want (%q, %v)", tt.current, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestActionLabelMatchesNextStatus(t *testing.T) {
	for _, s := range Statuses {
		_, hasNext := NextStatus(s)
		label, hasAction := ActionLabel(s)
		if hasNext != hasAction {
			t.Fatalf("status %q: next=%v action=%v", s, hasNext, hasAction)
		}
		if hasAction && label == "" {
			t.Fatalf("status %q: empty action label", s)
		}
	}
	if label, _ := ActionLabel(StatusPending); label != "Start" {
		t.Fatalf("unexpected pending label %q", label)
	}
	if label, _ := ActionLabel(StatusInProgress); label != "Complete" {
		t.Fatalf("unexpected in_progress label %q", label)
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" in_progress ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s != StatusInProgress {
		t.Fatalf("unexpected status %q", s)
	}
	if _, err := ParseStatus("done"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestStatusLabel(t *testing.T) {
	if got := StatusInProgress.Label(); got != "in progress" {
		t.Fatalf("unexpected label %q", got)
	}
	if got := StatusPending.Label(); got != "pending" {
		t.Fatalf("unexpected label %q", got)
	}
}

func TestParsePriority(t *testing.T) {
	for _, v := range []string{"low", "medium", "high", "urgent"} {
		if _, err := ParsePriority(v); err != nil {
			t.Fatalf("parse %q: %v", v, err)
		}
	}
	if _, err := ParsePriority("critical"); err == nil {
		t.Fatal("expected error for unknown priority")
	}
}
