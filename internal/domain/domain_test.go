package domain

import (
	"testing"
	"time"
)

func TestUserFirstName(t *testing.T) {
	tests := []struct {
		name     string
		fullName string
		want     string
	}{
		{"two words", "Ada Lovelace", "Ada"},
		{"single word", "Ada", "Ada"},
		{"empty", "", ""},
		{"leading spaces", "   Grace Hopper", "Grace"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := User{FullName: tt.fullName}
			if got := u.FirstName(); got != tt.want {
				t.Errorf("FirstName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUserPlans(t *testing.T) {
	free := User{Plan: ""}
	if !free.IsFree() || free.IsPaid(DefaultPaidPlans) {
		t.Error("empty plan should be free and not paid")
	}
	pro := User{Plan: "pro"}
	if pro.IsFree() || !pro.IsPaid(DefaultPaidPlans) {
		t.Error("pro should be paid")
	}
	starter := User{Plan: "starter"}
	if starter.IsFree() || starter.IsPaid(DefaultPaidPlans) {
		t.Error("unknown plan is neither free nor paid")
	}
}

func TestEventKindValid(t *testing.T) {
	for _, k := range []EventKind{EventPricingViewed, EventPlanSelected, EventCheckoutStarted, EventCheckoutCompleted} {
		if !k.Valid() {
			t.Errorf("%s should be valid", k)
		}
	}
	if EventKind("page_viewed").Valid() {
		t.Error("page_viewed should not be valid")
	}
}

func TestSequenceIsDue(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := DripSequence{NextDueAt: now}
	if !s.IsDue(now) {
		t.Error("sequence due exactly at now should be due")
	}
	if s.IsDue(now.Add(-time.Second)) {
		t.Error("sequence should not be due before NextDueAt")
	}
	s.Status = SequenceCancelled
	if !s.IsTerminal() {
		t.Error("cancelled should be terminal")
	}
}
