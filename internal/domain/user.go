package domain

import (
	"strings"
	"time"
)

// PlanFree is the plan assigned to users who never paid.
const PlanFree = "free"

// DefaultPaidPlans lists the tiers that never enter a drip sequence.
var DefaultPaidPlans = []string{"pro", "business"}

// User is the slice of the account record the engine reads.
type User struct {
	ID                string     `json:"id" db:"id"`
	Email             string     `json:"email" db:"email"`
	FullName          string     `json:"full_name" db:"full_name"`
	Plan              string     `json:"subscription_plan" db:"subscription_plan"`
	Locale            string     `json:"preferred_language" db:"preferred_language"`
	Unsubscribed      bool       `json:"email_unsubscribed" db:"email_unsubscribed"`
	UnsubscribedAt    *time.Time `json:"email_unsubscribed_at,omitempty" db:"email_unsubscribed_at"`
	UnsubscribeReason string     `json:"unsubscribe_reason,omitempty" db:"unsubscribe_reason"`
}

// FirstName returns the first word of FullName, or "" if there is none.
func (u *User) FirstName() string {
	fields := strings.Fields(u.FullName)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// IsFree reports whether the user is on the free tier. An empty plan counts
// as free.
func (u *User) IsFree() bool {
	return u.Plan == "" || u.Plan == PlanFree
}

// IsPaid reports whether the user's plan is one of paidPlans.
func (u *User) IsPaid(paidPlans []string) bool {
	for _, p := range paidPlans {
		if u.Plan == p {
			return true
		}
	}
	return false
}
