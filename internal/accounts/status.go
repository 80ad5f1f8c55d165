package accounts

import (
	"fmt"

	apperrors "github.com/charlesng35/estatehub/pkg/errors"
)

// Status is the lifecycle state of an account.
type Status string

const (
	StatusPending     Status = "pending"
	StatusActive      Status = "active"
	StatusSuspended   Status = "suspended"
	StatusDeactivated Status = "deactivated"
)

// Role grants coarse permissions.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
	RoleAdmin Role = "admin"
)

// Statuses lists every lifecycle state.
func Statuses() []Status {
	return []Status{StatusPending, StatusActive, StatusSuspended, StatusDeactivated}
}

// Roles lists every role.
func Roles() []Role {
	return []Role{RoleUser, RoleAgent, RoleAdmin}
}

// transitions is the lifecycle graph. Deactivated is a sink.
var transitions = map[Status][]Status{
	StatusPending:   {StatusActive, StatusDeactivated},
	StatusActive:    {StatusSuspended, StatusDeactivated},
	StatusSuspended: {StatusDeactivated},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// checkTransition returns the conflict raised for a forbidden move.
func checkTransition(from, to Status) error {
	if from == StatusDeactivated && to == StatusDeactivated {
		return apperrors.NewConflict("Account is already deleted")
	}
	if !CanTransition(from, to) {
		return apperrors.NewConflict(fmt.Sprintf("Account cannot move from %s to %s", from, to))
	}
	return nil
}

func allStatuses() []any {
	out := make([]any, 0, len(transitions)+1)
	for _, s := range Statuses() {
		out = append(out, string(s))
	}
	return out
}

func statusNames() []string {
	out := make([]string, 0, 4)
	for _, s := range Statuses() {
		out = append(out, string(s))
	}
	return out
}

func roleNames() []string {
	out := make([]string, 0, 3)
	for _, r := range Roles() {
		out = append(out, string(r))
	}
	return out
}
