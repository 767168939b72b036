// Package policy decides which principal may perform which operation on
// which task. Everything here is pure: no I/O and no clock.
package policy

import (
	"github.com/google/uuid"

	"taskapi/internal/model"
)

// Principal is the identity established for the duration of one request.
type Principal struct {
	UserID uuid.UUID
	Role   model.Role
}

// IsAdmin reports whether p holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == model.RoleAdmin
}

// Operation names an action a principal attempts.
type Operation string

const (
	OpListTasks    Operation = "list_tasks"
	OpListAllTasks Operation = "list_all_tasks"
	OpReadTask     Operation = "read_task"
	OpCreateTask   Operation = "create_task"
	OpUpdateTask   Operation = "update_task"
	OpDeleteTask   Operation = "delete_task"
	OpManageUsers  Operation = "manage_users"
)

// Decision is the outcome of Authorize.
type Decision bool

const (
	Deny  Decision = false
	Allow Decision = true
)

// Scope selects which tasks a listing covers.
type Scope int

const (
	ScopeOwned Scope = iota
	ScopeAll
)

// Authorize decides whether p may perform op on target. target is only
// consulted for single-task operations and must be the stored record, so
// the owner compared is the one captured at creation.
func Authorize(p Principal, op Operation, target *model.Task) Decision {
	if p.UserID == uuid.Nil {
		return Deny
	}

	switch op {
	case OpListTasks, OpCreateTask:
		return Allow
	case OpListAllTasks, OpManageUsers:
		return Decision(p.IsAdmin())
	case OpReadTask, OpUpdateTask, OpDeleteTask:
		if target == nil {
			return Deny
		}
		// Admin is checked first and passes regardless of ownership.
		if p.IsAdmin() {
			return Allow
		}
		return Decision(target.UserID == p.UserID)
	default:
		return Deny
	}
}

// ListScope returns the set of tasks OpListTasks exposes to p.
func ListScope(p Principal) Scope {
	if p.IsAdmin() {
		return ScopeAll
	}
	return ScopeOwned
}

// OwnerFor returns the owner a task created by p must receive, whatever
// owner the input claimed.
func OwnerFor(p Principal) uuid.UUID {
	return p.UserID
}
