package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ApprovalStatus is the approval lifecycle, tracked separately from InvoiceStatus.
type ApprovalStatus string

const (
	ApprovalPendingManager    ApprovalStatus = "pending_manager"
	ApprovalPendingAccounting ApprovalStatus = "pending_accounting"
	ApprovalApproved          ApprovalStatus = "approved"
	ApprovalRejected          ApprovalStatus = "rejected"
)

// IsTerminal reports whether no further transition is permitted.
func (s ApprovalStatus) IsTerminal() bool {
	return s == ApprovalApproved || s == ApprovalRejected
}

// IsPending reports whether the invoice waits on an approval gate.
func (s ApprovalStatus) IsPending() bool {
	return s == ApprovalPendingManager || s == ApprovalPendingAccounting
}

// ApprovalLevel is an organizational gate.
type ApprovalLevel string

const (
	LevelManager    ApprovalLevel = "manager"
	LevelAccounting ApprovalLevel = "accounting"
)

// ApprovalLevels lists every defined level in gate order.
func ApprovalLevels() []ApprovalLevel {
	return []ApprovalLevel{LevelManager, LevelAccounting}
}

// Valid reports whether l is a defined level.
func (l ApprovalLevel) Valid() bool {
	return l == LevelManager || l == LevelAccounting
}

// ApprovalAction is the decision recorded against a level.
type ApprovalAction string

const (
	ActionApproved ApprovalAction = "approved"
	ActionRejected ApprovalAction = "rejected"
)

// Role is the caller's organizational role, supplied by the identity layer.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleAccountant Role = "accountant"
	RoleViewer     Role = "viewer"
)

// ApprovalRule maps an amount range to the approvals it requires.
// A nil MaxAmount is unbounded; both bounds are inclusive.
type ApprovalRule struct {
	ID                 string           `json:"id,omitempty" yaml:"id,omitempty"`
	CentreCode         *string          `json:"centre_code,omitempty" yaml:"centre_code,omitempty"`
	MinAmount          decimal.Decimal  `json:"min_amount" yaml:"-"`
	MaxAmount          *decimal.Decimal `json:"max_amount,omitempty" yaml:"-"`
	RequiresManager    bool             `json:"requires_manager" yaml:"requires_manager"`
	RequiresAccounting bool             `json:"requires_accounting" yaml:"requires_accounting"`
}

// Contains reports whether amount falls within the rule's range.
func (r ApprovalRule) Contains(amount decimal.Decimal) bool {
	if amount.LessThan(r.MinAmount) {
		return false
	}
	if r.MaxAmount != nil && amount.GreaterThan(*r.MaxAmount) {
		return false
	}
	return true
}

// Approval is an append-only history entry for an invoice.
type Approval struct {
	ID         string         `json:"id"`
	InvoiceID  string         `json:"invoice_id"`
	ApproverID string         `json:"approver_id"`
	Level      ApprovalLevel  `json:"approval_level"`
	Action     ApprovalAction `json:"action"`
	Comments   *string        `json:"comments,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ApprovalUpdate is the atomic write requested from the persistence layer
// after an approve or reject decision. The write must only succeed while the
// stored approval status still equals ExpectedApprovalStatus.
type ApprovalUpdate struct {
	ExpectedApprovalStatus ApprovalStatus
	ApprovalStatus         ApprovalStatus
	Status                 InvoiceStatus
	ActorID                string
	Level                  ApprovalLevel
	Action                 ApprovalAction
	RejectedReason         *string
	Notes                  *string
	Comments               *string
	At                     time.Time
}

// SubmissionUpdate moves a draft invoice into the approval lifecycle.
type SubmissionUpdate struct {
	RequiresManagerApproval    bool
	RequiresAccountingApproval bool
	ApprovalStatus             ApprovalStatus
	Status                     InvoiceStatus
}

// PendingFilter selects invoices waiting on an approval gate.
type PendingFilter struct {
	Statuses   []ApprovalStatus
	CentreCode string
	Limit      int
}
