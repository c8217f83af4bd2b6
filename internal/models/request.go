package models

import "time"

// RequestKind distinguishes the two member flows an admin must approve.
type RequestKind string

const (
	// RequestKindLogin is a member sign-in awaiting approval.
	RequestKindLogin RequestKind = "login"
	// RequestKindVerification is a verification code submission awaiting approval.
	RequestKindVerification RequestKind = "verification"
)

// Valid reports whether k is a known request kind.
func (k RequestKind) Valid() bool {
	return k == RequestKindLogin || k == RequestKindVerification
}

// Section returns the console section that governs requests of this kind.
func (k RequestKind) Section() Section {
	if k == RequestKindVerification {
		return SectionVerificationRequests
	}
	return SectionLoginRequests
}

// RequestStatus defines lifecycle states for approval requests.
type RequestStatus string

const (
	// RequestStatusPending indicates the request is awaiting an admin decision.
	RequestStatusPending RequestStatus = "pending"
	// RequestStatusApproved indicates an admin accepted the request.
	RequestStatusApproved RequestStatus = "approved"
	// RequestStatusDenied indicates an admin rejected the request.
	RequestStatusDenied RequestStatus = "denied"
	// RequestStatusCancelled indicates the member withdrew the request.
	RequestStatusCancelled RequestStatus = "cancelled"
)

// Terminal reports whether the status is one a request can never leave.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusApproved || s == RequestStatusDenied || s == RequestStatusCancelled
}

// Decision is an admin verdict on a pending request.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDeny    Decision = "deny"
)

// Status maps a decision to the terminal status it produces.
func (d Decision) Status() (RequestStatus, bool) {
	switch d {
	case DecisionApprove:
		return RequestStatusApproved, true
	case DecisionDeny:
		return RequestStatusDenied, true
	}
	return "", false
}

// Request is a login or verification attempt that needs an admin decision.
// ResolvedAt is set iff Status is not pending; ResolvedBy is set iff an admin
// approved or denied it.
type Request struct {
	ID               uint          `gorm:"primaryKey" json:"id"`
	Kind             RequestKind   `gorm:"type:varchar(20);not null;index" json:"kind"`
	MemberIdentifier string        `gorm:"size:254;not null" json:"member_identifier"`
	DeviceLabel      string        `gorm:"size:120" json:"device_label,omitempty"`
	Code             string        `gorm:"size:12" json:"code,omitempty"`
	Status           RequestStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	OwnerToken       string        `gorm:"size:64;not null" json:"-"`
	ClientIP         string        `gorm:"size:64" json:"-"`
	CreatedAt        time.Time     `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	ResolvedAt       *time.Time    `json:"resolved_at"`
	ResolvedBy       *uint         `json:"resolved_by"`
}

// TableName keeps the table name stable regardless of naming strategy.
func (Request) TableName() string { return "approval_requests" }
