package models

import "time"

// StatusKind identifies one of the welfare status record variants.
type StatusKind string

const (
	StatusOrphan       StatusKind = "orphan"
	StatusDisability   StatusKind = "disability"
	StatusSpecialNeeds StatusKind = "special_needs"
	StatusWartime      StatusKind = "wartime_service"
	StatusScholarship  StatusKind = "social_scholarship"
	StatusRiskRegistry StatusKind = "risk_registry"
	StatusDormitory    StatusKind = "dormitory"
)

// StatusKinds lists every kind in a stable order.
var StatusKinds = []StatusKind{
	StatusOrphan,
	StatusDisability,
	StatusSpecialNeeds,
	StatusWartime,
	StatusScholarship,
	StatusRiskRegistry,
	StatusDormitory,
}

// RegistryType discriminates risk-registry records.
type RegistryType string

const (
	RegistryRisk RegistryType = "risk"
	RegistrySOP  RegistryType = "sop"
)

// StatusState is the derived temporal classification of a record.
type StatusState string

const (
	StatusStateActive  StatusState = "active"
	StatusStateExpired StatusState = "expired"
)

// StatusRecord is a time-bounded welfare status owned by one student.
// At most one record exists per (student, kind). Kind-specific fields
// are nullable and validated by the per-kind rule table in the service
// layer.
type StatusRecord struct {
	ID        string     `db:"id" json:"id"`
	StudentID string     `db:"student_id" json:"student_id"`
	Kind      StatusKind `db:"kind" json:"kind"`
	Document  string     `db:"document" json:"document,omitempty"`
	StartDate time.Time  `db:"start_date" json:"start_date"`
	EndDate   *time.Time `db:"end_date" json:"end_date,omitempty"`
	Note      string     `db:"note" json:"note,omitempty"`

	// Disability only.
	DisabilityType *string `db:"disability_type" json:"disability_type,omitempty"`

	// Risk registry only.
	RegistryType *RegistryType `db:"registry_type" json:"registry_type,omitempty"`
	StartReason  *string       `db:"start_reason" json:"start_reason,omitempty"`
	StartBasis   *string       `db:"start_basis" json:"start_basis,omitempty"`
	EndReason    *string       `db:"end_reason" json:"end_reason,omitempty"`
	EndBasis     *string       `db:"end_basis" json:"end_basis,omitempty"`

	// Dormitory only.
	RoomID *string `db:"room_id" json:"room_id,omitempty"`

	FileIDs []string `db:"-" json:"file_ids,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// StateAt classifies the record against a reference date. Both the
// start and end bounds are inclusive: a record ending exactly on the
// reference date is still active.
func (r *StatusRecord) StateAt(at time.Time) StatusState {
	if r.EndDate != nil && r.EndDate.Before(at) {
		return StatusStateExpired
	}
	return StatusStateActive
}

// ActiveAt reports whether the record covers the reference date.
func (r *StatusRecord) ActiveAt(at time.Time) bool {
	if r.StartDate.After(at) {
		return false
	}
	return r.StateAt(at) == StatusStateActive
}

// ExpiredAt reports whether the record started on or before the
// reference date and its end date has passed.
func (r *StatusRecord) ExpiredAt(at time.Time) bool {
	if r.StartDate.After(at) {
		return false
	}
	return r.StateAt(at) == StatusStateExpired
}
