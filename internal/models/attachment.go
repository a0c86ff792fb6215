package models

import "time"

// OwnerKind tags which entity an attachment belongs to.
type OwnerKind string

const (
	OwnerStudent      OwnerKind = "student"
	OwnerOrphan       OwnerKind = "orphan"
	OwnerDisability   OwnerKind = "disability"
	OwnerSpecialNeeds OwnerKind = "special_needs"
	OwnerWartime      OwnerKind = "wartime_service"
	OwnerScholarship  OwnerKind = "social_scholarship"
	OwnerRiskRegistry OwnerKind = "risk_registry"
	OwnerDormitory    OwnerKind = "dormitory"
	OwnerMeeting      OwnerKind = "meeting"
)

// OwnerKinds lists every accepted owner tag.
var OwnerKinds = map[OwnerKind]struct{}{
	OwnerStudent:      {},
	OwnerOrphan:       {},
	OwnerDisability:   {},
	OwnerSpecialNeeds: {},
	OwnerWartime:      {},
	OwnerScholarship:  {},
	OwnerRiskRegistry: {},
	OwnerDormitory:    {},
	OwnerMeeting:      {},
}

// OwnerKindForStatus maps a status kind to its attachment owner tag.
func OwnerKindForStatus(kind StatusKind) OwnerKind {
	switch kind {
	case StatusOrphan:
		return OwnerOrphan
	case StatusDisability:
		return OwnerDisability
	case StatusSpecialNeeds:
		return OwnerSpecialNeeds
	case StatusWartime:
		return OwnerWartime
	case StatusScholarship:
		return OwnerScholarship
	case StatusRiskRegistry:
		return OwnerRiskRegistry
	case StatusDormitory:
		return OwnerDormitory
	}
	return OwnerStudent
}

// Attachment is a stored PDF document linked to a student or one of
// its welfare records. StudentID is denormalised so that a student
// delete can locate every linked file in one query.
type Attachment struct {
	ID         string    `db:"id" json:"id"`
	OwnerKind  OwnerKind `db:"owner_kind" json:"owner_kind"`
	OwnerID    string    `db:"owner_id" json:"owner_id"`
	StudentID  *string   `db:"student_id" json:"student_id,omitempty"`
	FilePath   string    `db:"file_path" json:"file_path"`
	UploadedAt time.Time `db:"uploaded_at" json:"uploaded_at"`
}
