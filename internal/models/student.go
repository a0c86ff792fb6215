package models

import "time"

// Funding enumerates how a student's education is financed.
const (
	FundingBudget   = "Бюджет"
	FundingContract = "Контракт"
	FundingPaid     = "Платное"
)

// Education enumerates admission education levels.
const (
	EducationGrade9  = "9 кл."
	EducationGrade11 = "11 кл."
	EducationSPO     = "СПО"
	EducationVO      = "ВО"
)

// Gender values accepted on student records.
const (
	GenderMale   = "Мужской"
	GenderFemale = "Женский"
)

// Student represents a learner tracked by the welfare office.
type Student struct {
	ID             string     `db:"id" json:"id"`
	LastName       string     `db:"last_name" json:"last_name"`
	FirstName      string     `db:"first_name" json:"first_name"`
	MiddleName     string     `db:"middle_name" json:"middle_name,omitempty"`
	BirthDate      time.Time  `db:"birth_date" json:"birth_date"`
	Gender         *string    `db:"gender" json:"gender,omitempty"`
	Group          string     `db:"group_label" json:"group"`
	Phone          string     `db:"phone" json:"phone"`
	Funding        string     `db:"funding" json:"funding"`
	Education      string     `db:"education" json:"education"`
	DepartmentID   string     `db:"department_id" json:"department_id"`
	AdmissionYear  int        `db:"admission_year" json:"admission_year"`
	GraduationYear *int       `db:"graduation_year" json:"graduation_year,omitempty"`
	ExpulsionInfo  *string    `db:"expulsion_info" json:"expulsion_info,omitempty"`
	ExpulsionDate  *time.Time `db:"expulsion_date" json:"expulsion_date,omitempty"`
	Note           string     `db:"note" json:"note,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// IsAdultAt reports whether the student is at least 18 years old on the
// given date, using calendar comparison against date minus 18 years.
func (s *Student) IsAdultAt(date time.Time) bool {
	cutoff := date.AddDate(-18, 0, 0)
	return !s.BirthDate.After(cutoff)
}

// IsEnrolledAt reports whether the date falls within the enrollment
// window [admissionYear-09-01, graduationYear-08-31] inclusive.
func (s *Student) IsEnrolledAt(date time.Time) bool {
	if s.GraduationYear == nil {
		return false
	}
	start := time.Date(s.AdmissionYear, time.September, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(*s.GraduationYear, time.August, 31, 0, 0, 0, 0, time.UTC)
	return !date.Before(start) && !date.After(end)
}

// StudentDetail joins a student with department context.
type StudentDetail struct {
	Student
	DepartmentName *string `db:"department_name" json:"department_name,omitempty"`
	DepartmentCode *string `db:"department_code" json:"department_code,omitempty"`
}

// StudentCard aggregates a student with all welfare records for detail views.
type StudentCard struct {
	StudentDetail
	Statuses    map[StatusKind]*StatusRecord `json:"statuses"`
	Meetings    []CommitteeMeeting           `json:"meetings"`
	Attachments []Attachment                 `json:"attachments"`
}

// TernaryFlag is a per-status-kind filter state: unset, "true" (active
// at the reference date), "all" (record exists) or "expired".
type TernaryFlag string

const (
	FlagUnset   TernaryFlag = ""
	FlagActive  TernaryFlag = "true"
	FlagAny     TernaryFlag = "all"
	FlagExpired TernaryFlag = "expired"
)

// Valid reports whether the flag carries a recognised value.
func (f TernaryFlag) Valid() bool {
	switch f {
	case FlagUnset, FlagActive, FlagAny, FlagExpired:
		return true
	}
	return false
}

// StudentFilter encapsulates search parameters for listing students.
type StudentFilter struct {
	LastName       string
	FirstName      string
	Group          string
	AdmissionYear  int
	GraduationYear int
	AsOfDate       time.Time
	Adult          *bool
	Enrolled       *bool
	Expelled       *bool
	RoomName       string
	HasMeetings    bool

	// Per-status-kind temporal flags, intersected when several are set.
	Orphan       TernaryFlag
	Disability   TernaryFlag
	SpecialNeeds TernaryFlag
	Wartime      TernaryFlag
	Scholarship  TernaryFlag
	RiskGroup    TernaryFlag
	Registry     TernaryFlag
	Dormitory    TernaryFlag

	Page     int
	PageSize int
}
