package models

import "time"

// CommitteeMeeting is one prevention-committee (SPPP) sitting for a
// student. Unlike status records a student may accumulate many.
type CommitteeMeeting struct {
	ID              string    `db:"id" json:"id"`
	StudentID       string    `db:"student_id" json:"student_id"`
	Date            time.Time `db:"meeting_date" json:"date"`
	Staff           string    `db:"staff" json:"staff"`
	Representatives string    `db:"representatives" json:"representatives"`
	Reason          string    `db:"reason" json:"reason"`
	Decision        string    `db:"decision" json:"decision"`
	Note            string    `db:"note" json:"note,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Empty reports whether no payload field carries data.
func (m *CommitteeMeeting) Empty() bool {
	return m.Date.IsZero() && m.Staff == "" && m.Representatives == "" &&
		m.Reason == "" && m.Decision == "" && m.Note == ""
}

// Complete reports whether the required-together field group is fully
// populated. The note stays optional.
func (m *CommitteeMeeting) Complete() bool {
	return !m.Date.IsZero() && m.Staff != "" && m.Representatives != "" &&
		m.Reason != "" && m.Decision != ""
}
