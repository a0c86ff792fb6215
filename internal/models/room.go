package models

import "time"

// Room is a dormitory room with a bounded capacity. Occupancy is never
// stored; it is derived from dormitory status records covering the
// reference date.
type Room struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Capacity  int       `db:"capacity" json:"capacity"`
	Note      string    `db:"note" json:"note,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// RoomOccupant is a student currently housed in a room.
type RoomOccupant struct {
	StudentID  string     `db:"student_id" json:"student_id"`
	LastName   string     `db:"last_name" json:"last_name"`
	FirstName  string     `db:"first_name" json:"first_name"`
	MiddleName string     `db:"middle_name" json:"middle_name,omitempty"`
	Group      string     `db:"group_label" json:"group"`
	Phone      string     `db:"phone" json:"phone"`
	CheckIn    time.Time  `db:"start_date" json:"check_in"`
	CheckOut   *time.Time `db:"end_date" json:"check_out,omitempty"`
}

// RoomDetail couples a room with its occupants at the reference date.
type RoomDetail struct {
	Room
	Occupants []RoomOccupant `json:"occupants"`
}

// Occupancy returns the number of current occupants.
func (r *RoomDetail) Occupancy() int {
	return len(r.Occupants)
}

// HasFreePlace reports whether at least one place remains.
func (r *RoomDetail) HasFreePlace() bool {
	return r.Occupancy() < r.Capacity
}
