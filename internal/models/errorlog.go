package models

import "time"

// ErrorLog is a persisted record of an unexpected server failure.
type ErrorLog struct {
	ID        string    `db:"id" json:"id"`
	ErrorCode string    `db:"error_code" json:"error_code"`
	Message   string    `db:"message" json:"message"`
	Timestamp time.Time `db:"created_at" json:"timestamp"`
}
