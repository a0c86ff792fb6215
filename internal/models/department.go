package models

import "fmt"

// Department is an academic unit students belong to.
type Department struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
	Code string `db:"code" json:"code"`
}

// GroupLabel synthesises a study-group label as CODE-YY-subgroup from
// the department code, admission year and chosen subgroup digit.
func GroupLabel(code string, admissionYear, subgroup int) string {
	return fmt.Sprintf("%s-%02d-%d", code, admissionYear%100, subgroup)
}
