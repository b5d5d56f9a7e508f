package models

import (
	"fmt"
	"strings"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RolePatient:
		return RolePatient, nil
	case RoleDoctor:
		return RoleDoctor, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Owner is the patient or doctor whose records are synchronized.
type Owner struct {
	Role Role  `json:"role"`
	ID   int64 `json:"id"`
}

func (o Owner) IsZero() bool {
	return o.Role == "" && o.ID == 0
}

// Column is the owner column on appointments and prescriptions.
func (o Owner) Column() string {
	if o.Role == RoleDoctor {
		return "doctor_id"
	}
	return "patient_id"
}

func (o Owner) String() string {
	return fmt.Sprintf("%s:%d", o.Role, o.ID)
}
