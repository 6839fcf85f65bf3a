package report

import (
	"fmt"
	"strings"
)

const (
	// DepartmentArchived marks a report archived in place.
	DepartmentArchived = "ARCHIVED"
	// DeletedNamespace is the per-patient folder soft-deleted objects move to.
	DeletedNamespace = "DELETED"
)

// ObjectPath is the single place the storage key of a live report is built:
// patientId/department/[subDepartment/]name.
func ObjectPath(patientID, department, subDepartment, name string) string {
	parts := []string{patientID, department}
	if subDepartment != "" {
		parts = append(parts, subDepartment)
	}
	parts = append(parts, name)
	return strings.Join(parts, "/")
}

// DeletedPath is where SoftDelete relocates a report's object.
func DeletedPath(patientID, name string) string {
	return patientID + "/" + DeletedNamespace + "/" + name
}

// validSegment rejects values that would change the shape of a storage key.
func validSegment(field, v string) error {
	switch {
	case v == "":
		return fmt.Errorf("%w: %s is required", ErrInvalidInput, field)
	case v == "." || v == "..":
		return fmt.Errorf("%w: %s is not a valid path segment", ErrInvalidInput, field)
	case strings.ContainsAny(v, "/\\"):
		return fmt.Errorf("%w: %s must not contain slashes", ErrInvalidInput, field)
	}
	return nil
}
