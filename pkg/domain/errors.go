package domain

import "fmt"

// NotFoundError reports a missing record, or a soft-deleted one where a live
// record is required.
type NotFoundError struct {
	Entity EntityType
	Key    string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

// ConstraintError reports a violated storage constraint: duplicate
// (lab, number), number below 1, or a field length ceiling exceeded.
type ConstraintError struct {
	Entity  EntityType
	Field   string
	Message string
}

func (e ConstraintError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Entity, e.Field, e.Message)
}

// ValidationError reports malformed caller input such as an unparseable
// queue-order string or an unknown state value.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
