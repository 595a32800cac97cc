// Package domain defines the persistent entities, value types, and rule
// evaluation primitives of the lifelab core.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityLab identifies a lab (tenant) record.
	EntityLab EntityType = "lab"
	// EntityIssue identifies an issue record.
	EntityIssue EntityType = "issue"
	// EntityIssueComment identifies an issue comment record.
	EntityIssueComment EntityType = "issue_comment"
	// EntityExperiment identifies an experiment record.
	EntityExperiment EntityType = "experiment"
	// EntityCheckIn identifies a check-in record.
	EntityCheckIn EntityType = "check_in"
)

// IssueState represents the two-state issue workflow.
type IssueState string

// Canonical issue states.
const (
	IssueOpen   IssueState = "OPEN"
	IssueClosed IssueState = "CLOSED"
)

// Valid reports whether the state is a known issue state.
func (s IssueState) Valid() bool {
	return s == IssueOpen || s == IssueClosed
}

// ExperimentState represents the experiment workflow states.
type ExperimentState string

// Canonical experiment states.
const (
	ExperimentInactive  ExperimentState = "INACTIVE"
	ExperimentActive    ExperimentState = "ACTIVE"
	ExperimentCommitted ExperimentState = "COMMITTED"
)

// Valid reports whether the state is a known experiment state.
func (s ExperimentState) Valid() bool {
	return s == ExperimentInactive || s == ExperimentActive || s == ExperimentCommitted
}

// Field length ceilings enforced on write.
const (
	MaxTitleLength = 256
	MaxBodyLength  = 65536
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records. The store assigns IDs
// and stamps Created/Modified; callers never set them.
type Base struct {
	ID       int64     `json:"id"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

// Deletable carries the soft-delete flag shared by issue, comment,
// experiment, and check-in records.
type Deletable struct {
	Deleted bool `json:"deleted"`
}

// Lab is the tenant root owning issues, experiments, and check-ins.
// QueueOrder holds the user-defined priority order of open issue IDs as a
// comma-joined digit string; it is repaired lazily on read.
type Lab struct {
	Base
	Name       string `json:"name"`
	QueueOrder string `json:"queue_order"`
}

// Issue is a numbered, soft-deletable work item scoped to one lab.
type Issue struct {
	Base
	Deletable
	LabID         int64      `json:"lab_id"`
	Number        int        `json:"number"`
	State         IssueState `json:"state"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	ExperimentIDs []int64    `json:"experiment_ids"`
}

// IssueDescriptionHistoryItem is an immutable snapshot of an issue's
// description taken on update.
type IssueDescriptionHistoryItem struct {
	Base
	IssueID     int64  `json:"issue_id"`
	Description string `json:"description"`
}

// IssueStateHistoryItem is an immutable snapshot of an issue's state taken
// on update.
type IssueStateHistoryItem struct {
	Base
	IssueID int64      `json:"issue_id"`
	State   IssueState `json:"state"`
}

// IssueComment is a soft-deletable comment on an issue with its own body
// edit history.
type IssueComment struct {
	Base
	Deletable
	IssueID int64  `json:"issue_id"`
	Body    string `json:"body"`
}

// IssueCommentHistoryItem is an immutable snapshot of a comment body taken
// on update.
type IssueCommentHistoryItem struct {
	Base
	CommentID int64  `json:"comment_id"`
	Body      string `json:"body"`
}

// Experiment is a numbered, soft-deletable experiment scoped to one lab.
type Experiment struct {
	Base
	Deletable
	LabID    int64           `json:"lab_id"`
	Number   int             `json:"number"`
	State    ExperimentState `json:"state"`
	Title    string          `json:"title"`
	Terms    string          `json:"terms"`
	EndDate  Date            `json:"end_date"`
	IssueIDs []int64         `json:"issue_ids"`
}

// ExperimentTermsHistoryItem is an immutable snapshot of an experiment's
// terms taken on update.
type ExperimentTermsHistoryItem struct {
	Base
	ExperimentID int64  `json:"experiment_id"`
	Terms        string `json:"terms"`
}

// ExperimentEndDateHistoryItem is an immutable snapshot of an experiment's
// end date taken on update.
type ExperimentEndDateHistoryItem struct {
	Base
	ExperimentID int64 `json:"experiment_id"`
	EndDate      Date  `json:"end_date"`
}

// CheckIn is a numbered, soft-deletable retrospective record. ExperimentIDs
// is frozen at creation to the lab's experiments that were ACTIVE at that
// moment; later experiment changes never alter it.
type CheckIn struct {
	Base
	Deletable
	LabID         int64   `json:"lab_id"`
	Number        int     `json:"number"`
	Retrospective string  `json:"retrospective"`
	Complete      bool    `json:"complete"`
	ExperimentIDs []int64 `json:"experiment_ids"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate the mutations captured for rule evaluation.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated (soft deletes included).
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID int64
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
