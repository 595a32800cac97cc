package domain

import "context"

// IssueDraft carries caller-supplied fields for issue creation. An empty
// State defaults to OPEN.
type IssueDraft struct {
	Title       string
	Description string
	State       IssueState
}

// IssuePatch carries an issue update; nil fields are left untouched.
// Setting Description or State appends a history item even when the value
// is unchanged.
type IssuePatch struct {
	Title         *string
	Description   *string
	State         *IssueState
	ExperimentIDs *[]int64
}

// CommentPatch carries a comment update; setting Body appends a history item.
type CommentPatch struct {
	Body *string
}

// ExperimentDraft carries caller-supplied fields for experiment creation.
// An empty State defaults to INACTIVE.
type ExperimentDraft struct {
	Title    string
	Terms    string
	EndDate  Date
	State    ExperimentState
	IssueIDs []int64
}

// ExperimentPatch carries an experiment update; setting Terms or EndDate
// appends a history item.
type ExperimentPatch struct {
	Title    *string
	State    *ExperimentState
	Terms    *string
	EndDate  *Date
	IssueIDs *[]int64
}

// CheckInDraft carries caller-supplied fields for check-in creation. The
// ACTIVE-experiment snapshot is taken by the store, never by the caller.
type CheckInDraft struct {
	Retrospective string
	Complete      bool
}

// CheckInPatch carries a check-in update.
type CheckInPatch struct {
	Retrospective *string
	Complete      *bool
}

// Transaction exposes the domain operations that a persistence
// implementation must support within an atomic scope. Numbered lookups
// resolve (lab, number) among live records only; soft-deleted rows stay
// reachable through the view's IncludingDeleted resolvers and history
// accessors.
type Transaction interface {
	Snapshot() TransactionView

	CreateLab(lab Lab) (Lab, error)
	UpdateLab(id int64, mutator func(*Lab) error) (Lab, error)
	// DeleteLab hard-deletes the lab and cascades to every owned record.
	DeleteLab(id int64) error

	CreateIssue(labID int64, draft IssueDraft) (Issue, error)
	UpdateIssue(labID int64, number int, patch IssuePatch) (Issue, error)
	SoftDeleteIssue(labID int64, number int) error

	CreateComment(labID int64, issueNumber int, body string) (IssueComment, error)
	UpdateComment(labID int64, issueNumber int, commentID int64, patch CommentPatch) (IssueComment, error)
	SoftDeleteComment(labID int64, issueNumber int, commentID int64) error

	CreateExperiment(labID int64, draft ExperimentDraft) (Experiment, error)
	UpdateExperiment(labID int64, number int, patch ExperimentPatch) (Experiment, error)
	SoftDeleteExperiment(labID int64, number int) error

	CreateCheckIn(labID int64, draft CheckInDraft) (CheckIn, error)
	UpdateCheckIn(labID int64, number int, patch CheckInPatch) (CheckIn, error)
	SoftDeleteCheckIn(labID int64, number int) error
	// TodayCheckIn returns the lab's live check-in created on the
	// transaction's UTC calendar date, if any.
	TodayCheckIn(labID int64) (CheckIn, bool)

	// ReconcileQueue repairs the lab's stored queue order against its open
	// issues, persists the repaired order when it changed, and returns it.
	ReconcileQueue(labID int64) ([]int64, error)
	// SetQueueOrder stores the normalized order without validating it
	// against the live open-issue set.
	SetQueueOrder(labID int64, ids []int64) (Lab, error)
}

// TransactionView provides read-only access to snapshot state for rules and
// read paths. List methods exclude soft-deleted records; All methods include
// them (numbering and audit need the full set). The IncludingDeleted
// resolvers also match soft-deleted rows: numbers are never reused, and
// history and comment reads must keep working after a soft delete.
type TransactionView interface {
	ListLabs() []Lab
	FindLab(id int64) (Lab, bool)

	ListIssues(labID int64) []Issue
	FindIssue(labID int64, number int) (Issue, bool)
	FindIssueIncludingDeleted(labID int64, number int) (Issue, bool)
	FindIssueByID(id int64) (Issue, bool)
	AllIssues() []Issue

	ListComments(labID int64, issueNumber int) []IssueComment
	FindComment(id int64) (IssueComment, bool)

	ListExperiments(labID int64) []Experiment
	FindExperiment(labID int64, number int) (Experiment, bool)
	FindExperimentIncludingDeleted(labID int64, number int) (Experiment, bool)
	AllExperiments() []Experiment

	ListCheckIns(labID int64) []CheckIn
	FindCheckIn(labID int64, number int) (CheckIn, bool)
	AllCheckIns() []CheckIn

	IssueDescriptionHistory(issueID int64) []IssueDescriptionHistoryItem
	IssueStateHistory(issueID int64) []IssueStateHistoryItem
	CommentHistory(commentID int64) []IssueCommentHistoryItem
	ExperimentTermsHistory(experimentID int64) []ExperimentTermsHistoryItem
	ExperimentEndDateHistory(experimentID int64) []ExperimentEndDateHistoryItem
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error

	ListLabs() []Lab
	GetLab(id int64) (Lab, bool)
	ListIssues(labID int64) []Issue
	GetIssue(labID int64, number int) (Issue, bool)
	ListExperiments(labID int64) []Experiment
	GetExperiment(labID int64, number int) (Experiment, bool)
	ListCheckIns(labID int64) []CheckIn
	GetCheckIn(labID int64, number int) (CheckIn, bool)
}
