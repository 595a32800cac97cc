package core

import "lifelab/pkg/domain"

type (
	EntityType         = domain.EntityType
	IssueState         = domain.IssueState
	ExperimentState    = domain.ExperimentState
	Severity           = domain.Severity
	Base               = domain.Base
	Date               = domain.Date
	Lab                = domain.Lab
	Issue              = domain.Issue
	IssueComment       = domain.IssueComment
	Experiment         = domain.Experiment
	CheckIn            = domain.CheckIn
	IssueDraft         = domain.IssueDraft
	IssuePatch         = domain.IssuePatch
	CommentPatch       = domain.CommentPatch
	ExperimentDraft    = domain.ExperimentDraft
	ExperimentPatch    = domain.ExperimentPatch
	CheckInDraft       = domain.CheckInDraft
	CheckInPatch       = domain.CheckInPatch
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntityLab          = domain.EntityLab
	EntityIssue        = domain.EntityIssue
	EntityIssueComment = domain.EntityIssueComment
	EntityExperiment   = domain.EntityExperiment
	EntityCheckIn      = domain.EntityCheckIn
)

const (
	IssueOpen   = domain.IssueOpen
	IssueClosed = domain.IssueClosed
)

const (
	ExperimentInactive  = domain.ExperimentInactive
	ExperimentActive    = domain.ExperimentActive
	ExperimentCommitted = domain.ExperimentCommitted
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// NewRulesEngine re-exports the domain constructor for callers of this package.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }
