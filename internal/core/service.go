package core

import (
	"context"
	"time"

	"lifelab/pkg/domain"
)

// Service exposes the transactional operations of the core schema with
// audit, metrics and tracing applied around every mutation.
type Service struct {
	store   PersistentStore
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
}

// ServiceOption customises a Service at construction time.
type ServiceOption func(*Service)

// WithLogger installs a structured logger.
func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAuditRecorder installs an audit sink for operation outcomes.
func WithAuditRecorder(rec AuditRecorder) ServiceOption {
	return func(s *Service) {
		if rec != nil {
			s.audit = rec
		}
	}
}

// WithMetricsRecorder installs a metrics sink for operation outcomes.
func WithMetricsRecorder(rec MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithTracer installs a tracer wrapping every operation.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		logger:  noopLogger{},
		audit:   noopAuditRecorder{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store with the
// given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	return NewService(newMemoryStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// transact runs fn inside a store transaction and reports the outcome to the
// configured observability sinks. entry carries entity attribution filled in
// by the operation closure.
func (s *Service) transact(ctx context.Context, op string, entry *AuditEntry, fn func(tx Transaction) error) (Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now().UTC()
	res, err := s.store.RunInTransaction(ctx, fn)
	duration := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)

	audit := AuditEntry{
		Operation:  op,
		Status:     AuditStatusSuccess,
		Violations: res.Violations,
		Duration:   duration,
		Occurred:   started,
	}
	if entry != nil {
		audit.Entity = entry.Entity
		audit.EntityID = entry.EntityID
		audit.LabID = entry.LabID
	}
	if err != nil {
		audit.Status = AuditStatusError
		audit.Error = err.Error()
		s.logger.Error("operation failed", "operation", op, "error", err)
	} else {
		s.logger.Debug("operation completed", "operation", op, "duration_ms", duration.Milliseconds())
	}
	s.audit.Record(ctx, audit)
	return res, err
}

// Labs ---------------------------------------------------------------------

// CreateLab persists a new lab.
func (s *Service) CreateLab(ctx context.Context, name string) (Lab, Result, error) {
	var created Lab
	entry := AuditEntry{Entity: EntityLab}
	res, err := s.transact(ctx, "create_lab", &entry, func(tx Transaction) error {
		var err error
		created, err = tx.CreateLab(Lab{Name: name})
		entry.EntityID = created.ID
		entry.LabID = created.ID
		return err
	})
	return created, res, err
}

// UpdateLab mutates a lab using the provided mutator.
func (s *Service) UpdateLab(ctx context.Context, id int64, mutator func(*Lab) error) (Lab, Result, error) {
	var updated Lab
	entry := AuditEntry{Entity: EntityLab, EntityID: id, LabID: id}
	res, err := s.transact(ctx, "update_lab", &entry, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateLab(id, mutator)
		return err
	})
	return updated, res, err
}

// DeleteLab removes a lab and everything it owns.
func (s *Service) DeleteLab(ctx context.Context, id int64) (Result, error) {
	entry := AuditEntry{Entity: EntityLab, EntityID: id, LabID: id}
	return s.transact(ctx, "delete_lab", &entry, func(tx Transaction) error {
		return tx.DeleteLab(id)
	})
}

// ListLabs returns all labs.
func (s *Service) ListLabs(context.Context) []Lab {
	return s.store.ListLabs()
}

// GetLab retrieves a lab by ID.
func (s *Service) GetLab(_ context.Context, id int64) (Lab, bool) {
	return s.store.GetLab(id)
}

// Issues -------------------------------------------------------------------

// CreateIssue persists a new issue in a lab.
func (s *Service) CreateIssue(ctx context.Context, labID int64, draft IssueDraft) (Issue, Result, error) {
	var created Issue
	entry := AuditEntry{Entity: EntityIssue, LabID: labID}
	res, err := s.transact(ctx, "create_issue", &entry, func(tx Transaction) error {
		var err error
		created, err = tx.CreateIssue(labID, draft)
		entry.EntityID = created.ID
		return err
	})
	return created, res, err
}

// UpdateIssue applies a patch to an issue addressed by lab and number.
func (s *Service) UpdateIssue(ctx context.Context, labID int64, number int, patch IssuePatch) (Issue, Result, error) {
	var updated Issue
	entry := AuditEntry{Entity: EntityIssue, LabID: labID}
	res, err := s.transact(ctx, "update_issue", &entry, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateIssue(labID, number, patch)
		entry.EntityID = updated.ID
		return err
	})
	return updated, res, err
}

// DeleteIssue soft-deletes an issue; its number is never reassigned.
func (s *Service) DeleteIssue(ctx context.Context, labID int64, number int) (Result, error) {
	entry := AuditEntry{Entity: EntityIssue, LabID: labID}
	return s.transact(ctx, "delete_issue", &entry, func(tx Transaction) error {
		return tx.SoftDeleteIssue(labID, number)
	})
}

// ListIssues returns a lab's live issues ordered by number.
func (s *Service) ListIssues(_ context.Context, labID int64) []Issue {
	return s.store.ListIssues(labID)
}

// GetIssue retrieves a live issue by lab and number.
func (s *Service) GetIssue(_ context.Context, labID int64, number int) (Issue, bool) {
	return s.store.GetIssue(labID, number)
}

// IssueDescriptionHistory returns an issue's description audit trail in
// write order. Soft-deleted issues keep their history readable.
func (s *Service) IssueDescriptionHistory(ctx context.Context, labID int64, number int) ([]domain.IssueDescriptionHistoryItem, error) {
	var history []domain.IssueDescriptionHistoryItem
	err := s.store.View(ctx, func(view TransactionView) error {
		issue, ok := view.FindIssueIncludingDeleted(labID, number)
		if !ok {
			return domain.NotFoundError{Entity: EntityIssue, Key: issueKey(labID, number)}
		}
		history = view.IssueDescriptionHistory(issue.ID)
		return nil
	})
	return history, err
}

// IssueStateHistory returns an issue's state audit trail in write order.
func (s *Service) IssueStateHistory(ctx context.Context, labID int64, number int) ([]domain.IssueStateHistoryItem, error) {
	var history []domain.IssueStateHistoryItem
	err := s.store.View(ctx, func(view TransactionView) error {
		issue, ok := view.FindIssueIncludingDeleted(labID, number)
		if !ok {
			return domain.NotFoundError{Entity: EntityIssue, Key: issueKey(labID, number)}
		}
		history = view.IssueStateHistory(issue.ID)
		return nil
	})
	return history, err
}

// Comments -----------------------------------------------------------------

// CreateComment persists a new comment on an issue.
func (s *Service) CreateComment(ctx context.Context, labID int64, issueNumber int, body string) (IssueComment, Result, error) {
	var created IssueComment
	entry := AuditEntry{Entity: EntityIssueComment, LabID: labID}
	res, err := s.transact(ctx, "create_comment", &entry, func(tx Transaction) error {
		var err error
		created, err = tx.CreateComment(labID, issueNumber, body)
		entry.EntityID = created.ID
		return err
	})
	return created, res, err
}

// UpdateComment applies a patch to a comment.
func (s *Service) UpdateComment(ctx context.Context, labID int64, issueNumber int, commentID int64, patch CommentPatch) (IssueComment, Result, error) {
	var updated IssueComment
	entry := AuditEntry{Entity: EntityIssueComment, EntityID: commentID, LabID: labID}
	res, err := s.transact(ctx, "update_comment", &entry, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateComment(labID, issueNumber, commentID, patch)
		return err
	})
	return updated, res, err
}

// DeleteComment soft-deletes a comment.
func (s *Service) DeleteComment(ctx context.Context, labID int64, issueNumber int, commentID int64) (Result, error) {
	entry := AuditEntry{Entity: EntityIssueComment, EntityID: commentID, LabID: labID}
	return s.transact(ctx, "delete_comment", &entry, func(tx Transaction) error {
		return tx.SoftDeleteComment(labID, issueNumber, commentID)
	})
}

// ListComments returns the live comments of an issue ordered by ID. The
// issue may be soft-deleted; its comments stay readable.
func (s *Service) ListComments(ctx context.Context, labID int64, issueNumber int) ([]IssueComment, error) {
	var comments []IssueComment
	err := s.store.View(ctx, func(view TransactionView) error {
		if _, ok := view.FindIssueIncludingDeleted(labID, issueNumber); !ok {
			return domain.NotFoundError{Entity: EntityIssue, Key: issueKey(labID, issueNumber)}
		}
		comments = view.ListComments(labID, issueNumber)
		return nil
	})
	return comments, err
}

// CommentHistory returns a comment's body audit trail in write order.
func (s *Service) CommentHistory(ctx context.Context, labID int64, issueNumber int, commentID int64) ([]domain.IssueCommentHistoryItem, error) {
	var history []domain.IssueCommentHistoryItem
	err := s.store.View(ctx, func(view TransactionView) error {
		issue, ok := view.FindIssueIncludingDeleted(labID, issueNumber)
		if !ok {
			return domain.NotFoundError{Entity: EntityIssue, Key: issueKey(labID, issueNumber)}
		}
		comment, ok := view.FindComment(commentID)
		if !ok || comment.IssueID != issue.ID {
			return domain.NotFoundError{Entity: EntityIssueComment, Key: issueKey(labID, issueNumber)}
		}
		history = view.CommentHistory(commentID)
		return nil
	})
	return history, err
}

// Experiments --------------------------------------------------------------

// CreateExperiment persists a new experiment in a lab.
func (s *Service) CreateExperiment(ctx context.Context, labID int64, draft ExperimentDraft) (Experiment, Result, error) {
	var created Experiment
	entry := AuditEntry{Entity: EntityExperiment, LabID: labID}
	res, err := s.transact(ctx, "create_experiment", &entry, func(tx Transaction) error {
		var err error
		created, err = tx.CreateExperiment(labID, draft)
		entry.EntityID = created.ID
		return err
	})
	return created, res, err
}

// UpdateExperiment applies a patch to an experiment.
func (s *Service) UpdateExperiment(ctx context.Context, labID int64, number int, patch ExperimentPatch) (Experiment, Result, error) {
	var updated Experiment
	entry := AuditEntry{Entity: EntityExperiment, LabID: labID}
	res, err := s.transact(ctx, "update_experiment", &entry, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateExperiment(labID, number, patch)
		entry.EntityID = updated.ID
		return err
	})
	return updated, res, err
}

// DeleteExperiment soft-deletes an experiment.
func (s *Service) DeleteExperiment(ctx context.Context, labID int64, number int) (Result, error) {
	entry := AuditEntry{Entity: EntityExperiment, LabID: labID}
	return s.transact(ctx, "delete_experiment", &entry, func(tx Transaction) error {
		return tx.SoftDeleteExperiment(labID, number)
	})
}

// ListExperiments returns a lab's live experiments ordered by number.
func (s *Service) ListExperiments(_ context.Context, labID int64) []Experiment {
	return s.store.ListExperiments(labID)
}

// GetExperiment retrieves a live experiment by lab and number.
func (s *Service) GetExperiment(_ context.Context, labID int64, number int) (Experiment, bool) {
	return s.store.GetExperiment(labID, number)
}

// ExperimentTermsHistory returns an experiment's terms audit trail.
func (s *Service) ExperimentTermsHistory(ctx context.Context, labID int64, number int) ([]domain.ExperimentTermsHistoryItem, error) {
	var history []domain.ExperimentTermsHistoryItem
	err := s.store.View(ctx, func(view TransactionView) error {
		experiment, ok := view.FindExperimentIncludingDeleted(labID, number)
		if !ok {
			return domain.NotFoundError{Entity: EntityExperiment, Key: issueKey(labID, number)}
		}
		history = view.ExperimentTermsHistory(experiment.ID)
		return nil
	})
	return history, err
}

// ExperimentEndDateHistory returns an experiment's end-date audit trail.
func (s *Service) ExperimentEndDateHistory(ctx context.Context, labID int64, number int) ([]domain.ExperimentEndDateHistoryItem, error) {
	var history []domain.ExperimentEndDateHistoryItem
	err := s.store.View(ctx, func(view TransactionView) error {
		experiment, ok := view.FindExperimentIncludingDeleted(labID, number)
		if !ok {
			return domain.NotFoundError{Entity: EntityExperiment, Key: issueKey(labID, number)}
		}
		history = view.ExperimentEndDateHistory(experiment.ID)
		return nil
	})
	return history, err
}

// Check-ins ----------------------------------------------------------------

// CreateCheckIn persists a new check-in, freezing the lab's ACTIVE
// experiments into it.
func (s *Service) CreateCheckIn(ctx context.Context, labID int64, draft CheckInDraft) (CheckIn, Result, error) {
	var created CheckIn
	entry := AuditEntry{Entity: EntityCheckIn, LabID: labID}
	res, err := s.transact(ctx, "create_check_in", &entry, func(tx Transaction) error {
		var err error
		created, err = tx.CreateCheckIn(labID, draft)
		entry.EntityID = created.ID
		return err
	})
	return created, res, err
}

// UpdateCheckIn applies a patch to a check-in.
func (s *Service) UpdateCheckIn(ctx context.Context, labID int64, number int, patch CheckInPatch) (CheckIn, Result, error) {
	var updated CheckIn
	entry := AuditEntry{Entity: EntityCheckIn, LabID: labID}
	res, err := s.transact(ctx, "update_check_in", &entry, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateCheckIn(labID, number, patch)
		entry.EntityID = updated.ID
		return err
	})
	return updated, res, err
}

// DeleteCheckIn soft-deletes a check-in.
func (s *Service) DeleteCheckIn(ctx context.Context, labID int64, number int) (Result, error) {
	entry := AuditEntry{Entity: EntityCheckIn, LabID: labID}
	return s.transact(ctx, "delete_check_in", &entry, func(tx Transaction) error {
		return tx.SoftDeleteCheckIn(labID, number)
	})
}

// ListCheckIns returns a lab's live check-ins ordered by number.
func (s *Service) ListCheckIns(_ context.Context, labID int64) []CheckIn {
	return s.store.ListCheckIns(labID)
}

// GetCheckIn retrieves a live check-in by lab and number.
func (s *Service) GetCheckIn(_ context.Context, labID int64, number int) (CheckIn, bool) {
	return s.store.GetCheckIn(labID, number)
}

// TodayCheckIn returns the lab's check-in for the current UTC day, creating
// an empty one when none exists yet.
func (s *Service) TodayCheckIn(ctx context.Context, labID int64) (CheckIn, Result, error) {
	var checkIn CheckIn
	entry := AuditEntry{Entity: EntityCheckIn, LabID: labID}
	res, err := s.transact(ctx, "today_check_in", &entry, func(tx Transaction) error {
		if existing, ok := tx.TodayCheckIn(labID); ok {
			checkIn = existing
			entry.EntityID = existing.ID
			return nil
		}
		created, err := tx.CreateCheckIn(labID, CheckInDraft{})
		checkIn = created
		entry.EntityID = created.ID
		return err
	})
	return checkIn, res, err
}

// Queue --------------------------------------------------------------------

// Queue returns the lab's open-issue queue, repairing the stored order
// against the live open-issue set first.
func (s *Service) Queue(ctx context.Context, labID int64) ([]int64, Result, error) {
	var order []int64
	entry := AuditEntry{Entity: EntityLab, EntityID: labID, LabID: labID}
	res, err := s.transact(ctx, "queue", &entry, func(tx Transaction) error {
		var err error
		order, err = tx.ReconcileQueue(labID)
		return err
	})
	return order, res, err
}

// SetQueue stores a caller-supplied queue order. Stale or missing entries
// are repaired on the next read rather than rejected here.
func (s *Service) SetQueue(ctx context.Context, labID int64, ids []int64) (Lab, Result, error) {
	var lab Lab
	entry := AuditEntry{Entity: EntityLab, EntityID: labID, LabID: labID}
	res, err := s.transact(ctx, "set_queue", &entry, func(tx Transaction) error {
		var err error
		lab, err = tx.SetQueueOrder(labID, ids)
		return err
	})
	return lab, res, err
}

// SetQueueString parses a serialized queue order and stores it. Malformed
// input is rejected with a validation error.
func (s *Service) SetQueueString(ctx context.Context, labID int64, order string) (Lab, Result, error) {
	ids, err := domain.ParseQueueOrder(order)
	if err != nil {
		return Lab{}, Result{}, err
	}
	return s.SetQueue(ctx, labID, ids)
}
