// Package memory provides the in-memory transactional implementation of the
// core persistence store. Durable backends wrap it and persist snapshots.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"lifelab/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain
// persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

// Exported aliases keep method signatures concise while still exposing
// domain types from this infra package.
type (
	// Lab aliases domain.Lab for in-memory persistence operations.
	Lab = domain.Lab
	// Issue aliases domain.Issue.
	Issue = domain.Issue
	// IssueComment aliases domain.IssueComment.
	IssueComment = domain.IssueComment
	// Experiment aliases domain.Experiment.
	Experiment = domain.Experiment
	// CheckIn aliases domain.CheckIn.
	CheckIn = domain.CheckIn
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// PersistentStore aliases the domain.PersistentStore abstraction.
	PersistentStore = domain.PersistentStore
)

// Store provides an in-memory transactional store for the core domain. A
// single writer lock serializes transactions, which is what makes per-lab
// numbering and queue reconciliation race-free.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc swaps the time provider; tests use it to pin transaction time.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	state   memoryState
	changes []Change
	now     time.Time
}

// RunInTransaction executes fn within a transactional copy of the store
// state, evaluates the rules engine over the captured changes, and commits
// only when fn succeeds and no blocking violations exist.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(newTransactionView(&snapshot))
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot exposes the transactional state to callers needing reads inside
// the same atomic scope.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// transactionView exposes a read-only snapshot of state to rules and readers.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListLabs returns all labs ordered by ID.
func (v transactionView) ListLabs() []Lab {
	out := make([]Lab, 0, len(v.state.labs))
	for _, lab := range v.state.labs {
		out = append(out, lab)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindLab retrieves a lab by ID.
func (v transactionView) FindLab(id int64) (Lab, bool) {
	lab, ok := v.state.labs[id]
	return lab, ok
}

// ListIssues returns the lab's live issues ordered by number.
func (v transactionView) ListIssues(labID int64) []Issue {
	return listIssues(*v.state, labID)
}

// FindIssue retrieves a live issue by lab and number.
func (v transactionView) FindIssue(labID int64, number int) (Issue, bool) {
	return findIssue(*v.state, labID, number)
}

// FindIssueIncludingDeleted retrieves an issue by lab and number across
// live and soft-deleted rows. Numbers are never reused, so the match is
// unambiguous.
func (v transactionView) FindIssueIncludingDeleted(labID int64, number int) (Issue, bool) {
	return findIssueIncludingDeleted(*v.state, labID, number)
}

// FindIssueByID retrieves an issue by global ID, soft-deleted included, so
// history stays reachable after deletion.
func (v transactionView) FindIssueByID(id int64) (Issue, bool) {
	issue, ok := v.state.issues[id]
	if !ok {
		return Issue{}, false
	}
	return cloneIssue(issue), true
}

// AllIssues returns every issue including soft-deleted ones, ordered by ID.
func (v transactionView) AllIssues() []Issue {
	out := make([]Issue, 0, len(v.state.issues))
	for _, issue := range v.state.issues {
		out = append(out, cloneIssue(issue))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListComments returns the live comments of an issue ordered by ID. The
// owning issue may be soft-deleted; its comments stay readable.
func (v transactionView) ListComments(labID int64, issueNumber int) []IssueComment {
	issue, ok := findIssueIncludingDeleted(*v.state, labID, issueNumber)
	if !ok {
		return nil
	}
	out := make([]IssueComment, 0)
	for _, c := range v.state.comments {
		if c.IssueID == issue.ID && !c.Deleted {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindComment retrieves a comment by ID, soft-deleted included.
func (v transactionView) FindComment(id int64) (IssueComment, bool) {
	c, ok := v.state.comments[id]
	return c, ok
}

// ListExperiments returns the lab's live experiments ordered by number.
func (v transactionView) ListExperiments(labID int64) []Experiment {
	return listExperiments(*v.state, labID)
}

// FindExperiment retrieves a live experiment by lab and number.
func (v transactionView) FindExperiment(labID int64, number int) (Experiment, bool) {
	return findExperiment(*v.state, labID, number)
}

// FindExperimentIncludingDeleted retrieves an experiment by lab and number
// across live and soft-deleted rows.
func (v transactionView) FindExperimentIncludingDeleted(labID int64, number int) (Experiment, bool) {
	return findExperimentIncludingDeleted(*v.state, labID, number)
}

// AllExperiments returns every experiment including soft-deleted ones.
func (v transactionView) AllExperiments() []Experiment {
	out := make([]Experiment, 0, len(v.state.experiments))
	for _, e := range v.state.experiments {
		out = append(out, cloneExperiment(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListCheckIns returns the lab's live check-ins ordered by number.
func (v transactionView) ListCheckIns(labID int64) []CheckIn {
	return listCheckIns(*v.state, labID)
}

// FindCheckIn retrieves a live check-in by lab and number.
func (v transactionView) FindCheckIn(labID int64, number int) (CheckIn, bool) {
	return findCheckIn(*v.state, labID, number)
}

// AllCheckIns returns every check-in including soft-deleted ones.
func (v transactionView) AllCheckIns() []CheckIn {
	out := make([]CheckIn, 0, len(v.state.checkIns))
	for _, c := range v.state.checkIns {
		out = append(out, cloneCheckIn(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IssueDescriptionHistory returns the issue's description snapshots in
// creation order.
func (v transactionView) IssueDescriptionHistory(issueID int64) []domain.IssueDescriptionHistoryItem {
	return append([]domain.IssueDescriptionHistoryItem(nil), v.state.issueDescriptions[issueID]...)
}

// IssueStateHistory returns the issue's state snapshots in creation order.
func (v transactionView) IssueStateHistory(issueID int64) []domain.IssueStateHistoryItem {
	return append([]domain.IssueStateHistoryItem(nil), v.state.issueStates[issueID]...)
}

// CommentHistory returns the comment's body snapshots in creation order.
func (v transactionView) CommentHistory(commentID int64) []domain.IssueCommentHistoryItem {
	return append([]domain.IssueCommentHistoryItem(nil), v.state.commentBodies[commentID]...)
}

// ExperimentTermsHistory returns the experiment's terms snapshots in
// creation order.
func (v transactionView) ExperimentTermsHistory(experimentID int64) []domain.ExperimentTermsHistoryItem {
	return append([]domain.ExperimentTermsHistoryItem(nil), v.state.experimentTerms[experimentID]...)
}

// ExperimentEndDateHistory returns the experiment's end-date snapshots in
// creation order.
func (v transactionView) ExperimentEndDateHistory(experimentID int64) []domain.ExperimentEndDateHistoryItem {
	return append([]domain.ExperimentEndDateHistoryItem(nil), v.state.experimentEndDates[experimentID]...)
}

// Read helpers over committed state --------------------------------------

// ListLabs returns all labs from committed state.
func (s *Store) ListLabs() []Lab {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListLabs()
}

// GetLab retrieves a lab by ID from committed state.
func (s *Store) GetLab(id int64) (Lab, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lab, ok := s.state.labs[id]
	return lab, ok
}

// ListIssues returns a lab's live issues from committed state.
func (s *Store) ListIssues(labID int64) []Issue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listIssues(s.state, labID)
}

// GetIssue retrieves a live issue by lab and number from committed state.
func (s *Store) GetIssue(labID int64, number int) (Issue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findIssue(s.state, labID, number)
}

// ListExperiments returns a lab's live experiments from committed state.
func (s *Store) ListExperiments(labID int64) []Experiment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listExperiments(s.state, labID)
}

// GetExperiment retrieves a live experiment by lab and number.
func (s *Store) GetExperiment(labID int64, number int) (Experiment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findExperiment(s.state, labID, number)
}

// ListCheckIns returns a lab's live check-ins from committed state.
func (s *Store) ListCheckIns(labID int64) []CheckIn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listCheckIns(s.state, labID)
}

// GetCheckIn retrieves a live check-in by lab and number.
func (s *Store) GetCheckIn(labID int64, number int) (CheckIn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findCheckIn(s.state, labID, number)
}

// Shared lookups used by views and committed-state getters ----------------

func listIssues(state memoryState, labID int64) []Issue {
	out := make([]Issue, 0)
	for _, issue := range state.issues {
		if issue.LabID == labID && !issue.Deleted {
			out = append(out, cloneIssue(issue))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func findIssue(state memoryState, labID int64, number int) (Issue, bool) {
	for _, issue := range state.issues {
		if issue.LabID == labID && issue.Number == number && !issue.Deleted {
			return cloneIssue(issue), true
		}
	}
	return Issue{}, false
}

func findIssueIncludingDeleted(state memoryState, labID int64, number int) (Issue, bool) {
	for _, issue := range state.issues {
		if issue.LabID == labID && issue.Number == number {
			return cloneIssue(issue), true
		}
	}
	return Issue{}, false
}

func listExperiments(state memoryState, labID int64) []Experiment {
	out := make([]Experiment, 0)
	for _, e := range state.experiments {
		if e.LabID == labID && !e.Deleted {
			out = append(out, cloneExperiment(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func findExperiment(state memoryState, labID int64, number int) (Experiment, bool) {
	for _, e := range state.experiments {
		if e.LabID == labID && e.Number == number && !e.Deleted {
			return cloneExperiment(e), true
		}
	}
	return Experiment{}, false
}

func findExperimentIncludingDeleted(state memoryState, labID int64, number int) (Experiment, bool) {
	for _, e := range state.experiments {
		if e.LabID == labID && e.Number == number {
			return cloneExperiment(e), true
		}
	}
	return Experiment{}, false
}

func listCheckIns(state memoryState, labID int64) []CheckIn {
	out := make([]CheckIn, 0)
	for _, c := range state.checkIns {
		if c.LabID == labID && !c.Deleted {
			out = append(out, cloneCheckIn(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func findCheckIn(state memoryState, labID int64, number int) (CheckIn, bool) {
	for _, c := range state.checkIns {
		if c.LabID == labID && c.Number == number && !c.Deleted {
			return cloneCheckIn(c), true
		}
	}
	return CheckIn{}, false
}
