package memory

import (
	"sort"
	"strconv"
	"unicode/utf8"

	"lifelab/pkg/domain"
)

func labKey(id int64) string {
	return "lab " + strconv.FormatInt(id, 10)
}

func numberKey(labID int64, number int) string {
	return "lab " + strconv.FormatInt(labID, 10) + " number " + strconv.Itoa(number)
}

func checkLength(entity domain.EntityType, field, value string, limit int) error {
	if utf8.RuneCountInString(value) > limit {
		return domain.ConstraintError{
			Entity:  entity,
			Field:   field,
			Message: "exceeds " + strconv.Itoa(limit) + " characters",
		}
	}
	return nil
}

func (tx *transaction) nextID() int64 {
	tx.state.seq++
	return tx.state.seq
}

func (tx *transaction) newBase() domain.Base {
	return domain.Base{ID: tx.nextID(), Created: tx.now, Modified: tx.now}
}

// nextIssueNumber scans the lab's issues, soft-deleted included, so numbers
// are never reused. The store's writer lock serializes callers.
func (tx *transaction) nextIssueNumber(labID int64) int {
	maxNumber := 0
	for _, issue := range tx.state.issues {
		if issue.LabID == labID && issue.Number > maxNumber {
			maxNumber = issue.Number
		}
	}
	return maxNumber + 1
}

func (tx *transaction) nextExperimentNumber(labID int64) int {
	maxNumber := 0
	for _, e := range tx.state.experiments {
		if e.LabID == labID && e.Number > maxNumber {
			maxNumber = e.Number
		}
	}
	return maxNumber + 1
}

func (tx *transaction) nextCheckInNumber(labID int64) int {
	maxNumber := 0
	for _, c := range tx.state.checkIns {
		if c.LabID == labID && c.Number > maxNumber {
			maxNumber = c.Number
		}
	}
	return maxNumber + 1
}

func (tx *transaction) requireLab(id int64) (Lab, error) {
	lab, ok := tx.state.labs[id]
	if !ok {
		return Lab{}, domain.NotFoundError{Entity: domain.EntityLab, Key: labKey(id)}
	}
	return lab, nil
}

func (tx *transaction) requireIssue(labID int64, number int) (Issue, error) {
	issue, ok := findIssue(tx.state, labID, number)
	if !ok {
		return Issue{}, domain.NotFoundError{Entity: domain.EntityIssue, Key: numberKey(labID, number)}
	}
	return issue, nil
}

// requireExperimentIDs ensures every referenced experiment belongs to the lab.
func (tx *transaction) requireExperimentIDs(labID int64, ids []int64) error {
	for _, id := range ids {
		e, ok := tx.state.experiments[id]
		if !ok || e.LabID != labID {
			return domain.NotFoundError{Entity: domain.EntityExperiment, Key: labKey(labID) + " experiment id " + strconv.FormatInt(id, 10)}
		}
	}
	return nil
}

// requireIssueIDs ensures every referenced issue belongs to the lab.
func (tx *transaction) requireIssueIDs(labID int64, ids []int64) error {
	for _, id := range ids {
		issue, ok := tx.state.issues[id]
		if !ok || issue.LabID != labID {
			return domain.NotFoundError{Entity: domain.EntityIssue, Key: labKey(labID) + " issue id " + strconv.FormatInt(id, 10)}
		}
	}
	return nil
}

// Lab ---------------------------------------------------------------------

// CreateLab stores a new lab record.
func (tx *transaction) CreateLab(lab Lab) (Lab, error) {
	if err := checkLength(domain.EntityLab, "name", lab.Name, domain.MaxTitleLength); err != nil {
		return Lab{}, err
	}
	lab.Base = tx.newBase()
	tx.state.labs[lab.ID] = lab
	tx.recordChange(Change{Entity: domain.EntityLab, Action: domain.ActionCreate, After: lab})
	return lab, nil
}

// UpdateLab mutates a lab using the provided mutator function.
func (tx *transaction) UpdateLab(id int64, mutator func(*Lab) error) (Lab, error) {
	current, err := tx.requireLab(id)
	if err != nil {
		return Lab{}, err
	}
	before := current
	if err := mutator(&current); err != nil {
		return Lab{}, err
	}
	current.ID = id
	current.Created = before.Created
	current.Modified = tx.now
	if err := checkLength(domain.EntityLab, "name", current.Name, domain.MaxTitleLength); err != nil {
		return Lab{}, err
	}
	tx.state.labs[id] = current
	tx.recordChange(Change{Entity: domain.EntityLab, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteLab hard-deletes the lab and cascades to all owned records,
// including soft-deleted ones and their history.
func (tx *transaction) DeleteLab(id int64) error {
	lab, err := tx.requireLab(id)
	if err != nil {
		return err
	}
	for issueID, issue := range tx.state.issues {
		if issue.LabID != id {
			continue
		}
		for commentID, comment := range tx.state.comments {
			if comment.IssueID == issueID {
				delete(tx.state.comments, commentID)
				delete(tx.state.commentBodies, commentID)
			}
		}
		delete(tx.state.issues, issueID)
		delete(tx.state.issueDescriptions, issueID)
		delete(tx.state.issueStates, issueID)
	}
	for experimentID, e := range tx.state.experiments {
		if e.LabID == id {
			delete(tx.state.experiments, experimentID)
			delete(tx.state.experimentTerms, experimentID)
			delete(tx.state.experimentEndDates, experimentID)
		}
	}
	for checkInID, c := range tx.state.checkIns {
		if c.LabID == id {
			delete(tx.state.checkIns, checkInID)
		}
	}
	delete(tx.state.labs, id)
	tx.recordChange(Change{Entity: domain.EntityLab, Action: domain.ActionDelete, Before: lab})
	return nil
}

// Issue -------------------------------------------------------------------

// CreateIssue stores a new issue, assigning the next per-lab number before
// the record becomes visible. The initial description and state are not
// logged as history.
func (tx *transaction) CreateIssue(labID int64, draft domain.IssueDraft) (Issue, error) {
	if _, err := tx.requireLab(labID); err != nil {
		return Issue{}, err
	}
	state := draft.State
	if state == "" {
		state = domain.IssueOpen
	}
	if !state.Valid() {
		return Issue{}, domain.ValidationError{Field: "state", Message: "unknown issue state " + string(draft.State)}
	}
	if err := checkLength(domain.EntityIssue, "title", draft.Title, domain.MaxTitleLength); err != nil {
		return Issue{}, err
	}
	if err := checkLength(domain.EntityIssue, "description", draft.Description, domain.MaxBodyLength); err != nil {
		return Issue{}, err
	}
	issue := Issue{
		Base:        tx.newBase(),
		LabID:       labID,
		Number:      tx.nextIssueNumber(labID),
		State:       state,
		Title:       draft.Title,
		Description: draft.Description,
	}
	tx.state.issues[issue.ID] = issue
	tx.recordChange(Change{Entity: domain.EntityIssue, Action: domain.ActionCreate, After: cloneIssue(issue)})
	return cloneIssue(issue), nil
}

// UpdateIssue applies a patch to a live issue. Setting Description or State
// appends a history item stamped with the transaction time, even when the
// value did not change.
func (tx *transaction) UpdateIssue(labID int64, number int, patch domain.IssuePatch) (Issue, error) {
	current, err := tx.requireIssue(labID, number)
	if err != nil {
		return Issue{}, err
	}
	before := cloneIssue(current)
	if patch.Title != nil {
		if err := checkLength(domain.EntityIssue, "title", *patch.Title, domain.MaxTitleLength); err != nil {
			return Issue{}, err
		}
		current.Title = *patch.Title
	}
	if patch.Description != nil {
		if err := checkLength(domain.EntityIssue, "description", *patch.Description, domain.MaxBodyLength); err != nil {
			return Issue{}, err
		}
		current.Description = *patch.Description
		tx.state.issueDescriptions[current.ID] = append(tx.state.issueDescriptions[current.ID], domain.IssueDescriptionHistoryItem{
			Base:        tx.newBase(),
			IssueID:     current.ID,
			Description: *patch.Description,
		})
	}
	if patch.State != nil {
		if !patch.State.Valid() {
			return Issue{}, domain.ValidationError{Field: "state", Message: "unknown issue state " + string(*patch.State)}
		}
		current.State = *patch.State
		tx.state.issueStates[current.ID] = append(tx.state.issueStates[current.ID], domain.IssueStateHistoryItem{
			Base:    tx.newBase(),
			IssueID: current.ID,
			State:   *patch.State,
		})
	}
	if patch.ExperimentIDs != nil {
		if err := tx.requireExperimentIDs(labID, *patch.ExperimentIDs); err != nil {
			return Issue{}, err
		}
		current.ExperimentIDs = append([]int64(nil), *patch.ExperimentIDs...)
	}
	current.Modified = tx.now
	tx.state.issues[current.ID] = cloneIssue(current)
	tx.recordChange(Change{Entity: domain.EntityIssue, Action: domain.ActionUpdate, Before: before, After: cloneIssue(current)})
	return cloneIssue(current), nil
}

// SoftDeleteIssue marks a live issue deleted. History and comments remain.
func (tx *transaction) SoftDeleteIssue(labID int64, number int) error {
	current, err := tx.requireIssue(labID, number)
	if err != nil {
		return err
	}
	before := cloneIssue(current)
	current.Deleted = true
	current.Modified = tx.now
	tx.state.issues[current.ID] = cloneIssue(current)
	tx.recordChange(Change{Entity: domain.EntityIssue, Action: domain.ActionUpdate, Before: before, After: cloneIssue(current)})
	return nil
}

// Comment -----------------------------------------------------------------

// CreateComment stores a new comment on a live issue. The initial body is
// not logged as history.
func (tx *transaction) CreateComment(labID int64, issueNumber int, body string) (IssueComment, error) {
	issue, err := tx.requireIssue(labID, issueNumber)
	if err != nil {
		return IssueComment{}, err
	}
	if err := checkLength(domain.EntityIssueComment, "body", body, domain.MaxBodyLength); err != nil {
		return IssueComment{}, err
	}
	comment := IssueComment{
		Base:    tx.newBase(),
		IssueID: issue.ID,
		Body:    body,
	}
	tx.state.comments[comment.ID] = comment
	tx.recordChange(Change{Entity: domain.EntityIssueComment, Action: domain.ActionCreate, After: comment})
	return comment, nil
}

func (tx *transaction) requireComment(labID int64, issueNumber int, commentID int64) (IssueComment, error) {
	issue, err := tx.requireIssue(labID, issueNumber)
	if err != nil {
		return IssueComment{}, err
	}
	comment, ok := tx.state.comments[commentID]
	if !ok || comment.IssueID != issue.ID || comment.Deleted {
		return IssueComment{}, domain.NotFoundError{
			Entity: domain.EntityIssueComment,
			Key:    numberKey(labID, issueNumber) + " comment " + strconv.FormatInt(commentID, 10),
		}
	}
	return comment, nil
}

// UpdateComment applies a patch to a live comment. Setting Body appends a
// history item regardless of value equality.
func (tx *transaction) UpdateComment(labID int64, issueNumber int, commentID int64, patch domain.CommentPatch) (IssueComment, error) {
	current, err := tx.requireComment(labID, issueNumber, commentID)
	if err != nil {
		return IssueComment{}, err
	}
	before := current
	if patch.Body != nil {
		if err := checkLength(domain.EntityIssueComment, "body", *patch.Body, domain.MaxBodyLength); err != nil {
			return IssueComment{}, err
		}
		current.Body = *patch.Body
		tx.state.commentBodies[current.ID] = append(tx.state.commentBodies[current.ID], domain.IssueCommentHistoryItem{
			Base:      tx.newBase(),
			CommentID: current.ID,
			Body:      *patch.Body,
		})
	}
	current.Modified = tx.now
	tx.state.comments[current.ID] = current
	tx.recordChange(Change{Entity: domain.EntityIssueComment, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// SoftDeleteComment marks a live comment deleted; its history remains.
func (tx *transaction) SoftDeleteComment(labID int64, issueNumber int, commentID int64) error {
	current, err := tx.requireComment(labID, issueNumber, commentID)
	if err != nil {
		return err
	}
	before := current
	current.Deleted = true
	current.Modified = tx.now
	tx.state.comments[current.ID] = current
	tx.recordChange(Change{Entity: domain.EntityIssueComment, Action: domain.ActionUpdate, Before: before, After: current})
	return nil
}

// Experiment --------------------------------------------------------------

// CreateExperiment stores a new experiment, assigning the next per-lab
// number. Initial terms and end date are not logged as history.
func (tx *transaction) CreateExperiment(labID int64, draft domain.ExperimentDraft) (Experiment, error) {
	if _, err := tx.requireLab(labID); err != nil {
		return Experiment{}, err
	}
	state := draft.State
	if state == "" {
		state = domain.ExperimentInactive
	}
	if !state.Valid() {
		return Experiment{}, domain.ValidationError{Field: "state", Message: "unknown experiment state " + string(draft.State)}
	}
	if err := checkLength(domain.EntityExperiment, "title", draft.Title, domain.MaxTitleLength); err != nil {
		return Experiment{}, err
	}
	if err := checkLength(domain.EntityExperiment, "terms", draft.Terms, domain.MaxBodyLength); err != nil {
		return Experiment{}, err
	}
	if err := tx.requireIssueIDs(labID, draft.IssueIDs); err != nil {
		return Experiment{}, err
	}
	experiment := Experiment{
		Base:     tx.newBase(),
		LabID:    labID,
		Number:   tx.nextExperimentNumber(labID),
		State:    state,
		Title:    draft.Title,
		Terms:    draft.Terms,
		EndDate:  draft.EndDate,
		IssueIDs: append([]int64(nil), draft.IssueIDs...),
	}
	tx.state.experiments[experiment.ID] = cloneExperiment(experiment)
	tx.recordChange(Change{Entity: domain.EntityExperiment, Action: domain.ActionCreate, After: cloneExperiment(experiment)})
	return cloneExperiment(experiment), nil
}

func (tx *transaction) requireExperiment(labID int64, number int) (Experiment, error) {
	e, ok := findExperiment(tx.state, labID, number)
	if !ok {
		return Experiment{}, domain.NotFoundError{Entity: domain.EntityExperiment, Key: numberKey(labID, number)}
	}
	return e, nil
}

// UpdateExperiment applies a patch to a live experiment. Setting Terms or
// EndDate appends history items regardless of value equality.
func (tx *transaction) UpdateExperiment(labID int64, number int, patch domain.ExperimentPatch) (Experiment, error) {
	current, err := tx.requireExperiment(labID, number)
	if err != nil {
		return Experiment{}, err
	}
	before := cloneExperiment(current)
	if patch.Title != nil {
		if err := checkLength(domain.EntityExperiment, "title", *patch.Title, domain.MaxTitleLength); err != nil {
			return Experiment{}, err
		}
		current.Title = *patch.Title
	}
	if patch.State != nil {
		if !patch.State.Valid() {
			return Experiment{}, domain.ValidationError{Field: "state", Message: "unknown experiment state " + string(*patch.State)}
		}
		current.State = *patch.State
	}
	if patch.Terms != nil {
		if err := checkLength(domain.EntityExperiment, "terms", *patch.Terms, domain.MaxBodyLength); err != nil {
			return Experiment{}, err
		}
		current.Terms = *patch.Terms
		tx.state.experimentTerms[current.ID] = append(tx.state.experimentTerms[current.ID], domain.ExperimentTermsHistoryItem{
			Base:         tx.newBase(),
			ExperimentID: current.ID,
			Terms:        *patch.Terms,
		})
	}
	if patch.EndDate != nil {
		current.EndDate = *patch.EndDate
		tx.state.experimentEndDates[current.ID] = append(tx.state.experimentEndDates[current.ID], domain.ExperimentEndDateHistoryItem{
			Base:         tx.newBase(),
			ExperimentID: current.ID,
			EndDate:      *patch.EndDate,
		})
	}
	if patch.IssueIDs != nil {
		if err := tx.requireIssueIDs(labID, *patch.IssueIDs); err != nil {
			return Experiment{}, err
		}
		current.IssueIDs = append([]int64(nil), *patch.IssueIDs...)
	}
	current.Modified = tx.now
	tx.state.experiments[current.ID] = cloneExperiment(current)
	tx.recordChange(Change{Entity: domain.EntityExperiment, Action: domain.ActionUpdate, Before: before, After: cloneExperiment(current)})
	return cloneExperiment(current), nil
}

// SoftDeleteExperiment marks a live experiment deleted.
func (tx *transaction) SoftDeleteExperiment(labID int64, number int) error {
	current, err := tx.requireExperiment(labID, number)
	if err != nil {
		return err
	}
	before := cloneExperiment(current)
	current.Deleted = true
	current.Modified = tx.now
	tx.state.experiments[current.ID] = cloneExperiment(current)
	tx.recordChange(Change{Entity: domain.EntityExperiment, Action: domain.ActionUpdate, Before: before, After: cloneExperiment(current)})
	return nil
}

// CheckIn -----------------------------------------------------------------

// CreateCheckIn stores a new check-in, assigning the next per-lab number
// and freezing the association to the lab's currently ACTIVE, non-deleted
// experiments. Later experiment changes never alter the association.
func (tx *transaction) CreateCheckIn(labID int64, draft domain.CheckInDraft) (CheckIn, error) {
	if _, err := tx.requireLab(labID); err != nil {
		return CheckIn{}, err
	}
	if err := checkLength(domain.EntityCheckIn, "retrospective", draft.Retrospective, domain.MaxBodyLength); err != nil {
		return CheckIn{}, err
	}
	var active []int64
	for _, e := range tx.state.experiments {
		if e.LabID == labID && !e.Deleted && e.State == domain.ExperimentActive {
			active = append(active, e.ID)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i] < active[j] })
	checkIn := CheckIn{
		Base:          tx.newBase(),
		LabID:         labID,
		Number:        tx.nextCheckInNumber(labID),
		Retrospective: draft.Retrospective,
		Complete:      draft.Complete,
		ExperimentIDs: active,
	}
	tx.state.checkIns[checkIn.ID] = cloneCheckIn(checkIn)
	tx.recordChange(Change{Entity: domain.EntityCheckIn, Action: domain.ActionCreate, After: cloneCheckIn(checkIn)})
	return cloneCheckIn(checkIn), nil
}

func (tx *transaction) requireCheckIn(labID int64, number int) (CheckIn, error) {
	c, ok := findCheckIn(tx.state, labID, number)
	if !ok {
		return CheckIn{}, domain.NotFoundError{Entity: domain.EntityCheckIn, Key: numberKey(labID, number)}
	}
	return c, nil
}

// UpdateCheckIn applies a patch to a live check-in. The experiment snapshot
// is immutable and cannot be patched.
func (tx *transaction) UpdateCheckIn(labID int64, number int, patch domain.CheckInPatch) (CheckIn, error) {
	current, err := tx.requireCheckIn(labID, number)
	if err != nil {
		return CheckIn{}, err
	}
	before := cloneCheckIn(current)
	if patch.Retrospective != nil {
		if err := checkLength(domain.EntityCheckIn, "retrospective", *patch.Retrospective, domain.MaxBodyLength); err != nil {
			return CheckIn{}, err
		}
		current.Retrospective = *patch.Retrospective
	}
	if patch.Complete != nil {
		current.Complete = *patch.Complete
	}
	current.Modified = tx.now
	tx.state.checkIns[current.ID] = cloneCheckIn(current)
	tx.recordChange(Change{Entity: domain.EntityCheckIn, Action: domain.ActionUpdate, Before: before, After: cloneCheckIn(current)})
	return cloneCheckIn(current), nil
}

// SoftDeleteCheckIn marks a live check-in deleted.
func (tx *transaction) SoftDeleteCheckIn(labID int64, number int) error {
	current, err := tx.requireCheckIn(labID, number)
	if err != nil {
		return err
	}
	before := cloneCheckIn(current)
	current.Deleted = true
	current.Modified = tx.now
	tx.state.checkIns[current.ID] = cloneCheckIn(current)
	tx.recordChange(Change{Entity: domain.EntityCheckIn, Action: domain.ActionUpdate, Before: before, After: cloneCheckIn(current)})
	return nil
}

// TodayCheckIn returns the lab's live check-in created on the transaction's
// UTC calendar date, preferring the earliest when several exist.
func (tx *transaction) TodayCheckIn(labID int64) (CheckIn, bool) {
	today := domain.DateOf(tx.now)
	var found CheckIn
	ok := false
	for _, c := range tx.state.checkIns {
		if c.LabID != labID || c.Deleted || !domain.DateOf(c.Created).Equal(today) {
			continue
		}
		if !ok || c.ID < found.ID {
			found = c
			ok = true
		}
	}
	if !ok {
		return CheckIn{}, false
	}
	return cloneCheckIn(found), true
}

// Queue -------------------------------------------------------------------

// ReconcileQueue repairs the lab's stored queue order against its open,
// non-deleted issues and persists the repaired order when it changed
// (read-triggered repair). A malformed stored order is treated as empty.
func (tx *transaction) ReconcileQueue(labID int64) ([]int64, error) {
	lab, err := tx.requireLab(labID)
	if err != nil {
		return nil, err
	}
	stored, err := domain.ParseQueueOrder(lab.QueueOrder)
	if err != nil {
		stored = nil
	}
	var open []int64
	for _, issue := range tx.state.issues {
		if issue.LabID == labID && !issue.Deleted && issue.State == domain.IssueOpen {
			open = append(open, issue.ID)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i] < open[j] })
	updated, changed := domain.ReconcileQueueOrder(stored, open)
	if changed {
		before := lab
		lab.QueueOrder = domain.FormatQueueOrder(updated)
		lab.Modified = tx.now
		tx.state.labs[labID] = lab
		tx.recordChange(Change{Entity: domain.EntityLab, Action: domain.ActionUpdate, Before: before, After: lab})
	}
	return updated, nil
}

// SetQueueOrder stores the normalized order verbatim; reconciliation against
// the live open-issue set happens on the next read.
func (tx *transaction) SetQueueOrder(labID int64, ids []int64) (Lab, error) {
	lab, err := tx.requireLab(labID)
	if err != nil {
		return Lab{}, err
	}
	before := lab
	lab.QueueOrder = domain.FormatQueueOrder(ids)
	lab.Modified = tx.now
	tx.state.labs[labID] = lab
	tx.recordChange(Change{Entity: domain.EntityLab, Action: domain.ActionUpdate, Before: before, After: lab})
	return lab, nil
}
