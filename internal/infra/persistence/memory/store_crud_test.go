package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"lifelab/pkg/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore(nil)
	base := time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)
	tick := 0
	store.SetNowFunc(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})
	return store
}

func mustLab(t *testing.T, store *Store, name string) Lab {
	t.Helper()
	var lab Lab
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		created, err := tx.CreateLab(Lab{Name: name})
		lab = created
		return err
	})
	if err != nil {
		t.Fatalf("create lab %q: %v", name, err)
	}
	return lab
}

func mustIssue(t *testing.T, store *Store, labID int64, draft domain.IssueDraft) Issue {
	t.Helper()
	var issue Issue
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		created, err := tx.CreateIssue(labID, draft)
		issue = created
		return err
	})
	if err != nil {
		t.Fatalf("create issue %q: %v", draft.Title, err)
	}
	return issue
}

func mustExperiment(t *testing.T, store *Store, labID int64, draft domain.ExperimentDraft) Experiment {
	t.Helper()
	var experiment Experiment
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		created, err := tx.CreateExperiment(labID, draft)
		experiment = created
		return err
	})
	if err != nil {
		t.Fatalf("create experiment %q: %v", draft.Title, err)
	}
	return experiment
}

func strPtr(s string) *string { return &s }

func TestCreateLabAssignsIdentity(t *testing.T) {
	store := newTestStore(t)

	first := mustLab(t, store, "chemistry")
	second := mustLab(t, store, "biology")

	if first.ID == 0 || second.ID == 0 {
		t.Fatalf("expected non-zero lab IDs, got %d and %d", first.ID, second.ID)
	}
	if second.ID <= first.ID {
		t.Fatalf("expected increasing IDs, got %d then %d", first.ID, second.ID)
	}
	if first.Created.IsZero() || first.Modified.IsZero() {
		t.Fatal("expected created and modified timestamps to be set")
	}
	labs := store.ListLabs()
	if len(labs) != 2 {
		t.Fatalf("expected 2 labs, got %d", len(labs))
	}
}

func TestCreateIssueRequiresLab(t *testing.T) {
	store := newTestStore(t)

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateIssue(42, domain.IssueDraft{Title: "orphan"})
		return err
	})
	var notFound domain.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if notFound.Entity != domain.EntityLab {
		t.Fatalf("expected lab not found, got %q", notFound.Entity)
	}
}

func TestCreateIssueDefaultsToOpen(t *testing.T) {
	store := newTestStore(t)
	lab := mustLab(t, store, "chemistry")

	issue := mustIssue(t, store, lab.ID, domain.IssueDraft{Title: "leaky valve"})
	if issue.State != domain.IssueOpen {
		t.Fatalf("expected OPEN, got %q", issue.State)
	}
	if issue.Number != 1 {
		t.Fatalf("expected number 1, got %d", issue.Number)
	}
}

func TestCreateIssueRejectsUnknownState(t *testing.T) {
	store := newTestStore(t)
	lab := mustLab(t, store, "chemistry")

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateIssue(lab.ID, domain.IssueDraft{Title: "bad", State: "PENDING"})
		return err
	})
	var validation domain.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestCreateIssueEnforcesLengthCeilings(t *testing.T) {
	store := newTestStore(t)
	lab := mustLab(t, store, "chemistry")

	longTitle := strings.Repeat("x", domain.MaxTitleLength+1)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateIssue(lab.ID, domain.IssueDraft{Title: longTitle})
		return err
	})
	var constraint domain.ConstraintError
	if !errors.As(err, &constraint) {
		t.Fatalf("expected ConstraintError for title, got %v", err)
	}
	if constraint.Field != "title" {
		t.Fatalf("expected title constraint, got %q", constraint.Field)
	}

	longBody := strings.Repeat("y", domain.MaxBodyLength+1)
	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateIssue(lab.ID, domain.IssueDraft{Title: "ok", Description: longBody})
		return err
	})
	if !errors.As(err, &constraint) {
		t.Fatalf("expected ConstraintError for description, got %v", err)
	}

	boundary := strings.Repeat("z", domain.MaxTitleLength)
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateIssue(lab.ID, domain.IssueDraft{Title: boundary})
		return err
	}); err != nil {
		t.Fatalf("title at the ceiling should pass: %v", err)
	}
}

func TestUpdateIssuePatchesFields(t *testing.T) {
	store := newTestStore(t)
	lab := mustLab(t, store, "chemistry")
	issue := mustIssue(t, store, lab.ID, domain.IssueDraft{Title: "before", Description: "first"})

	closed := domain.IssueClosed
	var updated Issue
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		got, err := tx.UpdateIssue(lab.ID, issue.Number, domain.IssuePatch{
			Title: strPtr("after"),
			State: &closed,
		})
		updated = got
		return err
	})
	if err != nil {
		t.Fatalf("update issue: %v", err)
	}
	if updated.Title != "after" || updated.State != domain.IssueClosed {
		t.Fatalf("patch not applied: %+v", updated)
	}
	if updated.Description != "first" {
		t.Fatalf("unpatched field changed: %q", updated.Description)
	}
	if !updated.Modified.After(issue.Modified) {
		t.Fatal("expected modified timestamp to advance")
	}
}

func TestSoftDeletedIssueLeavesListings(t *testing.T) {
	store := newTestStore(t)
	lab := mustLab(t, store, "chemistry")
	keep := mustIssue(t, store, lab.ID, domain.IssueDraft{Title: "keep"})
	drop := mustIssue(t, store, lab.ID, domain.IssueDraft{Title: "drop"})

	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.SoftDeleteIssue(lab.ID, drop.Number)
	}); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	issues := store.ListIssues(lab.ID)
	if len(issues) != 1 || issues[0].ID != keep.ID {
		t.Fatalf("expected only the live issue, got %+v", issues)
	}
	if _, ok := store.GetIssue(lab.ID, drop.Number); ok {
		t.Fatal("numbered lookup should skip soft-deleted issues")
	}

	// The record itself survives, reachable by global ID.
	err := store.View(context.Background(), func(view TransactionView) error {
		got, ok := view.FindIssueByID(drop.ID)
		if !ok {
			t.Fatal("soft-deleted issue should stay reachable by ID")
		}
		if !got.Deleted {
			t.Fatal("expected deleted flag")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestSoftDeleteTargetsLiveRecordsOnly(t *testing.T) {
	store := newTestStore(t)
	lab := mustLab(t, store, "chemistry")
	issue := mustIssue(t, store, lab.ID, domain.IssueDraft{Title: "once"})

	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.SoftDeleteIssue(lab.ID, issue.Number)
	}); err != nil {
		t.Fatalf("first delete: %v", err)
	}

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.SoftDeleteIssue(lab.ID, issue.Number)
	})
	var notFound domain.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("second delete should be NotFound, got %v", err)
	}
}

func TestCommentLifecycle(t *testing.T) {
	store := newTestStore(t)
	lab := mustLab(t, store, "chemistry")
	issue := mustIssue(t, store, lab.ID, domain.IssueDraft{Title: "discuss"})

	var comment IssueComment
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		created, err := tx.CreateComment(lab.ID, issue.Number, "looks wrong")
		comment = created
		return err
	}); err != nil {
		t.Fatalf("create comment: %v", err)
	}
	if comment.IssueID != issue.ID {
		t.Fatalf("comment bound to issue %d, want %d", comment.IssueID, issue.ID)
	}

	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateComment(lab.ID, issue.Number, comment.ID, domain.CommentPatch{Body: strPtr("actually fine")})
		return err
	}); err != nil {
		t.Fatalf("update comment: %v", err)
	}

	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.SoftDeleteComment(lab.ID, issue.Number, comment.ID)
	}); err != nil {
		t.Fatalf("delete comment: %v", err)
	}

	err := store.View(context.Background(), func(view TransactionView) error {
		if comments := view.ListComments(lab.ID, issue.Number); len(comments) != 0 {
			t.Fatalf("deleted comment still listed: %+v", comments)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestCommentRequiresLiveIssue(t *testing.T) {
	store := newTestStore(t)
	lab := mustLab(t, store, "chemistry")
	issue := mustIssue(t, store, lab.ID, domain.IssueDraft{Title: "going away"})

	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.SoftDeleteIssue(lab.ID, issue.Number)
	}); err != nil {
		t.Fatalf("delete issue: %v", err)
	}

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateComment(lab.ID, issue.Number, "too late")
		return err
	})
	var notFound domain.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestExperimentLifecycle(t *testing.T) {
	store := newTestStore(t)
	lab := mustLab(t, store, "chemistry")

	experiment := mustExperiment(t, store, lab.ID, domain.ExperimentDraft{Title: "catalyst swap"})
	if experiment.State != domain.ExperimentInactive {
		t.Fatalf("expected INACTIVE default, got %q", experiment.State)
	}
	if experiment.Number != 1 {
		t.Fatalf("expected number 1, got %d", experiment.Number)
	}

	active := domain.ExperimentActive
	end := domain.NewDate(2026, time.April, 1)
	var updated Experiment
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		got, err := tx.UpdateExperiment(lab.ID, experiment.Number, domain.ExperimentPatch{
			State:   &active,
			EndDate: &end,
		})
		updated = got
		return err
	}); err != nil {
		t.Fatalf("update experiment: %v", err)
	}
	if updated.State != domain.ExperimentActive || !updated.EndDate.Equal(end) {
		t.Fatalf("patch not applied: %+v", updated)
	}

	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.SoftDeleteExperiment(lab.ID, experiment.Number)
	}); err != nil {
		t.Fatalf("delete experiment: %v", err)
	}
	if got := store.ListExperiments(lab.ID); len(got) != 0 {
		t.Fatalf("deleted experiment still listed: %+v", got)
	}
}

func TestExperimentIssueLinksValidated(t *testing.T) {
	store := newTestStore(t)
	lab := mustLab(t, store, "chemistry")
	other := mustLab(t, store, "biology")
	foreign := mustIssue(t, store, other.ID, domain.IssueDraft{Title: "elsewhere"})

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateExperiment(lab.ID, domain.ExperimentDraft{
			Title:    "cross lab",
			IssueIDs: []int64{foreign.ID},
		})
		return err
	})
	var notFound domain.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError for cross-lab link, got %v", err)
	}
}

func TestDeleteLabCascades(t *testing.T) {
	store := newTestStore(t)
	lab := mustLab(t, store, "chemistry")
	other := mustLab(t, store, "biology")
	issue := mustIssue(t, store, lab.ID, domain.IssueDraft{Title: "doomed"})
	mustExperiment(t, store, lab.ID, domain.ExperimentDraft{Title: "doomed too"})
	survivor := mustIssue(t, store, other.ID, domain.IssueDraft{Title: "survivor"})

	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateComment(lab.ID, issue.Number, "gone with the lab"); err != nil {
			return err
		}
		_, err := tx.CreateCheckIn(lab.ID, domain.CheckInDraft{Retrospective: "last one"})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.DeleteLab(lab.ID)
	}); err != nil {
		t.Fatalf("delete lab: %v", err)
	}

	if _, ok := store.GetLab(lab.ID); ok {
		t.Fatal("lab should be gone")
	}
	err := store.View(context.Background(), func(view TransactionView) error {
		for _, got := range view.AllIssues() {
			if got.LabID == lab.ID {
				t.Fatalf("issue %d survived lab deletion", got.ID)
			}
		}
		for _, got := range view.AllExperiments() {
			if got.LabID == lab.ID {
				t.Fatalf("experiment %d survived lab deletion", got.ID)
			}
		}
		for _, got := range view.AllCheckIns() {
			if got.LabID == lab.ID {
				t.Fatalf("check-in %d survived lab deletion", got.ID)
			}
		}
		if _, ok := view.FindIssueByID(survivor.ID); !ok {
			t.Fatal("other lab's issue should survive")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestTransactionErrorDiscardsChanges(t *testing.T) {
	store := newTestStore(t)
	lab := mustLab(t, store, "chemistry")

	sentinel := errors.New("abort")
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateIssue(lab.ID, domain.IssueDraft{Title: "phantom"}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if issues := store.ListIssues(lab.ID); len(issues) != 0 {
		t.Fatalf("aborted transaction leaked state: %+v", issues)
	}
}
