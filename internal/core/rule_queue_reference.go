package core

import (
	"context"
	"fmt"

	"lifelab/pkg/domain"
)

// QueueReferenceRule warns when a lab's stored queue order references issues
// that are not live open issues of that lab. Stale references are legal and
// repaired on the next queue read, so this never blocks.
func QueueReferenceRule() Rule {
	return queueReferenceRule{}
}

type queueReferenceRule struct{}

func (queueReferenceRule) Name() string { return "queue_reference" }

func (queueReferenceRule) Evaluate(_ context.Context, view TransactionView, changes []Change) (Result, error) {
	touchesQueue := false
	for _, change := range changes {
		if change.Entity == EntityLab || change.Entity == EntityIssue {
			touchesQueue = true
			break
		}
	}
	res := Result{}
	if !touchesQueue {
		return res, nil
	}
	for _, lab := range view.ListLabs() {
		ids, err := domain.ParseQueueOrder(lab.QueueOrder)
		if err != nil {
			res.Violations = append(res.Violations, Violation{
				Rule:     "queue_reference",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("lab %d has malformed queue order %q", lab.ID, lab.QueueOrder),
				Entity:   EntityLab,
				EntityID: lab.ID,
			})
			continue
		}
		open := map[int64]bool{}
		for _, issue := range view.ListIssues(lab.ID) {
			if issue.State == IssueOpen {
				open[issue.ID] = true
			}
		}
		for _, id := range ids {
			if !open[id] {
				res.Violations = append(res.Violations, Violation{
					Rule:     "queue_reference",
					Severity: domain.SeverityWarn,
					Message:  fmt.Sprintf("lab %d queue references issue %d which is not open", lab.ID, id),
					Entity:   EntityLab,
					EntityID: lab.ID,
				})
			}
		}
	}
	return res, nil
}
