package core

import (
	"context"
	"fmt"

	"lifelab/pkg/domain"
)

// NumberingIntegrityRule blocks commits that would leave duplicate or
// non-positive per-lab numbers on any numbered record set.
func NumberingIntegrityRule() Rule {
	return numberingIntegrityRule{}
}

type numberingIntegrityRule struct{}

func (numberingIntegrityRule) Name() string { return "numbering_integrity" }

func (numberingIntegrityRule) Evaluate(_ context.Context, view TransactionView, changes []Change) (Result, error) {
	touched := map[EntityType]bool{}
	for _, change := range changes {
		touched[change.Entity] = true
	}
	res := Result{}
	if touched[EntityIssue] || touched[EntityLab] {
		seen := map[string]bool{}
		for _, issue := range view.AllIssues() {
			checkNumber(&res, EntityIssue, issue.ID, issue.LabID, issue.Number, seen)
		}
	}
	if touched[EntityExperiment] || touched[EntityLab] {
		seen := map[string]bool{}
		for _, experiment := range view.AllExperiments() {
			checkNumber(&res, EntityExperiment, experiment.ID, experiment.LabID, experiment.Number, seen)
		}
	}
	if touched[EntityCheckIn] || touched[EntityLab] {
		seen := map[string]bool{}
		for _, checkIn := range view.AllCheckIns() {
			checkNumber(&res, EntityCheckIn, checkIn.ID, checkIn.LabID, checkIn.Number, seen)
		}
	}
	return res, nil
}

// checkNumber records a blocking violation for a non-positive number or a
// duplicate within the same lab. Soft-deleted records participate: their
// numbers stay reserved forever.
func checkNumber(res *Result, entity EntityType, id, labID int64, number int, seen map[string]bool) {
	if number < 1 {
		res.Violations = append(res.Violations, Violation{
			Rule:     "numbering_integrity",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("%s %d in lab %d has non-positive number %d", entity, id, labID, number),
			Entity:   entity,
			EntityID: id,
		})
		return
	}
	key := fmt.Sprintf("%d/%d", labID, number)
	if seen[key] {
		res.Violations = append(res.Violations, Violation{
			Rule:     "numbering_integrity",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("%s number %d duplicated in lab %d", entity, number, labID),
			Entity:   entity,
			EntityID: id,
		})
		return
	}
	seen[key] = true
}
