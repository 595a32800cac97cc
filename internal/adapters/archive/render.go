package archive

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"lifelab/pkg/domain"
)

// labArchive is the complete renderable snapshot of one lab.
type labArchive struct {
	Lab         domain.Lab          `json:"lab"`
	Issues      []issueArchive      `json:"issues"`
	Experiments []experimentArchive `json:"experiments"`
	CheckIns    []domain.CheckIn    `json:"check_ins"`
	GeneratedAt time.Time           `json:"generated_at"`
}

type issueArchive struct {
	domain.Issue
	Comments           []domain.IssueComment                `json:"comments,omitempty"`
	DescriptionHistory []domain.IssueDescriptionHistoryItem `json:"description_history,omitempty"`
	StateHistory       []domain.IssueStateHistoryItem       `json:"state_history,omitempty"`
}

type experimentArchive struct {
	domain.Experiment
	TermsHistory   []domain.ExperimentTermsHistoryItem   `json:"terms_history,omitempty"`
	EndDateHistory []domain.ExperimentEndDateHistoryItem `json:"end_date_history,omitempty"`
}

// collect gathers every live record of the lab along with its histories.
func (w *Worker) collect(ctx context.Context, labID int64) (labArchive, error) {
	lab, ok := w.source.GetLab(ctx, labID)
	if !ok {
		return labArchive{}, fmt.Errorf("lab %d not found", labID)
	}
	out := labArchive{Lab: lab, GeneratedAt: time.Now().UTC()}

	for _, issue := range w.source.ListIssues(ctx, labID) {
		entry := issueArchive{Issue: issue}
		comments, err := w.source.ListComments(ctx, labID, issue.Number)
		if err != nil {
			return labArchive{}, fmt.Errorf("issue %d comments: %w", issue.Number, err)
		}
		entry.Comments = comments
		if entry.DescriptionHistory, err = w.source.IssueDescriptionHistory(ctx, labID, issue.Number); err != nil {
			return labArchive{}, fmt.Errorf("issue %d description history: %w", issue.Number, err)
		}
		if entry.StateHistory, err = w.source.IssueStateHistory(ctx, labID, issue.Number); err != nil {
			return labArchive{}, fmt.Errorf("issue %d state history: %w", issue.Number, err)
		}
		out.Issues = append(out.Issues, entry)
	}

	for _, experiment := range w.source.ListExperiments(ctx, labID) {
		entry := experimentArchive{Experiment: experiment}
		var err error
		if entry.TermsHistory, err = w.source.ExperimentTermsHistory(ctx, labID, experiment.Number); err != nil {
			return labArchive{}, fmt.Errorf("experiment %d terms history: %w", experiment.Number, err)
		}
		if entry.EndDateHistory, err = w.source.ExperimentEndDateHistory(ctx, labID, experiment.Number); err != nil {
			return labArchive{}, fmt.Errorf("experiment %d end date history: %w", experiment.Number, err)
		}
		out.Experiments = append(out.Experiments, entry)
	}

	out.CheckIns = w.source.ListCheckIns(ctx, labID)
	return out, nil
}

// render produces the artifact payload for the requested format.
func render(format Format, snapshot labArchive) ([]byte, string, error) {
	switch format {
	case FormatJSON:
		payload, err := json.MarshalIndent(snapshot, "", "  ")
		if err != nil {
			return nil, "", fmt.Errorf("marshal archive: %w", err)
		}
		return payload, "application/json", nil
	case FormatCSV:
		payload, err := renderCSV(snapshot)
		if err != nil {
			return nil, "", err
		}
		return payload, "text/csv", nil
	default:
		return nil, "", fmt.Errorf("unsupported archive format %s", format)
	}
}

// renderCSV flattens the issue table; histories and comments stay JSON-only.
func renderCSV(snapshot labArchive) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write([]string{"number", "state", "title", "description", "experiment_ids", "comments", "created", "modified"}); err != nil {
		return nil, err
	}
	for _, issue := range snapshot.Issues {
		row := []string{
			strconv.Itoa(issue.Number),
			string(issue.State),
			issue.Title,
			issue.Description,
			joinIDs(issue.ExperimentIDs),
			strconv.Itoa(len(issue.Comments)),
			issue.Created.UTC().Format(time.RFC3339),
			issue.Modified.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, " ")
}
