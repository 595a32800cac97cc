package memory

import "lifelab/pkg/domain"

type memoryState struct {
	seq                int64
	labs               map[int64]Lab
	issues             map[int64]Issue
	comments           map[int64]IssueComment
	experiments        map[int64]Experiment
	checkIns           map[int64]CheckIn
	issueDescriptions  map[int64][]domain.IssueDescriptionHistoryItem
	issueStates        map[int64][]domain.IssueStateHistoryItem
	commentBodies      map[int64][]domain.IssueCommentHistoryItem
	experimentTerms    map[int64][]domain.ExperimentTermsHistoryItem
	experimentEndDates map[int64][]domain.ExperimentEndDateHistoryItem
}

// Snapshot captures a point-in-time clone of the store state, including the
// identifier sequence so imported state keeps allocating unique IDs.
type Snapshot struct {
	Seq                      int64                                          `json:"seq"`
	Labs                     map[int64]Lab                                  `json:"labs"`
	Issues                   map[int64]Issue                                `json:"issues"`
	Comments                 map[int64]IssueComment                         `json:"comments"`
	Experiments              map[int64]Experiment                           `json:"experiments"`
	CheckIns                 map[int64]CheckIn                              `json:"check_ins"`
	IssueDescriptionHistory  map[int64][]domain.IssueDescriptionHistoryItem `json:"issue_description_history"`
	IssueStateHistory        map[int64][]domain.IssueStateHistoryItem       `json:"issue_state_history"`
	CommentHistory           map[int64][]domain.IssueCommentHistoryItem     `json:"comment_history"`
	ExperimentTermsHistory   map[int64][]domain.ExperimentTermsHistoryItem  `json:"experiment_terms_history"`
	ExperimentEndDateHistory map[int64][]domain.ExperimentEndDateHistoryItem `json:"experiment_end_date_history"`
}

func newMemoryState() memoryState {
	return memoryState{
		labs:               make(map[int64]Lab),
		issues:             make(map[int64]Issue),
		comments:           make(map[int64]IssueComment),
		experiments:        make(map[int64]Experiment),
		checkIns:           make(map[int64]CheckIn),
		issueDescriptions:  make(map[int64][]domain.IssueDescriptionHistoryItem),
		issueStates:        make(map[int64][]domain.IssueStateHistoryItem),
		commentBodies:      make(map[int64][]domain.IssueCommentHistoryItem),
		experimentTerms:    make(map[int64][]domain.ExperimentTermsHistoryItem),
		experimentEndDates: make(map[int64][]domain.ExperimentEndDateHistoryItem),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	cloned.seq = s.seq
	for k, v := range s.labs {
		cloned.labs[k] = v
	}
	for k, v := range s.issues {
		cloned.issues[k] = cloneIssue(v)
	}
	for k, v := range s.comments {
		cloned.comments[k] = v
	}
	for k, v := range s.experiments {
		cloned.experiments[k] = cloneExperiment(v)
	}
	for k, v := range s.checkIns {
		cloned.checkIns[k] = cloneCheckIn(v)
	}
	for k, v := range s.issueDescriptions {
		cloned.issueDescriptions[k] = append([]domain.IssueDescriptionHistoryItem(nil), v...)
	}
	for k, v := range s.issueStates {
		cloned.issueStates[k] = append([]domain.IssueStateHistoryItem(nil), v...)
	}
	for k, v := range s.commentBodies {
		cloned.commentBodies[k] = append([]domain.IssueCommentHistoryItem(nil), v...)
	}
	for k, v := range s.experimentTerms {
		cloned.experimentTerms[k] = append([]domain.ExperimentTermsHistoryItem(nil), v...)
	}
	for k, v := range s.experimentEndDates {
		cloned.experimentEndDates[k] = append([]domain.ExperimentEndDateHistoryItem(nil), v...)
	}
	return cloned
}

func cloneIssue(i Issue) Issue {
	cp := i
	cp.ExperimentIDs = append([]int64(nil), i.ExperimentIDs...)
	return cp
}

func cloneExperiment(e Experiment) Experiment {
	cp := e
	cp.IssueIDs = append([]int64(nil), e.IssueIDs...)
	return cp
}

func cloneCheckIn(c CheckIn) CheckIn {
	cp := c
	cp.ExperimentIDs = append([]int64(nil), c.ExperimentIDs...)
	return cp
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	cloned := state.clone()
	return Snapshot{
		Seq:                      cloned.seq,
		Labs:                     cloned.labs,
		Issues:                   cloned.issues,
		Comments:                 cloned.comments,
		Experiments:              cloned.experiments,
		CheckIns:                 cloned.checkIns,
		IssueDescriptionHistory:  cloned.issueDescriptions,
		IssueStateHistory:        cloned.issueStates,
		CommentHistory:           cloned.commentBodies,
		ExperimentTermsHistory:   cloned.experimentTerms,
		ExperimentEndDateHistory: cloned.experimentEndDates,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	state.seq = s.Seq
	for k, v := range s.Labs {
		state.labs[k] = v
	}
	for k, v := range s.Issues {
		state.issues[k] = cloneIssue(v)
	}
	for k, v := range s.Comments {
		state.comments[k] = v
	}
	for k, v := range s.Experiments {
		state.experiments[k] = cloneExperiment(v)
	}
	for k, v := range s.CheckIns {
		state.checkIns[k] = cloneCheckIn(v)
	}
	for k, v := range s.IssueDescriptionHistory {
		state.issueDescriptions[k] = append([]domain.IssueDescriptionHistoryItem(nil), v...)
	}
	for k, v := range s.IssueStateHistory {
		state.issueStates[k] = append([]domain.IssueStateHistoryItem(nil), v...)
	}
	for k, v := range s.CommentHistory {
		state.commentBodies[k] = append([]domain.IssueCommentHistoryItem(nil), v...)
	}
	for k, v := range s.ExperimentTermsHistory {
		state.experimentTerms[k] = append([]domain.ExperimentTermsHistoryItem(nil), v...)
	}
	for k, v := range s.ExperimentEndDateHistory {
		state.experimentEndDates[k] = append([]domain.ExperimentEndDateHistoryItem(nil), v...)
	}
	// Imported snapshots may predate the stored sequence; never allocate an
	// ID that is already taken.
	state.seq = maxSeq(state)
	if state.seq < s.Seq {
		state.seq = s.Seq
	}
	return state
}

func maxSeq(state memoryState) int64 {
	var maxID int64
	bump := func(id int64) {
		if id > maxID {
			maxID = id
		}
	}
	for id := range state.labs {
		bump(id)
	}
	for id := range state.issues {
		bump(id)
	}
	for id := range state.comments {
		bump(id)
	}
	for id := range state.experiments {
		bump(id)
	}
	for id := range state.checkIns {
		bump(id)
	}
	for _, items := range state.issueDescriptions {
		for _, item := range items {
			bump(item.ID)
		}
	}
	for _, items := range state.issueStates {
		for _, item := range items {
			bump(item.ID)
		}
	}
	for _, items := range state.commentBodies {
		for _, item := range items {
			bump(item.ID)
		}
	}
	for _, items := range state.experimentTerms {
		for _, item := range items {
			bump(item.ID)
		}
	}
	for _, items := range state.experimentEndDates {
		for _, item := range items {
			bump(item.ID)
		}
	}
	return maxID
}
