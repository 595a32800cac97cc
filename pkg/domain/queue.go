package domain

import (
	"strconv"
	"strings"
)

// ParseQueueOrder decodes a stored or caller-supplied queue-order string
// into issue IDs. Accepted forms are the normalized comma-joined digit
// string ("3,1,2"), the bracket-delimited variant ("[3, 1, 2]"), and the
// empty string (empty queue). Anything else is a ValidationError.
func ParseQueueOrder(s string) ([]int64, error) {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
		trimmed = trimmed[1 : len(trimmed)-1]
	}
	trimmed = strings.TrimSpace(trimmed)
	if trimmed == "" {
		return nil, nil
	}
	parts := strings.Split(trimmed, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, ValidationError{Field: "queue_order", Message: "not an issue id list: " + s}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// FormatQueueOrder normalizes issue IDs to the comma-joined digit string
// stored on the lab.
func FormatQueueOrder(ids []int64) string {
	if len(ids) == 0 {
		return ""
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// ReconcileQueueOrder repairs a stored queue against the lab's current open
// issue IDs (supplied in ascending order). Stored entries that are no longer
// open are dropped, duplicates collapse to their first occurrence, and open
// issues missing from the stored order are appended in ascending ID order.
// The second return reports whether the result differs from stored.
func ReconcileQueueOrder(stored, open []int64) ([]int64, bool) {
	openSet := make(map[int64]struct{}, len(open))
	for _, id := range open {
		openSet[id] = struct{}{}
	}
	placed := make(map[int64]struct{}, len(open))
	updated := make([]int64, 0, len(open))
	for _, id := range stored {
		if _, ok := openSet[id]; !ok {
			continue
		}
		if _, ok := placed[id]; ok {
			continue
		}
		placed[id] = struct{}{}
		updated = append(updated, id)
	}
	for _, id := range open {
		if _, ok := placed[id]; ok {
			continue
		}
		placed[id] = struct{}{}
		updated = append(updated, id)
	}
	if len(updated) != len(stored) {
		return updated, true
	}
	for i := range updated {
		if updated[i] != stored[i] {
			return updated, true
		}
	}
	return updated, false
}
