package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDateJSONRoundTrip(t *testing.T) {
	d := NewDate(2020, time.June, 30)
	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"2020-06-30"` {
		t.Fatalf("unexpected encoding %s", data)
	}
	var decoded Date
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Equal(d) {
		t.Fatalf("round trip mismatch: %v", decoded)
	}
}

func TestDateZeroValue(t *testing.T) {
	var d Date
	if !d.IsZero() {
		t.Fatalf("zero value must report IsZero")
	}
	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `""` {
		t.Fatalf("zero date must encode as empty string, got %s", data)
	}
	var decoded Date
	if err := json.Unmarshal([]byte(`""`), &decoded); err != nil {
		t.Fatalf("unmarshal empty: %v", err)
	}
	if !decoded.IsZero() {
		t.Fatalf("empty string must decode to zero date")
	}
	if err := json.Unmarshal([]byte(`null`), &decoded); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
}

func TestDateOfTruncatesToUTCDate(t *testing.T) {
	loc := time.FixedZone("plus5", 5*3600)
	instant := time.Date(2020, time.July, 1, 2, 30, 0, 0, loc) // 2020-06-30 21:30 UTC
	if got := DateOf(instant); got.String() != "2020-06-30" {
		t.Fatalf("expected UTC date 2020-06-30, got %s", got)
	}
}

func TestParseDateRejectsGarbage(t *testing.T) {
	if _, err := ParseDate("30/06/2020"); err == nil {
		t.Fatalf("expected parse error")
	}
}
