package analytics

import (
	"testing"
	"time"

	"chirp/internal/store/actionlog"
)

func at(hour, min int) time.Time {
	return time.Date(2026, 8, 1, hour, min, 0, 0, time.UTC)
}

func TestHourlyActionsBucketsByHourAndType(t *testing.T) {
	actions := []actionlog.Action{
		{TS: at(9, 5), Type: "like", Outcome: actionlog.OutcomeCommitted},
		{TS: at(9, 40), Type: "like", Outcome: actionlog.OutcomeRolledBack},
		{TS: at(9, 55), Type: "retweet", Outcome: actionlog.OutcomeCommitted},
		{TS: at(11, 0), Type: "like", Outcome: actionlog.OutcomeCommitted},
	}
	buckets := HourlyActions(actions)
	if len(buckets) != 2 {
		t.Fatalf("buckets: %d", len(buckets))
	}
	nine := buckets[at(9, 0)]
	if nine["like"] != 2 || nine["retweet"] != 1 {
		t.Fatalf("09:00 bucket: %v", nine)
	}
	if buckets[at(11, 0)]["like"] != 1 {
		t.Fatalf("11:00 bucket: %v", buckets[at(11, 0)])
	}

	keys := SortedBucketKeys(buckets)
	if len(keys) != 2 || !keys[0].Equal(at(9, 0)) || !keys[1].Equal(at(11, 0)) {
		t.Fatalf("sorted keys: %v", keys)
	}
}

func TestOutcomeTotals(t *testing.T) {
	actions := []actionlog.Action{
		{Outcome: actionlog.OutcomeCommitted},
		{Outcome: actionlog.OutcomeCommitted},
		{Outcome: actionlog.OutcomeFailed},
	}
	totals := OutcomeTotals(actions)
	if totals[actionlog.OutcomeCommitted] != 2 || totals[actionlog.OutcomeFailed] != 1 {
		t.Fatalf("totals: %v", totals)
	}
}

func TestEmptyInput(t *testing.T) {
	if got := HourlyActions(nil); len(got) != 0 {
		t.Fatalf("expected empty buckets, got %v", got)
	}
	if got := SortedBucketKeys(nil); len(got) != 0 {
		t.Fatalf("expected no keys, got %v", got)
	}
}
