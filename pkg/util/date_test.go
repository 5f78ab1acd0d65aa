package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestFormatTimestampMillis(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 5, 123456789, time.FixedZone("BRT", -3*3600))
	if got := FormatTimestamp(ts); got != "2025-03-01T15:00:05.123Z" {
		t.Fatalf("unexpected %s", got)
	}
	if got := FormatTimestamp(time.Unix(0, 0)); got != "1970-01-01T00:00:00.000Z" {
		t.Fatalf("unexpected epoch %s", got)
	}
}
