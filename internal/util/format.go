package util

import (
	"time"

	"github.com/dustin/go-humanize"
)

// FormatBytes renders a byte count the way operators expect to read it in
// logs and terminal output, e.g. "1.2 MB".
func FormatBytes(bytes uint64) string {
	return humanize.Bytes(bytes)
}

// FormatDuration renders a duration in approximate human terms, e.g. "3 minutes".
func FormatDuration(d time.Duration) string {
	return humanize.RelTime(time.Now(), time.Now().Add(d), "", "")
}

// FormatTimestamp renders a time as a relative "2 hours ago" style string,
// used for cache-entry age and history log display.
func FormatTimestamp(t time.Time) string {
	return humanize.Time(t)
}
