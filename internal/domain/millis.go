package domain

import "time"

// Sync timestamps travel as milliseconds-since-epoch doubles so that
// positions compare exactly across devices regardless of platform
// clock types.

// NowMillis returns the current wall clock as epoch milliseconds.
func NowMillis() float64 {
	return float64(time.Now().UnixMilli())
}

// TimeFromMillis converts epoch milliseconds to a time.Time.
func TimeFromMillis(ms float64) time.Time {
	return time.UnixMilli(int64(ms))
}

// MillisFromTime converts a time.Time to epoch milliseconds.
func MillisFromTime(t time.Time) float64 {
	return float64(t.UnixMilli())
}
