package common

import "time"

// NowEpochMs returns the current wall clock as epoch milliseconds, the
// timestamp representation used throughout the store.
func NowEpochMs() int64 {
	return time.Now().UnixMilli()
}
