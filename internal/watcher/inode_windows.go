//go:build windows

package watcher

// getInode always returns 0 on Windows; rescans fall back to path
// matching there.
func getInode(_ interface{}) uint64 {
	return 0
}
