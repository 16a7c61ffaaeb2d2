//go:build unix

package watcher

import "syscall"

// getInode extracts the inode number from os.FileInfo.Sys().
// Inodes let rescans recognize files after renames.
func getInode(sys interface{}) uint64 {
	if stat, ok := sys.(*syscall.Stat_t); ok {
		return stat.Ino
	}
	return 0
}
