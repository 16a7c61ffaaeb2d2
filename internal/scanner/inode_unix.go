//go:build unix

package scanner

import "golang.org/x/sys/unix"

// inodeOf returns the inode number of the file at path, or 0 when the
// stat fails. Inodes let the differ recognize books that were renamed
// or moved between scans.
func inodeOf(path string) uint64 {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0
	}
	return st.Ino
}
