//go:build linux

package library

import (
	"os"
	"syscall"
	"time"
)

// creationTime approximates file creation with the inode change time.
func creationTime(fi os.FileInfo) time.Time {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return time.Unix(int64(st.Ctim.Sec), int64(st.Ctim.Nsec))
	}
	return fi.ModTime()
}
