//go:build linux

package storage

import (
	"os"
	"syscall"
	"time"
)

// createdAt extracts the inode change time, the closest thing Linux
// exposes to a creation timestamp.
func createdAt(info os.FileInfo) time.Time {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Ctim.Sec, st.Ctim.Nsec)
	}
	return info.ModTime()
}
