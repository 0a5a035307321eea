package metadata

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// birthTime returns the file's creation time via statx, or its mod time
// when the filesystem does not record one.
func birthTime(path string, info os.FileInfo) time.Time {
	var stx unix.Statx_t
	if err := unix.Statx(unix.AT_FDCWD, path, 0, unix.STATX_BTIME, &stx); err != nil {
		return modTimeFallback(info)
	}
	if stx.Mask&unix.STATX_BTIME == 0 || stx.Btime.Sec == 0 {
		return modTimeFallback(info)
	}
	return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec))
}
