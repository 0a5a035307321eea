//go:build !linux

package metadata

import (
	"os"
	"time"
)

func birthTime(_ string, info os.FileInfo) time.Time {
	return modTimeFallback(info)
}
