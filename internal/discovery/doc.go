// Package discovery enumerates image files under the watched folders.
//
// A walk descends every watched folder by resolved path, skips hidden
// entries and any subtree at or below an ignored folder, follows symlinked
// directories at most once per real path, and keeps files whose extension is
// on the image allow-list. The result is sorted by path and deduplicated, so
// two walks over an unchanged tree return identical output.
//
// Unreadable directories and files are logged and skipped. Discovery only
// fails when none of the watched folders can be read.
package discovery
