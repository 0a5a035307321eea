package database

import "time"

// FolderSet selects one of the two folder registries.
type FolderSet string

const (
	// WatchedFolders are subtrees eligible for indexing.
	WatchedFolders FolderSet = "folders"
	// IgnoredFolders are subtrees excluded from indexing.
	IgnoredFolders FolderSet = "ignore_folders"
)

// Valid reports whether s names a known set.
func (s FolderSet) Valid() bool {
	return s == WatchedFolders || s == IgnoredFolders
}

// Folder is a registered directory.
type Folder struct {
	ID        int64     `json:"id"`
	Path      string    `json:"path"`
	UUID      string    `json:"uuid"`
	CreatedAt time.Time `json:"created_at"`
}

// Image is one indexed file. Path is unique; UUID never changes for a path.
type Image struct {
	ID            int64          `json:"-"`
	UUID          string         `json:"uuid"`
	Path          string         `json:"path"`
	FolderID      int64          `json:"folder_id,omitempty"`
	Size          int64          `json:"size"`
	ModTime       time.Time      `json:"mod_time"`
	ContentHash   string         `json:"content_hash"`
	Format        string         `json:"format"`
	Width         int            `json:"width"`
	Height        int            `json:"height"`
	Metadata      map[string]any `json:"metadata"`
	ThumbnailKey  string         `json:"thumbnail_key"`
	FileCreatedAt time.Time      `json:"file_created_at"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	LastSeenAt    time.Time      `json:"-"`
}

// Stats summarizes the store for metrics and status output.
type Stats struct {
	Images        int `json:"images"`
	Folders       int `json:"folders"`
	IgnoreFolders int `json:"ignore_folders"`
}
