// Package index holds the scan result model: per-file entries, their health
// and detected type, the ordered scan index, and its SQLite store.
package index

import (
	"path"
	"strings"
	"time"

	"github.com/h2non/filetype"
)

// Health is how completely a file's content could be read.
type Health string

const (
	Clean               Health = "clean"
	Recovered           Health = "recovered"             // every block read, some after retry
	RecoveredWithErrors Health = "recovered-with-errors" // one or more blocks zero-filled
	Failed              Health = "failed"                // no content readable
)

// Readable reports whether any content of the file was recovered.
func (h Health) Readable() bool { return h != Failed }

// FileType is the coarse content category assigned at discovery.
type FileType string

const (
	Image    FileType = "image"
	Document FileType = "document"
	Audio    FileType = "audio"
	Video    FileType = "video"
	Code     FileType = "code"
	Archive  FileType = "archive"
	Unknown  FileType = "unknown"
)

// FileEntry is one discovered file. Path is slash-separated, relative to
// the scan root, and identifies the entry.
type FileEntry struct {
	ModTime     time.Time `json:"mtime"`
	Path        string    `json:"path"`
	Type        FileType  `json:"type"`
	ContentHash string    `json:"content_hash,omitempty"`
	PartialHash string    `json:"partial_hash,omitempty"`
	Health      Health    `json:"health"`
	Error       string    `json:"error,omitempty"`
	Extension   string    `json:"ext,omitempty"`
	Size        int64     `json:"size"`
	BadBlocks   int       `json:"bad_blocks,omitempty"`
	BlockSize   int       `json:"block_size,omitempty"`

	// Offsets of blocks that stayed unreadable or needed a retry. Only
	// the ranges actually read are covered; for partially hashed files
	// that is the head and tail.
	BadOffsets     []int64 `json:"bad_offsets,omitempty"`
	RetriedOffsets []int64 `json:"retried_offsets,omitempty"`
}

// Name returns the base name of the entry.
func (e FileEntry) Name() string { return path.Base(e.Path) }

// Depth is the number of directory levels above the file; a file at the
// scan root has depth 0.
func (e FileEntry) Depth() int { return strings.Count(e.Path, "/") }

// HasFullHash reports whether the content hash covers the whole file.
func (e FileEntry) HasFullHash() bool { return e.ContentHash != "" }

// Hashed reports whether any hash was computed.
func (e FileEntry) Hashed() bool { return e.ContentHash != "" || e.PartialHash != "" }

var extTypes = map[string]FileType{
	"jpg": Image, "jpeg": Image, "png": Image, "gif": Image, "bmp": Image, "tif": Image,
	"tiff": Image, "webp": Image, "heic": Image, "svg": Image, "raw": Image, "cr2": Image,
	"nef": Image, "ico": Image,

	"txt": Document, "md": Document, "pdf": Document, "doc": Document, "docx": Document,
	"odt": Document, "rtf": Document, "xls": Document, "xlsx": Document, "ods": Document,
	"ppt": Document, "pptx": Document, "csv": Document, "epub": Document,

	"mp3": Audio, "wav": Audio, "flac": Audio, "ogg": Audio, "m4a": Audio, "aac": Audio,
	"wma": Audio, "opus": Audio,

	"mp4": Video, "mkv": Video, "avi": Video, "mov": Video, "wmv": Video, "webm": Video,
	"m4v": Video, "flv": Video,

	"go": Code, "rs": Code, "py": Code, "js": Code, "ts": Code, "c": Code, "h": Code,
	"cpp": Code, "hpp": Code, "java": Code, "rb": Code, "sh": Code, "php": Code,
	"cs": Code, "swift": Code, "kt": Code, "sql": Code, "html": Code, "css": Code,
	"json": Code, "yaml": Code, "yml": Code, "toml": Code, "xml": Code,

	"zip": Archive, "tar": Archive, "gz": Archive, "tgz": Archive, "bz2": Archive,
	"xz": Archive, "7z": Archive, "rar": Archive, "zst": Archive, "iso": Archive,
}

// Ext returns the lower-cased extension of name without the dot.
func Ext(name string) string {
	ext := path.Ext(name)
	if ext == "" || ext == name {
		return ""
	}
	return strings.ToLower(ext[1:])
}

// DetectType classifies a file by its leading bytes, falling back to the
// extension of name when the content has no recognizable signature.
func DetectType(name string, head []byte) FileType {
	if len(head) > 0 {
		kind, err := filetype.Match(head)
		if err == nil && kind != filetype.Unknown {
			switch {
			case kind.Extension == "pdf" || filetype.IsDocument(head):
				return Document
			case filetype.IsImage(head):
				return Image
			case filetype.IsAudio(head):
				return Audio
			case filetype.IsVideo(head):
				return Video
			case filetype.IsArchive(head):
				return Archive
			}
		}
	}
	if t, ok := extTypes[Ext(name)]; ok {
		return t
	}
	return Unknown
}
