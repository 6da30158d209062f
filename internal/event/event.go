package event

import (
	"fmt"
	"time"
)

// Type identifies the kind of event.
type Type int

const (
	OperationStarted Type = iota + 1
	FileFound
	ScanProgress
	SectorRead
	FileCopying
	FileExported
	DuplicateFound
	Error
	OperationComplete
)

var typeNames = [...]string{
	OperationStarted:  "OperationStarted",
	FileFound:         "FileFound",
	ScanProgress:      "ScanProgress",
	SectorRead:        "SectorRead",
	FileCopying:       "FileCopying",
	FileExported:      "FileExported",
	DuplicateFound:    "DuplicateFound",
	Error:             "Error",
	OperationComplete: "OperationComplete",
}

func (t Type) String() string {
	if int(t) > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Op names the engine operation an event belongs to.
type Op string

const (
	OpScan   Op = "scan"
	OpDedup  Op = "dedup"
	OpExport Op = "export"
)

// Status labels used in Event.Status.
const (
	StatusClean      = "clean"
	StatusRecovered  = "recovered"
	StatusUnreadable = "unreadable"
	StatusFailed     = "failed"
	StatusResumed    = "resumed"
)

// Event is a single progress notification from the engine. It is pure data.
type Event struct {
	Timestamp time.Time
	Error     error
	Type      Type
	Op        Op
	Path      string
	Status    string // block outcome, file health, or export outcome
	Size      int64  // file size or bytes transferred
	Offset    int64  // SectorRead block offset
	Length    int64  // SectorRead block length
	Attempts  int    // SectorRead read attempts
	Done      int64  // units completed (progress, completion)
	Total     int64  // units requested or estimated
	Bytes     int64  // aggregate bytes (progress, completion)
	Members   int    // DuplicateFound group size
	WorkerID  int
	Cancelled bool // OperationComplete: stopped at user request
	Halted    bool // OperationComplete: stopped by halt-on-error
}

// Droppable reports whether the event is high-frequency progress that a
// bounded queue may discard when a consumer falls behind.
func (e Event) Droppable() bool {
	switch e.Type {
	case FileFound, ScanProgress, FileCopying, FileExported:
		return true
	case SectorRead:
		return e.Status != StatusUnreadable
	default:
		return false
	}
}

// Summary renders a completion event as "5 of 10, cancelled".
func (e Event) Summary() string {
	s := fmt.Sprintf("%d of %d", e.Done, e.Total)
	switch {
	case e.Halted:
		return s + ", halted"
	case e.Cancelled:
		return s + ", cancelled"
	default:
		return s + ", complete"
	}
}
