package export

import (
	"fmt"
	"time"

	"github.com/KHET-1/diamond-drill/internal/index"
	"github.com/KHET-1/diamond-drill/internal/sector"
)

// State is the progress of one export job.
type State int

const (
	Queued State = iota
	Copying
	Verifying
	Recovered
	Failed
)

func (s State) String() string {
	switch s {
	case Queued:
		return "queued"
	case Copying:
		return "copying"
	case Verifying:
		return "verifying"
	case Recovered:
		return "recovered"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == Recovered || s == Failed }

var transitions = map[State][]State{
	Queued:    {Copying, Failed},
	Copying:   {Verifying, Failed},
	Verifying: {Recovered, Failed},
}

// Job is the export of one index entry.
type Job struct {
	Err        error
	Entry      index.FileEntry
	DestPath   string // relative to the destination, slash separated
	SourceHash string
	DestHash   string
	Map        sector.Map
	srcAtime   time.Time
	State      State
	Bytes      int64
}

// advance moves the job to the next state. States only move forward.
func (j *Job) advance(to State) error {
	for _, next := range transitions[j.State] {
		if next == to {
			j.State = to
			return nil
		}
	}
	return fmt.Errorf("export %s: invalid transition %s -> %s", j.Entry.Path, j.State, to)
}

// fail ends the job with err from any non-terminal state.
func (j *Job) fail(err error) {
	if j.State.Terminal() {
		return
	}
	j.State = Failed
	j.Err = err
}

// Health is the health of the exported copy: the source health degraded by
// anything the export itself could not read.
func (j *Job) Health() index.Health {
	h := j.Entry.Health
	if j.Map.TotalBlocks > 0 {
		if mh := j.Map.Health(); rankHealth(mh) > rankHealth(h) {
			h = mh
		}
	}
	return h
}

func rankHealth(h index.Health) int {
	switch h {
	case index.Recovered:
		return 1
	case index.RecoveredWithErrors:
		return 2
	case index.Failed:
		return 3
	default:
		return 0
	}
}
