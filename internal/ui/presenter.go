package ui

import (
	"io"
	"time"

	"github.com/KHET-1/diamond-drill/internal/event"
	"github.com/KHET-1/diamond-drill/internal/stats"
)

// DefaultProgressInterval is how often the plain presenter prints a
// progress line to its error writer.
const DefaultProgressInterval = 5 * time.Second

// Presenter consumes events and displays progress.
type Presenter interface {
	// Run consumes events until the channel closes. Blocks until done.
	Run(events <-chan event.Event) error
	// Summary returns the final summary line.
	Summary() string
}

// Config configures a Presenter.
type Config struct {
	Writer           io.Writer
	ErrWriter        io.Writer
	Stats            *stats.Collector
	ProgressInterval time.Duration
	BarWidth         int // 0 disables the progress bar
	Quiet            bool
	Verbose          bool
}

// NewPresenter creates the appropriate presenter based on configuration.
//
//nolint:ireturn // factory function returns interface by design
func NewPresenter(cfg Config) Presenter {
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}
	if cfg.Quiet {
		return &quietPresenter{stats: cfg.Stats}
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = DefaultProgressInterval
	}
	return &plainPresenter{
		w:        cfg.Writer,
		errW:     cfg.ErrWriter,
		stats:    cfg.Stats,
		verbose:  cfg.Verbose,
		interval: cfg.ProgressInterval,
		barWidth: cfg.BarWidth,
	}
}
