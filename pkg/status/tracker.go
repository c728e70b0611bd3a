package status

import (
	"sync"
	"time"

	"github.com/cyclopcam/bfvos/pkg/lossplot"
)

// Progress is a snapshot of a training run
type Progress struct {
	StartedAt      time.Time `json:"startedAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	Epoch          int       `json:"epoch"`
	Batch          int       `json:"batch"`
	AvgFgLoss      float64   `json:"avgFgLoss"`
	AvgBgLoss      float64   `json:"avgBgLoss"`
	AvgTotalLoss   float64   `json:"avgTotalLoss"`
	LastCheckpoint string    `json:"lastCheckpoint"`
	FinalModel     string    `json:"finalModel"`
	Done           bool      `json:"done"`
	Error          string    `json:"error"`
}

// Tracker receives progress from the training loop, and serves it to other goroutines.
// It satisfies train.History.
type Tracker struct {
	lock     sync.Mutex
	progress Progress
	losses   []lossplot.Point
}

func NewTracker() *Tracker {
	now := time.Now().UTC()
	return &Tracker{
		progress: Progress{
			StartedAt: now,
			UpdatedAt: now,
		},
	}
}

func (t *Tracker) RecordLoss(epoch, batch int, avgFg, avgBg, avgTotal float64) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.progress.UpdatedAt = time.Now().UTC()
	t.progress.Epoch = epoch
	t.progress.Batch = batch
	t.progress.AvgFgLoss = avgFg
	t.progress.AvgBgLoss = avgBg
	t.progress.AvgTotalLoss = avgTotal
	t.losses = append(t.losses, lossplot.Point{
		Epoch: epoch,
		Batch: batch,
		Fg:    avgFg,
		Bg:    avgBg,
		Total: avgTotal,
	})
	return nil
}

func (t *Tracker) RecordCheckpoint(epoch, batch int, name string, final bool) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.progress.UpdatedAt = time.Now().UTC()
	if final {
		t.progress.FinalModel = name
	} else {
		t.progress.LastCheckpoint = name
	}
	return nil
}

// Finish marks the run as complete
func (t *Tracker) Finish(err error) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.progress.UpdatedAt = time.Now().UTC()
	t.progress.Done = true
	if err != nil {
		t.progress.Error = err.Error()
	}
}

func (t *Tracker) Progress() Progress {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.progress
}

// Losses returns a copy of every loss report so far
func (t *Tracker) Losses() []lossplot.Point {
	t.lock.Lock()
	defer t.lock.Unlock()
	return append([]lossplot.Point{}, t.losses...)
}
