package train

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cyclopcam/bfvos/pkg/checkpoint"
	"github.com/cyclopcam/bfvos/pkg/config"
	"github.com/cyclopcam/bfvos/pkg/dataset"
	"github.com/cyclopcam/bfvos/pkg/device"
	"github.com/cyclopcam/bfvos/pkg/loss"
	"github.com/cyclopcam/bfvos/pkg/network"
	"github.com/cyclopcam/bfvos/pkg/optim"
	"github.com/cyclopcam/bfvos/pkg/perfstats"
	"github.com/cyclopcam/logs"
)

var ErrNonFiniteLoss = errors.New("Loss is not finite")

// History receives progress reports from the trainer
type History interface {
	RecordLoss(epoch, batch int, avgFg, avgBg, avgTotal float64) error
	RecordCheckpoint(epoch, batch int, name string, final bool) error
}

type multiHistory []History

// MultiHistory sends progress to every non-nil History
func MultiHistory(histories ...History) History {
	m := multiHistory{}
	for _, h := range histories {
		if h != nil {
			m = append(m, h)
		}
	}
	return m
}

func (m multiHistory) RecordLoss(epoch, batch int, avgFg, avgBg, avgTotal float64) error {
	var first error
	for _, h := range m {
		if err := h.RecordLoss(epoch, batch, avgFg, avgBg, avgTotal); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m multiHistory) RecordCheckpoint(epoch, batch int, name string, final bool) error {
	var first error
	for _, h := range m {
		if err := h.RecordCheckpoint(epoch, batch, name, final); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Trainer runs the training loop.
// Epochs and batches are numbered from 1 in logs and checkpoint names.
type Trainer struct {
	Log        logs.Log
	FinalModel string // Name of the model saved at the end of Run

	cfg         config.Config
	net         network.Network
	opt         optim.Optimizer
	source      dataset.Source
	lossFn      loss.Function
	checkpoints *checkpoint.Writer
	history     History // May be nil
	device      device.Context
	now         func() time.Time

	fgLoss perfstats.Accumulator
	bgLoss perfstats.Accumulator
	times  perfstats.StepTimes
}

// NewTrainer creates a trainer. history may be nil.
// The network must already live on the device that training should run on.
func NewTrainer(log logs.Log, cfg *config.Config, net network.Network, opt optim.Optimizer, source dataset.Source, checkpoints *checkpoint.Writer, history History) *Trainer {
	return &Trainer{
		Log:         log,
		cfg:         *cfg,
		net:         net,
		opt:         opt,
		source:      source,
		lossFn:      loss.NewMinTriplet(cfg.Alpha),
		checkpoints: checkpoints,
		history:     history,
		device:      net.Device(),
		now:         time.Now,
	}
}

// Run trains for the configured number of epochs, and then saves the final model.
// Cancellation of ctx is only observed between batches.
func (t *Trainer) Run(ctx context.Context) error {
	t.net.To(t.device)
	for epoch := 1; epoch <= t.cfg.NumEpochs; epoch++ {
		t.Log.Infof("Epoch %v/%v", epoch, t.cfg.NumEpochs)
		if err := t.trainEpoch(ctx, epoch); err != nil {
			return err
		}
	}

	t.net.Eval()
	t.net.To(device.CPUContext)
	name, err := t.checkpoints.SaveFinal(t.net, t.cfg.NumEpochs, t.now())
	if err != nil {
		return err
	}
	t.FinalModel = name
	if t.history != nil {
		if err := t.history.RecordCheckpoint(t.cfg.NumEpochs, 0, name, true); err != nil {
			t.Log.Warnf("Failed to record final model in history: %v", err)
		}
	}
	return nil
}

func (t *Trainer) trainEpoch(ctx context.Context, epoch int) error {
	triplets, err := t.source.Triplets(epoch - 1)
	if err != nil {
		return fmt.Errorf("Failed to sample epoch %v: %w", epoch, err)
	}
	t.fgLoss.Reset()
	t.bgLoss.Reset()
	t.times.Reset()
	t.net.Train()

	for i, triplet := range triplets {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch := i + 1
		step, err := t.trainBatch(triplet)
		if err != nil {
			return fmt.Errorf("Epoch %v, batch %v: %w", epoch, batch, err)
		}
		t.fgLoss.AddSample(step.Fg.Value)
		t.bgLoss.AddSample(step.Bg.Value)

		if batch%t.cfg.LogInterval == 0 {
			t.logProgress(epoch, batch)
		}
		if batch%t.cfg.CheckpointInterval == 0 {
			if err := t.saveCheckpoint(epoch, batch); err != nil {
				return err
			}
		}
	}
	return nil
}

// trainBatch runs forward, loss, backward, and one optimizer step on a single triplet
func (t *Trainer) trainBatch(triplet dataset.Triplet) (*Step, error) {
	start := time.Now()
	sample, err := t.source.Load(triplet)
	if err != nil {
		return nil, err
	}
	start = t.times.Load.AddSince(start)

	emb, err := t.net.Forward(sample.Frames)
	if err != nil {
		return nil, err
	}
	start = t.times.Forward.AddSince(start)

	step, err := BuildStep(t.device, emb, sample.Masks, t.net.Config().Stride, t.lossFn)
	if err != nil {
		return nil, err
	}
	start = t.times.Loss.AddSince(start)

	if math.IsNaN(step.Total) || math.IsInf(step.Total, 0) {
		if t.cfg.StopOnNonFinite {
			return nil, fmt.Errorf("%w: fg %v, bg %v", ErrNonFiniteLoss, step.Fg.Value, step.Bg.Value)
		}
		t.Log.Warnf("Non-finite loss (fg %v, bg %v) on triplet %+v", step.Fg.Value, step.Bg.Value, triplet)
	}

	t.opt.ZeroGrad()
	if err := t.net.Backward(step.Grads); err != nil {
		return nil, err
	}
	start = t.times.Backward.AddSince(start)

	if err := t.opt.Step(); err != nil {
		return nil, err
	}
	t.times.Optimize.AddSince(start)
	return step, nil
}

func (t *Trainer) logProgress(epoch, batch int) {
	avgFg := t.fgLoss.Average()
	avgBg := t.bgLoss.Average()
	avgTotal := avgFg + avgBg
	t.Log.Infof("Epoch: %v, Batch: %v", epoch, batch)
	t.Log.Infof("Avg FG Loss: %v, Avg BG Loss: %v, Avg Total Loss: %v", avgFg, avgBg, avgTotal)
	t.Log.Debugf("Step times: %v", t.times.String())
	if t.history != nil {
		if err := t.history.RecordLoss(epoch, batch, avgFg, avgBg, avgTotal); err != nil {
			t.Log.Warnf("Failed to record loss in history: %v", err)
		}
	}
}

// Checkpoints are always written from CPU, in eval mode.
// Afterwards the network returns to the training device and training mode.
func (t *Trainer) saveCheckpoint(epoch, batch int) error {
	t.net.Eval()
	t.net.To(device.CPUContext)
	name, err := t.checkpoints.SaveCheckpoint(t.net, epoch, batch)
	t.net.To(t.device)
	t.net.Train()
	if err != nil {
		return err
	}
	if t.history != nil {
		if err := t.history.RecordCheckpoint(epoch, batch, name, false); err != nil {
			t.Log.Warnf("Failed to record checkpoint in history: %v", err)
		}
	}
	return nil
}
