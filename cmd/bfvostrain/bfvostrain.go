package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/bfvos/pkg/checkpoint"
	"github.com/cyclopcam/bfvos/pkg/config"
	"github.com/cyclopcam/bfvos/pkg/dataset"
	"github.com/cyclopcam/bfvos/pkg/device"
	"github.com/cyclopcam/bfvos/pkg/lossplot"
	"github.com/cyclopcam/bfvos/pkg/network"
	"github.com/cyclopcam/bfvos/pkg/optim"
	"github.com/cyclopcam/bfvos/pkg/rundb"
	"github.com/cyclopcam/bfvos/pkg/status"
	"github.com/cyclopcam/bfvos/pkg/storage"
	"github.com/cyclopcam/bfvos/pkg/train"
	"github.com/cyclopcam/logs"
)

func main() {
	parser := argparse.NewParser("bfvostrain", "Train a pixel embedding network for video object segmentation")
	configFile := parser.String("c", "config", &argparse.Options{Help: "JSON config file", Required: false, Default: ""})
	datasetDir := parser.String("", "dataset", &argparse.Options{Help: "Root of the DAVIS dataset", Required: false, Default: ""})
	modelDir := parser.String("", "modeldir", &argparse.Options{Help: "Directory or gs://bucket/prefix for checkpoints", Required: false, Default: ""})
	epochs := parser.Int("", "epochs", &argparse.Options{Help: "Number of epochs", Required: false, Default: 0})
	deviceName := parser.String("", "device", &argparse.Options{Help: "cpu or cuda", Required: false, Default: ""})
	seedStr := parser.String("", "seed", &argparse.Options{Help: "Random seed", Required: false, Default: ""})
	synthetic := parser.Int("", "synthetic", &argparse.Options{Help: "Train on N generated frames instead of DAVIS", Required: false, Default: 0})
	historyDB := parser.String("", "history", &argparse.Options{Help: "SQLite database for run history", Required: false, Default: ""})
	resume := parser.String("", "resume", &argparse.Options{Help: "Checkpoint inside the model directory to resume from", Required: false, Default: ""})
	statusAddr := parser.String("", "status", &argparse.Options{Help: "Serve training progress over HTTP on this address, eg :8080", Required: false, Default: ""})
	lossPlot := parser.String("", "plot", &argparse.Options{Help: "Write a PNG of the loss curves to this file when training ends", Required: false, Default: ""})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	if *datasetDir != "" {
		cfg.DatasetDir = *datasetDir
	}
	if *modelDir != "" {
		cfg.ModelDir = *modelDir
	}
	if *epochs != 0 {
		cfg.NumEpochs = *epochs
	}
	if *deviceName != "" {
		cfg.Device = *deviceName
	}
	if *seedStr != "" {
		seed, err := strconv.ParseInt(*seedStr, 10, 64)
		if err != nil {
			logger.Errorf("Invalid seed '%v': %v", *seedStr, err)
			os.Exit(1)
		}
		cfg.Seed = &seed
	}
	if *historyDB != "" {
		cfg.HistoryDB = *historyDB
	}
	if *resume != "" {
		cfg.ResumeFrom = *resume
	}
	if *statusAddr != "" {
		cfg.StatusAddr = *statusAddr
	}
	if *lossPlot != "" {
		cfg.LossPlot = *lossPlot
	}
	if err := cfg.Validate(); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg, *synthetic); err != nil {
		logger.Errorf("Training failed: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger logs.Log, cfg *config.Config, syntheticFrames int) error {
	dev, err := device.Resolve(logger, cfg.Device)
	if err != nil {
		return err
	}

	seed := time.Now().UnixNano()
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}
	logger.Infof("Device %v, seed %v", dev, seed)

	netOptions := network.DefaultPatchNetOptions(cfg.EmbeddingDims)
	netOptions.Seed = seed
	net, err := network.NewPatchNet(logger, dev, netOptions)
	if err != nil {
		return err
	}

	store, err := storage.Open(logger, cfg.ModelDir)
	if err != nil {
		return fmt.Errorf("Failed to open model directory %v: %w", cfg.ModelDir, err)
	}
	if cfg.ResumeFrom != "" {
		meta, err := checkpoint.Load(store, cfg.ResumeFrom, net)
		if err != nil {
			return err
		}
		logger.Infof("Resumed from %v (epoch %v, batch %v)", cfg.ResumeFrom, meta.Epoch, meta.Batch)
	}

	var source dataset.Source
	if syntheticFrames > 0 {
		source, err = dataset.NewSynthetic(dataset.SyntheticOptions{
			Width:     cfg.ImageWidth,
			Height:    cfg.ImageHeight,
			NumFrames: syntheticFrames,
			Seed:      seed,
		})
	} else {
		source, err = dataset.NewDavis(logger, dataset.DavisOptions{
			BaseDir:   cfg.DatasetDir,
			Width:     cfg.ImageWidth,
			Height:    cfg.ImageHeight,
			Year:      cfg.DatasetYear,
			Phase:     cfg.DatasetPhase,
			Randomize: cfg.Randomize,
			Seed:      seed,
		})
	}
	if err != nil {
		return err
	}

	tracker := status.NewTracker()
	if cfg.StatusAddr != "" {
		statusServer := status.NewServer(logger, tracker)
		go func() {
			if err := statusServer.ListenAndServe(ctx, cfg.StatusAddr); err != nil {
				logger.Warnf("Status server failed: %v", err)
			}
		}()
	}

	var dbHistory train.History
	var db *rundb.RunDB
	var runID int64
	if cfg.HistoryDB != "" {
		db, err = rundb.Open(logger, cfg.HistoryDB)
		if err != nil {
			return err
		}
		defer db.Close()
		runID, err = db.StartRun(cfg, dev.String())
		if err != nil {
			return err
		}
		dbHistory = db.Recorder(runID)
		logger.Infof("Recording run %v in %v", runID, cfg.HistoryDB)
	}

	sgd := optim.NewSGD(net.Params(), cfg.LearningRate, cfg.Momentum)
	history := train.MultiHistory(tracker, dbHistory)
	trainer := train.NewTrainer(logger, cfg, net, sgd, source, checkpoint.NewWriter(logger, store), history)
	err = trainer.Run(ctx)
	tracker.Finish(err)
	if cfg.LossPlot != "" {
		if errPlot := lossplot.SavePNG(cfg.LossPlot, tracker.Losses(), 800, 450); errPlot != nil {
			logger.Warnf("Failed to write loss plot %v: %v", cfg.LossPlot, errPlot)
		} else {
			logger.Infof("Loss plot written to %v", cfg.LossPlot)
		}
	}
	if db != nil {
		if errFinish := db.FinishRun(runID, err); errFinish != nil {
			logger.Warnf("Failed to finish run %v: %v", runID, errFinish)
		}
	}
	return err
}
