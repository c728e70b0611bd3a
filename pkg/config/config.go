package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds every tunable of a training run.
// Once handed to the trainer, it is treated as immutable.
type Config struct {
	ImageWidth         int     `json:"imageWidth"`         // Frames are resized to this width
	ImageHeight        int     `json:"imageHeight"`        // Frames are resized to this height
	EmbeddingDims      int     `json:"embeddingDims"`      // Length of each embedding vector
	NumEpochs          int     `json:"numEpochs"`          // Passes over the dataset
	LearningRate       float64 `json:"learningRate"`       // SGD learning rate
	Momentum           float64 `json:"momentum"`           // SGD momentum
	Alpha              float64 `json:"alpha"`              // Triplet loss margin
	LogInterval        int     `json:"logInterval"`        // Log running losses every N batches
	CheckpointInterval int     `json:"checkpointInterval"` // Save a checkpoint every N batches
	Device             string  `json:"device"`             // "cpu" or "cuda"
	Seed               *int64  `json:"seed,omitempty"`     // Fixed seed for weights and sampling. If nil, seeded from the clock.

	DatasetDir      string `json:"datasetDir"`      // Root of the DAVIS dataset
	DatasetYear     int    `json:"datasetYear"`     // DAVIS year, eg 2016
	DatasetPhase    string `json:"datasetPhase"`    // "train" or "val"
	Randomize       bool   `json:"randomize"`       // Randomize triplet sampling
	ModelDir        string `json:"modelDir"`        // Directory or gs://bucket/prefix for checkpoints
	HistoryDB       string `json:"historyDB"`       // SQLite file for run history. Empty to disable.
	StopOnNonFinite bool   `json:"stopOnNonFinite"` // Abort training on a NaN or Inf loss
	ResumeFrom      string `json:"resumeFrom"`      // Checkpoint name inside ModelDir to start from
	StatusAddr      string `json:"statusAddr"`      // Serve training progress over HTTP on this address, eg ":8080". Empty to disable.
	LossPlot        string `json:"lossPlot"`        // Write a PNG of the loss curves here when training ends. Empty to disable.
}

func DefaultConfig() Config {
	return Config{
		ImageWidth:         50,
		ImageHeight:        50,
		EmbeddingDims:      128,
		NumEpochs:          1,
		LearningRate:       1e-3,
		Momentum:           0.1,
		Alpha:              1,
		LogInterval:        10,
		CheckpointInterval: 10,
		Device:             "cpu",
		DatasetDir:         "dataset/DAVIS",
		DatasetYear:        2016,
		DatasetPhase:       "train",
		Randomize:          true,
		ModelDir:           "model",
	}
}

// LoadConfig reads a JSON config file on top of the defaults.
// If filename is empty, the defaults are returned.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()
	if filename == "" {
		return &cfg, nil
	}
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("Error loading %v: %w", filename, err)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("Error loading as JSON %v: %w", filename, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("Invalid config %v: %w", filename, err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.ImageWidth <= 0 || c.ImageHeight <= 0:
		return fmt.Errorf("Image size must be positive, but is %v x %v", c.ImageWidth, c.ImageHeight)
	case c.EmbeddingDims <= 0:
		return fmt.Errorf("embeddingDims must be positive, but is %v", c.EmbeddingDims)
	case c.NumEpochs < 0:
		return fmt.Errorf("numEpochs may not be negative")
	case c.LearningRate <= 0:
		return fmt.Errorf("learningRate must be positive, but is %v", c.LearningRate)
	case c.Momentum < 0:
		return fmt.Errorf("momentum may not be negative")
	case c.Alpha < 0:
		return fmt.Errorf("alpha may not be negative")
	case c.LogInterval <= 0:
		return fmt.Errorf("logInterval must be positive, but is %v", c.LogInterval)
	case c.CheckpointInterval <= 0:
		return fmt.Errorf("checkpointInterval must be positive, but is %v", c.CheckpointInterval)
	case c.Device != "cpu" && c.Device != "cuda":
		return fmt.Errorf("Unknown device '%v'. Valid devices are cpu and cuda", c.Device)
	case c.ModelDir == "":
		return fmt.Errorf("modelDir may not be empty")
	}
	return nil
}
