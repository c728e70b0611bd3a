// Package network is the embedding network interface layer, along with
// one concrete network (PatchNet) that implements it on top of gonum.
package network

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cyclopcam/bfvos/pkg/dataset"
	"github.com/cyclopcam/bfvos/pkg/device"
	"github.com/cyclopcam/bfvos/pkg/embedding"
	"gonum.org/v1/gonum/mat"
)

// Network maps a triplet of frames (anchor, pool 1, pool 2) to three dense
// embedding tensors of shape (Dims, Width/Stride, Height/Stride).
type Network interface {
	// Forward runs the network on the anchor frame and the two pooling frames.
	// The activations are retained for the next call to Backward.
	Forward(frames [3]*dataset.Frame) ([3]*embedding.Tensor, error)

	// Backward accumulates parameter gradients, given the gradient of the loss
	// with respect to each of the three embeddings produced by the last Forward.
	Backward(grads [3]*embedding.Tensor) error

	// Trainable parameters, in a stable order
	Params() []*Param

	// Model Config.
	// Callers assume that the config remains constant for the life of the network.
	Config() *ModelConfig

	Train()                 // Switch to training mode
	Eval()                  // Switch to evaluation mode
	IsTraining() bool       // True if in training mode
	To(ctx device.Context)  // Move parameters to a device
	Device() device.Context // Device that the parameters live on
}

// Param is a named trainable tensor, and its accumulated gradient
type Param struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
}

func newParam(ctx device.Context, name string, rows, cols int) *Param {
	return &Param{
		Name:  name,
		Value: ctx.NewDense(rows, cols),
		Grad:  ctx.NewDense(rows, cols),
	}
}

// ModelConfig is saved as JSON next to the weights of a model
type ModelConfig struct {
	Architecture string `json:"architecture"` // eg "patchnet"
	Dims         int    `json:"dims"`         // Length of each embedding vector (eg 128)
	Hidden       int    `json:"hidden"`       // Width of the hidden layer
	Stride       int    `json:"stride"`       // Spatial downsampling between frame and embedding (eg 8)
	Channels     int    `json:"channels"`     // Input color channels (eg 3)
}

// Load model config from a JSON file
func LoadModelConfig(filename string) (*ModelConfig, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	cfg := &ModelConfig{}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("Error loading model config %v: %w", filename, err)
	}
	return cfg, nil
}

// OutputSize returns the embedding width and height for a frame of the given size
func (c *ModelConfig) OutputSize(width, height int) (int, int) {
	return width / c.Stride, height / c.Stride
}
