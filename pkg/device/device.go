// Package device replaces a process-wide default tensor type with an explicit
// context that is handed to everything that allocates tensors.
package device

import (
	"fmt"
	"strings"

	"github.com/cyclopcam/logs"
	"gonum.org/v1/gonum/mat"
)

type Kind string

const (
	CPU  Kind = "cpu"
	CUDA Kind = "cuda"
)

type Precision int

const (
	Float64 Precision = iota // The only precision that our gonum backend supports
)

func (p Precision) String() string {
	switch p {
	case Float64:
		return "float64"
	}
	return fmt.Sprintf("Precision(%d)", int(p))
}

// Context is the device and numeric precision that tensors are created on.
// It is a value type, and is never mutated after creation.
type Context struct {
	Kind      Kind
	Precision Precision
}

// CPUContext is where parameters go before they are saved to disk
var CPUContext = Context{Kind: CPU, Precision: Float64}

// Parse a device name, such as "cpu" or "cuda"
func Parse(name string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(name))) {
	case CPU, "":
		return CPU, nil
	case CUDA:
		return CUDA, nil
	}
	return "", fmt.Errorf("Unknown device '%v' (expected cpu or cuda)", name)
}

// HaveCUDA returns true if this build can place tensors on a CUDA device.
func HaveCUDA() bool {
	return false
}

// Resolve turns the requested device name into a usable context.
// If CUDA is requested but not available, we fall back to the CPU.
func Resolve(log logs.Log, requested string) (Context, error) {
	kind, err := Parse(requested)
	if err != nil {
		return Context{}, err
	}
	if kind == CUDA && !HaveCUDA() {
		log.Warnf("CUDA device requested, but no CUDA backend is available. Falling back to CPU")
		kind = CPU
	}
	return Context{Kind: kind, Precision: Float64}, nil
}

func (c Context) String() string {
	return fmt.Sprintf("%v/%v", c.Kind, c.Precision)
}

// NewDense allocates a zeroed rows x cols matrix on this device
func (c Context) NewDense(rows, cols int) *mat.Dense {
	return mat.NewDense(rows, cols, nil)
}
