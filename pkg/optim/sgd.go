package optim

import (
	"fmt"

	"github.com/cyclopcam/bfvos/pkg/network"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Optimizer updates parameters from their accumulated gradients
type Optimizer interface {
	ZeroGrad()
	Step() error
}

// SGD is stochastic gradient descent with classical momentum:
//
//	v = momentum*v + grad
//	param = param - lr*v
//
// On the first step v is initialized to the gradient.
type SGD struct {
	LearningRate float64
	Momentum     float64
	params       []*network.Param
	velocity     []*mat.Dense
}

func NewSGD(params []*network.Param, learningRate, momentum float64) *SGD {
	return &SGD{
		LearningRate: learningRate,
		Momentum:     momentum,
		params:       params,
		velocity:     make([]*mat.Dense, len(params)),
	}
}

func (s *SGD) ZeroGrad() {
	for _, p := range s.params {
		p.Grad.Zero()
	}
}

func (s *SGD) Step() error {
	for i, p := range s.params {
		vr, vc := p.Value.Dims()
		gr, gc := p.Grad.Dims()
		if vr != gr || vc != gc {
			return fmt.Errorf("Parameter %v is %vx%v but its gradient is %vx%v", p.Name, vr, vc, gr, gc)
		}
		g := p.Grad.RawMatrix().Data
		v := s.velocity[i]
		if v == nil || s.Momentum == 0 {
			v = mat.DenseCopyOf(p.Grad)
			s.velocity[i] = v
		} else {
			vd := v.RawMatrix().Data
			floats.Scale(s.Momentum, vd)
			floats.Add(vd, g)
		}
		floats.AddScaled(p.Value.RawMatrix().Data, -s.LearningRate, v.RawMatrix().Data)
	}
	return nil
}
