package perfstats

import (
	"fmt"
	"time"
)

// Accumulator keeps a running total of float samples, so that we can report averages
type Accumulator struct {
	Samples int64
	Total   float64
}

func (a *Accumulator) Reset() {
	a.Samples = 0
	a.Total = 0
}

func (a *Accumulator) AddSample(v float64) {
	a.Samples++
	a.Total += v
}

func (a *Accumulator) Average() float64 {
	if a.Samples == 0 {
		return 0
	}
	return a.Total / float64(a.Samples)
}

// TimeAccumulator measures how long something takes, on average
type TimeAccumulator struct {
	Samples int64
	Total   time.Duration
}

func (a *TimeAccumulator) Reset() {
	a.Samples = 0
	a.Total = 0
}

func (a *TimeAccumulator) AddSample(v time.Duration) {
	a.Samples++
	a.Total += v
}

// AddSince adds the time elapsed since 'start', and returns the current time,
// so that consecutive stages can be chained.
func (a *TimeAccumulator) AddSince(start time.Time) time.Time {
	now := time.Now()
	a.AddSample(now.Sub(start))
	return now
}

func (a *TimeAccumulator) Average() time.Duration {
	if a.Samples == 0 {
		return 0
	}
	return time.Duration(a.Total.Nanoseconds() / a.Samples)
}

// StepTimes measures the stages of a single training step
type StepTimes struct {
	Load     TimeAccumulator
	Forward  TimeAccumulator
	Loss     TimeAccumulator
	Backward TimeAccumulator
	Optimize TimeAccumulator
}

func (s *StepTimes) Reset() {
	s.Load.Reset()
	s.Forward.Reset()
	s.Loss.Reset()
	s.Backward.Reset()
	s.Optimize.Reset()
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// String returns the average time of each stage, in milliseconds
func (s *StepTimes) String() string {
	return fmt.Sprintf("load %.1f ms, forward %.1f ms, loss %.1f ms, backward %.1f ms, optimize %.1f ms",
		ms(s.Load.Average()), ms(s.Forward.Average()), ms(s.Loss.Average()), ms(s.Backward.Average()), ms(s.Optimize.Average()))
}
