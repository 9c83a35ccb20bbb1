package models

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// NodeObservation is what the controller sees of one node at decision time
type NodeObservation struct {
	Reliability float64 `json:"reliability"` // [0,1]
	Workload    float64 `json:"workload"`    // outstanding cycles
}

// State is the global observation, one entry per node in node order
type State []NodeObservation

// Reliabilities returns the per-node reliabilities in node order
func (s State) Reliabilities() []float64 {
	out := make([]float64, len(s))
	for i, o := range s {
		out[i] = o.Reliability
	}
	return out
}

// Workloads returns the per-node workloads in node order
func (s State) Workloads() []float64 {
	out := make([]float64, len(s))
	for i, o := range s {
		out[i] = o.Workload
	}
	return out
}

// Reliability is the product of every node's reliability, 1 for an empty state
func (s State) Reliability() float64 {
	if len(s) == 0 {
		return 1
	}
	return floats.Prod(s.Reliabilities())
}

// WorkloadImbalance is the mean absolute deviation of node workloads from their mean
func (s State) WorkloadImbalance() float64 {
	if len(s) == 0 {
		return 0
	}
	w := s.Workloads()
	mean := stat.Mean(w, nil)
	dev := 0.0
	for _, v := range w {
		dev += math.Abs(v - mean)
	}
	return dev / float64(len(w))
}
