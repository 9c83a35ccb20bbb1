package models

import (
	"math"
)

// BrokerParams are the physical parameters of the shared uplink
type BrokerParams struct {
	ProcessingTime    float64 `json:"processing_time" yaml:"processing_time"`       // seconds
	Bandwidth         float64 `json:"bandwidth" yaml:"bandwidth"`                   // Hz
	ChannelGain       float64 `json:"channel_gain" yaml:"channel_gain"`
	TransmissionPower float64 `json:"transmission_power" yaml:"transmission_power"` // W
	Noise             float64 `json:"noise" yaml:"noise"`                           // W
	LinkFailureRate   float64 `json:"link_failure_rate" yaml:"link_failure_rate"`
}

// DefaultBrokerParams returns the uplink used by the reference experiment
func DefaultBrokerParams() BrokerParams {
	return BrokerParams{
		ProcessingTime:    0.1,
		Bandwidth:         50e6,
		ChannelGain:       1,
		TransmissionPower: 1e-3,
		Noise:             1e-10,
		LinkFailureRate:   0.01,
	}
}

// Validate checks that the Shannon capacity is defined and positive
func (p BrokerParams) Validate() error {
	var errs ValidationErrors

	errs.AddIf(!finite(p.ProcessingTime) || p.ProcessingTime < 0, "ProcessingTime", p.ProcessingTime,
		"ProcessingTime must be finite and non-negative")
	errs.AddIf(!finite(p.Bandwidth) || p.Bandwidth <= 0, "Bandwidth", p.Bandwidth,
		"Bandwidth must be > 0")
	errs.AddIf(!finite(p.ChannelGain) || p.ChannelGain <= 0, "ChannelGain", p.ChannelGain,
		"ChannelGain must be > 0")
	errs.AddIf(!finite(p.TransmissionPower) || p.TransmissionPower <= 0, "TransmissionPower", p.TransmissionPower,
		"TransmissionPower must be > 0")
	errs.AddIf(!finite(p.Noise) || p.Noise <= 0, "Noise", p.Noise,
		"Noise must be > 0")
	errs.AddIf(!finite(p.LinkFailureRate) || p.LinkFailureRate < 0, "LinkFailureRate", p.LinkFailureRate,
		"LinkFailureRate must be finite and non-negative")

	if !errs.HasErrors() {
		c := shannonCapacity(p)
		errs.AddIf(!finite(c) || c <= 0, "ChannelCapacity", c, "derived channel capacity must be finite and > 0")
	}

	return errs.Err(ErrInvalidBroker)
}

// Broker models the wireless channel every task crosses to reach its node.
// It is immutable once built.
type Broker struct {
	params   BrokerParams
	capacity float64
}

// NewBroker validates params and precomputes the channel capacity
func NewBroker(params BrokerParams) (*Broker, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Broker{
		params:   params,
		capacity: shannonCapacity(params),
	}, nil
}

// Params returns a copy of the broker parameters
func (b *Broker) Params() BrokerParams {
	return b.params
}

// LinkFailureRate returns the hazard rate of the uplink
func (b *Broker) LinkFailureRate() float64 {
	return b.params.LinkFailureRate
}

// ChannelCapacity returns bandwidth * log2(1 + gain*power/noise) in bits/s
func (b *Broker) ChannelCapacity() float64 {
	return b.capacity
}

// TransmissionDelay returns the time to push taskSize bytes through the broker.
// distance is part of the contract but does not scale the delay.
func (b *Broker) TransmissionDelay(taskSize, distance float64) float64 {
	return b.params.ProcessingTime + taskSize/b.capacity
}

func shannonCapacity(p BrokerParams) float64 {
	return p.Bandwidth * math.Log2(1+p.ChannelGain*p.TransmissionPower/p.Noise)
}
