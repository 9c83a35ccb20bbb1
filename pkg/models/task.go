package models

import (
	"math"
)

// Unassigned marks a task whose primary or backup node has not been chosen yet
const Unassigned = -1

// Task is one offloading request
type Task struct {
	ID       int     `json:"id"`
	Load     float64 `json:"load"`     // capacity units held while queued
	Size     float64 `json:"size"`     // bytes sent over the broker
	Length   float64 `json:"length"`   // required compute cycles
	Deadline float64 `json:"deadline"` // seconds

	// Set once by the environment at placement time
	Primary int `json:"primary"`
	Backup  int `json:"backup"`
}

// NewTask builds an unassigned task and validates it
func NewTask(id int, load, size, length, deadline float64) (Task, error) {
	t := Task{
		ID:       id,
		Load:     load,
		Size:     size,
		Length:   length,
		Deadline: deadline,
		Primary:  Unassigned,
		Backup:   Unassigned,
	}
	if err := t.Validate(); err != nil {
		return Task{}, err
	}
	return t, nil
}

// Validate validates the task
func (t Task) Validate() error {
	var errs ValidationErrors

	errs.AddIf(!finite(t.Load) || t.Load < 0, "Load", t.Load, "Load must be finite and non-negative")
	errs.AddIf(!finite(t.Size) || t.Size < 0, "Size", t.Size, "Size must be finite and non-negative")
	errs.AddIf(!finite(t.Length) || t.Length <= 0, "Length", t.Length, "Length must be finite and > 0")
	errs.AddIf(!finite(t.Deadline) || t.Deadline <= 0, "Deadline", t.Deadline, "Deadline must be finite and > 0")

	return errs.Err(ErrInvalidTask)
}

// IsAssigned reports whether the environment has stamped both nodes
func (t Task) IsAssigned() bool {
	return t.Primary != Unassigned && t.Backup != Unassigned
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
