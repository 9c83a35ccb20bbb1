package models

import (
	"math"
	"sort"

	"github.com/hashicorp/go-hclog"
)

// NodeSpec describes the fixed characteristics of a fog node
type NodeSpec struct {
	ID          int     `json:"id" yaml:"id"`
	Capacity    float64 `json:"capacity" yaml:"capacity"`         // ceiling on queued load
	Frequency   float64 `json:"frequency" yaml:"frequency"`       // cycles/s
	FailureRate float64 `json:"failure_rate" yaml:"failure_rate"` // compute hazard rate
}

// Validate validates the node spec
func (s NodeSpec) Validate() error {
	var errs ValidationErrors

	errs.AddIf(!finite(s.Capacity) || s.Capacity < 0, "Capacity", s.Capacity, "Capacity must be finite and non-negative")
	errs.AddIf(!finite(s.Frequency) || s.Frequency <= 0, "Frequency", s.Frequency, "Frequency must be > 0")
	errs.AddIf(!finite(s.FailureRate) || s.FailureRate < 0, "FailureRate", s.FailureRate, "FailureRate must be finite and non-negative")

	return errs.Err(ErrInvalidNode)
}

// FogNode is a capacity-limited compute endpoint with a primary and a backup queue.
//
// CurrentLoad always equals the summed Load of every task in both queues and
// never exceeds Capacity. Admit is the only way load goes up.
type FogNode struct {
	spec        NodeSpec
	currentLoad float64
	primary     []*Task
	backup      []*Task
	logger      hclog.Logger
}

// NewFogNode creates an empty node
func NewFogNode(spec NodeSpec, logger hclog.Logger) (*FogNode, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &FogNode{
		spec:   spec,
		logger: logger.With("node", spec.ID),
	}, nil
}

func (n *FogNode) ID() int               { return n.spec.ID }
func (n *FogNode) Spec() NodeSpec        { return n.spec }
func (n *FogNode) Capacity() float64     { return n.spec.Capacity }
func (n *FogNode) Frequency() float64    { return n.spec.Frequency }
func (n *FogNode) FailureRate() float64  { return n.spec.FailureRate }
func (n *FogNode) CurrentLoad() float64  { return n.currentLoad }
func (n *FogNode) PrimaryQueue() []*Task { return append([]*Task(nil), n.primary...) }
func (n *FogNode) BackupQueue() []*Task  { return append([]*Task(nil), n.backup...) }

// Admit enqueues task when it fits in the remaining capacity.
// Nothing changes when it does not.
func (n *FogNode) Admit(task *Task, asBackup bool) bool {
	if n.currentLoad+task.Load > n.spec.Capacity {
		return false
	}
	n.currentLoad += task.Load
	if asBackup {
		n.backup = append(n.backup, task)
	} else {
		n.primary = append(n.primary, task)
	}
	return true
}

// Release removes task from the primary queue, or from the backup queue if it
// is not a primary entry, and returns its load. Releasing a task the node does
// not hold is a no-op and returns false.
func (n *FogNode) Release(task *Task) bool {
	if i := indexOf(n.primary, task); i >= 0 {
		n.primary = removeAt(n.primary, i)
	} else if i := indexOf(n.backup, task); i >= 0 {
		n.backup = removeAt(n.backup, i)
	} else {
		n.logger.Warn("release of task not held by node ignored", "task", task.ID)
		return false
	}

	n.currentLoad -= task.Load
	if len(n.primary) == 0 && len(n.backup) == 0 {
		// drop accumulated float error once the node is empty
		n.currentLoad = 0
	}
	return true
}

// TotalWorkload returns outstanding compute demand in cycles across both queues
func (n *FogNode) TotalWorkload() float64 {
	total := 0.0
	for _, t := range n.primary {
		total += t.Length
	}
	for _, t := range n.backup {
		total += t.Length
	}
	return total
}

// ScheduleByDeadline orders both queues earliest-deadline-first, keeping
// arrival order between equal deadlines
func (n *FogNode) ScheduleByDeadline() {
	byDeadline := func(q []*Task) func(i, j int) bool {
		return func(i, j int) bool { return q[i].Deadline < q[j].Deadline }
	}
	sort.SliceStable(n.primary, byDeadline(n.primary))
	sort.SliceStable(n.backup, byDeadline(n.backup))
}

// Execute schedules by deadline and drains the queues selected by policy,
// releasing every drained task. The drained tasks are returned in execution order.
func (n *FogNode) Execute(policy DrainPolicy) []*Task {
	n.ScheduleByDeadline()

	var queues [][]*Task
	switch {
	case policy == DrainBackupFirst && len(n.backup) > 0:
		queues = [][]*Task{n.backup}
	case policy == DrainBackupFirst:
		queues = [][]*Task{n.primary}
	default:
		queues = [][]*Task{n.primary, n.backup}
	}

	var executed []*Task
	for _, q := range queues {
		// Release mutates the queue, work on a snapshot
		for _, task := range append([]*Task(nil), q...) {
			if n.Release(task) {
				executed = append(executed, task)
			}
		}
	}
	return executed
}

// TaskReliability is the breakdown of one primary task's reliability
type TaskReliability struct {
	TaskID         int     `json:"task_id"`
	Compute        float64 `json:"compute"` // Rc
	Link           float64 `json:"link"`    // Rl
	SinglePath     float64 `json:"single_path"`
	Reliability    float64 `json:"reliability"`
	Delay          float64 `json:"delay"`
	DeadlineMissed bool    `json:"deadline_missed"`
}

// Delay returns the end-to-end delay of task on this node: transmission,
// execution and waiting behind the node's current workload
func (n *FogNode) Delay(task *Task, broker *Broker) float64 {
	return broker.TransmissionDelay(task.Size, 1) +
		task.Length/n.spec.Frequency +
		n.TotalWorkload()/n.spec.Frequency
}

// TaskReliability computes the redundant two-path success probability of task.
// A deadline miss forces the result to zero.
func (n *FogNode) TaskReliability(task *Task, broker *Broker) TaskReliability {
	rc := math.Exp(-n.spec.FailureRate * task.Length / n.spec.Frequency)
	rl := math.Exp(-broker.LinkFailureRate() * task.Size / broker.ChannelCapacity())
	r0 := rc * rl

	tr := TaskReliability{
		TaskID:      task.ID,
		Compute:     rc,
		Link:        rl,
		SinglePath:  r0,
		Reliability: 2*r0 - r0*r0,
		Delay:       n.Delay(task, broker),
	}
	if tr.Delay > task.Deadline {
		tr.Reliability = 0
		tr.DeadlineMissed = true
	}
	return tr
}

// Reliability returns the product of the reliabilities of every task in the
// primary queue, 1 for an empty queue
func (n *FogNode) Reliability(broker *Broker) float64 {
	total := 1.0
	for _, task := range n.primary {
		tr := n.TaskReliability(task, broker)
		total *= tr.Reliability
		n.logger.Trace("task reliability",
			"task", task.ID,
			"rc", tr.Compute,
			"capacity", broker.ChannelCapacity(),
			"rl", tr.Link,
			"r0", tr.SinglePath,
			"reliability", tr.Reliability,
			"deadline_missed", tr.DeadlineMissed,
			"total", total)
	}
	return total
}

// Reset empties both queues and zeroes the load
func (n *FogNode) Reset() {
	n.currentLoad = 0
	n.primary = nil
	n.backup = nil
}

func indexOf(q []*Task, task *Task) int {
	for i, t := range q {
		if t == task {
			return i
		}
	}
	return -1
}

func removeAt(q []*Task, i int) []*Task {
	copy(q[i:], q[i+1:])
	q[len(q)-1] = nil
	return q[:len(q)-1]
}
