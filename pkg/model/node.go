package model

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/corral-dev/corral/pkg/check"
)

// NodeStatus is whether a node accepts new tasks.
type NodeStatus string

const (
	// NodeReady nodes are considered by the scheduler.
	NodeReady NodeStatus = "Ready"
	// NodeNotReady nodes are known but never receive tasks.
	NodeNotReady NodeStatus = "NotReady"
)

// UnmarshalJSON implements json.Unmarshaler.
func (s *NodeStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return errors.Wrap(err, "node status must be a string")
	}
	switch NodeStatus(raw) {
	case NodeReady, NodeNotReady:
		*s = NodeStatus(raw)
		return nil
	default:
		return errors.Errorf("unknown node status %q", raw)
	}
}

// Node is a worker machine that can run tasks.
type Node struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Address         string     `json:"address"`
	Status          NodeStatus `json:"status"`
	TotalMemory     int        `json:"total_memory"`
	TotalCPU        float64    `json:"total_cpu"`
	AvailableMemory int        `json:"available_memory"`
	AvailableCPU    float64    `json:"available_cpu"`
	RegisteredAt    time.Time  `json:"registered_at"`
}

// NewNode returns a NotReady node whose full capacity is available. Nodes are identified by name.
func NewNode(name string, memory int, cpu float64) *Node {
	return &Node{
		ID:              name,
		Name:            name,
		Status:          NodeNotReady,
		TotalMemory:     memory,
		TotalCPU:        cpu,
		AvailableMemory: memory,
		AvailableCPU:    cpu,
	}
}

// Validate implements check.Validatable.
func (n Node) Validate() []error {
	return []error{
		check.NotEmpty(n.Name, "node name must not be empty"),
		check.GreaterThanOrEqualTo(n.TotalMemory, 0, "node memory must not be negative"),
		check.GreaterThanOrEqualTo(n.TotalCPU, 0, "node cpu must not be negative"),
	}
}

// Fits returns true if the node is Ready and has enough available capacity for the task.
func (n Node) Fits(t Task) bool {
	return n.Status == NodeReady &&
		n.AvailableMemory >= t.Memory &&
		n.AvailableCPU >= t.CPU
}

// Reserve takes the task's requested capacity from the node.
func (n *Node) Reserve(t Task) {
	n.AvailableMemory -= t.Memory
	n.AvailableCPU -= t.CPU
}

// Release returns the task's requested capacity to the node, never exceeding its total.
func (n *Node) Release(t Task) {
	n.AvailableMemory += t.Memory
	if n.AvailableMemory > n.TotalMemory {
		n.AvailableMemory = n.TotalMemory
	}
	n.AvailableCPU += t.CPU
	if n.AvailableCPU > n.TotalCPU {
		n.AvailableCPU = n.TotalCPU
	}
}
