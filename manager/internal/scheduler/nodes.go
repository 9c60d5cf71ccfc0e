package scheduler

import (
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/corral-dev/corral/pkg/model"
)

// Nodes tracks the nodes known to the manager and the capacity reserved on each.
type Nodes struct {
	clock clockwork.Clock

	mu    sync.Mutex
	nodes map[string]*model.Node
}

// NewNodes returns an empty node registry.
func NewNodes(clock clockwork.Clock) *Nodes {
	return &Nodes{clock: clock, nodes: make(map[string]*model.Node)}
}

// Register adds a node, or refreshes its address and capacity if it is already known, and marks
// it Ready. Capacity already reserved on a re-registered node stays reserved.
func (n *Nodes) Register(name, address string, memory int, cpu float64) model.Node {
	n.mu.Lock()
	defer n.mu.Unlock()

	node, ok := n.nodes[name]
	if !ok {
		node = model.NewNode(name, memory, cpu)
		node.RegisteredAt = n.clock.Now().UTC()
		n.nodes[name] = node
	} else {
		usedMemory := node.TotalMemory - node.AvailableMemory
		usedCPU := node.TotalCPU - node.AvailableCPU
		node.TotalMemory, node.TotalCPU = memory, cpu
		node.AvailableMemory, node.AvailableCPU = memory-usedMemory, cpu-usedCPU
	}
	node.Address = address
	node.Status = model.NodeReady
	return *node
}

// List returns a snapshot of every node sorted by name.
func (n *Nodes) List() []model.Node {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]model.Node, 0, len(n.nodes))
	for _, node := range n.nodes {
		out = append(out, *node)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns a snapshot of one node.
func (n *Nodes) Get(id string) (model.Node, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	node, ok := n.nodes[id]
	if !ok {
		return model.Node{}, false
	}
	return *node, true
}

// Reserve takes the task's requested capacity from a known node. Unknown nodes are ignored.
func (n *Nodes) Reserve(id string, task model.Task) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if node, ok := n.nodes[id]; ok {
		node.Reserve(task)
	}
}

// Release returns the task's requested capacity to a known node.
func (n *Nodes) Release(id string, task model.Task) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if node, ok := n.nodes[id]; ok {
		node.Release(task)
	}
}
