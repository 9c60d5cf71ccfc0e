package scheduler

import (
	"fmt"

	"github.com/corral-dev/corral/manager/internal/config"
	"github.com/corral-dev/corral/pkg/model"
)

// NodeSelector picks the node a Pending task should be assigned to.
type NodeSelector interface {
	// SelectNode returns the chosen node's ID, or false if no node can take the task now.
	SelectNode(task model.Task, nodes []model.Node) (string, bool)
}

// HardConstraint is a condition a node must satisfy to be considered for a task.
type HardConstraint func(task model.Task, node model.Node) bool

// SoftConstraint scores a node for a task between 0 and 1; the highest score wins.
type SoftConstraint func(task model.Task, node model.Node) float64

// Hard Constraints

func readySatisfied(_ model.Task, node model.Node) bool {
	return node.Status == model.NodeReady
}

func capacitySatisfied(task model.Task, node model.Node) bool {
	return node.Fits(task)
}

// Soft Constraints

// remaining is the share of the node left free once the task is placed, averaged over memory
// and cpu.
func remaining(task model.Task, node model.Node) float64 {
	share := func(available, total float64) float64 {
		if total <= 0 {
			return 0
		}
		return available / total
	}
	mem := share(float64(node.AvailableMemory-task.Memory), float64(node.TotalMemory))
	cpu := share(node.AvailableCPU-task.CPU, node.TotalCPU)
	return (mem + cpu) / 2
}

// BestFit prefers the node that will have the least capacity left, packing tasks tightly.
func BestFit(task model.Task, node model.Node) float64 {
	return 1.0 - remaining(task, node)
}

// WorstFit prefers the node that will have the most capacity left, spreading tasks out.
func WorstFit(task model.Task, node model.Node) float64 {
	return remaining(task, node)
}

// fitSelector chooses among the nodes that pass every hard constraint by score. Ties go to the
// node that sorts first by name.
type fitSelector struct {
	hard []HardConstraint
	soft SoftConstraint
}

func (f fitSelector) SelectNode(task model.Task, nodes []model.Node) (string, bool) {
	var (
		best      string
		bestScore float64
		found     bool
	)
	for _, node := range candidates(task, nodes, f.hard) {
		score := f.soft(task, node)
		if !found || score > bestScore || (score == bestScore && node.Name < best) {
			best, bestScore, found = node.ID, score, true
		}
	}
	return best, found
}

// staticSelector always picks the same node, whether or not it has registered.
type staticSelector struct {
	node string
}

func (s staticSelector) SelectNode(model.Task, []model.Node) (string, bool) {
	return s.node, true
}

// roundRobinSelector cycles through the eligible nodes in name order. It is used by a single
// scheduler goroutine.
type roundRobinSelector struct {
	hard []HardConstraint
	last string
}

func (r *roundRobinSelector) SelectNode(task model.Task, nodes []model.Node) (string, bool) {
	eligible := candidates(task, nodes, r.hard)
	if len(eligible) == 0 {
		return "", false
	}
	next := eligible[0]
	for _, node := range eligible {
		if node.Name > r.last {
			next = node
			break
		}
	}
	r.last = next.Name
	return next.ID, true
}

func candidates(task model.Task, nodes []model.Node, hard []HardConstraint) []model.Node {
	var out []model.Node
outer:
	for _, node := range nodes {
		for _, c := range hard {
			if !c(task, node) {
				continue outer
			}
		}
		out = append(out, node)
	}
	return out
}

// MakeNodeSelector returns the selector for a fitting policy. Nodes must be passed to it sorted
// by name.
func MakeNodeSelector(cfg config.SchedulerConfig) NodeSelector {
	hard := []HardConstraint{readySatisfied, capacitySatisfied}
	switch cfg.FittingPolicy {
	case config.StaticFittingPolicy:
		return staticSelector{node: cfg.DefaultNode}
	case config.BestFittingPolicy:
		return fitSelector{hard: hard, soft: BestFit}
	case config.WorstFittingPolicy:
		return fitSelector{hard: hard, soft: WorstFit}
	case config.RoundRobinFittingPolicy:
		return &roundRobinSelector{hard: hard}
	default:
		panic(fmt.Sprintf("invalid fitting policy: %s", cfg.FittingPolicy))
	}
}
