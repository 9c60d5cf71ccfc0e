package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNodeCapacityAccounting(t *testing.T) {
	node := NewNode("worker-1", 1024, 2)
	task := NewTask("web", "nginx", epoch)

	require.False(t, node.Fits(*task), "NotReady nodes never fit")
	node.Status = NodeReady
	require.True(t, node.Fits(*task))

	for i := 0; i < 4; i++ {
		node.Reserve(*task)
	}
	require.Equal(t, 0, node.AvailableMemory)
	require.Equal(t, 0.0, node.AvailableCPU)
	require.False(t, node.Fits(*task))

	node.Release(*task)
	require.True(t, node.Fits(*task))

	for i := 0; i < 10; i++ {
		node.Release(*task)
	}
	require.Equal(t, node.TotalMemory, node.AvailableMemory)
	require.Equal(t, node.TotalCPU, node.AvailableCPU)
}
