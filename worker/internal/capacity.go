package internal

import (
	units "github.com/docker/go-units"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"

	"github.com/corral-dev/corral/worker/internal/options"
)

// Capacity is what a node offers to the scheduler.
type Capacity struct {
	// Memory in MB.
	Memory int
	CPU    float64
}

// detectCapacity reports the host's logical cores and total memory. Values set in opts take
// precedence and skip detection.
func detectCapacity(opts options.Options) (Capacity, error) {
	c := Capacity{Memory: opts.TotalMemory, CPU: opts.TotalCPU}

	if c.CPU == 0 {
		switch count, err := cpu.Counts(true); {
		case err != nil:
			return Capacity{}, errors.Wrap(err, "error while gathering CPU info")
		case count == 0:
			return Capacity{}, errors.New("no CPUs detected")
		default:
			c.CPU = float64(count)
		}
	}

	if c.Memory == 0 {
		vm, err := mem.VirtualMemory()
		if err != nil {
			return Capacity{}, errors.Wrap(err, "error while gathering memory info")
		}
		c.Memory = int(vm.Total / units.MiB)
	}
	return c, nil
}
