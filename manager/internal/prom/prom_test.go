package prom

import (
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestErrCount(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	parse := func(s string) (err error) {
		defer ErrCount(m.SweepErrors, &err)
		_, err = strconv.Atoi(s)
		return err
	}
	require.NoError(t, parse("1"))
	require.Error(t, parse("abc"))
	require.Equal(t, 1.0, testutil.ToFloat64(m.SweepErrors))
}

func TestTime(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	func() {
		defer Time(m.SweepDuration)()
	}()
	require.Equal(t, 1, testutil.CollectAndCount(m.SweepDuration))

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	require.Contains(t, names, "corral_scheduler_sweep_seconds")
}
