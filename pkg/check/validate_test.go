package check

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type leaf struct {
	Value int
}

func (l leaf) Validate() []error {
	return []error{GreaterThan(l.Value, 0, "value must be positive")}
}

type tree struct {
	Name     string
	Leaves   []leaf
	Named    map[string]*leaf
	Optional *leaf
}

func (t *tree) Validate() []error {
	return []error{NotEmpty(t.Name, "name is required")}
}

func TestValidateWalksNestedValues(t *testing.T) {
	valid := tree{
		Name:   "ok",
		Leaves: []leaf{{Value: 1}},
		Named:  map[string]*leaf{"a": {Value: 2}},
	}
	require.NoError(t, Validate(valid))
	require.NoError(t, Validate(&valid))

	invalid := tree{
		Leaves:   []leaf{{Value: 1}, {Value: 0}},
		Named:    map[string]*leaf{"a": {Value: -1}},
		Optional: &leaf{Value: 0},
	}
	err := Validate(invalid)
	require.Error(t, err)

	var verr ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Errors, 4)
	require.Contains(t, err.Error(), "root.Leaves[1]")
	require.Contains(t, err.Error(), "root.Named[a]")
	require.Contains(t, err.Error(), "root.Optional")
	require.Contains(t, err.Error(), "name is required")
}

func TestChecks(t *testing.T) {
	require.NoError(t, True(true))
	require.EqualError(t, True(false, "port %d is busy", 80), "port 80 is busy")
	require.EqualError(t, NotEmpty(""), "value must not be empty")
	require.NoError(t, GreaterThan(0.5, 0.0))
	require.EqualError(t, GreaterThan(0, 0), "0 must be greater than 0")
	require.NoError(t, GreaterThanOrEqualTo(0, 0))
	require.NoError(t, In("best", []string{"best", "worst"}))
	require.EqualError(t, In("fifo", []string{"best", "worst"}), "fifo must be one of [best worst]")
}
