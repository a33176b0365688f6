package partitions

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNegotiate(t *testing.T) {
	tcs := []struct {
		Name        string
		Option      Option
		EnvCapacity int
		Expected    int
	}{
		{
			Name:        "optimal fits environment",
			Option:      Option{Minimum: 1, Maximum: 4, Optimal: 2},
			EnvCapacity: 8,
			Expected:    2,
		},
		{
			Name:        "environment caps optimal",
			Option:      Option{Minimum: 1, Maximum: 64, Optimal: 32},
			EnvCapacity: 8,
			Expected:    8,
		},
		{
			Name:        "minimum wins over scarce environment",
			Option:      Option{Minimum: 4, Maximum: 8, Optimal: 8},
			EnvCapacity: 2,
			Expected:    4,
		},
		{
			Name:        "default option on a small machine",
			Option:      DefaultOption(),
			EnvCapacity: 4,
			Expected:    4,
		},
		{
			Name:        "environment brings an oversized optimal into range",
			Option:      Option{Minimum: 1, Maximum: 4, Optimal: 16},
			EnvCapacity: 2,
			Expected:    2,
		},
		{
			Name:        "undersized optimal is raised to minimum",
			Option:      Option{Minimum: 4, Maximum: 8, Optimal: 1},
			EnvCapacity: 16,
			Expected:    4,
		},
	}
	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			n, err := Negotiate(tc.Option, tc.EnvCapacity)
			require.NoError(t, err)
			require.Equal(t, tc.Expected, n)
		})
	}
}

func TestNegotiateRejectsInvalidOptions(t *testing.T) {
	_, err := Negotiate(Option{Minimum: 0, Maximum: 4, Optimal: 2}, 8)
	require.Error(t, err)

	_, err = Negotiate(Option{Minimum: 8, Maximum: 4, Optimal: 4}, 8)
	require.Error(t, err)

	_, err = Negotiate(DefaultOption(), 0)
	require.Error(t, err)
}

func TestNegotiateFailsWhenCapacityForcesOvercap(t *testing.T) {
	_, err := Negotiate(Option{Minimum: 1, Maximum: 4, Optimal: 16}, 8)
	require.Error(t, err)
	require.Contains(t, err.Error(), "exceeds maximum")
}
