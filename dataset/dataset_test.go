package dataset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBindingEquality(t *testing.T) {
	// separately-declared bindings on the same resource must meet on one
	// graph node regardless of access mode
	a := New("csv:///data/animals.csv", Write)
	b := New("csv:///data/animals.csv", Read)
	c := New("csv:///data/plants.csv", Read)

	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
	require.Equal(t, a.Hash(), b.Hash())
	require.NotEqual(t, a.Hash(), c.Hash())
}

func TestAccessMode(t *testing.T) {
	require.True(t, Read.CanRead())
	require.False(t, Read.CanWrite())
	require.True(t, Write.CanWrite())
	require.False(t, Write.CanRead())
	require.True(t, ReadWrite.CanRead())
	require.True(t, ReadWrite.CanWrite())
}

func TestSetOperations(t *testing.T) {
	x := New("file://x", Write)
	y := New("file://y", Read)
	z := New("file://z", ReadWrite)

	s := NewSet(x, y)
	require.True(t, s.Contains(New("file://x", Read)), "identity drives membership, not access")

	require.True(t, NewSet(x).SubsetOf(s))
	require.False(t, NewSet(z).SubsetOf(s))

	d := NewSet(x, y, z).Difference(NewSet(y))
	require.ElementsMatch(t, []string{"file://x", "file://z"}, d.Identities())

	u := NewSet(x)
	u.Union(NewSet(z))
	require.Equal(t, []string{"file://x", "file://z"}, u.Identities())
}
