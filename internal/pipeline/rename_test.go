package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplySubstitutionBasic(t *testing.T) {
	out, err := applySubstitution("movie.a.mkv", "a/b")
	require.NoError(t, err)
	require.Equal(t, "movie.b.mkv", out)
}

// TestApplySubstitutionIdempotent covers spec §8's round-trip property:
// applying an (a -> b) substitution twice on an already-substituted name
// is a no-op, because the second pass no longer finds "a" to replace.
func TestApplySubstitutionIdempotent(t *testing.T) {
	once, err := applySubstitution("movie.a.mkv", "a/b")
	require.NoError(t, err)

	twice, err := applySubstitution(once, "a/b")
	require.NoError(t, err)
	require.Equal(t, once, twice)
}

func TestStripWWWPrefix(t *testing.T) {
	require.Equal(t, "example.com.mkv", stripWWWPrefix("www.example.com.mkv"))
	require.Equal(t, "example.com.mkv", stripWWWPrefix("example.com.mkv"))
}
