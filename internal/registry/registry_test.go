package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rescale-labs/taskorc/internal/models"
)

func TestPutGetRemove(t *testing.T) {
	r := New()
	_, ok := r.Get("t1")
	require.False(t, ok)

	r.Put("t1", models.StatusEntry{TaskID: "t1", Phase: models.PhaseDownloading})
	s, ok := r.Get("t1")
	require.True(t, ok)
	require.Equal(t, models.PhaseDownloading, s.Phase)

	r.Remove("t1")
	_, ok = r.Get("t1")
	require.False(t, ok)

	// Remove on a missing id is a no-op.
	r.Remove("t1")
}

func TestSnapshotInsertionOrder(t *testing.T) {
	r := New()
	r.Put("a", models.StatusEntry{TaskID: "a"})
	r.Put("b", models.StatusEntry{TaskID: "b"})
	r.Put("c", models.StatusEntry{TaskID: "c"})
	r.Put("a", models.StatusEntry{TaskID: "a", Phase: models.PhaseUploading}) // replace, not re-insert

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	require.Equal(t, []string{"a", "b", "c"}, []string{snap[0].TaskID, snap[1].TaskID, snap[2].TaskID})
	require.Equal(t, models.PhaseUploading, snap[0].Phase)
}

func TestSnapshotTolerantOfMissingID(t *testing.T) {
	r := New()
	r.Put("a", models.StatusEntry{TaskID: "a"})
	r.Put("b", models.StatusEntry{TaskID: "b"})
	r.Remove("a")
	require.Len(t, r.Snapshot(), 1)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := "task"
			r.Put(id, models.StatusEntry{TaskID: id, Progress: float64(n)})
			r.Get(id)
			r.Snapshot()
		}(i)
	}
	wg.Wait()
	require.Equal(t, 1, r.Len())
}
