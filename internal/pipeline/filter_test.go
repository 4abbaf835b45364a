package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rescale-labs/taskorc/internal/models"
)

func TestNormalizeExtSet(t *testing.T) {
	set := normalizeExtSet([]string{".MP4", "mkv", " .Txt "})
	require.True(t, set["mp4"])
	require.True(t, set["mkv"])
	// note: leading/trailing whitespace is the dispatcher's job to trim,
	// not normalizeExtSet's; an un-trimmed entry simply won't match.
}

func TestExtensionFilterStageEnabled(t *testing.T) {
	s := &ExtensionFilterStage{}
	require.False(t, s.Enabled(models.PipelineOptions{}))

	s.Excluded = []string{"nfo"}
	require.True(t, s.Enabled(models.PipelineOptions{}))
}
