package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescale-labs/taskorc/internal/models"
	"github.com/rescale-labs/taskorc/internal/pipeline"
)

func TestStartIsNoOpWhenAlreadyOpen(t *testing.T) {
	m := New()
	origin := models.MessageRef{ChatID: 1, MessageID: 2}

	s1, err := m.Start(7, origin)
	require.NoError(t, err)

	s2, err := m.Start(7, models.MessageRef{ChatID: 1, MessageID: 99})
	assert.ErrorIs(t, err, ErrAlreadyOpen)
	assert.Same(t, s1, s2)
}

func TestAddRejectsDuplicatesAndOverCap(t *testing.T) {
	m := New()
	_, err := m.Start(1, models.MessageRef{})
	require.NoError(t, err)

	_, err = m.Add(1, models.MergeInput{Kind: models.MergeInputURL, URL: "https://x/file.mp4", EstSize: 10})
	require.NoError(t, err)

	_, err = m.Add(1, models.MergeInput{Kind: models.MergeInputURL, URL: "https://x/file.mp4/", EstSize: 10})
	assert.Error(t, err, "trailing-slash-normalized duplicate URL should be rejected")

	_, err = m.Add(1, models.MergeInput{Kind: models.MergeInputURL, URL: "https://x/huge", EstSize: 9 * 1024 * 1024 * 1024})
	assert.Error(t, err, "adding past the 8 GiB cumulative cap should be rejected")
}

func TestAddAutoCommitsAtTwenty(t *testing.T) {
	m := New()
	_, err := m.Start(1, models.MessageRef{})
	require.NoError(t, err)

	var last AddResult
	for i := 0; i < 20; i++ {
		var addErr error
		last, addErr = m.Add(1, models.MergeInput{Kind: models.MergeInputMedia, MessageID: int64(i + 1)})
		require.NoError(t, addErr)
	}

	assert.True(t, last.AutoCommitted)
	assert.Equal(t, models.MergeCommitted, last.Session.State)

	s, ok := m.Get(1)
	require.True(t, ok)
	assert.Equal(t, models.MergeCommitted, s.State)
}

func TestCommitRequiresTwoInputs(t *testing.T) {
	m := New()
	_, err := m.Start(1, models.MessageRef{})
	require.NoError(t, err)

	_, err = m.Add(1, models.MergeInput{Kind: models.MergeInputMedia, MessageID: 1})
	require.NoError(t, err)

	_, _, err = m.Commit(1, models.MergeOptions{})
	assert.Error(t, err)

	_, err = m.Add(1, models.MergeInput{Kind: models.MergeInputMedia, MessageID: 2})
	require.NoError(t, err)

	s, plan, err := m.Commit(1, models.MergeOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.MergeCommitted, s.State)
	assert.Len(t, plan.Inputs, 2)
}

func TestCancelLeavesCommittedSessionsAlone(t *testing.T) {
	m := New()
	_, err := m.Start(1, models.MessageRef{})
	require.NoError(t, err)
	_, err = m.Add(1, models.MergeInput{Kind: models.MergeInputMedia, MessageID: 1})
	require.NoError(t, err)
	_, err = m.Add(1, models.MergeInput{Kind: models.MergeInputMedia, MessageID: 2})
	require.NoError(t, err)

	_, _, err = m.Commit(1, models.MergeOptions{})
	require.NoError(t, err)

	err = m.Cancel(1)
	assert.Error(t, err, "cancel must not touch an already-committed session")
}

func TestDetectOutputNameSeriesPattern(t *testing.T) {
	names := []string{"Show.Name.S01E01.mkv", "Show.Name.S01E03.mkv", "Show.Name.S01E02.mkv"}
	got := DetectOutputName(names, "")
	assert.Equal(t, "Show Name S01E01-E03", got)
}

func TestDetectOutputNamePartPattern(t *testing.T) {
	names := []string{"Movie Part 1.mp4", "Movie Part 2.mp4"}
	got := DetectOutputName(names, "")
	assert.Equal(t, "Movie Part 01-02", got)
}

func TestDetectOutputNameFallback(t *testing.T) {
	names := []string{"clip_a.mp4", "clip_b.mp4"}
	got := DetectOutputName(names, "clip_a_merged")
	assert.Equal(t, "clip_a_merged", got)
}

func TestDetectOutputNameFallbackNoPattern(t *testing.T) {
	names := []string{"random.mp4", "other.mp4"}
	got := DetectOutputName(names, "")
	assert.Equal(t, "random_merged", got)
}

func TestResolveExtension(t *testing.T) {
	assert.Equal(t, "name.mkv", ResolveExtension("name", true))
	assert.Equal(t, "name.mp4", ResolveExtension("name", false))
	assert.Equal(t, "name.mkv", ResolveExtension("name.mp4", true))
}

func TestSelectModeHomogeneousIsConcat(t *testing.T) {
	files := []FileStreams{
		{Streams: streams("h264", "aac")},
		{Streams: streams("h264", "aac")},
	}
	assert.Equal(t, ModeConcat, SelectMode(files))
}

func TestSelectModeSimpleMismatchIsConcatDemux(t *testing.T) {
	files := []FileStreams{
		{Streams: streams("h264", "aac")},
		{Streams: streams("hevc", "ac3")},
	}
	assert.Equal(t, ModeConcatDemux, SelectMode(files))
}

func TestSelectModeMultiTrackIsComplex(t *testing.T) {
	multi := streams("h264", "aac")
	multi = append(multi, streams("h264", "opus")...)
	files := []FileStreams{
		{Streams: multi},
		{Streams: streams("hevc", "ac3")},
	}
	assert.Equal(t, ModeComplex, SelectMode(files))
}

func streams(video, audio string) []pipeline.StreamInfo {
	return []pipeline.StreamInfo{
		{CodecName: video},
		{CodecName: audio},
	}
}
