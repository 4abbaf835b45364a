package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescale-labs/taskorc/internal/models"
)

func TestParseCommandMirrorWithFlags(t *testing.T) {
	cmd, err := ParseCommand("/mirror https://example.test/file.bin -up gd -z -n out.bin", "")
	require.NoError(t, err)
	assert.Equal(t, VerbMirror, cmd.Verb)
	assert.Equal(t, "https://example.test/file.bin", cmd.Link)
	assert.Equal(t, "gd", cmd.Flags["-up"])
	assert.Equal(t, "true", cmd.Flags["-z"])
	assert.Equal(t, "out.bin", cmd.Flags["-n"])
}

func TestParseCommandFallsBackToReplyLink(t *testing.T) {
	cmd, err := ParseCommand("/leech -z", "chatmedia:1:2")
	require.NoError(t, err)
	assert.Equal(t, "chatmedia:1:2", cmd.Link)
}

func TestParseCommandBulkSliceSuffix(t *testing.T) {
	cmd, err := ParseCommand("/mirror https://example.test/x -b:2:5", "")
	require.NoError(t, err)
	assert.Equal(t, ":2:5", cmd.Flags["-b"])
}

func TestParseCommandRejectsUnknownVerb(t *testing.T) {
	_, err := ParseCommand("/nope x", "")
	assert.Error(t, err)
}

func TestParseCommandRejectsDanglingValueFlag(t *testing.T) {
	_, err := ParseCommand("/mirror https://example.test/x -up", "")
	assert.Error(t, err)
}

func TestToTaskConfigResolvesDriverAndFlags(t *testing.T) {
	cmd, err := ParseCommand("/leech https://example.test/dir.zip -z -hl -h accept:text/plain", "")
	require.NoError(t, err)

	cfg, err := ToTaskConfig(cmd, 10, 20, 0, ResolveDriverName)
	require.NoError(t, err)
	assert.Equal(t, models.KindLeech, cfg.Kind)
	assert.True(t, cfg.Leech)
	assert.True(t, cfg.Pipeline.Compress)
	assert.True(t, cfg.HybridLeech)
	assert.Equal(t, "httpmulti", cfg.DriverName)
	assert.Equal(t, "text/plain", cfg.HTTPHeaders["accept"])
}

func TestToTaskConfigRejectsUnresolvableLink(t *testing.T) {
	cmd, err := ParseCommand("/mirror not-a-real-link", "")
	require.NoError(t, err)
	_, err = ToTaskConfig(cmd, 1, 1, 0, ResolveDriverName)
	assert.Error(t, err)
}

func TestResolveDriverNameByScheme(t *testing.T) {
	cases := map[string]string{
		"magnet:?xt=urn:btih:abc":          "torrent",
		"s3://bucket/key":                  "driveapi",
		"azure://container/blob":           "driveapi",
		"chatmedia:1:2":                    "chatmedia",
		"https://example.test/file.bin":    "httpmulti",
		"nzb:some-report":                  "usenet",
	}
	for link, want := range cases {
		got, err := ResolveDriverName(link)
		require.NoError(t, err, link)
		assert.Equal(t, want, got, link)
	}
}
