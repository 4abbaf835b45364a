package pipeline

import (
	"context"
	"encoding/json"
	"os/exec"
)

type ffprobeStream struct {
	Index     int               `json:"index"`
	CodecName string            `json:"codec_name"`
	CodecType string            `json:"codec_type"`
	Tags      map[string]string `json:"tags"`
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
}

// probeStreamsImpl shells out to ffprobe -show_streams -of json and
// extracts the fields MetadataStage needs.
func probeStreamsImpl(ctx context.Context, path string) ([]StreamInfo, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_streams",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, err
	}

	streams := make([]StreamInfo, 0, len(parsed.Streams))
	for _, st := range parsed.Streams {
		streams = append(streams, StreamInfo{
			Index:     st.Index,
			CodecName: st.CodecName,
			Language:  st.Tags["language"],
		})
	}
	return streams, nil
}
