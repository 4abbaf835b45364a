package merge

import "github.com/rescale-labs/taskorc/internal/pipeline"

// Mode selects the ffmpeg strategy the merge pipeline stage uses to join
// the downloaded inputs (spec §4.6 commit).
type Mode string

const (
	// ModeConcat uses ffmpeg's concat *protocol* (stream copy, no
	// re-encode) — only safe when every input shares codec parameters.
	ModeConcat Mode = "concat"

	// ModeConcatDemux uses the concat *demuxer* with a complex filter
	// re-encode — for inputs with a single video and single audio stream
	// each, but not byte-identical codec parameters.
	ModeConcatDemux Mode = "concat-demux"

	// ModeComplex names the full filter_complex graph strategy for inputs
	// with multiple or mismatched stream layouts. This package only
	// selects the mode: it runs no ffmpeg command and does not fall back
	// to ModeConcatDemux.
	ModeComplex Mode = "complex"
)

// FileStreams pairs a merge input's on-disk path with its probed streams,
// the unit SelectMode and HasSubtitleCodec reason over.
type FileStreams struct {
	Path    string
	Streams []pipeline.StreamInfo
}

// SelectMode chooses a merge mode by codec homogeneity across inputs
// (spec §4.6): identical codec parameters everywhere gets the cheap
// stream-copy concat; a uniform single-video/single-audio layout gets
// concat-demux; anything else gets complex.
func SelectMode(files []FileStreams) Mode {
	if len(files) == 0 {
		return ModeConcat
	}

	if codecsHomogeneous(files) {
		return ModeConcat
	}
	if allSimpleAV(files) {
		return ModeConcatDemux
	}
	return ModeComplex
}

func codecsHomogeneous(files []FileStreams) bool {
	var videoCodec, audioCodec string
	for i, f := range files {
		v, a := primaryCodecs(f.Streams)
		if i == 0 {
			videoCodec, audioCodec = v, a
			continue
		}
		if v != videoCodec || a != audioCodec {
			return false
		}
	}
	return true
}

func allSimpleAV(files []FileStreams) bool {
	for _, f := range files {
		videoCount, audioCount := 0, 0
		for _, s := range f.Streams {
			switch streamKind(s) {
			case "video":
				videoCount++
			case "audio":
				audioCount++
			}
		}
		if videoCount > 1 || audioCount > 1 {
			return false
		}
	}
	return true
}

func primaryCodecs(streams []pipeline.StreamInfo) (video, audio string) {
	for _, s := range streams {
		switch streamKind(s) {
		case "video":
			if video == "" {
				video = s.CodecName
			}
		case "audio":
			if audio == "" {
				audio = s.CodecName
			}
		}
	}
	return video, audio
}

// streamKind classifies a stream by its ffprobe codec name since
// StreamInfo doesn't carry codec_type (spec §4.4's probe only needed it
// for metadata/thumbnail stages); the subtitle/video/audio codec name
// spaces don't overlap so this is unambiguous in practice.
func streamKind(s pipeline.StreamInfo) string {
	switch s.CodecName {
	case "ass", "ssa", "subrip", "srt", "webvtt", "mov_text":
		return "subtitle"
	case "aac", "mp3", "ac3", "eac3", "flac", "opus", "vorbis", "dts", "truehd", "pcm_s16le":
		return "audio"
	case "":
		return ""
	default:
		return "video"
	}
}

// HasSubtitleCodec reports whether any file carries an ASS/SSA subtitle
// stream (spec §4.6: "extension = .mkv if any input has ASS/SSA
// subtitles, else .mp4").
func HasSubtitleCodec(files []FileStreams) bool {
	for _, f := range files {
		for _, s := range f.Streams {
			if s.CodecName == "ass" || s.CodecName == "ssa" {
				return true
			}
		}
	}
	return false
}
