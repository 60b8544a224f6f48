package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// ProbeResult carries the stream facts the pipeline needs.
type ProbeResult struct {
	Width        int
	Height       int
	DurationSecs float64
	Format       string
}

// ffprobe prints most numbers as strings inside its JSON, so the wire
// structs keep them as strings and the conversion happens on our side.
type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Duration  string `json:"duration"`
}

type probeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

// ParseProbeJSON decodes ffprobe's -print_format json output. The first
// video stream supplies the dimensions; the container duration wins over
// per-stream durations. Exported so parsing stays testable without the
// binary.
func ParseProbeJSON(data []byte) (*ProbeResult, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode probe output: %w", err)
	}
	res := &ProbeResult{
		Format:       out.Format.FormatName,
		DurationSecs: parseFloat(out.Format.Duration),
	}
	for _, s := range out.Streams {
		if s.CodecType != "video" {
			continue
		}
		res.Width = s.Width
		res.Height = s.Height
		if res.DurationSecs == 0 {
			res.DurationSecs = parseFloat(s.Duration)
		}
		break
	}
	return res, nil
}

// parseFloat handles ffprobe's stringly numbers; bad input maps to zero.
func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// Probe inspects media bytes with ffprobe. The bytes go through a temp
// file because several containers need a seekable input.
func (c *Client) Probe(ctx context.Context, data []byte) (*ProbeResult, error) {
	path, err := writeTemp("magpie-probe-*", data)
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}
	cmd := exec.CommandContext(ctx, c.opts.ProbePath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = killGrace

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe: %w: %s", err, firstLine(stderr.String()))
	}
	return ParseProbeJSON(stdout.Bytes())
}
