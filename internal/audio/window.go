package audio

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
)

// ExtractWindow cuts a bounded window of the audio stream, transcoded to
// 16kHz mono WAV, the format the transcription service accepts. The
// returned cleanup removes the temp file and is safe to call on every exit
// path, including after errors from the caller.
func ExtractWindow(ctx context.Context, path string, start, duration float64) (string, func(), error) {
	if start < 0 {
		start = 0
	}
	outPath, cleanup, err := tempWavPath("", "subsync-window-*.wav")
	if err != nil {
		return "", nil, err
	}

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y", "-v", "error",
		"-ss", fmt.Sprintf("%.3f", start),
		"-t", fmt.Sprintf("%.3f", duration),
		"-i", path,
		"-vn", "-ac", "1", "-ar", "16000",
		"-acodec", "pcm_s16le", "-f", "wav",
		outPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("ffmpeg window extract %s: %w: %s", filepath.Base(path), err, string(out))
	}
	return outPath, cleanup, nil
}
