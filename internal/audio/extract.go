package audio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrNoAudioTrack is returned when the container holds no audio stream.
var ErrNoAudioTrack = errors.New("no audio track in media file")

// ffmpegAvailable caches whether ffmpeg is in PATH (checked once at startup).
var ffmpegAvailable *bool

// CheckFFmpeg checks if ffmpeg and ffprobe are available in PATH.
func CheckFFmpeg() bool {
	if ffmpegAvailable != nil {
		return *ffmpegAvailable
	}
	_, errF := exec.LookPath("ffmpeg")
	_, errP := exec.LookPath("ffprobe")
	avail := errF == nil && errP == nil
	ffmpegAvailable = &avail
	return avail
}

// ExtractOpts controls media decoding.
type ExtractOpts struct {
	// SampleRate forces a decode rate; 0 keeps the source rate.
	SampleRate int
	// MaxDuration truncates the decode; 0 decodes the full stream.
	MaxDuration float64
}

type probeResult struct {
	Streams []struct {
		CodecName  string `json:"codec_name"`
		Channels   int    `json:"channels"`
		SampleRate string `json:"sample_rate"`
	} `json:"streams"`
}

// Extract decodes the first audio stream of path into mono PCM. All
// channels are averaged into one during decode. An unreadable container,
// unsupported codec, or missing audio stream is a hard error — Extract
// never returns an empty buffer for an existing file.
func (e *Extractor) Extract(ctx context.Context, path string, opts ExtractOpts) (*Samples, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("media file: %w", err)
	}
	channels, err := probeAudio(ctx, path)
	if err != nil {
		return nil, err
	}

	wavPath, cleanup, err := e.decodeToWav(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	samples, err := readWav(wavPath)
	if err != nil {
		return nil, err
	}
	samples.Channels = channels
	return samples, nil
}

// Extractor decodes media via ffmpeg. The zero value is usable; TempDir
// overrides where intermediate WAV files land.
type Extractor struct {
	TempDir string
}

func probeAudio(ctx context.Context, path string) (int, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_name,channels,sample_rate",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", filepath.Base(path), err)
	}
	var pr probeResult
	if err := json.Unmarshal(out, &pr); err != nil {
		return 0, fmt.Errorf("ffprobe output: %w", err)
	}
	if len(pr.Streams) == 0 {
		return 0, fmt.Errorf("%s: %w", filepath.Base(path), ErrNoAudioTrack)
	}
	return pr.Streams[0].Channels, nil
}

// tempWavPath reserves an output file for ffmpeg to overwrite, in dir when
// set, else the system temp directory. The returned cleanup removes it.
func tempWavPath(dir, pattern string) (string, func(), error) {
	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", nil, fmt.Errorf("create temp wav: %w", err)
	}
	tmp.Close()
	path := tmp.Name()
	return path, func() { os.Remove(path) }, nil
}

// decodeToWav transcodes the first audio stream to a temp 16-bit mono WAV
// under e.TempDir. The returned cleanup removes the temp file and must run
// on every path.
func (e *Extractor) decodeToWav(ctx context.Context, path string, opts ExtractOpts) (string, func(), error) {
	outPath, cleanup, err := tempWavPath(e.TempDir, "subsync-decode-*.wav")
	if err != nil {
		return "", nil, err
	}

	args := []string{"-y", "-v", "error", "-i", path, "-vn", "-ac", "1"}
	if opts.SampleRate > 0 {
		args = append(args, "-ar", fmt.Sprintf("%d", opts.SampleRate))
	}
	if opts.MaxDuration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.3f", opts.MaxDuration))
	}
	args = append(args, "-acodec", "pcm_s16le", "-f", "wav", outPath)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("ffmpeg decode %s: %w: %s", filepath.Base(path), err, string(out))
	}
	return outPath, cleanup, nil
}

func readWav(path string) (*Samples, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("decoded output is not a valid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read pcm: %w", err)
	}
	if len(buf.Data) == 0 {
		return nil, errors.New("decoded audio stream is empty")
	}
	return fromIntBuffer(buf), nil
}

// fromIntBuffer normalizes 16-bit integer PCM into [-1,1] float64.
func fromIntBuffer(buf *gaudio.IntBuffer) *Samples {
	pcm := make([]float64, len(buf.Data))
	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := 1.0 / float64(int(1)<<(bitDepth-1))
	for i, v := range buf.Data {
		pcm[i] = float64(v) * scale
	}
	rate := buf.Format.SampleRate
	return &Samples{
		PCM:        pcm,
		SampleRate: rate,
		Channels:   buf.Format.NumChannels,
		Duration:   float64(len(pcm)) / float64(rate),
	}
}
