package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lecture-avatar/pkg/pyexec"
)

var ErrVideoNotFound = errors.New("generated video file not found")

// VideoOptions tune one face-animation run.
type VideoOptions struct {
	Preprocess      string // crop, resize, full
	Still           bool
	UseEnhancer     bool
	BatchSize       int
	Size            int
	PoseStyle       int
	ExpressionScale float64
}

func (o VideoOptions) withDefaults() VideoOptions {
	if o.Preprocess == "" {
		o.Preprocess = "crop"
	}
	if o.BatchSize == 0 {
		o.BatchSize = 1
	}
	if o.Size == 0 {
		o.Size = 256
	}
	if o.ExpressionScale == 0 {
		o.ExpressionScale = 1.0
	}
	return o
}

// VideoSynthesizer turns a portrait and an audio track into a lip-synced
// talking-head clip.
type VideoSynthesizer interface {
	Synthesize(ctx context.Context, portraitPath, audioPath, outputPath string, opts VideoOptions) (string, error)
}

type sadTalker struct {
	python string
	dir    string // checkout containing inference.py
	device string
	runner pyexec.Runner
}

func NewVideoSynthesizer(python, dir, device string, runner pyexec.Runner) VideoSynthesizer {
	if python == "" {
		python = "python3"
	}
	if device == "" {
		device = "cpu"
	}
	return &sadTalker{python: python, dir: dir, device: device, runner: runner}
}

func (v *sadTalker) Synthesize(ctx context.Context, portraitPath, audioPath, outputPath string, opts VideoOptions) (string, error) {
	if _, err := os.Stat(portraitPath); err != nil {
		return "", fmt.Errorf("portrait image not found: %s", portraitPath)
	}
	if _, err := os.Stat(audioPath); err != nil {
		return "", fmt.Errorf("audio file not found: %s", audioPath)
	}

	if outputPath == "" {
		outputPath = filepath.Join(os.TempDir(), fmt.Sprintf("avatar_%s.mp4", uuid.NewString()))
	}
	resultDir := filepath.Dir(outputPath)
	if err := os.MkdirAll(resultDir, 0o755); err != nil {
		return "", err
	}

	opts = opts.withDefaults()

	args := []string{
		filepath.Join(v.dir, "inference.py"),
		"--driven_audio", audioPath,
		"--source_image", portraitPath,
		"--result_dir", resultDir,
		"--preprocess", opts.Preprocess,
		"--size", strconv.Itoa(opts.Size),
		"--pose_style", strconv.Itoa(opts.PoseStyle),
		"--expression_scale", strconv.FormatFloat(opts.ExpressionScale, 'f', -1, 64),
		"--batch_size", strconv.Itoa(opts.BatchSize),
	}
	if opts.Still {
		args = append(args, "--still")
	}
	if opts.UseEnhancer {
		args = append(args, "--enhancer", "gfpgan")
	}
	if v.device == "cpu" {
		args = append(args, "--cpu")
	}

	zerolog.Ctx(ctx).Info().Str("portrait", portraitPath).Str("audio", audioPath).Msg("generating talking-head video")
	res, err := v.runner.Run(ctx, v.dir, v.python, args...)
	if err != nil {
		return "", fmt.Errorf("video synthesis failed: %s", strings.TrimSpace(res.Stderr))
	}

	// The model writes its output under a self-chosen nested path.
	stem := strings.TrimSuffix(filepath.Base(portraitPath), filepath.Ext(portraitPath))
	generated := findGeneratedVideo(resultDir, stem)
	if generated == "" {
		return "", ErrVideoNotFound
	}
	if generated != outputPath {
		if err := os.Rename(generated, outputPath); err != nil {
			return "", fmt.Errorf("failed to move generated video: %w", err)
		}
	}

	zerolog.Ctx(ctx).Info().Str("output", outputPath).Msg("video generated")
	return outputPath, nil
}

// findGeneratedVideo searches resultDir recursively, preferring files named
// after the portrait and taking the newest when several match.
func findGeneratedVideo(resultDir, imageStem string) string {
	type candidate struct {
		path    string
		modTime time.Time
	}
	var stemMatches, all []candidate

	_ = filepath.WalkDir(resultDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".mp4") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}

		c := candidate{path: path, modTime: info.ModTime()}
		if strings.HasPrefix(filepath.Base(path), imageStem) {
			stemMatches = append(stemMatches, c)
		}
		all = append(all, c)
		return nil
	})

	newest := func(cands []candidate) string {
		var best candidate
		for _, c := range cands {
			if best.path == "" || c.modTime.After(best.modTime) {
				best = c
			}
		}
		return best.path
	}
	if p := newest(stemMatches); p != "" {
		return p
	}
	return newest(all)
}
