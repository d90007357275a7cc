package extractor

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/far4599/video-downloader-api/internal/models"
	"github.com/far4599/video-downloader-api/internal/pkg/log"
	"github.com/pkg/errors"
)

// MediaStore hands out paths for merged files and registers them once
// written.
type MediaStore interface {
	Reserve() (id, path, tmpPath string)
	Add(id, path string)
}

// FFmpegMerger muxes two remote streams with ffmpeg without re-encoding.
type FFmpegMerger struct {
	binary  string
	baseURL string
	store   MediaStore
}

func NewFFmpegMerger(binary, baseURL string, store MediaStore) *FFmpegMerger {
	return &FFmpegMerger{
		binary:  binary,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		store:   store,
	}
}

func (m *FFmpegMerger) Merge(ctx context.Context, video, audio models.Format) (string, error) {
	id, path, tmpPath := m.store.Reserve()

	args := []string{
		"-nostdin",
		"-y",
		"-loglevel", "error",
		"-i", video.URL,
		"-i", audio.URL,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c", "copy",
		"-movflags", "+faststart",
		"-f", "mp4",
		tmpPath,
	}

	var stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, m.binary, args...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		_ = os.Remove(tmpPath)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", errors.Wrapf(err, "ffmpeg failed: %s", lastLine(stderr.Bytes()))
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return "", errors.Wrap(err, "failed to move merged file")
	}

	m.store.Add(id, path)

	if fi, err := os.Stat(path); err == nil {
		log.Logger.Infow("streams merged", "id", id, "size", humanize.Bytes(uint64(fi.Size())))
	}

	return m.baseURL + "/media/" + id + ".mp4", nil
}
