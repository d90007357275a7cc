package extractor

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/far4599/video-downloader-api/internal/pkg/log"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"
)

var ErrEmptyOutput = errors.New("yt-dlp returned no output")

// YtDlpEngine runs the yt-dlp binary. At most workers processes run at once;
// callers queue under their own deadline.
type YtDlpEngine struct {
	binary        string
	cacheDir      string
	socketTimeout time.Duration

	sem     *semaphore.Weighted
	running *atomic.Int32
}

func NewYtDlpEngine(binary, cacheDir string, workers int64, socketTimeout time.Duration) *YtDlpEngine {
	return &YtDlpEngine{
		binary:        binary,
		cacheDir:      cacheDir,
		socketTimeout: socketTimeout,
		sem:           semaphore.NewWeighted(workers),
		running:       atomic.NewInt32(0),
	}
}

func (e *YtDlpEngine) Extract(ctx context.Context, url string) ([]byte, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)

	running := e.running.Inc()
	defer e.running.Dec()

	log.Logger.Debugw("running yt-dlp", "url", log.MaskURL(url), "running", running)

	args := []string{
		"--dump-single-json",
		"--no-playlist",
		"--no-warnings",
		"--skip-download",
		"--cache-dir", e.cacheDir,
		// provide URL via stdin for security, yt-dlp would read a leading dash as an option
		"--batch-file", "-",
	}
	if e.socketTimeout > 0 {
		args = append(args, "--socket-timeout", strconv.Itoa(int(e.socketTimeout.Seconds())))
	}

	cmd := exec.CommandContext(ctx, e.binary, args...)

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}

	cmd.Stdin = bytes.NewBufferString(url + "\n")
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	runErr := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	if msg := reportedError(stderr.Bytes()); msg != "" {
		return nil, &EngineError{Message: msg}
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			msg := lastLine(stderr.Bytes())
			if msg == "" {
				msg = runErr.Error()
			}
			return nil, &EngineError{Message: msg}
		}
		return nil, errors.Wrap(runErr, "failed to run yt-dlp")
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		return nil, ErrEmptyOutput
	}

	return out, nil
}

// reportedError returns the first "ERROR: " line yt-dlp wrote, without the prefix.
func reportedError(stderr []byte) string {
	const errorPrefix = "ERROR: "

	stderrLineScanner := bufio.NewScanner(bytes.NewReader(stderr))
	for stderrLineScanner.Scan() {
		line := stderrLineScanner.Text()
		if strings.HasPrefix(line, errorPrefix) {
			return line[len(errorPrefix):]
		}
	}

	return ""
}

func lastLine(b []byte) string {
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
