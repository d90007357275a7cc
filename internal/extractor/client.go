package extractor

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/dustin/go-humanize"
	"github.com/far4599/video-downloader-api/internal/apierror"
	"github.com/far4599/video-downloader-api/internal/models"
	"github.com/far4599/video-downloader-api/internal/pkg/log"
	"github.com/far4599/video-downloader-api/internal/quality"
	"github.com/pkg/errors"
)

type Mode int

const (
	ModeMetadata Mode = iota
	ModeQualities
	ModeDownload
)

func (m Mode) String() string {
	switch m {
	case ModeQualities:
		return "list-qualities"
	case ModeDownload:
		return "resolve-download"
	default:
		return "metadata-only"
	}
}

// Merger muxes a video-only and an audio-only stream into a single file and
// returns a URL it can be fetched from.
type Merger interface {
	Merge(ctx context.Context, video, audio models.Format) (string, error)
}

type Options struct {
	// Timeout caps a whole Extract call, retries and merging included.
	Timeout       time.Duration
	MaxAttempts   uint
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

type Result struct {
	Metadata  models.VideoMetadata
	Formats   []models.Format
	Qualities []models.QualityOption
	Download  *models.DownloadResult
}

type Client struct {
	engine Engine
	merger Merger
	opts   Options
}

// NewClient builds a client around engine. A nil merger turns off pairing of
// separate audio and video streams.
func NewClient(engine Engine, merger Merger, opts Options) *Client {
	return &Client{
		engine: engine,
		merger: merger,
		opts:   opts,
	}
}

// Extract runs the engine for url under a single deadline and shapes the
// result for mode. Every error it returns is an *apierror.Error.
func (c *Client) Extract(ctx context.Context, url string, mode Mode, token quality.Token) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	info, err := c.fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Metadata: info.metadata,
		Formats:  info.formats,
	}

	switch mode {
	case ModeQualities:
		res.Qualities = listQualities(info.formats)
	case ModeDownload:
		res.Download, err = c.resolveDownload(ctx, info, token)
		if err != nil {
			return nil, err
		}
	}

	return res, nil
}

func (c *Client) fetch(ctx context.Context, url string) (*videoInfo, error) {
	var (
		info     *videoInfo
		attempts uint
	)

	err := retry.Do(
		func() error {
			attempts++

			out, err := c.call(ctx, url)
			if err != nil {
				log.Logger.Debugw("extraction attempt failed", "url", log.MaskURL(url), "attempt", attempts, "error", err)
				return classify(ctx, err)
			}

			parsed, err := parseInfo(out)
			if err != nil {
				return apierror.Wrap(err, apierror.ExtractionError, apierror.MsgMalformed)
			}

			info = parsed

			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.opts.MaxAttempts),
		retry.Delay(c.opts.RetryDelay),
		retry.MaxDelay(c.opts.MaxRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(apierror.IsTransient),
		retry.OnRetry(func(n uint, err error) {
			log.Logger.Warnw("extraction attempt failed", "url", log.MaskURL(url), "attempt", n+1, "error", err)
		}),
	)
	if err == nil {
		return info, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, apierror.Classify(ctxErr)
	}

	classified := apierror.Classify(err)
	if classified.Transient {
		msg := fmt.Sprintf("%s after %d attempts", apierror.MsgExtraction, attempts)
		return nil, apierror.Wrap(err, apierror.ExtractionError, msg)
	}

	return nil, classified
}

// call runs one engine invocation. If the deadline passes first the call is
// abandoned: the engine sees the cancelled context, and if it ignores it the
// result is dropped when it finally arrives.
func (c *Client) call(ctx context.Context, url string) ([]byte, error) {
	type result struct {
		out []byte
		err error
	}

	done := make(chan result, 1)
	go func() {
		out, err := c.engine.Extract(ctx, url)
		done <- result{out: out, err: err}
	}()

	select {
	case res := <-done:
		return res.out, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return apierror.Classify(ctxErr)
	}

	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return apierror.FromEngineMessage(engineErr.Message, err)
	}

	return apierror.Classify(err)
}

func (c *Client) resolveDownload(ctx context.Context, info *videoInfo, token quality.Token) (*models.DownloadResult, error) {
	sel, err := quality.Select(info.formats, token, c.merger != nil)
	if err != nil {
		return nil, err
	}

	res := &models.DownloadResult{
		Platform:    info.metadata.Platform,
		Title:       info.metadata.Title,
		Thumbnail:   info.metadata.Thumbnail,
		Duration:    info.metadata.Duration,
		DownloadURL: sel.Video.URL,
		FormatID:    sel.Video.FormatID,
		Quality:     sel.Video.Label(),
		Filesize:    sel.Video.Filesize,
	}

	if !sel.NeedsMerge() {
		return res, nil
	}

	log.Logger.Infow("merging separate streams",
		"video", sel.Video.FormatID,
		"audio", sel.Audio.FormatID,
		"size", humanize.Bytes(uint64(sel.Video.Filesize+sel.Audio.Filesize)),
	)

	url, err := c.merger.Merge(ctx, sel.Video, *sel.Audio)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, apierror.Classify(ctxErr)
		}
		return nil, apierror.Wrap(err, apierror.ExtractionError, apierror.MsgMergeFailed)
	}

	res.DownloadURL = url
	res.FormatID = sel.Video.FormatID + "+" + sel.Audio.FormatID
	res.Filesize += sel.Audio.Filesize
	res.Merged = true

	return res, nil
}
