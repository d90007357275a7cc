package extractor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/far4599/video-downloader-api/internal/apierror"
	"github.com/far4599/video-downloader-api/internal/models"
	"github.com/far4599/video-downloader-api/internal/quality"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

type fakeEngine struct {
	calls   atomic.Int32
	extract func(ctx context.Context, n int32) ([]byte, error)
}

func (e *fakeEngine) Extract(ctx context.Context, _ string) ([]byte, error) {
	return e.extract(ctx, e.calls.Inc())
}

func returning(out string, err error) *fakeEngine {
	return &fakeEngine{
		extract: func(context.Context, int32) ([]byte, error) {
			if err != nil {
				return nil, err
			}
			return []byte(out), nil
		},
	}
}

type mockMerger struct {
	mock.Mock
}

func (m *mockMerger) Merge(ctx context.Context, video, audio models.Format) (string, error) {
	args := m.Called(ctx, video, audio)
	return args.String(0), args.Error(1)
}

func testOptions() Options {
	return Options{
		Timeout:       5 * time.Second,
		MaxAttempts:   3,
		RetryDelay:    time.Millisecond,
		MaxRetryDelay: 4 * time.Millisecond,
	}
}

const testURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

func TestClient_RetriesTransientFailures(t *testing.T) {
	engine := returning("", &EngineError{Message: "Unable to download webpage: HTTP Error 503: Service Unavailable"})

	_, err := NewClient(engine, nil, testOptions()).Extract(context.Background(), testURL, ModeMetadata, quality.Best)
	require.Error(t, err)

	var apiErr *apierror.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, apierror.ExtractionError, apiErr.Kind)
	assert.Equal(t, "Failed to extract video information after 3 attempts", apiErr.Message)
	assert.Equal(t, int32(3), engine.calls.Load())
}

func TestClient_SucceedsAfterRetry(t *testing.T) {
	engine := &fakeEngine{
		extract: func(_ context.Context, n int32) ([]byte, error) {
			if n == 1 {
				return nil, &EngineError{Message: "Connection reset by peer"}
			}
			return []byte(youtubeInfo), nil
		},
	}

	res, err := NewClient(engine, nil, testOptions()).Extract(context.Background(), testURL, ModeMetadata, quality.Best)
	require.NoError(t, err)
	assert.Equal(t, "Never Gonna Give You Up", res.Metadata.Title)
	assert.Equal(t, int32(2), engine.calls.Load())
}

func TestClient_PermanentFailuresAreNotRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
		out  string
		kind apierror.Kind
		msg  string
	}{
		{name: "private", err: &EngineError{Message: "[youtube] x: Private video"}, kind: apierror.VideoUnavailable, msg: apierror.MsgUnavailable},
		{name: "unsupported", err: &EngineError{Message: "Unsupported URL: https://example.com"}, kind: apierror.InvalidURL, msg: apierror.MsgUnsupportedURL},
		{name: "login", err: &EngineError{Message: "login required"}, kind: apierror.AuthRequired, msg: apierror.MsgAuthRequired},
		{name: "malformed output", out: "{not json", kind: apierror.ExtractionError, msg: apierror.MsgMalformed},
		{name: "engine not runnable", err: errors.New("exec: \"yt-dlp\": executable file not found in $PATH"), kind: apierror.ExtractionError, msg: apierror.MsgExtraction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := returning(tt.out, tt.err)

			_, err := NewClient(engine, nil, testOptions()).Extract(context.Background(), testURL, ModeMetadata, quality.Best)
			require.Error(t, err)

			apiErr := apierror.Classify(err)
			assert.Equal(t, tt.kind, apiErr.Kind)
			assert.Equal(t, tt.msg, apiErr.Message)
			assert.Equal(t, int32(1), engine.calls.Load())
		})
	}
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	// ignores cancellation, like a hung subprocess
	engine := &fakeEngine{
		extract: func(context.Context, int32) ([]byte, error) {
			<-release
			return nil, errors.New("too late")
		},
	}

	opts := testOptions()
	opts.Timeout = 50 * time.Millisecond

	start := time.Now()
	_, err := NewClient(engine, nil, opts).Extract(context.Background(), testURL, ModeMetadata, quality.Best)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, apierror.Timeout, apierror.KindOf(err))
	assert.Equal(t, apierror.MsgTimeout, apierror.Classify(err).Message)
	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, int32(1), engine.calls.Load())
}

func TestClient_RetriesStayWithinDeadline(t *testing.T) {
	engine := returning("", &EngineError{Message: "HTTP Error 429: Too Many Requests"})

	opts := testOptions()
	opts.Timeout = 100 * time.Millisecond
	opts.RetryDelay = time.Second
	opts.MaxRetryDelay = time.Second

	start := time.Now()
	_, err := NewClient(engine, nil, opts).Extract(context.Background(), testURL, ModeMetadata, quality.Best)

	require.Error(t, err)
	assert.Equal(t, apierror.Timeout, apierror.KindOf(err))
	assert.Less(t, time.Since(start), 900*time.Millisecond)
	assert.Equal(t, int32(1), engine.calls.Load())
}

func TestClient_Qualities(t *testing.T) {
	res, err := NewClient(returning(youtubeInfo, nil), nil, testOptions()).Extract(context.Background(), testURL, ModeQualities, quality.Best)
	require.NoError(t, err)

	require.NotEmpty(t, res.Qualities)
	assert.Equal(t, "1080p", res.Qualities[0].Quality)
	assert.Nil(t, res.Download)
}

func TestClient_DownloadWithoutMerger(t *testing.T) {
	res, err := NewClient(returning(youtubeInfo, nil), nil, testOptions()).Extract(context.Background(), testURL, ModeDownload, quality.Best)
	require.NoError(t, err)

	dl := res.Download
	require.NotNil(t, dl)
	assert.Equal(t, "Youtube", dl.Platform)
	assert.Equal(t, "Never Gonna Give You Up", dl.Title)
	assert.Equal(t, "https://cdn.example.com/18", dl.DownloadURL)
	assert.Equal(t, "18", dl.FormatID)
	assert.False(t, dl.Merged)
	require.NotNil(t, dl.Duration)
	assert.Equal(t, 212.0, *dl.Duration)
}

func TestClient_DownloadMerges(t *testing.T) {
	merger := &mockMerger{}
	merger.On("Merge", mock.Anything,
		mock.MatchedBy(func(f models.Format) bool { return f.FormatID == "137" }),
		mock.MatchedBy(func(f models.Format) bool { return f.FormatID == "140" }),
	).Return("https://api.example.com/media/abc.mp4", nil).Once()

	res, err := NewClient(returning(youtubeInfo, nil), merger, testOptions()).Extract(context.Background(), testURL, ModeDownload, quality.Best)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com/media/abc.mp4", res.Download.DownloadURL)
	assert.Equal(t, "137+140", res.Download.FormatID)
	assert.True(t, res.Download.Merged)
	merger.AssertExpectations(t)
}

func TestClient_DownloadMergeFails(t *testing.T) {
	merger := &mockMerger{}
	merger.On("Merge", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("ffmpeg exited with 1")).Once()

	_, err := NewClient(returning(youtubeInfo, nil), merger, testOptions()).Extract(context.Background(), testURL, ModeDownload, quality.Height(720))
	require.Error(t, err)

	apiErr := apierror.Classify(err)
	assert.Equal(t, apierror.ExtractionError, apiErr.Kind)
	assert.Equal(t, apierror.MsgMergeFailed, apiErr.Message)
	merger.AssertExpectations(t)
}

func TestClient_NoDownloadURL(t *testing.T) {
	out := `{"title": "Live", "extractor": "twitch:stream", "formats": [{"format_id": "sb", "vcodec": "none", "acodec": "none", "url": "https://x"}]}`

	_, err := NewClient(returning(out, nil), nil, testOptions()).Extract(context.Background(), testURL, ModeDownload, quality.Best)
	require.Error(t, err)
	assert.Equal(t, apierror.NoDownloadURL, apierror.KindOf(err))
}

func TestClient_SameInputSameMetadata(t *testing.T) {
	client := NewClient(returning(youtubeInfo, nil), nil, testOptions())

	first, err := client.Extract(context.Background(), testURL, ModeMetadata, quality.Best)
	require.NoError(t, err)
	second, err := client.Extract(context.Background(), testURL, ModeMetadata, quality.Best)
	require.NoError(t, err)

	assert.Equal(t, first.Metadata, second.Metadata)
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "metadata-only", ModeMetadata.String())
	assert.Equal(t, "list-qualities", ModeQualities.String())
	assert.Equal(t, "resolve-download", ModeDownload.String())
}
