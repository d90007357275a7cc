package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const youtubeInfo = `{
	"id": "dQw4w9WgXcQ",
	"title": "Never Gonna Give You Up",
	"extractor": "youtube",
	"description": "The official video",
	"thumbnail": "https://i.ytimg.com/vi/dQw4w9WgXcQ/maxresdefault.jpg",
	"duration": 212,
	"channel": "Rick Astley",
	"upload_date": "20091025",
	"view_count": 1500000000,
	"like_count": 17000000,
	"formats": [
		{"format_id": "sb0", "url": "https://i.ytimg.com/sb/0", "ext": "mhtml", "vcodec": "none", "acodec": "none", "format_note": "storyboard"},
		{"format_id": "139", "url": "https://cdn.example.com/139", "ext": "m4a", "vcodec": "none", "acodec": "mp4a.40.5", "abr": 48.8, "tbr": 48.8, "filesize": 1290000},
		{"format_id": "140", "url": "https://cdn.example.com/140", "ext": "m4a", "vcodec": "none", "acodec": "mp4a.40.2", "abr": 129.5, "tbr": 129.5, "filesize": 3440000},
		{"format_id": "251", "url": "https://cdn.example.com/251", "ext": "webm", "vcodec": "none", "acodec": "opus", "abr": 135.1, "tbr": 135.1},
		{"format_id": "18", "url": "https://cdn.example.com/18", "ext": "mp4", "vcodec": "avc1.42001E", "acodec": "mp4a.40.2", "width": 640, "height": 360, "tbr": 503.1, "filesize_approx": 13350000},
		{"format_id": "136", "url": "https://cdn.example.com/136", "ext": "mp4", "vcodec": "avc1.4d401f", "acodec": "none", "width": 1280, "height": 720, "tbr": 1154.2, "filesize": 30650000},
		{"format_id": "247", "url": "https://cdn.example.com/247", "ext": "webm", "vcodec": "vp9", "acodec": "none", "width": 1280, "height": 720, "tbr": 1020.5},
		{"format_id": "137", "url": "https://cdn.example.com/137", "ext": "mp4", "vcodec": "avc1.640028", "acodec": "none", "width": 1920, "height": 1080, "tbr": 2400.6, "filesize": 63720000},
		{"format_id": "399", "ext": "mp4", "vcodec": "av01.0.08M.08", "acodec": "none", "width": 1920, "height": 1080}
	]
}`

func TestParseInfo(t *testing.T) {
	info, err := parseInfo([]byte(youtubeInfo))
	require.NoError(t, err)

	meta := info.metadata
	assert.Equal(t, "Youtube", meta.Platform)
	assert.Equal(t, "Never Gonna Give You Up", meta.Title)
	require.NotNil(t, meta.Description)
	assert.Equal(t, "The official video", *meta.Description)
	require.NotNil(t, meta.Duration)
	assert.Equal(t, 212.0, *meta.Duration)
	require.NotNil(t, meta.Uploader)
	assert.Equal(t, "Rick Astley", *meta.Uploader)
	require.NotNil(t, meta.ViewCount)
	assert.Equal(t, int64(1500000000), *meta.ViewCount)
	require.NotNil(t, meta.LikeCount)
	assert.Equal(t, int64(17000000), *meta.LikeCount)

	ids := make([]string, 0, len(info.formats))
	for _, f := range info.formats {
		ids = append(ids, f.FormatID)
	}
	// storyboards carry no stream and 399 has no url
	assert.Equal(t, []string{"139", "140", "251", "18", "136", "247", "137"}, ids)

	f18 := info.formats[3]
	assert.True(t, f18.Muxed())
	assert.Equal(t, int64(13350000), f18.Filesize)

	f140 := info.formats[1]
	assert.True(t, f140.HasAudio)
	assert.False(t, f140.HasVideo)
}

func TestParseInfo_MissingFields(t *testing.T) {
	info, err := parseInfo([]byte(`{"url": "https://cdn.example.com/v.mp4", "ext": "mp4"}`))
	require.NoError(t, err)

	meta := info.metadata
	assert.Equal(t, "Unknown", meta.Platform)
	assert.Equal(t, "Unknown Title", meta.Title)
	assert.Nil(t, meta.Description)
	assert.Nil(t, meta.Thumbnail)
	assert.Nil(t, meta.Duration)
	assert.Nil(t, meta.Uploader)
	assert.Nil(t, meta.UploadDate)
	assert.Nil(t, meta.ViewCount)
	assert.Nil(t, meta.LikeCount)

	// no format list: the top level url is the only format
	require.Len(t, info.formats, 1)
	assert.Equal(t, "https://cdn.example.com/v.mp4", info.formats[0].URL)
	assert.True(t, info.formats[0].Muxed())

	audio, err := parseInfo([]byte(`{"url": "https://cdn.example.com/a.mp3", "ext": "mp3"}`))
	require.NoError(t, err)
	require.Len(t, audio.formats, 1)
	assert.False(t, audio.formats[0].HasVideo)
	assert.True(t, audio.formats[0].HasAudio)
}

func TestParseInfo_Playlist(t *testing.T) {
	info, err := parseInfo([]byte(`{"_type": "playlist", "entries": [{"title": "First", "extractor": "vimeo", "thumbnails": [{"url": "https://i/1.jpg"}, {"url": "https://i/2.jpg"}]}]}`))
	require.NoError(t, err)
	assert.Equal(t, "First", info.metadata.Title)
	assert.Equal(t, "Vimeo", info.metadata.Platform)
	require.NotNil(t, info.metadata.Thumbnail)
	assert.Equal(t, "https://i/2.jpg", *info.metadata.Thumbnail)

	_, err = parseInfo([]byte(`{"_type": "playlist", "entries": []}`))
	assert.Error(t, err)
}

func TestParseInfo_Malformed(t *testing.T) {
	for _, out := range []string{"", "not json", "[1,2]", `"string"`} {
		_, err := parseInfo([]byte(out))
		assert.Error(t, err, out)
	}
}

func TestNormalizePlatform(t *testing.T) {
	tests := map[string]string{
		"youtube":        "Youtube",
		"youtube:tab":    "Youtube",
		"TikTok":         "Tiktok",
		"vimeo_ondemand": "Vimeo Ondemand",
		"":               "Unknown",
	}

	for in, want := range tests {
		assert.Equal(t, want, normalizePlatform(in), in)
	}
}

func TestListQualities(t *testing.T) {
	info, err := parseInfo([]byte(youtubeInfo))
	require.NoError(t, err)

	options := listQualities(info.formats)

	labels := make([]string, 0, len(options))
	for _, o := range options {
		labels = append(labels, o.Quality+"/"+o.Ext)
	}
	assert.Equal(t, []string{
		"1080p/mp4",
		"720p/mp4",
		"720p/webm",
		"360p/mp4",
		"audio only/m4a",
		"audio only/webm",
	}, labels)

	for _, o := range options {
		assert.True(t, o.HasAudio || o.HasVideo)
	}

	assert.Nil(t, options[len(options)-1].Filesize)
	require.NotNil(t, options[0].Filesize)
	assert.Equal(t, int64(63720000), *options[0].Filesize)
}
