package models

import (
	"strconv"
)

type VideoRequest struct {
	URL     string
	Quality string
}

// VideoMetadata is the normalized subset of what the engine reports.
// Nil pointers mean the engine did not provide the field.
type VideoMetadata struct {
	Platform    string   `json:"platform"`
	Title       string   `json:"title"`
	Description *string  `json:"description"`
	Thumbnail   *string  `json:"thumbnail"`
	Duration    *float64 `json:"duration"`
	Uploader    *string  `json:"uploader"`
	UploadDate  *string  `json:"upload_date"`
	ViewCount   *int64   `json:"view_count"`
	LikeCount   *int64   `json:"like_count"`
}

// Format is a single encoding as reported by the engine.
type Format struct {
	FormatID     string
	URL          string
	Ext          string
	Note         string
	VCodec       string
	ACodec       string
	Width        int
	Height       int
	Bitrate      float64 // total, kbit/s
	AudioBitrate float64 // kbit/s
	Filesize     int64   // 0 when unknown
	HasVideo     bool
	HasAudio     bool
}

func (f Format) Muxed() bool {
	return f.HasVideo && f.HasAudio
}

func (f Format) Label() string {
	switch {
	case f.Height > 0:
		return strconv.Itoa(f.Height) + "p"
	case f.HasAudio && !f.HasVideo:
		return "audio only"
	case f.Note != "":
		return f.Note
	default:
		return "unknown"
	}
}

func (f Format) Option() QualityOption {
	opt := QualityOption{
		FormatID: f.FormatID,
		Quality:  f.Label(),
		Ext:      f.Ext,
		HasAudio: f.HasAudio,
		HasVideo: f.HasVideo,
		Height:   f.Height,
	}
	if f.Filesize > 0 {
		size := f.Filesize
		opt.Filesize = &size
	}
	if opt.Ext == "" {
		opt.Ext = "unknown"
	}

	return opt
}

type QualityOption struct {
	FormatID string `json:"format_id"`
	Quality  string `json:"quality"`
	Ext      string `json:"ext"`
	Filesize *int64 `json:"filesize"`
	HasAudio bool   `json:"has_audio"`
	HasVideo bool   `json:"has_video"`

	Height int `json:"-"`
}

type QualitiesResult struct {
	Platform           string          `json:"platform"`
	Title              string          `json:"title"`
	AvailableQualities []QualityOption `json:"available_qualities"`
}

// DownloadResult carries a direct link that may expire upstream.
type DownloadResult struct {
	Platform    string   `json:"platform"`
	Title       string   `json:"title"`
	Thumbnail   *string  `json:"thumbnail"`
	Duration    *float64 `json:"duration"`
	DownloadURL string   `json:"download_url"`

	FormatID string `json:"-"`
	Quality  string `json:"-"`
	Filesize int64  `json:"-"`
	Merged   bool   `json:"-"`
}
