package extractor

import (
	"sort"
	"strings"

	"github.com/far4599/video-downloader-api/internal/models"
	"github.com/pkg/errors"
	"github.com/valyala/fastjson"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	unknownTitle    = "Unknown Title"
	unknownPlatform = "unknown"
)

var audioExts = map[string]bool{
	"m4a":  true,
	"mp3":  true,
	"aac":  true,
	"opus": true,
	"ogg":  true,
	"oga":  true,
	"wav":  true,
	"flac": true,
	"weba": true,
}

type videoInfo struct {
	metadata models.VideoMetadata
	formats  []models.Format
}

func parseInfo(out []byte) (*videoInfo, error) {
	json, err := new(fastjson.Parser).ParseBytes(out)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse engine output")
	}
	if json.Type() != fastjson.TypeObject {
		return nil, errors.Errorf("engine output is %s, not an object", json.Type())
	}

	// a playlist slipped through, describe its first entry
	if getString(json, "_type") == "playlist" {
		entries := json.GetArray("entries")
		if len(entries) == 0 || entries[0].Type() != fastjson.TypeObject {
			return nil, errors.New("engine returned an empty playlist")
		}
		json = entries[0]
	}

	info := &videoInfo{
		metadata: models.VideoMetadata{
			Platform:    normalizePlatform(getString(json, "extractor")),
			Title:       getString(json, "title"),
			Description: optString(json, "description"),
			Thumbnail:   thumbnail(json),
			Duration:    optFloat(json, "duration"),
			Uploader:    optString(json, "uploader", "channel"),
			UploadDate:  optString(json, "upload_date"),
			ViewCount:   optInt(json, "view_count"),
			LikeCount:   optInt(json, "like_count"),
		},
	}
	if info.metadata.Title == "" {
		info.metadata.Title = unknownTitle
	}

	raw := json.GetArray("formats")
	if len(raw) == 0 && getString(json, "url") != "" {
		raw = []*fastjson.Value{json}
	}

	for _, v := range raw {
		f := parseFormat(v)
		if f.URL == "" || !(f.HasVideo || f.HasAudio) {
			continue
		}
		info.formats = append(info.formats, f)
	}

	return info, nil
}

func parseFormat(v *fastjson.Value) models.Format {
	f := models.Format{
		FormatID:     getString(v, "format_id"),
		URL:          getString(v, "url"),
		Ext:          getString(v, "ext"),
		Note:         getString(v, "format_note"),
		VCodec:       getString(v, "vcodec"),
		ACodec:       getString(v, "acodec"),
		Width:        int(v.GetFloat64("width")),
		Height:       int(v.GetFloat64("height")),
		Bitrate:      v.GetFloat64("tbr"),
		AudioBitrate: v.GetFloat64("abr"),
		Filesize:     int64(v.GetFloat64("filesize")),
	}

	if f.Bitrate == 0 {
		f.Bitrate = v.GetFloat64("vbr") + f.AudioBitrate
	}
	if f.Filesize == 0 {
		f.Filesize = int64(v.GetFloat64("filesize_approx"))
	}

	// "none" means the stream is absent; a missing codec is only a guess.
	// Without codec info a format is taken as video if it has dimensions or
	// is a plain file in a video container, and as carrying sound unless a
	// video codec alone is reported.
	videoKnown, audioKnown := f.VCodec != "", f.ACodec != ""
	plainFile := !videoKnown && !audioKnown && !audioExts[f.Ext]
	f.HasVideo = f.VCodec != "none" && (videoKnown || f.Height > 0 || f.Width > 0 || plainFile)
	f.HasAudio = f.ACodec != "none" && (audioKnown || !videoKnown)

	return f
}

// listQualities returns one option per (label, ext, has_audio), video first
// and higher resolutions before lower ones.
func listQualities(formats []models.Format) []models.QualityOption {
	seen := make(map[string]struct{}, len(formats))
	options := make([]models.QualityOption, 0, len(formats))

	for _, f := range formats {
		opt := f.Option()

		key := opt.Quality + "_" + opt.Ext + "_" + boolString(opt.HasAudio)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		options = append(options, opt)
	}

	sort.SliceStable(options, func(i, j int) bool {
		if options[i].HasVideo != options[j].HasVideo {
			return options[i].HasVideo
		}
		return options[i].Height > options[j].Height
	})

	return options
}

func normalizePlatform(extractor string) string {
	platform := strings.TrimSuffix(extractor, ":tab")
	platform = strings.ReplaceAll(platform, "_", " ")
	if platform == "" {
		platform = unknownPlatform
	}

	return cases.Title(language.Und).String(platform)
}

func thumbnail(v *fastjson.Value) *string {
	if s := optString(v, "thumbnail"); s != nil {
		return s
	}

	// the list is ordered worst to best
	thumbs := v.GetArray("thumbnails")
	for i := len(thumbs) - 1; i >= 0; i-- {
		if u := getString(thumbs[i], "url"); u != "" {
			return &u
		}
	}

	return nil
}

func getString(v *fastjson.Value, key string) string {
	return string(v.GetStringBytes(key))
}

func optString(v *fastjson.Value, keys ...string) *string {
	for _, key := range keys {
		if s := getString(v, key); s != "" {
			return &s
		}
	}
	return nil
}

func optFloat(v *fastjson.Value, key string) *float64 {
	n := v.Get(key)
	if n == nil || n.Type() != fastjson.TypeNumber {
		return nil
	}

	f, err := n.Float64()
	if err != nil {
		return nil
	}

	return &f
}

func optInt(v *fastjson.Value, key string) *int64 {
	n := v.Get(key)
	if n == nil || n.Type() != fastjson.TypeNumber {
		return nil
	}

	i, err := n.Int64()
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil {
			return nil
		}
		i = int64(f)
	}

	return &i
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
