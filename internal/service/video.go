package service

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/far4599/video-downloader-api/internal/apierror"
	"github.com/far4599/video-downloader-api/internal/extractor"
	"github.com/far4599/video-downloader-api/internal/models"
	"github.com/far4599/video-downloader-api/internal/pkg/log"
	"github.com/far4599/video-downloader-api/internal/quality"
	"github.com/far4599/video-downloader-api/internal/validator"
)

type Extractor interface {
	Extract(ctx context.Context, url string, mode extractor.Mode, token quality.Token) (*extractor.Result, error)
}

// VideoService runs one request through validation, extraction and
// selection. It keeps no state between requests.
type VideoService struct {
	ex Extractor

	// whether separate video and audio streams can be merged; must match
	// the extractor so /qualities and /download agree
	pairAudio bool
}

func NewVideoService(ex Extractor, pairAudio bool) *VideoService {
	return &VideoService{
		ex:        ex,
		pairAudio: pairAudio,
	}
}

func (s *VideoService) GetVideoInfo(ctx context.Context, req models.VideoRequest) (*models.VideoMetadata, error) {
	url, _, err := s.validate(req, false)
	if err != nil {
		return nil, err
	}

	res, err := s.extract(ctx, url, extractor.ModeMetadata, quality.Best)
	if err != nil {
		return nil, err
	}

	log.Logger.Debugw("request stage", "stage", "responding", "url", log.MaskURL(url), "platform", res.Metadata.Platform)

	return &res.Metadata, nil
}

// GetVideoQualities lists the distinct encodings. With a quality set, only
// the encoding /download would resolve that quality to is returned, together
// with the audio stream it would be muxed with.
func (s *VideoService) GetVideoQualities(ctx context.Context, req models.VideoRequest) (*models.QualitiesResult, error) {
	url, token, err := s.validate(req, true)
	if err != nil {
		return nil, err
	}

	res, err := s.extract(ctx, url, extractor.ModeQualities, token)
	if err != nil {
		return nil, err
	}

	result := &models.QualitiesResult{
		Platform:           res.Metadata.Platform,
		Title:              res.Metadata.Title,
		AvailableQualities: res.Qualities,
	}

	if req.Quality != "" {
		log.Logger.Debugw("request stage", "stage", "selecting", "url", log.MaskURL(url), "quality", token)

		sel, err := quality.Select(res.Formats, token, s.pairAudio)
		if err != nil {
			return nil, s.failed(url, err)
		}

		result.AvailableQualities = []models.QualityOption{sel.Video.Option()}
		if sel.NeedsMerge() {
			result.AvailableQualities = append(result.AvailableQualities, sel.Audio.Option())
		}
	}

	log.Logger.Debugw("request stage", "stage", "responding", "url", log.MaskURL(url), "qualities", len(result.AvailableQualities))

	return result, nil
}

func (s *VideoService) DownloadVideo(ctx context.Context, req models.VideoRequest) (*models.DownloadResult, error) {
	url, token, err := s.validate(req, true)
	if err != nil {
		return nil, err
	}

	res, err := s.extract(ctx, url, extractor.ModeDownload, token)
	if err != nil {
		return nil, err
	}

	dl := res.Download

	log.Logger.Infow("download url resolved",
		"url", log.MaskURL(url),
		"platform", dl.Platform,
		"quality", dl.Quality,
		"format_id", dl.FormatID,
		"size", humanize.Bytes(uint64(dl.Filesize)),
		"merged", dl.Merged,
	)

	return dl, nil
}

func (s *VideoService) validate(req models.VideoRequest, withQuality bool) (string, quality.Token, error) {
	log.Logger.Debugw("request stage", "stage", "validating", "url", log.MaskURL(req.URL))

	url, err := validator.NormalizeURL(req.URL)
	if err != nil {
		return "", quality.Token{}, s.failed(req.URL, err)
	}

	if !withQuality {
		return url, quality.Best, nil
	}

	token, err := quality.ParseToken(req.Quality)
	if err != nil {
		return "", quality.Token{}, s.failed(url, err)
	}

	return url, token, nil
}

func (s *VideoService) extract(ctx context.Context, url string, mode extractor.Mode, token quality.Token) (*extractor.Result, error) {
	log.Logger.Debugw("request stage", "stage", "extracting", "url", log.MaskURL(url), "mode", mode, "quality", token)

	res, err := s.ex.Extract(ctx, url, mode, token)
	if err != nil {
		return nil, s.failed(url, err)
	}

	return res, nil
}

func (s *VideoService) failed(url string, err error) *apierror.Error {
	apiErr := apierror.Classify(err)

	log.Logger.Infow("request failed", "url", log.MaskURL(url), "error_code", apiErr.Kind, "error", err)

	return apiErr
}
