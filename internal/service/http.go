package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/far4599/video-downloader-api/internal/apierror"
	"github.com/far4599/video-downloader-api/internal/models"
	"github.com/far4599/video-downloader-api/internal/pkg/log"
	"github.com/go-chi/chi/v5"
)

const (
	serviceName    = "Universal Video Downloader API"
	serviceVersion = "1.0.0"
)

// MediaFinder resolves a served media name to a local file.
type MediaFinder interface {
	Get(name string) (string, bool)
}

type HTTPHandler struct {
	vs           *VideoService
	media        MediaFinder
	maxBodyBytes int64
}

// NewHTTPHandler builds the API handlers. media may be nil when merging is
// off; /media then always answers 404.
func NewHTTPHandler(vs *VideoService, media MediaFinder, maxBodyBytes int64) *HTTPHandler {
	return &HTTPHandler{
		vs:           vs,
		media:        media,
		maxBodyBytes: maxBodyBytes,
	}
}

type videoRequest struct {
	URL     *string `json:"url"`
	Quality *string `json:"quality"`
}

type errorResponse struct {
	Status    string        `json:"status"`
	Message   string        `json:"message"`
	ErrorCode apierror.Kind `json:"error_code"`
}

type infoResponse struct {
	Status string `json:"status"`
	models.VideoMetadata
}

type qualitiesResponse struct {
	Status string `json:"status"`
	models.QualitiesResult
}

type downloadResponse struct {
	Status string `json:"status"`
	models.DownloadResult
}

func (h *HTTPHandler) OnRoot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "online",
			"service": serviceName,
			"version": serviceVersion,
			"endpoints": map[string]string{
				"POST /info":      "Get video metadata",
				"POST /qualities": "List available qualities",
				"POST /download":  "Get a direct download link for a video",
			},
		})
	}
}

func (h *HTTPHandler) OnHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}

func (h *HTTPHandler) OnInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := h.decodeRequest(w, r)
		if err != nil {
			WriteError(w, http.StatusOK, err)
			return
		}

		meta, err := h.vs.GetVideoInfo(r.Context(), req)
		if err != nil {
			WriteError(w, http.StatusOK, err)
			return
		}

		WriteJSON(w, http.StatusOK, infoResponse{Status: "success", VideoMetadata: *meta})
	}
}

func (h *HTTPHandler) OnQualities() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := h.decodeRequest(w, r)
		if err != nil {
			WriteError(w, http.StatusOK, err)
			return
		}

		res, err := h.vs.GetVideoQualities(r.Context(), req)
		if err != nil {
			WriteError(w, http.StatusOK, err)
			return
		}

		WriteJSON(w, http.StatusOK, qualitiesResponse{Status: "success", QualitiesResult: *res})
	}
}

func (h *HTTPHandler) OnDownload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := h.decodeRequest(w, r)
		if err != nil {
			WriteError(w, http.StatusOK, err)
			return
		}

		res, err := h.vs.DownloadVideo(r.Context(), req)
		if err != nil {
			WriteError(w, http.StatusOK, err)
			return
		}

		WriteJSON(w, http.StatusOK, downloadResponse{Status: "success", DownloadResult: *res})
	}
}

// OnMedia serves a merged file while its registry entry is alive.
func (h *HTTPHandler) OnMedia() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.media == nil {
			OnNotFound(w, r)
			return
		}

		path, ok := h.media.Get(chi.URLParam(r, "name"))
		if !ok {
			OnNotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "video/mp4")
		http.ServeFile(w, r, path)
	}
}

func OnNotFound(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusNotFound, apierror.New(apierror.ValidationError, apierror.MsgNotFound))
}

func OnMethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusMethodNotAllowed, apierror.New(apierror.ValidationError, apierror.MsgMethodNotAllowed))
}

func (h *HTTPHandler) decodeRequest(w http.ResponseWriter, r *http.Request) (models.VideoRequest, error) {
	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}

	var body videoRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return models.VideoRequest{}, apierror.Wrap(err, apierror.ValidationError, apierror.MsgInvalidBody)
	}

	if body.URL == nil {
		return models.VideoRequest{}, apierror.New(apierror.ValidationError, apierror.MsgMissingURL)
	}

	req := models.VideoRequest{URL: *body.URL}
	if body.Quality != nil {
		req.Quality = *body.Quality
	}

	return req, nil
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, context.Canceled) {
		log.Logger.Warnw("failed to write response", "error", err)
	}
}

// WriteError renders err as the error envelope. Anything outside the closed
// set is reported as EXTRACTION_ERROR.
func WriteError(w http.ResponseWriter, status int, err error) {
	apiErr := apierror.Classify(err)

	WriteJSON(w, status, errorResponse{
		Status:    "error",
		Message:   apiErr.Message,
		ErrorCode: apiErr.Kind,
	})
}
