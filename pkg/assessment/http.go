package assessment

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/geririsk/platform/pkg/common/logger"
	"github.com/geririsk/platform/pkg/common/models"
	"github.com/geririsk/platform/pkg/csvparse"
	"github.com/geririsk/platform/pkg/risk"
	"github.com/geririsk/platform/pkg/uploads"
	"github.com/gorilla/mux"
)

const uploadField = "file"

type HTTPHandler struct {
	service *Service
	maxBody int64
}

func NewHTTPHandler(service *Service, maxBody int64) *HTTPHandler {
	return &HTTPHandler{service: service, maxBody: maxBody}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/upload", h.handleUpload).Methods(http.MethodPost)
	router.HandleFunc("/process", h.handleProcess).Methods(http.MethodGet)
	router.HandleFunc("/uploads", h.handleRecent).Methods(http.MethodGet)
	router.HandleFunc("/assessments/latest", h.handleLatest).Methods(http.MethodGet)
	router.HandleFunc("/assessments/{id}", h.handleAssessment).Methods(http.MethodGet)
}

func (h *HTTPHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	name, data, err := readUpload(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		accepted, err := h.service.UploadAsync(r.Context(), name, data)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, accepted)
		return
	}

	resp, err := h.service.Upload(r.Context(), name, data)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) handleProcess(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.ProcessLatest(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.service.Recent(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *HTTPHandler) handleLatest(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.LatestAssessment(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) handleAssessment(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Assessment(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// readUpload returns the multipart file; a missing file is a validation error.
func readUpload(r *http.Request) (string, []byte, error) {
	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return "", nil, err
		}
		return "", nil, ValidationError{reason: errNoFile}
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, err
	}
	return header.Filename, data, nil
}

func (h *HTTPHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(err)
	entry := logger.Log.WithError(err).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"status": status,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Warn("request rejected")
	}
	writeJSON(w, status, body)
}

func errorResponse(err error) (int, models.ErrorResponse) {
	var (
		structural *csvparse.StructuralError
		predictor  *risk.PredictorError
		storage    *StorageError
		maxErr     *http.MaxBytesError
	)
	switch {
	case IsValidationError(err):
		return http.StatusBadRequest, models.ErrorResponse{Error: err.Error()}
	case errors.As(err, &structural):
		return http.StatusBadRequest, models.ErrorResponse{Error: "CSV parsing errors", Details: structural.Errors}
	case errors.Is(err, uploads.ErrNoUploads):
		return http.StatusBadRequest, models.ErrorResponse{Error: uploads.ErrNoUploads.Error()}
	case errors.Is(err, uploads.ErrNotFound):
		return http.StatusNotFound, models.ErrorResponse{Error: "assessment not found"}
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge, models.ErrorResponse{Error: "upload too large"}
	case errors.As(err, &predictor):
		details := predictor.Diagnostics
		if details == "" {
			details = predictor.Error()
		}
		return http.StatusBadGateway, models.ErrorResponse{Error: "Prediction failed", Details: details}
	case errors.Is(err, ErrAsyncDisabled):
		return http.StatusServiceUnavailable, models.ErrorResponse{Error: err.Error()}
	case errors.As(err, &storage):
		return http.StatusInternalServerError, models.ErrorResponse{Error: "storage failure"}
	default:
		return http.StatusInternalServerError, models.ErrorResponse{Error: "internal error"}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.WithError(err).Warn("failed to encode response")
	}
}
