package backend

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pwalther/emotiond/internal/classifier"
	"github.com/pwalther/emotiond/internal/core"
	"github.com/pwalther/emotiond/internal/imaging"
)

// APIService exposes the JSON endpoints of the detection pipeline.
type APIService struct {
	coreService *core.CoreService
}

func NewAPIService(coreService *core.CoreService) *APIService {
	return &APIService{
		coreService: coreService,
	}
}

type detectResponse struct {
	Success    bool    `json:"success"`
	Emotion    string  `json:"emotion"`
	Confidence float64 `json:"confidence"`
	ImagePath  string  `json:"image_path"`
	SessionID  string  `json:"session_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type detectionEntry struct {
	Name       string  `json:"name"`
	Emotion    string  `json:"emotion"`
	Confidence float64 `json:"confidence"`
	Timestamp  string  `json:"timestamp"`
	IsOnline   bool    `json:"is_online"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type detectionsQuery struct {
	Limit int `query:"limit" validate:"omitempty,min=1,max=500"`
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	e.POST("/detect", s.detectHandler)
	e.GET("/api/detections", s.apiDetectionsHandler)
	e.GET("/health", s.healthHandler)
}

// detectHandler accepts a multipart submission with either an uploaded
// "image" file or a base64 "image_data" field and runs it through the
// pipeline. The response body discriminates success from failure; status
// codes are informational only.
func (s *APIService) detectHandler(c echo.Context) error {
	req := core.DetectionRequest{
		Name:     c.FormValue("name"),
		Email:    c.FormValue("email"),
		AgeGroup: c.FormValue("age_group"),
		Gender:   c.FormValue("gender"),
		IsOnline: c.FormValue("is_online") == "true",
	}

	// An absent or empty file field is not an error here; the pipeline
	// decides between upload, capture payload, and no-image.
	if fileHeader, err := c.FormFile("image"); err == nil && fileHeader.Filename != "" {
		src, err := fileHeader.Open()
		if err != nil {
			slog.Error("detect: failed to open uploaded file", "error", err, "filename", fileHeader.Filename)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to read uploaded file"})
		}
		data, readErr := io.ReadAll(src)
		if cerr := src.Close(); cerr != nil {
			slog.Error("detect: failed to close uploaded file reader", "error", cerr)
		}
		if readErr != nil {
			slog.Error("detect: failed to read uploaded file", "error", readErr, "filename", fileHeader.Filename)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to read uploaded file"})
		}
		req.ImageFile = data
	}
	// Passed through unconditionally; the pipeline gives the uploaded file
	// precedence when both sources are present.
	req.ImageData = c.FormValue("image_data")

	result, err := s.coreService.Detect(req)
	if err != nil {
		return s.detectError(c, err)
	}

	return c.JSON(http.StatusOK, detectResponse{
		Success:    true,
		Emotion:    result.Emotion,
		Confidence: result.Confidence,
		ImagePath:  result.ImagePath,
		SessionID:  result.SessionID,
	})
}

// detectError maps pipeline failures to structured error bodies. Every
// failure is request-scoped; nothing is retried.
func (s *APIService) detectError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, core.ErrNoImage):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "No image provided"})
	case errors.Is(err, imaging.ErrInvalidImage):
		slog.Info("detect: rejected undecodable image", "error", err)
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid image data"})
	case errors.Is(err, classifier.ErrModelUnavailable):
		slog.Error("detect: classification failed", "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Classification failed"})
	default:
		slog.Error("detect: pipeline failure", "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to process detection"})
	}
}

func (s *APIService) apiDetectionsHandler(c echo.Context) error {
	var query detectionsQuery
	if err := c.Bind(&query); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid query parameters"})
	}
	if err := c.Validate(&query); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid limit"})
	}
	if query.Limit == 0 {
		query.Limit = s.coreService.APIDetectionsLimit()
	}

	detections, err := s.coreService.RecentDetections(query.Limit)
	if err != nil {
		slog.Error("api/detections: failed to list detections", "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to load detections"})
	}

	entries := make([]detectionEntry, 0, len(detections))
	for _, d := range detections {
		entries = append(entries, detectionEntry{
			Name:       d.Name,
			Emotion:    d.Emotion,
			Confidence: d.Confidence,
			Timestamp:  d.CreatedAt.Format(time.RFC3339),
			IsOnline:   d.IsOnline,
		})
	}
	return c.JSON(http.StatusOK, entries)
}

// healthHandler is the liveness probe. It deliberately touches no storage.
func (s *APIService) healthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}
