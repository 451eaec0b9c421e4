package frontend

import (
	"embed"
	"io"
	"log/slog"
	"net/http"
	"text/template"

	"github.com/labstack/echo/v4"

	"github.com/pwalther/emotiond/internal/core"
)

const (
	MainPageName = "index.html"
	viewsPattern = "views/*.html"
)

//go:embed views/*.html
var templateFS embed.FS

// Template adapts the parsed view templates to echo's Renderer interface.
type Template struct {
	templates *template.Template
}

func (t *Template) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	return t.templates.ExecuteTemplate(w, name, data)
}

// FrontendService renders the capture page and the results/statistics views
// over the persisted detection history.
type FrontendService struct {
	coreService *core.CoreService
	config      *core.ServiceConfig
}

func NewFrontendService(config *core.ServiceConfig, coreService *core.CoreService) *FrontendService {
	return &FrontendService{
		coreService: coreService,
		config:      config,
	}
}

func (service *FrontendService) SetRoutes(e *echo.Echo) {
	e.Renderer = &Template{
		templates: template.Must(template.New("").ParseFS(templateFS, viewsPattern)),
	}

	e.GET("/", service.indexHandler)
	e.GET("/results", service.resultsHandler)
	e.GET("/statistics", service.statisticsHandler)

	// Archived images are referenced by their stored paths, so the uploads
	// root is served under the same prefix they were written with.
	e.Static("/"+service.coreService.UploadsDirectory(), service.coreService.UploadsDirectory())
}

func (service *FrontendService) indexHandler(ctx echo.Context) error {
	return ctx.Render(http.StatusOK, MainPageName, nil)
}

func (service *FrontendService) resultsHandler(ctx echo.Context) error {
	detections, err := service.coreService.RecentDetections(0)
	if err != nil {
		slog.Error("resultsHandler: failed to list detections",
			"status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to load results")
	}

	service.setNoCache(ctx)
	return ctx.Render(http.StatusOK, "results.html", map[string]any{
		"Detections": detections,
	})
}

func (service *FrontendService) statisticsHandler(ctx echo.Context) error {
	stats, err := service.coreService.Statistics()
	if err != nil {
		slog.Error("statisticsHandler: failed to aggregate detections",
			"status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to load statistics")
	}

	service.setNoCache(ctx)
	return ctx.Render(http.StatusOK, "statistics.html", map[string]any{
		"Stats": stats.Stats,
		"Total": stats.Total,
	})
}

func (service *FrontendService) setNoCache(ctx echo.Context) {
	ctx.Response().Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	ctx.Response().Header().Set("Pragma", "no-cache")
	ctx.Response().Header().Set("Expires", "0")
}
