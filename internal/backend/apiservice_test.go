package backend

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/pwalther/emotiond/internal/archive"
	"github.com/pwalther/emotiond/internal/classifier"
	"github.com/pwalther/emotiond/internal/common"
	"github.com/pwalther/emotiond/internal/core"
	"github.com/pwalther/emotiond/internal/database"
)

func newTestServer(t *testing.T) (*echo.Echo, *core.CoreService) {
	t.Helper()

	store, err := database.NewDetectionStore("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("NewDetectionStore error: %v", err)
	}
	archiver, err := archive.NewArchiver(t.TempDir())
	if err != nil {
		t.Fatalf("NewArchiver error: %v", err)
	}

	cfg := &core.ServiceConfig{}
	svc := core.NewCoreServiceWith(cfg, store, archiver, classifier.NewRandomClassifier())
	t.Cleanup(func() { _ = svc.Close() })

	e := echo.New()
	e.Validator = &common.GenericEchoValidator{}
	NewAPIService(svc).SetRoutes(e)
	return e, svc
}

func pngBytes(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 5, 5))
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			img.Set(x, y, color.RGBA{80, 80, 200, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode error: %v", err)
	}
	return buf.Bytes()
}

func multipartBody(t *testing.T, fields map[string]string, fileField string, fileContent []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("WriteField(%s) error: %v", key, err)
		}
	}
	if fileField != "" {
		part, err := writer.CreateFormFile(fileField, "face.png")
		if err != nil {
			t.Fatalf("CreateFormFile error: %v", err)
		}
		if _, err := part.Write(fileContent); err != nil {
			t.Fatalf("file write error: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("multipart close error: %v", err)
	}
	return body, writer.FormDataContentType()
}

func postDetect(t *testing.T, e *echo.Echo, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/detect", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestDetectEndpoint_Upload(t *testing.T) {
	e, _ := newTestServer(t)

	body, contentType := multipartBody(t, map[string]string{
		"name":      "Linus",
		"email":     "linus@example.com",
		"age_group": "45-54",
		"gender":    "Male",
		"is_online": "false",
	}, "image", pngBytes(t))

	rec := postDetect(t, e, body, contentType)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success    bool    `json:"success"`
		Emotion    string  `json:"emotion"`
		Confidence float64 `json:"confidence"`
		ImagePath  string  `json:"image_path"`
		SessionID  string  `json:"session_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response unmarshal error: %v", err)
	}
	if !resp.Success {
		t.Errorf("expected success=true")
	}
	if !classifier.IsValidLabel(resp.Emotion) {
		t.Errorf("emotion %q not in the label set", resp.Emotion)
	}
	if resp.Confidence < 0.70 || resp.Confidence > 0.95 {
		t.Errorf("confidence %v outside the demo classifier range", resp.Confidence)
	}
	if resp.ImagePath == "" || len(resp.SessionID) != 8 {
		t.Errorf("missing image_path or session_id: %+v", resp)
	}
}

func TestDetectEndpoint_CapturePayload(t *testing.T) {
	e, _ := newTestServer(t)

	payload := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t))
	body, contentType := multipartBody(t, map[string]string{
		"image_data": payload,
		"is_online":  "true",
	}, "", nil)

	rec := postDetect(t, e, body, contentType)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDetectEndpoint_NoImage(t *testing.T) {
	e, svc := newTestServer(t)

	body, contentType := multipartBody(t, map[string]string{"name": "Nobody"}, "", nil)
	rec := postDetect(t, e, body, contentType)

	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response unmarshal error: %v", err)
	}
	if resp.Error != "No image provided" {
		t.Errorf("expected error %q, got %q", "No image provided", resp.Error)
	}

	stats, err := svc.Statistics()
	if err != nil {
		t.Fatalf("Statistics error: %v", err)
	}
	if stats.Total != 0 {
		t.Errorf("expected no persisted rows, got %d", stats.Total)
	}
}

func TestDetectEndpoint_MalformedBase64(t *testing.T) {
	e, svc := newTestServer(t)

	body, contentType := multipartBody(t, map[string]string{
		"image_data": "data:image/png;base64,@@@broken@@@",
	}, "", nil)

	rec := postDetect(t, e, body, contentType)
	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response unmarshal error: %v", err)
	}
	if resp.Error == "" {
		t.Errorf("expected an error body, got %s", rec.Body.String())
	}

	stats, err := svc.Statistics()
	if err != nil {
		t.Fatalf("Statistics error: %v", err)
	}
	if stats.Total != 0 {
		t.Errorf("expected no persisted rows after decode failure, got %d", stats.Total)
	}
}

func TestDetectEndpoint_UploadPrecedence(t *testing.T) {
	e, _ := newTestServer(t)

	// Both sources present: the valid upload must win over the broken payload.
	body, contentType := multipartBody(t, map[string]string{
		"image_data": "garbage, not base64",
	}, "image", pngBytes(t))

	rec := postDetect(t, e, body, contentType)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 when a valid upload accompanies a broken payload, got %d: %s",
			rec.Code, rec.Body.String())
	}
}

func TestAPIDetectionsEndpoint(t *testing.T) {
	e, _ := newTestServer(t)

	for i := 0; i < 3; i++ {
		body, contentType := multipartBody(t, map[string]string{"name": "Po"}, "image", pngBytes(t))
		if rec := postDetect(t, e, body, contentType); rec.Code != http.StatusOK {
			t.Fatalf("seed detect failed: %d %s", rec.Code, rec.Body.String())
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/detections", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var entries []struct {
		Name       string  `json:"name"`
		Emotion    string  `json:"emotion"`
		Confidence float64 `json:"confidence"`
		Timestamp  string  `json:"timestamp"`
		IsOnline   bool    `json:"is_online"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("response unmarshal error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, entry := range entries {
		if entry.Name != "Po" {
			t.Errorf("entry[%d] unexpected name %q", i, entry.Name)
		}
		if entry.Timestamp == "" {
			t.Errorf("entry[%d] missing timestamp", i)
		}
	}
}

func TestAPIDetectionsEndpoint_InvalidLimit(t *testing.T) {
	e, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/detections?limit=9999", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for out-of-range limit, got %d", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	e, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response unmarshal error: %v", err)
	}
	if resp.Status != "healthy" || resp.Timestamp == "" {
		t.Errorf("unexpected health payload: %+v", resp)
	}
}
