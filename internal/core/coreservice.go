package core

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pwalther/emotiond/internal/archive"
	"github.com/pwalther/emotiond/internal/classifier"
	"github.com/pwalther/emotiond/internal/database"
	"github.com/pwalther/emotiond/internal/imaging"
)

// ErrNoImage is returned when a detection request carries neither an uploaded
// file nor a capture payload.
var ErrNoImage = errors.New("no image provided")

// Default sentinels applied when submitter metadata is absent.
const (
	DefaultName        = "Anonymous"
	DefaultEmail       = ""
	DefaultAgeGroup    = "Not specified"
	DefaultGender      = "Not specified"
	sessionIDLength    = 8
	recentResultsLimit = 20
	apiDetectionsLimit = 50
)

// DetectionRequest carries one submission through the pipeline. ImageFile is
// the raw uploaded file content; ImageData is a base64 (optionally data-URI
// prefixed) capture payload. When both are present the upload wins.
type DetectionRequest struct {
	Name     string
	Email    string
	AgeGroup string
	Gender   string
	IsOnline bool

	ImageFile []byte
	ImageData string
}

// DetectionResult is what a completed pipeline run returns to the caller.
type DetectionResult struct {
	Emotion    string
	Confidence float64
	ImagePath  string
	SessionID  string
}

// Statistics is the aggregated view over all stored detections.
type Statistics struct {
	Stats []database.EmotionStat
	Total int64
}

// CoreService owns the pipeline's capabilities: the classifier, the image
// archiver, and the detection store. All three are constructed once at
// startup and closed on shutdown.
type CoreService struct {
	config     *ServiceConfig
	store      database.DetectionStore
	archiver   *archive.Archiver
	classifier classifier.Classifier
}

// NewCoreService wires the store, archiver, and classifier from config.
func NewCoreService(config *ServiceConfig) (*CoreService, error) {
	store, err := database.NewDetectionStore(config.Database.Type, config.Database.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("database initialized successfully", "type", config.Database.Type)

	archiver, err := archive.NewArchiver(config.Uploads.Directory)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize image archive: %w", err)
	}

	cls, err := classifier.NewClassifier(config.Classifier.Type,
		config.Classifier.ModelPath, config.Classifier.MetadataPath)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize classifier: %w", err)
	}

	return &CoreService{
		config:     config,
		store:      store,
		archiver:   archiver,
		classifier: cls,
	}, nil
}

// NewCoreServiceWith wires an already-constructed store, archiver, and
// classifier. Used by tests to substitute capabilities.
func NewCoreServiceWith(config *ServiceConfig, store database.DetectionStore,
	archiver *archive.Archiver, cls classifier.Classifier) *CoreService {
	return &CoreService{
		config:     config,
		store:      store,
		archiver:   archiver,
		classifier: cls,
	}
}

// Detect runs one submission through decode, classify, archive, and persist.
// Every step failure is terminal for the request and reported once; nothing
// is retried. A failed archive leaves no event row; a failed insert leaves
// the already-archived file in place (accepted, the row is authoritative).
func (service *CoreService) Detect(req DetectionRequest) (*DetectionResult, error) {
	sessionID := newSessionID()
	applyMetadataDefaults(&req)

	img, err := service.decodeInput(req)
	if err != nil {
		return nil, err
	}

	emotion, confidence, err := service.classifier.Classify(img)
	if err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}

	imagePath, err := service.archiver.Archive(img, sessionID, time.Now())
	if err != nil {
		return nil, err
	}

	detection := &database.Detection{
		SessionID:  sessionID,
		Name:       req.Name,
		Email:      req.Email,
		AgeGroup:   req.AgeGroup,
		Gender:     req.Gender,
		Emotion:    emotion,
		Confidence: confidence,
		ImagePath:  imagePath,
		IsOnline:   req.IsOnline,
	}
	if _, err := service.store.Insert(detection); err != nil {
		return nil, err
	}

	slog.Info("detection completed",
		"session_id", sessionID,
		"emotion", emotion,
		"confidence", confidence,
		"is_online", req.IsOnline)

	return &DetectionResult{
		Emotion:    emotion,
		Confidence: confidence,
		ImagePath:  imagePath,
		SessionID:  sessionID,
	}, nil
}

// decodeInput picks the image source. The uploaded file takes precedence
// over the capture payload when both are present.
func (service *CoreService) decodeInput(req DetectionRequest) (image.Image, error) {
	if len(req.ImageFile) > 0 {
		return imaging.Decode(req.ImageFile)
	}
	if req.ImageData != "" {
		return imaging.DecodeDataURI(req.ImageData)
	}
	return nil, ErrNoImage
}

// RecentDetections returns the most recent detections, newest first, capped
// at the given limit (the default page size when limit is 0).
func (service *CoreService) RecentDetections(limit int) ([]database.Detection, error) {
	if limit == 0 {
		limit = recentResultsLimit
	}
	return service.store.ListRecent(limit)
}

// APIDetectionsLimit is the page size of the JSON detections feed.
func (service *CoreService) APIDetectionsLimit() int {
	return apiDetectionsLimit
}

// Statistics returns per-emotion aggregation rows plus the true total event
// count, recomputed in full on every call.
func (service *CoreService) Statistics() (*Statistics, error) {
	stats, err := service.store.Aggregate()
	if err != nil {
		return nil, err
	}
	total, err := service.store.Count()
	if err != nil {
		return nil, err
	}
	return &Statistics{Stats: stats, Total: total}, nil
}

// UploadsDirectory returns the root under which archived images live.
func (service *CoreService) UploadsDirectory() string {
	return service.archiver.Root()
}

// Close releases the classifier and database handle.
func (service *CoreService) Close() error {
	var firstErr error
	if err := service.classifier.Close(); err != nil {
		firstErr = err
	}
	if err := service.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func applyMetadataDefaults(req *DetectionRequest) {
	if req.Name == "" {
		req.Name = DefaultName
	}
	if req.Email == "" {
		req.Email = DefaultEmail
	}
	if req.AgeGroup == "" {
		req.AgeGroup = DefaultAgeGroup
	}
	if req.Gender == "" {
		req.Gender = DefaultGender
	}
}

// newSessionID returns a short opaque id for one submission. A uuid prefix
// is unique enough across concurrent requests; a collision would only mean
// two archived files sharing a name prefix, not a correctness violation.
func newSessionID() string {
	return uuid.NewString()[:sessionIDLength]
}
