package handlers

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"sicklecare/internal/models"
	"sicklecare/internal/services"
	"sicklecare/internal/store"
)

const dateLayout = "2006-01-02"

// Sweeper runs one reminder sweep on demand
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) services.SweepReport
}

// MediaUploader stores an uploaded resource file and returns its public URL
type MediaUploader interface {
	UploadResource(ctx context.Context, file multipart.File, filename, category string) (string, error)
}

type AdminHandler struct {
	stores   store.Stores
	sweeper  Sweeper
	uploader MediaUploader
	location *time.Location
	now      func() time.Time
	log      *zap.Logger
}

// NewAdminHandler builds the operator API. uploader may be nil, in which case
// resources can only be created as links.
func NewAdminHandler(stores store.Stores, sweeper Sweeper, uploader MediaUploader, location *time.Location, log *zap.Logger) *AdminHandler {
	if location == nil {
		location = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminHandler{
		stores:   stores,
		sweeper:  sweeper,
		uploader: uploader,
		location: location,
		now:      time.Now,
		log:      log,
	}
}

// RunSweep handles POST /admin/sweep
func (h *AdminHandler) RunSweep(c *gin.Context) {
	report := h.sweeper.Sweep(c.Request.Context(), h.now())
	c.JSON(http.StatusOK, report)
}

// CreateReminder handles POST /admin/reminders
func (h *AdminHandler) CreateReminder(c *gin.Context) {
	var req models.CreateReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	timeOfDay, err := models.ParseTimeOfDay(strings.TrimSpace(req.Time))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "time must be HH:MM in 24-hour format"})
		return
	}

	var date *datatypes.Date
	if req.Date != "" {
		day, err := time.ParseInLocation(dateLayout, req.Date, h.location)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		d := datatypes.Date(day)
		date = &d
	}

	user, err := h.stores.Users.GetByAddress(c.Request.Context(), services.StripWhatsAppPrefix(req.Address))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		handleError(c, h.log, http.StatusInternalServerError, "Failed to load user", err)
		return
	}

	reminder := &models.Reminder{
		UserID:    user.ID,
		Message:   strings.TrimSpace(req.Message),
		TimeOfDay: timeOfDay,
		Date:      date,
		Recurring: req.Recurring,
		Active:    true,
		CreatedAt: h.now(),
	}
	if err := h.stores.Reminders.Create(c.Request.Context(), reminder); err != nil {
		handleError(c, h.log, http.StatusInternalServerError, "Failed to create reminder", err)
		return
	}

	h.log.Info("Reminder scheduled",
		zap.Uint("reminder_id", reminder.ID),
		zap.Uint("user_id", user.ID),
		zap.String("time", timeOfDay),
		zap.Bool("recurring", reminder.Recurring))
	c.JSON(http.StatusCreated, reminder)
}

// ListUserReminders handles GET /admin/users/:address/reminders
func (h *AdminHandler) ListUserReminders(c *gin.Context) {
	address := services.StripWhatsAppPrefix(c.Param("address"))

	user, err := h.stores.Users.GetByAddress(c.Request.Context(), address)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		handleError(c, h.log, http.StatusInternalServerError, "Failed to load user", err)
		return
	}

	reminders, err := h.stores.Reminders.ListActiveByUser(c.Request.Context(), user.ID)
	if err != nil {
		handleError(c, h.log, http.StatusInternalServerError, "Failed to list reminders", err)
		return
	}
	if reminders == nil {
		reminders = []models.Reminder{}
	}
	c.JSON(http.StatusOK, reminders)
}

// CreateResource handles POST /admin/resources. The form carries either a
// link or a media file; both are allowed.
func (h *AdminHandler) CreateResource(c *gin.Context) {
	var req models.CreateResourceRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	category := strings.ToLower(strings.TrimSpace(req.Category))
	if !models.IsResourceCategory(category) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "unknown category",
			"categories": models.ResourceCategories,
		})
		return
	}

	resource := &models.Resource{
		Category:    category,
		Language:    req.Language,
		Title:       strings.TrimSpace(req.Title),
		Link:        req.Link,
		Description: req.Description,
	}
	if resource.Language == "" {
		resource.Language = models.DefaultLanguage
	}

	fileHeader, err := c.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file upload"})
		return
	default:
		url, status, err := h.upload(c, fileHeader, category)
		if err != nil {
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		resource.MediaURL = url
	}

	if resource.Link == "" && resource.MediaURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a link or a file is required"})
		return
	}

	if err := h.stores.Resources.Create(c.Request.Context(), resource); err != nil {
		handleError(c, h.log, http.StatusInternalServerError, "Failed to create resource", err)
		return
	}
	c.JSON(http.StatusCreated, resource)
}

func (h *AdminHandler) upload(c *gin.Context, fh *multipart.FileHeader, category string) (string, int, error) {
	if h.uploader == nil {
		return "", http.StatusServiceUnavailable, errors.New("media uploads are not configured")
	}
	if _, err := services.MediaResourceType(fh.Filename); err != nil {
		return "", http.StatusBadRequest, err
	}

	file, err := fh.Open()
	if err != nil {
		return "", http.StatusBadRequest, err
	}
	defer file.Close()

	if err := services.ValidateMediaFile(file, services.MaxMediaSize); err != nil {
		return "", http.StatusBadRequest, err
	}

	url, err := h.uploader.UploadResource(c.Request.Context(), file, fh.Filename, category)
	if err != nil {
		h.log.Error("Media upload failed", zap.String("filename", fh.Filename), zap.Error(err))
		return "", http.StatusBadGateway, errors.New("failed to upload media")
	}
	return url, http.StatusOK, nil
}
