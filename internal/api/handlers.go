package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shootday/internal/auth"
	"shootday/internal/cloudinary"
	"shootday/internal/monitor"
	"shootday/internal/queue"
	"shootday/internal/schedule"
)

func (h *handler) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{}
	for name, check := range h.Health {
		if err := check(ctx); err != nil {
			h.Log.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
			checks[name] = false
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = true
	}
	c.JSON(status, gin.H{"status": http.StatusText(status), "checks": checks})
}

func (h *handler) keepalive(c *gin.Context) {
	k, err := h.Monitor.KeepaliveNeeded(c.Request.Context(), h.Clock.Now())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, k)
}

func (h *handler) login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := auth.Authenticate(c.Request.Context(), h.Users, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		h.fail(c, err)
		return
	}

	role := auth.RoleOf(p)
	tok, err := auth.Issue(p.ID, p.Username, role, h.JWTIssuer, h.JWTSigningKey, h.AccessTTL, h.Clock.Now())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"access_token":    tok.AccessToken,
		"expires_at":      tok.ExpiresAt.Unix(),
		"role":            role,
		"photographer_id": p.ID,
	})
}

func (h *handler) wake(c *gin.Context) {
	pid, ok := h.caller(c)
	if !ok {
		return
	}
	var req struct {
		Date *schedule.Date `json:"date"`
	}
	// The body is optional and may arrive chunked, so an empty one is not an error.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	date := h.Checkins.Today()
	if req.Date != nil {
		date = *req.Date
	}

	n, err := h.Checkins.RecordWake(c.Request.Context(), pid, date)
	if err != nil {
		h.fail(c, err)
		return
	}
	if n > 0 {
		h.publishPrewarm(c.Request.Context(), pid, date)
	}
	c.JSON(http.StatusOK, gin.H{"updated": n, "date": date})
}

func (h *handler) depart(c *gin.Context) {
	pid, ok := h.caller(c)
	if !ok {
		return
	}
	var req struct {
		ScheduleID int64 `json:"schedule_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	n, err := h.Checkins.RecordDeparture(c.Request.Context(), pid, req.ScheduleID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (h *handler) arrive(c *gin.Context) {
	pid, ok := h.caller(c)
	if !ok {
		return
	}
	var req struct {
		ScheduleID int64  `json:"schedule_id" binding:"required"`
		PhotoRef   string `json:"photo_ref"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	n, err := h.Checkins.RecordArrival(c.Request.Context(), pid, req.ScheduleID, req.PhotoRef)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (h *handler) week(c *gin.Context) {
	pid, ok := h.caller(c)
	if !ok {
		return
	}
	rows, err := h.Checkins.Week(c.Request.Context(), pid, h.Clock.Now())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedules": rows})
}

func (h *handler) scheduleState(c *gin.Context) {
	pid, ok := h.caller(c)
	if !ok {
		return
	}
	sid, ok := idParam(c)
	if !ok {
		return
	}
	st, err := h.Checkins.StateOf(c.Request.Context(), pid, sid)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedule_id": sid, "state": st})
}

// uploadPhoto accepts a multipart "file" field or a JSON base64 data URL and
// returns the photo_ref to submit with the arrival.
func (h *handler) uploadPhoto(c *gin.Context) {
	pid, ok := h.caller(c)
	if !ok {
		return
	}
	if h.Photos == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
		return
	}

	var (
		result cloudinary.UploadResult
		err    error
	)
	if strings.Contains(c.ContentType(), "multipart/form-data") {
		sid, perr := strconv.ParseInt(c.PostForm("schedule_id"), 10, 64)
		if perr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "schedule_id required"})
			return
		}
		if !h.booked(c, pid, sid) {
			return
		}
		file, header, ferr := c.Request.FormFile("file")
		if ferr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
			return
		}
		defer file.Close()
		data, rerr := io.ReadAll(file)
		if rerr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "read file failed"})
			return
		}
		result, err = h.Photos.UploadBytes(c.Request.Context(), sid, data, header.Filename)
	} else {
		var body struct {
			ScheduleID int64  `json:"schedule_id" binding:"required"`
			Data       string `json:"data" binding:"required"`
		}
		if berr := c.ShouldBindJSON(&body); berr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": `provide {"schedule_id": n, "data": "<base64 data URL>"}`})
			return
		}
		if !h.booked(c, pid, body.ScheduleID) {
			return
		}
		result, err = h.Photos.UploadBase64(c.Request.Context(), body.ScheduleID, body.Data)
	}
	if err != nil {
		h.Log.Error("photo upload failed", zap.Int64("photographer_id", pid), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"photo_ref": result.PhotoRef(), "url": result.SecureURL})
}

func (h *handler) alertFeed(c *gin.Context) {
	rows, err := h.Monitor.Feed(c.Request.Context(), h.Clock.Now())
	if err != nil {
		h.fail(c, err)
		return
	}
	if rows == nil {
		rows = []monitor.Row{}
	}
	c.JSON(http.StatusOK, gin.H{"alerts": rows})
}

func (h *handler) photographerDay(c *gin.Context) {
	pid, ok := idParam(c)
	if !ok {
		return
	}
	date := h.Checkins.Today()
	if v := c.Query("date"); v != "" {
		d, err := schedule.ParseDate(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		date = d
	}
	st, err := h.Monitor.DayState(c.Request.Context(), pid, date, h.Clock.Now())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *handler) publishPrewarm(ctx context.Context, pid int64, date schedule.Date) {
	if h.Queue == nil {
		return
	}
	msg, err := queue.NewMessage(queue.TypePrewarm, queue.PrewarmJob{PhotographerID: pid, Date: date.String()})
	if err == nil {
		err = h.Queue.Publish(ctx, msg)
	}
	if err != nil {
		h.Log.Warn("queue publish failed", zap.String("type", queue.TypePrewarm), zap.Error(err))
	}
}

// caller resolves the photographer id carried by the bearer token.
func (h *handler) caller(c *gin.Context) (int64, bool) {
	claims, ok := auth.ClaimsFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing claims"})
		return 0, false
	}
	pid, err := claims.PhotographerID()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid subject"})
		return 0, false
	}
	return pid, true
}

func (h *handler) booked(c *gin.Context, pid, sid int64) bool {
	if _, err := h.Checkins.StateOf(c.Request.Context(), pid, sid); err != nil {
		h.fail(c, err)
		return false
	}
	return true
}

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// fail maps domain errors onto status codes. Anything unexpected is logged
// and hidden behind a generic 500.
func (h *handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, schedule.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, schedule.ErrMissingEvidence):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, schedule.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, context.Canceled):
		c.Status(499)
	default:
		h.Log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
