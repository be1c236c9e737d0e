package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shootday/internal/auth"
	"shootday/internal/checkin"
	"shootday/internal/cloudinary"
	"shootday/internal/monitor"
	"shootday/internal/queue"
	"shootday/internal/schedule"
	"shootday/internal/store"
	"shootday/internal/traveltime"
)

const (
	testIssuer = "shootday-test"
	testKey    = "test-signing-key"
)

var kst = time.FixedZone("KST", 9*60*60)

type fakePhotos struct {
	calls int
	err   error
}

func (f *fakePhotos) UploadBase64(_ context.Context, scheduleID int64, _ string) (cloudinary.UploadResult, error) {
	f.calls++
	if f.err != nil {
		return cloudinary.UploadResult{}, f.err
	}
	return cloudinary.UploadResult{PublicID: "arrivals/schedule-1-abc", SecureURL: "https://res.example/abc.jpg"}, nil
}

func (f *fakePhotos) UploadBytes(ctx context.Context, scheduleID int64, data []byte, _ string) (cloudinary.UploadResult, error) {
	return f.UploadBase64(ctx, scheduleID, string(data))
}

type server struct {
	t      *testing.T
	repo   *store.Memory
	clock  *clock.Mock
	queue  *queue.InMemory
	photos *fakePhotos
	engine *gin.Engine
	day    schedule.Date
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mock := clock.NewMock()
	mock.Set(time.Date(2026, 5, 9, 11, 0, 0, 0, kst))
	repo := store.NewMemory()
	ctx := context.Background()

	hash, err := auth.HashPassword("pw-kim")
	require.NoError(t, err)
	_, err = repo.UpsertPhotographer(ctx, schedule.Photographer{ID: 1, Name: "Kim", Username: "kim", PasswordHash: hash, Active: true})
	require.NoError(t, err)
	_, err = repo.UpsertPhotographer(ctx, schedule.Photographer{ID: 2, Name: "Lee", Username: "lee", Active: true})
	require.NoError(t, err)
	_, err = auth.Bootstrap(ctx, repo, "admin", "pw-admin", zap.NewNop())
	require.NoError(t, err)

	cache := traveltime.New(traveltime.NewMemoryStore(), nil, mock, traveltime.Options{}, zap.NewNop())
	q := queue.NewInMemory(8)
	photos := &fakePhotos{}
	s := &server{
		t:      t,
		repo:   repo,
		clock:  mock,
		queue:  q,
		photos: photos,
		day:    schedule.Date{Year: 2026, Month: time.May, Day: 9},
	}
	s.engine = NewRouter(Deps{
		Checkins: checkin.NewService(repo, mock, kst, zap.NewNop()),
		Monitor:  monitor.New(repo, cache, kst, monitor.Config{LookaheadDays: 1}, zap.NewNop()),
		Users:    repo,
		Photos:   photos,
		Queue:    q,
		Health: map[string]func(context.Context) error{
			"db": func(context.Context) error { return nil },
		},
		Clock:         mock,
		Log:           zap.NewNop(),
		JWTIssuer:     testIssuer,
		JWTSigningKey: testKey,
		AccessTTL:     time.Hour,
	})
	return s
}

func (s *server) token(pid int64, role string) string {
	tok, err := auth.Issue(pid, "", role, testIssuer, testKey, time.Hour, time.Now())
	require.NoError(s.t, err)
	return tok.AccessToken
}

func (s *server) do(method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func (s *server) addSchedule(sc schedule.Schedule) int64 {
	s.t.Helper()
	if sc.CeremonyDate.IsZero() {
		sc.CeremonyDate = s.day
	}
	id, err := s.repo.AddSchedule(context.Background(), sc)
	require.NoError(s.t, err)
	return id
}

func tod(h, m int) *schedule.TimeOfDay {
	t := schedule.NewTimeOfDay(h, m)
	return &t
}

func TestLogin(t *testing.T) {
	s := newServer(t)

	w, body := s.do(http.MethodPost, "/v1/sessions", "", map[string]string{"username": "kim", "password": "pw-kim"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, auth.RolePhotographer, body["role"])
	assert.EqualValues(t, 1, body["photographer_id"])
	assert.NotEmpty(t, body["access_token"])
	assert.EqualValues(t, s.clock.Now().Add(time.Hour).Unix(), body["expires_at"])

	w, body = s.do(http.MethodPost, "/v1/sessions", "", map[string]string{"username": "admin", "password": "pw-admin"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, auth.RoleAdmin, body["role"])

	w, _ = s.do(http.MethodPost, "/v1/sessions", "", map[string]string{"username": "kim", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(http.MethodPost, "/v1/sessions", "", map[string]string{"username": "lee", "password": "anything"})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "accounts without a password cannot log in")
}

func TestCheckinFlowOverHTTP(t *testing.T) {
	s := newServer(t)
	tok := s.token(1, auth.RolePhotographer)
	a := s.addSchedule(schedule.Schedule{VenueName: "Grand Hall", CeremonyTime: tod(14, 0), MainPhotographerID: 1})
	b := s.addSchedule(schedule.Schedule{VenueName: "grand  hall", CeremonyTime: tod(17, 0), MainPhotographerID: 1})

	w, _ := s.do(http.MethodPost, "/v1/checkins/depart", tok, map[string]int64{"schedule_id": a})
	assert.Equal(t, http.StatusConflict, w.Code, "departure before wake")

	w, body := s.do(http.MethodPost, "/v1/checkins/wake", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["updated"])
	assert.Equal(t, "2026-05-09", body["date"])

	w, body = s.do(http.MethodPost, "/v1/checkins/wake", tok, map[string]string{"date": "2026-05-09"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, body["updated"])

	w, body = s.do(http.MethodPost, "/v1/checkins/depart", tok, map[string]int64{"schedule_id": b})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["updated"])

	w, _ = s.do(http.MethodPost, "/v1/checkins/arrive", tok, map[string]any{"schedule_id": a})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, body = s.do(http.MethodPost, "/v1/checkins/arrive", tok, map[string]any{"schedule_id": a, "photo_ref": "arrivals/p1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["updated"])

	w, body = s.do(http.MethodGet, "/v1/schedules/"+itoa(b)+"/state", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "arrived", body["state"])

	w, body = s.do(http.MethodGet, "/v1/me/week", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["schedules"], 2)
}

func TestWakePublishesPrewarmJob(t *testing.T) {
	s := newServer(t)
	s.addSchedule(schedule.Schedule{VenueName: "Hall", MainPhotographerID: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := s.queue.Consume(ctx)
	require.NoError(t, err)

	w, _ := s.do(http.MethodPost, "/v1/checkins/wake", s.token(1, auth.RolePhotographer), nil)
	require.Equal(t, http.StatusOK, w.Code)

	select {
	case msg := <-msgs:
		assert.Equal(t, queue.TypePrewarm, msg.Type)
		var job queue.PrewarmJob
		require.NoError(t, msg.Decode(&job))
		assert.Equal(t, queue.PrewarmJob{PhotographerID: 1, Date: "2026-05-09"}, job)
	case <-time.After(time.Second):
		t.Fatal("no prewarm message published")
	}
}

func TestWakeAcceptsChunkedEmptyBody(t *testing.T) {
	s := newServer(t)
	s.addSchedule(schedule.Schedule{VenueName: "Hall", MainPhotographerID: 1})
	tok := s.token(1, auth.RolePhotographer)

	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/checkins/wake", bytes.NewBufferString(body))
		req.ContentLength = -1
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		s.engine.ServeHTTP(w, req)
		return w
	}

	w := send("")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.EqualValues(t, 1, out["updated"])

	assert.Equal(t, http.StatusBadRequest, send("{").Code)
}

func TestErrorMapping(t *testing.T) {
	s := newServer(t)
	tok := s.token(1, auth.RolePhotographer)
	other := s.addSchedule(schedule.Schedule{VenueName: "Hall", MainPhotographerID: 2})

	w, _ := s.do(http.MethodPost, "/v1/checkins/wake", tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "no schedule today")

	w, _ = s.do(http.MethodPost, "/v1/checkins/depart", tok, map[string]int64{"schedule_id": other})
	assert.Equal(t, http.StatusNotFound, w.Code, "not booked on the schedule")

	w, _ = s.do(http.MethodGet, "/v1/schedules/abc/state", tok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(http.MethodPost, "/v1/checkins/depart", tok, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoutesRequireRole(t *testing.T) {
	s := newServer(t)

	w, _ := s.do(http.MethodGet, "/v1/me/week", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(http.MethodGet, "/v1/admin/alerts/feed", s.token(1, auth.RolePhotographer), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(http.MethodGet, "/v1/me/week", s.token(3, auth.RoleAdmin), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminFeedAndDay(t *testing.T) {
	s := newServer(t)
	admin := s.token(3, auth.RoleAdmin)
	sid := s.addSchedule(schedule.Schedule{VenueName: "Hall", ArrivalTargetTime: tod(12, 0), MainPhotographerID: 1})

	// travel falls back to 60 minutes: wake 10:30, departure 11:00, arrival 12:00
	w, body := s.do(http.MethodGet, "/v1/admin/alerts/feed", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	alerts, ok := body["alerts"].([]any)
	require.True(t, ok)
	require.Len(t, alerts, 2)
	first := alerts[0].(map[string]any)
	assert.Equal(t, "wake", first["transition"])
	assert.Equal(t, "delayed", first["state"])
	assert.EqualValues(t, sid, first["schedule_id"])
	assert.Equal(t, "warning", alerts[1].(map[string]any)["state"])

	w, body = s.do(http.MethodGet, "/v1/admin/photographers/1/day?date=2026-05-09", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "delayed", body["state"])
	assert.Len(t, body["rows"], 3)

	w, _ = s.do(http.MethodGet, "/v1/admin/photographers/1/day?date=May9", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPhotoUpload(t *testing.T) {
	s := newServer(t)
	tok := s.token(1, auth.RolePhotographer)
	sid := s.addSchedule(schedule.Schedule{VenueName: "Hall", MainPhotographerID: 1})
	other := s.addSchedule(schedule.Schedule{VenueName: "Hall", MainPhotographerID: 2})

	w, body := s.do(http.MethodPost, "/v1/photos", tok, map[string]any{"schedule_id": sid, "data": "data:image/jpeg;base64,AAAA"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "arrivals/schedule-1-abc", body["photo_ref"])

	w, _ = s.do(http.MethodPost, "/v1/photos", tok, map[string]any{"schedule_id": other, "data": "AAAA"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 1, s.photos.calls)

	s.photos.err = errors.New("cloudinary down")
	w, _ = s.do(http.MethodPost, "/v1/photos", tok, map[string]any{"schedule_id": sid, "data": "AAAA"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestOperationalEndpoints(t *testing.T) {
	s := newServer(t)

	w, body := s.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"db": true}, body["checks"])

	w, body = s.do(http.MethodGet, "/v1/keepalive", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["needed"])
	assert.Equal(t, true, body["in_window"])

	s.addSchedule(schedule.Schedule{VenueName: "Hall", MainPhotographerID: 1})
	_, body = s.do(http.MethodGet, "/v1/keepalive", "", nil)
	assert.Equal(t, true, body["needed"])

	req := httptest.NewRequest(http.MethodOptions, "/v1/checkins/wake", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	w, _ = s.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
