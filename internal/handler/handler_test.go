package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/olympiad-registration-api/internal/dto"
	"github.com/noah-isme/olympiad-registration-api/internal/middleware"
	"github.com/noah-isme/olympiad-registration-api/internal/models"
	"github.com/noah-isme/olympiad-registration-api/internal/reconcile"
	"github.com/noah-isme/olympiad-registration-api/internal/service"
	appErrors "github.com/noah-isme/olympiad-registration-api/pkg/errors"
)

type responseEnvelope struct {
	Data  map[string]interface{} `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

func newTestContext(method, target string, body interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	c.Request = httptest.NewRequest(method, target, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	return c, rec
}

type fakeRegistrationSrv struct {
	reg       *models.Registration
	quote     *dto.QuoteResponse
	err       error
	lastActor *models.JWTClaims
	lastReq   dto.RegistrationRequest
	cancelled string
}

func (f *fakeRegistrationSrv) Quote(_ context.Context, actor *models.JWTClaims, req dto.RegistrationRequest) (*dto.QuoteResponse, error) {
	f.lastActor, f.lastReq = actor, req
	return f.quote, f.err
}

func (f *fakeRegistrationSrv) Submit(_ context.Context, actor *models.JWTClaims, req dto.RegistrationRequest) (*models.Registration, error) {
	f.lastActor, f.lastReq = actor, req
	return f.reg, f.err
}

func (f *fakeRegistrationSrv) Get(_ context.Context, actor *models.JWTClaims, id string) (*models.Registration, error) {
	f.lastActor = actor
	return f.reg, f.err
}

func (f *fakeRegistrationSrv) Cancel(_ context.Context, actor *models.JWTClaims, id string) error {
	f.cancelled = id
	return f.err
}

func (f *fakeRegistrationSrv) UpdatePaymentStatus(_ context.Context, id string, req dto.PaymentStatusRequest) (*models.Registration, error) {
	return f.reg, f.err
}

func TestRegistrationHandlerSubmitCreated(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	srv := &fakeRegistrationSrv{reg: &models.Registration{ID: "reg-1", CreatedAt: now, UpdatedAt: now, TotalCost: 16}}
	handler := NewRegistrationHandler(srv)
	actor := &models.JWTClaims{UserID: "tutor-1", Role: models.RoleTutor}

	c, rec := newTestContext(http.MethodPost, "/registrations", dto.RegistrationRequest{StudentID: "stu-1", CallID: "call-1", AreaIDs: []string{"mat"}})
	c.Set(middleware.ContextUserKey, actor)
	handler.Submit(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Same(t, actor, srv.lastActor)
	assert.Equal(t, []string{"mat"}, srv.lastReq.AreaIDs)
	assert.Equal(t, "reg-1", decodeEnvelope(t, rec).Data["id"])
}

func TestRegistrationHandlerSubmitUpdated(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	srv := &fakeRegistrationSrv{reg: &models.Registration{ID: "reg-1", CreatedAt: created, UpdatedAt: created.Add(time.Hour)}}

	c, rec := newTestContext(http.MethodPost, "/registrations", dto.RegistrationRequest{StudentID: "stu-1", CallID: "call-1"})
	NewRegistrationHandler(srv).Submit(c)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegistrationHandlerSubmitMapsRuleErrors(t *testing.T) {
	srv := &fakeRegistrationSrv{err: appErrors.Clone(appErrors.ErrIneligibleArea, "Física is not available for 5° Primaria")}

	c, rec := newTestContext(http.MethodPost, "/registrations", dto.RegistrationRequest{StudentID: "stu-1", CallID: "call-1"})
	NewRegistrationHandler(srv).Submit(c)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	envelope := decodeEnvelope(t, rec)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "INELIGIBLE_AREA", envelope.Error.Code)
}

func TestRegistrationHandlerRejectsMalformedBody(t *testing.T) {
	c, rec := newTestContext(http.MethodPost, "/registrations", nil)
	c.Request = httptest.NewRequest(http.MethodPost, "/registrations", bytes.NewBufferString("{"))
	NewRegistrationHandler(&fakeRegistrationSrv{}).Submit(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegistrationHandlerCancel(t *testing.T) {
	srv := &fakeRegistrationSrv{}
	c, _ := newTestContext(http.MethodDelete, "/registrations/reg-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "reg-1"}}
	NewRegistrationHandler(srv).Cancel(c)

	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Equal(t, "reg-1", srv.cancelled)

	srv.err = appErrors.ErrFinalized
	c, rec := newTestContext(http.MethodDelete, "/registrations/reg-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "reg-1"}}
	NewRegistrationHandler(srv).Cancel(c)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

type fakeCallSrv struct {
	call     *models.Call
	hit      bool
	err      error
	eligible *dto.EligibleAreasResponse
	course   int
}

func (f *fakeCallSrv) List(context.Context, models.CallFilter) ([]models.Call, *models.Pagination, error) {
	return []models.Call{*f.call}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, f.err
}

func (f *fakeCallSrv) Lookup(context.Context, string) (*models.Call, bool, error) {
	return f.call, f.hit, f.err
}

func (f *fakeCallSrv) Create(context.Context, dto.CallRequest) (*models.Call, error) {
	return f.call, f.err
}

func (f *fakeCallSrv) Update(context.Context, string, dto.CallRequest) (*models.Call, error) {
	return f.call, f.err
}

func (f *fakeCallSrv) ReplaceAreas(context.Context, string, dto.ReplaceAreasRequest) (*models.Call, error) {
	return f.call, f.err
}

func (f *fakeCallSrv) EligibleAreas(_ context.Context, _ string, course int) (*dto.EligibleAreasResponse, error) {
	f.course = course
	return f.eligible, f.err
}

func TestCallHandlerGetReportsCacheHit(t *testing.T) {
	srv := &fakeCallSrv{call: &models.Call{ID: "call-1", Name: "Olimpiada"}, hit: true}

	c, rec := newTestContext(http.MethodGet, "/calls/call-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "call-1"}}
	NewCallHandler(srv).Get(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, true, envelope.Meta["cache_hit"])
	assert.Equal(t, "call-1", envelope.Data["id"])
}

func TestCallHandlerEligibleAreasRequiresCourse(t *testing.T) {
	srv := &fakeCallSrv{eligible: &dto.EligibleAreasResponse{CallID: "call-1", Course: 8}}

	c, rec := newTestContext(http.MethodGet, "/calls/call-1/eligible-areas", nil)
	NewCallHandler(srv).EligibleAreas(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = newTestContext(http.MethodGet, "/calls/call-1/eligible-areas?course=8", nil)
	c.Params = gin.Params{{Key: "id", Value: "call-1"}}
	NewCallHandler(srv).EligibleAreas(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 8, srv.course)
}

func TestCallHandlerListRejectsBadActiveFlag(t *testing.T) {
	c, rec := newTestContext(http.MethodGet, "/calls?active=maybe", nil)
	NewCallHandler(&fakeCallSrv{call: &models.Call{}}).List(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakeReconcileSrv struct {
	run       *dto.ReconciliationRun
	latest    *dto.ReconciliationRun
	err       error
	ranDry    bool
	scheduled bool
}

func (f *fakeReconcileSrv) Run(_ context.Context, dryRun bool) (*dto.ReconciliationRun, error) {
	f.ranDry = dryRun
	return f.run, f.err
}

func (f *fakeReconcileSrv) Schedule() (*dto.ReconciliationRun, error) {
	f.scheduled = true
	return &dto.ReconciliationRun{Queued: true}, f.err
}

func (f *fakeReconcileSrv) Latest() *dto.ReconciliationRun { return f.latest }

func TestReconciliationHandlerDryRun(t *testing.T) {
	srv := &fakeReconcileSrv{run: &dto.ReconciliationRun{DryRun: true, Report: &reconcile.Report{Input: 3, Output: 2}}}

	c, rec := newTestContext(http.MethodPost, "/admin/reconciliations?dry_run=true", nil)
	NewReconciliationHandler(srv).Run(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, srv.ranDry)
	assert.False(t, srv.scheduled)
	report := decodeEnvelope(t, rec).Data["report"].(map[string]interface{})
	assert.Equal(t, float64(2), report["output"])
}

func TestReconciliationHandlerQueuesAppliedRun(t *testing.T) {
	srv := &fakeReconcileSrv{}

	c, rec := newTestContext(http.MethodPost, "/admin/reconciliations", nil)
	NewReconciliationHandler(srv).Run(c)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, srv.scheduled)
	assert.Equal(t, true, decodeEnvelope(t, rec).Data["queued"])
}

func TestReconciliationHandlerLatest(t *testing.T) {
	srv := &fakeReconcileSrv{}
	c, rec := newTestContext(http.MethodGet, "/admin/reconciliations/latest", nil)
	NewReconciliationHandler(srv).Latest(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	srv.latest = &dto.ReconciliationRun{Report: &reconcile.Report{Output: 4}}
	c, rec = newTestContext(http.MethodGet, "/admin/reconciliations/latest", nil)
	NewReconciliationHandler(srv).Latest(c)
	assert.Equal(t, http.StatusOK, rec.Code)
}

type fakeStudentSrv struct {
	lastQuery dto.StudentQuery
	lastActor *models.JWTClaims
}

func (f *fakeStudentSrv) List(_ context.Context, actor *models.JWTClaims, query dto.StudentQuery) ([]models.Student, *models.Pagination, error) {
	f.lastActor, f.lastQuery = actor, query
	return []models.Student{}, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func (f *fakeStudentSrv) Get(context.Context, *models.JWTClaims, string) (*models.Student, error) {
	return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to act for this student")
}

func (f *fakeStudentSrv) Create(_ context.Context, actor *models.JWTClaims, req dto.CreateStudentRequest) (*models.Student, error) {
	return &models.Student{ID: "stu-1", CI: req.CI}, nil
}

func TestStudentHandlerListBindsQuery(t *testing.T) {
	srv := &fakeStudentSrv{}
	actor := &models.JWTClaims{UserID: "tutor-1", Role: models.RoleTutor}

	c, rec := newTestContext(http.MethodGet, "/students?search=ana&course=8&school_id=sch-1&page=2", nil)
	c.Set(middleware.ContextUserKey, actor)
	NewStudentHandler(srv).List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dto.StudentQuery{Search: "ana", Course: 8, SchoolID: "sch-1", Page: 2}, srv.lastQuery)
	assert.Same(t, actor, srv.lastActor)
}

func TestStudentHandlerGetForbidden(t *testing.T) {
	c, rec := newTestContext(http.MethodGet, "/students/stu-2", nil)
	NewStudentHandler(&fakeStudentSrv{}).Get(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

type fakeAuthSrv struct {
	err error
}

func (f fakeAuthSrv) Login(context.Context, models.LoginRequest) (*models.LoginResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.LoginResponse{AccessToken: "token", ExpiresIn: 3600}, nil
}

func TestAuthHandlerLogin(t *testing.T) {
	c, rec := newTestContext(http.MethodPost, "/auth/login", models.LoginRequest{Email: "a@example.com", Password: "x"})
	NewAuthHandler(fakeAuthSrv{}).Login(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "token", decodeEnvelope(t, rec).Data["access_token"])

	c, rec = newTestContext(http.MethodPost, "/auth/login", models.LoginRequest{Email: "a@example.com", Password: "x"})
	NewAuthHandler(fakeAuthSrv{err: appErrors.ErrInvalidCredentials}).Login(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMetricsHandlerReady(t *testing.T) {
	healthy := NewMetricsHandler(service.NewMetricsService(), map[string]ReadinessCheck{
		"postgres": func(context.Context) error { return nil },
	})
	c, rec := newTestContext(http.MethodGet, "/ready", nil)
	healthy.Ready(c)
	assert.Equal(t, http.StatusOK, rec.Code)

	failing := NewMetricsHandler(nil, map[string]ReadinessCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})
	c, rec = newTestContext(http.MethodGet, "/ready", nil)
	failing.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")

	c, rec = newTestContext(http.MethodGet, "/metrics", nil)
	failing.Prometheus(c)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type fakeExportSrv struct {
	query dto.RegistrationExportQuery
	err   error
}

func (f *fakeExportSrv) WriteCSV(ctx context.Context, query dto.RegistrationExportQuery, w io.Writer) (int, error) {
	f.query = query
	if f.err != nil {
		return 0, f.err
	}
	_, _ = io.WriteString(w, "registration_id\nr1\n")
	return 1, nil
}

func TestExportHandlerRegistrations(t *testing.T) {
	srv := &fakeExportSrv{}
	h := NewExportHandler(srv)
	h.now = func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) }

	c, rec := newTestContext(http.MethodGet, "/admin/registrations/export?call_id=c1&status=paid&semicolon=true", nil)
	h.Registrations(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="registrations-20260302-100000.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "1", rec.Header().Get("X-Total-Count"))
	assert.Equal(t, "registration_id\nr1\n", rec.Body.String())
	assert.Equal(t, dto.RegistrationExportQuery{CallID: "c1", Status: models.RegistrationStatusPaid, Semicolon: true}, srv.query)
}

func TestExportHandlerRegistrationsError(t *testing.T) {
	srv := &fakeExportSrv{err: appErrors.Clone(appErrors.ErrValidation, "invalid export filter")}
	c, rec := newTestContext(http.MethodGet, "/admin/registrations/export?status=archived", nil)
	NewExportHandler(srv).Registrations(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	envelope := decodeEnvelope(t, rec)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, appErrors.ErrValidation.Code, envelope.Error.Code)
}

type fakeUserSrv struct {
	last service.CreateUserRequest
	err  error
}

func (f *fakeUserSrv) Get(ctx context.Context, id string) (*models.User, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
}

func (f *fakeUserSrv) Create(ctx context.Context, req service.CreateUserRequest) (*models.User, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.User{ID: "u-9", Email: req.Email, Role: req.Role, PasswordHash: "hash"}, nil
}

func TestUserHandlerCreate(t *testing.T) {
	srv := &fakeUserSrv{}
	c, rec := newTestContext(http.MethodPost, "/users", map[string]interface{}{
		"email": "tutor@colegio.bo", "full_name": "Rosa Flores", "role": "TUTOR", "password": "secreto123",
	})
	NewUserHandler(srv).Create(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, models.RoleTutor, srv.last.Role)
	assert.NotContains(t, rec.Body.String(), "hash")
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, "u-9", envelope.Data["id"])
}

func TestUserHandlerGetNotFound(t *testing.T) {
	c, rec := newTestContext(http.MethodGet, "/users/u-404", nil)
	c.Params = gin.Params{{Key: "id", Value: "u-404"}}
	NewUserHandler(&fakeUserSrv{}).Get(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
