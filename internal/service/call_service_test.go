package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/olympiad-registration-api/internal/dto"
	"github.com/noah-isme/olympiad-registration-api/internal/models"
	appErrors "github.com/noah-isme/olympiad-registration-api/pkg/errors"
)

type fakeCallRepo struct {
	calls     map[string]*models.Call
	findCalls int
	replaced  []models.Area
}

func (f *fakeCallRepo) List(ctx context.Context, filter models.CallFilter) ([]models.Call, int, error) {
	out := make([]models.Call, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (f *fakeCallRepo) FindByID(ctx context.Context, id string) (*models.Call, error) {
	f.findCalls++
	c, ok := f.calls[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *c
	return &clone, nil
}

func (f *fakeCallRepo) Create(ctx context.Context, call *models.Call) error {
	call.ID = "call-new"
	f.calls[call.ID] = call
	return nil
}

func (f *fakeCallRepo) Update(ctx context.Context, call *models.Call) error {
	f.calls[call.ID] = call
	return nil
}

func (f *fakeCallRepo) ReplaceAreas(ctx context.Context, callID string, areas []models.Area) error {
	f.replaced = areas
	return nil
}

type memoryCache struct {
	data map[string][]byte
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

func (m *memoryCache) DeleteByPattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			delete(m.data, key)
		}
	}
	return nil
}

func newCallFixture(cacheEnabled bool) (*CallService, *fakeCallRepo, *memoryCache) {
	repo := &fakeCallRepo{calls: map[string]*models.Call{"call-1": olympiadCall(2)}}
	mem := &memoryCache{data: map[string][]byte{}}
	cache := NewCacheService(mem, NewMetricsService(), time.Minute, nil, cacheEnabled)
	return NewCallService(repo, cache, nil, nil, nil), repo, mem
}

func validCallRequest() dto.CallRequest {
	return dto.CallRequest{
		Name:        "  Olimpiada 2026 ",
		StartsAt:    testNow,
		EndsAt:      testNow.Add(30 * 24 * time.Hour),
		CostPerArea: 15.499,
		MaxAreas:    2,
		Active:      true,
		Areas: []dto.AreaRequest{
			{ID: "ast", Name: "Astronomía", Description: "Astro", Requirements: "4-12"},
			{ID: "rob", Name: "Robótica", Description: "Robots"},
		},
	}
}

func TestCallServiceGetUsesCache(t *testing.T) {
	svc, repo, mem := newCallFixture(true)

	first, err := svc.Get(context.Background(), "call-1")
	require.NoError(t, err)
	second, err := svc.Get(context.Background(), "call-1")
	require.NoError(t, err)

	assert.Equal(t, 1, repo.findCalls)
	assert.Contains(t, mem.data, "calls:call-1")
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, second.Areas, 3)

	_, err = svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestCallServiceUpdateInvalidatesCache(t *testing.T) {
	svc, repo, mem := newCallFixture(true)
	_, err := svc.Get(context.Background(), "call-1")
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), "call-1", validCallRequest())
	require.NoError(t, err)
	assert.Equal(t, "Olimpiada 2026", updated.Name)
	assert.Equal(t, 15.5, updated.CostPerArea)
	assert.NotContains(t, mem.data, "calls:call-1")
	assert.Len(t, repo.calls["call-1"].Areas, 3)
}

func TestCallServiceCreateValidates(t *testing.T) {
	svc, _, _ := newCallFixture(false)

	call, err := svc.Create(context.Background(), validCallRequest())
	require.NoError(t, err)
	assert.Equal(t, "call-new", call.ID)
	require.Len(t, call.Areas, 2)
	assert.Equal(t, models.CourseRanges{{Min: 4, Max: 12}}, call.Areas[0].Requirements)

	req := validCallRequest()
	req.EndsAt = req.StartsAt.Add(-time.Hour)
	_, err = svc.Create(context.Background(), req)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	req = validCallRequest()
	req.Areas[1].ID = "ast"
	_, err = svc.Create(context.Background(), req)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	req = validCallRequest()
	req.Areas[0].Requirements = "0-13"
	_, err = svc.Create(context.Background(), req)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	req = validCallRequest()
	req.Areas[0].Requirements = "9-4"
	_, err = svc.Create(context.Background(), req)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestCallServiceReplaceAreas(t *testing.T) {
	svc, repo, _ := newCallFixture(false)

	call, err := svc.ReplaceAreas(context.Background(), "call-1", dto.ReplaceAreasRequest{Areas: []dto.AreaRequest{{ID: "qui", Name: "Química", Description: "Química general"}}})
	require.NoError(t, err)
	require.Len(t, repo.replaced, 1)
	assert.Equal(t, "qui", call.Areas[0].ID)

	_, err = svc.ReplaceAreas(context.Background(), "missing", dto.ReplaceAreasRequest{Areas: []dto.AreaRequest{{Name: "X", Description: "Y"}}})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestCallServiceEligibleAreas(t *testing.T) {
	svc, _, _ := newCallFixture(false)

	resp, err := svc.EligibleAreas(context.Background(), "call-1", 5)
	require.NoError(t, err)
	assert.Equal(t, "5° Primaria", resp.CourseLabel)
	require.Len(t, resp.Areas, 3)

	byID := map[string]dto.EligibleArea{}
	for _, a := range resp.Areas {
		byID[a.ID] = a
	}
	assert.True(t, byID["mat"].Eligible)
	assert.Equal(t, "3-12", byID["mat"].Courses)
	assert.False(t, byID["fis"].Eligible)
	assert.Equal(t, "7-12", byID["fis"].Courses)
	assert.True(t, byID["bio"].Eligible)

	_, err = svc.EligibleAreas(context.Background(), "call-1", 13)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestCallServiceList(t *testing.T) {
	svc, _, _ := newCallFixture(false)

	calls, page, err := svc.List(context.Background(), models.CallFilter{PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, calls, 1)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PageSize)
	assert.Equal(t, 1, page.TotalCount)
}

func TestCallServiceLookupReportsCacheHit(t *testing.T) {
	svc, _, _ := newCallFixture(true)

	_, hit, err := svc.Lookup(context.Background(), "call-1")
	require.NoError(t, err)
	assert.False(t, hit)

	_, hit, err = svc.Lookup(context.Background(), "call-1")
	require.NoError(t, err)
	assert.True(t, hit)
}
