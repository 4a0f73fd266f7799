package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/olympiad-registration-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	var dest map[string]string
	assert.ErrorIs(t, repo.Get(ctx, "calls:1", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(ctx, "calls:1", map[string]string{"a": "b"}, time.Minute))
	assert.NoError(t, repo.DeleteByPattern(ctx, "calls:*"))
	assert.NoError(t, repo.Ping(ctx))
}
