package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youpoison/YM-Logs-API/internal/metrika/metrikatest"
	"github.com/youpoison/YM-Logs-API/internal/retry"
)

func TestPurge(t *testing.T) {
	fake := &metrikatest.Fake{}
	ctx := context.Background()
	req := request(t, "2023-03-01", "2023-03-01")
	for i := 0; i < 3; i++ {
		_, err := fake.Create(ctx, req)
		require.NoError(t, err)
	}
	_, err := fake.Status(ctx, "2")
	require.NoError(t, err)

	removed, err := Purge(ctx, fake, 2, retry.Unbounded())
	require.NoError(t, err)

	assert.Equal(t, 3, removed)
	assert.Equal(t, 1, fake.Count("clean"))
	assert.Equal(t, 2, fake.Count("cancel"))
	assert.Equal(t, 0, fake.Open())
}

func TestPurge_FailuresAreSkipped(t *testing.T) {
	fake := &metrikatest.Fake{
		Errs: map[string][]error{"cancel": {errors.New("404 not found")}},
	}
	ctx := context.Background()
	req := request(t, "2023-03-01", "2023-03-01")
	for i := 0; i < 2; i++ {
		_, err := fake.Create(ctx, req)
		require.NoError(t, err)
	}

	removed, err := Purge(ctx, fake, 1, retry.Unbounded())
	require.NoError(t, err)

	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, fake.Open())
}

func TestPurge_ListFails(t *testing.T) {
	fake := &metrikatest.Fake{
		Errs: map[string][]error{"list": {errors.New("401 unauthorized")}},
	}

	_, err := Purge(context.Background(), fake, 1, retry.Unbounded())
	assert.Error(t, err)
}
