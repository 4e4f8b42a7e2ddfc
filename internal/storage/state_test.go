package storage

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_CartToken(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	tok, err := s.CartToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, tok)

	require.NoError(t, s.SaveCartToken(ctx, "t-1"))
	require.NoError(t, s.SaveCartToken(ctx, "t-2"))

	tok, err = s.CartToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t-2", tok)
}

func TestStore_GetMissing(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(context.Background(), "k", "v"))
	require.NoError(t, s.Delete(context.Background(), "k"))
	_, err = s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SessionCookies(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	got, err := s.SessionCookies(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.SaveSessionCookies(ctx, []*http.Cookie{{Name: "refreshToken", Value: "abc.def.ghi"}}))
	got, err = s.SessionCookies(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "refreshToken", got[0].Name)
	assert.Equal(t, "abc.def.ghi", got[0].Value)

	require.NoError(t, s.SaveSessionCookies(ctx, nil))
	got, err = s.SessionCookies(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_RememberOrder(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.RememberOrder(ctx, models.Order{
		OrderID: 1, TrackingToken: "a", Status: models.StatusPendingPayment,
		TotalAmount: decimal.NewFromInt(200000), CreatedAt: base,
	}))
	require.NoError(t, s.RememberOrder(ctx, models.Order{
		OrderID: 2, TrackingToken: "b", Status: models.StatusPendingPayment,
		TotalAmount: decimal.NewFromInt(50000), CreatedAt: base.Add(time.Hour),
	}))
	require.NoError(t, s.RememberOrder(ctx, models.Order{
		OrderID: 1, TrackingToken: "a", Status: models.StatusConfirmed,
		TotalAmount: decimal.NewFromInt(200000), CreatedAt: base,
	}))

	got, err := s.RecentOrders(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].TrackingToken)
	assert.Equal(t, "a", got[1].TrackingToken)
	assert.Equal(t, "CONFIRMED", got[1].Status)
	assert.Equal(t, "200000", got[1].TotalAmount)
}

func TestOpen_EmptyDSN(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}
