package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/Skotchmaster/storefront/internal/apiclient"
	"github.com/Skotchmaster/storefront/internal/fakeapi"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/session"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T) (*Service, *fakeapi.Server) {
	t.Helper()

	srv, err := fakeapi.New(fakeapi.Config{
		JWTSecret:  []byte("test-secret"),
		Logger:     logging.Discard(),
		BcryptCost: bcrypt.MinCost,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	api, err := apiclient.New(ts.URL+fakeapi.BasePath, session.New(), apiclient.WithLogger(logging.Discard()))
	require.NoError(t, err)
	return NewService(api), srv
}

func price(n int64) *decimal.Decimal {
	d := decimal.NewFromInt(n)
	return &d
}

func TestFilter_Query(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		f    Filter
		want url.Values
	}{
		{
			name: "defaults",
			f:    Filter{},
			want: url.Values{"page": {"0"}, "size": {"20"}, "sortBy": {"createdAt"}, "sortDirection": {"DESC"}},
		},
		{
			name: "everything",
			f:    Filter{Page: 2, Size: 5, CategoryID: 3, MinPrice: price(100), MaxPrice: price(900), SortBy: SortBasePrice},
			want: url.Values{
				"page": {"2"}, "size": {"5"}, "categoryId": {"3"},
				"minPrice": {"100"}, "maxPrice": {"900"},
				"sortBy": {"basePrice"}, "sortDirection": {"ASC"},
			},
		},
		{
			name: "name descending",
			f:    Filter{SortBy: SortName, Descending: true},
			want: url.Values{"page": {"0"}, "size": {"20"}, "sortBy": {"name"}, "sortDirection": {"DESC"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.f.Query())
		})
	}
}

func TestFilter_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		f    Filter
		ok   bool
	}{
		{name: "empty", f: Filter{}, ok: true},
		{name: "negative page", f: Filter{Page: -1}},
		{name: "unknown sort", f: Filter{SortBy: "stock"}},
		{name: "negative min", f: Filter{MinPrice: price(-1)}},
		{name: "min above max", f: Filter{MinPrice: price(500), MaxPrice: price(100)}},
		{name: "equal bounds", f: Filter{MinPrice: price(100), MaxPrice: price(100)}, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.f.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidFilter)
		})
	}
}

func TestService_List(t *testing.T) {
	t.Parallel()
	svc, srv := newTestService(t)
	ctx := context.Background()

	page, err := svc.List(ctx, Filter{CategoryID: 1, SortBy: SortBasePrice})
	require.NoError(t, err)
	require.Len(t, page.Content, 2)
	assert.Equal(t, "Basic Tee", page.Content[0].Name)
	assert.Equal(t, "Linen Shirt", page.Content[1].Name)

	_, err = svc.List(ctx, Filter{SortBy: "stock"})
	require.ErrorIs(t, err, ErrInvalidFilter)
	assert.Equal(t, 1, srv.Calls(http.MethodGet, "/product"))
}

func TestService_GetAndSelectSku(t *testing.T) {
	t.Parallel()
	svc, srv := newTestService(t)
	ctx := context.Background()

	p, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"S", "M"}, Sizes(p))
	assert.Equal(t, []string{"White", "Black"}, Colors(p))

	sku, err := SelectSku(p, "m", " black ")
	require.NoError(t, err)
	assert.Equal(t, int64(5), sku.ID)

	_, err = SelectSku(p, "XL", "Black")
	assert.ErrorIs(t, err, ErrNoSuchVariant)

	srv.SetStock(5, 0)
	p, err = svc.BySlug(ctx, "basic-tee")
	require.NoError(t, err)
	_, err = SelectSku(p, "M", "Black")
	assert.ErrorIs(t, err, ErrSkuUnavailable)
}

func TestService_NotFound(t *testing.T) {
	t.Parallel()
	svc, srv := newTestService(t)
	ctx := context.Background()

	_, err := svc.Get(ctx, 999)
	require.ErrorIs(t, err, ErrNotFound)
	apiErr, ok := apiclient.AsError(err)
	require.True(t, ok)
	assert.Equal(t, apiclient.CodeProductNotFound, apiErr.Code)

	_, err = svc.BySlug(ctx, "no-such-thing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Get(ctx, 0)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.BySlug(ctx, "  ")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, srv.Calls(http.MethodGet, "/product/:id"))
}

func TestService_Categories(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	cats, err := svc.Categories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Category{
		{ID: 1, Name: "Tops", Slug: "tops"},
		{ID: 2, Name: "Outerwear", Slug: "outerwear"},
	}, cats)
}
