// Package catalog reads products, their SKUs and categories from the
// storefront API. Every call is anonymous.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Skotchmaster/storefront/internal/apiclient"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/shopspring/decimal"
)

const DefaultPageSize = 20

const (
	SortCreatedAt = "createdAt"
	SortBasePrice = "basePrice"
	SortName      = "name"
)

var (
	ErrInvalidFilter  = errors.New("invalid product filter")
	ErrNotFound       = errors.New("product not found")
	ErrNoSuchVariant  = errors.New("no variant with that size and colour")
	ErrSkuUnavailable = errors.New("variant is out of stock")
)

var sortFields = map[string]bool{SortCreatedAt: true, SortBasePrice: true, SortName: true}

type API interface {
	Do(ctx context.Context, r apiclient.Request, out any) error
}

type Service struct {
	api API
}

func NewService(api API) *Service {
	return &Service{api: api}
}

// Filter narrows the product listing. Pages count from 0; an empty sort
// means newest first.
type Filter struct {
	Page       int
	Size       int
	CategoryID int64
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	SortBy     string
	Descending bool
}

func (f Filter) Validate() error {
	if f.Page < 0 {
		return fmt.Errorf("%w: page must not be negative", ErrInvalidFilter)
	}
	if f.SortBy != "" && !sortFields[f.SortBy] {
		return fmt.Errorf("%w: cannot sort by %q", ErrInvalidFilter, f.SortBy)
	}
	if f.MinPrice != nil && f.MinPrice.IsNegative() {
		return fmt.Errorf("%w: minimum price is negative", ErrInvalidFilter)
	}
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		return fmt.Errorf("%w: minimum price is above maximum", ErrInvalidFilter)
	}
	return nil
}

func (f Filter) Query() url.Values {
	q := url.Values{}
	size := f.Size
	if size <= 0 {
		size = DefaultPageSize
	}
	q.Set("page", strconv.Itoa(max(f.Page, 0)))
	q.Set("size", strconv.Itoa(size))
	if f.CategoryID > 0 {
		q.Set("categoryId", strconv.FormatInt(f.CategoryID, 10))
	}
	if f.MinPrice != nil {
		q.Set("minPrice", f.MinPrice.String())
	}
	if f.MaxPrice != nil {
		q.Set("maxPrice", f.MaxPrice.String())
	}

	sortBy, dir := f.SortBy, "ASC"
	if sortBy == "" {
		sortBy = SortCreatedAt
	}
	if f.Descending || f.SortBy == "" {
		dir = "DESC"
	}
	q.Set("sortBy", sortBy)
	q.Set("sortDirection", dir)
	return q
}

func (s *Service) List(ctx context.Context, f Filter) (models.Page[models.ProductSummary], error) {
	if err := f.Validate(); err != nil {
		return models.Page[models.ProductSummary]{}, err
	}

	var page models.Page[models.ProductSummary]
	err := s.api.Do(ctx, apiclient.Request{
		Method: http.MethodGet,
		Path:   "/product",
		Query:  f.Query(),
	}, &page)
	if err != nil {
		return models.Page[models.ProductSummary]{}, err
	}
	return page, nil
}

func (s *Service) Get(ctx context.Context, id int64) (models.ProductDetail, error) {
	if id <= 0 {
		return models.ProductDetail{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return s.detail(ctx, "/product/"+strconv.FormatInt(id, 10), "/product/{id}")
}

func (s *Service) BySlug(ctx context.Context, slug string) (models.ProductDetail, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return models.ProductDetail{}, fmt.Errorf("%w: empty slug", ErrNotFound)
	}
	return s.detail(ctx, "/product/slug/"+url.PathEscape(slug), "/product/slug/{slug}")
}

func (s *Service) detail(ctx context.Context, path, route string) (models.ProductDetail, error) {
	var p models.ProductDetail
	err := s.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: path, Route: route}, &p)
	if err != nil {
		if apiclient.IsKind(err, apiclient.KindNotFound) {
			return models.ProductDetail{}, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return models.ProductDetail{}, err
	}
	return p, nil
}

func (s *Service) Categories(ctx context.Context) ([]models.Category, error) {
	var out []models.Category
	if err := s.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/category"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SelectSku picks the variant matching size and colour, case-insensitively.
func SelectSku(p models.ProductDetail, size, color string) (models.Sku, error) {
	for _, sku := range p.Skus {
		if !strings.EqualFold(sku.Size, strings.TrimSpace(size)) || !strings.EqualFold(sku.Color, strings.TrimSpace(color)) {
			continue
		}
		if !sku.Available || sku.StockQty <= 0 {
			return sku, fmt.Errorf("%w: %s", ErrSkuUnavailable, sku.PrimarySkuCode)
		}
		return sku, nil
	}
	return models.Sku{}, fmt.Errorf("%w: %s/%s", ErrNoSuchVariant, size, color)
}

// Sizes and Colors list the distinct option values in SKU order.
func Sizes(p models.ProductDetail) []string {
	return distinct(p.Skus, func(s models.Sku) string { return s.Size })
}

func Colors(p models.ProductDetail) []string {
	return distinct(p.Skus, func(s models.Sku) string { return s.Color })
}

func distinct(skus []models.Sku, key func(models.Sku) string) []string {
	seen := make(map[string]bool, len(skus))
	var out []string
	for _, s := range skus {
		k := key(s)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
