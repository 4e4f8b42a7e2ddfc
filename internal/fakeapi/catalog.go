package fakeapi

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

const codeProductNotFound = "PRODUCT_NOT_FOUND"

// Product groups SKUs for browsing. Its SKUs are those whose ProductID
// matches.
type Product struct {
	ID          int64
	CategoryID  int64
	Name        string
	Slug        string
	Description string
	BasePrice   decimal.Decimal
	ImageURLs   []string
	CreatedAt   time.Time
}

func DefaultCategories() []models.Category {
	return []models.Category{
		{ID: 1, Name: "Tops", Slug: "tops"},
		{ID: 2, Name: "Outerwear", Slug: "outerwear"},
	}
}

func DefaultProducts() []Product {
	day := func(d int) time.Time { return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC) }
	return []Product{
		{
			ID: 1, CategoryID: 1, Name: "Basic Tee", Slug: "basic-tee",
			Description: "Cotton crew neck tee.",
			BasePrice:   decimal.NewFromInt(100000),
			ImageURLs:   []string{"/img/basic-tee-1.jpg", "/img/basic-tee-2.jpg"},
			CreatedAt:   day(3),
		},
		{
			ID: 2, CategoryID: 2, Name: "Hoodie", Slug: "hoodie",
			Description: "Heavy fleece pullover hoodie.",
			BasePrice:   decimal.NewFromInt(450000),
			ImageURLs:   []string{"/img/hoodie-1.jpg"},
			CreatedAt:   day(5),
		},
		{
			ID: 3, CategoryID: 1, Name: "Linen Shirt", Slug: "linen-shirt",
			Description: "Relaxed linen button-up.",
			BasePrice:   decimal.NewFromInt(320000),
			CreatedAt:   day(1),
		},
	}
}

type productFilter struct {
	page, size int
	categoryID int64
	minPrice   *decimal.Decimal
	maxPrice   *decimal.Decimal
	sortBy     string
	desc       bool
}

func parseProductFilter(c echo.Context) (productFilter, error) {
	f := productFilter{sortBy: "createdAt", desc: true}
	bad := func(field string) error {
		return newAPIError(http.StatusBadRequest, codeValidationError, "invalid "+field)
	}

	for _, p := range []struct {
		name string
		dst  *int
	}{{"page", &f.page}, {"size", &f.size}} {
		if v := c.QueryParam(p.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return f, bad(p.name)
			}
			*p.dst = n
		}
	}
	if v := c.QueryParam("categoryId"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, bad("categoryId")
		}
		f.categoryID = n
	}
	for _, p := range []struct {
		name string
		dst  **decimal.Decimal
	}{{"minPrice", &f.minPrice}, {"maxPrice", &f.maxPrice}} {
		if v := c.QueryParam(p.name); v != "" {
			d, err := decimal.NewFromString(v)
			if err != nil {
				return f, bad(p.name)
			}
			*p.dst = &d
		}
	}
	if v := c.QueryParam("sortBy"); v != "" {
		switch v {
		case "createdAt", "basePrice", "name":
			f.sortBy = v
		default:
			return f, bad("sortBy")
		}
	}
	if v := c.QueryParam("sortDirection"); v != "" {
		f.desc = strings.EqualFold(v, "DESC")
	}
	return f, nil
}

func (f productFilter) match(p *Product) bool {
	if f.categoryID > 0 && p.CategoryID != f.categoryID {
		return false
	}
	if f.minPrice != nil && p.BasePrice.LessThan(*f.minPrice) {
		return false
	}
	if f.maxPrice != nil && p.BasePrice.GreaterThan(*f.maxPrice) {
		return false
	}
	return true
}

func (f productFilter) less(a, b *Product) bool {
	var cmp int
	switch f.sortBy {
	case "basePrice":
		cmp = a.BasePrice.Cmp(b.BasePrice)
	case "name":
		cmp = strings.Compare(a.Name, b.Name)
	default:
		cmp = a.CreatedAt.Compare(b.CreatedAt)
	}
	if cmp == 0 {
		cmp = int(a.ID - b.ID)
	}
	if f.desc {
		return cmp > 0
	}
	return cmp < 0
}

func (s *Server) listProducts(c echo.Context) error {
	f, err := parseProductFilter(c)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*Product
	for _, p := range s.products {
		if f.match(p) {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return f.less(matched[i], matched[j]) })

	page, size, from := pageBounds(f.page, f.size)
	var content []models.ProductSummary
	if from < len(matched) {
		for _, p := range matched[from:min(from+size, len(matched))] {
			content = append(content, s.summary(p))
		}
	}
	return s.respond(c, http.StatusOK, "products", models.NewPage(content, page, size, int64(len(matched))))
}

func (s *Server) getProduct(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return newAPIError(http.StatusNotFound, codeProductNotFound, "product not found")
	}
	return s.respond(c, http.StatusOK, "product", s.detail(p))
}

func (s *Server) productBySlug(c echo.Context) error {
	slug := c.Param("slug")

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.products {
		if p.Slug == slug {
			return s.respond(c, http.StatusOK, "product", s.detail(p))
		}
	}
	return newAPIError(http.StatusNotFound, codeProductNotFound, "product not found")
}

func (s *Server) listCategories(c echo.Context) error {
	out := append([]models.Category(nil), s.cfg.Categories...)
	return s.respond(c, http.StatusOK, "categories", out)
}

// skusOf returns a product's SKUs by id. s.mu must be held.
func (s *Server) skusOf(productID int64) []*SKU {
	var out []*SKU
	for _, sku := range s.skus {
		if sku.ProductID == productID {
			out = append(out, sku)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Server) category(id int64) *models.Category {
	for _, c := range s.cfg.Categories {
		if c.ID == id {
			cp := c
			return &cp
		}
	}
	return nil
}

// summary builds a listing row. s.mu must be held.
func (s *Server) summary(p *Product) models.ProductSummary {
	out := models.ProductSummary{
		ID:        p.ID,
		Name:      p.Name,
		Slug:      p.Slug,
		BasePrice: p.BasePrice,
		Category:  s.category(p.CategoryID),
	}
	if len(p.ImageURLs) > 0 {
		out.PrimaryImageURL = p.ImageURLs[0]
	}
	for i, sku := range s.skusOf(p.ID) {
		if i == 0 || sku.Stock < out.MinStock {
			out.MinStock = sku.Stock
		}
	}
	return out
}

// detail builds the product page. s.mu must be held.
func (s *Server) detail(p *Product) models.ProductDetail {
	out := models.ProductDetail{
		ID:          p.ID,
		Name:        p.Name,
		Slug:        p.Slug,
		Description: p.Description,
		BasePrice:   p.BasePrice,
		ImageURLs:   append([]string{}, p.ImageURLs...),
		Category:    s.category(p.CategoryID),
		Skus:        []models.Sku{},
	}
	for _, sku := range s.skusOf(p.ID) {
		out.Skus = append(out.Skus, models.Sku{
			ID:             sku.ID,
			SkuCodes:       []string{sku.Code},
			PrimarySkuCode: sku.Code,
			Size:           sku.Size,
			Color:          sku.Color,
			Price:          sku.Price,
			StockQty:       sku.Stock,
			Available:      sku.Stock > 0,
		})
	}
	return out
}
