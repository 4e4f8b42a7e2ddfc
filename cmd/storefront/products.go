package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/Skotchmaster/storefront/internal/catalog"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/shopspring/decimal"
)

func runProducts(ctx context.Context, a *app, args []string) error {
	sub, rest, err := subcommand(args, "list", "show", "categories")
	if err != nil {
		return err
	}

	switch sub {
	case "list":
		return productsList(ctx, a, rest)
	case "show":
		return productsShow(ctx, a, rest)
	default:
		return productsCategories(ctx, a)
	}
}

func productsList(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("products list")
	page := fs.Int("page", 0, "page number, from 0")
	size := fs.Int("size", catalog.DefaultPageSize, "page size")
	category := fs.Int64("category", 0, "only products in this category id")
	minPrice := fs.String("min", "", "lowest base price")
	maxPrice := fs.String("max", "", "highest base price")
	sortBy := fs.String("sort", "", "createdAt, basePrice or name")
	desc := fs.Bool("desc", false, "sort descending")
	if err := fs.Parse(args); err != nil {
		return err
	}

	f := catalog.Filter{Page: *page, Size: *size, CategoryID: *category, SortBy: *sortBy, Descending: *desc}
	var err error
	if f.MinPrice, err = parsePrice("min", *minPrice); err != nil {
		return err
	}
	if f.MaxPrice, err = parsePrice("max", *maxPrice); err != nil {
		return err
	}

	res, err := a.catalog.List(ctx, f)
	if err != nil {
		return err
	}
	return printProducts(a.out, res)
}

func parsePrice(name, v string) (*decimal.Decimal, error) {
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, fmt.Errorf("%w: -%s %q is not a number", catalog.ErrInvalidFilter, name, v)
	}
	return &d, nil
}

func printProducts(w io.Writer, res models.Page[models.ProductSummary]) error {
	if len(res.Content) == 0 {
		fmt.Fprintln(w, "No products match.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tPRICE\tSTOCK\tSLUG")
	for _, p := range res.Content {
		cat := "-"
		if p.Category != nil {
			cat = p.Category.Name
		}
		stock := fmt.Sprint(p.MinStock)
		if p.MinStock <= 0 {
			stock = "sold out"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, cat, p.BasePrice.StringFixed(0), stock, p.Slug)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nPage %d of %d, %d products\n", res.CurrentPage+1, max(res.TotalPages, 1), res.TotalElements)
	return nil
}

func productsShow(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("products show")
	id := fs.Int64("id", 0, "product id")
	slug := fs.String("slug", "", "product slug")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		p   models.ProductDetail
		err error
	)
	switch {
	case *id > 0:
		p, err = a.catalog.Get(ctx, *id)
	case *slug != "":
		p, err = a.catalog.BySlug(ctx, *slug)
	default:
		return errors.New("pass -id or -slug")
	}
	if err != nil {
		return err
	}
	return printProduct(a.out, p)
}

func printProduct(w io.Writer, p models.ProductDetail) error {
	fmt.Fprintf(w, "%s  (#%d, %s)\n", p.Name, p.ID, p.Slug)
	if p.Category != nil {
		fmt.Fprintf(w, "Category: %s\n", p.Category.Name)
	}
	fmt.Fprintf(w, "From: %s\n", p.BasePrice.StringFixed(0))
	if p.Description != "" {
		fmt.Fprintf(w, "\n%s\n", p.Description)
	}
	if sizes := catalog.Sizes(p); len(sizes) > 0 {
		fmt.Fprintf(w, "Sizes: %s\n", strings.Join(sizes, ", "))
	}
	if colors := catalog.Colors(p); len(colors) > 0 {
		fmt.Fprintf(w, "Colours: %s\n", strings.Join(colors, ", "))
	}
	fmt.Fprintln(w)

	if len(p.Skus) == 0 {
		fmt.Fprintln(w, "No variants listed.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SKU\tCODE\tVARIANT\tPRICE\tSTOCK")
	for _, s := range p.Skus {
		stock := fmt.Sprint(s.StockQty)
		if !s.Available || s.StockQty <= 0 {
			stock = "sold out"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s/%s\t%s\t%s\n", s.ID, s.PrimarySkuCode, s.Size, s.Color, s.Price.StringFixed(0), stock)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nAdd one with: storefront cart add -sku <id> -qty <n>\n")
	return nil
}

func productsCategories(ctx context.Context, a *app) error {
	cats, err := a.catalog.Categories(ctx)
	if err != nil {
		return err
	}
	if len(cats) == 0 {
		fmt.Fprintln(a.out, "No categories.")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSLUG")
	for _, c := range cats {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", c.ID, c.Name, c.Slug)
	}
	return tw.Flush()
}

// resolveSku turns -product/-size/-color into a SKU id for cart add.
func resolveSku(ctx context.Context, a *app, productID int64, size, color string) (int64, error) {
	p, err := a.catalog.Get(ctx, productID)
	if err != nil {
		return 0, err
	}
	sku, err := catalog.SelectSku(p, size, color)
	if err != nil {
		return 0, err
	}
	return sku.ID, nil
}
