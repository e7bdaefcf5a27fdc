package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/shubhsaxena/property-search/internal/models"
)

const propertyColumns = `property_id, name, landlord, address, city, state, type, status,
	price, cap_rate, file_url, latitude, longitude, property_created_at, property_updated_at`

// dispatchParamNames are the named arguments of search_properties_ai, in the
// order of models.DispatchParameters.Args.
var dispatchParamNames = []string{
	"p_lat", "p_lng", "p_radius_m",
	"p_address", "p_city", "p_state",
	"p_type", "p_status",
	"p_min_price", "p_max_price",
	"p_min_cap_rate", "p_max_cap_rate",
}

// SearchPropertiesAI calls the assisted search procedure. Rows come back in
// no particular order.
func (c *Client) SearchPropertiesAI(ctx context.Context, params models.DispatchParameters) ([]models.PropertyRow, error) {
	query := buildAssistedQuery(c.cfg.Schema)

	var rows []models.PropertyRow
	err := c.run(ctx, "search_properties_ai", func(ctx context.Context) error {
		return c.db.SelectContext(ctx, &rows, query, params.Args()...)
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func buildAssistedQuery(schema string) string {
	named := make([]string, len(dispatchParamNames))
	for i, name := range dispatchParamNames {
		named[i] = fmt.Sprintf("%s => $%d", name, i+1)
	}
	return fmt.Sprintf("SELECT %s FROM %s(%s)",
		propertyColumns, qualify(schema, "search_properties_ai"), strings.Join(named, ", "))
}

// SearchProperties runs a substring search over the property view with the
// caller's sort and page window, and returns the page with the exact total.
func (c *Client) SearchProperties(ctx context.Context, q *models.TraditionalQuery) ([]models.PropertyRow, int64, error) {
	selectSQL, countSQL, args := buildPropertyListQuery(c.cfg.Schema, q)

	var (
		rows  []models.PropertyRow
		total int64
	)
	err := c.run(ctx, "search_properties", func(ctx context.Context) error {
		if err := c.db.GetContext(ctx, &total, countSQL, args[:len(args)-2]...); err != nil {
			return fmt.Errorf("counting properties: %w", err)
		}
		if err := c.db.SelectContext(ctx, &rows, selectSQL, args...); err != nil {
			return fmt.Errorf("selecting properties: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// buildPropertyListQuery returns the page query, the count query and the
// arguments. The last two arguments are LIMIT and OFFSET; the count query
// uses all but those.
func buildPropertyListQuery(schema string, q *models.TraditionalQuery) (string, string, []any) {
	w := &where{}
	w.add("status <> 'Review'", nil)

	if term := strings.TrimSpace(q.Term); term != "" {
		w.add("(name ILIKE ? OR address ILIKE ? OR city ILIKE ? OR state ILIKE ? OR type ILIKE ? OR status ILIKE ?)", likePattern(term))
	}
	if q.Filters.PropertyType != nil {
		w.add("type ILIKE ?", *q.Filters.PropertyType)
	}
	if q.Filters.Status != nil {
		w.add("status ILIKE ?", *q.Filters.Status)
	}
	if q.Filters.MinPrice != nil {
		w.add("price >= ?", *q.Filters.MinPrice)
	}
	if q.Filters.MaxPrice != nil {
		w.add("price <= ?", *q.Filters.MaxPrice)
	}

	field, order := models.NormalizeSort(q.SortField, q.SortOrder, models.PropertySortFields, models.DefaultPropertySort)
	view := qualify(schema, "vw_property_with_image")

	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", view, w.sql())
	n := w.next()
	selectSQL := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s %s NULLS LAST, property_id LIMIT $%d OFFSET $%d",
		propertyColumns, view, w.sql(), field, strings.ToUpper(order), n, n+1)

	args := append(w.args, q.Limit, q.Offset)
	return selectSQL, countSQL, args
}

// ListProperties returns up to limit properties, newest first.
func (c *Client) ListProperties(ctx context.Context, limit int) ([]models.PropertyRow, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE status <> 'Review' ORDER BY property_created_at DESC NULLS LAST LIMIT $1",
		propertyColumns, qualify(c.cfg.Schema, "vw_property_with_image"))

	var rows []models.PropertyRow
	err := c.run(ctx, "list_properties", func(ctx context.Context) error {
		return c.db.SelectContext(ctx, &rows, query, c.listingLimit(limit))
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) listingLimit(limit int) int {
	if limit <= 0 || (c.cfg.ListingLimit > 0 && limit > c.cfg.ListingLimit) {
		return c.cfg.ListingLimit
	}
	return limit
}
