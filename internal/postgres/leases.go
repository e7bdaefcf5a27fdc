package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/shubhsaxena/property-search/internal/models"
)

const leaseColumns = `lease_id, property_id, property_name, user_id, tenant, landlord, status,
	lease_start, lease_end, annual_rent, comments, created_at, updated_at`

const documentColumns = `document_id, name, category, property_id, lease_id, file_url, created_at`

// ListLeases returns one page of the lease view and the exact total.
func (c *Client) ListLeases(ctx context.Context, q *models.LeaseListQuery) ([]models.LeaseRow, int64, error) {
	selectSQL, countSQL, args := buildLeaseListQuery(c.cfg.Schema, q)

	var (
		rows  []models.LeaseRow
		total int64
	)
	err := c.run(ctx, "list_leases", func(ctx context.Context) error {
		if err := c.db.GetContext(ctx, &total, countSQL, args[:len(args)-2]...); err != nil {
			return fmt.Errorf("counting leases: %w", err)
		}
		if err := c.db.SelectContext(ctx, &rows, selectSQL, args...); err != nil {
			return fmt.Errorf("selecting leases: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// buildLeaseListQuery mirrors buildPropertyListQuery. Extracted filters and
// the free-text term are exclusive: the term only applies when q.AI is nil.
func buildLeaseListQuery(schema string, q *models.LeaseListQuery) (string, string, []any) {
	w := &where{}

	if q.PropertyID != "" {
		w.add("property_id = ?", q.PropertyID)
	}
	if q.UserID != "" {
		w.add("user_id = ?", q.UserID)
	}
	if q.Status != "" && !strings.EqualFold(q.Status, "all") {
		w.add("status ILIKE ?", q.Status)
	}

	if ai := q.AI; ai != nil {
		if ai.Tenant != nil {
			w.add("tenant ILIKE ?", likePattern(*ai.Tenant))
		}
		if ai.Landlord != nil {
			w.add("landlord ILIKE ?", likePattern(*ai.Landlord))
		}
		if ai.PropertyName != nil {
			w.add("property_name ILIKE ?", likePattern(*ai.PropertyName))
		}
		if ai.LeaseStartFrom != nil {
			w.add("lease_start >= ?", *ai.LeaseStartFrom)
		}
		if ai.LeaseEndTo != nil {
			w.add("lease_end <= ?", *ai.LeaseEndTo)
		}
	} else if term := strings.TrimSpace(q.Term); term != "" {
		w.add("(tenant ILIKE ? OR landlord ILIKE ? OR property_name ILIKE ? OR comments ILIKE ?)", likePattern(term))
	}

	field, order := models.NormalizeSort(q.SortField, q.SortOrder, models.LeaseSortFields, models.DefaultLeaseSort)
	view := qualify(schema, "view_lease_property_with_user")

	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", view, w.sql())
	n := w.next()
	selectSQL := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s %s NULLS LAST, lease_id LIMIT $%d OFFSET $%d",
		leaseColumns, view, w.sql(), field, strings.ToUpper(order), n, n+1)

	args := append(w.args, q.Limit, q.Offset)
	return selectSQL, countSQL, args
}

// ListAllLeases returns up to limit leases, newest first.
func (c *Client) ListAllLeases(ctx context.Context, limit int) ([]models.LeaseRow, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY created_at DESC NULLS LAST LIMIT $1",
		leaseColumns, qualify(c.cfg.Schema, "view_lease_property_with_user"))

	var rows []models.LeaseRow
	err := c.run(ctx, "list_all_leases", func(ctx context.Context) error {
		return c.db.SelectContext(ctx, &rows, query, c.listingLimit(limit))
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListDocuments returns up to limit documents, newest first.
func (c *Client) ListDocuments(ctx context.Context, limit int) ([]models.DocumentRow, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY created_at DESC NULLS LAST LIMIT $1",
		documentColumns, qualify(c.cfg.Schema, "document"))

	var rows []models.DocumentRow
	err := c.run(ctx, "list_documents", func(ctx context.Context) error {
		return c.db.SelectContext(ctx, &rows, query, c.listingLimit(limit))
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// SearchLeaseVector returns the leases nearest to embedding.
func (c *Client) SearchLeaseVector(ctx context.Context, embedding []float32, limit int) ([]models.LeaseRow, error) {
	query := fmt.Sprintf("SELECT %s FROM %s(p_query => $1) LIMIT $2",
		leaseColumns, qualify(c.cfg.Schema, "search_lease_vector"))

	var rows []models.LeaseRow
	err := c.run(ctx, "search_lease_vector", func(ctx context.Context) error {
		return c.db.SelectContext(ctx, &rows, query, pgvector.NewVector(embedding), c.listingLimit(limit))
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// SearchDocumentVector returns the documents nearest to embedding with their
// similarity score.
func (c *Client) SearchDocumentVector(ctx context.Context, embedding []float32, limit int) ([]models.DocumentRow, error) {
	query := fmt.Sprintf("SELECT %s, similarity FROM %s(p_query => $1) LIMIT $2",
		documentColumns, qualify(c.cfg.Schema, "search_document_vector"))

	var rows []models.DocumentRow
	err := c.run(ctx, "search_document_vector", func(ctx context.Context) error {
		return c.db.SelectContext(ctx, &rows, query, pgvector.NewVector(embedding), c.listingLimit(limit))
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}
