package listings

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmcloughlin/geohash"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/models"
	"github.com/shopspring/decimal"
)

const (
	DefaultPageSize = 12
	MaxPageSize     = 50

	// defaultNearPrecision is a geohash cell of roughly 5km x 5km.
	defaultNearPrecision = 5
)

// Point is a latitude/longitude pair.
type Point struct {
	Lat float64
	Lng float64
}

// Filter narrows a listing search. Zero values mean "no filter".
type Filter struct {
	Query       string
	City        string
	MinPrice    *decimal.Decimal
	MaxPrice    *decimal.Decimal
	MinBedrooms int
	Near        *Point
	// Precision is the geohash length used for Near; smaller is wider.
	Precision uint
	Page      int
	PageSize  int
}

// Normalize clamps paging to page >= 1 and 1 <= page size <= 50.
func (f *Filter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	if f.Precision == 0 || f.Precision > 12 {
		f.Precision = defaultNearPrecision
	}
	f.Query = strings.TrimSpace(f.Query)
	f.City = strings.TrimSpace(f.City)
}

// Page is one page of search results.
type Page struct {
	Items      []models.Property `json:"items"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"pageSize"`
	TotalPages int               `json:"totalPages"`
}

// NearCells returns the geohash cell containing p and its eight neighbours.
// Searching all nine avoids missing listings just across a cell edge.
func NearCells(p Point, precision uint) []string {
	center := geohash.EncodeWithPrecision(p.Lat, p.Lng, precision)
	return append([]string{center}, geohash.Neighbors(center)...)
}

// buildWhere returns the shared WHERE clause and its arguments.
func buildWhere(f Filter) (string, []any) {
	var b strings.Builder
	args := []any{models.PropertyStatusPublished}

	b.WriteString(" WHERE p.status = ?")
	if f.Query != "" {
		b.WriteString(" AND (p.title LIKE ? OR p.description LIKE ?)")
		term := "%" + f.Query + "%"
		args = append(args, term, term)
	}
	if f.City != "" {
		b.WriteString(" AND p.city = ?")
		args = append(args, f.City)
	}
	if f.MinPrice != nil {
		b.WriteString(" AND p.price >= ?")
		args = append(args, *f.MinPrice)
	}
	if f.MaxPrice != nil {
		b.WriteString(" AND p.price <= ?")
		args = append(args, *f.MaxPrice)
	}
	if f.MinBedrooms > 0 {
		b.WriteString(" AND p.bedrooms >= ?")
		args = append(args, f.MinBedrooms)
	}
	if f.Near != nil {
		cells := NearCells(*f.Near, f.Precision)
		b.WriteString(" AND LEFT(p.geohash, ?) IN (?" + strings.Repeat(", ?", len(cells)-1) + ")")
		args = append(args, f.Precision)
		for _, c := range cells {
			args = append(args, c)
		}
	}
	return b.String(), args
}

// Search returns published listings matching f, newest first, with the
// first photo of each.
func (s *Service) Search(ctx context.Context, f Filter) (*Page, error) {
	f.Normalize()
	where, args := buildWhere(f)

	var total int
	if err := s.read.QueryRowContext(ctx, "SELECT COUNT(*) FROM properties p"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count properties: %w", err)
	}

	page := &Page{
		Items:      []models.Property{},
		Total:      total,
		Page:       f.Page,
		PageSize:   f.PageSize,
		TotalPages: (total + f.PageSize - 1) / f.PageSize,
	}
	if total == 0 || (f.Page-1)*f.PageSize >= total {
		return page, nil
	}

	query := "SELECT " + propertyColumns + ", COALESCE(a.display_name, '')" + `
		FROM properties p
		LEFT JOIN agents a ON a.id = p.agent_id` + where + `
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT ? OFFSET ?`
	args = append(args, f.PageSize, (f.Page-1)*f.PageSize)

	rows, err := s.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search properties: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProperty(rows, true)
		if err != nil {
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		page.Items = append(page.Items, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range page.Items {
		photo, err := s.coverPhoto(ctx, page.Items[i].ID)
		if err != nil {
			return nil, err
		}
		if photo != nil {
			page.Items[i].Photos = []models.PropertyPhoto{*photo}
		}
	}
	return page, nil
}
