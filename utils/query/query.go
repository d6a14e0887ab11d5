package query

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/NagallaThanvi/unilink/utils/response"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
	MaxOffset    = 1_000_000
)

var (
	ErrInvalidID        = errors.New("invalid id")
	ErrInvalidSortField = errors.New("invalid sortBy")
	ErrInvalidSortOrder = errors.New("invalid sortOrder")
)

// ListParams holds the query parameters every list endpoint accepts:
// id, limit, offset (or page), search, sortBy and sortOrder.
type ListParams struct {
	ID        *uint
	Limit     int
	Offset    int
	Search    string
	SortBy    string
	SortOrder string
}

// Sortable maps the sortBy values a resource accepts to their column names
type Sortable map[string]string

// ParseList reads the common list parameters. sortBy must be a key of
// sortable; an empty sortBy falls back to defaultSort descending.
func ParseList(c *fiber.Ctx, sortable Sortable, defaultSort string) (ListParams, error) {
	params := ListParams{
		Limit:     DefaultLimit,
		Search:    strings.TrimSpace(c.Query("search")),
		SortBy:    defaultSort,
		SortOrder: "desc",
	}

	if raw := c.Query("id"); raw != "" {
		id, err := ParseID(raw)
		if err != nil {
			return params, err
		}
		params.ID = &id
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return params, fmt.Errorf("invalid limit %q", raw)
		}
		params.Limit = limit
	}
	if params.Limit > MaxLimit {
		params.Limit = MaxLimit
	}

	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 || offset > MaxOffset {
			return params, fmt.Errorf("invalid offset %q", raw)
		}
		params.Offset = offset
	} else if raw := c.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		// checked before multiplying so a huge page cannot wrap negative
		if err != nil || page < 1 || page-1 > MaxOffset/params.Limit {
			return params, fmt.Errorf("invalid page %q", raw)
		}
		params.Offset = (page - 1) * params.Limit
	}

	if raw := c.Query("sortBy"); raw != "" {
		if _, ok := sortable[raw]; !ok {
			return params, ErrInvalidSortField
		}
		params.SortBy = raw
	}

	if raw := strings.ToLower(c.Query("sortOrder")); raw != "" {
		if raw != "asc" && raw != "desc" {
			return params, ErrInvalidSortOrder
		}
		params.SortOrder = raw
	}

	return params, nil
}

// Reject writes the 400 response for a ParseList or filter error
func Reject(c *fiber.Ctx, err error) error {
	if errors.Is(err, ErrInvalidID) {
		return response.InvalidID(c)
	}
	return response.InvalidQuery(c, err)
}

// OrderClause returns the ORDER BY expression for the params
func (p ListParams) OrderClause(sortable Sortable) string {
	column, ok := sortable[p.SortBy]
	if !ok {
		column = "id"
	}
	return column + " " + strings.ToUpper(p.SortOrder)
}

// Page applies ordering, limit and offset
func (p ListParams) Page(db *gorm.DB, sortable Sortable) *gorm.DB {
	return db.Order(p.OrderClause(sortable)).Limit(p.Limit).Offset(p.Offset)
}

// Search adds a case-insensitive LIKE over the given columns, OR'd together
func Search(db *gorm.DB, term string, columns ...string) *gorm.DB {
	if term == "" || len(columns) == 0 {
		return db
	}
	pattern := "%" + strings.ToLower(term) + "%"
	clauses := make([]string, 0, len(columns))
	args := make([]interface{}, 0, len(columns))
	for _, col := range columns {
		clauses = append(clauses, fmt.Sprintf("LOWER(%s) LIKE ?", col))
		args = append(args, pattern)
	}
	return db.Where("("+strings.Join(clauses, " OR ")+")", args...)
}

// ParseID parses a positive numeric id
func ParseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, ErrInvalidID
	}
	return uint(id), nil
}

// PathID parses the named route parameter as an id
func PathID(c *fiber.Ctx, name string) (uint, error) {
	return ParseID(c.Params(name))
}

// Uint reads an optional positive integer filter
func Uint(c *fiber.Ctx, name string) (*uint, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s", name)
	}
	u := uint(v)
	return &u, nil
}

// Int reads an optional integer filter
func Int(c *fiber.Ctx, name string) (*int, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s", name)
	}
	return &v, nil
}

// Bool reads an optional boolean filter
func Bool(c *fiber.Ctx, name string) (*bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s", name)
	}
	return &v, nil
}

// Time reads an optional RFC 3339 or YYYY-MM-DD timestamp filter
func Time(c *fiber.Ctx, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s", name)
	}
	return &t, nil
}

// OneOf reads an optional enum filter
func OneOf(c *fiber.Ctx, name string, allowed ...string) (string, error) {
	raw := c.Query(name)
	if raw == "" {
		return "", nil
	}
	for _, a := range allowed {
		if raw == a {
			return raw, nil
		}
	}
	return "", fmt.Errorf("invalid %s: must be one of %s", name, strings.Join(allowed, ", "))
}
