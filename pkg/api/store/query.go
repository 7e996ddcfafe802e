package store

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Pagination bounds for list operations.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// ListOptions carries the search, ordering and pagination parameters
// shared by every list operation.
type ListOptions struct {
	// Search is matched case-insensitively as a substring against the
	// resource's search fields; any field may match.
	Search string
	// Ordering lists public field names, "-" prefixed for descending.
	// Unknown fields are ignored.
	Ordering []string
	Page     int
	PageSize int
}

// Page is one page of list results with the total match count.
type Page[T any] struct {
	Count int64
	Items []T
}

// listSpec describes how a resource is searched and ordered.
type listSpec struct {
	// search holds SQL conditions with a single placeholder that receives
	// the lower-cased "%term%" pattern.
	search []string
	// order maps public ordering names to columns.
	order map[string]string
	// defaults is applied when no valid ordering was requested.
	defaults []clause.OrderByColumn
}

func orderBy(column string, desc bool) clause.OrderByColumn {
	return clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: desc}
}

// normalize clamps paging parameters to sane bounds.
func (o ListOptions) normalize() ListOptions {
	if o.Page < 1 {
		o.Page = 1
	}

	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}

	if o.PageSize > MaxPageSize {
		o.PageSize = MaxPageSize
	}

	return o
}

// searchScope adds the OR-combined search conditions.
func (ls listSpec) searchScope(term string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		term = strings.TrimSpace(term)
		if term == "" || len(ls.search) == 0 {
			return db
		}

		pattern := contains(term)
		args := make([]any, len(ls.search))

		for i := range args {
			args[i] = pattern
		}

		return db.Where(strings.Join(ls.search, " OR "), args...)
	}
}

// orderScope applies requested orderings, falling back to the defaults,
// and always ends with the primary key so pages are stable.
func (ls listSpec) orderScope(fields []string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		columns := make([]clause.OrderByColumn, 0, len(fields)+1)

		for _, f := range fields {
			f = strings.TrimSpace(f)
			desc := strings.HasPrefix(f, "-")

			if col, ok := ls.order[strings.TrimPrefix(f, "-")]; ok {
				columns = append(columns, orderBy(col, desc))
			}
		}

		if len(columns) == 0 {
			columns = append(columns, ls.defaults...)
		}

		columns = append(columns, orderBy("id", false))

		return db.Order(clause.OrderBy{Columns: columns})
	}
}

// list counts and fetches one page of T. base must already carry the
// resource's filters; preloads are applied to the page query only.
func list[T any](
	ctx context.Context,
	base *gorm.DB,
	ls listSpec,
	opts ListOptions,
	preload func(*gorm.DB) *gorm.DB,
) (*Page[T], error) {
	opts = opts.normalize()

	q := base.WithContext(ctx).Model(new(T)).Scopes(ls.searchScope(opts.Search))

	var count int64
	if err := q.Session(&gorm.Session{}).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("counting: %w", err)
	}

	// The first page may be empty; any later page must hold a row.
	offset := (opts.Page - 1) * opts.PageSize
	if opts.Page > 1 && int64(offset) >= count {
		return nil, ErrInvalidPage
	}

	items := make([]T, 0, opts.PageSize)

	pageQ := q.Session(&gorm.Session{}).
		Scopes(ls.orderScope(opts.Ordering)).
		Limit(opts.PageSize).
		Offset(offset)

	if preload != nil {
		pageQ = preload(pageQ)
	}

	if err := pageQ.Find(&items).Error; err != nil {
		return nil, fmt.Errorf("listing: %w", err)
	}

	return &Page[T]{Count: count, Items: items}, nil
}

// getByID loads one row of T by primary key.
func getByID[T any](
	ctx context.Context,
	db *gorm.DB,
	id any,
	preload func(*gorm.DB) *gorm.DB,
) (*T, error) {
	var row T

	q := db.WithContext(ctx)
	if preload != nil {
		q = preload(q)
	}

	if err := q.Where("id = ?", id).First(&row).Error; err != nil {
		return nil, translate(err, "id")
	}

	return &row, nil
}

// exists reports whether a row of T with the given id is present.
func exists[T any](tx *gorm.DB, id any) (bool, error) {
	var n int64
	if err := tx.Model(new(T)).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}

	return n > 0, nil
}

// deleteByID removes one row of T, returning ErrNotFound when absent.
func deleteByID[T any](tx *gorm.DB, id any) error {
	result := tx.Where("id = ?", id).Delete(new(T))
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// ilike builds a case-insensitive substring condition for column. Its
// argument must come from contains.
func ilike(column string) string {
	return "LOWER(" + column + `) LIKE ? ESCAPE '\'`
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// escapeLike escapes LIKE wildcards so s matches literally.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// contains returns the ilike argument matching term as a substring.
func contains(term string) string {
	return "%" + escapeLike(strings.ToLower(term)) + "%"
}

// updateRow writes every column of row except its associations, its
// creation time and any extra omitted columns, returning ErrNotFound when
// no row matched.
func updateRow(tx *gorm.DB, row any, omit ...string) error {
	result := tx.Model(row).
		Select("*").
		Omit(append([]string{clause.Associations, "created_at"}, omit...)...).
		Updates(row)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
