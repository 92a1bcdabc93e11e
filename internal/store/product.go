package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prodcat/apiserver/types"
)

// ProductRepository handles persistence for products.
type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

const productColumns = `id, name, description, price, category, in_stock, image, created_by, is_deleted, created_at, updated_at`

// List returns the filtered page of products plus the total row count
// matching the filter (pre-pagination).
func (r *ProductRepository) List(ctx context.Context, filter types.ProductFilter) ([]types.Product, int, error) {
	where, args := buildProductWhere(filter)

	countQuery := `SELECT COUNT(1) FROM products ` + where
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit < 1 {
		limit = 12
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	listQuery := fmt.Sprintf(
		`SELECT %s FROM products %s ORDER BY %s OFFSET $%d LIMIT $%d`,
		productColumns, where, orderClause(filter.Sort), len(args)+1, len(args)+2,
	)
	args = append(args, offset, limit)

	rows, err := r.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	products := make([]types.Product, 0, limit)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return products, total, nil
}

func (r *ProductRepository) Get(ctx context.Context, id int) (types.Product, error) {
	query := fmt.Sprintf(`SELECT %s FROM products WHERE id = $1`, productColumns)
	row := r.db.QueryRowContext(ctx, query, id)

	var product types.Product
	err := row.Scan(
		&product.ID,
		&product.Name,
		&product.Description,
		&product.Price,
		&product.Category,
		&product.InStock,
		&product.Image,
		&product.CreatedBy,
		&product.IsDeleted,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Product{}, ErrNotFound
		}
		return types.Product{}, err
	}
	return product, nil
}

func (r *ProductRepository) Create(ctx context.Context, product types.Product) (types.Product, error) {
	now := time.Now()
	product.CreatedAt = now
	product.UpdatedAt = now

	const query = `
		INSERT INTO products (name, description, price, category, in_stock, image, created_by, is_deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		product.Name,
		product.Description,
		product.Price,
		product.Category,
		product.InStock,
		product.Image,
		product.CreatedBy,
		product.IsDeleted,
		product.CreatedAt,
		product.UpdatedAt,
	).Scan(&product.ID); err != nil {
		return types.Product{}, err
	}

	return product, nil
}

func (r *ProductRepository) Update(ctx context.Context, product types.Product) (types.Product, error) {
	product.UpdatedAt = time.Now()

	const query = `
		UPDATE products
		SET name = $1,
			description = $2,
			price = $3,
			category = $4,
			in_stock = $5,
			image = $6,
			updated_at = $7
		WHERE id = $8`
	result, err := r.db.ExecContext(
		ctx,
		query,
		product.Name,
		product.Description,
		product.Price,
		product.Category,
		product.InStock,
		product.Image,
		product.UpdatedAt,
		product.ID,
	)
	if err != nil {
		return types.Product{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Product{}, err
	}
	if affected == 0 {
		return types.Product{}, ErrNotFound
	}

	return product, nil
}

// SetDeleted flips the soft-delete flag; it implements both trash and
// restore.
func (r *ProductRepository) SetDeleted(ctx context.Context, id int, deleted bool) error {
	const query = `
		UPDATE products
		SET is_deleted = $1,
			updated_at = $2
		WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, deleted, time.Now(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete permanently removes the row. There is no way back.
func (r *ProductRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM products WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func buildProductWhere(filter types.ProductFilter) (string, []any) {
	clauses := []string{"is_deleted = $1"}
	args := []any{filter.IsDeleted}

	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", n, n))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		clauses = append(clauses, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.MinPrice != nil {
		args = append(args, *filter.MinPrice)
		clauses = append(clauses, fmt.Sprintf("price >= $%d", len(args)))
	}
	if filter.MaxPrice != nil {
		args = append(args, *filter.MaxPrice)
		clauses = append(clauses, fmt.Sprintf("price <= $%d", len(args)))
	}
	if filter.InStock != nil {
		args = append(args, *filter.InStock)
		clauses = append(clauses, fmt.Sprintf("in_stock = $%d", len(args)))
	}

	return "WHERE " + strings.Join(clauses, " AND "), args
}

func orderClause(sort string) string {
	switch sort {
	case types.SortOldest:
		return "created_at ASC, id ASC"
	case types.SortPriceAsc:
		return "price ASC, id ASC"
	case types.SortPriceDesc:
		return "price DESC, id ASC"
	case types.SortName:
		return "name ASC, id ASC"
	default: // latest
		return "created_at DESC, id DESC"
	}
}

func scanProduct(rows *sql.Rows) (types.Product, error) {
	var product types.Product
	err := rows.Scan(
		&product.ID,
		&product.Name,
		&product.Description,
		&product.Price,
		&product.Category,
		&product.InStock,
		&product.Image,
		&product.CreatedBy,
		&product.IsDeleted,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	return product, err
}
