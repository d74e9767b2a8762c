package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/tgshopbot/internal/models"
)

type CategoryRepository struct {
	db *sql.DB
}

func NewCategoryRepository(db *sql.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

func (r *CategoryRepository) DB() *sql.DB {
	return r.db
}

func (r *CategoryRepository) List(ctx context.Context) ([]models.Category, error) {
	const query = `SELECT id, name FROM categories ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *CategoryRepository) GetByID(ctx context.Context, id int64) (*models.Category, error) {
	const query = `SELECT id, name FROM categories WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	var c models.Category
	if err := row.Scan(&c.ID, &c.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get category by id: %w", err)
	}
	return &c, nil
}

func (r *CategoryRepository) GetByName(ctx context.Context, name string) (*models.Category, error) {
	const query = `SELECT id, name FROM categories WHERE name = ?`
	row := r.db.QueryRowContext(ctx, query, name)
	var c models.Category
	if err := row.Scan(&c.ID, &c.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get category by name: %w", err)
	}
	return &c, nil
}

// Ensure creates the category if it does not exist yet and returns the row.
func (r *CategoryRepository) Ensure(ctx context.Context, name string) (*models.Category, error) {
	const insert = `INSERT IGNORE INTO categories (name) VALUES (?)`
	if _, err := r.db.ExecContext(ctx, insert, name); err != nil {
		return nil, fmt.Errorf("insert category: %w", err)
	}
	category, err := r.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if category == nil {
		return nil, fmt.Errorf("category %q missing after ensure", name)
	}
	return category, nil
}
