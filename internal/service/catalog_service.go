package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/tgshopbot/internal/models"
	"github.com/example/tgshopbot/internal/repository"
)

var ErrCategoryNotFound = errors.New("category not found")

// CatalogService covers admin CRUD for categories, products and their
// autodelivery configuration.
type CatalogService struct {
	categories     *repository.CategoryRepository
	products       *repository.ProductRepository
	autodeliveries *repository.AutodeliveryRepository
}

func NewCatalogService(categories *repository.CategoryRepository, products *repository.ProductRepository, autodeliveries *repository.AutodeliveryRepository) *CatalogService {
	return &CatalogService{categories: categories, products: products, autodeliveries: autodeliveries}
}

func (s *CatalogService) Categories(ctx context.Context) ([]models.Category, error) {
	return s.categories.List(ctx)
}

func (s *CatalogService) EnsureCategory(ctx context.Context, name string) (*models.Category, error) {
	return s.categories.Ensure(ctx, name)
}

func (s *CatalogService) ProductsByCategory(ctx context.Context, categoryID int64) ([]models.Product, error) {
	return s.products.ListByCategory(ctx, categoryID)
}

func (s *CatalogService) Products(ctx context.Context) ([]models.Product, error) {
	return s.products.List(ctx)
}

func (s *CatalogService) Product(ctx context.Context, id int64) (*models.Product, error) {
	return s.products.GetByID(ctx, id)
}

func (s *CatalogService) AddProduct(ctx context.Context, categoryID int64, name, description string, price int, photoURL string) (*models.Product, error) {
	product := &models.Product{
		Name:        name,
		Description: description,
		Price:       price,
		CategoryID:  &categoryID,
		PhotoURL:    photoURL,
	}
	created, err := s.products.Create(ctx, product)
	if err != nil {
		return nil, fmt.Errorf("add product: %w", err)
	}
	return created, nil
}

// ConfigureAutodelivery replaces the autodelivery record of a product.
func (s *CatalogService) ConfigureAutodelivery(ctx context.Context, productID int64, enabled bool, contentText, fileURL string) error {
	rec := &models.Autodelivery{
		ProductID:   productID,
		Enabled:     enabled,
		ContentText: contentText,
		FileURL:     fileURL,
	}
	return s.autodeliveries.Upsert(ctx, rec)
}

func (s *CatalogService) Autodelivery(ctx context.Context, productID int64) (*models.Autodelivery, error) {
	return s.autodeliveries.GetByProduct(ctx, productID)
}

// DeleteProduct removes a product together with its autodelivery record.
// Purchases referencing the product keep their orphaned reference.
func (s *CatalogService) DeleteProduct(ctx context.Context, productID int64) error {
	if err := s.autodeliveries.Delete(ctx, productID); err != nil {
		return err
	}
	return s.products.Delete(ctx, productID)
}

// DeleteCategoryByName removes a category and everything under it: products,
// their autodelivery records, purchases of those products and the purchases'
// payments. The cascade runs in one transaction.
func (s *CatalogService) DeleteCategoryByName(ctx context.Context, name string) error {
	category, err := s.categories.GetByName(ctx, name)
	if err != nil {
		return err
	}
	if category == nil {
		return ErrCategoryNotFound
	}

	tx, err := s.categories.DB().BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	statements := []string{
		`DELETE FROM payments WHERE purchase_id IN (
			SELECT id FROM purchases WHERE product_id IN (SELECT id FROM products WHERE category_id = ?))`,
		`DELETE FROM purchases WHERE product_id IN (SELECT id FROM products WHERE category_id = ?)`,
		`DELETE FROM autodeliveries WHERE product_id IN (SELECT id FROM products WHERE category_id = ?)`,
		`DELETE FROM products WHERE category_id = ?`,
		`DELETE FROM categories WHERE id = ?`,
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt, category.ID); err != nil {
			return fmt.Errorf("cascade delete category: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit category delete: %w", err)
	}
	return nil
}
