package store

import (
	"context"
	"errors"

	"shopledger/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
)

// Repository is the persistence surface for one deployment. Every query
// that takes a businessID must never return rows belonging to another
// business; cross-tenant lookups report ErrNotFound, not forbidden.
type Repository interface {
	CreateAccount(ctx context.Context, business domain.Business, user domain.UserAccount, settings domain.Settings) error
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)

	GetSettings(ctx context.Context, businessID string) (*domain.Settings, error)
	SaveSettings(ctx context.Context, settings domain.Settings) (*domain.Settings, error)
	UpdateSettings(ctx context.Context, businessID string, settingsID string, patch domain.SettingsPatch) (*domain.Settings, error)

	ListProducts(ctx context.Context, businessID string) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, businessID string, productID string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, businessID string, productID string, patch domain.ProductPatch) (*domain.Product, error)
	DeleteProduct(ctx context.Context, businessID string, productID string) error
	// AdjustStock applies the relative deltas atomically. Unknown product
	// ids are skipped rather than failing the batch.
	AdjustStock(ctx context.Context, businessID string, adjustments []domain.StockAdjustment) error

	// CreateSale persists the sale and applies the stock adjustments in a
	// single atomic step where the backing store supports it.
	CreateSale(ctx context.Context, sale domain.Sale, adjustments []domain.StockAdjustment) (*domain.Sale, error)
	GetSale(ctx context.Context, businessID string, saleID string) (*domain.Sale, error)
	ListSales(ctx context.Context, businessID string) ([]domain.Sale, error)
	ListSalesByDate(ctx context.Context, businessID string, date string) ([]domain.Sale, error)
	ListSalesByDateRange(ctx context.Context, businessID string, startDate string, endDate string) ([]domain.Sale, error)

	CreateReturn(ctx context.Context, ret domain.Return, adjustments []domain.StockAdjustment) (*domain.Return, error)
	ListReturns(ctx context.Context, businessID string) ([]domain.Return, error)
	ListReturnsBySale(ctx context.Context, businessID string, saleID string) ([]domain.Return, error)
	ListReturnsByDateRange(ctx context.Context, businessID string, startDate string, endDate string) ([]domain.Return, error)
}
