// Package memory is an in-memory Repository used for dev mode and tests.
// All mutations run under a single mutex so settlement batches are atomic.
package memory

import (
	"context"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/store"
	"shopledger/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	businessesByID  map[string]domain.Business
	usersByUsername map[string]domain.UserAccount
	settingsByBiz   map[string]domain.Settings
	productsByID    map[string]domain.Product
	salesByID       map[string]domain.Sale
	returnsByID     map[string]domain.Return
}

func New() *Store {
	return &Store{
		businessesByID:  make(map[string]domain.Business),
		usersByUsername: make(map[string]domain.UserAccount),
		settingsByBiz:   make(map[string]domain.Settings),
		productsByID:    make(map[string]domain.Product),
		salesByID:       make(map[string]domain.Sale),
		returnsByID:     make(map[string]domain.Return),
	}
}

func (s *Store) CreateAccount(_ context.Context, business domain.Business, user domain.UserAccount, settings domain.Settings) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.PasswordHash == "" || business.ID == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}

	now := time.Now().UTC()
	if business.CreatedAt.IsZero() {
		business.CreatedAt = now
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if settings.CreatedAt.IsZero() {
		settings.CreatedAt = now
	}
	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = now
	}
	user.Username = username

	s.businessesByID[business.ID] = business
	s.usersByUsername[username] = user
	s.settingsByBiz[settings.BusinessID] = settings
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyUser := user
	return &copyUser, nil
}

func (s *Store) GetSettings(_ context.Context, businessID string) (*domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings, exists := s.settingsByBiz[businessID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySettings := settings
	return &copySettings, nil
}

func (s *Store) SaveSettings(_ context.Context, settings domain.Settings) (*domain.Settings, error) {
	if settings.BusinessID == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if settings.ID == "" {
		if existing, ok := s.settingsByBiz[settings.BusinessID]; ok {
			settings.ID = existing.ID
			settings.CreatedAt = existing.CreatedAt
		} else {
			settings.ID = xid.New("settings")
		}
	}
	if settings.CreatedAt.IsZero() {
		settings.CreatedAt = time.Now().UTC()
	}
	settings.UpdatedAt = time.Now().UTC()

	s.settingsByBiz[settings.BusinessID] = settings
	saved := settings
	return &saved, nil
}

func (s *Store) UpdateSettings(_ context.Context, businessID string, settingsID string, patch domain.SettingsPatch) (*domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, exists := s.settingsByBiz[businessID]
	if !exists || settings.ID != settingsID {
		return nil, store.ErrNotFound
	}

	if patch.ShopName != nil {
		settings.ShopName = *patch.ShopName
	}
	if patch.OwnerName != nil {
		settings.OwnerName = *patch.OwnerName
	}
	if patch.Phone != nil {
		settings.Phone = *patch.Phone
	}
	if patch.Address != nil {
		settings.Address = *patch.Address
	}
	if patch.UPIID != nil {
		settings.UPIID = *patch.UPIID
	}
	settings.UpdatedAt = time.Now().UTC()

	s.settingsByBiz[businessID] = settings
	updated := settings
	return &updated, nil
}

func (s *Store) ListProducts(_ context.Context, businessID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, 16)
	for _, p := range s.productsByID {
		if p.BusinessID != businessID {
			continue
		}
		products = append(products, cloneProduct(p))
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})

	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.BusinessID == "" || strings.TrimSpace(product.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	s.productsByID[product.ID] = cloneProduct(product)
	created := cloneProduct(product)
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, businessID string, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.productsByID[productID]
	if !exists || product.BusinessID != businessID {
		return nil, store.ErrNotFound
	}
	copyProduct := cloneProduct(product)
	return &copyProduct, nil
}

func (s *Store) UpdateProduct(_ context.Context, businessID string, productID string, patch domain.ProductPatch) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.productsByID[productID]
	if !exists || product.BusinessID != businessID {
		return nil, store.ErrNotFound
	}

	if patch.Name != nil {
		product.Name = *patch.Name
	}
	if patch.Price != nil {
		product.Price = *patch.Price
	}
	if patch.Stock != nil {
		product.Stock = *patch.Stock
	}
	if patch.Category != nil {
		product.Category = *patch.Category
	}
	if patch.Size != nil {
		product.Size = *patch.Size
	}
	if patch.Color != nil {
		product.Color = *patch.Color
	}
	if patch.SizeQuantities != nil {
		product.SizeQuantities = *patch.SizeQuantities
	}
	if patch.Images != nil {
		product.Images = *patch.Images
	}
	product.UpdatedAt = time.Now().UTC()

	s.productsByID[productID] = cloneProduct(product)
	updated := cloneProduct(product)
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, businessID string, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.productsByID[productID]
	if !exists || product.BusinessID != businessID {
		return store.ErrNotFound
	}
	delete(s.productsByID, productID)
	return nil
}

func (s *Store) AdjustStock(_ context.Context, businessID string, adjustments []domain.StockAdjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.adjustStockLocked(businessID, adjustments)
	return nil
}

// adjustStockLocked applies relative deltas. Unknown or cross-business
// product ids are skipped with a warning so a stale cart line cannot fail
// an otherwise valid settlement.
func (s *Store) adjustStockLocked(businessID string, adjustments []domain.StockAdjustment) {
	for _, adj := range adjustments {
		product, exists := s.productsByID[adj.ProductID]
		if !exists || product.BusinessID != businessID {
			log.Printf("[memory-store] WARN: stock adjustment skipped, product %s not found for business %s", adj.ProductID, businessID)
			continue
		}
		product.Stock += adj.Delta
		product.UpdatedAt = time.Now().UTC()
		s.productsByID[adj.ProductID] = product
	}
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale, adjustments []domain.StockAdjustment) (*domain.Sale, error) {
	if sale.BusinessID == "" || len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.Timestamp.IsZero() {
		sale.Timestamp = time.Now().UTC()
	}
	if sale.Date == "" {
		sale.Date = sale.Timestamp.Format("2006-01-02")
	}

	s.adjustStockLocked(sale.BusinessID, adjustments)
	s.salesByID[sale.ID] = cloneSale(sale)
	created := cloneSale(sale)
	return &created, nil
}

func (s *Store) GetSale(_ context.Context, businessID string, saleID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[saleID]
	if !exists || sale.BusinessID != businessID {
		return nil, store.ErrNotFound
	}
	copySale := cloneSale(sale)
	return &copySale, nil
}

func (s *Store) ListSales(_ context.Context, businessID string) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterSalesLocked(businessID, func(domain.Sale) bool { return true }), nil
}

func (s *Store) ListSalesByDate(_ context.Context, businessID string, date string) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterSalesLocked(businessID, func(sale domain.Sale) bool {
		return sale.Date == date
	}), nil
}

func (s *Store) ListSalesByDateRange(_ context.Context, businessID string, startDate string, endDate string) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterSalesLocked(businessID, func(sale domain.Sale) bool {
		return sale.Date >= startDate && sale.Date <= endDate
	}), nil
}

func (s *Store) filterSalesLocked(businessID string, keep func(domain.Sale) bool) []domain.Sale {
	sales := make([]domain.Sale, 0, 16)
	for _, sale := range s.salesByID {
		if sale.BusinessID != businessID || !keep(sale) {
			continue
		}
		sales = append(sales, cloneSale(sale))
	}

	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.Timestamp.Equal(b.Timestamp) {
			return cmpString(b.ID, a.ID)
		}
		if a.Timestamp.After(b.Timestamp) {
			return -1
		}
		return 1
	})

	return sales
}

func (s *Store) CreateReturn(_ context.Context, ret domain.Return, adjustments []domain.StockAdjustment) (*domain.Return, error) {
	if ret.BusinessID == "" || ret.OriginalSaleID == "" || len(ret.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	if ret.Timestamp.IsZero() {
		ret.Timestamp = time.Now().UTC()
	}
	if ret.Date == "" {
		ret.Date = ret.Timestamp.Format("2006-01-02")
	}

	s.adjustStockLocked(ret.BusinessID, adjustments)
	s.returnsByID[ret.ID] = cloneReturn(ret)
	created := cloneReturn(ret)
	return &created, nil
}

func (s *Store) ListReturns(_ context.Context, businessID string) ([]domain.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterReturnsLocked(businessID, func(domain.Return) bool { return true }), nil
}

func (s *Store) ListReturnsBySale(_ context.Context, businessID string, saleID string) ([]domain.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterReturnsLocked(businessID, func(ret domain.Return) bool {
		return ret.OriginalSaleID == saleID
	}), nil
}

func (s *Store) ListReturnsByDateRange(_ context.Context, businessID string, startDate string, endDate string) ([]domain.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterReturnsLocked(businessID, func(ret domain.Return) bool {
		return ret.Date >= startDate && ret.Date <= endDate
	}), nil
}

func (s *Store) filterReturnsLocked(businessID string, keep func(domain.Return) bool) []domain.Return {
	returns := make([]domain.Return, 0, 8)
	for _, ret := range s.returnsByID {
		if ret.BusinessID != businessID || !keep(ret) {
			continue
		}
		returns = append(returns, cloneReturn(ret))
	}

	slices.SortFunc(returns, func(a, b domain.Return) int {
		if a.Timestamp.Equal(b.Timestamp) {
			return cmpString(b.ID, a.ID)
		}
		if a.Timestamp.After(b.Timestamp) {
			return -1
		}
		return 1
	})

	return returns
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneProduct(src domain.Product) domain.Product {
	dup := src
	if src.SizeQuantities != nil {
		quantities := make(map[string]int, len(src.SizeQuantities))
		for k, v := range src.SizeQuantities {
			quantities[k] = v
		}
		dup.SizeQuantities = quantities
	}
	if src.Images != nil {
		images := make([]string, len(src.Images))
		copy(images, src.Images)
		dup.Images = images
	}
	return dup
}

func cloneSale(src domain.Sale) domain.Sale {
	dup := src
	items := make([]domain.SaleItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return dup
}

func cloneReturn(src domain.Return) domain.Return {
	dup := src
	items := make([]domain.ReturnItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return dup
}
