package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"shopledger/backend/internal/cache"
	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/pricing"
	"shopledger/backend/internal/store"
	"shopledger/backend/internal/xid"
)

type identityContextKey struct{}

func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(domain.Identity)
	return identity, ok
}

type Service struct {
	repo       store.Repository
	summaries  cache.SummaryCache
	summaryTTL time.Duration
}

func New(repo store.Repository, summaries cache.SummaryCache, summaryTTL time.Duration) *Service {
	if summaries == nil {
		summaries = cache.NoopSummaryCache{}
	}
	if summaryTTL <= 0 {
		summaryTTL = 5 * time.Minute
	}

	return &Service{
		repo:       repo,
		summaries:  summaries,
		summaryTTL: summaryTTL,
	}
}

func (s *Service) identity(ctx context.Context) (domain.Identity, error) {
	identity, ok := IdentityFromContext(ctx)
	if !ok || identity.BusinessID == "" {
		return domain.Identity{}, fmt.Errorf("business scope required")
	}
	return identity, nil
}

func (s *Service) GetSettings(ctx context.Context) (domain.Settings, error) {
	identity, err := s.identity(ctx)
	if err != nil {
		return domain.Settings{}, err
	}

	settings, err := s.repo.GetSettings(ctx, identity.BusinessID)
	if errors.Is(err, store.ErrNotFound) {
		// Onboarding has not run yet. Report the unconfigured state
		// instead of a lookup failure.
		return domain.Settings{BusinessID: identity.BusinessID, SetupCompleted: false}, nil
	}
	if err != nil {
		return domain.Settings{}, err
	}
	return *settings, nil
}

// SetupSettings is upsert-shaped: the first call completes onboarding,
// repeat calls overwrite the same row. setupCompleted is stamped server
// side and is not client-settable.
func (s *Service) SetupSettings(ctx context.Context, req domain.SettingsSetupRequest) (domain.Settings, error) {
	identity, err := s.identity(ctx)
	if err != nil {
		return domain.Settings{}, err
	}

	req.ShopName = strings.TrimSpace(req.ShopName)
	req.OwnerName = strings.TrimSpace(req.OwnerName)
	if req.ShopName == "" || req.OwnerName == "" {
		return domain.Settings{}, fmt.Errorf("%w: shopName and ownerName are required", store.ErrInvalidInput)
	}

	settings := domain.Settings{
		BusinessID:     identity.BusinessID,
		ShopName:       req.ShopName,
		OwnerName:      req.OwnerName,
		Phone:          strings.TrimSpace(req.Phone),
		Address:        strings.TrimSpace(req.Address),
		UPIID:          strings.TrimSpace(req.UPIID),
		SetupCompleted: true,
	}
	if existing, err := s.repo.GetSettings(ctx, identity.BusinessID); err == nil {
		settings.ID = existing.ID
		settings.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.Settings{}, err
	}
	if settings.ID == "" {
		settings.ID = xid.New("settings")
	}

	saved, err := s.repo.SaveSettings(ctx, settings)
	if err != nil {
		return domain.Settings{}, err
	}
	return *saved, nil
}

func (s *Service) UpdateSettings(ctx context.Context, settingsID string, patch domain.SettingsPatch) (domain.Settings, error) {
	identity, err := s.identity(ctx)
	if err != nil {
		return domain.Settings{}, err
	}

	settingsID = strings.TrimSpace(settingsID)
	if settingsID == "" {
		return domain.Settings{}, store.ErrInvalidInput
	}
	if patch.ShopName != nil && strings.TrimSpace(*patch.ShopName) == "" {
		return domain.Settings{}, fmt.Errorf("%w: shopName cannot be blank", store.ErrInvalidInput)
	}
	if patch.OwnerName != nil && strings.TrimSpace(*patch.OwnerName) == "" {
		return domain.Settings{}, fmt.Errorf("%w: ownerName cannot be blank", store.ErrInvalidInput)
	}

	updated, err := s.repo.UpdateSettings(ctx, identity.BusinessID, settingsID, patch)
	if err != nil {
		return domain.Settings{}, err
	}
	return *updated, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	identity, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListProducts(ctx, identity.BusinessID)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	identity, err := s.identity(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Product{}, fmt.Errorf("%w: name is required", store.ErrInvalidInput)
	}
	if req.Price < 0 {
		return domain.Product{}, fmt.Errorf("%w: price cannot be negative", store.ErrInvalidInput)
	}

	product := domain.Product{
		ID:             xid.New("prod"),
		BusinessID:     identity.BusinessID,
		Name:           req.Name,
		Price:          req.Price,
		Stock:          req.Stock,
		Category:       strings.TrimSpace(req.Category),
		Size:           strings.TrimSpace(req.Size),
		Color:          strings.TrimSpace(req.Color),
		SizeQuantities: req.SizeQuantities,
		Images:         req.Images,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	return *created, nil
}

func (s *Service) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	identity, err := s.identity(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	if strings.TrimSpace(productID) == "" {
		return domain.Product{}, store.ErrInvalidInput
	}

	product, err := s.repo.GetProduct(ctx, identity.BusinessID, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) UpdateProduct(ctx context.Context, productID string, patch domain.ProductPatch) (domain.Product, error) {
	identity, err := s.identity(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return domain.Product{}, fmt.Errorf("%w: name cannot be blank", store.ErrInvalidInput)
	}
	if patch.Price != nil && *patch.Price < 0 {
		return domain.Product{}, fmt.Errorf("%w: price cannot be negative", store.ErrInvalidInput)
	}

	updated, err := s.repo.UpdateProduct(ctx, identity.BusinessID, productID, patch)
	if err != nil {
		return domain.Product{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, productID string) error {
	identity, err := s.identity(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(productID) == "" {
		return store.ErrInvalidInput
	}
	return s.repo.DeleteProduct(ctx, identity.BusinessID, productID)
}

// CreateSale settles a cart: it recomputes the per-line discount split,
// decrements stock for every line, and persists the sale in one store
// call. Line-level amounts from the request are recomputed, never trusted.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	identity, err := s.identity(ctx)
	if err != nil {
		return domain.Sale{}, err
	}

	sale, adjustments, err := s.buildSale(identity.BusinessID, req)
	if err != nil {
		return domain.Sale{}, err
	}

	created, err := s.repo.CreateSale(ctx, sale, adjustments)
	if err != nil {
		return domain.Sale{}, err
	}
	return *created, nil
}

func (s *Service) buildSale(businessID string, req domain.SaleCreateRequest) (domain.Sale, []domain.StockAdjustment, error) {
	if len(req.Items) == 0 {
		return domain.Sale{}, nil, fmt.Errorf("%w: sale requires at least one item", store.ErrInvalidInput)
	}

	method := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if method == "" {
		method = domain.PaymentCash
	}
	phone := strings.TrimSpace(req.CustomerPhone)
	if method == domain.PaymentCredit && phone == "" {
		return domain.Sale{}, nil, fmt.Errorf("%w: customer phone required for credit sales", store.ErrInvalidInput)
	}

	lines := make([]pricing.Line, 0, len(req.Items))
	for _, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" || item.Quantity < 1 {
			return domain.Sale{}, nil, fmt.Errorf("%w: every item needs a productId and a positive quantity", store.ErrInvalidInput)
		}
		lines = append(lines, pricing.Line{Price: item.Price, Quantity: item.Quantity})
	}

	allocations, originalTotal := pricing.Allocate(lines, req.DiscountAmount)

	items := make([]domain.SaleItem, len(req.Items))
	adjustments := make([]domain.StockAdjustment, 0, len(req.Items))
	for i, item := range req.Items {
		item.ItemTotal = allocations[i].ItemTotal
		item.DiscountAmount = allocations[i].DiscountAmount
		item.FinalPaidAmount = allocations[i].FinalPaidAmount
		items[i] = item
		adjustments = append(adjustments, domain.StockAdjustment{
			ProductID: item.ProductID,
			Delta:     -item.Quantity,
		})
	}

	if req.OriginalTotal == 0 {
		req.OriginalTotal = originalTotal
	}
	if req.Total == 0 {
		req.Total = originalTotal - req.DiscountAmount
	}

	sale := domain.Sale{
		BusinessID:     businessID,
		Items:          items,
		Total:          req.Total,
		OriginalTotal:  req.OriginalTotal,
		DiscountType:   strings.TrimSpace(req.DiscountType),
		DiscountValue:  req.DiscountValue,
		DiscountAmount: req.DiscountAmount,
		PaymentMethod:  method,
		CustomerPhone:  phone,
	}
	return sale, adjustments, nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	identity, err := s.identity(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	if strings.TrimSpace(saleID) == "" {
		return domain.Sale{}, store.ErrInvalidInput
	}

	sale, err := s.repo.GetSale(ctx, identity.BusinessID, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	identity, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSales(ctx, identity.BusinessID)
}

func (s *Service) TodaySales(ctx context.Context) ([]domain.Sale, error) {
	identity, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	today := time.Now().UTC().Format("2006-01-02")
	return s.repo.ListSalesByDate(ctx, identity.BusinessID, today)
}

func (s *Service) SalesByDateRange(ctx context.Context, startDate string, endDate string) ([]domain.Sale, error) {
	identity, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	startDate, endDate, err = normalizeDateRange(startDate, endDate)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSalesByDateRange(ctx, identity.BusinessID, startDate, endDate)
}

// CreateReturn restores stock for the returned lines and records the
// return against the originating sale. The sale's payment method is
// denormalized onto the return so reporting stays correct even if the
// sale record is later reclassified.
func (s *Service) CreateReturn(ctx context.Context, req domain.ReturnCreateRequest) (domain.Return, error) {
	identity, err := s.identity(ctx)
	if err != nil {
		return domain.Return{}, err
	}

	req.OriginalSaleID = strings.TrimSpace(req.OriginalSaleID)
	if req.OriginalSaleID == "" {
		return domain.Return{}, fmt.Errorf("%w: originalSaleId is required", store.ErrInvalidInput)
	}
	if len(req.Items) == 0 {
		return domain.Return{}, fmt.Errorf("%w: return requires at least one item", store.ErrInvalidInput)
	}
	for _, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" || item.Quantity < 1 {
			return domain.Return{}, fmt.Errorf("%w: every item needs a productId and a positive quantity", store.ErrInvalidInput)
		}
	}

	sale, err := s.repo.GetSale(ctx, identity.BusinessID, req.OriginalSaleID)
	if err != nil {
		return domain.Return{}, err
	}

	adjustments := make([]domain.StockAdjustment, 0, len(req.Items))
	for _, item := range req.Items {
		adjustments = append(adjustments, domain.StockAdjustment{
			ProductID: item.ProductID,
			Delta:     item.Quantity,
		})
	}

	ret := domain.Return{
		BusinessID:            identity.BusinessID,
		OriginalSaleID:        sale.ID,
		OriginalPaymentMethod: sale.PaymentMethod,
		Items:                 req.Items,
		ReturnTotal:           req.ReturnTotal,
		Reason:                strings.TrimSpace(req.Reason),
		Type:                  domain.ReturnTypeReturn,
	}

	created, err := s.repo.CreateReturn(ctx, ret, adjustments)
	if err != nil {
		return domain.Return{}, err
	}
	return *created, nil
}

func (s *Service) ListReturns(ctx context.Context) ([]domain.Return, error) {
	identity, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListReturns(ctx, identity.BusinessID)
}

func (s *Service) ListReturnsBySale(ctx context.Context, saleID string) ([]domain.Return, error) {
	identity, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(saleID) == "" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.ListReturnsBySale(ctx, identity.BusinessID, saleID)
}

// CreateExchange is a return and a replacement sale settled back to back.
// The return leg restores stock at original sale prices; the new sale leg
// runs the full sale settlement. The price difference is informational
// output, never a persisted ledger entry.
func (s *Service) CreateExchange(ctx context.Context, req domain.ExchangeRequest) (domain.ExchangeResponse, error) {
	identity, err := s.identity(ctx)
	if err != nil {
		return domain.ExchangeResponse{}, err
	}

	req.OriginalSaleID = strings.TrimSpace(req.OriginalSaleID)
	if req.OriginalSaleID == "" {
		return domain.ExchangeResponse{}, fmt.Errorf("%w: originalSaleId is required", store.ErrInvalidInput)
	}
	if len(req.ReturnItems) == 0 {
		return domain.ExchangeResponse{}, fmt.Errorf("%w: exchange requires at least one returned item", store.ErrInvalidInput)
	}
	for _, item := range req.ReturnItems {
		if strings.TrimSpace(item.ProductID) == "" || item.Quantity < 1 {
			return domain.ExchangeResponse{}, fmt.Errorf("%w: every item needs a productId and a positive quantity", store.ErrInvalidInput)
		}
	}

	originalSale, err := s.repo.GetSale(ctx, identity.BusinessID, req.OriginalSaleID)
	if err != nil {
		return domain.ExchangeResponse{}, err
	}

	// Returned lines are valued at original sale price, not the
	// discounted paid price.
	returnTotal := 0.0
	restores := make([]domain.StockAdjustment, 0, len(req.ReturnItems))
	for _, item := range req.ReturnItems {
		returnTotal += item.Price * float64(item.Quantity)
		restores = append(restores, domain.StockAdjustment{
			ProductID: item.ProductID,
			Delta:     item.Quantity,
		})
	}

	newSale, saleAdjustments, err := s.buildSale(identity.BusinessID, req.NewSale)
	if err != nil {
		return domain.ExchangeResponse{}, err
	}

	if err := s.repo.AdjustStock(ctx, identity.BusinessID, restores); err != nil {
		return domain.ExchangeResponse{}, err
	}

	createdSale, err := s.repo.CreateSale(ctx, newSale, saleAdjustments)
	if err != nil {
		return domain.ExchangeResponse{}, err
	}

	ret := domain.Return{
		BusinessID:            identity.BusinessID,
		OriginalSaleID:        originalSale.ID,
		OriginalPaymentMethod: originalSale.PaymentMethod,
		Items:                 req.ReturnItems,
		ReturnTotal:           returnTotal,
		Reason:                strings.TrimSpace(req.Reason),
		Type:                  domain.ReturnTypeExchange,
		ExchangeSaleID:        createdSale.ID,
	}
	createdReturn, err := s.repo.CreateReturn(ctx, ret, nil)
	if err != nil {
		return domain.ExchangeResponse{}, err
	}

	return domain.ExchangeResponse{
		Return:          *createdReturn,
		NewSale:         *createdSale,
		ReturnTotal:     returnTotal,
		NewSaleTotal:    createdSale.Total,
		PriceDifference: createdSale.Total - returnTotal,
	}, nil
}

func (s *Service) SalesSummary(ctx context.Context, startDate string, endDate string) (domain.SalesSummary, error) {
	identity, err := s.identity(ctx)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	startDate, endDate, err = normalizeDateRange(startDate, endDate)
	if err != nil {
		return domain.SalesSummary{}, err
	}

	cacheKey := fmt.Sprintf("summary:%s:%s:%s", identity.BusinessID, startDate, endDate)
	if cached, hit, err := s.summaries.Get(ctx, cacheKey); err != nil {
		log.Printf("[service] WARN: summary cache read failed key=%s: %v", cacheKey, err)
	} else if hit {
		return *cached, nil
	}

	sales, err := s.repo.ListSalesByDateRange(ctx, identity.BusinessID, startDate, endDate)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	returns, err := s.repo.ListReturnsByDateRange(ctx, identity.BusinessID, startDate, endDate)
	if err != nil {
		return domain.SalesSummary{}, err
	}

	summary := buildSummary(startDate, endDate, sales, returns)

	if err := s.summaries.Set(ctx, cacheKey, &summary, s.summaryTTL); err != nil {
		log.Printf("[service] WARN: summary cache write failed key=%s: %v", cacheKey, err)
	}

	return summary, nil
}

func buildSummary(startDate string, endDate string, sales []domain.Sale, returns []domain.Return) domain.SalesSummary {
	summary := domain.SalesSummary{
		StartDate: startDate,
		EndDate:   endDate,
		ByMethod:  make(map[string]domain.PaymentMethodSummary),
	}

	for _, sale := range sales {
		method := summaryBucket(sale.PaymentMethod)
		bucket := summary.ByMethod[method]
		bucket.Gross += sale.Total
		bucket.Count++
		summary.ByMethod[method] = bucket
		summary.GrossSales += sale.Total
		summary.SaleCount++
	}

	for _, ret := range returns {
		method := summaryBucket(ret.OriginalPaymentMethod)
		bucket := summary.ByMethod[method]
		bucket.Returns += ret.ReturnTotal
		summary.ByMethod[method] = bucket
		summary.TotalReturns += ret.ReturnTotal
		summary.ReturnCount++
	}

	for method, bucket := range summary.ByMethod {
		bucket.Net = bucket.Gross - bucket.Returns
		summary.ByMethod[method] = bucket
	}
	summary.NetSales = summary.GrossSales - summary.TotalReturns

	return summary
}

func summaryBucket(method string) string {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case domain.PaymentCash:
		return domain.PaymentCash
	case domain.PaymentUPI:
		return domain.PaymentUPI
	case domain.PaymentCard:
		return domain.PaymentCard
	case domain.PaymentCredit:
		return domain.PaymentCredit
	default:
		return domain.PaymentOther
	}
}

func normalizeDateRange(startDate string, endDate string) (string, string, error) {
	startDate = strings.TrimSpace(startDate)
	endDate = strings.TrimSpace(endDate)
	if startDate == "" || endDate == "" {
		return "", "", fmt.Errorf("%w: startDate and endDate are required", store.ErrInvalidInput)
	}
	if _, err := time.Parse("2006-01-02", startDate); err != nil {
		return "", "", fmt.Errorf("%w: startDate must be YYYY-MM-DD", store.ErrInvalidInput)
	}
	if _, err := time.Parse("2006-01-02", endDate); err != nil {
		return "", "", fmt.Errorf("%w: endDate must be YYYY-MM-DD", store.ErrInvalidInput)
	}
	if endDate < startDate {
		return "", "", fmt.Errorf("%w: endDate precedes startDate", store.ErrInvalidInput)
	}
	return startDate, endDate, nil
}
