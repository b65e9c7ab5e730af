package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"shopledger/backend/internal/cache"
	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/store"
	"shopledger/backend/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.New(), cache.NoopSummaryCache{}, time.Minute)
}

func testContext(businessID string) context.Context {
	return WithIdentity(context.Background(), domain.Identity{
		UserID:     "user-" + businessID,
		BusinessID: businessID,
		Username:   "owner-" + businessID,
	})
}

func mustCreateProduct(t *testing.T, svc *Service, ctx context.Context, name string, price float64, stock int) domain.Product {
	t.Helper()
	product, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name:  name,
		Price: price,
		Stock: stock,
	})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	return product
}

func TestCreateSaleDecrementsStock(t *testing.T) {
	svc := newTestService()
	ctx := testContext("biz-a")

	product := mustCreateProduct(t, svc, ctx, "Shirt", 100, 10)

	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleItem{
			{ProductID: product.ID, ProductName: product.Name, Quantity: 2, Price: 100},
		},
		PaymentMethod: "cash",
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	if sale.Total != 200 {
		t.Fatalf("expected total 200, got %v", sale.Total)
	}
	if sale.Date != sale.Timestamp.Format("2006-01-02") {
		t.Fatalf("expected date derived from timestamp, got %s", sale.Date)
	}

	after, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if after.Stock != 8 {
		t.Fatalf("expected stock 8 after sale, got %d", after.Stock)
	}
}

func TestCreateSaleAllocatesDiscountProportionally(t *testing.T) {
	svc := newTestService()
	ctx := testContext("biz-a")

	shirt := mustCreateProduct(t, svc, ctx, "Shirt", 200, 5)
	cap := mustCreateProduct(t, svc, ctx, "Cap", 100, 5)

	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleItem{
			{ProductID: shirt.ID, ProductName: shirt.Name, Quantity: 1, Price: 200},
			{ProductID: cap.ID, ProductName: cap.Name, Quantity: 1, Price: 100},
		},
		DiscountAmount: 30,
		PaymentMethod:  "upi",
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	if sale.OriginalTotal != 300 {
		t.Fatalf("expected original total 300, got %v", sale.OriginalTotal)
	}
	if sale.Total != 270 {
		t.Fatalf("expected total 270, got %v", sale.Total)
	}
	if got := sale.Items[0].DiscountAmount; got != 20 {
		t.Fatalf("expected first line discount 20, got %v", got)
	}
	if got := sale.Items[1].DiscountAmount; got != 10 {
		t.Fatalf("expected second line discount 10, got %v", got)
	}

	paid := sale.Items[0].FinalPaidAmount + sale.Items[1].FinalPaidAmount
	if math.Abs(paid-sale.Total) > 0.02 {
		t.Fatalf("expected paid items to sum to total, got %v vs %v", paid, sale.Total)
	}
}

func TestCreateSaleCreditRequiresPhone(t *testing.T) {
	svc := newTestService()
	ctx := testContext("biz-a")

	product := mustCreateProduct(t, svc, ctx, "Shirt", 100, 10)

	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleItem{
			{ProductID: product.ID, Quantity: 1, Price: 100},
		},
		PaymentMethod: "Credit",
		CustomerPhone: "   ",
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
	if !strings.Contains(err.Error(), "phone") {
		t.Fatalf("expected error to mention phone, got %v", err)
	}
}

func TestCreateSaleAllowsNegativeStock(t *testing.T) {
	svc := newTestService()
	ctx := testContext("biz-a")

	product := mustCreateProduct(t, svc, ctx, "Shirt", 50, 1)

	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleItem{
			{ProductID: product.ID, Quantity: 3, Price: 50},
		},
		PaymentMethod: "cash",
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	after, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if after.Stock != -2 {
		t.Fatalf("expected stock -2, got %d", after.Stock)
	}
}

func TestGetSaleRoundTrip(t *testing.T) {
	svc := newTestService()
	ctx := testContext("biz-a")

	product := mustCreateProduct(t, svc, ctx, "Shirt", 100, 10)
	created, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleItem{
			{ProductID: product.ID, ProductName: product.Name, Quantity: 2, Price: 100},
		},
		PaymentMethod: "card",
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	fetched, err := svc.GetSale(ctx, created.ID)
	if err != nil {
		t.Fatalf("get sale failed: %v", err)
	}
	if fetched.Total != created.Total || fetched.PaymentMethod != created.PaymentMethod {
		t.Fatalf("fetched sale differs from created: %+v vs %+v", fetched, created)
	}
	if len(fetched.Items) != len(created.Items) {
		t.Fatalf("expected %d items, got %d", len(created.Items), len(fetched.Items))
	}
}

func TestCreateReturnRestoresStock(t *testing.T) {
	svc := newTestService()
	ctx := testContext("biz-a")

	product := mustCreateProduct(t, svc, ctx, "Shirt", 100, 10)
	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleItem{
			{ProductID: product.ID, ProductName: product.Name, Quantity: 2, Price: 100},
		},
		PaymentMethod: "cash",
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	ret, err := svc.CreateReturn(ctx, domain.ReturnCreateRequest{
		OriginalSaleID: sale.ID,
		Items: []domain.ReturnItem{
			{ProductID: product.ID, ProductName: product.Name, Quantity: 1, Price: 100},
		},
		ReturnTotal: 100,
		Reason:      "wrong size",
	})
	if err != nil {
		t.Fatalf("create return failed: %v", err)
	}
	if ret.Type != domain.ReturnTypeReturn {
		t.Fatalf("expected type return, got %s", ret.Type)
	}
	if ret.OriginalPaymentMethod != "cash" {
		t.Fatalf("expected denormalized payment method cash, got %s", ret.OriginalPaymentMethod)
	}

	after, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if after.Stock != 9 {
		t.Fatalf("expected stock 9 after return, got %d", after.Stock)
	}
}

func TestCreateReturnUnknownSale(t *testing.T) {
	svc := newTestService()
	ctx := testContext("biz-a")

	_, err := svc.CreateReturn(ctx, domain.ReturnCreateRequest{
		OriginalSaleID: "sale-missing",
		Items: []domain.ReturnItem{
			{ProductID: "prod-x", Quantity: 1, Price: 10},
		},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateExchangeSettlesBothLegs(t *testing.T) {
	svc := newTestService()
	ctx := testContext("biz-a")

	shirt := mustCreateProduct(t, svc, ctx, "Shirt", 100, 10)
	jacket := mustCreateProduct(t, svc, ctx, "Jacket", 250, 5)

	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleItem{
			{ProductID: shirt.ID, ProductName: shirt.Name, Quantity: 1, Price: 100},
		},
		PaymentMethod: "upi",
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	resp, err := svc.CreateExchange(ctx, domain.ExchangeRequest{
		OriginalSaleID: sale.ID,
		ReturnItems: []domain.ReturnItem{
			{ProductID: shirt.ID, ProductName: shirt.Name, Quantity: 1, Price: 100},
		},
		NewSale: domain.SaleCreateRequest{
			Items: []domain.SaleItem{
				{ProductID: jacket.ID, ProductName: jacket.Name, Quantity: 1, Price: 250},
			},
			PaymentMethod: "upi",
		},
		Reason: "upgrade",
	})
	if err != nil {
		t.Fatalf("create exchange failed: %v", err)
	}

	if resp.ReturnTotal != 100 {
		t.Fatalf("expected return total 100, got %v", resp.ReturnTotal)
	}
	if resp.NewSaleTotal != 250 {
		t.Fatalf("expected new sale total 250, got %v", resp.NewSaleTotal)
	}
	if resp.PriceDifference != 150 {
		t.Fatalf("expected price difference 150, got %v", resp.PriceDifference)
	}
	if resp.Return.Type != domain.ReturnTypeExchange {
		t.Fatalf("expected return type exchange, got %s", resp.Return.Type)
	}
	if resp.Return.ExchangeSaleID != resp.NewSale.ID {
		t.Fatalf("expected return linked to new sale %s, got %s", resp.NewSale.ID, resp.Return.ExchangeSaleID)
	}

	// Shirt back to its original level, jacket decremented by one.
	shirtAfter, _ := svc.GetProduct(ctx, shirt.ID)
	if shirtAfter.Stock != 10 {
		t.Fatalf("expected shirt stock 10, got %d", shirtAfter.Stock)
	}
	jacketAfter, _ := svc.GetProduct(ctx, jacket.ID)
	if jacketAfter.Stock != 4 {
		t.Fatalf("expected jacket stock 4, got %d", jacketAfter.Stock)
	}
}

func TestSalesSummaryNetsByPaymentMethod(t *testing.T) {
	svc := newTestService()
	ctx := testContext("biz-a")

	product := mustCreateProduct(t, svc, ctx, "Shirt", 100, 10)
	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleItem{
			{ProductID: product.ID, ProductName: product.Name, Quantity: 2, Price: 100},
		},
		PaymentMethod: "cash",
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	_, err = svc.CreateReturn(ctx, domain.ReturnCreateRequest{
		OriginalSaleID: sale.ID,
		Items: []domain.ReturnItem{
			{ProductID: product.ID, ProductName: product.Name, Quantity: 1, Price: 50},
		},
		ReturnTotal: 50,
	})
	if err != nil {
		t.Fatalf("create return failed: %v", err)
	}

	summary, err := svc.SalesSummary(ctx, sale.Date, sale.Date)
	if err != nil {
		t.Fatalf("sales summary failed: %v", err)
	}
	if summary.GrossSales != 200 {
		t.Fatalf("expected gross 200, got %v", summary.GrossSales)
	}
	if summary.TotalReturns != 50 {
		t.Fatalf("expected returns 50, got %v", summary.TotalReturns)
	}
	if summary.NetSales != 150 {
		t.Fatalf("expected net 150, got %v", summary.NetSales)
	}

	cashBucket := summary.ByMethod["cash"]
	if cashBucket.Net != 150 {
		t.Fatalf("expected cash net 150, got %v", cashBucket.Net)
	}
	if cashBucket.Count != 1 {
		t.Fatalf("expected one cash sale, got %d", cashBucket.Count)
	}
}

func TestSalesSummaryFoldsUnknownMethodsIntoOther(t *testing.T) {
	svc := newTestService()
	ctx := testContext("biz-a")

	product := mustCreateProduct(t, svc, ctx, "Shirt", 100, 10)
	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleItem{
			{ProductID: product.ID, Quantity: 1, Price: 100},
		},
		PaymentMethod: "barter",
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	summary, err := svc.SalesSummary(ctx, sale.Date, sale.Date)
	if err != nil {
		t.Fatalf("sales summary failed: %v", err)
	}
	if summary.ByMethod["other"].Gross != 100 {
		t.Fatalf("expected other bucket gross 100, got %v", summary.ByMethod["other"].Gross)
	}
}

func TestSalesSummaryRejectsInvalidRange(t *testing.T) {
	svc := newTestService()
	ctx := testContext("biz-a")

	if _, err := svc.SalesSummary(ctx, "2026-02-10", "2026-02-01"); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for reversed range, got %v", err)
	}
	if _, err := svc.SalesSummary(ctx, "not-a-date", "2026-02-01"); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for malformed date, got %v", err)
	}
}

func TestBusinessIsolation(t *testing.T) {
	svc := newTestService()
	ctxA := testContext("biz-a")
	ctxB := testContext("biz-b")

	product := mustCreateProduct(t, svc, ctxA, "Shirt", 100, 10)

	listB, err := svc.ListProducts(ctxB)
	if err != nil {
		t.Fatalf("list products failed: %v", err)
	}
	if len(listB) != 0 {
		t.Fatalf("expected no products for other business, got %d", len(listB))
	}

	if _, err := svc.GetProduct(ctxB, product.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for cross-business fetch, got %v", err)
	}
}

func TestGetSettingsDefaultsWhenUnconfigured(t *testing.T) {
	svc := newTestService()

	settings, err := svc.GetSettings(testContext("biz-fresh"))
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if settings.SetupCompleted {
		t.Fatalf("expected setupCompleted false before onboarding")
	}
	if settings.BusinessID != "biz-fresh" {
		t.Fatalf("expected business scope on default settings, got %q", settings.BusinessID)
	}
}

func TestSettingsSetupIsUpsert(t *testing.T) {
	svc := newTestService()
	ctx := testContext("biz-a")

	first, err := svc.SetupSettings(ctx, domain.SettingsSetupRequest{
		ShopName:  "Corner Shop",
		OwnerName: "Asha",
		UPIID:     "shop@upi",
	})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if !first.SetupCompleted {
		t.Fatalf("expected setupCompleted true")
	}

	second, err := svc.SetupSettings(ctx, domain.SettingsSetupRequest{
		ShopName:  "Corner Shop 2",
		OwnerName: "Asha",
	})
	if err != nil {
		t.Fatalf("second setup failed: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected setup to update the same row, got %s vs %s", second.ID, first.ID)
	}
	if second.ShopName != "Corner Shop 2" {
		t.Fatalf("expected shop name updated, got %s", second.ShopName)
	}
}

func TestOperationsRequireIdentity(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.ListProducts(ctx); err == nil {
		t.Fatalf("expected error without identity")
	}
	if _, err := svc.CreateSale(ctx, domain.SaleCreateRequest{}); err == nil {
		t.Fatalf("expected error without identity")
	}
}
