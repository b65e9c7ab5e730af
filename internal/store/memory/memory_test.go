package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/store"
)

func TestAdjustStockSkipsUnknownProducts(t *testing.T) {
	s := New()
	ctx := context.Background()

	product, err := s.CreateProduct(ctx, domain.Product{BusinessID: "biz-a", Name: "Shirt", Price: 100, Stock: 5})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	err = s.AdjustStock(ctx, "biz-a", []domain.StockAdjustment{
		{ProductID: product.ID, Delta: -2},
		{ProductID: "prod-missing", Delta: -3},
	})
	if err != nil {
		t.Fatalf("adjust stock: %v", err)
	}

	after, err := s.GetProduct(ctx, "biz-a", product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Stock != 3 {
		t.Fatalf("expected stock 3, got %d", after.Stock)
	}
}

func TestAdjustStockIgnoresOtherBusinessProducts(t *testing.T) {
	s := New()
	ctx := context.Background()

	product, err := s.CreateProduct(ctx, domain.Product{BusinessID: "biz-a", Name: "Shirt", Price: 100, Stock: 5})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	if err := s.AdjustStock(ctx, "biz-b", []domain.StockAdjustment{{ProductID: product.ID, Delta: -5}}); err != nil {
		t.Fatalf("adjust stock: %v", err)
	}

	after, _ := s.GetProduct(ctx, "biz-a", product.ID)
	if after.Stock != 5 {
		t.Fatalf("expected stock untouched at 5, got %d", after.Stock)
	}
}

func TestSalesByDateRangeIsLexicographicInclusive(t *testing.T) {
	s := New()
	ctx := context.Background()

	dates := []string{"2026-01-31", "2026-02-01", "2026-02-15", "2026-03-01"}
	for i, date := range dates {
		ts, _ := time.Parse("2006-01-02", date)
		_, err := s.CreateSale(ctx, domain.Sale{
			ID:         "sale-" + date,
			BusinessID: "biz-a",
			Items:      []domain.SaleItem{{ProductID: "prod-1", Quantity: 1, Price: float64(i + 1)}},
			Total:      float64(i + 1),
			Timestamp:  ts,
			Date:       date,
		}, nil)
		if err != nil {
			t.Fatalf("create sale %s: %v", date, err)
		}
	}

	sales, err := s.ListSalesByDateRange(ctx, "biz-a", "2026-02-01", "2026-02-28")
	if err != nil {
		t.Fatalf("list by range: %v", err)
	}
	if len(sales) != 2 {
		t.Fatalf("expected 2 sales in range, got %d", len(sales))
	}
	for _, sale := range sales {
		if sale.Date < "2026-02-01" || sale.Date > "2026-02-28" {
			t.Fatalf("sale %s outside range", sale.Date)
		}
	}
}

func TestCreateAccountRejectsDuplicateUsername(t *testing.T) {
	s := New()
	ctx := context.Background()

	business := domain.Business{ID: "biz-a", Name: "Shop"}
	user := domain.UserAccount{ID: "user-1", Username: "alice", PasswordHash: "x", BusinessID: "biz-a"}
	settings := domain.Settings{ID: "settings-1", BusinessID: "biz-a"}

	if err := s.CreateAccount(ctx, business, user, settings); err != nil {
		t.Fatalf("create account: %v", err)
	}

	dup := domain.UserAccount{ID: "user-2", Username: "alice", PasswordHash: "y", BusinessID: "biz-b"}
	err := s.CreateAccount(ctx, domain.Business{ID: "biz-b", Name: "Other"}, dup, domain.Settings{ID: "settings-2", BusinessID: "biz-b"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreateSaleStampsDefaults(t *testing.T) {
	s := New()
	ctx := context.Background()

	sale, err := s.CreateSale(ctx, domain.Sale{
		BusinessID: "biz-a",
		Items:      []domain.SaleItem{{ProductID: "prod-1", Quantity: 1, Price: 10}},
		Total:      10,
	}, nil)
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.ID == "" {
		t.Fatalf("expected generated id")
	}
	if sale.Timestamp.IsZero() {
		t.Fatalf("expected timestamp stamped")
	}
	if sale.Date != sale.Timestamp.Format("2006-01-02") {
		t.Fatalf("expected date derived from timestamp, got %s", sale.Date)
	}
}
