package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/store"
	"shopledger/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateAccount(ctx context.Context, business domain.Business, user domain.UserAccount, settings domain.Settings) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || user.PasswordHash == "" || business.ID == "" {
		return store.ErrInvalidInput
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

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO businesses (id, name, created_at)
		VALUES ($1,$2,$3)
	`, business.ID, business.Name, business.CreatedAt)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO app_users (id, username, password_hash, business_id, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.ID, user.Username, user.PasswordHash, user.BusinessID, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO business_settings (
			id, business_id, shop_name, owner_name, phone, address, upi_id,
			setup_completed, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
	`, settings.ID, settings.BusinessID, settings.ShopName, settings.OwnerName,
		settings.Phone, settings.Address, settings.UPIID, settings.SetupCompleted, settings.CreatedAt)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, business_id, created_at
		FROM app_users
		WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username))).Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.BusinessID, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) GetSettings(ctx context.Context, businessID string) (*domain.Settings, error) {
	var settings domain.Settings
	err := s.db.QueryRowContext(ctx, `
		SELECT id, business_id, shop_name, owner_name, phone, address, upi_id,
			setup_completed, created_at, updated_at
		FROM business_settings
		WHERE business_id = $1
	`, businessID).Scan(
		&settings.ID,
		&settings.BusinessID,
		&settings.ShopName,
		&settings.OwnerName,
		&settings.Phone,
		&settings.Address,
		&settings.UPIID,
		&settings.SetupCompleted,
		&settings.CreatedAt,
		&settings.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	settings.CreatedAt = settings.CreatedAt.UTC()
	settings.UpdatedAt = settings.UpdatedAt.UTC()
	return &settings, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings domain.Settings) (*domain.Settings, error) {
	if settings.BusinessID == "" {
		return nil, store.ErrInvalidInput
	}
	if settings.ID == "" {
		settings.ID = xid.New("settings")
	}
	settings.UpdatedAt = time.Now().UTC()
	if settings.CreatedAt.IsZero() {
		settings.CreatedAt = settings.UpdatedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO business_settings (
			id, business_id, shop_name, owner_name, phone, address, upi_id,
			setup_completed, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (business_id)
		DO UPDATE SET shop_name = EXCLUDED.shop_name, owner_name = EXCLUDED.owner_name,
			phone = EXCLUDED.phone, address = EXCLUDED.address, upi_id = EXCLUDED.upi_id,
			setup_completed = EXCLUDED.setup_completed, updated_at = EXCLUDED.updated_at
	`, settings.ID, settings.BusinessID, settings.ShopName, settings.OwnerName,
		settings.Phone, settings.Address, settings.UPIID, settings.SetupCompleted,
		settings.CreatedAt, settings.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return s.GetSettings(ctx, settings.BusinessID)
}

func (s *Store) UpdateSettings(ctx context.Context, businessID string, settingsID string, patch domain.SettingsPatch) (*domain.Settings, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE business_settings
		SET shop_name = COALESCE($3, shop_name),
			owner_name = COALESCE($4, owner_name),
			phone = COALESCE($5, phone),
			address = COALESCE($6, address),
			upi_id = COALESCE($7, upi_id),
			updated_at = now()
		WHERE business_id = $1 AND id = $2
	`, businessID, settingsID, patch.ShopName, patch.OwnerName, patch.Phone, patch.Address, patch.UPIID)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetSettings(ctx, businessID)
}

const productColumns = `
	id, business_id, name, price, stock, category, size, color,
	size_quantities, images, created_at, updated_at
`

func (s *Store) ListProducts(ctx context.Context, businessID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE business_id = $1
		ORDER BY created_at DESC, id DESC
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *product)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.BusinessID == "" || strings.TrimSpace(product.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	quantitiesJSON, err := json.Marshal(product.SizeQuantities)
	if err != nil {
		return nil, err
	}
	imagesJSON, err := json.Marshal(product.Images)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO products (
			id, business_id, name, price, stock, category, size, color,
			size_quantities, images, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, product.ID, product.BusinessID, product.Name, product.Price, product.Stock,
		product.Category, product.Size, product.Color, quantitiesJSON, imagesJSON,
		product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProduct(ctx context.Context, businessID string, productID string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE business_id = $1 AND id = $2
	`, businessID, productID)

	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, businessID string, productID string, patch domain.ProductPatch) (*domain.Product, error) {
	var quantitiesJSON any
	if patch.SizeQuantities != nil {
		raw, err := json.Marshal(*patch.SizeQuantities)
		if err != nil {
			return nil, err
		}
		quantitiesJSON = raw
	}
	var imagesJSON any
	if patch.Images != nil {
		raw, err := json.Marshal(*patch.Images)
		if err != nil {
			return nil, err
		}
		imagesJSON = raw
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = COALESCE($3, name),
			price = COALESCE($4, price),
			stock = COALESCE($5, stock),
			category = COALESCE($6, category),
			size = COALESCE($7, size),
			color = COALESCE($8, color),
			size_quantities = COALESCE($9, size_quantities),
			images = COALESCE($10, images),
			updated_at = now()
		WHERE business_id = $1 AND id = $2
	`, businessID, productID, patch.Name, patch.Price, patch.Stock,
		patch.Category, patch.Size, patch.Color, quantitiesJSON, imagesJSON)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProduct(ctx, businessID, productID)
}

func (s *Store) DeleteProduct(ctx context.Context, businessID string, productID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM products
		WHERE business_id = $1 AND id = $2
	`, businessID, productID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) AdjustStock(ctx context.Context, businessID string, adjustments []domain.StockAdjustment) error {
	if len(adjustments) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := adjustStockTx(ctx, tx, businessID, adjustments); err != nil {
		return err
	}
	return tx.Commit()
}

// adjustStockTx applies relative deltas inside tx. Unknown product ids
// affect zero rows and are skipped with a warning, matching the memory
// store's behavior.
func adjustStockTx(ctx context.Context, tx *sql.Tx, businessID string, adjustments []domain.StockAdjustment) error {
	for _, adj := range adjustments {
		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock + $3, updated_at = now()
			WHERE business_id = $1 AND id = $2
		`, businessID, adj.ProductID, adj.Delta)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			log.Printf("[postgres-store] WARN: stock adjustment skipped, product %s not found for business %s", adj.ProductID, businessID)
		}
	}
	return nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale, adjustments []domain.StockAdjustment) (*domain.Sale, error) {
	if sale.BusinessID == "" || len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.Timestamp.IsZero() {
		sale.Timestamp = time.Now().UTC()
	}
	if sale.Date == "" {
		sale.Date = sale.Timestamp.Format("2006-01-02")
	}

	itemsJSON, err := json.Marshal(sale.Items)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := adjustStockTx(ctx, tx, sale.BusinessID, adjustments); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (
			id, business_id, items, total, original_total, discount_type,
			discount_value, discount_amount, payment_method, customer_phone,
			ts, sale_date
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, sale.ID, sale.BusinessID, itemsJSON, sale.Total, sale.OriginalTotal,
		nullIfEmpty(sale.DiscountType), sale.DiscountValue, sale.DiscountAmount,
		sale.PaymentMethod, nullIfEmpty(sale.CustomerPhone), sale.Timestamp, sale.Date)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := sale
	return &created, nil
}

const saleColumns = `
	id, business_id, items, total, original_total, COALESCE(discount_type,''),
	discount_value, discount_amount, payment_method, COALESCE(customer_phone,''),
	ts, sale_date
`

func (s *Store) GetSale(ctx context.Context, businessID string, saleID string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE business_id = $1 AND id = $2
	`, businessID, saleID)

	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return sale, nil
}

func (s *Store) ListSales(ctx context.Context, businessID string) ([]domain.Sale, error) {
	return s.querySales(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE business_id = $1
		ORDER BY ts DESC, id DESC
	`, businessID)
}

func (s *Store) ListSalesByDate(ctx context.Context, businessID string, date string) ([]domain.Sale, error) {
	return s.querySales(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE business_id = $1 AND sale_date = $2
		ORDER BY ts DESC, id DESC
	`, businessID, date)
}

func (s *Store) ListSalesByDateRange(ctx context.Context, businessID string, startDate string, endDate string) ([]domain.Sale, error) {
	return s.querySales(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE business_id = $1 AND sale_date >= $2 AND sale_date <= $3
		ORDER BY ts DESC, id DESC
	`, businessID, startDate, endDate)
}

func (s *Store) querySales(ctx context.Context, query string, args ...any) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) CreateReturn(ctx context.Context, ret domain.Return, adjustments []domain.StockAdjustment) (*domain.Return, error) {
	if ret.BusinessID == "" || ret.OriginalSaleID == "" || len(ret.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	if ret.Timestamp.IsZero() {
		ret.Timestamp = time.Now().UTC()
	}
	if ret.Date == "" {
		ret.Date = ret.Timestamp.Format("2006-01-02")
	}

	itemsJSON, err := json.Marshal(ret.Items)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := adjustStockTx(ctx, tx, ret.BusinessID, adjustments); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO returns (
			id, business_id, original_sale_id, original_payment_method, items,
			return_total, reason, return_type, exchange_sale_id, ts, return_date
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, ret.ID, ret.BusinessID, ret.OriginalSaleID, ret.OriginalPaymentMethod,
		itemsJSON, ret.ReturnTotal, ret.Reason, ret.Type, nullIfEmpty(ret.ExchangeSaleID),
		ret.Timestamp, ret.Date)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := ret
	return &created, nil
}

const returnColumns = `
	id, business_id, original_sale_id, original_payment_method, items,
	return_total, reason, return_type, COALESCE(exchange_sale_id,''), ts, return_date
`

func (s *Store) ListReturns(ctx context.Context, businessID string) ([]domain.Return, error) {
	return s.queryReturns(ctx, `
		SELECT `+returnColumns+`
		FROM returns
		WHERE business_id = $1
		ORDER BY ts DESC, id DESC
	`, businessID)
}

func (s *Store) ListReturnsBySale(ctx context.Context, businessID string, saleID string) ([]domain.Return, error) {
	return s.queryReturns(ctx, `
		SELECT `+returnColumns+`
		FROM returns
		WHERE business_id = $1 AND original_sale_id = $2
		ORDER BY ts DESC, id DESC
	`, businessID, saleID)
}

func (s *Store) ListReturnsByDateRange(ctx context.Context, businessID string, startDate string, endDate string) ([]domain.Return, error) {
	return s.queryReturns(ctx, `
		SELECT `+returnColumns+`
		FROM returns
		WHERE business_id = $1 AND return_date >= $2 AND return_date <= $3
		ORDER BY ts DESC, id DESC
	`, businessID, startDate, endDate)
}

func (s *Store) queryReturns(ctx context.Context, query string, args ...any) ([]domain.Return, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	returns := make([]domain.Return, 0, 32)
	for rows.Next() {
		ret, err := scanReturn(rows)
		if err != nil {
			return nil, err
		}
		returns = append(returns, *ret)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return returns, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var product domain.Product
	var quantitiesRaw []byte
	var imagesRaw []byte
	if err := row.Scan(
		&product.ID,
		&product.BusinessID,
		&product.Name,
		&product.Price,
		&product.Stock,
		&product.Category,
		&product.Size,
		&product.Color,
		&quantitiesRaw,
		&imagesRaw,
		&product.CreatedAt,
		&product.UpdatedAt,
	); err != nil {
		return nil, err
	}
	product.CreatedAt = product.CreatedAt.UTC()
	product.UpdatedAt = product.UpdatedAt.UTC()
	if len(quantitiesRaw) > 0 {
		if err := json.Unmarshal(quantitiesRaw, &product.SizeQuantities); err != nil {
			return nil, err
		}
	}
	if len(imagesRaw) > 0 {
		if err := json.Unmarshal(imagesRaw, &product.Images); err != nil {
			return nil, err
		}
	}
	return &product, nil
}

func scanSale(row rowScanner) (*domain.Sale, error) {
	var sale domain.Sale
	var itemsRaw []byte
	if err := row.Scan(
		&sale.ID,
		&sale.BusinessID,
		&itemsRaw,
		&sale.Total,
		&sale.OriginalTotal,
		&sale.DiscountType,
		&sale.DiscountValue,
		&sale.DiscountAmount,
		&sale.PaymentMethod,
		&sale.CustomerPhone,
		&sale.Timestamp,
		&sale.Date,
	); err != nil {
		return nil, err
	}
	sale.Timestamp = sale.Timestamp.UTC()
	if len(itemsRaw) > 0 {
		if err := json.Unmarshal(itemsRaw, &sale.Items); err != nil {
			return nil, err
		}
	}
	return &sale, nil
}

func scanReturn(row rowScanner) (*domain.Return, error) {
	var ret domain.Return
	var itemsRaw []byte
	if err := row.Scan(
		&ret.ID,
		&ret.BusinessID,
		&ret.OriginalSaleID,
		&ret.OriginalPaymentMethod,
		&itemsRaw,
		&ret.ReturnTotal,
		&ret.Reason,
		&ret.Type,
		&ret.ExchangeSaleID,
		&ret.Timestamp,
		&ret.Date,
	); err != nil {
		return nil, err
	}
	ret.Timestamp = ret.Timestamp.UTC()
	if len(itemsRaw) > 0 {
		if err := json.Unmarshal(itemsRaw, &ret.Items); err != nil {
			return nil, err
		}
	}
	return &ret, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
