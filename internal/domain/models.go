package domain

import "time"

type Business struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID           string
	Username     string
	PasswordHash string
	BusinessID   string
	CreatedAt    time.Time
}

// Identity is the authenticated caller attached to request contexts.
// Every data operation is scoped to its BusinessID.
type Identity struct {
	UserID     string
	BusinessID string
	Username   string
}

type SignupRequest struct {
	BusinessName string `json:"businessName"`
	Username     string `json:"username"`
	Password     string `json:"password"`
}

type SignupResponse struct {
	Message    string `json:"message"`
	UserID     string `json:"userId"`
	BusinessID string `json:"businessId"`
}

type SigninRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type SigninResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserID      string `json:"userId"`
	BusinessID  string `json:"businessId"`
	Username    string `json:"username"`
}

type ForgotPasswordRequest struct {
	Username string `json:"username"`
}

type ForgotPasswordResponse struct {
	Message string `json:"message"`
}

type Settings struct {
	ID             string    `json:"id"`
	BusinessID     string    `json:"businessId"`
	ShopName       string    `json:"shopName"`
	OwnerName      string    `json:"ownerName"`
	Phone          string    `json:"phone,omitempty"`
	Address        string    `json:"address,omitempty"`
	UPIID          string    `json:"upiId,omitempty"`
	SetupCompleted bool      `json:"setupCompleted"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type SettingsSetupRequest struct {
	ShopName  string `json:"shopName"`
	OwnerName string `json:"ownerName"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	UPIID     string `json:"upiId"`
}

type SettingsPatch struct {
	ShopName  *string `json:"shopName,omitempty"`
	OwnerName *string `json:"ownerName,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Address   *string `json:"address,omitempty"`
	UPIID     *string `json:"upiId,omitempty"`
}

type Product struct {
	ID             string         `json:"id"`
	BusinessID     string         `json:"businessId"`
	Name           string         `json:"name"`
	Price          float64        `json:"price"`
	Stock          int            `json:"stock"`
	Category       string         `json:"category,omitempty"`
	Size           string         `json:"size,omitempty"`
	Color          string         `json:"color,omitempty"`
	SizeQuantities map[string]int `json:"sizeQuantities,omitempty"`
	Images         []string       `json:"images,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

type ProductCreateRequest struct {
	Name           string         `json:"name"`
	Price          float64        `json:"price"`
	Stock          int            `json:"stock"`
	Category       string         `json:"category"`
	Size           string         `json:"size"`
	Color          string         `json:"color"`
	SizeQuantities map[string]int `json:"sizeQuantities"`
	Images         []string       `json:"images"`
}

type ProductPatch struct {
	Name           *string         `json:"name,omitempty"`
	Price          *float64        `json:"price,omitempty"`
	Stock          *int            `json:"stock,omitempty"`
	Category       *string         `json:"category,omitempty"`
	Size           *string         `json:"size,omitempty"`
	Color          *string         `json:"color,omitempty"`
	SizeQuantities *map[string]int `json:"sizeQuantities,omitempty"`
	Images         *[]string       `json:"images,omitempty"`
}

type SaleItem struct {
	ProductID       string  `json:"productId"`
	ProductName     string  `json:"productName"`
	Quantity        int     `json:"quantity"`
	Price           float64 `json:"price"`
	Size            string  `json:"size,omitempty"`
	Image           string  `json:"image,omitempty"`
	ItemTotal       float64 `json:"itemTotal"`
	DiscountAmount  float64 `json:"discountAmount"`
	FinalPaidAmount float64 `json:"finalPaidAmount"`
}

type Sale struct {
	ID             string     `json:"id"`
	BusinessID     string     `json:"businessId"`
	Items          []SaleItem `json:"items"`
	Total          float64    `json:"total"`
	OriginalTotal  float64    `json:"originalTotal"`
	DiscountType   string     `json:"discountType,omitempty"`
	DiscountValue  float64    `json:"discountValue,omitempty"`
	DiscountAmount float64    `json:"discountAmount"`
	PaymentMethod  string     `json:"paymentMethod"`
	CustomerPhone  string     `json:"customerPhone,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
	Date           string     `json:"date"`
}

type SaleCreateRequest struct {
	Items          []SaleItem `json:"items"`
	Total          float64    `json:"total"`
	OriginalTotal  float64    `json:"originalTotal"`
	DiscountType   string     `json:"discountType"`
	DiscountValue  float64    `json:"discountValue"`
	DiscountAmount float64    `json:"discountAmount"`
	PaymentMethod  string     `json:"paymentMethod"`
	CustomerPhone  string     `json:"customerPhone"`
}

type ReturnItem struct {
	ProductID      string  `json:"productId"`
	ProductName    string  `json:"productName"`
	Quantity       int     `json:"quantity"`
	Price          float64 `json:"price"`
	Size           string  `json:"size,omitempty"`
	FinalPaidPrice float64 `json:"finalPaidPrice,omitempty"`
}

type Return struct {
	ID                    string       `json:"id"`
	BusinessID            string       `json:"businessId"`
	OriginalSaleID        string       `json:"originalSaleId"`
	OriginalPaymentMethod string       `json:"originalPaymentMethod"`
	Items                 []ReturnItem `json:"items"`
	ReturnTotal           float64      `json:"returnTotal"`
	Reason                string       `json:"reason,omitempty"`
	Type                  string       `json:"type"`
	ExchangeSaleID        string       `json:"exchangeSaleId,omitempty"`
	Timestamp             time.Time    `json:"timestamp"`
	Date                  string       `json:"date"`
}

type ReturnCreateRequest struct {
	OriginalSaleID string       `json:"originalSaleId"`
	Items          []ReturnItem `json:"items"`
	ReturnTotal    float64      `json:"returnTotal"`
	Reason         string       `json:"reason"`
}

type ExchangeRequest struct {
	OriginalSaleID string            `json:"originalSaleId"`
	ReturnItems    []ReturnItem      `json:"returnItems"`
	NewSale        SaleCreateRequest `json:"newSale"`
	Reason         string            `json:"reason"`
}

type ExchangeResponse struct {
	Return          Return  `json:"return"`
	NewSale         Sale    `json:"newSale"`
	ReturnTotal     float64 `json:"returnTotal"`
	NewSaleTotal    float64 `json:"newSaleTotal"`
	PriceDifference float64 `json:"priceDifference"`
}

// StockAdjustment is a relative stock change applied atomically by the store.
// Negative deltas decrement, positive deltas restore.
type StockAdjustment struct {
	ProductID string
	Delta     int
}

type PaymentMethodSummary struct {
	Gross   float64 `json:"gross"`
	Count   int     `json:"count"`
	Returns float64 `json:"returns"`
	Net     float64 `json:"net"`
}

type SalesSummary struct {
	StartDate    string                          `json:"startDate"`
	EndDate      string                          `json:"endDate"`
	GrossSales   float64                         `json:"grossSales"`
	TotalReturns float64                         `json:"totalReturns"`
	NetSales     float64                         `json:"netSales"`
	SaleCount    int                             `json:"saleCount"`
	ReturnCount  int                             `json:"returnCount"`
	ByMethod     map[string]PaymentMethodSummary `json:"byPaymentMethod"`
}

const (
	ReturnTypeReturn   = "return"
	ReturnTypeExchange = "exchange"
)

const (
	PaymentCash   = "cash"
	PaymentUPI    = "upi"
	PaymentCard   = "card"
	PaymentCredit = "credit"
	PaymentOther  = "other"
)
