package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// OrderStatus is the fulfilment status of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderPaid, OrderShipped, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

// PaymentStatus is the settlement status of an order's payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

func (s PaymentStatus) Valid() bool {
	return s == PaymentPending || s == PaymentCompleted || s == PaymentFailed
}

// Product is a seller's listing.
type Product struct {
	ID            string          `json:"id"`
	SellerID      string          `json:"sellerId"`
	Name          string          `json:"name" validate:"required"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	Image         string          `json:"image,omitempty"`
	Images        []string        `json:"images,omitempty"`
	Features      []string        `json:"features"`
	WalletAddress string          `json:"walletAddress" validate:"required,evmaddress"`
	UniqueCode    string          `json:"uniqueCode"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Gallery returns the product images, falling back to the legacy single image.
func (p *Product) Gallery() []string {
	if len(p.Images) > 0 {
		return p.Images
	}
	if p.Image != "" {
		return []string{p.Image}
	}
	return []string{}
}

// ShippingAddress is stored as a JSON document on the order.
type ShippingAddress struct {
	Street  string `json:"street" validate:"required"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state" validate:"required"`
	ZipCode string `json:"zipCode" validate:"required"`
	Country string `json:"country" validate:"required"`
}

// Order is a persisted purchase.
type Order struct {
	ID              string          `json:"id"`
	ProductID       string          `json:"productId"`
	ProductName     string          `json:"productName"`
	ProductPrice    decimal.Decimal `json:"productPrice"`
	CustomerName    string          `json:"customerName"`
	CustomerEmail   string          `json:"customerEmail"`
	CustomerPhone   string          `json:"customerPhone"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	Status          OrderStatus     `json:"status"`
	PaymentStatus   PaymentStatus   `json:"paymentStatus"`
	WalletAddress   string          `json:"walletAddress"`
	PayerAddress    string          `json:"payerAddress,omitempty"`
	OrderDate       time.Time       `json:"orderDate"`
	Notes           string          `json:"notes,omitempty"`
	TxHash          string          `json:"txHash,omitempty"`
}

// OrderRequest is the payload handed to the order-persistence collaborator.
type OrderRequest struct {
	ProductID       string          `json:"productId" validate:"required"`
	ProductName     string          `json:"productName"`
	ProductPrice    decimal.Decimal `json:"productPrice"`
	CustomerName    string          `json:"customerName" validate:"required"`
	CustomerEmail   string          `json:"customerEmail" validate:"required"`
	CustomerPhone   string          `json:"customerPhone"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	Status          OrderStatus     `json:"status"`
	PaymentStatus   PaymentStatus   `json:"paymentStatus"`
	WalletAddress   string          `json:"walletAddress" validate:"required"`
	PayerAddress    string          `json:"payerAddress"`
	Notes           string          `json:"notes"`
	TxHash          string          `json:"txHash"`
}

// Review is a buyer's rating of a product.
type Review struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"productId"`
	CustomerName  string    `json:"customerName" validate:"required"`
	CustomerEmail string    `json:"customerEmail" validate:"required,basicemail"`
	Rating        int       `json:"rating" validate:"min=1,max=5"`
	Comment       string    `json:"comment"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ReviewStats aggregates the reviews of one product.
type ReviewStats struct {
	AverageRating float64     `json:"averageRating"`
	TotalReviews  int         `json:"totalReviews"`
	RatingCounts  map[int]int `json:"ratingCounts"`
}

// NewReviewStats computes the aggregate over reviews.
func NewReviewStats(reviews []Review) ReviewStats {
	stats := ReviewStats{RatingCounts: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}}
	if len(reviews) == 0 {
		return stats
	}

	total := 0
	for _, r := range reviews {
		stats.RatingCounts[r.Rating]++
		total += r.Rating
	}
	stats.TotalReviews = len(reviews)
	stats.AverageRating = float64(total) / float64(len(reviews))
	return stats
}

// Wishlist is an email subscription to a product.
type Wishlist struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"productId"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"createdAt"`
	ProductName string    `json:"productName,omitempty"`
}

// WishlistStats counts wishlist entries.
type WishlistStats struct {
	TotalWishlists int `json:"totalWishlists"`
	UniqueEmails   int `json:"uniqueEmails"`
}

// NewWishlistStats counts entries, optionally restricted to one product.
func NewWishlistStats(entries []Wishlist, productID string) WishlistStats {
	emails := make(map[string]struct{})
	total := 0
	for _, w := range entries {
		if productID != "" && w.ProductID != productID {
			continue
		}
		total++
		emails[w.Email] = struct{}{}
	}
	return WishlistStats{TotalWishlists: total, UniqueEmails: len(emails)}
}

// PaymentIntent is what the buyer is about to pay for. It is frozen once the
// transaction is submitted.
type PaymentIntent struct {
	ProductID      string          `json:"productId"`
	Recipient      common.Address  `json:"recipientAddress"`
	AmountRequired decimal.Decimal `json:"amountRequired"`
	Payer          *common.Address `json:"payerAddress,omitempty"`
}

// TransferRequest is a native-currency transfer submitted through a wallet.
type TransferRequest struct {
	From     common.Address
	To       common.Address
	Value    *big.Int
	GasLimit uint64
}

// ConfirmationStatus is the execution status reported by a receipt.
type ConfirmationStatus uint64

const (
	StatusFailed  ConfirmationStatus = 0
	StatusSuccess ConfirmationStatus = 1
)

// TransactionRecord is a read-only projection of a transaction on chain.
type TransactionRecord struct {
	Hash  common.Hash     `json:"hash"`
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to"`
	Value *big.Int        `json:"value"`
}

// Receipt is the chain confirmation record for a transaction.
type Receipt struct {
	TxHash      common.Hash        `json:"transactionHash"`
	Status      ConfirmationStatus `json:"status"`
	BlockNumber *big.Int           `json:"blockNumber,omitempty"`
}

// Succeeded reports whether the receipt indicates successful execution.
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == StatusSuccess
}

// VerificationResult is the terminal artifact of a verified payment.
type VerificationResult struct {
	Success         bool            `json:"success"`
	TxHash          string          `json:"txHash"`
	AmountConfirmed decimal.Decimal `json:"amountConfirmed"`
	ValueBaseUnits  *big.Int        `json:"valueBaseUnits,omitempty"`
	From            string          `json:"from"`
	To              string          `json:"to"`
	VerifiedAt      time.Time       `json:"verifiedAt"`
}
