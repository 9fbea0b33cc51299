package store

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vitwit/storefront/types"
	"github.com/vitwit/storefront/utils"
)

var (
	ErrNotFound          = errors.New("store: not found")
	ErrDuplicateWishlist = errors.New("store: email already on the wishlist for this product")
	ErrDuplicateOrder    = errors.New("store: an order already exists for this transaction")
	ErrInvalidRating     = errors.New("store: rating must be between 1 and 5")
	ErrInvalidStatus     = errors.New("store: invalid status")
)

// Catalog holds seller products.
type Catalog interface {
	ProductByID(ctx context.Context, id string) (*types.Product, error)
	ProductByCode(ctx context.Context, code string) (*types.Product, error)
	ProductsBySeller(ctx context.Context, sellerID string) ([]types.Product, error)
	// CreateProduct assigns the id, share code and timestamps.
	CreateProduct(ctx context.Context, p *types.Product) error
	// UpdateProduct replaces the editable fields of a product owned by
	// p.SellerID.
	UpdateProduct(ctx context.Context, p *types.Product) error
	DeleteProduct(ctx context.Context, sellerID, id string) error
}

// Orders holds purchases. An order's transaction hash is unique.
type Orders interface {
	CreateOrder(ctx context.Context, req types.OrderRequest) (*types.Order, error)
	OrderByID(ctx context.Context, id string) (*types.Order, error)
	OrderByTxHash(ctx context.Context, txHash string) (*types.Order, error)
	OrdersBySeller(ctx context.Context, sellerID string) ([]types.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status types.OrderStatus, payment types.PaymentStatus) error
}

type Reviews interface {
	ReviewsByProduct(ctx context.Context, productID string) ([]types.Review, error)
	CreateReview(ctx context.Context, r *types.Review) error
}

type Wishlists interface {
	AddToWishlist(ctx context.Context, productID, email string) (*types.Wishlist, error)
	WishlistsBySeller(ctx context.Context, sellerID string) ([]types.Wishlist, error)
}

// Store is the full persistence surface of the storefront.
type Store interface {
	Catalog
	Orders
	Reviews
	Wishlists
	Close()
}

const (
	codeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength      = 8
	maxCodeAttempts = 32
)

// NewCode returns a random share code of 8 characters from A-Z0-9.
func NewCode() (string, error) {
	buf := make([]byte, codeLength)
	limit := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// GenerateUniqueCode draws codes until taken reports one as free.
func GenerateUniqueCode(ctx context.Context, taken func(ctx context.Context, code string) (bool, error)) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := NewCode()
		if err != nil {
			return "", err
		}
		used, err := taken(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check code %s: %w", code, err)
		}
		if !used {
			return code, nil
		}
	}
	return "", fmt.Errorf("no free share code after %d attempts", maxCodeAttempts)
}

func checkStatus(status types.OrderStatus, payment types.PaymentStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: order status %q", ErrInvalidStatus, status)
	}
	if payment != "" && !payment.Valid() {
		return fmt.Errorf("%w: payment status %q", ErrInvalidStatus, payment)
	}
	return nil
}

func checkRating(rating int) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	return nil
}

// prepareOrder validates req and builds the order to insert. Missing
// statuses default to pending.
func prepareOrder(req types.OrderRequest) (*types.Order, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("invalid order: %w", err)
	}
	status := req.Status
	if status == "" {
		status = types.OrderPending
	}
	payment := req.PaymentStatus
	if payment == "" {
		payment = types.PaymentPending
	}
	if err := checkStatus(status, payment); err != nil {
		return nil, err
	}
	return &types.Order{
		ID:              uuid.New().String(),
		ProductID:       req.ProductID,
		ProductName:     req.ProductName,
		ProductPrice:    req.ProductPrice,
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		ShippingAddress: req.ShippingAddress,
		Status:          status,
		PaymentStatus:   payment,
		WalletAddress:   req.WalletAddress,
		PayerAddress:    req.PayerAddress,
		OrderDate:       time.Now().UTC(),
		Notes:           req.Notes,
		TxHash:          req.TxHash,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
