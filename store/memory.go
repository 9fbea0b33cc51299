package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vitwit/storefront/types"
)

// Memory is an in-process Store. Lists are returned newest first.
type Memory struct {
	mu        sync.RWMutex
	now       func() time.Time
	products  []types.Product
	orders    []types.Order
	reviews   []types.Review
	wishlists []types.Wishlist
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{now: func() time.Time { return time.Now().UTC() }}
}

func (m *Memory) Close() {}

func (m *Memory) Probe(context.Context) error { return nil }

func (m *Memory) productIndex(match func(*types.Product) bool) int {
	for i := range m.products {
		if match(&m.products[i]) {
			return i
		}
	}
	return -1
}

func (m *Memory) ProductByID(_ context.Context, id string) (*types.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := m.productIndex(func(p *types.Product) bool { return p.ID == id })
	if i < 0 {
		return nil, ErrNotFound
	}
	p := cloneProduct(m.products[i])
	return &p, nil
}

func (m *Memory) ProductByCode(_ context.Context, code string) (*types.Product, error) {
	code = strings.ToUpper(code)
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := m.productIndex(func(p *types.Product) bool { return p.UniqueCode == code })
	if i < 0 {
		return nil, ErrNotFound
	}
	p := cloneProduct(m.products[i])
	return &p, nil
}

func (m *Memory) ProductsBySeller(_ context.Context, sellerID string) ([]types.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := []types.Product{}
	for i := len(m.products) - 1; i >= 0; i-- {
		if m.products[i].SellerID == sellerID {
			result = append(result, cloneProduct(m.products[i]))
		}
	}
	return result, nil
}

func (m *Memory) codeTaken(_ context.Context, code string) (bool, error) {
	return m.productIndex(func(p *types.Product) bool { return p.UniqueCode == code }) >= 0, nil
}

func (m *Memory) CreateProduct(ctx context.Context, p *types.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	code, err := GenerateUniqueCode(ctx, m.codeTaken)
	if err != nil {
		return err
	}
	now := m.now()
	p.ID = uuid.New().String()
	p.UniqueCode = code
	p.CreatedAt, p.UpdatedAt = now, now
	if p.Images == nil {
		p.Images = []string{}
	}
	if p.Features == nil {
		p.Features = []string{}
	}
	m.products = append(m.products, cloneProduct(*p))
	return nil
}

func (m *Memory) UpdateProduct(_ context.Context, p *types.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.productIndex(func(cur *types.Product) bool { return cur.ID == p.ID && cur.SellerID == p.SellerID })
	if i < 0 {
		return ErrNotFound
	}
	cur := &m.products[i]
	cur.Name = p.Name
	cur.Description = p.Description
	cur.Price = p.Price
	cur.Image = p.Image
	cur.Images = append([]string{}, p.Images...)
	cur.Features = append([]string{}, p.Features...)
	cur.WalletAddress = p.WalletAddress
	cur.UpdatedAt = m.now()

	p.UniqueCode = cur.UniqueCode
	p.CreatedAt = cur.CreatedAt
	p.UpdatedAt = cur.UpdatedAt
	return nil
}

// DeleteProduct also drops the product's reviews and wishlist entries.
// Orders are kept.
func (m *Memory) DeleteProduct(_ context.Context, sellerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.productIndex(func(p *types.Product) bool { return p.ID == id && p.SellerID == sellerID })
	if i < 0 {
		return ErrNotFound
	}
	m.products = append(m.products[:i], m.products[i+1:]...)

	reviews := m.reviews[:0]
	for _, r := range m.reviews {
		if r.ProductID != id {
			reviews = append(reviews, r)
		}
	}
	m.reviews = reviews

	wishlists := m.wishlists[:0]
	for _, w := range m.wishlists {
		if w.ProductID != id {
			wishlists = append(wishlists, w)
		}
	}
	m.wishlists = wishlists
	return nil
}

func (m *Memory) CreateOrder(_ context.Context, req types.OrderRequest) (*types.Order, error) {
	order, err := prepareOrder(req)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if order.TxHash != "" {
		for _, o := range m.orders {
			if strings.EqualFold(o.TxHash, order.TxHash) {
				return nil, ErrDuplicateOrder
			}
		}
	}
	order.OrderDate = m.now()
	m.orders = append(m.orders, *order)
	return order, nil
}

func (m *Memory) findOrder(match func(*types.Order) bool) (*types.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.orders {
		if match(&m.orders[i]) {
			o := m.orders[i]
			return &o, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) OrderByID(_ context.Context, id string) (*types.Order, error) {
	return m.findOrder(func(o *types.Order) bool { return o.ID == id })
}

func (m *Memory) OrderByTxHash(_ context.Context, txHash string) (*types.Order, error) {
	if txHash == "" {
		return nil, ErrNotFound
	}
	return m.findOrder(func(o *types.Order) bool { return strings.EqualFold(o.TxHash, txHash) })
}

func (m *Memory) OrdersBySeller(_ context.Context, sellerID string) ([]types.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	owned := m.sellerProducts(sellerID)
	result := []types.Order{}
	for i := len(m.orders) - 1; i >= 0; i-- {
		if _, ok := owned[m.orders[i].ProductID]; ok {
			result = append(result, m.orders[i])
		}
	}
	return result, nil
}

func (m *Memory) UpdateOrderStatus(_ context.Context, id string, status types.OrderStatus, payment types.PaymentStatus) error {
	if err := checkStatus(status, payment); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.orders {
		if m.orders[i].ID == id {
			m.orders[i].Status = status
			if payment != "" {
				m.orders[i].PaymentStatus = payment
			}
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) ReviewsByProduct(_ context.Context, productID string) ([]types.Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := []types.Review{}
	for i := len(m.reviews) - 1; i >= 0; i-- {
		if m.reviews[i].ProductID == productID {
			result = append(result, m.reviews[i])
		}
	}
	return result, nil
}

func (m *Memory) CreateReview(_ context.Context, r *types.Review) error {
	if err := checkRating(r.Rating); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.productIndex(func(p *types.Product) bool { return p.ID == r.ProductID }) < 0 {
		return ErrNotFound
	}
	r.ID = uuid.New().String()
	r.CreatedAt = m.now()
	m.reviews = append(m.reviews, *r)
	return nil
}

func (m *Memory) AddToWishlist(_ context.Context, productID, email string) (*types.Wishlist, error) {
	email = normalizeEmail(email)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.productIndex(func(p *types.Product) bool { return p.ID == productID }) < 0 {
		return nil, ErrNotFound
	}
	for _, w := range m.wishlists {
		if w.ProductID == productID && w.Email == email {
			return nil, ErrDuplicateWishlist
		}
	}
	w := types.Wishlist{
		ID:        uuid.New().String(),
		ProductID: productID,
		Email:     email,
		CreatedAt: m.now(),
	}
	m.wishlists = append(m.wishlists, w)
	return &w, nil
}

func (m *Memory) WishlistsBySeller(_ context.Context, sellerID string) ([]types.Wishlist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	owned := m.sellerProducts(sellerID)
	result := []types.Wishlist{}
	for i := len(m.wishlists) - 1; i >= 0; i-- {
		w := m.wishlists[i]
		if name, ok := owned[w.ProductID]; ok {
			w.ProductName = name
			result = append(result, w)
		}
	}
	return result, nil
}

// sellerProducts maps the seller's product ids to their names.
func (m *Memory) sellerProducts(sellerID string) map[string]string {
	owned := make(map[string]string)
	for _, p := range m.products {
		if p.SellerID == sellerID {
			owned[p.ID] = p.Name
		}
	}
	return owned
}

func cloneProduct(p types.Product) types.Product {
	p.Images = append([]string{}, p.Images...)
	p.Features = append([]string{}, p.Features...)
	return p
}
