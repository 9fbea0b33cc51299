package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/storefront/types"
	"github.com/vitwit/storefront/utils"
)

const wallet = "0x384Aa214be0B279cbf211e9b2C992d8633F77848"

func seedProduct(t *testing.T, s *Memory, seller, name string) *types.Product {
	t.Helper()
	p := &types.Product{
		SellerID:      seller,
		Name:          name,
		Price:         decimal.RequireFromString("0.015"),
		WalletAddress: wallet,
	}
	require.NoError(t, s.CreateProduct(context.Background(), p))
	return p
}

func orderRequest(productID, txHash string) types.OrderRequest {
	return types.OrderRequest{
		ProductID:     productID,
		ProductName:   "Mug",
		ProductPrice:  decimal.RequireFromString("0.015"),
		CustomerName:  "Ada",
		CustomerEmail: "ada@example.com",
		ShippingAddress: types.ShippingAddress{
			Street: "1 Main St", City: "Springfield", State: "IL", ZipCode: "62701", Country: "US",
		},
		Status:        types.OrderPaid,
		PaymentStatus: types.PaymentCompleted,
		WalletAddress: wallet,
		TxHash:        txHash,
	}
}

func TestCreateProductAssignsIdentity(t *testing.T) {
	s := NewMemory()
	p := seedProduct(t, s, "seller-1", "Mug")

	assert.NotEmpty(t, p.ID)
	assert.True(t, utils.IsUniqueCode(p.UniqueCode), p.UniqueCode)
	assert.False(t, p.CreatedAt.IsZero())
	assert.Equal(t, []string{}, p.Images)

	byCode, err := s.ProductByCode(context.Background(), p.UniqueCode)
	require.NoError(t, err)
	assert.Equal(t, p.ID, byCode.ID)

	lower, err := s.ProductByCode(context.Background(), strings.ToLower(p.UniqueCode))
	require.NoError(t, err)
	assert.Equal(t, p.ID, lower.ID)

	_, err = s.ProductByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProductsBySellerNewestFirst(t *testing.T) {
	s := NewMemory()
	first := seedProduct(t, s, "seller-1", "First")
	seedProduct(t, s, "seller-2", "Other")
	second := seedProduct(t, s, "seller-1", "Second")

	list, err := s.ProductsBySeller(context.Background(), "seller-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	empty, err := s.ProductsBySeller(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestUpdateAndDeleteProductRequireOwner(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	p := seedProduct(t, s, "seller-1", "Mug")
	code := p.UniqueCode

	upd := &types.Product{
		ID:            p.ID,
		SellerID:      "seller-2",
		Name:          "Stolen",
		Price:         decimal.RequireFromString("1"),
		WalletAddress: wallet,
	}
	assert.ErrorIs(t, s.UpdateProduct(ctx, upd), ErrNotFound)

	upd.SellerID = "seller-1"
	upd.Name = "Big mug"
	upd.Features = []string{"dishwasher safe"}
	require.NoError(t, s.UpdateProduct(ctx, upd))
	assert.Equal(t, code, upd.UniqueCode, "share code never changes")

	got, err := s.ProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Big mug", got.Name)
	assert.Equal(t, "1", got.Price.String())
	assert.Equal(t, []string{"dishwasher safe"}, got.Features)

	assert.ErrorIs(t, s.DeleteProduct(ctx, "seller-2", p.ID), ErrNotFound)
	require.NoError(t, s.DeleteProduct(ctx, "seller-1", p.ID))
	_, err = s.ProductByID(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReturnedProductsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	p := seedProduct(t, s, "seller-1", "Mug")

	got, err := s.ProductByID(ctx, p.ID)
	require.NoError(t, err)
	got.Features = append(got.Features, "mutated")
	got.Name = "mutated"

	again, err := s.ProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mug", again.Name)
	assert.Empty(t, again.Features)
}

func TestOrders(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	mine := seedProduct(t, s, "seller-1", "Mug")
	theirs := seedProduct(t, s, "seller-2", "Bowl")

	o1, err := s.CreateOrder(ctx, orderRequest(mine.ID, "0xAAA"))
	require.NoError(t, err)
	assert.NotEmpty(t, o1.ID)
	assert.False(t, o1.OrderDate.IsZero())
	assert.Equal(t, types.OrderPaid, o1.Status)

	_, err = s.CreateOrder(ctx, orderRequest(theirs.ID, "0xBBB"))
	require.NoError(t, err)
	o3, err := s.CreateOrder(ctx, orderRequest(mine.ID, ""))
	require.NoError(t, err)

	_, err = s.CreateOrder(ctx, orderRequest(mine.ID, "0xaaa"))
	assert.ErrorIs(t, err, ErrDuplicateOrder, "tx hash is unique regardless of case")

	byHash, err := s.OrderByTxHash(ctx, "0xaAa")
	require.NoError(t, err)
	assert.Equal(t, o1.ID, byHash.ID)
	_, err = s.OrderByTxHash(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := s.OrdersBySeller(ctx, "seller-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, o3.ID, list[0].ID)
	assert.Equal(t, o1.ID, list[1].ID)
}

func TestCreateOrderValidates(t *testing.T) {
	s := NewMemory()

	req := orderRequest("p", "0x1")
	req.CustomerEmail = ""
	_, err := s.CreateOrder(context.Background(), req)
	var fields utils.FieldErrors
	require.True(t, errors.As(err, &fields))
	assert.Contains(t, fields, "customerEmail")

	req = orderRequest("p", "0x1")
	req.Status = "lost"
	_, err = s.CreateOrder(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	req = orderRequest("p", "0x1")
	req.Status, req.PaymentStatus = "", ""
	o, err := s.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, types.OrderPending, o.Status)
	assert.Equal(t, types.PaymentPending, o.PaymentStatus)
}

func TestUpdateOrderStatus(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	o, err := s.CreateOrder(ctx, orderRequest("p", "0x1"))
	require.NoError(t, err)

	require.NoError(t, s.UpdateOrderStatus(ctx, o.ID, types.OrderShipped, ""))
	got, err := s.OrderByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, types.OrderShipped, got.Status)
	assert.Equal(t, types.PaymentCompleted, got.PaymentStatus)

	require.NoError(t, s.UpdateOrderStatus(ctx, o.ID, types.OrderCancelled, types.PaymentFailed))
	got, err = s.OrderByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PaymentFailed, got.PaymentStatus)

	assert.ErrorIs(t, s.UpdateOrderStatus(ctx, o.ID, "lost", ""), ErrInvalidStatus)
	assert.ErrorIs(t, s.UpdateOrderStatus(ctx, "missing", types.OrderPaid, ""), ErrNotFound)
}

func TestReviews(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	p := seedProduct(t, s, "seller-1", "Mug")

	for _, rating := range []int{5, 4} {
		r := &types.Review{ProductID: p.ID, CustomerName: "Ada", CustomerEmail: "ada@example.com", Rating: rating}
		require.NoError(t, s.CreateReview(ctx, r))
		assert.NotEmpty(t, r.ID)
	}

	for _, rating := range []int{0, 6} {
		err := s.CreateReview(ctx, &types.Review{ProductID: p.ID, Rating: rating})
		assert.ErrorIs(t, err, ErrInvalidRating)
	}
	assert.ErrorIs(t, s.CreateReview(ctx, &types.Review{ProductID: "missing", Rating: 3}), ErrNotFound)

	reviews, err := s.ReviewsByProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, reviews, 2)
	assert.Equal(t, 4, reviews[0].Rating)

	stats := types.NewReviewStats(reviews)
	assert.Equal(t, 2, stats.TotalReviews)
	assert.InDelta(t, 4.5, stats.AverageRating, 1e-9)
}

func TestWishlists(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	mug := seedProduct(t, s, "seller-1", "Mug")
	bowl := seedProduct(t, s, "seller-1", "Bowl")
	seedProduct(t, s, "seller-2", "Plate")

	w, err := s.AddToWishlist(ctx, mug.ID, "  Ada@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", w.Email)

	_, err = s.AddToWishlist(ctx, mug.ID, "ada@example.com")
	assert.ErrorIs(t, err, ErrDuplicateWishlist)

	_, err = s.AddToWishlist(ctx, bowl.ID, "ada@example.com")
	require.NoError(t, err)
	_, err = s.AddToWishlist(ctx, bowl.ID, "bob@example.com")
	require.NoError(t, err)
	_, err = s.AddToWishlist(ctx, "missing", "bob@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := s.WishlistsBySeller(ctx, "seller-1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "Bowl", list[0].ProductName)

	assert.Equal(t, types.WishlistStats{TotalWishlists: 3, UniqueEmails: 2}, types.NewWishlistStats(list, ""))
	assert.Equal(t, types.WishlistStats{TotalWishlists: 1, UniqueEmails: 1}, types.NewWishlistStats(list, mug.ID))

	require.NoError(t, s.DeleteProduct(ctx, "seller-1", bowl.ID))
	list, err = s.WishlistsBySeller(ctx, "seller-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGenerateUniqueCode(t *testing.T) {
	calls := 0
	code, err := GenerateUniqueCode(context.Background(), func(_ context.Context, code string) (bool, error) {
		calls++
		return calls < 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, utils.IsUniqueCode(code))

	_, err = GenerateUniqueCode(context.Background(), func(context.Context, string) (bool, error) {
		return true, nil
	})
	assert.Error(t, err)

	boom := errors.New("db down")
	_, err = GenerateUniqueCode(context.Background(), func(context.Context, string) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
}
