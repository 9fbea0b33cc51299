package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/vitwit/storefront/types"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Postgres is the pgx-backed Store.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// NewPostgres connects to url and applies the migrations.
func NewPostgres(ctx context.Context, url string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &Postgres{pool: pool}, nil
}

func (s *Postgres) Close() {
	s.pool.Close()
}

// Probe checks database connectivity.
func (s *Postgres) Probe(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

const productColumns = `id, seller_id, name, description, price::text, image, images, features,
	wallet_address, unique_code, created_at, updated_at`

func scanProduct(row pgx.Row) (*types.Product, error) {
	var (
		p     types.Product
		price string
	)
	err := row.Scan(&p.ID, &p.SellerID, &p.Name, &p.Description, &price, &p.Image, &p.Images,
		&p.Features, &p.WalletAddress, &p.UniqueCode, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse price %q: %w", price, err)
	}
	return &p, nil
}

func (s *Postgres) productWhere(ctx context.Context, cond string, arg any) (*types.Product, error) {
	p, err := scanProduct(s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE `+cond, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (s *Postgres) ProductByID(ctx context.Context, id string) (*types.Product, error) {
	return s.productWhere(ctx, "id = $1", id)
}

func (s *Postgres) ProductByCode(ctx context.Context, code string) (*types.Product, error) {
	return s.productWhere(ctx, "unique_code = $1", strings.ToUpper(code))
}

func (s *Postgres) ProductsBySeller(ctx context.Context, sellerID string) ([]types.Product, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE seller_id = $1
		ORDER BY created_at DESC`, sellerID)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	result := []types.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

func (s *Postgres) codeTaken(ctx context.Context, code string) (bool, error) {
	var taken bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE unique_code = $1)`, code).Scan(&taken)
	return taken, err
}

func (s *Postgres) CreateProduct(ctx context.Context, p *types.Product) error {
	now := time.Now().UTC()
	p.ID = uuid.New().String()
	p.CreatedAt, p.UpdatedAt = now, now
	if p.Images == nil {
		p.Images = []string{}
	}
	if p.Features == nil {
		p.Features = []string{}
	}

	// The existence check races with concurrent inserts; the unique
	// constraint decides, and a collision draws a new code.
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := GenerateUniqueCode(ctx, s.codeTaken)
		if err != nil {
			return err
		}
		p.UniqueCode = code

		_, err = s.pool.Exec(ctx, `
			INSERT INTO products (id, seller_id, name, description, price, image, images, features,
				wallet_address, unique_code, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11, $12)`,
			p.ID, p.SellerID, p.Name, p.Description, p.Price.String(), p.Image, p.Images, p.Features,
			p.WalletAddress, p.UniqueCode, p.CreatedAt, p.UpdatedAt,
		)
		if err == nil {
			return nil
		}
		if pgCode(err) != pgUniqueViolation {
			return fmt.Errorf("insert product: %w", err)
		}
	}
	return fmt.Errorf("insert product: share code collisions exhausted")
}

func (s *Postgres) UpdateProduct(ctx context.Context, p *types.Product) error {
	if p.Images == nil {
		p.Images = []string{}
	}
	if p.Features == nil {
		p.Features = []string{}
	}
	err := s.pool.QueryRow(ctx, `
		UPDATE products
		SET name = $3, description = $4, price = $5::numeric, image = $6, images = $7,
			features = $8, wallet_address = $9, updated_at = NOW()
		WHERE id = $1 AND seller_id = $2
		RETURNING unique_code, created_at, updated_at`,
		p.ID, p.SellerID, p.Name, p.Description, p.Price.String(), p.Image, p.Images, p.Features, p.WalletAddress,
	).Scan(&p.UniqueCode, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

func (s *Postgres) DeleteProduct(ctx context.Context, sellerID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM products WHERE id = $1 AND seller_id = $2`, id, sellerID)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const orderColumns = `o.id, o.product_id, o.product_name, o.product_price::text, o.customer_name,
	o.customer_email, o.customer_phone, o.shipping_address, o.status, o.payment_status,
	o.wallet_address, o.payer_address, o.order_date, o.notes, o.tx_hash`

func scanOrder(row pgx.Row) (*types.Order, error) {
	var (
		o        types.Order
		price    string
		shipping []byte
	)
	err := row.Scan(&o.ID, &o.ProductID, &o.ProductName, &price, &o.CustomerName, &o.CustomerEmail,
		&o.CustomerPhone, &shipping, &o.Status, &o.PaymentStatus, &o.WalletAddress, &o.PayerAddress,
		&o.OrderDate, &o.Notes, &o.TxHash)
	if err != nil {
		return nil, err
	}
	if o.ProductPrice, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse product price %q: %w", price, err)
	}
	if err := json.Unmarshal(shipping, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("decode shipping address: %w", err)
	}
	return &o, nil
}

func (s *Postgres) CreateOrder(ctx context.Context, req types.OrderRequest) (*types.Order, error) {
	order, err := prepareOrder(req)
	if err != nil {
		return nil, err
	}

	shipping, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return nil, fmt.Errorf("encode shipping address: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO orders (id, product_id, product_name, product_price, customer_name, customer_email,
			customer_phone, shipping_address, status, payment_status, wallet_address, payer_address,
			order_date, notes, tx_hash, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $13)`,
		order.ID, order.ProductID, order.ProductName, order.ProductPrice.String(), order.CustomerName,
		order.CustomerEmail, order.CustomerPhone, shipping, order.Status, order.PaymentStatus,
		order.WalletAddress, order.PayerAddress, order.OrderDate, order.Notes, order.TxHash,
	)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return nil, ErrDuplicateOrder
		}
		return nil, fmt.Errorf("insert order: %w", err)
	}
	return order, nil
}

func (s *Postgres) orderWhere(ctx context.Context, cond string, arg any) (*types.Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders o WHERE `+cond, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (s *Postgres) OrderByID(ctx context.Context, id string) (*types.Order, error) {
	return s.orderWhere(ctx, "o.id = $1", id)
}

func (s *Postgres) OrderByTxHash(ctx context.Context, txHash string) (*types.Order, error) {
	return s.orderWhere(ctx, "o.tx_hash <> '' AND lower(o.tx_hash) = lower($1)", txHash)
}

func (s *Postgres) OrdersBySeller(ctx context.Context, sellerID string) ([]types.Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		JOIN products p ON p.id = o.product_id
		WHERE p.seller_id = $1
		ORDER BY o.created_at DESC`, sellerID)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	result := []types.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *o)
	}
	return result, rows.Err()
}

func (s *Postgres) UpdateOrderStatus(ctx context.Context, id string, status types.OrderStatus, payment types.PaymentStatus) error {
	if err := checkStatus(status, payment); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET status = $2, payment_status = COALESCE(NULLIF($3, ''), payment_status)
		WHERE id = $1`,
		id, status, string(payment),
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) ReviewsByProduct(ctx context.Context, productID string) ([]types.Review, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, product_id, customer_name, customer_email, rating, comment, created_at
		FROM reviews
		WHERE product_id = $1
		ORDER BY created_at DESC`, productID)
	if err != nil {
		return nil, fmt.Errorf("query reviews: %w", err)
	}
	defer rows.Close()

	result := []types.Review{}
	for rows.Next() {
		var r types.Review
		if err := rows.Scan(&r.ID, &r.ProductID, &r.CustomerName, &r.CustomerEmail, &r.Rating, &r.Comment, &r.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *Postgres) CreateReview(ctx context.Context, r *types.Review) error {
	if err := checkRating(r.Rating); err != nil {
		return err
	}
	r.ID = uuid.New().String()
	r.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO reviews (id, product_id, customer_name, customer_email, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.ProductID, r.CustomerName, r.CustomerEmail, r.Rating, r.Comment, r.CreatedAt,
	)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return ErrNotFound
		}
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

func (s *Postgres) AddToWishlist(ctx context.Context, productID, email string) (*types.Wishlist, error) {
	w := &types.Wishlist{
		ID:        uuid.New().String(),
		ProductID: productID,
		Email:     normalizeEmail(email),
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO wishlists (id, product_id, email, created_at)
		VALUES ($1, $2, $3, $4)`,
		w.ID, w.ProductID, w.Email, w.CreatedAt,
	)
	if err != nil {
		switch pgCode(err) {
		case pgUniqueViolation:
			return nil, ErrDuplicateWishlist
		case pgForeignKeyViolation:
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("insert wishlist: %w", err)
	}
	return w, nil
}

func (s *Postgres) WishlistsBySeller(ctx context.Context, sellerID string) ([]types.Wishlist, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT w.id, w.product_id, w.email, w.created_at, p.name
		FROM wishlists w
		JOIN products p ON p.id = w.product_id
		WHERE p.seller_id = $1
		ORDER BY w.created_at DESC`, sellerID)
	if err != nil {
		return nil, fmt.Errorf("query wishlists: %w", err)
	}
	defer rows.Close()

	result := []types.Wishlist{}
	for rows.Next() {
		var w types.Wishlist
		if err := rows.Scan(&w.ID, &w.ProductID, &w.Email, &w.CreatedAt, &w.ProductName); err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	return result, rows.Err()
}
