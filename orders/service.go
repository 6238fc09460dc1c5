package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"petpet/activity"
	"petpet/apperr"
	"petpet/db"
	"petpet/models"
	"petpet/mq"
)

// maxNumberAttempts bounds checkout retries caused by order number clashes.
const maxNumberAttempts = 5

var errNumberTaken = errors.New("order number taken")

type Options struct {
	Transitions     Transitions
	RestockOnCancel bool
}

type Service struct {
	store           *db.Store
	events          mq.Publisher
	audit           activity.Recorder
	transitions     Transitions
	restockOnCancel bool
	number          numberFunc
	now             func() time.Time
}

func NewService(store *db.Store, events mq.Publisher, audit activity.Recorder, opts Options) *Service {
	return &Service{
		store:           store,
		events:          events,
		audit:           audit,
		transitions:     opts.Transitions,
		restockOnCancel: opts.RestockOnCancel,
		number:          newOrderNumber,
		now:             time.Now,
	}
}

// cartLine is one cart row joined with the live product it refers to.
type cartLine struct {
	productID int64
	name      string
	quantity  int
	price     decimal.Decimal
	stock     int
	active    bool
}

func (l cartLine) total() decimal.Decimal {
	return l.price.Mul(decimal.NewFromInt(int64(l.quantity)))
}

// cartLines reads the user's cart ordered by product id. lock takes row
// locks on the products (and cart rows) where the dialect supports it.
func cartLines(ctx context.Context, c db.Conn, userID string, lock bool) ([]cartLine, error) {
	query := `SELECT ci.product_id, p.name, ci.quantity, p.price, p.stock_quantity, p.is_active
		FROM cart_items ci JOIN products p ON p.id = ci.product_id
		WHERE ci.user_id = ? ORDER BY ci.product_id`
	if lock {
		query += c.ForUpdate()
	}

	rows, err := c.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}
	defer rows.Close()

	var lines []cartLine
	for rows.Next() {
		var l cartLine
		if err := rows.Scan(&l.productID, &l.name, &l.quantity, &l.price, &l.stock, &l.active); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// checkLines fails on an empty cart or on the first line that cannot be
// served from current stock.
func checkLines(lines []cartLine) error {
	if len(lines) == 0 {
		return apperr.E(apperr.EmptyCart, "Cart is empty")
	}
	for _, l := range lines {
		if !l.active {
			return apperr.Newf(apperr.InsufficientStock, "Product %s is no longer available", l.name)
		}
		if l.stock < l.quantity {
			return apperr.E(apperr.InsufficientStock,
				fmt.Sprintf("Insufficient stock for product %s", l.name),
				fmt.Sprintf("requested %d, available %d", l.quantity, l.stock))
		}
	}
	return nil
}

// CreateOrder turns the user's cart into an order. Stock is decremented and
// the cart cleared in the same transaction as the order insert, so either
// all of it happens or none of it does.
func (s *Service) CreateOrder(ctx context.Context, userID, shippingAddress, notes string) (*models.Order, error) {
	lines, err := cartLines(ctx, s.store.Conn(), userID, false)
	if err != nil {
		return nil, err
	}
	if err := checkLines(lines); err != nil {
		return nil, err
	}

	var id int64
	for attempt := 1; ; attempt++ {
		id, err = s.checkout(ctx, userID, strings.TrimSpace(shippingAddress), strings.TrimSpace(notes))
		if err == nil {
			break
		}
		if !errors.Is(err, errNumberTaken) || attempt == maxNumberAttempts {
			if errors.Is(err, errNumberTaken) {
				slog.Error("order number space exhausted", "user", userID, "attempts", attempt)
				return nil, apperr.E(apperr.Conflict, "Could not allocate an order number, please retry")
			}
			return nil, err
		}
		slog.Warn("order number collision, retrying", "user", userID, "attempt", attempt)
	}

	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	sid := strconv.FormatInt(order.ID, 10)
	s.events.Emit(ctx, mq.OrderCreated, mq.NewEvent("order", sid, userID, map[string]any{
		"orderNumber": order.OrderNumber,
		"status":      order.Status,
		"totalAmount": order.TotalAmount,
	}))
	slog.Info("order created", "order", order.OrderNumber, "user", userID, "total", order.TotalAmount.String())
	return order, nil
}

func (s *Service) checkout(ctx context.Context, userID, shippingAddress, notes string) (int64, error) {
	var id int64
	err := s.store.WithTx(ctx, func(tx db.Conn) error {
		lines, err := cartLines(ctx, tx, userID, true)
		if err != nil {
			return err
		}
		if err := checkLines(lines); err != nil {
			return err
		}

		total := decimal.Zero
		for _, l := range lines {
			total = total.Add(l.total())
		}

		now := s.now().UTC()
		id, err = tx.InsertID(ctx,
			`INSERT INTO orders (user_id, order_number, total_amount, status, shipping_address, notes, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			userID, s.number(now), total.String(), int(models.StatusWaiting), shippingAddress, notes, now)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return errNumberTaken
			}
			return fmt.Errorf("insert order: %w", err)
		}

		for _, l := range lines {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO order_items (order_id, product_id, quantity, unit_price, total_price)
				 VALUES (?, ?, ?, ?, ?)`,
				id, l.productID, l.quantity, l.price.String(), l.total().String())
			if err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}

			res, err := tx.ExecContext(ctx,
				`UPDATE products SET stock_quantity = stock_quantity - ?, updated_at = ?
				 WHERE id = ? AND stock_quantity >= ?`,
				l.quantity, now, l.productID, l.quantity)
			if err != nil {
				return fmt.Errorf("decrement stock: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return apperr.Newf(apperr.InsufficientStock, "Insufficient stock for product %s", l.name)
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		return nil
	})
	return id, err
}

const orderColumns = `o.id, o.user_id, o.order_number, o.total_amount, o.status, o.shipping_address,
	o.notes, o.created_at, o.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var updated sql.NullTime
	err := row.Scan(&o.ID, &o.UserID, &o.OrderNumber, &o.TotalAmount, &o.Status, &o.ShippingAddress,
		&o.Notes, &o.CreatedAt, &updated)
	if err != nil {
		return nil, err
	}
	if updated.Valid {
		t := updated.Time
		o.UpdatedAt = &t
	}
	o.OrderItems = []models.OrderItem{}
	return &o, nil
}

func (s *Service) ListForUser(ctx context.Context, userID string, f models.OrderFilter) (models.Paged[models.Order], error) {
	return s.list(ctx, userID, f)
}

func (s *Service) ListAll(ctx context.Context, f models.OrderFilter) (models.Paged[models.Order], error) {
	return s.list(ctx, "", f)
}

func orderWhere(userID string, f models.OrderFilter) (string, []any) {
	var conds []string
	var args []any
	if userID != "" {
		conds = append(conds, "o.user_id = ?")
		args = append(args, userID)
	}
	if f.Status != nil {
		conds = append(conds, "o.status = ?")
		args = append(args, int(*f.Status))
	}
	if f.FromDate != nil {
		conds = append(conds, "o.created_at >= ?")
		args = append(args, f.FromDate.UTC())
	}
	if f.ToDate != nil {
		conds = append(conds, "o.created_at <= ?")
		args = append(args, f.ToDate.UTC())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *Service) list(ctx context.Context, userID string, f models.OrderFilter) (models.Paged[models.Order], error) {
	c := s.store.Conn()
	where, args := orderWhere(userID, f)

	var total int
	if err := c.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders o"+where, args...).Scan(&total); err != nil {
		return models.Paged[models.Order]{}, fmt.Errorf("count orders: %w", err)
	}

	rows, err := c.QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders o"+where+" ORDER BY o.created_at DESC, o.id DESC LIMIT ? OFFSET ?",
		append(args, f.PageSize, models.Offset(f.Page, f.PageSize))...)
	if err != nil {
		return models.Paged[models.Order]{}, fmt.Errorf("query orders: %w", err)
	}
	items := []models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return models.Paged[models.Order]{}, fmt.Errorf("scan order: %w", err)
		}
		items = append(items, *o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return models.Paged[models.Order]{}, err
	}

	if err := attachItems(ctx, c, items); err != nil {
		return models.Paged[models.Order]{}, err
	}
	return models.NewPaged(items, total, f.Page, f.PageSize), nil
}

// attachItems loads the lines of every order in one query.
func attachItems(ctx context.Context, c db.Conn, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	idx := make(map[int64]int, len(orders))
	args := make([]any, len(orders))
	for i := range orders {
		idx[orders[i].ID] = i
		args[i] = orders[i].ID
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(orders)), ",")

	rows, err := c.QueryContext(ctx,
		`SELECT oi.id, oi.order_id, oi.product_id, p.name, oi.quantity, oi.unit_price, oi.total_price, `+
			db.PrimaryImageURL("oi.product_id")+`
		 FROM order_items oi JOIN products p ON p.id = oi.product_id
		 WHERE oi.order_id IN (`+marks+`)
		 ORDER BY oi.order_id, oi.id`, args...)
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it models.OrderItem
		var orderID int64
		if err := rows.Scan(&it.ID, &orderID, &it.ProductID, &it.ProductName, &it.Quantity,
			&it.UnitPrice, &it.TotalPrice, &it.ProductImageURL); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if i, ok := idx[orderID]; ok {
			orders[i].OrderItems = append(orders[i].OrderItems, it)
		}
	}
	return rows.Err()
}

func (s *Service) Get(ctx context.Context, id int64) (*models.Order, error) {
	c := s.store.Conn()
	o, err := scanOrder(c.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders o WHERE o.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.E(apperr.NotFound, "Order not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}
	items := []models.Order{*o}
	if err := attachItems(ctx, c, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

type stockMove struct {
	productID int64
	quantity  int
}

func orderLines(ctx context.Context, tx db.Conn, orderID int64) ([]stockMove, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT product_id, quantity FROM order_items WHERE order_id = ? ORDER BY product_id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	var moves []stockMove
	for rows.Next() {
		var m stockMove
		if err := rows.Scan(&m.productID, &m.quantity); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		moves = append(moves, m)
	}
	return moves, rows.Err()
}

// adjustStock returns the order's goods to stock (release) or takes them
// again when an order leaves a cancelled state.
func adjustStock(ctx context.Context, tx db.Conn, orderID int64, release bool, now time.Time) error {
	moves, err := orderLines(ctx, tx, orderID)
	if err != nil {
		return err
	}
	for _, m := range moves {
		if release {
			_, err = tx.ExecContext(ctx,
				`UPDATE products SET stock_quantity = stock_quantity + ?, updated_at = ? WHERE id = ?`,
				m.quantity, now, m.productID)
			if err != nil {
				return fmt.Errorf("restock product %d: %w", m.productID, err)
			}
			continue
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE products SET stock_quantity = stock_quantity - ?, updated_at = ?
			 WHERE id = ? AND stock_quantity >= ?`,
			m.quantity, now, m.productID, m.quantity)
		if err != nil {
			return fmt.Errorf("reserve product %d: %w", m.productID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.Newf(apperr.InsufficientStock, "Insufficient stock for product %d", m.productID)
		}
	}
	return nil
}

// UpdateStatus moves an order along the transition table.
func (s *Service) UpdateStatus(ctx context.Context, actor string, id int64, to models.OrderStatus) (*models.Order, error) {
	if !to.Valid() {
		return nil, apperr.E(apperr.InvalidArgument, "Invalid order status")
	}

	var owner string
	var from models.OrderStatus
	err := s.store.WithTx(ctx, func(tx db.Conn) error {
		err := tx.QueryRowContext(ctx,
			`SELECT user_id, status FROM orders WHERE id = ?`+tx.ForUpdate(), id).Scan(&owner, &from)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.E(apperr.NotFound, "Order not found")
		}
		if err != nil {
			return fmt.Errorf("load order %d: %w", id, err)
		}
		if err := s.transitions.Check(from, to); err != nil {
			return err
		}

		now := s.now().UTC()
		res, err := tx.ExecContext(ctx,
			`UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			int(to), now, id, int(from))
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.E(apperr.Conflict, "Order status changed concurrently")
		}

		if s.restockOnCancel && releasesStock(to) != releasesStock(from) {
			return adjustStock(ctx, tx, id, releasesStock(to), now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sid := strconv.FormatInt(id, 10)
	activity.Log(ctx, s.audit, activity.Entry{
		Actor:      actor,
		Action:     "order.status",
		EntityType: "order",
		EntityID:   sid,
		Details:    map[string]any{"from": from.String(), "to": to.String()},
	})
	s.events.Emit(ctx, mq.OrderStatusChanged, mq.NewEvent("order", sid, owner, map[string]any{
		"from": from,
		"to":   to,
	}))
	slog.Info("order status changed", "order", id, "from", from.String(), "to", to.String(), "actor", actor)

	return s.Get(ctx, id)
}
