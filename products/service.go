package products

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"petpet/activity"
	"petpet/apperr"
	"petpet/db"
	"petpet/filemgr"
	"petpet/models"
	"petpet/mq"
)

const defaultLowStockThreshold = 10

type Filter struct {
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	Section    *models.Section
	Category   *models.Category
	Brand      string
	State      *models.ProductState
	SearchTerm string
	Page       int
	PageSize   int
}

type ImageInput struct {
	ImageURL     string `json:"imageUrl"`
	AltText      string `json:"altText"`
	DisplayOrder int    `json:"displayOrder"`
	IsPrimary    bool   `json:"isPrimary"`
}

// Input is the body of create and update requests.
type Input struct {
	Name              string               `json:"name"`
	Description       string               `json:"description"`
	Price             decimal.Decimal      `json:"price"`
	OriginalPrice     decimal.NullDecimal  `json:"originalPrice"`
	Brand             string               `json:"brand"`
	StockQuantity     int                  `json:"stockQuantity"`
	LowStockThreshold *int                 `json:"lowStockThreshold"`
	Section           models.Section       `json:"section"`
	Category          models.Category      `json:"category"`
	State             *models.ProductState `json:"state"`
	Images            []ImageInput         `json:"images"`
}

func (in *Input) validate() error {
	var problems []string
	if strings.TrimSpace(in.Name) == "" {
		problems = append(problems, "name is required")
	}
	if !in.Price.IsPositive() {
		problems = append(problems, "price must be greater than zero")
	}
	if in.OriginalPrice.Valid && !in.OriginalPrice.Decimal.IsPositive() {
		problems = append(problems, "originalPrice must be greater than zero")
	}
	if in.StockQuantity < 0 {
		problems = append(problems, "stockQuantity must not be negative")
	}
	if in.LowStockThreshold != nil && *in.LowStockThreshold < 0 {
		problems = append(problems, "lowStockThreshold must not be negative")
	}
	if !in.Section.Valid() {
		problems = append(problems, "section is invalid")
	}
	if !in.Category.Valid() {
		problems = append(problems, "category is invalid")
	}
	if in.State != nil && !in.State.Valid() {
		problems = append(problems, "state is invalid")
	}
	for i, img := range in.Images {
		if strings.TrimSpace(img.ImageURL) == "" {
			problems = append(problems, fmt.Sprintf("images[%d].imageUrl is required", i))
		}
	}
	if len(problems) > 0 {
		return apperr.E(apperr.InvalidArgument, "Invalid product", problems...)
	}
	return nil
}

func (in *Input) threshold() int {
	if in.LowStockThreshold == nil {
		return defaultLowStockThreshold
	}
	return *in.LowStockThreshold
}

func (in *Input) state() models.ProductState {
	if in.State == nil {
		return models.StateInStock
	}
	return *in.State
}

// normalizedImages fills alt text and display order and makes the first image
// primary when none is flagged.
func (in *Input) normalizedImages() []models.ProductImage {
	out := make([]models.ProductImage, len(in.Images))
	anyPrimary := false
	for _, img := range in.Images {
		anyPrimary = anyPrimary || img.IsPrimary
	}
	for i, img := range in.Images {
		alt := strings.TrimSpace(img.AltText)
		if alt == "" {
			alt = in.Name
		}
		order := img.DisplayOrder
		if order <= 0 {
			order = i + 1
		}
		out[i] = models.ProductImage{
			ImageURL:     strings.TrimSpace(img.ImageURL),
			AltText:      alt,
			DisplayOrder: order,
			IsPrimary:    img.IsPrimary || (!anyPrimary && i == 0),
		}
	}
	return out
}

type Service struct {
	store  *db.Store
	events mq.Publisher
	audit  activity.Recorder
	files  *filemgr.Manager
}

func NewService(store *db.Store, events mq.Publisher, audit activity.Recorder, files *filemgr.Manager) *Service {
	return &Service{store: store, events: events, audit: audit, files: files}
}

const productColumns = `p.id, p.name, p.description, p.price, p.original_price, p.brand, p.stock_quantity,
	p.low_stock_threshold, p.section, p.category, p.state, p.is_active, p.created_at, p.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	var p models.Product
	var updated sql.NullTime
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.OriginalPrice, &p.Brand, &p.StockQuantity,
		&p.LowStockThreshold, &p.Section, &p.Category, &p.State, &p.IsActive, &p.CreatedAt, &updated)
	if err != nil {
		return nil, err
	}
	if updated.Valid {
		t := updated.Time
		p.UpdatedAt = &t
	}
	p.Images = []models.ProductImage{}
	return &p, nil
}

func likePattern(s string) string {
	return "%" + strings.ToLower(strings.TrimSpace(s)) + "%"
}

func (f *Filter) where() (string, []any) {
	conds := []string{"p.is_active = ?"}
	args := []any{true}

	if f.MinPrice != nil {
		conds = append(conds, "p.price >= ?")
		args = append(args, f.MinPrice.String())
	}
	if f.MaxPrice != nil {
		conds = append(conds, "p.price <= ?")
		args = append(args, f.MaxPrice.String())
	}
	if f.Section != nil {
		conds = append(conds, "p.section = ?")
		args = append(args, int(*f.Section))
	}
	if f.Category != nil {
		conds = append(conds, "p.category = ?")
		args = append(args, int(*f.Category))
	}
	if strings.TrimSpace(f.Brand) != "" {
		conds = append(conds, "LOWER(p.brand) LIKE ?")
		args = append(args, likePattern(f.Brand))
	}
	if f.State != nil {
		conds = append(conds, "p.state = ?")
		args = append(args, int(*f.State))
	}
	if strings.TrimSpace(f.SearchTerm) != "" {
		term := likePattern(f.SearchTerm)
		conds = append(conds, "(LOWER(p.name) LIKE ? OR LOWER(p.description) LIKE ? OR LOWER(p.brand) LIKE ?)")
		args = append(args, term, term, term)
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List returns a page of active products matching f, newest first.
func (s *Service) List(ctx context.Context, f Filter) (models.Paged[models.Product], error) {
	c := s.store.Conn()
	where, args := f.where()

	var total int
	if err := c.QueryRowContext(ctx, "SELECT COUNT(*) FROM products p"+where, args...).Scan(&total); err != nil {
		return models.Paged[models.Product]{}, fmt.Errorf("count products: %w", err)
	}

	query := "SELECT " + productColumns + " FROM products p" + where +
		" ORDER BY p.created_at DESC, p.id DESC LIMIT ? OFFSET ?"
	items, err := s.query(ctx, c, query, append(args, f.PageSize, models.Offset(f.Page, f.PageSize))...)
	if err != nil {
		return models.Paged[models.Product]{}, err
	}
	if err := s.attachImages(ctx, c, items); err != nil {
		return models.Paged[models.Product]{}, err
	}
	return models.NewPaged(items, total, f.Page, f.PageSize), nil
}

func (s *Service) query(ctx context.Context, c db.Conn, query string, args ...any) ([]models.Product, error) {
	rows, err := c.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	items := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		items = append(items, *p)
	}
	return items, rows.Err()
}

// attachImages loads the images of every product in one query.
func (s *Service) attachImages(ctx context.Context, c db.Conn, items []models.Product) error {
	if len(items) == 0 {
		return nil
	}
	idx := make(map[int64]int, len(items))
	args := make([]any, len(items))
	for i := range items {
		idx[items[i].ID] = i
		args[i] = items[i].ID
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(items)), ",")

	rows, err := c.QueryContext(ctx,
		`SELECT id, product_id, image_url, alt_text, display_order, is_primary
		 FROM product_images WHERE product_id IN (`+marks+`)
		 ORDER BY product_id, display_order, id`, args...)
	if err != nil {
		return fmt.Errorf("query images: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var img models.ProductImage
		if err := rows.Scan(&img.ID, &img.ProductID, &img.ImageURL, &img.AltText, &img.DisplayOrder, &img.IsPrimary); err != nil {
			return fmt.Errorf("scan image: %w", err)
		}
		if i, ok := idx[img.ProductID]; ok {
			items[i].Images = append(items[i].Images, img)
		}
	}
	return rows.Err()
}

func (s *Service) Get(ctx context.Context, id int64) (*models.Product, error) {
	return s.get(ctx, s.store.Conn(), id)
}

func (s *Service) get(ctx context.Context, c db.Conn, id int64) (*models.Product, error) {
	p, err := scanProduct(c.QueryRowContext(ctx,
		"SELECT "+productColumns+" FROM products p WHERE p.id = ? AND p.is_active = ?", id, true))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.E(apperr.NotFound, "Product not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}
	items := []models.Product{*p}
	if err := s.attachImages(ctx, c, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

func insertImages(ctx context.Context, tx db.Conn, productID int64, images []models.ProductImage) error {
	for _, img := range images {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO product_images (product_id, image_url, alt_text, display_order, is_primary)
			 VALUES (?, ?, ?, ?, ?)`,
			productID, img.ImageURL, img.AltText, img.DisplayOrder, img.IsPrimary)
		if err != nil {
			return fmt.Errorf("insert image: %w", err)
		}
	}
	return nil
}

func nullDecimal(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func (s *Service) Create(ctx context.Context, actor string, in Input) (*models.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var id int64
	err := s.store.WithTx(ctx, func(tx db.Conn) error {
		var err error
		id, err = tx.InsertID(ctx,
			`INSERT INTO products (name, description, price, original_price, brand, stock_quantity,
			 low_stock_threshold, section, category, state, is_active, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			strings.TrimSpace(in.Name), in.Description, in.Price.String(), nullDecimal(in.OriginalPrice),
			in.Brand, in.StockQuantity, in.threshold(), int(in.Section), int(in.Category), int(in.state()),
			true, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("insert product: %w", err)
		}
		return insertImages(ctx, tx, id, in.normalizedImages())
	})
	if err != nil {
		return nil, err
	}

	s.changed(ctx, actor, mq.ProductCreated, "product.create", id)
	return s.Get(ctx, id)
}

// Update overwrites every field of an active product. Images are replaced
// only when the input carries some.
func (s *Service) Update(ctx context.Context, actor string, id int64, in Input) (*models.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(tx db.Conn) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE products SET name = ?, description = ?, price = ?, original_price = ?, brand = ?,
			 stock_quantity = ?, low_stock_threshold = ?, section = ?, category = ?, state = ?, updated_at = ?
			 WHERE id = ? AND is_active = ?`,
			strings.TrimSpace(in.Name), in.Description, in.Price.String(), nullDecimal(in.OriginalPrice),
			in.Brand, in.StockQuantity, in.threshold(), int(in.Section), int(in.Category), int(in.state()),
			time.Now().UTC(), id, true)
		if err != nil {
			return fmt.Errorf("update product: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.E(apperr.NotFound, "Product not found")
		}

		if len(in.Images) == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM product_images WHERE product_id = ?`, id); err != nil {
			return fmt.Errorf("clear images: %w", err)
		}
		return insertImages(ctx, tx, id, in.normalizedImages())
	})
	if err != nil {
		return nil, err
	}

	s.changed(ctx, actor, mq.ProductUpdated, "product.update", id)
	return s.Get(ctx, id)
}

// Delete hides the product; order history keeps referring to it.
func (s *Service) Delete(ctx context.Context, actor string, id int64) error {
	res, err := s.store.Conn().ExecContext(ctx,
		`UPDATE products SET is_active = ?, updated_at = ? WHERE id = ? AND is_active = ?`,
		false, time.Now().UTC(), id, true)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.E(apperr.NotFound, "Product not found")
	}
	s.changed(ctx, actor, mq.ProductDeleted, "product.delete", id)
	return nil
}

// LowStock lists active products at or below their threshold, scarcest first.
func (s *Service) LowStock(ctx context.Context) ([]models.Product, error) {
	c := s.store.Conn()
	items, err := s.query(ctx, c,
		"SELECT "+productColumns+` FROM products p
		 WHERE p.is_active = ? AND p.stock_quantity <= p.low_stock_threshold
		 ORDER BY p.stock_quantity ASC, p.id ASC`, true)
	if err != nil {
		return nil, err
	}
	if err := s.attachImages(ctx, c, items); err != nil {
		return nil, err
	}
	return items, nil
}

// AddImage stores an uploaded picture and appends it to the product's
// images. It becomes primary when the product had none.
func (s *Service) AddImage(ctx context.Context, actor string, id int64, filename, altText string, src io.Reader) (*models.ProductImage, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	saved, err := s.files.SaveImage(filemgr.EntityProduct, filename, src)
	if err != nil {
		if errors.Is(err, filemgr.ErrInvalidExtension) || errors.Is(err, filemgr.ErrInvalidMIME) ||
			errors.Is(err, filemgr.ErrFileTooLarge) || errors.Is(err, filemgr.ErrUndecodable) {
			return nil, apperr.E(apperr.InvalidArgument, "Invalid image", err.Error())
		}
		return nil, err
	}

	img := models.ProductImage{
		ProductID:    id,
		ImageURL:     saved.URL,
		AltText:      strings.TrimSpace(altText),
		DisplayOrder: 1,
		IsPrimary:    len(p.Images) == 0,
	}
	if img.AltText == "" {
		img.AltText = p.Name
	}
	for _, existing := range p.Images {
		if existing.DisplayOrder >= img.DisplayOrder {
			img.DisplayOrder = existing.DisplayOrder + 1
		}
	}

	img.ID, err = s.store.Conn().InsertID(ctx,
		`INSERT INTO product_images (product_id, image_url, alt_text, display_order, is_primary)
		 VALUES (?, ?, ?, ?, ?)`,
		id, img.ImageURL, img.AltText, img.DisplayOrder, img.IsPrimary)
	if err != nil {
		return nil, fmt.Errorf("insert image: %w", err)
	}

	s.changed(ctx, actor, mq.ProductUpdated, "product.image.add", id)
	return &img, nil
}

func (s *Service) changed(ctx context.Context, actor, event, action string, id int64) {
	sid := strconv.FormatInt(id, 10)
	s.events.Emit(ctx, event, mq.NewEvent("product", sid, "", nil))
	activity.Log(ctx, s.audit, activity.Entry{Actor: actor, Action: action, EntityType: "product", EntityID: sid})
}
