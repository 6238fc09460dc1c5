package reviews

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"petpet/activity"
	"petpet/apperr"
	"petpet/db"
	"petpet/models"
	"petpet/mq"
)

const (
	maxTitleLen   = 100
	maxCommentLen = 1000
)

type Service struct {
	store  *db.Store
	events mq.Publisher
	audit  activity.Recorder
	now    func() time.Time
}

func NewService(store *db.Store, events mq.Publisher, audit activity.Recorder) *Service {
	return &Service{store: store, events: events, audit: audit, now: time.Now}
}

type CreateInput struct {
	ProductID int64  `json:"productId"`
	OrderID   int64  `json:"orderId"`
	Rating    int    `json:"rating"`
	Title     string `json:"title"`
	Comment   string `json:"comment"`
}

// UpdateInput is a patch: nil rating and blank text fields are left alone.
type UpdateInput struct {
	Rating  *int   `json:"rating"`
	Title   string `json:"title"`
	Comment string `json:"comment"`
}

func validRating(r int) bool { return r >= 1 && r <= 5 }

func (in *CreateInput) validate() error {
	var problems []string
	if in.ProductID < 1 {
		problems = append(problems, "productId is required")
	}
	if in.OrderID < 1 {
		problems = append(problems, "orderId is required")
	}
	if !validRating(in.Rating) {
		problems = append(problems, "rating must be between 1 and 5")
	}
	if strings.TrimSpace(in.Comment) == "" {
		problems = append(problems, "comment is required")
	}
	problems = append(problems, textProblems(in.Title, in.Comment)...)
	if len(problems) > 0 {
		return apperr.E(apperr.InvalidArgument, "Invalid review", problems...)
	}
	return nil
}

func (in *UpdateInput) validate() error {
	var problems []string
	if in.Rating != nil && !validRating(*in.Rating) {
		problems = append(problems, "rating must be between 1 and 5")
	}
	problems = append(problems, textProblems(in.Title, in.Comment)...)
	if len(problems) > 0 {
		return apperr.E(apperr.InvalidArgument, "Invalid review", problems...)
	}
	return nil
}

func textProblems(title, comment string) []string {
	var problems []string
	if len([]rune(strings.TrimSpace(title))) > maxTitleLen {
		problems = append(problems, fmt.Sprintf("title must be at most %d characters", maxTitleLen))
	}
	if len([]rune(strings.TrimSpace(comment))) > maxCommentLen {
		problems = append(problems, fmt.Sprintf("comment must be at most %d characters", maxCommentLen))
	}
	return problems
}

const reviewSelect = `SELECT r.id, r.user_id, u.first_name, u.last_name, u.email, r.product_id, p.name,
	r.order_id, r.rating, r.title, r.comment, r.is_verified_purchase, r.is_approved, r.helpful_votes,
	r.unhelpful_votes, r.created_at, r.updated_at
	FROM reviews r JOIN users u ON u.id = r.user_id JOIN products p ON p.id = r.product_id`

func scanReview(row interface{ Scan(...any) error }) (*models.AdminReview, error) {
	var rv models.AdminReview
	var first, last string
	var updated sql.NullTime
	err := row.Scan(&rv.ID, &rv.UserID, &first, &last, &rv.UserEmail, &rv.ProductID, &rv.ProductName,
		&rv.OrderID, &rv.Rating, &rv.Title, &rv.Comment, &rv.IsVerifiedPurchase, &rv.IsApproved,
		&rv.HelpfulVotes, &rv.UnhelpfulVotes, &rv.CreatedAt, &updated)
	if err != nil {
		return nil, err
	}
	rv.UserName = strings.TrimSpace(first + " " + last)
	if updated.Valid {
		t := updated.Time
		rv.UpdatedAt = &t
	}
	rv.Status = "Pending"
	if rv.IsApproved {
		rv.Status = "Approved"
	}
	return &rv, nil
}

func queryReviews(ctx context.Context, c db.Conn, query string, args ...any) ([]models.AdminReview, error) {
	rows, err := c.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reviews: %w", err)
	}
	defer rows.Close()

	items := []models.AdminReview{}
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		items = append(items, *rv)
	}
	return items, rows.Err()
}

func (s *Service) find(ctx context.Context, id int64) (*models.AdminReview, error) {
	rv, err := scanReview(s.store.Conn().QueryRowContext(ctx, reviewSelect+` WHERE r.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.E(apperr.NotFound, "Review not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get review %d: %w", id, err)
	}
	return rv, nil
}

// attachVotes fills UserHelpfulnessVote with viewerID's votes.
func (s *Service) attachVotes(ctx context.Context, viewerID string, items []models.Review) error {
	if viewerID == "" || len(items) == 0 {
		return nil
	}
	idx := make(map[int64]int, len(items))
	args := []any{viewerID}
	for i := range items {
		idx[items[i].ID] = i
		args = append(args, items[i].ID)
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(items)), ",")

	rows, err := s.store.Conn().QueryContext(ctx,
		`SELECT review_id, is_helpful FROM review_helpfulness WHERE user_id = ? AND review_id IN (`+marks+`)`, args...)
	if err != nil {
		return fmt.Errorf("query votes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var helpful bool
		if err := rows.Scan(&id, &helpful); err != nil {
			return fmt.Errorf("scan vote: %w", err)
		}
		if i, ok := idx[id]; ok {
			items[i].UserHelpfulnessVote = &helpful
		}
	}
	return rows.Err()
}

func public(items []models.AdminReview) []models.Review {
	out := make([]models.Review, len(items))
	for i := range items {
		out[i] = items[i].Review
	}
	return out
}

// CanReview reports whether userID has a completed order orderID that
// contains productID.
func (s *Service) CanReview(ctx context.Context, userID string, productID, orderID int64) (bool, error) {
	return canReview(ctx, s.store.Conn(), userID, productID, orderID)
}

func canReview(ctx context.Context, c db.Conn, userID string, productID, orderID int64) (bool, error) {
	var n int
	err := c.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders o JOIN order_items oi ON oi.order_id = o.id
		 WHERE o.id = ? AND o.user_id = ? AND o.status = ? AND oi.product_id = ?`,
		orderID, userID, int(models.StatusCompleted), productID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check review eligibility: %w", err)
	}
	return n > 0, nil
}

func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*models.Review, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var id int64
	err := s.store.WithTx(ctx, func(tx db.Conn) error {
		ok, err := canReview(ctx, tx, userID, in.ProductID, in.OrderID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.E(apperr.Forbidden, "You can only review products from completed orders")
		}

		var n int
		err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM reviews WHERE user_id = ? AND product_id = ? AND order_id = ?`,
			userID, in.ProductID, in.OrderID).Scan(&n)
		if err != nil {
			return fmt.Errorf("check duplicate review: %w", err)
		}
		if n > 0 {
			return apperr.E(apperr.Conflict, "You have already reviewed this product from this order")
		}

		id, err = tx.InsertID(ctx,
			`INSERT INTO reviews (user_id, product_id, order_id, rating, title, comment,
			 is_verified_purchase, is_approved, helpful_votes, unhelpful_votes, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?)`,
			userID, in.ProductID, in.OrderID, in.Rating, strings.TrimSpace(in.Title), strings.TrimSpace(in.Comment),
			true, true, s.now().UTC())
		if db.IsUniqueViolation(err) {
			return apperr.E(apperr.Conflict, "You have already reviewed this product from this order")
		}
		if err != nil {
			return fmt.Errorf("insert review: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, mq.ReviewAdded, id, userID, map[string]any{"productId": in.ProductID, "rating": in.Rating})
	return s.Get(ctx, id, "")
}

// owned loads a review and checks that userID wrote it.
func (s *Service) owned(ctx context.Context, userID string, id int64) (*models.AdminReview, error) {
	rv, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if rv.UserID != userID {
		return nil, apperr.E(apperr.Forbidden, "You can only change your own reviews")
	}
	return rv, nil
}

func (s *Service) Update(ctx context.Context, userID string, id int64, in UpdateInput) (*models.Review, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	rv, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	rating, title, comment := rv.Rating, rv.Title, rv.Comment
	if in.Rating != nil {
		rating = *in.Rating
	}
	if t := strings.TrimSpace(in.Title); t != "" {
		title = t
	}
	if c := strings.TrimSpace(in.Comment); c != "" {
		comment = c
	}

	_, err = s.store.Conn().ExecContext(ctx,
		`UPDATE reviews SET rating = ?, title = ?, comment = ?, updated_at = ? WHERE id = ?`,
		rating, title, comment, s.now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("update review: %w", err)
	}

	s.emit(ctx, mq.ReviewUpdated, id, userID, map[string]any{"productId": rv.ProductID, "rating": rating})
	return s.Get(ctx, id, userID)
}

func deleteReviews(ctx context.Context, tx db.Conn, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	if _, err := tx.ExecContext(ctx, `DELETE FROM review_helpfulness WHERE review_id IN (`+marks+`)`, args...); err != nil {
		return 0, fmt.Errorf("delete votes: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM reviews WHERE id IN (`+marks+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("delete reviews: %w", err)
	}
	return res.RowsAffected()
}

func (s *Service) Delete(ctx context.Context, userID string, id int64) error {
	rv, err := s.owned(ctx, userID, id)
	if err != nil {
		return err
	}
	err = s.store.WithTx(ctx, func(tx db.Conn) error {
		_, err := deleteReviews(ctx, tx, []int64{id})
		return err
	})
	if err != nil {
		return err
	}
	s.emit(ctx, mq.ReviewDeleted, id, userID, map[string]any{"productId": rv.ProductID})
	return nil
}

// Get returns one review with viewerID's vote on it, if any.
func (s *Service) Get(ctx context.Context, id int64, viewerID string) (*models.Review, error) {
	rv, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	items := []models.Review{rv.Review}
	if err := s.attachVotes(ctx, viewerID, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

func (s *Service) page(ctx context.Context, where string, args []any, page, pageSize int, viewerID string) (models.Paged[models.Review], error) {
	c := s.store.Conn()

	var total int
	if err := c.QueryRowContext(ctx, `SELECT COUNT(*) FROM reviews r`+where, args...).Scan(&total); err != nil {
		return models.Paged[models.Review]{}, fmt.Errorf("count reviews: %w", err)
	}
	rows, err := queryReviews(ctx, c, reviewSelect+where+` ORDER BY r.created_at DESC, r.id DESC LIMIT ? OFFSET ?`,
		append(args, pageSize, models.Offset(page, pageSize))...)
	if err != nil {
		return models.Paged[models.Review]{}, err
	}
	items := public(rows)
	if err := s.attachVotes(ctx, viewerID, items); err != nil {
		return models.Paged[models.Review]{}, err
	}
	return models.NewPaged(items, total, page, pageSize), nil
}

// ListForProduct pages the approved reviews of a product, newest first.
func (s *Service) ListForProduct(ctx context.Context, productID int64, page, pageSize int, viewerID string) (models.Paged[models.Review], error) {
	return s.page(ctx, ` WHERE r.product_id = ? AND r.is_approved = ?`, []any{productID, true}, page, pageSize, viewerID)
}

// ListForUser pages every review userID wrote, approved or not.
func (s *Service) ListForUser(ctx context.Context, userID string, page, pageSize int, viewerID string) (models.Paged[models.Review], error) {
	return s.page(ctx, ` WHERE r.user_id = ?`, []any{userID}, page, pageSize, viewerID)
}

func (s *Service) ListMine(ctx context.Context, userID string, page, pageSize int) (models.Paged[models.Review], error) {
	return s.ListForUser(ctx, userID, page, pageSize, userID)
}

// Vote records userID's helpfulness vote. Repeating the same vote changes
// nothing; flipping it moves one count from one counter to the other.
func (s *Service) Vote(ctx context.Context, userID string, reviewID int64, helpful bool) (*models.Review, error) {
	var err error
	// two first votes racing on the unique index; the retry sees the winner
	for attempt := 0; attempt < 2; attempt++ {
		err = s.vote(ctx, userID, reviewID, helpful)
		if err == nil || !db.IsUniqueViolation(err) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, reviewID, userID)
}

func (s *Service) vote(ctx context.Context, userID string, reviewID int64, helpful bool) error {
	return s.store.WithTx(ctx, func(tx db.Conn) error {
		var author string
		err := tx.QueryRowContext(ctx, `SELECT user_id FROM reviews WHERE id = ?`+tx.ForUpdate(), reviewID).Scan(&author)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.E(apperr.NotFound, "Review not found")
		}
		if err != nil {
			return fmt.Errorf("load review: %w", err)
		}
		if author == userID {
			return apperr.E(apperr.InvalidArgument, "You cannot vote on your own review")
		}

		var existing bool
		err = tx.QueryRowContext(ctx,
			`SELECT is_helpful FROM review_helpfulness WHERE user_id = ? AND review_id = ?`, userID, reviewID).Scan(&existing)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO review_helpfulness (user_id, review_id, is_helpful, created_at) VALUES (?, ?, ?, ?)`,
				userID, reviewID, helpful, s.now().UTC()); err != nil {
				return err
			}
			counter := "unhelpful_votes"
			if helpful {
				counter = "helpful_votes"
			}
			_, err = tx.ExecContext(ctx, `UPDATE reviews SET `+counter+` = `+counter+` + 1 WHERE id = ?`, reviewID)
			return err
		case err != nil:
			return fmt.Errorf("load vote: %w", err)
		case existing == helpful:
			return nil
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE review_helpfulness SET is_helpful = ? WHERE user_id = ? AND review_id = ?`,
			helpful, userID, reviewID); err != nil {
			return fmt.Errorf("update vote: %w", err)
		}
		delta := 1
		if !helpful {
			delta = -1
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE reviews SET helpful_votes = helpful_votes + ?, unhelpful_votes = unhelpful_votes - ? WHERE id = ?`,
			delta, delta, reviewID)
		return err
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// distribution counts reviews per rating over the rows matching where.
func distribution(ctx context.Context, c db.Conn, where string, args ...any) (map[int]int, int, float64, error) {
	rows, err := c.QueryContext(ctx, `SELECT r.rating, COUNT(*) FROM reviews r`+where+` GROUP BY r.rating`, args...)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("rating distribution: %w", err)
	}
	defer rows.Close()

	dist := models.EmptyDistribution()
	total, sum := 0, 0
	for rows.Next() {
		var rating, n int
		if err := rows.Scan(&rating, &n); err != nil {
			return nil, 0, 0, fmt.Errorf("scan distribution: %w", err)
		}
		dist[rating] = n
		total += n
		sum += rating * n
	}
	if err := rows.Err(); err != nil {
		return nil, 0, 0, err
	}
	avg := 0.0
	if total > 0 {
		avg = round2(float64(sum) / float64(total))
	}
	return dist, total, avg, nil
}

// Summary aggregates the approved reviews of a product.
func (s *Service) Summary(ctx context.Context, productID int64) (*models.ReviewSummary, error) {
	dist, total, avg, err := distribution(ctx, s.store.Conn(), ` WHERE r.product_id = ? AND r.is_approved = ?`, productID, true)
	if err != nil {
		return nil, err
	}
	return &models.ReviewSummary{
		ProductID:          productID,
		AverageRating:      avg,
		TotalReviews:       total,
		RatingDistribution: dist,
	}, nil
}

func (s *Service) emit(ctx context.Context, name string, id int64, userID string, data any) {
	s.events.Emit(ctx, name, mq.NewEvent("review", strconv.FormatInt(id, 10), userID, data))
}
