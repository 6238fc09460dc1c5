package reviews

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"petpet/activity"
	"petpet/apperr"
	"petpet/db"
	"petpet/models"
	"petpet/mq"
)

type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionDelete  Action = "delete"
)

func ParseAction(v string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(v))); a {
	case ActionApprove, ActionReject, ActionDelete:
		return a, nil
	}
	return "", apperr.E(apperr.InvalidArgument, "Invalid action. Use 'approve', 'reject', or 'delete'")
}

var sortColumns = map[string]string{
	"createdat":    "r.created_at",
	"rating":       "r.rating",
	"helpfulvotes": "r.helpful_votes",
}

func adminWhere(f models.AdminReviewFilter) (string, []any) {
	var conds []string
	var args []any

	if term := strings.ToLower(strings.TrimSpace(f.SearchTerm)); term != "" {
		like := "%" + term + "%"
		conds = append(conds, `(LOWER(r.comment) LIKE ? OR LOWER(r.title) LIKE ? OR LOWER(p.name) LIKE ?
			OR LOWER(u.first_name) LIKE ? OR LOWER(u.last_name) LIKE ? OR LOWER(u.email) LIKE ?)`)
		args = append(args, like, like, like, like, like, like)
	}
	if f.ProductID != nil {
		conds = append(conds, "r.product_id = ?")
		args = append(args, *f.ProductID)
	}
	if f.UserID != "" {
		conds = append(conds, "r.user_id = ?")
		args = append(args, f.UserID)
	}
	if f.IsApproved != nil {
		conds = append(conds, "r.is_approved = ?")
		args = append(args, *f.IsApproved)
	}
	if f.MinRating != nil {
		conds = append(conds, "r.rating >= ?")
		args = append(args, *f.MinRating)
	}
	if f.MaxRating != nil {
		conds = append(conds, "r.rating <= ?")
		args = append(args, *f.MaxRating)
	}
	if f.FromDate != nil {
		conds = append(conds, "r.created_at >= ?")
		args = append(args, f.FromDate.UTC())
	}
	if f.ToDate != nil {
		conds = append(conds, "r.created_at <= ?")
		args = append(args, f.ToDate.UTC())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func orderBy(f models.AdminReviewFilter) string {
	col, ok := sortColumns[strings.ToLower(f.SortBy)]
	if !ok {
		col = "r.created_at"
	}
	dir := "DESC"
	if strings.EqualFold(f.SortDirection, "asc") {
		dir = "ASC"
	}
	return " ORDER BY " + col + " " + dir + ", r.id " + dir
}

// AdminList pages every review, approved or not, for moderators.
func (s *Service) AdminList(ctx context.Context, f models.AdminReviewFilter) (models.Paged[models.AdminReview], error) {
	c := s.store.Conn()
	where, args := adminWhere(f)

	var total int
	err := c.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reviews r JOIN users u ON u.id = r.user_id JOIN products p ON p.id = r.product_id`+where,
		args...).Scan(&total)
	if err != nil {
		return models.Paged[models.AdminReview]{}, fmt.Errorf("count reviews: %w", err)
	}

	items, err := queryReviews(ctx, c, reviewSelect+where+orderBy(f)+` LIMIT ? OFFSET ?`,
		append(args, f.PageSize, models.Offset(f.Page, f.PageSize))...)
	if err != nil {
		return models.Paged[models.AdminReview]{}, err
	}
	return models.NewPaged(items, total, f.Page, f.PageSize), nil
}

func (s *Service) AdminGet(ctx context.Context, id int64) (*models.AdminReview, error) {
	return s.find(ctx, id)
}

// Stats summarises all reviews. Rejected reviews are stored as unapproved,
// so RejectedReviews is always zero and PendingReviews counts them.
func (s *Service) Stats(ctx context.Context) (*models.ReviewStats, error) {
	c := s.store.Conn()
	st := &models.ReviewStats{}

	dist, total, avg, err := distribution(ctx, c, "")
	if err != nil {
		return nil, err
	}
	st.TotalReviews, st.AverageRating, st.RatingDistribution = total, avg, dist

	if err := c.QueryRowContext(ctx, `SELECT COUNT(*) FROM reviews WHERE is_approved = ?`, true).
		Scan(&st.ApprovedReviews); err != nil {
		return nil, fmt.Errorf("count approved: %w", err)
	}
	st.PendingReviews = st.TotalReviews - st.ApprovedReviews

	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	for dst, since := range map[*int]time.Time{
		&st.ReviewsToday:     today,
		&st.ReviewsThisWeek:  now.AddDate(0, 0, -7),
		&st.ReviewsThisMonth: month,
	} {
		if err := c.QueryRowContext(ctx, `SELECT COUNT(*) FROM reviews WHERE created_at >= ?`, since).Scan(dst); err != nil {
			return nil, fmt.Errorf("count reviews since %s: %w", since.Format(time.DateOnly), err)
		}
	}
	return st, nil
}

// Moderate applies action to one review.
func (s *Service) Moderate(ctx context.Context, actor string, id int64, action Action, reason string) error {
	action, err := ParseAction(string(action))
	if err != nil {
		return err
	}
	rv, err := s.find(ctx, id)
	if err != nil {
		return err
	}

	err = s.store.WithTx(ctx, func(tx db.Conn) error {
		_, err := applyAction(ctx, tx, action, []int64{id}, s.now().UTC())
		return err
	})
	if err != nil {
		return err
	}

	sid := strconv.FormatInt(id, 10)
	activity.Log(ctx, s.audit, activity.Entry{
		Actor:      actor,
		Action:     "review." + string(action),
		EntityType: "review",
		EntityID:   sid,
		Details:    map[string]any{"reason": reason, "productId": rv.ProductID},
	})
	s.emit(ctx, mq.ReviewModerated, id, rv.UserID, map[string]any{"action": action, "productId": rv.ProductID})
	slog.Info("review moderated", "review", id, "action", action, "actor", actor)
	return nil
}

// BulkModerate applies action to every existing review in ids in one
// transaction and returns how many were affected. Unknown ids are skipped.
func (s *Service) BulkModerate(ctx context.Context, actor string, ids []int64, action Action, reason string) (int64, error) {
	action, err := ParseAction(string(action))
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, apperr.E(apperr.InvalidArgument, "reviewIds must not be empty")
	}

	var affected int64
	err = s.store.WithTx(ctx, func(tx db.Conn) error {
		var err error
		affected, err = applyAction(ctx, tx, action, ids, s.now().UTC())
		return err
	})
	if err != nil {
		return 0, err
	}

	activity.Log(ctx, s.audit, activity.Entry{
		Actor:      actor,
		Action:     "review.bulk." + string(action),
		EntityType: "review",
		EntityID:   joinIDs(ids),
		Details:    map[string]any{"reason": reason, "affected": affected},
	})
	s.events.Emit(ctx, mq.ReviewModerated, mq.NewEvent("review", joinIDs(ids), "",
		map[string]any{"action": action, "affected": affected}))
	slog.Info("reviews moderated", "count", affected, "action", action, "actor", actor)
	return affected, nil
}

func applyAction(ctx context.Context, tx db.Conn, action Action, ids []int64, now time.Time) (int64, error) {
	if action == ActionDelete {
		return deleteReviews(ctx, tx, ids)
	}
	args := []any{action == ActionApprove, now}
	for _, id := range ids {
		args = append(args, id)
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	res, err := tx.ExecContext(ctx, `UPDATE reviews SET is_approved = ?, updated_at = ? WHERE id IN (`+marks+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("%s reviews: %w", action, err)
	}
	return res.RowsAffected()
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
