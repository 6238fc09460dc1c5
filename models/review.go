package models

import "time"

type Review struct {
	ID                  int64      `json:"id"`
	UserID              string     `json:"userId"`
	UserName            string     `json:"userName"`
	ProductID           int64      `json:"productId"`
	ProductName         string     `json:"productName"`
	OrderID             int64      `json:"orderId"`
	Rating              int        `json:"rating"`
	Title               string     `json:"title"`
	Comment             string     `json:"comment"`
	IsVerifiedPurchase  bool       `json:"isVerifiedPurchase"`
	IsApproved          bool       `json:"isApproved"`
	HelpfulVotes        int        `json:"helpfulVotes"`
	UnhelpfulVotes      int        `json:"unhelpfulVotes"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           *time.Time `json:"updatedAt"`
	UserHelpfulnessVote *bool      `json:"userHelpfulnessVote"`
}

// AdminReview is the moderation view of a review.
type AdminReview struct {
	Review
	UserEmail string `json:"userEmail"`
	Status    string `json:"status"`
}

type ReviewSummary struct {
	ProductID          int64       `json:"productId"`
	AverageRating      float64     `json:"averageRating"`
	TotalReviews       int         `json:"totalReviews"`
	RatingDistribution map[int]int `json:"ratingDistribution"`
}

type ReviewStats struct {
	TotalReviews       int         `json:"totalReviews"`
	PendingReviews     int         `json:"pendingReviews"`
	ApprovedReviews    int         `json:"approvedReviews"`
	RejectedReviews    int         `json:"rejectedReviews"`
	AverageRating      float64     `json:"averageRating"`
	ReviewsToday       int         `json:"reviewsToday"`
	ReviewsThisWeek    int         `json:"reviewsThisWeek"`
	ReviewsThisMonth   int         `json:"reviewsThisMonth"`
	RatingDistribution map[int]int `json:"ratingDistribution"`
}

// EmptyDistribution returns a 1..5 rating histogram with every bucket zero.
func EmptyDistribution() map[int]int {
	return map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}
}

type AdminReviewFilter struct {
	SearchTerm    string
	ProductID     *int64
	UserID        string
	IsApproved    *bool
	MinRating     *int
	MaxRating     *int
	FromDate      *time.Time
	ToDate        *time.Time
	SortBy        string
	SortDirection string
	Page          int
	PageSize      int
}
