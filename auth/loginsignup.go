package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"petpet/apperr"
	"petpet/db"
	"petpet/globals"
	"petpet/models"
)

const minPasswordLen = 6

type Options struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// HashCost is the bcrypt cost; zero means bcrypt.DefaultCost.
	HashCost int
}

// Service owns user accounts and the tokens issued to them.
type Service struct {
	store *db.Store
	opts  Options
	now   func() time.Time
}

func NewService(store *db.Store, opts Options) *Service {
	if opts.HashCost == 0 {
		opts.HashCost = bcrypt.DefaultCost
	}
	return &Service{store: store, opts: opts, now: time.Now}
}

type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// passwordProblems lists every rule password breaks.
func passwordProblems(password string) []string {
	var problems []string
	if len(password) < minPasswordLen {
		problems = append(problems, fmt.Sprintf("Password must be at least %d characters", minPasswordLen))
	}
	var digit, lower, upper bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		}
	}
	if !digit {
		problems = append(problems, "Password must contain a digit")
	}
	if !lower {
		problems = append(problems, "Password must contain a lowercase letter")
	}
	if !upper {
		problems = append(problems, "Password must contain an uppercase letter")
	}
	return problems
}

func (in *RegisterInput) validate() error {
	var problems []string
	if !validEmail(in.Email) {
		problems = append(problems, "A valid email is required")
	}
	problems = append(problems, passwordProblems(in.Password)...)
	if len(in.FirstName) > 100 || len(in.LastName) > 100 {
		problems = append(problems, "Names must be at most 100 characters")
	}
	if len(problems) > 0 {
		return apperr.E(apperr.InvalidArgument, "Validation failed", problems...)
	}
	return nil
}

const userColumns = `id, email, password_hash, first_name, last_name, roles, is_active, created_at, last_login_at`

// findUser loads the user whose column equals value, or nil when none does.
func findUser(ctx context.Context, c db.Conn, column, value string) (*models.User, error) {
	if column != "id" && column != "email" {
		return nil, fmt.Errorf("find user: unsupported column %q", column)
	}
	var u models.User
	var roles string
	var lastLogin sql.NullTime
	err := c.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &roles, &u.IsActive, &u.CreatedAt, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by %s: %w", column, err)
	}
	u.Roles = strings.Split(roles, ",")
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

func (s *Service) createUser(ctx context.Context, c db.Conn, in RegisterInput, roles []string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.opts.HashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &models.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Roles:        roles,
		IsActive:     true,
		CreatedAt:    s.now().UTC(),
		PasswordHash: string(hash),
	}
	_, err = c.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, first_name, last_name, roles, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, strings.Join(roles, ","), true, u.CreatedAt)
	if db.IsUniqueViolation(err) {
		return nil, apperr.E(apperr.Conflict, "User with this email already exists", "Email is already registered")
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// Register creates a User account and signs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Email = normalizeEmail(in.Email)
	if err := in.validate(); err != nil {
		return nil, err
	}

	var sess *Session
	err := s.store.WithTx(ctx, func(tx db.Conn) error {
		existing, err := findUser(ctx, tx, "email", in.Email)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.E(apperr.Conflict, "User with this email already exists", "Email is already registered")
		}
		u, err := s.createUser(ctx, tx, in, []string{globals.RoleUser})
		if err != nil {
			return err
		}
		sess, err = s.issue(ctx, tx, u)
		return err
	})
	if err != nil {
		return nil, err
	}
	slog.Info("user registered", "user", sess.User.ID)
	return sess, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	invalid := apperr.E(apperr.Unauthorized, "Invalid email or password", "Authentication failed")
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, invalid
	}

	var sess *Session
	err := s.store.WithTx(ctx, func(tx db.Conn) error {
		u, err := findUser(ctx, tx, "email", email)
		if err != nil {
			return err
		}
		if u == nil || !u.IsActive {
			return invalid
		}
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
			return invalid
		}
		now := s.now().UTC()
		if _, err := tx.ExecContext(ctx, `UPDATE users SET last_login_at = ? WHERE id = ?`, now, u.ID); err != nil {
			return fmt.Errorf("record login: %w", err)
		}
		u.LastLoginAt = &now
		sess, err = s.issue(ctx, tx, u)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) Me(ctx context.Context, userID string) (*models.User, error) {
	u, err := findUser(ctx, s.store.Conn(), "id", userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.E(apperr.NotFound, "User not found")
	}
	return u, nil
}

// SeedAdmin creates the admin account when no user holds email yet. An
// existing account is left alone.
func (s *Service) SeedAdmin(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		slog.Warn("admin account not seeded: email or password missing")
		return nil
	}
	if p := passwordProblems(password); len(p) > 0 {
		return fmt.Errorf("seed admin: %s", strings.Join(p, "; "))
	}

	return s.store.WithTx(ctx, func(tx db.Conn) error {
		existing, err := findUser(ctx, tx, "email", email)
		if err != nil || existing != nil {
			return err
		}
		u, err := s.createUser(ctx, tx, RegisterInput{Email: email, Password: password, FirstName: "Admin"},
			[]string{globals.RoleAdmin, globals.RoleUser})
		if err != nil {
			return err
		}
		slog.Info("admin account seeded", "user", u.ID, "email", email)
		return nil
	})
}
