package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/openwebui-monitor/server/internal/db"
	"github.com/openwebui-monitor/server/internal/models"
)

// ErrNotFound indicates the referenced user id has no account row.
var ErrNotFound = errors.New("user not found")

// Store owns user account state. Balance mutation outside the billing
// transaction is limited to the absolute set used by the admin editor.
type Store struct {
	db *gorm.DB
	// initBalanceMicros seeds newly provisioned accounts.
	initBalanceMicros int64
}

// NewStore constructs a Store. initBalanceMicros is the starting balance for
// accounts created by Ensure, in micros.
func NewStore(conn *gorm.DB, initBalanceMicros int64) *Store {
	return &Store{db: conn, initBalanceMicros: initBalanceMicros}
}

// Ensure provisions the account for an upstream user id.
//
// Re-provisioning an existing id refreshes email and display name but never
// touches the balance or role, so repeated inlet calls are idempotent.
func (s *Store) Ensure(ctx context.Context, id, email, name, role string) (*models.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("users: empty user id")
	}
	role = strings.TrimSpace(role)
	if role != models.RoleAdmin {
		role = models.RoleUser
	}

	row := models.User{
		ID:            id,
		Email:         strings.TrimSpace(email),
		Name:          strings.TrimSpace(name),
		Role:          role,
		BalanceMicros: s.initBalanceMicros,
	}
	if errUpsert := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"email": row.Email,
				"name":  row.Name,
			}),
		}).
		Create(&row).Error; errUpsert != nil {
		return nil, fmt.Errorf("users: upsert: %w", errUpsert)
	}

	var user models.User
	if errFind := s.db.WithContext(ctx).
		Where("id = ?", id).
		Take(&user).Error; errFind != nil {
		return nil, fmt.Errorf("users: load: %w", errFind)
	}
	return &user, nil
}

// SetBalance sets an absolute balance, in micros, for the admin editor.
func (s *Store) SetBalance(ctx context.Context, id string, balanceMicros int64) (*models.User, error) {
	res := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("balance_micros", balanceMicros)
	if res.Error != nil {
		return nil, fmt.Errorf("users: set balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	var user models.User
	if errFind := s.db.WithContext(ctx).
		Where("id = ?", id).
		Take(&user).Error; errFind != nil {
		return nil, fmt.Errorf("users: load: %w", errFind)
	}
	return &user, nil
}

// SoftDelete flags the account as deleted. Ledger rows keep referencing the
// id, so accounts are never removed.
func (s *Store) SoftDelete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Update("deleted", true)
	if res.Error != nil {
		return fmt.Errorf("users: delete: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListOptions filters and pages the admin user list.
type ListOptions struct {
	Page      int
	PageSize  int
	SortField string
	SortOrder string
	Search    string
}

// allowed sort fields for the user list.
var userSortFields = map[string]string{
	"balance": "balance_micros",
	"name":    "name",
	"email":   "email",
	"role":    "role",
}

// List returns non-deleted users matching the options plus the total count.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]models.User, int64, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize < 1 || opts.PageSize > 100 {
		opts.PageSize = 20
	}

	q := s.db.WithContext(ctx).Model(&models.User{}).Where("deleted = ?", false)
	if search := strings.TrimSpace(opts.Search); search != "" {
		pattern := db.NormalizeLikePattern(s.db, "%"+search+"%")
		q = q.Where(
			s.db.Where(db.CaseInsensitiveLikeExpr(s.db, "name"), pattern).
				Or(db.CaseInsensitiveLikeExpr(s.db, "email"), pattern),
		)
	}

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		return nil, 0, fmt.Errorf("users: count: %w", errCount)
	}

	order := "created_at DESC"
	if column, ok := userSortFields[strings.TrimSpace(opts.SortField)]; ok {
		direction := "DESC"
		if strings.EqualFold(opts.SortOrder, "ascend") || strings.EqualFold(opts.SortOrder, "asc") {
			direction = "ASC"
		}
		order = column + " " + direction
	}

	var rows []models.User
	if errFind := q.Order(order).
		Limit(opts.PageSize).
		Offset((opts.Page - 1) * opts.PageSize).
		Find(&rows).Error; errFind != nil {
		return nil, 0, fmt.Errorf("users: list: %w", errFind)
	}
	return rows, total, nil
}
