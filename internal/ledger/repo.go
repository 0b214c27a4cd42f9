package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shapeai4-rgb/shapeai/pkg/db/models"
	"github.com/shapeai4-rgb/shapeai/pkg/pagination"
)

// ErrUserNotFound is returned when a balance operation targets an unknown user.
var ErrUserNotFound = errors.New("user not found")

// Repository manages persistence for balances and ledger transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetBalance(ctx context.Context, userID uuid.UUID) (int, error)
	// CreditBalance atomically increments the balance and returns the new value.
	CreditBalance(ctx context.Context, userID uuid.UUID, tokens int) (int, error)
	// DebitBalance atomically decrements the balance only when it covers the
	// debit. It reports whether the debit was applied and the resulting
	// balance (the current balance when not applied).
	DebitBalance(ctx context.Context, userID uuid.UUID, tokens int) (int, bool, error)
	CreateTransaction(ctx context.Context, txn *models.Transaction) error
	ListTransactions(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Transaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetBalance(ctx context.Context, userID uuid.UUID) (int, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Select("token_balance").
		First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, err
	}
	return user.TokenBalance, nil
}

func (r *repository) CreditBalance(ctx context.Context, userID uuid.UUID, tokens int) (int, error) {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("token_balance", gorm.Expr("token_balance + ?", tokens))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrUserNotFound
	}
	return r.GetBalance(ctx, userID)
}

func (r *repository) DebitBalance(ctx context.Context, userID uuid.UUID, tokens int) (int, bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND token_balance >= ?", userID, tokens).
		UpdateColumn("token_balance", gorm.Expr("token_balance - ?", tokens))
	if res.Error != nil {
		return 0, false, res.Error
	}

	balance, err := r.GetBalance(ctx, userID)
	if err != nil {
		return 0, false, err
	}
	return balance, res.RowsAffected == 1, nil
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) ListTransactions(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Transaction, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit)

	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var txns []models.Transaction
	if err := query.Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}
