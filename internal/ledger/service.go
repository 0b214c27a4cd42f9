package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/shapeai4-rgb/shapeai/pkg/db/models"
	"github.com/shapeai4-rgb/shapeai/pkg/enums"
	pkgerrors "github.com/shapeai4-rgb/shapeai/pkg/errors"
	"github.com/shapeai4-rgb/shapeai/pkg/logger"
	"github.com/shapeai4-rgb/shapeai/pkg/pagination"
)

// Service owns token balances and the append-only transaction history.
type Service interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (int, error)
	HasEnoughTokens(ctx context.Context, userID uuid.UUID, required int) (bool, error)
	Credit(ctx context.Context, input CreditInput) (*Entry, error)
	Debit(ctx context.Context, input DebitInput) (*Entry, error)
	DebitTx(ctx context.Context, tx *gorm.DB, input DebitInput) (*Entry, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) (*TransactionPage, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo   Repository
	runner txRunner
	logg   *logger.Logger
}

// CreditInput adds tokens after a confirmed payment (or a free grant).
type CreditInput struct {
	UserID      uuid.UUID
	Tokens      int
	Amount      *decimal.Decimal
	Currency    *enums.Currency
	Description string
}

// DebitInput removes tokens after successfully delivered work.
type DebitInput struct {
	UserID      uuid.UUID
	Tokens      int
	Description string
}

// Entry is a committed ledger mutation: the transaction row plus the
// balance it produced.
type Entry struct {
	Transaction *models.Transaction
	NewBalance  int
}

// TransactionPage is one page of history in reverse chronological order.
type TransactionPage struct {
	Transactions []models.Transaction
	NextCursor   string
}

// NewService wires a ledger service with its repository and transaction runner.
func NewService(repo Repository, runner txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if runner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, runner: runner, logg: logg}, nil
}

func (s *service) GetBalance(ctx context.Context, userID uuid.UUID) (int, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	balance, err := s.repo.GetBalance(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return 0, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "user not found")
	}
	return balance, err
}

func (s *service) HasEnoughTokens(ctx context.Context, userID uuid.UUID, required int) (bool, error) {
	if required < 0 {
		return false, pkgerrors.New(pkgerrors.CodeLedgerConsistency, "required tokens must not be negative")
	}
	balance, err := s.GetBalance(ctx, userID)
	if err != nil {
		return false, err
	}
	return balance >= required, nil
}

// Credit atomically increments the balance and records the matching topup
// transaction. The two writes commit or roll back together.
func (s *service) Credit(ctx context.Context, input CreditInput) (*Entry, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.Tokens <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeLedgerConsistency, "credit amount must be positive")
	}

	entry := &Entry{}
	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		balance, err := txRepo.CreditBalance(ctx, input.UserID, input.Tokens)
		if errors.Is(err, ErrUserNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "user not found")
		}
		if err != nil {
			return err
		}

		txn := &models.Transaction{
			UserID:      input.UserID,
			Action:      enums.TransactionActionTopup,
			TokenAmount: input.Tokens,
			Amount:      input.Amount,
			Currency:    input.Currency,
			Description: input.Description,
		}
		if err := txRepo.CreateTransaction(ctx, txn); err != nil {
			return err
		}

		entry.Transaction = txn
		entry.NewBalance = balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"user_id":     input.UserID.String(),
		"tokens":      input.Tokens,
		"new_balance": entry.NewBalance,
	})
	s.logg.Info(logCtx, "ledger.credit")
	return entry, nil
}

// Debit re-checks the balance at commit time: the decrement only applies
// when the balance still covers it, so concurrent spends cannot drive the
// balance negative.
func (s *service) Debit(ctx context.Context, input DebitInput) (*Entry, error) {
	var entry *Entry
	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		entry, txErr = s.DebitTx(ctx, tx, input)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"user_id":     input.UserID.String(),
		"tokens":      input.Tokens,
		"new_balance": entry.NewBalance,
	})
	s.logg.Info(logCtx, "ledger.debit")
	return entry, nil
}

// DebitTx applies the debit inside the caller's open transaction so the
// spend commits or rolls back together with the caller's own writes.
func (s *service) DebitTx(ctx context.Context, tx *gorm.DB, input DebitInput) (*Entry, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.Tokens <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeLedgerConsistency, "debit amount must be positive")
	}

	txRepo := s.repo.WithTx(tx)

	balance, applied, err := txRepo.DebitBalance(ctx, input.UserID, input.Tokens)
	if errors.Is(err, ErrUserNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "user not found")
	}
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, pkgerrors.InsufficientTokens(input.Tokens, balance)
	}

	txn := &models.Transaction{
		UserID:      input.UserID,
		Action:      enums.TransactionActionSpend,
		TokenAmount: -input.Tokens,
		Description: input.Description,
	}
	if err := txRepo.CreateTransaction(ctx, txn); err != nil {
		return nil, err
	}

	return &Entry{Transaction: txn, NewBalance: balance}, nil
}

func (s *service) ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) (*TransactionPage, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	txns, err := s.repo.ListTransactions(ctx, userID, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, err
	}

	page := &TransactionPage{Transactions: txns}
	if len(txns) > limit {
		page.Transactions = txns[:limit]
		last := page.Transactions[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return page, nil
}
