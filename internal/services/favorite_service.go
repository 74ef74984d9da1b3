package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/crediexpress/corebanking/internal/models"
)

const favoriteColumns = `id, owner_user_id, account_number, account_type, alias, created_at, updated_at`

type FavoriteInput struct {
	AccountNumber string `json:"accountNumber" validate:"required,min=8,max=20"`
	AccountType   string `json:"accountType" validate:"required,max=40"`
	Alias         string `json:"alias" validate:"required,max=60"`
}

// FavoriteUpdate changes only the fields that are set.
type FavoriteUpdate struct {
	AccountType *string `json:"accountType" validate:"omitempty,min=1,max=40"`
	Alias       *string `json:"alias" validate:"omitempty,min=1,max=60"`
}

type FavoriteService struct {
	ledger *DoubleLedgerService
}

func NewFavoriteService(ledger *DoubleLedgerService) *FavoriteService {
	return &FavoriteService{ledger: ledger}
}

func (s *FavoriteService) CreateFavorite(ctx context.Context, ownerUserID string, in FavoriteInput) (*models.FavoriteAccount, error) {
	alias := strings.TrimSpace(in.Alias)
	accountType := strings.TrimSpace(in.AccountType)
	if alias == "" || accountType == "" {
		return nil, fmt.Errorf("%w: alias and account type are required", ErrInvalidInput)
	}

	if _, err := s.ledger.GetAccount(ctx, in.AccountNumber); err != nil {
		return nil, err
	}

	now := s.ledger.Now()
	favorite := &models.FavoriteAccount{
		OwnerUserID:   ownerUserID,
		AccountNumber: in.AccountNumber,
		AccountType:   accountType,
		Alias:         alias,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := s.ledger.db.QueryRowContext(ctx, `
		INSERT INTO favorite_accounts (owner_user_id, account_number, account_type, alias, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id`,
		favorite.OwnerUserID, favorite.AccountNumber, favorite.AccountType, favorite.Alias, now).Scan(&favorite.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateFavorite, alias)
		}
		return nil, fmt.Errorf("failed to create favorite: %w", err)
	}

	log.Printf("[FAVORITES] User %s saved %s as %q", ownerUserID, favorite.AccountNumber, favorite.Alias)
	return favorite, nil
}

func (s *FavoriteService) ListFavorites(ctx context.Context, ownerUserID string) ([]models.FavoriteAccount, error) {
	rows, err := s.ledger.db.QueryContext(ctx,
		`SELECT `+favoriteColumns+` FROM favorite_accounts WHERE owner_user_id = $1 ORDER BY created_at DESC, id DESC`,
		ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	defer rows.Close()

	favorites := []models.FavoriteAccount{}
	for rows.Next() {
		favorite, err := scanFavorite(rows)
		if err != nil {
			return nil, err
		}
		favorites = append(favorites, *favorite)
	}
	return favorites, rows.Err()
}

// GetFavorite returns the favorite only when it belongs to ownerUserID.
func (s *FavoriteService) GetFavorite(ctx context.Context, favoriteID int64, ownerUserID string) (*models.FavoriteAccount, error) {
	favorite, err := scanFavorite(s.ledger.db.QueryRowContext(ctx,
		`SELECT `+favoriteColumns+` FROM favorite_accounts WHERE id = $1`, favoriteID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrFavoriteNotFound, favoriteID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load favorite %d: %w", favoriteID, err)
	}

	if favorite.OwnerUserID != ownerUserID {
		return nil, fmt.Errorf("%w: favorite %d", ErrForbidden, favoriteID)
	}
	return favorite, nil
}

func (s *FavoriteService) UpdateFavorite(ctx context.Context, favoriteID int64, ownerUserID string, update FavoriteUpdate) (*models.FavoriteAccount, error) {
	favorite, err := s.GetFavorite(ctx, favoriteID, ownerUserID)
	if err != nil {
		return nil, err
	}

	if update.Alias != nil {
		if alias := strings.TrimSpace(*update.Alias); alias != "" {
			favorite.Alias = alias
		}
	}
	if update.AccountType != nil {
		if accountType := strings.TrimSpace(*update.AccountType); accountType != "" {
			favorite.AccountType = accountType
		}
	}
	favorite.UpdatedAt = s.ledger.Now()

	_, err = s.ledger.db.ExecContext(ctx, `
		UPDATE favorite_accounts
		SET alias = $1, account_type = $2, updated_at = $3
		WHERE id = $4`,
		favorite.Alias, favorite.AccountType, favorite.UpdatedAt, favorite.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateFavorite, favorite.Alias)
		}
		return nil, fmt.Errorf("failed to update favorite %d: %w", favoriteID, err)
	}

	return favorite, nil
}

func (s *FavoriteService) DeleteFavorite(ctx context.Context, favoriteID int64, ownerUserID string) error {
	if _, err := s.GetFavorite(ctx, favoriteID, ownerUserID); err != nil {
		return err
	}

	if _, err := s.ledger.db.ExecContext(ctx, `DELETE FROM favorite_accounts WHERE id = $1`, favoriteID); err != nil {
		return fmt.Errorf("failed to delete favorite %d: %w", favoriteID, err)
	}

	log.Printf("[FAVORITES] User %s removed favorite %d", ownerUserID, favoriteID)
	return nil
}

func scanFavorite(row rowScanner) (*models.FavoriteAccount, error) {
	var f models.FavoriteAccount
	err := row.Scan(&f.ID, &f.OwnerUserID, &f.AccountNumber, &f.AccountType, &f.Alias, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
