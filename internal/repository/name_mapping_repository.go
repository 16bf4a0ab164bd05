package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/maheshrc27/adpulse/internal/models"
)

type NameMappingRepository interface {
	ReplaceMany(ctx context.Context, accountID string, mappings []*models.NameMapping) (int, error)
	ListByAccount(ctx context.Context, accountID string) ([]*models.NameMapping, error)
}

type nameMappingRepository struct {
	db *sql.DB
}

func NewNameMappingRepository(db *sql.DB) NameMappingRepository {
	return &nameMappingRepository{db: db}
}

// ReplaceMany upserts all mappings in one transaction; a code that already
// exists for the account takes the uploaded tags.
func (r *nameMappingRepository) ReplaceMany(ctx context.Context, accountID string, mappings []*models.NameMapping) (int, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO name_mappings (account_id, unique_code, ad_type, person, style, product, hook, theme)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (account_id, unique_code) DO UPDATE SET
			ad_type = EXCLUDED.ad_type,
			person = EXCLUDED.person,
			style = EXCLUDED.style,
			product = EXCLUDED.product,
			hook = EXCLUDED.hook,
			theme = EXCLUDED.theme,
			updated_at = now()
	`)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	defer stmt.Close()

	for _, m := range mappings {
		_, err := stmt.ExecContext(ctx, accountID, m.UniqueCode, m.AdType, m.Person, m.Style, m.Product, m.Hook, m.Theme)
		if err != nil {
			slog.Info(err.Error())
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return len(mappings), nil
}

func (r *nameMappingRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.NameMapping, error) {
	query := `
		SELECT account_id, unique_code, ad_type, person, style, product, hook, theme, updated_at
		FROM name_mappings WHERE account_id = $1
	`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var mappings []*models.NameMapping
	for rows.Next() {
		var m models.NameMapping
		err := rows.Scan(&m.AccountID, &m.UniqueCode, &m.AdType, &m.Person, &m.Style, &m.Product, &m.Hook, &m.Theme, &m.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		mappings = append(mappings, &m)
	}
	return mappings, rows.Err()
}
