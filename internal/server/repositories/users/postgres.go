package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/triox/internal/common"
	"github.com/dmitrijs2005/triox/internal/dbx"
	"github.com/dmitrijs2005/triox/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) FetchCredential(ctx context.Context, userName string) (*models.Credential, error) {
	query :=
		`SELECT id, username, password FROM users
		 WHERE username = $1
		 `

	c := &models.Credential{}
	err := r.db.QueryRowContext(ctx, query, userName).Scan(&c.UserID, &c.UserName, &c.PasswordHash)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return c, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, userName string) error {
	query :=
		`DELETE FROM users
		 WHERE username = $1
		 `

	res, err := r.db.ExecContext(ctx, query, userName)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return dbx.RequireAffected(res)
}
