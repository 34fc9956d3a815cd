package deletions

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/triox/internal/dbx"
	"github.com/dmitrijs2005/triox/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, d *models.AccountDeletion) (*models.AccountDeletion, error) {
	query :=
		`INSERT INTO account_deletions (user_id, username, namespace, purge_status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at
		 `

	status := d.PurgeStatus
	if status == "" {
		status = models.PurgePending
	}

	out := *d
	out.PurgeStatus = status
	err := r.db.QueryRowContext(ctx, query, d.UserID, d.UserName, d.Namespace, status).
		Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	out.UpdatedAt = out.CreatedAt

	return &out, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id, status, purgeErr string) error {
	query :=
		`UPDATE account_deletions
		 SET purge_status = $2, purge_error = $3, updated_at = now()
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, id, status, purgeErr)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return dbx.RequireAffected(res)
}

func (r *PostgresRepository) ListUnfinished(ctx context.Context, limit int, pendingBefore time.Time) ([]*models.AccountDeletion, error) {
	query :=
		`SELECT id, user_id, username, namespace, purge_status, purge_error, created_at, updated_at
		 FROM account_deletions
		 WHERE purge_status = 'failed'
		    OR (purge_status = 'pending' AND updated_at < $2)
		 ORDER BY created_at
		 LIMIT $1
		 `

	rows, err := r.db.QueryContext(ctx, query, limit, pendingBefore)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.AccountDeletion
	for rows.Next() {
		d := &models.AccountDeletion{}
		var purgeErr sql.NullString
		if err := rows.Scan(&d.ID, &d.UserID, &d.UserName, &d.Namespace,
			&d.PurgeStatus, &purgeErr, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		d.PurgeError = purgeErr.String
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}
