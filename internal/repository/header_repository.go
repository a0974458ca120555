package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/wb-go/wbf/retry"

	"github.com/newsdesk/notifyd/internal/model"
	"github.com/newsdesk/notifyd/pkg/types"
)

var ErrHeaderNotFound = errors.New("notification header not found")

const headerColumns = `id, article_id, method_id, year_id, status, send_mode, send_after, data_id, message, updated`

type HeaderRepository struct {
	db       *sqlx.DB
	strategy retry.Strategy
}

func NewHeaderRepository(db *sqlx.DB, strategy retry.Strategy) *HeaderRepository {
	return &HeaderRepository{
		db:       db,
		strategy: strategy,
	}
}

// CreateBatch inserts every header and mapping of one queue call inside a
// single transaction. Nothing survives a mid-batch failure.
func (r *HeaderRepository) CreateBatch(ctx context.Context, headers []*model.Header, mappings map[types.UUID][]int64) error {
	return retry.DoContext(ctx, r.strategy, func() error {
		tx, err := r.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("error starting transaction: %w", err)
		}
		defer tx.Rollback()

		headerQuery := `INSERT INTO notification_headers
			(id, article_id, method_id, year_id, status, send_mode, send_after, data_id, message, updated)
			VALUES (:id, :article_id, :method_id, :year_id, :status, :send_mode, :send_after, :data_id, :message, :updated)`
		mappingQuery := `INSERT INTO notification_recipients (header_id, recipient_method_id)
			VALUES ($1, $2)`

		for _, header := range headers {
			if _, err := tx.NamedExecContext(ctx, headerQuery, header); err != nil {
				return fmt.Errorf("error inserting header for method '%s': %w", header.MethodID, err)
			}
			for _, mappingID := range mappings[header.ID] {
				if _, err := tx.ExecContext(ctx, mappingQuery, header.ID, mappingID); err != nil {
					return fmt.Errorf("error inserting recipient mapping %d: %w", mappingID, err)
				}
			}
		}
		return tx.Commit()
	})
}

func (r *HeaderRepository) Get(ctx context.Context, id types.UUID) (*model.Header, error) {
	query := `SELECT ` + headerColumns + ` FROM notification_headers WHERE id = $1`

	var header model.Header
	err := retry.DoContext(ctx, r.strategy, func() error {
		return r.db.GetContext(ctx, &header, query, id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrHeaderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error selecting header '%s': %w", id, err)
	}
	return &header, nil
}

func (r *HeaderRepository) GetByArticle(ctx context.Context, articleID int64) ([]*model.Header, error) {
	query := `SELECT ` + headerColumns + ` FROM notification_headers
		WHERE article_id = $1
		ORDER BY method_id`

	var headers []*model.Header
	err := retry.DoContext(ctx, r.strategy, func() error {
		return r.db.SelectContext(ctx, &headers, query, articleID)
	})
	if err != nil {
		return nil, fmt.Errorf("error selecting headers for article %d: %w", articleID, err)
	}
	return headers, nil
}

func (r *HeaderRepository) GetByArticleMethod(ctx context.Context, articleID int64, methodID string) (*model.Header, error) {
	query := `SELECT ` + headerColumns + ` FROM notification_headers
		WHERE article_id = $1 AND method_id = $2
		ORDER BY updated DESC
		LIMIT 1`

	var header model.Header
	err := retry.DoContext(ctx, r.strategy, func() error {
		return r.db.GetContext(ctx, &header, query, articleID, methodID)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrHeaderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error selecting header for article %d method '%s': %w", articleID, methodID, err)
	}
	return &header, nil
}

func (r *HeaderRepository) Pending(ctx context.Context, now time.Time) ([]*model.Header, error) {
	query := `SELECT ` + headerColumns + ` FROM notification_headers
		WHERE status = 'pending' AND send_after <= $1
		ORDER BY send_after, method_id`

	var headers []*model.Header
	err := retry.DoContext(ctx, r.strategy, func() error {
		return r.db.SelectContext(ctx, &headers, query, now)
	})
	if err != nil {
		return nil, fmt.Errorf("error fetching pending headers: %w", err)
	}
	return headers, nil
}

// Claim is the exclusion primitive: the conditional update succeeds for
// exactly one caller, everyone else sees zero affected rows and skips.
func (r *HeaderRepository) Claim(ctx context.Context, id types.UUID) (bool, error) {
	query := `UPDATE notification_headers
		SET status = 'sending', updated = now()
		WHERE id = $1 AND status = 'pending'`

	var affected int64
	err := retry.DoContext(ctx, r.strategy, func() error {
		res, execErr := r.db.ExecContext(ctx, query, id)
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return false, fmt.Errorf("error claiming header '%s': %w", id, err)
	}
	return affected == 1, nil
}

func (r *HeaderRepository) Finalize(ctx context.Context, id types.UUID, status model.Status, message string) error {
	query := `UPDATE notification_headers
		SET status = $2, message = $3, updated = now()
		WHERE id = $1`

	err := retry.DoContext(ctx, r.strategy, func() error {
		_, execErr := r.db.ExecContext(ctx, query, id, status, message)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("error finalizing header '%s': %w", id, err)
	}
	return nil
}

func (r *HeaderRepository) Cancel(ctx context.Context, articleID int64, methodID string) (int64, error) {
	query := `UPDATE notification_headers
		SET status = 'cancelled', updated = now()
		WHERE article_id = $1 AND status IN ('draft', 'pending', 'sending')`
	args := []interface{}{articleID}
	if methodID != "" {
		query += ` AND method_id = $2`
		args = append(args, methodID)
	}

	var affected int64
	err := retry.DoContext(ctx, r.strategy, func() error {
		res, execErr := r.db.ExecContext(ctx, query, args...)
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("error cancelling notifications for article %d: %w", articleID, err)
	}
	return affected, nil
}

func (r *HeaderRepository) ArticlesByRecipient(ctx context.Context, recipientMethodID int64, methodID string) ([]int64, error) {
	query := `SELECT DISTINCT h.article_id
		FROM notification_headers h
		JOIN notification_recipients nr ON nr.header_id = h.id
		WHERE nr.recipient_method_id = $1 AND h.method_id = $2 AND h.status = 'sent'
		ORDER BY h.article_id`

	var articleIDs []int64
	err := retry.DoContext(ctx, r.strategy, func() error {
		return r.db.SelectContext(ctx, &articleIDs, query, recipientMethodID, methodID)
	})
	if err != nil {
		return nil, fmt.Errorf("error selecting notified articles for recipient method %d: %w", recipientMethodID, err)
	}
	return articleIDs, nil
}
