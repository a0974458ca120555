package email

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/wb-go/wbf/retry"

	"github.com/newsdesk/notifyd/pkg/types"
)

var ErrPayloadNotFound = errors.New("email payload not found")

// TargetRow is one recipient-method mapping row before the year-specific
// settings override is applied.
type TargetRow struct {
	ID           int64
	Name         string
	Shortname    string
	Settings     map[string]string
	YearSettings map[string]map[string]string
}

type Store interface {
	StorePayload(ctx context.Context, articleID, userID int64, isDraft bool, subject, body string) (int64, error)
	Payload(ctx context.Context, articleID int64) (subject, body string, err error)
	TargetsForHeader(ctx context.Context, headerID types.UUID) ([]TargetRow, error)
}

type Repository struct {
	db       *sqlx.DB
	strategy retry.Strategy
}

func NewRepository(db *sqlx.DB, strategy retry.Strategy) *Repository {
	return &Repository{
		db:       db,
		strategy: strategy,
	}
}

func (r *Repository) StorePayload(ctx context.Context, articleID, userID int64, isDraft bool, subject, body string) (int64, error) {
	query := `INSERT INTO email_payloads (article_id, user_id, is_draft, subject, body)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	var id int64
	err := retry.DoContext(ctx, r.strategy, func() error {
		return r.db.QueryRowxContext(ctx, query, articleID, userID, isDraft, subject, body).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("error storing email payload: %w", err)
	}
	return id, nil
}

func (r *Repository) Payload(ctx context.Context, articleID int64) (string, string, error) {
	query := `SELECT subject, body FROM email_payloads
		WHERE article_id = $1
		ORDER BY id DESC
		LIMIT 1`

	var subject, body string
	err := retry.DoContext(ctx, r.strategy, func() error {
		return r.db.QueryRowxContext(ctx, query, articleID).Scan(&subject, &body)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", ErrPayloadNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("error loading email payload: %w", err)
	}
	return subject, body, nil
}

func (r *Repository) TargetsForHeader(ctx context.Context, headerID types.UUID) ([]TargetRow, error) {
	query := `SELECT rm.id, rm.name, rm.shortname, rm.settings, rm.year_settings
		FROM notification_recipients nr
		JOIN recipient_methods rm ON rm.id = nr.recipient_method_id
		WHERE nr.header_id = $1
		ORDER BY rm.name`

	var rows *sqlx.Rows
	err := retry.DoContext(ctx, r.strategy, func() error {
		var queryErr error
		rows, queryErr = r.db.QueryxContext(ctx, query, headerID)
		return queryErr
	})
	if err != nil {
		return nil, fmt.Errorf("error loading targets for header '%s': %w", headerID, err)
	}
	defer rows.Close()

	result := []TargetRow{}
	for rows.Next() {
		var (
			row          TargetRow
			settings     []byte
			yearSettings []byte
		)
		if err := rows.Scan(&row.ID, &row.Name, &row.Shortname, &settings, &yearSettings); err != nil {
			return nil, fmt.Errorf("failed to scan target row: %w", err)
		}
		if len(settings) > 0 {
			if err := json.Unmarshal(settings, &row.Settings); err != nil {
				return nil, fmt.Errorf("invalid settings for recipient method %d: %w", row.ID, err)
			}
		}
		if len(yearSettings) > 0 {
			if err := json.Unmarshal(yearSettings, &row.YearSettings); err != nil {
				return nil, fmt.Errorf("invalid year settings for recipient method %d: %w", row.ID, err)
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error after scanning target rows: %w", err)
	}
	return result, nil
}
