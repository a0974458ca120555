package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/wb-go/wbf/retry"

	"github.com/newsdesk/notifyd/internal/model"
)

var ErrArticleNotFound = errors.New("article not found")

// ArticleRepository reads the publishing application's articles table.
// The table is owned by that application; this side never writes it.
type ArticleRepository struct {
	db       *sqlx.DB
	strategy retry.Strategy
}

func NewArticleRepository(db *sqlx.DB, strategy retry.Strategy) *ArticleRepository {
	return &ArticleRepository{
		db:       db,
		strategy: strategy,
	}
}

func (r *ArticleRepository) GetArticle(ctx context.Context, id int64) (*model.Article, error) {
	query := `SELECT id, title, summary, notify_text, author_id, author_email, release_at, year_id
		FROM articles
		WHERE id = $1`

	var article model.Article
	err := retry.DoContext(ctx, r.strategy, func() error {
		return r.db.GetContext(ctx, &article, query, id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrArticleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error selecting article %d: %w", id, err)
	}
	return &article, nil
}
