package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func articleColumns() []string {
	return []string{"id", "title", "url", "publication", "journalist", "summary", "collected_at"}
}

func TestRecentArticlesReturnsRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "articles")
	require.NoError(t, err)

	collected := time.Unix(1770000000, 0).UTC()
	rows := pgxmock.NewRows(articleColumns()).
		AddRow("a-2", "Prices tick up", "https://example.com/2", "Wire Daily",
			"R. Chen", "Prices rose slightly.", collected).
		AddRow("a-1", "Rates hold steady", "https://example.com/1", "Market Post",
			"J. Alvarez", "The central bank held rates.", collected.Add(-time.Hour))

	mock.ExpectQuery("SELECT id, title, url, publication, journalist, summary, collected_at").
		WithArgs(5).
		WillReturnRows(rows)

	articles, err := store.RecentArticles(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, articles, 2)
	require.Equal(t, "a-2", articles[0].ID)
	require.Equal(t, "Wire Daily", articles[0].Publication)
	require.Equal(t, collected, articles[0].CollectedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentArticlesDefaultsLimit(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectQuery("FROM articles ORDER BY collected_at DESC").
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows(articleColumns()))

	articles, err := store.RecentArticles(context.Background(), 0)
	require.NoError(t, err)
	require.Empty(t, articles)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentArticlesWrapsQueryError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "articles")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, title").
		WithArgs(3).
		WillReturnError(errors.New("relation does not exist"))

	_, err = store.RecentArticles(context.Background(), 3)
	require.Error(t, err)
	require.Contains(t, err.Error(), "query articles")
}

func TestNewWithPoolValidatesTableName(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "articles; DROP TABLE articles")
	require.Error(t, err)

	_, err = NewWithPool(nil, "articles")
	require.Error(t, err)
}
