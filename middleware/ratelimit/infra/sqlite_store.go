package infra

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"limitguard/middleware/ratelimit/domain"

	_ "modernc.org/sqlite"
)

// SQLiteWindowStore guarda as janelas numa tabela SQLite.
//
// A avaliação é um único INSERT ... ON CONFLICT DO UPDATE ... RETURNING, então
// incremento, abertura de janela e leitura acontecem atomicamente. Processos no
// mesmo host podem compartilhar o arquivo.
type SQLiteWindowStore struct {
	db           *sql.DB
	now          func() time.Time
	cleanupEvery time.Duration
}

var (
	_ domain.WindowStore = (*SQLiteWindowStore)(nil)
	_ domain.Pinger      = (*SQLiteWindowStore)(nil)
)

type SQLiteStoreOption func(*SQLiteWindowStore)

func WithSQLiteClock(now func() time.Time) SQLiteStoreOption {
	return func(s *SQLiteWindowStore) { s.now = now }
}

func WithSQLiteCleanupEvery(d time.Duration) SQLiteStoreOption {
	return func(s *SQLiteWindowStore) { s.cleanupEvery = d }
}

const evaluateWindowSQL = `
INSERT INTO window_counters (key, count, expires_at) VALUES (?1, 1, ?2)
ON CONFLICT(key) DO UPDATE SET
	count = CASE WHEN window_counters.expires_at <= ?3 THEN 1 ELSE window_counters.count + 1 END,
	expires_at = CASE WHEN window_counters.expires_at <= ?3 THEN excluded.expires_at ELSE window_counters.expires_at END
RETURNING count, expires_at`

// NewSQLiteWindowStore abre (ou cria) o banco no dsn e prepara o schema.
// Use ":memory:" para um banco em memória.
func NewSQLiteWindowStore(dsn string, opts ...SQLiteStoreOption) (*SQLiteWindowStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// uma conexão: serializa escritas e mantém o ":memory:" único
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS window_counters (
			key        TEXT PRIMARY KEY,
			count      INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite create table: %w", err)
	}

	s := &SQLiteWindowStore{db: db, now: time.Now, cleanupEvery: time.Minute}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Evaluate implementa domain.WindowStore.
func (s *SQLiteWindowStore) Evaluate(ctx context.Context, key domain.Key, limit int64, window time.Duration) (domain.WindowResult, error) {
	nowMs := s.now().UnixMilli()

	var count, expiresAt int64
	err := s.db.QueryRowContext(ctx, evaluateWindowSQL, string(key), nowMs+window.Milliseconds(), nowMs).Scan(&count, &expiresAt)
	if err != nil {
		return domain.WindowResult{}, fmt.Errorf("%w: sqlite: %w", domain.ErrStoreUnavailable, err)
	}

	return domain.WindowResult{
		Allowed:      count <= limit,
		Count:        count,
		ResetSeconds: ceilSeconds(expiresAt - nowMs),
	}, nil
}

func (s *SQLiteWindowStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DeleteExpired remove janelas vencidas antes de `before`.
func (s *SQLiteWindowStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM window_counters WHERE expires_at <= ?`, before.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// StartJanitor remove janelas vencidas periodicamente. Pare cancelando o contexto.
func (s *SQLiteWindowStore) StartJanitor(ctx DoneContext) {
	startJanitor(ctx, s.cleanupEvery, func() {
		_, _ = s.DeleteExpired(context.Background(), s.now())
	})
}

func (s *SQLiteWindowStore) Close() error {
	return s.db.Close()
}
