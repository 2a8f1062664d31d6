package repo

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	"feed-engine/internal/domain"
	"feed-engine/internal/infra/metrics"
)

//go:embed schema.sql
var schemaSQL string

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.PostRepo         = (*Postgres)(nil)
	_ domain.FollowRepo       = (*Postgres)(nil)
	_ domain.InteractionRepo  = (*Postgres)(nil)
	_ domain.EmotionTagRepo   = (*Postgres)(nil)
	_ domain.NotificationRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema создаёт таблицы и индексы, если их ещё нет.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, schemaSQL)
	metrics.ObserveNetworkRequest("postgres", "ensure_schema", "schema", start, err)
	return err
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// inTx выполняет fn в транзакции. Rollback после Commit ничего не делает.
func (p *Postgres) inTx(ctx context.Context, target string, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", target, start, err)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", target, start, err)
	return err
}

// cursorArgs превращает курсор в параметры запроса; нулевой курсор даёт NULL.
func cursorArgs(c domain.Cursor) (*time.Time, int64) {
	if c.IsZero() {
		return nil, 0
	}
	at := c.At
	return &at, c.ID
}

func userIDs(ids []domain.UserID) []int64 {
	return lo.Map(ids, func(id domain.UserID, _ int) int64 { return int64(id) })
}

func postIDs(ids []domain.PostID) []int64 {
	return lo.Map(ids, func(id domain.PostID, _ int) int64 { return int64(id) })
}

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
