package dbkeeper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/drstein77/groceryweb/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var ErrEmptyDSN = errors.New("database dsn is empty")

type Log interface {
	Info(string, ...zap.Field)
	Error(string, ...zap.Field)
}

type DBKeeper struct {
	pool *pgxpool.Pool
	log  Log
}

// NewDBKeeper connects to PostgreSQL and brings the schema up to date
// with the migrations found in the migrations directory.
func NewDBKeeper(ctx context.Context, dsn func() string, migrations string, log Log) (*DBKeeper, error) {
	addr := dsn()
	if addr == "" {
		return nil, ErrEmptyDSN
	}

	config, err := pgxpool.ParseConfig(addr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := migrate(config.ConnConfig, migrations, log); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info("Connected!")

	return &DBKeeper{
		pool: pool,
		log:  log,
	}, nil
}

// InsertProducts stores all products in one transaction and reports
// totals for the whole table as seen by that transaction.
func (kp *DBKeeper) InsertProducts(ctx context.Context, products []models.Product) (resp *models.ProcessResponse, err error) {
	if kp.pool == nil {
		return nil, fmt.Errorf("database connection pool is nil")
	}

	if len(products) == 0 {
		resp = &models.ProcessResponse{}
		if err := kp.stats(ctx, kp.pool, resp); err != nil {
			return nil, err
		}
		return resp, nil
	}

	tx, err := kp.pool.Begin(ctx)
	if err != nil {
		kp.log.Error("Failed to begin transaction", zap.Error(err))
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
				kp.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
			} else {
				kp.log.Info("Transaction rolled back due to an error")
			}
		}
	}()

	stmt := `
		INSERT INTO products (name, category, price, quantity)
		VALUES ($1, NULLIF($2, ''), $3, $4)
	`
	batch := &pgx.Batch{}
	for _, product := range products {
		batch.Queue(stmt, product.Name, product.Category, product.Price, product.Quantity)
	}

	br := tx.SendBatch(ctx, batch)

	for range products {
		if _, execErr := br.Exec(); execErr != nil {
			br.Close()
			err = fmt.Errorf("failed to execute batch query: %w", execErr)
			return nil, err
		}
	}

	if closeErr := br.Close(); closeErr != nil {
		err = fmt.Errorf("failed to close batch results: %w", closeErr)
		return nil, err
	}

	resp = &models.ProcessResponse{Imported: len(products)}
	if err = kp.stats(ctx, tx, resp); err != nil {
		return nil, err
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		err = fmt.Errorf("failed to commit transaction: %w", commitErr)
		return nil, err
	}

	kp.log.Info("Products successfully inserted", zap.Int("count", len(products)))
	return resp, nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// stats fills the table-wide totals of resp.
func (kp *DBKeeper) stats(ctx context.Context, q rowQuerier, resp *models.ProcessResponse) error {
	statsCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	row := q.QueryRow(statsCtx, `
		SELECT COUNT(*), COUNT(DISTINCT category), COALESCE(SUM(price), 0)
		FROM products
	`)
	if err := row.Scan(&resp.TotalItems, &resp.TotalCategories, &resp.TotalPrice); err != nil {
		return fmt.Errorf("failed to calculate stats: %w", err)
	}
	return nil
}

// InsertProduct stores a single product and returns it with its id and
// creation time filled in.
func (kp *DBKeeper) InsertProduct(ctx context.Context, product models.Product) (models.Product, error) {
	if kp.pool == nil {
		return models.Product{}, fmt.Errorf("database connection pool is nil")
	}

	row := kp.pool.QueryRow(ctx, `
		INSERT INTO products (name, category, price, quantity)
		VALUES ($1, NULLIF($2, ''), $3, $4)
		RETURNING id, create_date
	`, product.Name, product.Category, product.Price, product.Quantity)

	if err := row.Scan(&product.ID, &product.CreatedAt); err != nil {
		kp.log.Error("Failed to insert product", zap.Error(err))
		return models.Product{}, fmt.Errorf("failed to insert product: %w", err)
	}

	kp.log.Info("Product inserted", zap.Int64("id", product.ID))
	return product, nil
}

// SearchProducts returns products whose name or category contains term,
// ignoring case. Wildcards in term match literally. A non-positive limit
// returns every match.
func (kp *DBKeeper) SearchProducts(ctx context.Context, term string, limit int) ([]models.Product, error) {
	if kp.pool == nil {
		return nil, fmt.Errorf("database connection pool is nil")
	}

	var lim any
	if limit > 0 {
		lim = limit
	}

	query := `
		SELECT id, name, COALESCE(category, ''), price, quantity, create_date
		FROM products
		WHERE name ILIKE $1 ESCAPE '\' OR category ILIKE $1 ESCAPE '\'
		ORDER BY id
		LIMIT $2
	`
	rows, err := kp.pool.Query(ctx, query, "%"+escapeLike(term)+"%", lim)
	if err != nil {
		kp.log.Error("Failed to execute search query", zap.Error(err))
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	products, err := kp.scanProducts(rows)
	if err != nil {
		return nil, err
	}

	kp.log.Info("Search completed", zap.String("term", term), zap.Int("count", len(products)))
	return products, nil
}

func (kp *DBKeeper) GetAllProducts(ctx context.Context) ([]models.Product, error) {
	// Checking database connection
	if kp.pool == nil {
		return nil, fmt.Errorf("database connection pool is nil")
	}

	query := `
		SELECT id, name, COALESCE(category, ''), price, quantity, create_date
		FROM products
		ORDER BY id
	`

	rows, err := kp.pool.Query(ctx, query)
	if err != nil {
		kp.log.Error("Failed to execute query", zap.Error(err))
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	products, err := kp.scanProducts(rows)
	if err != nil {
		return nil, err
	}

	kp.log.Info("Successfully retrieved all products", zap.Int("count", len(products)))
	return products, nil
}

func (kp *DBKeeper) scanProducts(rows pgx.Rows) ([]models.Product, error) {
	defer rows.Close()

	products := make([]models.Product, 0)
	for rows.Next() {
		var product models.Product
		err := rows.Scan(
			&product.ID,
			&product.Name,
			&product.Category,
			&product.Price,
			&product.Quantity,
			&product.CreatedAt,
		)
		if err != nil {
			kp.log.Error("Failed to scan row", zap.Error(err))
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		products = append(products, product)
	}

	// Checking for errors during iteration
	if rows.Err() != nil {
		kp.log.Error("Error occurred during rows iteration", zap.Error(rows.Err()))
		return nil, fmt.Errorf("error during rows iteration: %w", rows.Err())
	}
	return products, nil
}

func (kp *DBKeeper) Ping(ctx context.Context) bool {
	if kp.pool == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := kp.pool.Ping(ctx); err != nil {
		kp.log.Error("Database ping failed", zap.Error(err))
		return false
	}

	return true
}

func (kp *DBKeeper) Close() bool {
	if kp.pool != nil {
		kp.pool.Close()
		kp.log.Info("Database connection pool closed")
		return true
	}
	kp.log.Info("Attempted to close a nil database connection pool")
	return false
}

// escapeLike makes %, _ and the escape character itself match literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
