package metrics

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DBStatsCollector periodically samples connection pool statistics into the
// db gauges. Both handles sit on the same underlying pgx pool, so the sql.DB
// numbers are a view of the same connections.
type DBStatsCollector struct {
	pool   *pgxpool.Pool
	sqlDB  *sql.DB
	logger *slog.Logger
	stopCh chan struct{}
}

// NewDBStatsCollector creates a collector over the given pool handles.
// Either handle may be nil.
func NewDBStatsCollector(pool *pgxpool.Pool, sqlDB *sql.DB) *DBStatsCollector {
	return &DBStatsCollector{
		pool:   pool,
		sqlDB:  sqlDB,
		logger: slog.Default(),
		stopCh: make(chan struct{}),
	}
}

// Start samples once immediately, then at every interval until Stop.
func (c *DBStatsCollector) Start(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				return
			}
		}
	}()

	c.logger.Info("database stats collector started",
		slog.Duration("interval", interval))
}

// Stop terminates the sampling goroutine.
func (c *DBStatsCollector) Stop() {
	close(c.stopCh)
	c.logger.Info("database stats collector stopped")
}

func (c *DBStatsCollector) collect() {
	if c.pool != nil {
		stat := c.pool.Stat()
		DBConnectionsOpen.Set(float64(stat.TotalConns()))
		DBConnectionsInUse.Set(float64(stat.AcquiredConns()))
		DBConnectionsIdle.Set(float64(stat.IdleConns()))
		DBConnectionsMaxOpen.Set(float64(stat.MaxConns()))
	}

	// The sql.DB view wins when both handles are set; it tracks the pool the
	// sqlx layer actually runs its queries through.
	if c.sqlDB != nil {
		stats := c.sqlDB.Stats()
		DBConnectionsOpen.Set(float64(stats.OpenConnections))
		DBConnectionsInUse.Set(float64(stats.InUse))
		DBConnectionsIdle.Set(float64(stats.Idle))
		DBConnectionsMaxOpen.Set(float64(stats.MaxOpenConnections))
	}
}

// RecordQueryDuration records a database query's duration under its
// operation label.
func RecordQueryDuration(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// TimeQuery times a query. Usage: defer metrics.TimeQuery("select_account")()
func TimeQuery(operation string) func() {
	start := time.Now()
	return func() {
		RecordQueryDuration(operation, time.Since(start))
	}
}

// PingDatabase checks connectivity and records the round trip as a query.
func PingDatabase(ctx context.Context, pool *pgxpool.Pool) error {
	start := time.Now()
	err := pool.Ping(ctx)
	RecordQueryDuration("ping", time.Since(start))
	return err
}
