package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// RunRow is the per-run summary stored in the runs table.
type RunRow struct {
	RunTime      time.Time
	EvalTime     time.Time
	Source       string
	Records      uint32
	Accepted     uint32
	Dropped      uint32
	Empty        bool
	FieldMin     float32
	FieldMax     float32
	FieldMean    float32
	Residual     float32
	BandNames    []string
	BandCoverage []float32
	ElapsedMs    uint32
	Output       string
}

// args returns the row in column order for Batch.Append.
func (r RunRow) args() []any {
	empty := uint8(0)
	if r.Empty {
		empty = 1
	}
	bandNames := r.BandNames
	if bandNames == nil {
		bandNames = []string{}
	}
	coverage := r.BandCoverage
	if coverage == nil {
		coverage = []float32{}
	}
	return []any{
		r.RunTime.UTC(),
		r.EvalTime.UTC(),
		r.Source,
		r.Records,
		r.Accepted,
		r.Dropped,
		empty,
		r.FieldMin,
		r.FieldMax,
		r.FieldMean,
		r.Residual,
		bandNames,
		coverage,
		r.ElapsedMs,
		r.Output,
	}
}

// RunWriter appends run summaries with clickhouse-go.
type RunWriter struct {
	Addr     string
	Database string
	Username string
	Password string
}

func (w RunWriter) open() (driver.Conn, error) {
	username := w.Username
	if username == "" {
		username = "default"
	}
	return clickhouse.Open(&clickhouse.Options{
		Addr: []string{w.Addr},
		Auth: clickhouse.Auth{
			Database: w.Database,
			Username: username,
			Password: w.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout:     5 * time.Second,
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
	})
}

// Write inserts one summary row.
func (w RunWriter) Write(ctx context.Context, row RunRow) error {
	conn, err := w.open()
	if err != nil {
		return fmt.Errorf("clickhouse connect: %w", err)
	}
	defer conn.Close()

	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("clickhouse ping: %w", err)
	}

	tableFQN := fmt.Sprintf("%s.%s", w.Database, RunsTable)
	batch, err := conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s", tableFQN))
	if err != nil {
		return fmt.Errorf("prepare %s: %w", tableFQN, err)
	}
	if err := batch.Append(row.args()...); err != nil {
		batch.Abort()
		return fmt.Errorf("append %s: %w", tableFQN, err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send %s: %w", tableFQN, err)
	}
	return nil
}

// EnsureSchema creates the database and both tables when missing.
func (w RunWriter) EnsureSchema(ctx context.Context) error {
	conn, err := w.open()
	if err != nil {
		return fmt.Errorf("clickhouse connect: %w", err)
	}
	defer conn.Close()

	for _, stmt := range Schema(w.Database) {
		if err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	return nil
}
