package store

import "fmt"

// Schema returns the DDL for the muf-rt tables in db. Column order matches
// ObservationBatch.Input and RunRow.
func Schema(db string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    run_time     DateTime,
    observed_at  DateTime,
    station      LowCardinality(String),
    longitude    Float64,
    latitude     Float64,
    mufd         Float32,
    confidence   Float32,
    band         Int32,
    band_name    LowCardinality(String)
) ENGINE = MergeTree
PARTITION BY toYYYYMM(run_time)
ORDER BY (station, observed_at)`, db, ObservationsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    run_time       DateTime,
    eval_time      DateTime,
    source         String,
    records        UInt32,
    accepted       UInt32,
    dropped        UInt32,
    empty          UInt8,
    field_min      Float32,
    field_max      Float32,
    field_mean     Float32,
    residual       Float32,
    band_names     Array(String),
    band_coverage  Array(Float32),
    elapsed_ms     UInt32,
    output         String
) ENGINE = MergeTree
PARTITION BY toYYYYMM(run_time)
ORDER BY run_time`, db, RunsTable),
	}
}
