// Package archive keeps a Parquet snapshot of the observations behind each
// map so a run can be inspected or replayed later.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/KI7MT/muf-rt/internal/station"
)

// Record matches the snapshot Parquet schema.
type Record struct {
	Station    string  `parquet:"station"`
	ObservedAt int64   `parquet:"observed_at"` // Unix milliseconds
	Longitude  float64 `parquet:"longitude"`
	Latitude   float64 `parquet:"latitude"`
	MUF        float64 `parquet:"mufd"`
	Confidence float64 `parquet:"confidence"`
}

// readChunk is the number of rows pulled per Read call.
const readChunk = 1000

// SnapshotName returns the file name for a snapshot taken at t, e.g.
// stations_20260314_120000.parquet.
func SnapshotName(t time.Time) string {
	return "stations_" + t.UTC().Format("20060102_150405") + ".parquet"
}

func toRecord(o station.Observation) Record {
	return Record{
		Station:    o.Station,
		ObservedAt: o.ObservedAt.UnixMilli(),
		Longitude:  o.Longitude,
		Latitude:   o.Latitude,
		MUF:        o.MUF,
		Confidence: o.Confidence,
	}
}

func (r Record) observation() station.Observation {
	return station.Observation{
		Station:    r.Station,
		Longitude:  r.Longitude,
		Latitude:   r.Latitude,
		MUF:        r.MUF,
		Confidence: r.Confidence,
		ObservedAt: time.UnixMilli(r.ObservedAt).UTC(),
	}
}

// WriteSnapshot stores obs under dir and returns the file path. The file is
// written to a temp name first and renamed when complete.
func WriteSnapshot(dir string, at time.Time, obs []station.Observation) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}
	destPath := filepath.Join(dir, SnapshotName(at))
	tmpPath := destPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("create file failed: %w", err)
	}

	err = writeRecords(f, obs)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("rename failed: %w", err)
	}
	return destPath, nil
}

func writeRecords(w io.Writer, obs []station.Observation) error {
	pw := parquet.NewGenericWriter[Record](w, parquet.Compression(&parquet.Zstd))

	rows := make([]Record, len(obs))
	for i, o := range obs {
		rows[i] = toRecord(o)
	}
	if _, err := pw.Write(rows); err != nil {
		pw.Close()
		return err
	}
	return pw.Close()
}

// ReadSnapshot loads every observation from a snapshot file.
func ReadSnapshot(path string) ([]station.Observation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat snapshot: %w", err)
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("parquet open %s: %w", filepath.Base(path), err)
	}

	reader := parquet.NewGenericReader[Record](pf)
	defer reader.Close()

	obs := make([]station.Observation, 0, pf.NumRows())
	buf := make([]Record, readChunk)
	for {
		n, err := reader.Read(buf)
		for i := 0; i < n; i++ {
			obs = append(obs, buf[i].observation())
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read snapshot: %w", err)
		}
		if n == 0 {
			break
		}
	}
	return obs, nil
}

// Newest returns the latest observation time, or the zero time for no
// observations.
func Newest(obs []station.Observation) time.Time {
	var t time.Time
	for _, o := range obs {
		if o.ObservedAt.After(t) {
			t = o.ObservedAt
		}
	}
	return t
}

// Replay serves a stored snapshot in place of the live feed. Snapshots only
// ever hold accepted observations, so freshness is not applied again.
type Replay struct {
	Path string
}

// Observations reads the snapshot. ctx and now are unused.
func (r Replay) Observations(ctx context.Context, now time.Time) ([]station.Observation, station.Stats, error) {
	obs, err := ReadSnapshot(r.Path)
	if err != nil {
		return nil, station.Stats{}, err
	}
	return obs, station.Stats{Records: len(obs), Accepted: len(obs)}, nil
}
