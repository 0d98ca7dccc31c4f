// Package store writes run results to ClickHouse: accepted observations via
// the native ch-go protocol and one summary row per run via clickhouse-go.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/ch-go"
	"github.com/ClickHouse/ch-go/proto"

	"github.com/KI7MT/muf-rt/internal/bands"
	"github.com/KI7MT/muf-rt/internal/station"
)

// Table names inside the configured database.
const (
	ObservationsTable = "observations"
	RunsTable         = "runs"
)

// ObservationBatch holds column data for a native insert.
type ObservationBatch struct {
	RunTime    *proto.ColDateTime
	ObservedAt *proto.ColDateTime
	Station    *proto.ColStr
	Longitude  *proto.ColFloat64
	Latitude   *proto.ColFloat64
	MUF        *proto.ColFloat32
	Confidence *proto.ColFloat32
	Band       *proto.ColInt32
	BandName   *proto.ColStr
}

func NewObservationBatch() *ObservationBatch {
	return &ObservationBatch{
		RunTime:    new(proto.ColDateTime),
		ObservedAt: new(proto.ColDateTime),
		Station:    new(proto.ColStr),
		Longitude:  new(proto.ColFloat64),
		Latitude:   new(proto.ColFloat64),
		MUF:        new(proto.ColFloat32),
		Confidence: new(proto.ColFloat32),
		Band:       new(proto.ColInt32),
		BandName:   new(proto.ColStr),
	}
}

func (b *ObservationBatch) Reset() {
	b.RunTime.Reset()
	b.ObservedAt.Reset()
	b.Station.Reset()
	b.Longitude.Reset()
	b.Latitude.Reset()
	b.MUF.Reset()
	b.Confidence.Reset()
	b.Band.Reset()
	b.BandName.Reset()
}

func (b *ObservationBatch) Len() int {
	return b.Station.Rows()
}

// Input lists the columns in insert order.
func (b *ObservationBatch) Input() proto.Input {
	return proto.Input{
		{Name: "run_time", Data: b.RunTime},
		{Name: "observed_at", Data: b.ObservedAt},
		{Name: "station", Data: b.Station},
		{Name: "longitude", Data: b.Longitude},
		{Name: "latitude", Data: b.Latitude},
		{Name: "mufd", Data: b.MUF},
		{Name: "confidence", Data: b.Confidence},
		{Name: "band", Data: b.Band},
		{Name: "band_name", Data: b.BandName},
	}
}

// Add appends one observation. band is the highest amateur band the
// station's MUF supports, 0 when below 160m.
func (b *ObservationBatch) Add(runTime time.Time, o station.Observation) {
	var bandID int32
	var bandName string
	if band, ok := bands.HighestOpen(o.MUF); ok {
		bandID, bandName = band.ID, band.Name
	}

	b.RunTime.Append(runTime.UTC())
	b.ObservedAt.Append(o.ObservedAt.UTC())
	b.Station.Append(station.SanitizeCode(o.Station))
	b.Longitude.Append(o.Longitude)
	b.Latitude.Append(o.Latitude)
	b.MUF.Append(float32(o.MUF))
	b.Confidence.Append(float32(o.Confidence))
	b.Band.Append(bandID)
	b.BandName.Append(bandName)
}

// insertQuery builds the INSERT statement for the batch columns.
func (b *ObservationBatch) insertQuery(tableFQN string) string {
	input := b.Input()
	cols := make([]string, len(input))
	for i, c := range input {
		cols[i] = c.Name
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES", tableFQN, strings.Join(cols, ", "))
}

// ObservationWriter inserts observations over the native protocol.
type ObservationWriter struct {
	Addr     string
	Database string
	Username string
	Password string
}

// Write dials ClickHouse, inserts obs in one block and disconnects. A run
// produces at most a few hundred rows, so there is no batching loop.
func (w ObservationWriter) Write(ctx context.Context, runTime time.Time, obs []station.Observation) error {
	if len(obs) == 0 {
		return nil
	}

	conn, err := ch.Dial(ctx, ch.Options{
		Address:     w.Addr,
		Database:    w.Database,
		User:        w.Username,
		Password:    w.Password,
		Compression: ch.CompressionLZ4,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("clickhouse connect: %w", err)
	}
	defer conn.Close()

	batch := NewObservationBatch()
	for _, o := range obs {
		batch.Add(runTime, o)
	}

	tableFQN := fmt.Sprintf("%s.%s", w.Database, ObservationsTable)
	if err := conn.Do(ctx, ch.Query{
		Body:  batch.insertQuery(tableFQN),
		Input: batch.Input(),
	}); err != nil {
		return fmt.Errorf("insert %s: %w", tableFQN, err)
	}
	return nil
}
