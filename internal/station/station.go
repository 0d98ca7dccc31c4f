// Package station turns the ionosonde station feed into validated MUF
// observations.
//
// The feed is a JSON array of station reports. Each report is decoded on its
// own so a single malformed record never takes the rest of the batch with it;
// bad records are counted and dropped.
package station

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/KI7MT/muf-rt/internal/geo"
)

// MaxAge is the freshness window. Reports strictly older than this are
// discarded.
const MaxAge = time.Hour

// Observation is one accepted MUF sounding.
type Observation struct {
	Station    string    // Station code, empty when the feed omits it
	Longitude  float64   // Degrees, [-180, 180)
	Latitude   float64   // Degrees, [-90, 90]
	MUF        float64   // MHz as reported (not yet clamped)
	Confidence float64   // [0, 1]
	ObservedAt time.Time // UTC
}

// Stats counts what happened to each record of a feed.
type Stats struct {
	Records        int // Elements in the JSON array
	Accepted       int
	DroppedInvalid int // Missing or unparseable coordinates, value or confidence
	DroppedStale   int // Older than MaxAge
}

// Dropped returns the total number of rejected records.
func (s Stats) Dropped() int { return s.DroppedInvalid + s.DroppedStale }

// ErrNotArray is returned when the feed body is not a JSON array.
var ErrNotArray = errors.New("station feed is not a JSON array")

// record mirrors the fields of a feed element we read. Numbers are kept raw
// because the feed mixes JSON numbers and numeric strings.
type record struct {
	Station *struct {
		Code      string          `json:"code"`
		Longitude json.RawMessage `json:"longitude"`
		Latitude  json.RawMessage `json:"latitude"`
	} `json:"station"`
	MUFD       json.RawMessage `json:"mufd"`
	Time       json.RawMessage `json:"time"`
	Confidence json.RawMessage `json:"confidence"`
}

// ParseRecords decodes a feed body and returns the observations that pass
// validation and are no older than MaxAge relative to now.
func ParseRecords(body []byte, now time.Time) ([]Observation, Stats, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, Stats{}, fmt.Errorf("%w: %v", ErrNotArray, err)
	}
	if raw == nil {
		// "null" unmarshals into a nil slice without error.
		return nil, Stats{}, ErrNotArray
	}

	stats := Stats{Records: len(raw)}
	out := make([]Observation, 0, len(raw))

	for _, msg := range raw {
		obs, ok := parseRecord(msg)
		if !ok {
			stats.DroppedInvalid++
			continue
		}
		if now.Sub(obs.ObservedAt) > MaxAge {
			stats.DroppedStale++
			continue
		}
		out = append(out, obs)
	}

	stats.Accepted = len(out)
	return out, stats, nil
}

func parseRecord(msg json.RawMessage) (Observation, bool) {
	var r record
	if err := json.Unmarshal(msg, &r); err != nil || r.Station == nil {
		return Observation{}, false
	}

	lon, ok := parseNumber(r.Station.Longitude)
	if !ok {
		return Observation{}, false
	}
	lat, ok := parseNumber(r.Station.Latitude)
	if !ok || lat < -90 || lat > 90 {
		return Observation{}, false
	}
	muf, ok := parseNumber(r.MUFD)
	if !ok {
		return Observation{}, false
	}

	conf := 1.0
	if !isNull(r.Confidence) {
		conf, ok = parseNumber(r.Confidence)
		if !ok {
			return Observation{}, false
		}
	}

	return Observation{
		Station:    SanitizeCode(r.Station.Code),
		Longitude:  geo.NormalizeLon(lon),
		Latitude:   lat,
		MUF:        muf,
		Confidence: NormalizeConfidence(conf),
		ObservedAt: ParseTime(r.Time),
	}, true
}

// NormalizeConfidence rescales percentages (>1) to fractions and clamps the
// result to [0, 1].
func NormalizeConfidence(c float64) float64 {
	if c > 1 {
		c /= 100
	}
	return math.Max(0, math.Min(1, c))
}

// isoLayouts are tried in order after the trailing "Z" is removed.
var isoLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime reads a feed timestamp: a JSON number of epoch seconds or an
// ISO-8601 string, taken as UTC. Anything else yields the Unix epoch, which
// the freshness filter then rejects.
func ParseTime(raw json.RawMessage) time.Time {
	epoch := time.Unix(0, 0).UTC()
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || isNull(raw) {
		return epoch
	}

	if raw[0] != '"' {
		secs, err := strconv.ParseFloat(string(raw), 64)
		if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
			return epoch
		}
		return fromEpochSeconds(secs)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return epoch
	}
	s = strings.TrimSpace(s)

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	s = strings.TrimSuffix(s, "Z")
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t
		}
	}
	return epoch
}

func fromEpochSeconds(secs float64) time.Time {
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC()
}

// parseNumber accepts a JSON number or a string holding one. Non-finite
// values are rejected.
func parseNumber(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || isNull(raw) {
		return 0, false
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, false
		}
		text = strings.TrimSpace(text)
	}

	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
