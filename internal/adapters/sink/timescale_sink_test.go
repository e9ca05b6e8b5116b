package sink

import (
	"errors"
	"math"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ghalamif/SensorHub/internal/domain"
)

func TestTimescaleSinkWriteBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sink := NewTimescaleSink(db, "observations")
	ts := time.Now()

	observations := []*domain.Observation{
		{
			ModuleID:  "rangefinder",
			Channel:   "rangeData",
			Timestamp: ts,
			Seq:       1,
			Fields:    []string{"horizDistance", "azimuth"},
			Values:    []float64{36.7285, math.NaN()},
		},
		{
			ModuleID:  "rangefinder",
			Channel:   "rangeData",
			Timestamp: ts.Add(time.Second),
			Seq:       2,
			Fields:    []string{"horizDistance", "azimuth"},
			Values:    []float64{39.685, 12},
		},
	}

	expectedQuery := regexp.QuoteMeta("INSERT INTO observations (module_id, channel, ts, seq, values) VALUES ($1,$2,$3,$4,$5),($6,$7,$8,$9,$10) ON CONFLICT (module_id, channel, ts, seq) DO NOTHING")
	mock.ExpectExec(expectedQuery).
		WithArgs(
			"rangefinder", "rangeData", ts, int64(1), []byte(`{"horizDistance":36.7285}`),
			"rangefinder", "rangeData", ts.Add(time.Second), int64(2), []byte(`{"azimuth":12,"horizDistance":39.685}`),
		).
		WillReturnResult(sqlmock.NewResult(2, 2))

	if err := sink.WriteBatch(observations); err != nil {
		t.Fatalf("write batch: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTimescaleSinkRestartedSequenceIsNotADuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sink := NewTimescaleSink(db, "observations")
	before := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	after := before.Add(time.Hour)

	// Same module id and seq 1 from two process runs; only ts tells them apart.
	query := regexp.QuoteMeta("INSERT INTO observations (module_id, channel, ts, seq, values) VALUES ($1,$2,$3,$4,$5) ON CONFLICT (module_id, channel, ts, seq) DO NOTHING")
	for _, ts := range []time.Time{before, after} {
		mock.ExpectExec(query).
			WithArgs("rangefinder", "rangeData", ts, int64(1), []byte(`{"horizDistance":1}`)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		o := &domain.Observation{
			ModuleID:  "rangefinder",
			Channel:   "rangeData",
			Timestamp: ts,
			Seq:       1,
			Fields:    []string{"horizDistance"},
			Values:    []float64{1},
		}
		if err := sink.WriteBatch([]*domain.Observation{o}); err != nil {
			t.Fatalf("write batch at %s: %v", ts, err)
		}
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTimescaleSinkWriteBatchError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	dbErr := errors.New("connection refused")
	mock.ExpectExec("INSERT INTO observations").WillReturnError(dbErr)

	sink := NewTimescaleSink(db, "observations")
	err = sink.WriteBatch([]*domain.Observation{{ModuleID: "m", Channel: "c", Seq: 1}})
	if !errors.Is(err, dbErr) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestTimescaleSinkWriteBatchNoObservations(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sink := NewTimescaleSink(db, "observations")
	if err := sink.WriteBatch(nil); err != nil {
		t.Fatalf("expected nil error for empty batch, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTimescaleSinkName(t *testing.T) {
	db, _, _ := sqlmock.New()
	defer db.Close()

	sink := NewTimescaleSink(db, "observations")
	if sink.Name() != "timescaledb" {
		t.Fatalf("expected sink name timescaledb, got %s", sink.Name())
	}
}
