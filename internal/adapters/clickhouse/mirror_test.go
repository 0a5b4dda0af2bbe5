package clickhouse

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/selivandex/stock-signal/pkg/models"
)

type fakeLoader struct {
	bars []models.PriceBar
	err  error
}

func (f *fakeLoader) LoadBars(context.Context, string) ([]models.PriceBar, error) {
	return f.bars, f.err
}

// batchSaver stores bars through a BatchWriter the way Repository.SaveBars does
type batchSaver struct {
	batch   int
	chunks  [][]models.PriceBar
	failing bool
}

func (s *batchSaver) SaveBars(ctx context.Context, bars []models.PriceBar) error {
	_, err := writeBatched(ctx, s.batch, bars, func(_ context.Context, chunk []models.PriceBar) error {
		if s.failing {
			return errors.New("connection refused")
		}
		s.chunks = append(s.chunks, append([]models.PriceBar(nil), chunk...))
		return nil
	})
	return err
}

func generateBars(ticker string, n int) []models.PriceBar {
	start := time.Date(2024, 6, 26, 0, 0, 0, 0, time.UTC)
	bars := make([]models.PriceBar, n)
	for i := range bars {
		bars[i] = models.PriceBar{
			Ticker: ticker,
			Date:   start.AddDate(0, 0, i),
			Open:   100 + float64(i),
			High:   101 + float64(i),
			Low:    99 + float64(i),
			Close:  100.5 + float64(i),
			Volume: 1e6,
		}
	}
	return bars
}

func TestMirroredSource(t *testing.T) {
	bars := generateBars("AAPL", 5)
	sink := &batchSaver{batch: 2}
	src := NewMirroredSource(&fakeLoader{bars: bars}, sink)

	got, err := src.LoadBars(context.Background(), "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 {
		t.Fatalf("loaded %d bars, want 5", len(got))
	}

	if len(sink.chunks) != 3 || len(sink.chunks[2]) != 1 {
		t.Fatalf("unexpected chunks %v", sink.chunks)
	}
	mirrored := 0
	for _, chunk := range sink.chunks {
		for _, bar := range chunk {
			if !bar.Date.Equal(bars[mirrored].Date) || bar.Close != bars[mirrored].Close {
				t.Errorf("bar %d mirrored as %+v", mirrored, bar)
			}
			mirrored++
		}
	}
	if mirrored != 5 {
		t.Errorf("mirrored %d bars, want 5", mirrored)
	}
}

func TestMirroredSource_Failures(t *testing.T) {
	t.Run("sink failure keeps bars", func(t *testing.T) {
		src := NewMirroredSource(&fakeLoader{bars: generateBars("KO", 3)}, &batchSaver{batch: 10, failing: true})
		got, err := src.LoadBars(context.Background(), "KO")
		if err != nil || len(got) != 3 {
			t.Errorf("LoadBars = %d bars, %v", len(got), err)
		}
	})

	t.Run("source failure is returned", func(t *testing.T) {
		sink := &batchSaver{batch: 10}
		src := NewMirroredSource(&fakeLoader{err: &models.SchemaError{Field: "close"}}, sink)
		_, err := src.LoadBars(context.Background(), "KO")
		var schema *models.SchemaError
		if !errors.As(err, &schema) {
			t.Errorf("err = %v, want SchemaError", err)
		}
		if len(sink.chunks) != 0 {
			t.Error("nothing should be mirrored after a failed load")
		}
	})

	t.Run("empty series is not written", func(t *testing.T) {
		sink := &batchSaver{batch: 10}
		if _, err := NewMirroredSource(&fakeLoader{}, sink).LoadBars(context.Background(), "KO"); err != nil {
			t.Fatal(err)
		}
		if len(sink.chunks) != 0 {
			t.Errorf("chunks = %v", sink.chunks)
		}
	})
}

func TestWriteBatched_ReportsFlushed(t *testing.T) {
	calls := 0
	written, err := writeBatched(context.Background(), 2, []int{1, 2, 3, 4, 5}, func(context.Context, []int) error {
		calls++
		if calls == 2 {
			return errors.New("timeout")
		}
		return nil
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if written != 2 {
		t.Errorf("written = %d, want 2", written)
	}
}
