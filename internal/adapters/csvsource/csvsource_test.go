package csvsource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/selivandex/stock-signal/pkg/models"
)

func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestPriceLoader(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "13M Data AAPL - Sheet1.csv", []byte(
		" Date ,Open Price,High,Low,Close,Volume\n"+
			"27/06/2024 16:00:00,\"1,210.5\",1220,1200,1215.25,\"12,345\"\n"+
			"26/06/2024,210,212,208,211,10000\n"+
			"not a date,1,1,1,1,1\n"+
			"2024-06-28,211,213,209,,11000\n"+
			"2024-06-29,211,213,209,212,11000\n",
	))

	l := NewPriceLoader(dir, "13M Data %s - Sheet1.csv")
	bars, err := l.LoadBars(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("LoadBars failed: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("got %d bars, want 3", len(bars))
	}

	first := bars[0]
	if !first.Date.Equal(time.Date(2024, 6, 27, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date = %v", first.Date)
	}
	if first.Open != 1210.5 || first.Close != 1215.25 || first.Volume != 12345 || first.Ticker != "AAPL" {
		t.Errorf("unexpected bar %+v", first)
	}
	if !bars[2].Date.Equal(time.Date(2024, 6, 29, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("iso date = %v", bars[2].Date)
	}
}

func TestPriceLoader_Latin1(t *testing.T) {
	dir := t.TempDir()
	// 0xA0 is a Latin-1 no-break space inside the header
	writeFile(t, dir, "KO.csv", []byte("Date\xa0,Open,High,Low,Close,Volume\n01/07/2024,60,61,59,60.5,900\n"))

	bars, err := NewPriceLoader(dir, ".csv").LoadBars(context.Background(), "KO")
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 1 || bars[0].Close != 60.5 {
		t.Errorf("unexpected bars %+v", bars)
	}
}

func TestPriceLoader_MissingColumn(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "X.csv", []byte("date,open,high,low,close\n01/07/2024,1,1,1,1\n"))

	_, err := NewPriceLoader(dir, "%s.csv").LoadBars(context.Background(), "X")
	var se *models.SchemaError
	if !errors.As(err, &se) || se.Field != "volume" {
		t.Fatalf("expected SchemaError for volume, got %v", err)
	}
	if se.Source != filepath.Join(dir, "X.csv") {
		t.Errorf("source = %q", se.Source)
	}
}

func TestPriceLoader_MissingFile(t *testing.T) {
	if _, err := NewPriceLoader(t.TempDir(), "%s.csv").LoadBars(context.Background(), "NONE"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestNewsLoader(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "msft_news_complete_year.csv", []byte(
		"Date,Headline,Summary,Source\n"+
			"2024-07-01 13:30:00,Microsoft rallies,\"Cloud growth, again\",wire\n"+
			"garbage,skip me,,\n"+
			"02/07/2024,,Only a summary,\n",
	))

	l := NewNewsLoader(dir, "%s_news_complete_year.csv", true)
	articles, err := l.LoadNews(context.Background(), "MSFT")
	if err != nil {
		t.Fatal(err)
	}
	if len(articles) != 2 {
		t.Fatalf("got %d articles, want 2", len(articles))
	}
	if articles[0].Headline != "Microsoft rallies" || articles[0].Summary != "Cloud growth, again" || articles[0].Ticker != "MSFT" {
		t.Errorf("unexpected article %+v", articles[0])
	}
	if articles[0].PublishedAt.Hour() != 13 {
		t.Errorf("time of day lost: %v", articles[0].PublishedAt)
	}
	if !articles[1].HasText() || articles[1].Headline != "" {
		t.Errorf("unexpected article %+v", articles[1])
	}
}

func TestNewsLoader_NoDateColumn(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ko.csv", []byte("headline,summary\na,b\n"))

	_, err := NewNewsLoader(dir, "%s.csv", true).LoadNews(context.Background(), "KO")
	var se *models.SchemaError
	if !errors.As(err, &se) || se.Field != "date" {
		t.Fatalf("expected date SchemaError, got %v", err)
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"1,234.5", 1234.5, false},
		{" $12 ", 12, false},
		{"-3.5", -3.5, false},
		{"", 0, true},
		{"n/a", 0, true},
	}
	for _, tt := range tests {
		got, err := parseNumber(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseNumber(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseNumber(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
