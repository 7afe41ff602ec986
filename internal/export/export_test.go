package export

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	ics "github.com/arran4/golang-ical"
	"github.com/gocarina/gocsv"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/BRCal/internal/domain"
)

var exportNow = time.Date(2025, 10, 1, 8, 30, 0, 0, time.UTC)

func sampleItems() []domain.Item {
	return []domain.Item{
		{
			Title:          "Movie A",
			ProductionYear: 2025,
			ReleaseDate:    domain.Date(2025, time.November, 15),
			DateRule:       domain.DateRuleAbNumeric,
			URL:            "https://bluray-disc.de/blu-ray-filme/1-movie-a",
			Category:       "4k-uhd",
			Canonical:      true,
		},
		{
			Title:       "Movie A",
			ReleaseDate: domain.Date(2025, time.November, 20),
			URL:         "https://bluray-disc.de/blu-ray-filme/2-movie-a",
			Category:    "blu-ray-filme",
			DuplicateOf: "https://bluray-disc.de/blu-ray-filme/1-movie-a",
		},
		{
			URL:       "https://bluray-disc.de/blu-ray-filme/3",
			Category:  "4k-uhd",
			Canonical: true,
		},
	}
}

func TestEncodeICS(t *testing.T) {
	t.Parallel()

	b, n, err := EncodeICS(sampleItems(), exportNow)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "无日期条目应跳过")

	cal, err := ics.ParseCalendar(bytes.NewReader(b))
	require.NoError(t, err)
	events := cal.Events()
	require.Len(t, events, 2)

	ev := events[0]
	assert.Equal(t, EventUID("https://bluray-disc.de/blu-ray-filme/1-movie-a"), ev.Id())
	assert.Equal(t, "Movie A", ev.GetProperty(ics.ComponentPropertySummary).Value)
	assert.Equal(t, "20251115", ev.GetProperty(ics.ComponentPropertyDtStart).Value)
	assert.Equal(t, "20251116", ev.GetProperty(ics.ComponentPropertyDtEnd).Value)

	text := string(b)
	assert.Contains(t, text, "PRODID:"+ProductID)
	assert.Contains(t, text, "X-WR-CALNAME:")
	desc := ev.GetProperty(ics.ComponentPropertyDescription).Value
	assert.Contains(t, desc, "Kategorie: 4K UHD")
	assert.Contains(t, desc, "Produktion: 2025")
}

func TestEventUID_Stable(t *testing.T) {
	t.Parallel()

	u := "https://bluray-disc.de/blu-ray-filme/1-movie-a"
	assert.Equal(t, EventUID(u), EventUID(u))
	assert.NotEqual(t, EventUID(u), EventUID(u+"x"))
	assert.True(t, strings.HasSuffix(EventUID(u), "@bluray-disc.de"))
	assert.Len(t, strings.TrimSuffix(EventUID(u), "@bluray-disc.de"), 40)
}

func TestEncodeICS_Empty(t *testing.T) {
	t.Parallel()

	b, n, err := EncodeICS(nil, exportNow)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Contains(t, string(b), "BEGIN:VCALENDAR")
}

func TestEncodeCSV(t *testing.T) {
	t.Parallel()

	b, err := EncodeCSV(sampleItems())
	require.NoError(t, err)

	var rows []*csvRow
	require.NoError(t, gocsv.UnmarshalBytes(b, &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, "2025-11-15", rows[0].ReleaseDate)
	assert.Equal(t, "2025", rows[0].ProductionYear)
	assert.True(t, rows[0].Canonical)
	assert.False(t, rows[1].Canonical)
	assert.Equal(t, rows[0].URL, rows[1].DuplicateOf)
	assert.Equal(t, "https://bluray-disc.de/blu-ray-filme/3", rows[2].Title, "无标题时回退为 URL")
	assert.Empty(t, rows[2].ReleaseDate)
}

func TestCalendarItems(t *testing.T) {
	t.Parallel()

	items := sampleItems()
	assert.Len(t, CalendarItems(items, false), 2)
	assert.Len(t, CalendarItems(items, true), 3)
}

func TestWriter(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	w := NewWriter(fs, "/data/out")

	n, err := w.WriteICS("cal.ics", sampleItems(), exportNow)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, w.WriteCSV("cal.csv", sampleItems()))

	rep := domain.RunReport{RunID: "abcd1234", Output: "cal.ics"}
	rep.Items = append(rep.Items, domain.ResultFromItem(sampleItems()[0], domain.StatusExported))
	require.NoError(t, w.WriteReport("cal.report.json", rep))

	for _, name := range []string{"cal.ics", "cal.csv", "cal.report.json"} {
		ok, err := afero.Exists(fs, filepath.Join("/data/out", name))
		require.NoError(t, err)
		assert.True(t, ok, name)
	}

	b, err := afero.ReadFile(fs, "/data/out/cal.report.json")
	require.NoError(t, err)
	var got domain.RunReport
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, 1, got.Summary.Exported)
}

func TestPostgresWriter(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	pw := NewPostgresWriter(db)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS releases").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, pw.Migrate(context.Background()))

	items := sampleItems()
	mock.ExpectExec("INSERT INTO releases").
		WithArgs(
			items[0].URL, "Movie A", "2025-11-15", 2025, "4k-uhd", domain.DateRuleAbNumeric, true, "", "run1", exportNow,
			items[1].URL, "Movie A", "2025-11-20", nil, "blu-ray-filme", "", false, items[0].URL, "run1", exportNow,
			items[2].URL, items[2].URL, nil, nil, "4k-uhd", "", true, "", "run1", exportNow,
		).
		WillReturnResult(sqlmock.NewResult(0, 3))
	require.NoError(t, pw.Write(context.Background(), "run1", items, exportNow))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWriter_Batches(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	items := make([]domain.Item, 0, upsertBatchSize+1)
	for i := 0; i < upsertBatchSize+1; i++ {
		items = append(items, domain.Item{URL: "https://bluray-disc.de/blu-ray-filme/" + string(rune('a'+i%26)) + strings.Repeat("x", i)})
	}
	mock.ExpectExec("INSERT INTO releases").WillReturnResult(sqlmock.NewResult(0, int64(upsertBatchSize)))
	mock.ExpectExec("INSERT INTO releases").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewPostgresWriter(db).Write(context.Background(), "run2", items, exportNow))
	require.NoError(t, mock.ExpectationsWereMet())
}
