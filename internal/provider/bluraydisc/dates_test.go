package bluraydisc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/John-Robertt/BRCal/internal/domain"
)

func TestNormalizeDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want time.Time
		rule string
	}{
		{name: "ab numeric", in: "Release: Ab 15.11.2025 im Handel", want: domain.Date(2025, 11, 15), rule: domain.DateRuleAbNumeric},
		{name: "ab preferred over earlier bare date", in: "Kino 03.04.2025, Blu-ray ab 1.12.2025", want: domain.Date(2025, 12, 1), rule: domain.DateRuleAbNumeric},
		{name: "ab two digit year", in: "ab 5.1.26", want: domain.Date(2026, 1, 5), rule: domain.DateRuleAbNumeric},
		{name: "ab spaced separators", in: "AB 07 . 03 . 2025", want: domain.Date(2025, 3, 7), rule: domain.DateRuleAbNumeric},
		{name: "ab month name", in: "Erscheint ab 20. November 2025", want: domain.Date(2025, 11, 20), rule: domain.DateRuleAbMonth},
		{name: "month name umlaut", in: "VÖ: 3. März 2026", want: domain.Date(2026, 3, 3), rule: domain.DateRuleMonth},
		{name: "month name without dot", in: "Termin 1 Mai 2025 bestätigt", want: domain.Date(2025, 5, 1), rule: domain.DateRuleMonth},
		{name: "bare numeric", in: "Termin: 24.12.2025", want: domain.Date(2025, 12, 24), rule: domain.DateRuleNumeric},
		{name: "malformed candidate falls through", in: "ab 31.02.2025, richtig: 28.02.2025", want: domain.Date(2025, 2, 28), rule: domain.DateRuleNumeric},
		{name: "year before 1900 falls through", in: "ab 01.01.0001, Termin 02.03.2025", want: domain.Date(2025, 3, 2), rule: domain.DateRuleNumeric},
		{name: "loose fallback", in: "Geplant für den 14.02 im Jahr 2026", want: domain.Date(2026, 2, 14), rule: domain.DateRuleLoose},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, ok := NormalizeDate(tt.in)
			require.True(t, ok, "input=%q", tt.in)
			assert.True(t, tt.want.Equal(m.Date), "want=%s got=%s", tt.want, m.Date)
			assert.Equal(t, tt.rule, m.Rule)
			assert.Equal(t, tt.rule == domain.DateRuleLoose, m.Loose())
		})
	}
}

func TestNormalizeDate_NotFound(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		"",
		"Laufzeit 121 Min.",
		"Termin folgt",
		"31.02.2025",
		"Preis 19.99 EUR",
		"01.01.0001",
		"ab 5.6.1850",
	} {
		_, ok := NormalizeDate(in)
		assert.False(t, ok, "input=%q", in)
	}
}

func TestCleanCandidate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "20.11.2025", cleanCandidate("20. November 2025"))
	assert.Equal(t, "1.03.2026", cleanCandidate("1 MÄRZ 2026"))
	assert.Equal(t, "7.3.2025", cleanCandidate(" 7 .. 3 . 2025."))
}

func TestPropertyNormalizeDateIdempotent(t *testing.T) {
	t.Parallel()
	start := domain.Date(1950, time.January, 1)
	rapid.Check(t, func(t *rapid.T) {
		days := rapid.IntRange(0, 365*150).Draw(t, "days")
		d := start.AddDate(0, 0, days)

		m, ok := NormalizeDate(d.Format("02.01.2006"))
		if !ok {
			t.Fatalf("格式化后的日期无法解析：%s", d.Format("02.01.2006"))
		}
		if !m.Date.Equal(d) {
			t.Fatalf("日期不幂等：want=%s got=%s", d, m.Date)
		}

		again, ok := NormalizeDate(m.Date.Format("02.01.2006"))
		if !ok || !again.Date.Equal(m.Date) {
			t.Fatalf("二次解析不一致：%s vs %s", m.Date, again.Date)
		}
	})
}
