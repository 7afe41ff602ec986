package export

import (
	"strconv"

	"github.com/gocarina/gocsv"

	"github.com/John-Robertt/BRCal/internal/domain"
)

type csvRow struct {
	Title          string `csv:"title"`
	ReleaseDate    string `csv:"release_date"`
	ProductionYear string `csv:"production_year"`
	Category       string `csv:"category"`
	Canonical      bool   `csv:"canonical"`
	DuplicateOf    string `csv:"duplicate_of"`
	DateRule       string `csv:"date_rule"`
	URL            string `csv:"url"`
}

// EncodeCSV 导出所有条目（含重复与无日期条目），便于人工核对去重结果。
func EncodeCSV(items []domain.Item) ([]byte, error) {
	rows := make([]*csvRow, 0, len(items))
	for _, it := range items {
		r := &csvRow{
			Title:       it.DisplayTitle(),
			Category:    it.Category,
			Canonical:   it.Canonical,
			DuplicateOf: it.DuplicateOf,
			DateRule:    it.DateRule,
			URL:         it.URL,
		}
		if it.HasDate() {
			r.ReleaseDate = it.ReleaseDate.Format("2006-01-02")
		}
		if it.ProductionYear > 0 {
			r.ProductionYear = strconv.Itoa(it.ProductionYear)
		}
		rows = append(rows, r)
	}
	return gocsv.MarshalBytes(&rows)
}
