package reports

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/otherjamesbrown/agency-service/internal/domain"
)

// Kind selects which aggregate an export contains.
type Kind string

const (
	KindAll             Kind = ""
	KindActiveByProduct Kind = "active-by-product"
	KindMonthlyNew      Kind = "monthly-new"
	KindClaimsByState   Kind = "claims-by-state"
	KindTopCities       Kind = "top-cities"
	KindClaimsByYear    Kind = "claims-by-year"
)

// Valid reports whether k is a known export kind.
func (k Kind) Valid() bool {
	switch k {
	case KindAll, KindActiveByProduct, KindMonthlyNew, KindClaimsByState, KindTopCities, KindClaimsByYear:
		return true
	}
	return false
}

// FileName is the attachment name for an export generated on day.
func (k Kind) FileName(day domain.Date) string {
	if k == KindAll {
		return fmt.Sprintf("report-%s.csv", day)
	}
	return fmt.Sprintf("report-%s-%s.csv", k, day)
}

// utf8BOM makes spreadsheet tools detect the encoding.
const utf8BOM = "\uFEFF"

// WriteCSV writes d as semicolon separated values. KindAll writes every
// section, separated by an empty line.
func WriteCSV(w io.Writer, kind Kind, d Dashboard) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return fmt.Errorf("write BOM: %w", err)
	}
	cw := csv.NewWriter(w)
	cw.Comma = ';'

	sections := []Kind{kind}
	if kind == KindAll {
		sections = []Kind{KindActiveByProduct, KindMonthlyNew, KindClaimsByState, KindTopCities, KindClaimsByYear}
	}
	for i, section := range sections {
		if i > 0 {
			cw.Flush()
			if _, err := io.WriteString(w, "\n"); err != nil {
				return fmt.Errorf("write CSV separator: %w", err)
			}
		}
		if err := writeSection(cw, section, d); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush CSV: %w", err)
	}
	return nil
}

func writeSection(cw *csv.Writer, kind Kind, d Dashboard) error {
	var rows [][]string
	switch kind {
	case KindActiveByProduct:
		rows = append(rows, []string{"product", "count"})
		for _, r := range d.ActiveByProduct {
			rows = append(rows, []string{r.Label, strconv.FormatInt(r.Value, 10)})
		}
	case KindMonthlyNew:
		rows = append(rows, []string{"month", "count"})
		for _, r := range d.MonthlyNew {
			rows = append(rows, []string{r.Period, strconv.FormatInt(r.Count, 10)})
		}
	case KindClaimsByState:
		rows = append(rows, []string{"state", "count", "sum", "average"})
		for _, r := range d.ClaimsByState {
			rows = append(rows, []string{string(r.State), strconv.FormatInt(r.Count, 10), r.Sum.String(), r.Average.String()})
		}
	case KindTopCities:
		rows = append(rows, []string{"city", "count"})
		for _, r := range d.TopCities {
			rows = append(rows, []string{r.City, strconv.FormatInt(r.Count, 10)})
		}
	case KindClaimsByYear:
		rows = append(rows, []string{"year", "count"})
		for _, r := range d.ClaimsByYear {
			rows = append(rows, []string{r.Label, strconv.FormatInt(r.Value, 10)})
		}
	default:
		return fmt.Errorf("write CSV: unknown section %q", kind)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write CSV section %s: %w", kind, err)
	}
	return nil
}
