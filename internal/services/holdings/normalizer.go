// Package holdings implements disclosure ingestion: fetching a fund's
// daily holdings table, diffing it against the latest prior snapshot
// and reconciling both stores in one transaction.
package holdings

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yhlin/etfwatch/internal/models"
)

// disclosureColumns is the positional layout of a disclosure row:
// 日期, 標的代號, 標的名稱, 權重(%), 持有數, 單位.
const disclosureColumns = 6

// NormalizeRows converts a raw disclosure table into holdings rows and
// reports the disclosure date the table carries. The date is taken from
// the first valid row only; the whole batch is one as-of snapshot, so
// per-row dates are never consulted. An unparseable date cell yields ""
// and the caller falls back to the ingest date. Rows that are too
// short, lack an instrument code or name, or carry unparseable numbers
// are dropped. A repeated instrument code keeps its first position with
// the later row's values.
func NormalizeRows(fundCode string, data *models.DtnoData) ([]models.Holding, string) {
	if data == nil || len(data.Data) == 0 {
		return nil, ""
	}

	var holdings []models.Holding
	batchDate := ""
	position := make(map[string]int)

	for _, row := range data.Data {
		if len(row) < disclosureColumns {
			continue
		}

		code := strings.TrimSpace(row[1])
		name := strings.TrimSpace(row[2])
		if code == "" || name == "" {
			continue
		}

		weight, ok := parseWeight(strings.TrimSpace(row[3]))
		if !ok {
			continue
		}
		quantity, ok := parseQuantity(strings.TrimSpace(row[4]))
		if !ok {
			continue
		}

		if len(holdings) == 0 {
			batchDate = parseRowDate(strings.TrimSpace(row[0]))
		}

		h := models.Holding{
			FundCode:       fundCode,
			InstrumentCode: code,
			InstrumentName: name,
			Weight:         weight,
			Quantity:       quantity,
			Unit:           strings.TrimSpace(row[5]),
		}

		if idx, dup := position[code]; dup {
			holdings[idx] = h
			continue
		}
		position[code] = len(holdings)
		holdings = append(holdings, h)
	}

	return holdings, batchDate
}

// parseRowDate reads the disclosure date column, accepting the slash
// form the upstream serves alongside plain ISO. Returns "" when the
// cell does not parse.
func parseRowDate(text string) string {
	for _, layout := range []string{"2006/01/02", models.DateFormat} {
		if t, err := time.Parse(layout, text); err == nil {
			return t.Format(models.DateFormat)
		}
	}
	return ""
}

// parseWeight reads the percent column. Empty means zero; anything
// else must parse as a decimal.
func parseWeight(text string) (decimal.Decimal, bool) {
	cleaned := strings.TrimSuffix(text, "%")
	if cleaned == "" {
		return decimal.Zero, true
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// parseQuantity reads the share count column, stripping thousands
// separators. Empty means zero.
func parseQuantity(text string) (int64, bool) {
	cleaned := strings.ReplaceAll(text, ",", "")
	if cleaned == "" {
		return 0, true
	}
	n, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
