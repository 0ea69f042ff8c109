package models

// DtnoData is the raw disclosure payload returned by the holdings API.
// Title carries the column labels; Data rows are positional string arrays
// in the order date, instrument code, instrument name, weight percent,
// quantity, unit.
type DtnoData struct {
	Title []string   `json:"Title"`
	Data  [][]string `json:"Data"`
}
