package models

// Fund is one monitored ETF from the static registry.
type Fund struct {
	Code string `json:"code"`
	Name string `json:"name"`
}
