// Package entities holds the records and tables that flow through the indicator pipeline.
package entities

// IndicatorRecord is one entry of the GHO indicator catalog.
type IndicatorRecord struct {
	Code string `json:"IndicatorCode"`
	Name string `json:"IndicatorName"`
}
