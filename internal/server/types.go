package server

import (
	"facturas/internal/ledger"
	"facturas/internal/model"
)

// ListResponse is the response for the invoice listing endpoint
type ListResponse struct {
	Items       []model.Invoice `json:"items"`
	Total       int             `json:"total"`
	Pages       int             `json:"pages"`
	CurrentPage int             `json:"current_page"`
}

// ProcessExcelResponse is the response for ledger spreadsheet processing
type ProcessExcelResponse struct {
	Data    []ledger.Row   `json:"data"`
	Summary ProcessSummary `json:"summary"`
}

// ProcessSummary summarizes one ledger processing pass
type ProcessSummary struct {
	ProcessedRows int `json:"processed_rows"`
}

// ErrorResponse is the standard error response
type ErrorResponse struct {
	Error string `json:"error"`
}
