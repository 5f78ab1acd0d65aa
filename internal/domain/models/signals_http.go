package models

// Requests for the crypto-middleware HTTP endpoints.

type RunRequest struct {
	Symbols []string `json:"symbols" validate:"omitempty,dive,min=3,max=20"`
}

type HistoryRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"omitempty,max=20,alphanum"`
	Limit  int    `query:"limit" json:"limit" default:"50"`
}
