package main

import (
	"github.com/liamcoop/vouchermacro/internal/logger"
	"github.com/liamcoop/vouchermacro/store"
)

// API request and response models. Provisioning uses business.ProvisionRequest
// and business.ProvisionResult directly.

// RegisterBusinessRequest is the body of PUT /api/v1/businesses/{business}.
type RegisterBusinessRequest struct {
	Identity string `json:"identity" example:"owner@example.com"`
	Policy   string `json:"policy,omitempty" example:"amount % 5 == 0"`
}

// BusinessesListResponse lists registered businesses.
type BusinessesListResponse struct {
	Businesses []*store.Business `json:"businesses"`
}

// LedgersResponse lists a business's ledgers by ascending denomination.
type LedgersResponse struct {
	Business string          `json:"business"`
	Ledgers  []*store.Ledger `json:"ledgers"`
}

// TemplateResponse acknowledges a template upload.
type TemplateResponse struct {
	Name         string `json:"name"`
	Bytes        int    `json:"bytes"`
	Placeholders int    `json:"placeholders"`
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status     string       `json:"status"`
	Error      string       `json:"error,omitempty"`
	Businesses int          `json:"businesses"`
	Stats      logger.Stats `json:"stats"`
}

// ErrorResponse is the body of every failed request without a compile outcome.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
