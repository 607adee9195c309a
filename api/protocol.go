package api

import "study-planner/domain"

const appendMaxSize = 64 * 1024 // 64 KiB

const headerIdempotencyKey = "Idempotency-Key"

// POST /api/:kind request body
type appendRequest struct {
	Title       string `json:"title"`
	Date        string `json:"date"`
	Description string `json:"description"`
}

type recordsResponse struct {
	Kind    domain.Kind     `json:"kind"`
	Records []domain.Record `json:"records"`
}

type groupsResponse struct {
	Kind   domain.Kind    `json:"kind"`
	Groups []domain.Group `json:"groups"`
}
