/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *Response: Types returned to clients

TYPES:
  Health:  HealthResponse
  Upload:  UploadResponse
  Summary: SummaryResponse
  Errors:  ErrorResponse

AMOUNT ENCODING:
  Amounts are encoded as fixed 2-decimal strings ("15.00"), never floats,
  so values round-trip exactly through JSON.

SEE ALSO:
  - handlers.go: Builds these types
*/
package api

import (
	"time"

	"github.com/warp/transactions-service/txn"
)

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status string `json:"status"`
}

// UploadResponse reports the outcome of a CSV bulk load.
type UploadResponse struct {
	Rows     int64   `json:"rows"`
	Seconds  float64 `json:"seconds"`
	Replaced bool    `json:"replaced"`
}

// SummaryResponse carries per-user aggregate statistics. Start and End
// echo the effective datetime bounds the query actually used, including
// the all-time defaults when the caller omitted them. Min, Max, Mean and
// MostPurchasedProductID are null when no rows matched (the handler maps
// that case to 404 before this type is ever built, but the contract keeps
// them nullable).
type SummaryResponse struct {
	UserID                 int64   `json:"user_id"`
	Start                  string  `json:"start"`
	End                    string  `json:"end"`
	Count                  int64   `json:"count"`
	Min                    *string `json:"min"`
	Max                    *string `json:"max"`
	Mean                   *string `json:"mean"`
	MostPurchasedProductID *int64  `json:"most_purchased_product_id"`
}

// ErrorResponse is the error payload for all failure statuses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func newSummaryResponse(userID int64, r txn.Range, s txn.Summary) SummaryResponse {
	resp := SummaryResponse{
		UserID: userID,
		Start:  r.Start.UTC().Format(time.RFC3339Nano),
		End:    r.End.UTC().Format(time.RFC3339Nano),
		Count:  s.Count,
	}
	if s.Min != nil {
		v := s.Min.StringFixed(2)
		resp.Min = &v
	}
	if s.Max != nil {
		v := s.Max.StringFixed(2)
		resp.Max = &v
	}
	if s.Mean != nil {
		v := s.Mean.StringFixed(2)
		resp.Mean = &v
	}
	resp.MostPurchasedProductID = s.MostPurchasedProductID
	return resp
}
