package validators

import (
	"net/http"
	"strconv"

	pkgerrors "github.com/magneticlabs/credits-backend/pkg/errors"
	"github.com/magneticlabs/credits-backend/pkg/pagination"
)

// ParsePagination reads limit and cursor query parameters. Limit is clamped
// by the pagination package; a non-numeric limit is a validation error.
func ParsePagination(r *http.Request) (pagination.Params, error) {
	params := pagination.Params{Cursor: r.URL.Query().Get("cursor")}

	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return params, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return params, pkgerrors.New(pkgerrors.CodeValidation, "limit must be a non-negative integer")
	}
	params.Limit = limit
	return params, nil
}
