package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"consultbook/pkg/config"
	apperrors "consultbook/pkg/errors"
)

const CodeRequestTooLarge = "REQUEST_TOO_LARGE"

func ExtractLimitOffset(r *http.Request) (int, int64, error) {
	query := r.URL.Query()

	limit := 0
	if s := query.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid limit parameter: " + s)
		}
		limit = v
	}

	var offset int64 = 0
	if s := query.Get("offset"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid offset parameter: " + s)
		}
		offset = v
	}

	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	return limit, offset, nil
}

// DecodeJSON decodes the request body into v, rejecting unknown fields. An
// empty body is allowed when optional is true.
func DecodeJSON(r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperrors.New(CodeRequestTooLarge, "Request body too large", http.StatusRequestEntityTooLarge).
				WithDetails(map[string]any{"max_bytes": maxErr.Limit})
		}
		return apperrors.InvalidInput("invalid JSON body: " + err.Error())
	}
	return nil
}
