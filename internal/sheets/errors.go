package sheets

import (
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"
)

// ErrSheetNotFound is returned when a worksheet title does not exist in the
// spreadsheet.
var ErrSheetNotFound = errors.New("sheet not found")

var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"RATE_LIMIT_EXCEEDED":   true,
}

// IsRateLimited reports whether err is the API's transient quota error: HTTP
// 429, or a 403 whose reason names a rate limit. Daily quota exhaustion and
// permission errors are not rate limits.
func IsRateLimited(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}

	switch apiErr.Code {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		for _, item := range apiErr.Errors {
			if rateLimitReasons[item.Reason] {
				return true
			}
		}
		for _, detail := range apiErr.Details {
			if info, ok := detail.(map[string]interface{}); ok {
				if reason, _ := info["reason"].(string); rateLimitReasons[reason] {
					return true
				}
			}
		}
	}
	return false
}
