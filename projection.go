package analyst

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Field projections applied to market-data payloads before they reach the
// conversation. gjson multipaths keep only the listed keys.
const (
	snapshotProjection = "{price,changesPercentage,change,dayLow,dayHigh,marketCap,volume,pe,eps}"
	historyProjection  = "{date,open,high,low,close,volume}"
	detailsProjection  = "{companyName,sector,industry,description,exchange,website,ceo}"
)

const (
	// DefaultHistoryDays is how many daily bars get_historical_prices returns.
	DefaultHistoryDays = 30

	// DefaultMaxResultBytes caps one serialized tool outcome.
	DefaultMaxResultBytes = 16 * 1024

	// maxDescriptionRunes caps the company description in ticker details.
	maxDescriptionRunes = 300
)

// isEmptyPayload reports whether a collaborator returned nothing usable.
func isEmptyPayload(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte("{}"))
}

// projectSnapshot keeps the quote fields of a realtime snapshot.
func projectSnapshot(raw []byte) (string, error) {
	if !gjson.ValidBytes(raw) {
		return "", fmt.Errorf("snapshot payload is not valid JSON")
	}
	return gjson.GetBytes(raw, snapshotProjection).Raw, nil
}

// projectHistory keeps the OHLCV fields of at most maxRows bars, stopping
// early once the serialized array would exceed maxBytes.
func projectHistory(raw []byte, maxRows, maxBytes int) (string, error) {
	if !gjson.ValidBytes(raw) {
		return "", fmt.Errorf("history payload is not valid JSON")
	}
	parsed := gjson.ParseBytes(raw)
	if !parsed.IsArray() {
		return "", fmt.Errorf("history payload is not an array")
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	rows := 0
	parsed.ForEach(func(_, row gjson.Result) bool {
		if rows >= maxRows {
			return false
		}
		projected := row.Get(historyProjection).Raw
		// +2 leaves room for the separator and the closing bracket.
		if maxBytes > 0 && buf.Len()+len(projected)+2 > maxBytes {
			return false
		}
		if rows > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(projected)
		rows++
		return true
	})
	buf.WriteByte(']')
	return buf.String(), nil
}

// projectDetails keeps the profile fields of a company and shortens its
// description.
func projectDetails(raw []byte) (string, error) {
	if !gjson.ValidBytes(raw) {
		return "", fmt.Errorf("details payload is not valid JSON")
	}
	projected := gjson.GetBytes(raw, detailsProjection).Raw

	description := gjson.GetBytes(raw, "description").String()
	if description != "" {
		description = truncateRunes(description, maxDescriptionRunes) + "..."
	}
	out, err := sjson.Set(projected, "description", description)
	if err != nil {
		return "", fmt.Errorf("failed to set description: %w", err)
	}
	return out, nil
}

// truncateRunes cuts s to at most n runes without splitting a code point.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// errorPayload serializes an error outcome the way the model expects it.
func errorPayload(msg string) string {
	out, err := sjson.Set(`{}`, "error", msg)
	if err != nil {
		return `{"error":"internal error"}`
	}
	return out
}
