package job

import "github.com/notegraphhq/notegraph/internal/insight"

// payloadFields are the JSON field names engine versions have used for the
// report body, in priority order.
var payloadFields = []string{"content", "markdown", "report", "text", "data", "body", "result", "output"}

// minHeuristicLen is the cutoff for the sole-long-string fallback; short
// strings are statuses and ids, not report bodies.
const minHeuristicLen = 80

// ResultPayload extracts the report text from a download response. Raw text
// bodies pass through; JSON objects are probed for the known field names, and
// as a last resort a JSON object with exactly one long string field yields
// that field.
func ResultPayload(resp *insight.Response) string {
	if resp.JSON == nil {
		return resp.Text
	}
	for _, f := range payloadFields {
		if s, ok := resp.JSON[f].(string); ok && s != "" {
			return s
		}
	}

	var long string
	var count int
	for _, v := range resp.JSON {
		if s, ok := v.(string); ok && len(s) >= minHeuristicLen {
			long = s
			count++
		}
	}
	if count == 1 {
		return long
	}
	return resp.Text
}
