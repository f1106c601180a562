package verdict

import (
	"bytes"
	"encoding/json"
	"io"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// replySchema is the contract every judge reply must satisfy. Checked before
// decoding so a reply that merely resembles the shape (wrong types, extra
// labels) is rejected the same way as garbage text.
const replySchema = `{
  "type": "object",
  "required": ["label", "confidence"],
  "additionalProperties": false,
  "properties": {
    "label": {"type": "string", "enum": ["violation", "no-violation", "ambiguous"]},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "violations": {"type": "array", "items": {"type": "string"}},
    "remediation": {"type": "array", "items": {"type": "string"}},
    "rationale": {"type": "string"}
  }
}`

var compiledReplySchema = gojsonschema.NewStringLoader(replySchema)

// rawReply mirrors replySchema for decoding.
type rawReply struct {
	Label       string   `json:"label"`
	Confidence  float64  `json:"confidence"`
	Violations  []string `json:"violations,omitempty"`
	Remediation []string `json:"remediation,omitempty"`
	Rationale   string   `json:"rationale,omitempty"`
}

const maxPreservedRaw = 2048

// Normalize maps one raw judge reply onto the canonical verdict record.
// Unparseable or schema-violating output becomes an ambiguous verdict with
// confidence 0.0 — it still participates in aggregation as a maximally
// uncertain vote and keeps the malformed text auditable in Rationale.
func Normalize(judge, raw string, latency time.Duration, now time.Time) JudgeVerdict {
	v := JudgeVerdict{
		Judge:     judge,
		LatencyMS: latency.Milliseconds(),
		Timestamp: now.UTC(),
	}

	reply, ok := parseReply(raw)
	if !ok {
		v.Label = LabelAmbiguous
		v.Confidence = 0.0
		v.Rationale = truncate(raw, maxPreservedRaw)
		return v
	}

	v.Label = Label(reply.Label)
	v.Confidence = reply.Confidence
	v.Violations = reply.Violations
	v.Remediation = reply.Remediation
	v.Rationale = reply.Rationale
	return v
}

func parseReply(raw string) (rawReply, bool) {
	res, err := gojsonschema.Validate(compiledReplySchema, gojsonschema.NewStringLoader(raw))
	if err != nil || !res.Valid() {
		return rawReply{}, false
	}

	dec := json.NewDecoder(bytes.NewBufferString(raw))
	dec.DisallowUnknownFields()
	var reply rawReply
	if err := dec.Decode(&reply); err != nil {
		return rawReply{}, false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return rawReply{}, false
	}
	if !Label(reply.Label).Valid() {
		return rawReply{}, false
	}
	if reply.Confidence < 0 || reply.Confidence > 1 {
		return rawReply{}, false
	}
	return reply, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
