package judge

import (
	"fmt"
	"strings"

	"iacgate/internal/artifact"
)

// PromptVersion is baked into cache keys so a prompt change invalidates
// cached judge replies.
const PromptVersion = "v2"

const systemPrompt = `You are a security reviewer for infrastructure-as-code artifacts in a CI pipeline.
Judge whether the artifact violates the given security policy.
Respond with a single JSON object and nothing else:
{"label": "violation" | "no-violation" | "ambiguous",
 "confidence": <number 0..1>,
 "violations": [<short description per violated rule>],
 "remediation": [<short fix suggestion per violation>],
 "rationale": "<one or two sentences>"}
Use "ambiguous" only when the policy genuinely cannot be applied to the artifact.`

// BuildSystemPrompt returns the fixed system instruction shared by all
// remote judges.
func BuildSystemPrompt() string { return systemPrompt }

// BuildUserPrompt frames one artifact and policy for a judge.
func BuildUserPrompt(art artifact.Artifact, pol artifact.PolicyContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Policy %s:\n%s\n\n", pol.Key(), strings.TrimSpace(pol.RuleSet))
	fmt.Fprintf(&b, "Artifact kind: %s\nArtifact ref: %s\n\n", art.Kind, art.Ref)
	b.WriteString("Artifact content:\n```\n")
	b.WriteString(art.Content)
	b.WriteString("\n```\n")
	return b.String()
}
