// Package artifact defines the input records for one validation call: the
// IaC artifact under review and the policy context it is checked against.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Kind labels the declared artifact type. The engine treats content as an
// opaque blob; the kind only steers prompt framing.
type Kind string

const (
	KindKubernetesManifest     Kind = "kubernetes-manifest"
	KindIAMPolicy              Kind = "iam-policy"
	KindTerraformModule        Kind = "terraform-module"
	KindCloudFormationTemplate Kind = "cloudformation-template"
	KindHelmTemplate           Kind = "helm-template"
	KindUnknown                Kind = "unknown"
)

// Artifact is one IaC document submitted for validation. Immutable once built.
type Artifact struct {
	Ref     string `json:"ref"` // path or other caller-supplied identifier
	Kind    Kind   `json:"kind"`
	Content string `json:"-"`
	SHA256  string `json:"sha256"`
}

// New builds an Artifact, hashing the content for the audit trail. An empty
// kind is resolved with DetectKind.
func New(ref string, kind Kind, content []byte) Artifact {
	if kind == "" {
		kind = DetectKind(ref, string(content))
	}
	sum := sha256.Sum256(content)
	return Artifact{
		Ref:     ref,
		Kind:    kind,
		Content: string(content),
		SHA256:  hex.EncodeToString(sum[:]),
	}
}

// PolicyContext identifies the rule set a verdict is rendered against.
// Calibration statistics are partitioned by Key().
type PolicyContext struct {
	ID      string `json:"id"`
	Version string `json:"version"`
	// RuleSet is the human-readable policy text handed to judges.
	RuleSet string `json:"-"`
}

// Key returns the calibration partition key for this policy version.
func (p PolicyContext) Key() string {
	if p.Version == "" {
		return p.ID
	}
	return p.ID + "@" + p.Version
}

// DetectKind guesses the artifact kind from the reference and content.
// Best-effort only; callers that know the kind should declare it.
func DetectKind(ref, content string) Kind {
	lower := strings.ToLower(ref)
	switch {
	case strings.HasSuffix(lower, ".tf"):
		return KindTerraformModule
	case strings.Contains(lower, "chart") && strings.HasSuffix(lower, ".yaml"):
		return KindHelmTemplate
	}

	switch {
	case strings.Contains(content, "AWSTemplateFormatVersion"):
		return KindCloudFormationTemplate
	case strings.Contains(content, `"Statement"`) && strings.Contains(content, `"Effect"`):
		return KindIAMPolicy
	case strings.Contains(content, "{{") && strings.Contains(content, ".Values."):
		return KindHelmTemplate
	case strings.Contains(content, "apiVersion:") && strings.Contains(content, "kind:"):
		return KindKubernetesManifest
	case strings.Contains(content, `resource "`) || strings.Contains(content, `provider "`):
		return KindTerraformModule
	}
	return KindUnknown
}
