package artifact

import "testing"

func TestNew_HashesContent(t *testing.T) {
	a := New("deploy.yaml", KindKubernetesManifest, []byte("apiVersion: v1\nkind: Pod\n"))
	b := New("deploy.yaml", KindKubernetesManifest, []byte("apiVersion: v1\nkind: Pod\n"))
	if a.SHA256 == "" || a.SHA256 != b.SHA256 {
		t.Errorf("identical content must hash identically, got %q vs %q", a.SHA256, b.SHA256)
	}

	c := New("deploy.yaml", KindKubernetesManifest, []byte("apiVersion: v1\nkind: Service\n"))
	if c.SHA256 == a.SHA256 {
		t.Error("different content must not collide")
	}
}

func TestDetectKind(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		content string
		want    Kind
	}{
		{"k8s manifest", "pod.yaml", "apiVersion: v1\nkind: Pod\nmetadata: {}\n", KindKubernetesManifest},
		{"iam policy", "policy.json", `{"Version":"2012-10-17","Statement":[{"Effect":"Allow"}]}`, KindIAMPolicy},
		{"terraform by extension", "main.tf", "variable \"region\" {}\n", KindTerraformModule},
		{"terraform by content", "main.hcl", `resource "aws_s3_bucket" "b" {}`, KindTerraformModule},
		{"cloudformation", "stack.yaml", "AWSTemplateFormatVersion: '2010-09-09'\n", KindCloudFormationTemplate},
		{"helm template", "deployment.yaml", "image: {{ .Values.image }}\n", KindHelmTemplate},
		{"opaque", "blob.txt", "hello", KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectKind(tt.ref, tt.content); got != tt.want {
				t.Errorf("DetectKind() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPolicyKey(t *testing.T) {
	p := PolicyContext{ID: "cis-k8s", Version: "v3"}
	if got := p.Key(); got != "cis-k8s@v3" {
		t.Errorf("Key() = %q", got)
	}
	p.Version = ""
	if got := p.Key(); got != "cis-k8s" {
		t.Errorf("Key() without version = %q", got)
	}
}
