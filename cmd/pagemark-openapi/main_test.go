package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestGenerate_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := generate(&buf, "https://pagemark.example.com", false); err != nil {
		t.Fatalf("generate() error = %v", err)
	}

	var doc struct {
		OpenAPI string                    `json:"openapi"`
		Servers []struct{ URL string }    `json:"servers"`
		Paths   map[string]map[string]any `json:"paths"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}

	if !strings.HasPrefix(doc.OpenAPI, "3.") {
		t.Errorf("openapi = %q", doc.OpenAPI)
	}
	if len(doc.Servers) != 1 || doc.Servers[0].URL != "https://pagemark.example.com" {
		t.Errorf("servers = %+v", doc.Servers)
	}
	for _, p := range []string{"/api/extract", "/api/convert-docx", "/api/config", "/api/v1/health", "/api/v1/exports"} {
		if _, ok := doc.Paths[p]; !ok {
			t.Errorf("missing path %s", p)
		}
	}
	if _, ok := doc.Paths["/healthz"]; ok {
		t.Error("/healthz should be hidden")
	}
}

func TestGenerate_YAML(t *testing.T) {
	var buf bytes.Buffer
	if err := generate(&buf, "", true); err != nil {
		t.Fatalf("generate() error = %v", err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not YAML: %v", err)
	}
	if _, ok := doc["paths"]; !ok {
		t.Error("expected paths in YAML output")
	}
}
