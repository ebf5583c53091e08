package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeRegistry(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fields.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write registry: %v", err)
	}
	// cli rejects absolute paths, so run relative to the temp dir.
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return "fields.json"
}

const validRegistry = `{
  "organizations": [
    {
      "org_id": "org1",
      "kinds": [
        {
          "kind": "kid",
          "fields": [
            {"name": "shirtSize", "label": "Shirt Size", "type": "SELECT", "choices": ["S", "M"]},
            {"name": "fee", "label": "Fee", "type": "MONEY", "default_value": 50}
          ],
          "order": ["fee", "shirtSize"]
        }
      ]
    }
  ]
}`

func TestCLIPassesOnValidRegistry(t *testing.T) {
	path := writeRegistry(t, validRegistry)
	var stdout, stderr bytes.Buffer
	if code := cli([]string{"-registry", path}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "Schema validation passed.") {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestCLIFailures(t *testing.T) {
	cases := []struct {
		name     string
		registry string
		wantMsg  string
	}{
		{
			"duplicate field names",
			`{"organizations":[{"org_id":"o","kinds":[{"kind":"kid","fields":[
				{"name":"a","label":"A","type":"TEXT"},
				{"name":"a","label":"B","type":"TEXT"}]}]}]}`,
			"duplicate field name",
		},
		{
			"select without choices",
			`{"organizations":[{"org_id":"o","kinds":[{"kind":"kid","fields":[
				{"name":"a","label":"A","type":"SELECT"}]}]}]}`,
			"non-empty choice list",
		},
		{
			"unknown type tag",
			`{"organizations":[{"org_id":"o","kinds":[{"kind":"kid","fields":[
				{"name":"a","label":"A","type":"RATING"}]}]}]}`,
			"unknown type",
		},
		{
			"unknown kind",
			`{"organizations":[{"org_id":"o","kinds":[{"kind":"gadget","fields":[
				{"name":"a","label":"A","type":"TEXT"}]}]}]}`,
			"unknown kind",
		},
		{
			"order references undeclared field",
			`{"organizations":[{"org_id":"o","kinds":[{"kind":"kid","fields":[
				{"name":"a","label":"A","type":"TEXT"}],"order":["b"]}]}]}`,
			"order references undeclared field",
		},
		{
			"default fails type rule",
			`{"organizations":[{"org_id":"o","kinds":[{"kind":"kid","fields":[
				{"name":"fee","label":"Fee","type":"MONEY","default_value":-5}]}]}]}`,
			"default value",
		},
		{
			"duplicate kind",
			`{"organizations":[{"org_id":"o","kinds":[
				{"kind":"kid","fields":[{"name":"a","label":"A","type":"TEXT"}]},
				{"kind":"kid","fields":[{"name":"b","label":"B","type":"TEXT"}]}]}]}`,
			"duplicate kind",
		},
		{
			"missing org id",
			`{"organizations":[{"kinds":[{"kind":"kid","fields":[]}]}]}`,
			"missing org_id",
		},
		{
			"empty organizations",
			`{"organizations":[]}`,
			"organizations entry is empty",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeRegistry(t, tc.registry)
			var stdout, stderr bytes.Buffer
			if code := cli([]string{"-registry", path}, &stdout, &stderr); code != 1 {
				t.Fatalf("exit code = %d, want 1", code)
			}
			if !strings.Contains(stderr.String(), tc.wantMsg) {
				t.Fatalf("stderr = %q, want containing %q", stderr.String(), tc.wantMsg)
			}
		})
	}
}

func TestCLIRejectsBadPaths(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := cli([]string{"-registry", "/etc/passwd"}, &stdout, &stderr); code != 1 {
		t.Fatalf("absolute path exit code = %d", code)
	}
	if code := cli([]string{"-registry", "../escape.json"}, &stdout, &stderr); code != 1 {
		t.Fatalf("traversal path exit code = %d", code)
	}
	if code := cli([]string{"-bogusflag"}, &stdout, &stderr); code != 2 {
		t.Fatalf("flag error exit code = %d", code)
	}
}
