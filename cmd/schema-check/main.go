// Command schema-check validates a field definition registry file: per-kind
// definition lists are checked for name uniqueness, known type tags, choice
// lists on select types, and defaults that satisfy their own type rule.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"rostercore/pkg/domain"
	"rostercore/pkg/schema"
)

// Registry is the on-disk shape of a field definition registry.
type Registry struct {
	Organizations []Organization `json:"organizations"`
}

// Organization groups per-kind definition snapshots for one tenant.
type Organization struct {
	OrgID string      `json:"org_id"`
	Kinds []KindEntry `json:"kinds"`
}

// KindEntry declares the fields and optional explicit order for one kind.
type KindEntry struct {
	Kind   domain.EntityKind        `json:"kind"`
	Fields []schema.FieldDefinition `json:"fields"`
	Order  []string                 `json:"order,omitempty"`
}

var exitFunc = os.Exit

// main runs the command-line interface using the program arguments and exits
// the process with the status code returned by cli.
func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("schema-check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var registryPath string
	fs.StringVar(&registryPath, "registry", "fields.json", "path to field definition registry json")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := run(registryPath); err != nil {
		if _, writeErr := fmt.Fprintf(stderr, "Schema validation failed: %v\n", err); writeErr != nil {
			return 1
		}
		return 1
	}
	if _, writeErr := fmt.Fprintln(stdout, "Schema validation passed."); writeErr != nil {
		return 1
	}
	return 0
}

// validatePath ensures the registry file path stays within the working tree
// and is not an absolute or path-traversing reference.
func validatePath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(p) {
		return "", fmt.Errorf("absolute paths not allowed: %s", p)
	}
	clean := filepath.Clean(p)
	if strings.Contains(clean, "..") {
		return "", fmt.Errorf("path traversal not allowed: %s", p)
	}
	return clean, nil
}

func run(registryPath string) error {
	safePath, err := validatePath(registryPath)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(safePath) // #nosec G304: path validated by validatePath
	if err != nil {
		return fmt.Errorf("read registry: %w", err)
	}
	var registry Registry
	if err := json.Unmarshal(data, &registry); err != nil {
		return fmt.Errorf("parse registry: %w", err)
	}
	if len(registry.Organizations) == 0 {
		return fmt.Errorf("organizations entry is empty")
	}
	for i, org := range registry.Organizations {
		if err := validateOrganization(org); err != nil {
			return fmt.Errorf("organizations[%d]: %w", i, err)
		}
	}
	return nil
}

func validateOrganization(org Organization) error {
	if strings.TrimSpace(org.OrgID) == "" {
		return fmt.Errorf("missing org_id")
	}
	if len(org.Kinds) == 0 {
		return fmt.Errorf("%s: kinds entry is empty", org.OrgID)
	}
	seen := make(map[domain.EntityKind]bool, len(org.Kinds))
	for _, entry := range org.Kinds {
		if err := validateKindEntry(entry); err != nil {
			return fmt.Errorf("%s/%s: %w", org.OrgID, entry.Kind, err)
		}
		if seen[entry.Kind] {
			return fmt.Errorf("%s: duplicate kind %s", org.OrgID, entry.Kind)
		}
		seen[entry.Kind] = true
	}
	return nil
}

func validateKindEntry(entry KindEntry) error {
	if !domain.IsKnownKind(entry.Kind) {
		return fmt.Errorf("unknown kind %q", entry.Kind)
	}
	set, err := schema.NewSet(entry.Fields)
	if err != nil {
		return err
	}
	for _, def := range set.Ordered() {
		if err := validateDefault(def); err != nil {
			return err
		}
	}
	for _, name := range entry.Order {
		if _, ok := set.Lookup(name); !ok {
			return fmt.Errorf("order references undeclared field %s", name)
		}
	}
	return nil
}

// validateDefault checks that a declared default, once coerced, satisfies the
// field's own type rule. An empty default is always acceptable; the engine
// simply skips it when seeding.
func validateDefault(def schema.FieldDefinition) error {
	if def.DefaultValue == nil {
		return nil
	}
	spec := def.Spec()
	coerced := spec.Coerce(def.DefaultValue)
	if spec.IsEmpty(coerced) {
		return nil
	}
	if err := spec.CheckRequired(coerced); err != nil {
		return fmt.Errorf("field %s: default value %v", def.Name, err)
	}
	return nil
}
