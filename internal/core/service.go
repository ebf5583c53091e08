// Package core wires the schema engine to persistence and blob storage. The
// Service is the single entry point higher surfaces (forms, tables, import
// and export commands) talk to; it owns validation, projection, namespacing,
// and transaction boundaries so callers never touch the physical bag layout.
package core

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"rostercore/internal/engine"
	"rostercore/pkg/domain"
	"rostercore/pkg/schema"
)

// coreBirthDateKey is the only date-typed core attribute; the projector
// converts it between display and ISO representations.
const coreBirthDateKey = "birth_date"

// coreRelationKeys are the array-valued relationship attributes the bulk
// dispatcher normalizes to clean id lists.
var coreRelationKeys = []string{"parent_ids", "team_ids"}

// coreHeaderCandidates maps spreadsheet header spellings for core attributes
// to their internal keys. Dynamic field candidates come from the definition
// snapshot itself.
var coreHeaderCandidates = map[string]string{
	"first name": "first_name",
	"firstname":  "first_name",
	"last name":  "last_name",
	"lastname":   "last_name",
	"email":      "email",
	"phone":      "phone",
	"address":    "address",
	"birth date": coreBirthDateKey,
	"birthdate":  coreBirthDateKey,
}

// coreExportColumns pairs CSV header labels with core attribute keys, in
// export order.
var coreExportColumns = []struct {
	Header string
	Key    string
}{
	{"First Name", "first_name"},
	{"Last Name", "last_name"},
	{"Email", "email"},
	{"Phone", "phone"},
	{"Address", "address"},
	{"Birth Date", coreBirthDateKey},
}

// Compile-time assertion: the service is a valid bulk update target.
var _ engine.RecordUpdater = (*Service)(nil)

// Service exposes the dynamic-field operations on top of a persistent store.
type Service struct {
	store   domain.PersistentStore
	metrics MetricsRecorder
	tracer  Tracer
}

// ServiceOption customizes service construction.
type ServiceOption func(*Service)

// WithMetrics attaches a metrics recorder observing every operation.
func WithMetrics(rec MetricsRecorder) ServiceOption {
	return func(s *Service) { s.metrics = rec }
}

// WithTracer attaches a tracer spanning every operation.
func WithTracer(tr Tracer) ServiceOption {
	return func(s *Service) { s.tracer = tr }
}

// NewService constructs a service over the given store.
func NewService(store domain.PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// observe opens a span and returns a completion callback feeding both the
// tracer and the metrics recorder.
func (s *Service) observe(ctx context.Context, operation string) (context.Context, func(error)) {
	started := time.Now()
	var span TraceSpan
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, operation)
	}
	return ctx, func(err error) {
		if span != nil {
			span.End(err)
		}
		if s.metrics != nil {
			s.metrics.Observe(ctx, operation, err == nil, time.Since(started))
		}
	}
}

// DefineFields replaces the field definition snapshot for an organization and
// kind. The snapshot is replaced wholesale, never merged.
func (s *Service) DefineFields(ctx context.Context, orgID string, kind domain.EntityKind, defs []schema.FieldDefinition) error {
	ctx, done := s.observe(ctx, "define_fields")
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.PutFieldDefinitions(orgID, kind, defs)
	})
	done(err)
	return err
}

// SetFieldOrder replaces the explicit field ordering for a kind. Stale names
// are tolerated; every read reconciles the order against the live set.
func (s *Service) SetFieldOrder(ctx context.Context, orgID string, kind domain.EntityKind, order schema.FieldOrder) error {
	ctx, done := s.observe(ctx, "set_field_order")
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.PutFieldOrder(orgID, kind, order)
	})
	done(err)
	return err
}

// Fields returns the current definition snapshot for a kind.
func (s *Service) Fields(orgID string, kind domain.EntityKind) (schema.Set, error) {
	return s.fieldSet(orgID, kind)
}

// FieldColumns derives table column metadata for a kind, honoring the
// reconciled explicit order.
func (s *Service) FieldColumns(orgID string, kind domain.EntityKind) ([]schema.ColumnMeta, error) {
	set, err := s.fieldSet(orgID, kind)
	if err != nil {
		return nil, err
	}
	return schema.Columns(set, s.store.FieldOrder(orgID, kind)), nil
}

func (s *Service) fieldSet(orgID string, kind domain.EntityKind) (schema.Set, error) {
	set, err := schema.NewSet(s.store.FieldDefinitions(orgID, kind))
	if err != nil {
		return schema.Set{}, fmt.Errorf("field definitions for %s/%s: %w", orgID, kind, err)
	}
	return set, nil
}

func (s *Service) projectorFor(set schema.Set, kind domain.EntityKind) engine.Projector {
	return engine.NewProjector(set, kind, coreBirthDateKey)
}

// CreateRecord validates and persists a new kid or parent record from a flat
// form values object. Dynamic accessors are validated against the kind's
// snapshot, projected, and stored under the kind's namespace.
func (s *Service) CreateRecord(ctx context.Context, orgID string, kind domain.EntityKind, values map[string]any) (domain.Contact, error) {
	ctx, done := s.observe(ctx, "create_record")
	c, err := s.createRecord(ctx, orgID, kind, values)
	done(err)
	return c, err
}

func (s *Service) createRecord(ctx context.Context, orgID string, kind domain.EntityKind, values map[string]any) (domain.Contact, error) {
	if !kind.SharesContactRecord() {
		return domain.Contact{}, fmt.Errorf("kind %s does not host contact records", kind)
	}
	set, err := s.fieldSet(orgID, kind)
	if err != nil {
		return domain.Contact{}, err
	}
	if _, err := engine.NewValidator(set).Validate(dynamicValues(values)); err != nil {
		return domain.Contact{}, err
	}
	payload := s.projectorFor(set, kind).Submit(values)
	contact := domain.Contact{Kind: kind}
	contact.OrgID = orgID
	if err := applyCore(&contact, payload.Core); err != nil {
		return domain.Contact{}, err
	}
	// Explicit clears are meaningless on create; the merge drops them.
	contact.DynamicFields = domain.MergeNamespaced(nil, domain.NamespaceDynamicFields(payload.DynamicFields, kind))
	var created domain.Contact
	err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var txErr error
		created, txErr = tx.CreateContact(contact)
		return txErr
	})
	if err != nil {
		return domain.Contact{}, err
	}
	return created, nil
}

// UpdateRecord validates and applies a full form submission to an existing
// record. Nil dynamic values clear the stored key; other kinds' keys on the
// shared contact are untouched.
func (s *Service) UpdateRecord(ctx context.Context, orgID, id string, values map[string]any) (domain.Contact, error) {
	ctx, done := s.observe(ctx, "update_record")
	c, err := s.updateRecord(ctx, orgID, id, values)
	done(err)
	return c, err
}

func (s *Service) updateRecord(ctx context.Context, orgID, id string, values map[string]any) (domain.Contact, error) {
	existing, ok := s.store.GetContact(id)
	if !ok {
		return domain.Contact{}, domain.ErrNotFound{Kind: domain.KindContactRecord, ID: id}
	}
	set, err := s.fieldSet(orgID, existing.Kind)
	if err != nil {
		return domain.Contact{}, err
	}
	if _, err := engine.NewValidator(set).Validate(dynamicValues(values)); err != nil {
		return domain.Contact{}, err
	}
	payload := s.projectorFor(set, existing.Kind).Submit(values)
	var updated domain.Contact
	err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var txErr error
		updated, txErr = tx.UpdateContact(id, func(c *domain.Contact) error {
			if err := applyCore(c, payload.Core); err != nil {
				return err
			}
			c.DynamicFields = domain.MergeNamespaced(c.DynamicFields, domain.NamespaceDynamicFields(payload.DynamicFields, c.Kind))
			return nil
		})
		return txErr
	})
	if err != nil {
		return domain.Contact{}, err
	}
	return updated, nil
}

// Update applies one prepared patch to one record. It implements the bulk
// dispatcher's updater contract: the patch carries core attribute keys and an
// optional dynamicFields sub-object keyed by unprefixed field name.
func (s *Service) Update(ctx context.Context, id string, patch map[string]any) error {
	return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateContact(id, func(c *domain.Contact) error {
			core := make(map[string]any, len(patch))
			for key, value := range patch {
				if key == "dynamicFields" {
					continue
				}
				core[key] = value
			}
			if err := applyCore(c, core); err != nil {
				return err
			}
			if sub, ok := patch["dynamicFields"].(map[string]any); ok {
				c.DynamicFields = domain.MergeNamespaced(c.DynamicFields, domain.NamespaceDynamicFields(sub, c.Kind))
			}
			return nil
		})
		return err
	})
}

// DeleteRecord removes a contact record.
func (s *Service) DeleteRecord(ctx context.Context, id string) error {
	ctx, done := s.observe(ctx, "delete_record")
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeleteContact(id)
	})
	done(err)
	return err
}

// BulkSetField fans one field/value change out to the selected records. Calls
// are independent; partial failure leaves successful updates in place and is
// reported in the summary.
func (s *Service) BulkSetField(ctx context.Context, orgID string, kind domain.EntityKind, fieldKey string, value any, ids []string) (engine.BulkSummary, error) {
	ctx, done := s.observe(ctx, "bulk_set_field")
	set, err := s.fieldSet(orgID, kind)
	if err != nil {
		done(err)
		return engine.BulkSummary{}, err
	}
	dispatcher := engine.NewBulkDispatcher(s.projectorFor(set, kind), s, coreRelationKeys...)
	summary, err := dispatcher.Dispatch(ctx, fieldKey, value, ids)
	done(err)
	return summary, err
}

// ImportRecords reads a spreadsheet stream and creates one record per
// non-empty body row. Matched dynamic columns are validated like form input;
// unmatched columns are ignored.
func (s *Service) ImportRecords(ctx context.Context, orgID string, kind domain.EntityKind, r io.Reader) (engine.ImportSummary, error) {
	ctx, done := s.observe(ctx, "import_records")
	set, err := s.fieldSet(orgID, kind)
	if err != nil {
		done(err)
		return engine.ImportSummary{}, err
	}
	importer := engine.NewImporter(set, coreHeaderCandidates)
	summary, err := importer.Run(ctx, r, func(ctx context.Context, row map[string]any) error {
		values := make(map[string]any, len(row))
		for key, value := range row {
			if _, isDynamic := set.Lookup(key); isDynamic {
				values[engine.DynamicAccessorPrefix+key] = value
				continue
			}
			values[key] = value
		}
		_, err := s.createRecord(ctx, orgID, kind, values)
		return err
	})
	done(err)
	return summary, err
}

// SeedForm produces the values object an edit form is initialized with, plus
// the list of namespaced keys that no longer match a declared field. Drift is
// reported, never silently repaired.
func (s *Service) SeedForm(ctx context.Context, orgID, id string) (map[string]any, []string, error) {
	_, done := s.observe(ctx, "seed_form")
	contact, ok := s.store.GetContact(id)
	if !ok {
		err := domain.ErrNotFound{Kind: domain.KindContactRecord, ID: id}
		done(err)
		return nil, nil, err
	}
	set, err := s.fieldSet(orgID, contact.Kind)
	if err != nil {
		done(err)
		return nil, nil, err
	}
	projector := s.projectorFor(set, contact.Kind)
	values := projector.Seed(coreAttributes(contact), contact.DynamicFields)
	drift := projector.DriftKeys(contact.DynamicFields)
	done(nil)
	return values, drift, nil
}

// ExportCSV writes the organization's records of a kind as CSV: core columns
// first, then dynamic columns in the reconciled explicit order, headers taken
// from the same column metadata the table surface uses.
func (s *Service) ExportCSV(ctx context.Context, orgID string, kind domain.EntityKind, w io.Writer) error {
	_, done := s.observe(ctx, "export_csv")
	err := s.exportCSV(orgID, kind, w)
	done(err)
	return err
}

func (s *Service) exportCSV(orgID string, kind domain.EntityKind, w io.Writer) error {
	set, err := s.fieldSet(orgID, kind)
	if err != nil {
		return err
	}
	columns := schema.Columns(set, s.store.FieldOrder(orgID, kind))
	projector := s.projectorFor(set, kind)

	headers := make([]string, 0, len(coreExportColumns)+len(columns))
	for _, col := range coreExportColumns {
		headers = append(headers, col.Header)
	}
	for _, col := range columns {
		headers = append(headers, col.Header)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("write header row: %w", err)
	}
	for _, contact := range s.store.ListContacts(kind) {
		if contact.OrgID != orgID {
			continue
		}
		values := projector.Seed(coreAttributes(contact), contact.DynamicFields)
		record := make([]string, 0, len(headers))
		for _, col := range coreExportColumns {
			record = append(record, formatCell(values[col.Key]))
		}
		for _, col := range columns {
			record = append(record, formatCell(values[engine.DynamicAccessorPrefix+col.Key]))
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write record %s: %w", contact.ID, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// CreateForm persists a registration form after checking that its target kind
// hosts contact records and every referenced field name is declared.
func (s *Service) CreateForm(ctx context.Context, form domain.Form) (domain.Form, error) {
	ctx, done := s.observe(ctx, "create_form")
	created, err := s.createForm(ctx, form)
	done(err)
	return created, err
}

func (s *Service) createForm(ctx context.Context, form domain.Form) (domain.Form, error) {
	if !form.TargetKind.SharesContactRecord() {
		return domain.Form{}, fmt.Errorf("form target kind %s does not host contact records", form.TargetKind)
	}
	set, err := s.fieldSet(form.OrgID, form.TargetKind)
	if err != nil {
		return domain.Form{}, err
	}
	for _, name := range form.FieldNames {
		if _, ok := set.Lookup(name); !ok {
			return domain.Form{}, fmt.Errorf("form references undeclared field %s: %w", name, schema.ErrUnknownField)
		}
	}
	var created domain.Form
	err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var txErr error
		created, txErr = tx.CreateForm(form)
		return txErr
	})
	if err != nil {
		return domain.Form{}, err
	}
	return created, nil
}

// SetFormOpen toggles whether a form accepts submissions.
func (s *Service) SetFormOpen(ctx context.Context, id string, open bool) error {
	ctx, done := s.observe(ctx, "set_form_open")
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, txErr := tx.UpdateForm(id, func(f *domain.Form) error {
			f.Open = open
			return nil
		})
		return txErr
	})
	done(err)
	return err
}

// CreateTeam persists a team record.
func (s *Service) CreateTeam(ctx context.Context, team domain.Team) (domain.Team, error) {
	ctx, done := s.observe(ctx, "create_team")
	var created domain.Team
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var txErr error
		created, txErr = tx.CreateTeam(team)
		return txErr
	})
	done(err)
	if err != nil {
		return domain.Team{}, err
	}
	return created, nil
}

// AssignTeamMembers replaces a team's member list, verifying each member
// exists.
func (s *Service) AssignTeamMembers(ctx context.Context, teamID string, memberIDs []string) error {
	ctx, done := s.observe(ctx, "assign_team_members")
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		for _, id := range memberIDs {
			if _, ok := tx.FindContact(id); !ok {
				return domain.ErrNotFound{Kind: domain.KindContactRecord, ID: id}
			}
		}
		_, txErr := tx.UpdateTeam(teamID, func(t *domain.Team) error {
			t.MemberIDs = append([]string(nil), memberIDs...)
			return nil
		})
		return txErr
	})
	done(err)
	return err
}

// CreateAccount persists a staff account record.
func (s *Service) CreateAccount(ctx context.Context, account domain.Account) (domain.Account, error) {
	ctx, done := s.observe(ctx, "create_account")
	var created domain.Account
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var txErr error
		created, txErr = tx.CreateAccount(account)
		return txErr
	})
	done(err)
	if err != nil {
		return domain.Account{}, err
	}
	return created, nil
}

// NewUploadOrchestrator builds the upload state machine for one form
// instance backed by the given storage capability.
func (s *Service) NewUploadOrchestrator(storage engine.UploadStorage, previews engine.PreviewFactory) *engine.UploadOrchestrator {
	return engine.NewUploadOrchestrator(storage, previews)
}

// dynamicValues extracts the dynamic sub-object of a flat values map keyed by
// unprefixed field name, skipping malformed accessor paths.
func dynamicValues(values map[string]any) map[string]any {
	out := make(map[string]any)
	for key, value := range values {
		name, ok := engine.DynamicFieldName(key)
		if !ok {
			continue
		}
		out[name] = value
	}
	return out
}

// applyCore merges core attribute keys onto a contact through its JSON field
// tags, so the values object and the persisted record share one naming
// contract.
func applyCore(c *domain.Contact, core map[string]any) error {
	if len(core) == 0 {
		return nil
	}
	payload, err := json.Marshal(core)
	if err != nil {
		return fmt.Errorf("encode core attributes: %w", err)
	}
	if err := json.Unmarshal(payload, c); err != nil {
		return fmt.Errorf("apply core attributes: %w", err)
	}
	return nil
}

// coreAttributes flattens a contact's core fields to the map shape the
// projector seeds from. The physical dynamic bag is excluded; the projector
// receives it separately.
func coreAttributes(c domain.Contact) map[string]any {
	payload, err := json.Marshal(c)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil
	}
	delete(out, "dynamic_fields")
	return out
}

// formatCell renders one seeded value as a CSV cell. Lists join with a comma
// so multi-selects stay single-cell.
func formatCell(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		out := ""
		for i, item := range v {
			if i > 0 {
				out += ", "
			}
			out += item
		}
		return out
	case []any:
		out := ""
		for i, item := range v {
			if i > 0 {
				out += ", "
			}
			out += formatCell(item)
		}
		return out
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
