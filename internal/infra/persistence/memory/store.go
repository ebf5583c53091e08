// Package memory provides an in-memory implementation of the core
// persistence store used for tests and ephemeral environments. The durable
// backends reuse it for transaction semantics and snapshot after commit.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"rostercore/pkg/domain"
	"rostercore/pkg/schema"
)

// Compile-time contract assertion ensuring the store satisfies the domain
// persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type memoryState struct {
	contacts    map[string]domain.Contact
	accounts    map[string]domain.Account
	forms       map[string]domain.Form
	teams       map[string]domain.Team
	fieldDefs   map[string][]schema.FieldDefinition
	fieldOrders map[string]schema.FieldOrder
}

// Snapshot captures a point-in-time clone of the store state for durable
// backends.
type Snapshot struct {
	Contacts    map[string]domain.Contact           `json:"contacts"`
	Accounts    map[string]domain.Account           `json:"accounts"`
	Forms       map[string]domain.Form              `json:"forms"`
	Teams       map[string]domain.Team              `json:"teams"`
	FieldDefs   map[string][]schema.FieldDefinition `json:"field_definitions"`
	FieldOrders map[string]schema.FieldOrder        `json:"field_orders"`
}

func newMemoryState() memoryState {
	return memoryState{
		contacts:    make(map[string]domain.Contact),
		accounts:    make(map[string]domain.Account),
		forms:       make(map[string]domain.Form),
		teams:       make(map[string]domain.Team),
		fieldDefs:   make(map[string][]schema.FieldDefinition),
		fieldOrders: make(map[string]schema.FieldOrder),
	}
}

// defsKey scopes definition snapshots to an (organization, kind) pair.
func defsKey(orgID string, kind domain.EntityKind) string {
	return orgID + "/" + string(kind)
}

// Store is the in-memory persistence implementation.
type Store struct {
	mu    sync.RWMutex
	state memoryState
	now   func() time.Time
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{state: newMemoryState(), now: func() time.Time { return time.Now().UTC() }}
}

// cloneState deep-copies the state through JSON so staged transactions never
// alias committed maps or slices.
func cloneState(state memoryState) (memoryState, error) {
	data, err := json.Marshal(snapshotFromState(state))
	if err != nil {
		return memoryState{}, fmt.Errorf("clone state: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return memoryState{}, fmt.Errorf("clone state: %w", err)
	}
	return stateFromSnapshot(snap), nil
}

func snapshotFromState(state memoryState) Snapshot {
	snap := Snapshot{
		Contacts:    make(map[string]domain.Contact, len(state.contacts)),
		Accounts:    make(map[string]domain.Account, len(state.accounts)),
		Forms:       make(map[string]domain.Form, len(state.forms)),
		Teams:       make(map[string]domain.Team, len(state.teams)),
		FieldDefs:   make(map[string][]schema.FieldDefinition, len(state.fieldDefs)),
		FieldOrders: make(map[string]schema.FieldOrder, len(state.fieldOrders)),
	}
	for id, c := range state.contacts {
		snap.Contacts[id] = c
	}
	for id, a := range state.accounts {
		snap.Accounts[id] = a
	}
	for id, f := range state.forms {
		snap.Forms[id] = f
	}
	for id, t := range state.teams {
		snap.Teams[id] = t
	}
	for key, defs := range state.fieldDefs {
		snap.FieldDefs[key] = defs
	}
	for key, order := range state.fieldOrders {
		snap.FieldOrders[key] = order
	}
	return snap
}

func stateFromSnapshot(snap Snapshot) memoryState {
	state := newMemoryState()
	for id, c := range snap.Contacts {
		state.contacts[id] = c
	}
	for id, a := range snap.Accounts {
		state.accounts[id] = a
	}
	for id, f := range snap.Forms {
		state.forms[id] = f
	}
	for id, t := range snap.Teams {
		state.teams[id] = t
	}
	for key, defs := range snap.FieldDefs {
		state.fieldDefs[key] = defs
	}
	for key, order := range snap.FieldOrders {
		state.fieldOrders[key] = order
	}
	return state
}

// ExportState returns a deep snapshot of the committed state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cloned, err := cloneState(s.state)
	if err != nil {
		panic(err)
	}
	return snapshotFromState(cloned)
}

// ImportState replaces the committed state with the snapshot contents.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateFromSnapshot(snap)
}

// RunInTransaction stages a deep copy of the state, applies fn, and commits
// the staged copy only when fn succeeds.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	staged, err := cloneState(s.state)
	if err != nil {
		return err
	}
	tx := &transaction{state: &staged, now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = staged
	return nil
}

// View runs fn against a read-only view of the committed state.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&view{state: &s.state})
}

// GetContact returns a contact by id.
func (s *Store) GetContact(id string) (domain.Contact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.contacts[id]
	return c, ok
}

// ListContacts returns contacts of the kind sorted by id. An empty kind
// lists every contact.
func (s *Store) ListContacts(kind domain.EntityKind) []domain.Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listContacts(&s.state, kind)
}

// GetAccount returns an account by id.
func (s *Store) GetAccount(id string) (domain.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.accounts[id]
	return a, ok
}

// ListAccounts returns all accounts sorted by id.
func (s *Store) ListAccounts() []domain.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Account, 0, len(s.state.accounts))
	for _, a := range s.state.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetForm returns a form by id.
func (s *Store) GetForm(id string) (domain.Form, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.state.forms[id]
	return f, ok
}

// ListForms returns all forms sorted by id.
func (s *Store) ListForms() []domain.Form {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Form, 0, len(s.state.forms))
	for _, f := range s.state.forms {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetTeam returns a team by id.
func (s *Store) GetTeam(id string) (domain.Team, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.state.teams[id]
	return t, ok
}

// ListTeams returns all teams sorted by id.
func (s *Store) ListTeams() []domain.Team {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listTeams(&s.state)
}

// FieldDefinitions returns the definition snapshot for an (org, kind) pair.
func (s *Store) FieldDefinitions(orgID string, kind domain.EntityKind) []schema.FieldDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyDefs(s.state.fieldDefs[defsKey(orgID, kind)])
}

// FieldOrder returns the explicit ordering stored for an (org, kind) pair.
func (s *Store) FieldOrder(orgID string, kind domain.EntityKind) schema.FieldOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(schema.FieldOrder(nil), s.state.fieldOrders[defsKey(orgID, kind)]...)
}

func listContacts(state *memoryState, kind domain.EntityKind) []domain.Contact {
	out := make([]domain.Contact, 0, len(state.contacts))
	for _, c := range state.contacts {
		if kind != "" && c.Kind != kind {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func listTeams(state *memoryState) []domain.Team {
	out := make([]domain.Team, 0, len(state.teams))
	for _, t := range state.teams {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func copyDefs(defs []schema.FieldDefinition) []schema.FieldDefinition {
	if defs == nil {
		return nil
	}
	return append([]schema.FieldDefinition(nil), defs...)
}

type view struct {
	state *memoryState
}

func (v *view) ListContacts(kind domain.EntityKind) []domain.Contact {
	return listContacts(v.state, kind)
}

func (v *view) FindContact(id string) (domain.Contact, bool) {
	c, ok := v.state.contacts[id]
	return c, ok
}

func (v *view) ListTeams() []domain.Team {
	return listTeams(v.state)
}

func (v *view) FieldDefinitions(orgID string, kind domain.EntityKind) []schema.FieldDefinition {
	return copyDefs(v.state.fieldDefs[defsKey(orgID, kind)])
}

func (v *view) FieldOrder(orgID string, kind domain.EntityKind) schema.FieldOrder {
	return append(schema.FieldOrder(nil), v.state.fieldOrders[defsKey(orgID, kind)]...)
}

type transaction struct {
	state *memoryState
	now   func() time.Time
}

func (t *transaction) stamp(base *domain.Base) {
	ts := t.now()
	if base.ID == "" {
		base.ID = uuid.NewString()
	}
	if base.CreatedAt.IsZero() {
		base.CreatedAt = ts
	}
	base.UpdatedAt = ts
}

// CreateContact persists a new contact record.
func (t *transaction) CreateContact(c domain.Contact) (domain.Contact, error) {
	if !c.Kind.SharesContactRecord() {
		return domain.Contact{}, fmt.Errorf("contact kind must be kid or parent, got %q", c.Kind)
	}
	t.stamp(&c.Base)
	if _, exists := t.state.contacts[c.ID]; exists {
		return domain.Contact{}, fmt.Errorf("contact %s already exists", c.ID)
	}
	t.state.contacts[c.ID] = c
	return c, nil
}

// UpdateContact mutates a contact through the supplied mutator.
func (t *transaction) UpdateContact(id string, mutator func(*domain.Contact) error) (domain.Contact, error) {
	c, ok := t.state.contacts[id]
	if !ok {
		return domain.Contact{}, domain.ErrNotFound{Kind: domain.KindContactRecord, ID: id}
	}
	if err := mutator(&c); err != nil {
		return domain.Contact{}, err
	}
	c.ID = id
	c.UpdatedAt = t.now()
	t.state.contacts[id] = c
	return c, nil
}

// DeleteContact removes a contact record.
func (t *transaction) DeleteContact(id string) error {
	if _, ok := t.state.contacts[id]; !ok {
		return domain.ErrNotFound{Kind: domain.KindContactRecord, ID: id}
	}
	delete(t.state.contacts, id)
	return nil
}

// CreateAccount persists a new account record.
func (t *transaction) CreateAccount(a domain.Account) (domain.Account, error) {
	t.stamp(&a.Base)
	if _, exists := t.state.accounts[a.ID]; exists {
		return domain.Account{}, fmt.Errorf("account %s already exists", a.ID)
	}
	t.state.accounts[a.ID] = a
	return a, nil
}

// UpdateAccount mutates an account through the supplied mutator.
func (t *transaction) UpdateAccount(id string, mutator func(*domain.Account) error) (domain.Account, error) {
	a, ok := t.state.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrNotFound{Kind: domain.KindAccount, ID: id}
	}
	if err := mutator(&a); err != nil {
		return domain.Account{}, err
	}
	a.ID = id
	a.UpdatedAt = t.now()
	t.state.accounts[id] = a
	return a, nil
}

// DeleteAccount removes an account record.
func (t *transaction) DeleteAccount(id string) error {
	if _, ok := t.state.accounts[id]; !ok {
		return domain.ErrNotFound{Kind: domain.KindAccount, ID: id}
	}
	delete(t.state.accounts, id)
	return nil
}

// CreateForm persists a new form record.
func (t *transaction) CreateForm(f domain.Form) (domain.Form, error) {
	if f.TargetKind != "" && !domain.IsKnownKind(f.TargetKind) {
		return domain.Form{}, fmt.Errorf("form target kind %q unknown", f.TargetKind)
	}
	t.stamp(&f.Base)
	if _, exists := t.state.forms[f.ID]; exists {
		return domain.Form{}, fmt.Errorf("form %s already exists", f.ID)
	}
	t.state.forms[f.ID] = f
	return f, nil
}

// UpdateForm mutates a form through the supplied mutator.
func (t *transaction) UpdateForm(id string, mutator func(*domain.Form) error) (domain.Form, error) {
	f, ok := t.state.forms[id]
	if !ok {
		return domain.Form{}, domain.ErrNotFound{Kind: domain.KindForm, ID: id}
	}
	if err := mutator(&f); err != nil {
		return domain.Form{}, err
	}
	f.ID = id
	f.UpdatedAt = t.now()
	t.state.forms[id] = f
	return f, nil
}

// DeleteForm removes a form record.
func (t *transaction) DeleteForm(id string) error {
	if _, ok := t.state.forms[id]; !ok {
		return domain.ErrNotFound{Kind: domain.KindForm, ID: id}
	}
	delete(t.state.forms, id)
	return nil
}

// CreateTeam persists a new team record.
func (t *transaction) CreateTeam(team domain.Team) (domain.Team, error) {
	t.stamp(&team.Base)
	if _, exists := t.state.teams[team.ID]; exists {
		return domain.Team{}, fmt.Errorf("team %s already exists", team.ID)
	}
	t.state.teams[team.ID] = team
	return team, nil
}

// UpdateTeam mutates a team through the supplied mutator.
func (t *transaction) UpdateTeam(id string, mutator func(*domain.Team) error) (domain.Team, error) {
	team, ok := t.state.teams[id]
	if !ok {
		return domain.Team{}, domain.ErrNotFound{Kind: domain.KindTeam, ID: id}
	}
	if err := mutator(&team); err != nil {
		return domain.Team{}, err
	}
	team.ID = id
	team.UpdatedAt = t.now()
	t.state.teams[id] = team
	return team, nil
}

// DeleteTeam removes a team record.
func (t *transaction) DeleteTeam(id string) error {
	if _, ok := t.state.teams[id]; !ok {
		return domain.ErrNotFound{Kind: domain.KindTeam, ID: id}
	}
	delete(t.state.teams, id)
	return nil
}

// FindContact returns a contact from the staged state.
func (t *transaction) FindContact(id string) (domain.Contact, bool) {
	c, ok := t.state.contacts[id]
	return c, ok
}

// FindTeam returns a team from the staged state.
func (t *transaction) FindTeam(id string) (domain.Team, bool) {
	team, ok := t.state.teams[id]
	return team, ok
}

// PutFieldDefinitions replaces the definition snapshot for an (org, kind)
// pair after validating it. The snapshot is replaced wholesale; merging is
// the configuration surface's concern, not the store's.
func (t *transaction) PutFieldDefinitions(orgID string, kind domain.EntityKind, defs []schema.FieldDefinition) error {
	if !domain.IsKnownKind(kind) {
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	if _, err := schema.NewSet(defs); err != nil {
		return fmt.Errorf("field definitions for %s/%s: %w", orgID, kind, err)
	}
	t.state.fieldDefs[defsKey(orgID, kind)] = copyDefs(defs)
	return nil
}

// PutFieldOrder replaces the explicit ordering for an (org, kind) pair.
func (t *transaction) PutFieldOrder(orgID string, kind domain.EntityKind, order schema.FieldOrder) error {
	if !domain.IsKnownKind(kind) {
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	t.state.fieldOrders[defsKey(orgID, kind)] = append(schema.FieldOrder(nil), order...)
	return nil
}
