package domain

import (
	"context"
	"fmt"

	"rostercore/pkg/schema"
)

// ErrNotFound is returned when a referenced record does not exist.
type ErrNotFound struct {
	Kind EntityKind
	ID   string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	CreateContact(Contact) (Contact, error)
	UpdateContact(id string, mutator func(*Contact) error) (Contact, error)
	DeleteContact(id string) error
	CreateAccount(Account) (Account, error)
	UpdateAccount(id string, mutator func(*Account) error) (Account, error)
	DeleteAccount(id string) error
	CreateForm(Form) (Form, error)
	UpdateForm(id string, mutator func(*Form) error) (Form, error)
	DeleteForm(id string) error
	CreateTeam(Team) (Team, error)
	UpdateTeam(id string, mutator func(*Team) error) (Team, error)
	DeleteTeam(id string) error
	FindContact(id string) (Contact, bool)
	FindTeam(id string) (Team, bool)
	// PutFieldDefinitions replaces the definition snapshot for an
	// organization and kind. The snapshot is fully replaced, never merged,
	// since a field may have been removed or retyped.
	PutFieldDefinitions(orgID string, kind EntityKind, defs []schema.FieldDefinition) error
	// PutFieldOrder replaces the explicit field ordering for a kind.
	PutFieldOrder(orgID string, kind EntityKind, order schema.FieldOrder) error
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	ListContacts(kind EntityKind) []Contact
	FindContact(id string) (Contact, bool)
	ListTeams() []Team
	FieldDefinitions(orgID string, kind EntityKind) []schema.FieldDefinition
	FieldOrder(orgID string, kind EntityKind) schema.FieldOrder
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) error
	View(ctx context.Context, fn func(TransactionView) error) error
	GetContact(id string) (Contact, bool)
	ListContacts(kind EntityKind) []Contact
	GetAccount(id string) (Account, bool)
	ListAccounts() []Account
	GetForm(id string) (Form, bool)
	ListForms() []Form
	GetTeam(id string) (Team, bool)
	ListTeams() []Team
	FieldDefinitions(orgID string, kind EntityKind) []schema.FieldDefinition
	FieldOrder(orgID string, kind EntityKind) schema.FieldOrder
}
