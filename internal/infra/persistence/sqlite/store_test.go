package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"rostercore/pkg/domain"
	"rostercore/pkg/schema"
)

func TestSnapshotSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	var id string
	err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		c := domain.Contact{Kind: domain.KindKid, FirstName: "Noa"}
		c.OrgID = "org1"
		c.DynamicFields = map[string]any{"kid__shirtSize": "M"}
		created, txErr := tx.CreateContact(c)
		if txErr != nil {
			return txErr
		}
		id = created.ID
		if txErr := tx.PutFieldDefinitions("org1", domain.KindKid, []schema.FieldDefinition{
			{Name: "shirtSize", Label: "Shirt Size", Type: schema.TypeSelect, Choices: []string{"S", "M"}},
		}); txErr != nil {
			return txErr
		}
		return tx.PutFieldOrder("org1", domain.KindKid, schema.FieldOrder{"shirtSize"})
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	got, ok := reopened.GetContact(id)
	if !ok || got.FirstName != "Noa" {
		t.Fatalf("contact not restored: %+v, %v", got, ok)
	}
	if got.DynamicFields["kid__shirtSize"] != "M" {
		t.Fatalf("dynamic bag not restored: %v", got.DynamicFields)
	}
	if defs := reopened.FieldDefinitions("org1", domain.KindKid); len(defs) != 1 || defs[0].Name != "shirtSize" {
		t.Fatalf("definitions not restored: %v", defs)
	}
	if order := reopened.FieldOrder("org1", domain.KindKid); len(order) != 1 || order[0] != "shirtSize" {
		t.Fatalf("order not restored: %v", order)
	}
}

func TestFailedTransactionDoesNotPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer func() { _ = store.Close() }()
	err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, txErr := tx.CreateContact(domain.Contact{Kind: domain.KindKid}); txErr != nil {
			return txErr
		}
		return context.Canceled
	})
	if err == nil {
		t.Fatalf("expected failure")
	}
	if contacts := store.ListContacts(domain.KindKid); len(contacts) != 0 {
		t.Fatalf("failed transaction persisted: %v", contacts)
	}
}
