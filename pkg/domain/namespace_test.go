package domain

import (
	"testing"
)

func TestNamespaceRoundTrip(t *testing.T) {
	bag := map[string]any{"shirtSize": "M", "allergies": []string{"nuts"}}
	physical := NamespaceDynamicFields(bag, KindKid)
	if len(physical) != 2 {
		t.Fatalf("namespaced bag = %v", physical)
	}
	if _, ok := physical["kid__shirtSize"]; !ok {
		t.Fatalf("missing prefixed key in %v", physical)
	}
	back := DenamespaceDynamicFields(physical, KindKid)
	if back["shirtSize"] != "M" {
		t.Fatalf("round trip lost shirtSize: %v", back)
	}
}

func TestNamespaceEmptyBagYieldsNil(t *testing.T) {
	if got := NamespaceDynamicFields(nil, KindKid); got != nil {
		t.Fatalf("nil bag should namespace to nil, got %v", got)
	}
	if got := NamespaceDynamicFields(map[string]any{}, KindParent); got != nil {
		t.Fatalf("empty bag should namespace to nil, got %v", got)
	}
}

func TestDenamespaceDropsForeignKinds(t *testing.T) {
	physical := map[string]any{
		"kid__shirtSize":    "M",
		"parent__phone":     "050",
		"kid__":             "dangling",
		"unprefixed":        "x",
		"account__internal": true,
	}
	kid := DenamespaceDynamicFields(physical, KindKid)
	if len(kid) != 1 || kid["shirtSize"] != "M" {
		t.Fatalf("kid view = %v, want only shirtSize", kid)
	}
	parent := DenamespaceDynamicFields(physical, KindParent)
	if len(parent) != 1 || parent["phone"] != "050" {
		t.Fatalf("parent view = %v, want only phone", parent)
	}
	if got := DenamespaceDynamicFields(nil, KindKid); got == nil || len(got) != 0 {
		t.Fatalf("absent bag should yield empty map, got %v", got)
	}
}

func TestSharedContactIsolation(t *testing.T) {
	// Writing one kind's fields must not disturb the other kind's keys on the
	// shared record.
	existing := NamespaceDynamicFields(map[string]any{"phone": "050"}, KindParent)
	update := NamespaceDynamicFields(map[string]any{"shirtSize": "L"}, KindKid)
	merged := MergeNamespaced(existing, update)
	if merged["parent__phone"] != "050" || merged["kid__shirtSize"] != "L" {
		t.Fatalf("merged = %v", merged)
	}
}

func TestMergeNamespacedNilClears(t *testing.T) {
	existing := map[string]any{"kid__shirtSize": "M", "kid__nickname": "Dave"}
	merged := MergeNamespaced(existing, map[string]any{"kid__shirtSize": nil})
	if _, ok := merged["kid__shirtSize"]; ok {
		t.Fatalf("nil update should clear the key: %v", merged)
	}
	if merged["kid__nickname"] != "Dave" {
		t.Fatalf("unrelated key lost: %v", merged)
	}
	if got := MergeNamespaced(map[string]any{"kid__a": 1}, map[string]any{"kid__a": nil}); got != nil {
		t.Fatalf("fully cleared bag should collapse to nil, got %v", got)
	}
	if got := MergeNamespaced(nil, nil); got != nil {
		t.Fatalf("merging nothing should stay nil, got %v", got)
	}
}

func TestKindPrefixes(t *testing.T) {
	if KindKid.Prefix() != "kid__" || KindParent.Prefix() != "parent__" {
		t.Fatalf("unexpected prefixes: %q %q", KindKid.Prefix(), KindParent.Prefix())
	}
	if !KindKid.SharesContactRecord() || !KindParent.SharesContactRecord() {
		t.Fatalf("kid and parent must share the contact record")
	}
	for _, k := range []EntityKind{KindAccount, KindForm, KindTeam} {
		if k.SharesContactRecord() {
			t.Fatalf("kind %s must not share the contact record", k)
		}
	}
	for _, k := range KnownKinds() {
		if !IsKnownKind(k) {
			t.Fatalf("kind %s listed but unknown", k)
		}
	}
	if IsKnownKind(KindContactRecord) {
		t.Fatalf("the physical contact record is not a logical kind")
	}
}
