// Package domain defines the core persistent entities of rostercore and the
// namespacing contract that lets several logical entity kinds share one
// backing contact record without dynamic field collisions.
package domain

import (
	"time"
)

// EntityKind identifies a logical record type managed by an organization.
// Kids and parents are logical kinds hosted on the shared contact record; the
// remaining kinds each own their backing record.
type EntityKind string

// Supported entity kind identifiers used in dynamic field namespacing and
// persistence buckets.
const (
	// KindKid identifies a kid record hosted on a contact.
	KindKid EntityKind = "kid"
	// KindParent identifies a parent record hosted on a contact.
	KindParent EntityKind = "parent"
	// KindAccount identifies an organization staff account record.
	KindAccount EntityKind = "account"
	// KindForm identifies a registration form record.
	KindForm EntityKind = "form"
	// KindTeam identifies a team record.
	KindTeam EntityKind = "team"
)

// KindContactRecord names the shared physical contact record in errors and
// persistence buckets. It is not a logical kind and is absent from
// KnownKinds.
const KindContactRecord EntityKind = "contact"

// KnownKinds returns the entity kinds in stable declaration order.
func KnownKinds() []EntityKind {
	return []EntityKind{KindKid, KindParent, KindAccount, KindForm, KindTeam}
}

// IsKnownKind reports whether the provided kind identifier is registered.
func IsKnownKind(k EntityKind) bool {
	switch k {
	case KindKid, KindParent, KindAccount, KindForm, KindTeam:
		return true
	}
	return false
}

// SharesContactRecord reports whether the kind is physically stored as a
// contact. Only these kinds participate in dynamic field namespacing.
func (k EntityKind) SharesContactRecord() bool {
	return k == KindKid || k == KindParent
}

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Contact is the shared backing record hosting kid and parent kinds. Kind is
// the discriminator; DynamicFields is the physical namespaced bag whose keys
// carry the owning kind's prefix.
type Contact struct {
	Base
	Kind          EntityKind     `json:"kind"`
	FirstName     string         `json:"first_name"`
	LastName      string         `json:"last_name"`
	Email         string         `json:"email,omitempty"`
	Phone         string         `json:"phone,omitempty"`
	Address       string         `json:"address,omitempty"`
	BirthDate     string         `json:"birth_date,omitempty"` // ISO 8601 date
	ParentIDs     []string       `json:"parent_ids"`
	TeamIDs       []string       `json:"team_ids"`
	DynamicFields map[string]any `json:"dynamic_fields,omitempty"`
}

// Account represents an organization staff account.
type Account struct {
	Base
	Name          string         `json:"name"`
	Email         string         `json:"email"`
	Role          string         `json:"role"`
	DynamicFields map[string]any `json:"dynamic_fields,omitempty"`
}

// Form represents a registration form whose submissions create contact
// records for the declared entity kind.
type Form struct {
	Base
	Title      string     `json:"title"`
	TargetKind EntityKind `json:"target_kind"`
	FieldNames []string   `json:"field_names"`
	Open       bool       `json:"open"`
}

// Team groups contacts for rosters and scheduling.
type Team struct {
	Base
	Name          string         `json:"name"`
	CoachID       *string        `json:"coach_id"`
	MemberIDs     []string       `json:"member_ids"`
	DynamicFields map[string]any `json:"dynamic_fields,omitempty"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Kind   EntityKind
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in snapshots.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)
