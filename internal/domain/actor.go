package domain

import "fmt"

// ActorType is the closed set of parties that can be warned or suspended.
type ActorType string

const (
	ActorContractor   ActorType = "CONTRACTOR"
	ActorOrganization ActorType = "ORGANIZATION"
)

// ParseActorType accepts only the known actor types.
func ParseActorType(s string) (ActorType, error) {
	switch ActorType(s) {
	case ActorContractor:
		return ActorContractor, nil
	case ActorOrganization:
		return ActorOrganization, nil
	default:
		return "", Invalid("unknown actor type %q", s)
	}
}

// Actor references a warnable party by type and id.
type Actor struct {
	Type ActorType `db:"actor_type"`
	ID   int64     `db:"actor_id"`
}

func (a Actor) String() string {
	return fmt.Sprintf("%s:%d", a.Type, a.ID)
}

func (a Actor) Validate() error {
	if _, err := ParseActorType(string(a.Type)); err != nil {
		return err
	}
	if a.ID <= 0 {
		return Invalid("actor id must be positive")
	}
	return nil
}

// Role is the caller's role as asserted by the gateway.
type Role string

const (
	RoleRequester  Role = "REQUESTER"
	RoleContractor Role = "CONTRACTOR"
	RoleAdmin      Role = "ADMIN"
)

func (r Role) Valid() bool {
	return r == RoleRequester || r == RoleContractor || r == RoleAdmin
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	ID             int64
	Role           Role
	OrganizationID *int64
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
