package model

import "github.com/google/uuid"

type Role string

const (
	RoleFarmer   Role = "FARMER"
	RoleSupplier Role = "SUPPLIER"
	RoleAdmin    Role = "ADMIN"
)

// Principal is the authenticated caller extracted from the access token.
type Principal struct {
	UserID uuid.UUID
	OrgID  uuid.UUID
	Role   Role
}

func (p Principal) IsFarmer() bool   { return p.Role == RoleFarmer }
func (p Principal) IsSupplier() bool { return p.Role == RoleSupplier }
func (p Principal) IsAdmin() bool    { return p.Role == RoleAdmin }
