// Package domain defines the agency's entities and the error kinds shared by
// every manager and handler.
//
// Key Responsibilities:
//   - Person, Policy, Claim, Binding and Account records as stored
//   - Role and ClaimState closed enums (anything else is rejected at the boundary)
//   - Money (minor units) and Date (civil day) value types with JSON codecs
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role is the part a person plays in a policy.
type Role string

const (
	// RoleContractHolder is the person financially responsible for a policy.
	RoleContractHolder Role = "CONTRACT_HOLDER"
	// RoleInsured is the person covered by a policy.
	RoleInsured Role = "INSURED"
)

// Roles lists every valid binding role.
var Roles = []Role{RoleContractHolder, RoleInsured}

// ParseRole accepts the canonical names as well as the camel-case spelling
// ("ContractHolder") and is case-insensitive.
func ParseRole(s string) (Role, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	switch normalized {
	case "CONTRACT_HOLDER", "CONTRACTHOLDER":
		return RoleContractHolder, nil
	case "INSURED":
		return RoleInsured, nil
	}
	return "", &ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", s)}
}

// Valid reports whether r is one of the closed set of roles.
func (r Role) Valid() bool {
	return r == RoleContractHolder || r == RoleInsured
}

// ClaimState is the lifecycle state of a claim.
type ClaimState string

const (
	ClaimNew      ClaimState = "NEW"
	ClaimResolved ClaimState = "RESOLVED"
	ClaimClosed   ClaimState = "CLOSED"
)

// ParseClaimState is case-insensitive; an empty string yields ClaimNew.
func ParseClaimState(s string) (ClaimState, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NEW":
		return ClaimNew, nil
	case "RESOLVED":
		return ClaimResolved, nil
	case "CLOSED":
		return ClaimClosed, nil
	}
	return "", &ValidationError{Field: "state", Reason: fmt.Sprintf("unknown claim state %q", s)}
}

// Account role names.
const (
	RoleNameUser  = "ROLE_USER"
	RoleNameAdmin = "ROLE_ADMIN"
)

// Person is an insured individual.
type Person struct {
	ID          int64     `json:"id"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	Phone       string    `json:"phone"`
	Age         int       `json:"age"`
	Email       string    `json:"email,omitempty"`
	Gender      string    `json:"gender,omitempty"`
	City        string    `json:"city,omitempty"`
	Street      string    `json:"street,omitempty"`
	HouseNumber string    `json:"houseNumber,omitempty"`
	PostalCode  string    `json:"postalCode,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// DisplayName renders "Last First", the ordering key for participant lists.
func (p Person) DisplayName() string {
	return strings.TrimSpace(p.LastName + " " + p.FirstName)
}

// Policy is a purchased insurance product. PersonID is the originating person
// and is always populated.
type Policy struct {
	ID          int64     `json:"id"`
	PersonID    int64     `json:"personId"`
	ProductName string    `json:"productName"`
	Amount      Money     `json:"amount"`
	ValidFrom   Date      `json:"validFrom"`
	ValidTo     Date      `json:"validTo"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PolicyDraft carries editable policy fields. PersonID is optional on edit.
type PolicyDraft struct {
	PersonID    *int64
	ProductName string
	Amount      Money
	ValidFrom   Date
	ValidTo     Date
}

// Validate checks the scalar fields of a draft.
func (d PolicyDraft) Validate() error {
	if strings.TrimSpace(d.ProductName) == "" {
		return &ValidationError{Field: "productName", Reason: "is required"}
	}
	if d.Amount < 0 {
		return &ValidationError{Field: "amount", Reason: "must not be negative"}
	}
	if d.ValidFrom.IsZero() || d.ValidTo.IsZero() {
		return &ValidationError{Field: "validity", Reason: "validFrom and validTo are required"}
	}
	if d.ValidTo.Before(d.ValidFrom.Time) {
		return &ValidationError{Field: "validTo", Reason: "must not precede validFrom"}
	}
	return nil
}

// Claim is an incident reported against a policy. PolicyID may be cleared by
// the store; PersonID is the denormalized owner kept as a fallback.
type Claim struct {
	ID          int64      `json:"id"`
	PolicyID    *int64     `json:"policyId,omitempty"`
	PersonID    *int64     `json:"personId,omitempty"`
	Date        Date       `json:"date"`
	Description string     `json:"description"`
	Amount      Money      `json:"amount"`
	State       ClaimState `json:"state"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// MaxClaimDescription bounds Claim.Description in characters.
const MaxClaimDescription = 1000

// Binding is one (policy, person, role) edge.
type Binding struct {
	PolicyID int64 `json:"policyId"`
	PersonID int64 `json:"personId"`
	Role     Role  `json:"role"`
}

// Participant is a binding joined with the person's name for display.
type Participant struct {
	PersonID  int64  `json:"personId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      Role   `json:"role"`
}

// Account is a login identity, optionally linked to one person.
type Account struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Enabled      bool      `json:"enabled"`
	Roles        []string  `json:"roles"`
	PersonID     *int64    `json:"personId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HasRole reports whether the account carries the named role.
func (a Account) HasRole(name string) bool {
	for _, r := range a.Roles {
		if strings.EqualFold(r, name) {
			return true
		}
	}
	return false
}
