// Package roles decides who sent a message and whether automation may answer.
package roles

import "strings"

type Role string

const (
	RoleOwner Role = "owner"
	RoleVIP   Role = "vip"
	RoleOther Role = "other"
)

type Result struct {
	Role      Role
	CanReply  bool
	IsUrgency bool
}

type Validator struct {
	owner string
	vip   string
}

func NewValidator(owner, vip string) Validator {
	return Validator{
		owner: strings.TrimSpace(owner),
		vip:   strings.TrimSpace(vip),
	}
}

func (v Validator) Owner() string { return v.owner }

// Validate never fails: unknown or empty senders resolve to RoleOther.
func (v Validator) Validate(sender, text string) Result {
	sender = strings.TrimSpace(sender)
	switch {
	case sender == "":
		return Result{Role: RoleOther}
	case v.owner != "" && sender == v.owner:
		return Result{Role: RoleOwner, CanReply: true}
	case v.vip != "" && sender == v.vip:
		urgent := HasUrgencyTrigger(text)
		return Result{Role: RoleVIP, CanReply: urgent, IsUrgency: urgent}
	default:
		return Result{Role: RoleOther}
	}
}

func HasUrgencyTrigger(text string) bool {
	if text == "" {
		return false
	}
	lowered := strings.ToLower(text)
	return strings.Contains(lowered, "urgente") || strings.Contains(lowered, "urgencia")
}
