package gateway

import (
	"encoding/json"
	"time"
)

type Policy string

const (
	PolicyOwner      Policy = "owner"
	PolicyReplyToVIP Policy = "reply_to_vip"
	PolicyAlertOwner Policy = "alert_owner"
	PolicySilence    Policy = "silence"
)

// Attachments are calendar artifact references to send alongside the messages.
type Attachments struct {
	Contact string `json:"contact,omitempty"`
	Owner   string `json:"owner,omitempty"`
}

// DelayedMessage asks the delivery layer to send Message to Target after Delay.
// Key identifies the timer so it can be cancelled.
type DelayedMessage struct {
	Key     string        `json:"key"`
	Target  string        `json:"target"`
	Message string        `json:"message"`
	Delay   time.Duration `json:"delay"`
}

// RelayMessage is sent to a third party right after the reply itself.
type RelayMessage struct {
	Target  string `json:"target"`
	Message string `json:"message"`
}

// OwnerDecision leaves the owner's conversation to the human operator.
type OwnerDecision struct {
	Target string `json:"target"`
}

type ReplyDecision struct {
	Target       string           `json:"target"`
	Message      string           `json:"message,omitempty"`
	Owner        string           `json:"owner,omitempty"`
	OwnerMessage string           `json:"owner_message,omitempty"`
	Attachments  Attachments      `json:"attachments"`
	Relays       []RelayMessage   `json:"relays,omitempty"`
	Delayed      []DelayedMessage `json:"delayed,omitempty"`
}

type AlertDecision struct {
	Target  string `json:"target"`
	Message string `json:"message"`
}

// Decision is the routing outcome: a policy plus the payload of that policy only.
type Decision struct {
	policy Policy
	owner  *OwnerDecision
	reply  *ReplyDecision
	alert  *AlertDecision
}

func Owner(decision OwnerDecision) Decision {
	return Decision{policy: PolicyOwner, owner: &decision}
}

func Reply(decision ReplyDecision) Decision {
	return Decision{policy: PolicyReplyToVIP, reply: &decision}
}

func Alert(decision AlertDecision) Decision {
	return Decision{policy: PolicyAlertOwner, alert: &decision}
}

func Silence() Decision {
	return Decision{policy: PolicySilence}
}

func (d Decision) Policy() Policy {
	if d.policy == "" {
		return PolicySilence
	}
	return d.policy
}

func (d Decision) Owner() (OwnerDecision, bool) {
	if d.owner == nil {
		return OwnerDecision{}, false
	}
	return *d.owner, true
}

func (d Decision) Reply() (ReplyDecision, bool) {
	if d.reply == nil {
		return ReplyDecision{}, false
	}
	return *d.reply, true
}

func (d Decision) Alert() (AlertDecision, bool) {
	if d.alert == nil {
		return AlertDecision{}, false
	}
	return *d.alert, true
}

func (d Decision) MarshalJSON() ([]byte, error) {
	payload := struct {
		Policy Policy         `json:"policy"`
		Owner  *OwnerDecision `json:"owner,omitempty"`
		Reply  *ReplyDecision `json:"reply,omitempty"`
		Alert  *AlertDecision `json:"alert,omitempty"`
	}{
		Policy: d.Policy(),
		Owner:  d.owner,
		Reply:  d.reply,
		Alert:  d.alert,
	}
	return json.Marshal(payload)
}
