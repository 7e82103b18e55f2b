package types

import (
	"encoding/json"
	"time"
)

// WelcomeMessage is the payload enqueued after successful provisioning and
// consumed by the email worker. Delivery is best effort: provisioning has
// already committed by the time this message exists, and a failed send is
// logged, never propagated back to the provisioning caller.
//
// Password carries the raw credential for the one-shot welcome email, as a
// SecretString so the value never leaks through logs or JSON dumps of the
// message envelope.
type WelcomeMessage struct {
	MessageID  string       `json:"message_id"`
	TraceID    string       `json:"trace_id"`
	AccountID  string       `json:"account_id"`
	Email      string       `json:"email"`
	Name       string       `json:"name"`
	Password   SecretString `json:"-"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
}

// welcomeMessageWire is the on-queue representation. The password must
// survive serialization onto SQS (SecretString redacts itself in MarshalJSON),
// so the wire form carries it as a plain field while the in-memory form
// stays redacted.
type welcomeMessageWire struct {
	MessageID  string    `json:"message_id"`
	TraceID    string    `json:"trace_id"`
	AccountID  string    `json:"account_id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Password   string    `json:"password"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// MarshalJSON serializes the message for the queue, including the raw
// credential. This is the single sanctioned exit point for the raw value.
func (m WelcomeMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(welcomeMessageWire{
		MessageID:  m.MessageID,
		TraceID:    m.TraceID,
		AccountID:  m.AccountID,
		Email:      m.Email,
		Name:       m.Name,
		Password:   m.Password.Unmask(),
		EnqueuedAt: m.EnqueuedAt,
	})
}

// UnmarshalJSON restores a message from its wire form.
func (m *WelcomeMessage) UnmarshalJSON(data []byte) error {
	var w welcomeMessageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.MessageID = w.MessageID
	m.TraceID = w.TraceID
	m.AccountID = w.AccountID
	m.Email = w.Email
	m.Name = w.Name
	m.Password = SecretString(w.Password)
	m.EnqueuedAt = w.EnqueuedAt
	return nil
}
