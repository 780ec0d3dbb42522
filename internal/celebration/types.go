package celebration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ID identifies a deal notification. Backend ids arrive as JSON numbers or
// numeric strings; locally generated test ids are non-numeric.
type ID string

// IsReal reports whether the id came from the backend (all ASCII digits).
// Only real ids are acknowledged.
func (id ID) IsReal() bool {
	if id == "" {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return false
		}
	}
	return true
}

func (id ID) String() string { return string(id) }

// UnmarshalJSON accepts both numbers and strings.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("celebration id: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*id = ID(strconv.FormatInt(i, 10))
		return nil
	}
	*id = ID(n.String())
	return nil
}

type Role string

const (
	RoleEV  Role = "EV"
	RoleSDR Role = "SDR"
	RoleLDR Role = "LDR"
)

type Member struct {
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// Notification is one "deal won" event as served by the backend.
type Notification struct {
	ID          ID      `json:"id"`
	DealName    string  `json:"dealName"`
	Amount      float64 `json:"amount"`
	OwnerName   string  `json:"ownerName,omitempty"`
	SDRName     string  `json:"sdrName,omitempty"`
	LDRName     string  `json:"ldrName,omitempty"`
	CompanyName string  `json:"companyName,omitempty"`
	ProductName string  `json:"productName,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
}

// Members lists the credited team members in display order (EV, SDR, LDR),
// skipping empty names.
func (n Notification) Members() []Member {
	out := make([]Member, 0, 3)
	for _, m := range []Member{
		{Name: n.OwnerName, Role: RoleEV},
		{Name: n.SDRName, Role: RoleSDR},
		{Name: n.LDRName, Role: RoleLDR},
	} {
		if strings.TrimSpace(m.Name) != "" {
			m.Name = strings.TrimSpace(m.Name)
			out = append(out, m)
		}
	}
	return out
}

// State is where a notification is in its lifecycle.
type State int

const (
	StateUnseen State = iota
	StateQueued
	StatePresenting
	StateAcknowledged
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StatePresenting:
		return "presenting"
	case StateAcknowledged:
		return "acknowledged"
	default:
		return "unseen"
	}
}

// Bus event types.
const (
	EventQueued       = "celebration.queued"
	EventDuplicate    = "celebration.duplicate"
	EventPresenting   = "celebration.presenting"
	EventHidden       = "celebration.hidden"
	EventRemoved      = "celebration.removed"
	EventAcknowledged = "celebration.acknowledged"
	EventAckSkipped   = "celebration.ack_skipped"
	EventAckFailed    = "celebration.ack_failed"
	EventAckDropped   = "celebration.ack_dropped"
)

// LifecycleEvent is the Data of every celebration bus event.
type LifecycleEvent struct {
	ID           ID            `json:"id"`
	Notification *Notification `json:"notification,omitempty"`
	At           time.Time     `json:"at"`
	Error        string        `json:"error,omitempty"`
}
