// Package leaderboard decodes the backend's podium rankings into a tagged
// union of per-role records and turns them into display cards.
package leaderboard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownKind = errors.New("leaderboard: unknown kind")
	ErrBadStatus   = errors.New("leaderboard: backend status not success")
)

type Kind string

const (
	KindEV  Kind = "ev"
	KindSDR Kind = "sdr"
	KindLDR Kind = "ldr"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindEV, KindSDR, KindLDR:
		return k, nil
	case "evs", "sdrs", "ldrs":
		return k[:len(k)-1], nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Path is the ranking endpoint segment ("evs", "sdrs", "ldrs").
func (k Kind) Path() string { return string(k) + "s" }

// Person is what every ranked record carries.
type Person struct {
	Position int    `json:"position"`
	UserID   UserID `json:"userId"`
	UserName string `json:"userName"`
}

// UserID arrives as a JSON number or string depending on the endpoint.
type UserID string

func (u *UserID) UnmarshalJSON(b []byte) error {
	*u = UserID(pipelineString(b))
	return nil
}

// Record is one of EVRecord, SDRRecord or LDRRecord.
type Record interface {
	Kind() Kind
	Who() Person
	isRecord()
}

type EVRecord struct {
	Person
	DealCount int     `json:"dealCount"`
	Revenue   float64 `json:"revenue"`
}

type SDRRecord struct {
	Person
	ScheduledCount int `json:"scheduledCount"`
}

type LDRRecord struct {
	Person
	WonDealsCount int     `json:"wonDealsCount"`
	Revenue       float64 `json:"revenue"`
}

func (EVRecord) Kind() Kind  { return KindEV }
func (SDRRecord) Kind() Kind { return KindSDR }
func (LDRRecord) Kind() Kind { return KindLDR }

func (r EVRecord) Who() Person  { return r.Person }
func (r SDRRecord) Who() Person { return r.Person }
func (r LDRRecord) Who() Person { return r.Person }

func (EVRecord) isRecord()  {}
func (SDRRecord) isRecord() {}
func (LDRRecord) isRecord() {}

// Podium is a decoded ranking response.
type Podium struct {
	Kind     Kind     `json:"kind"`
	Period   string   `json:"periodo"`
	Pipeline string   `json:"pipeline"`
	Records  []Record `json:"-"`
}

type wire struct {
	Status   string            `json:"status"`
	Period   string            `json:"periodo"`
	Pipeline json.RawMessage   `json:"pipeline"`
	Top3     []json.RawMessage `json:"top3"`
}

// Decode parses a ranking response whose kind is known from the endpoint
// that served it. Record fields never change the kind.
func Decode(kind Kind, raw []byte) (Podium, error) {
	var w wire
	if err := json.Unmarshal(raw, &w); err != nil {
		return Podium{}, fmt.Errorf("leaderboard: decode: %w", err)
	}
	if w.Status != "" && w.Status != "success" {
		return Podium{}, fmt.Errorf("%w: %q", ErrBadStatus, w.Status)
	}
	p := Podium{Kind: kind, Period: w.Period, Pipeline: pipelineString(w.Pipeline)}
	for i, item := range w.Top3 {
		rec, err := decodeRecord(kind, item)
		if err != nil {
			return Podium{}, fmt.Errorf("leaderboard: record %d: %w", i, err)
		}
		if rec.Who().Position == 0 {
			setPosition(&rec, i+1)
		}
		p.Records = append(p.Records, rec)
	}
	return p, nil
}

func decodeRecord(k Kind, raw json.RawMessage) (Record, error) {
	switch k {
	case KindEV:
		var r EVRecord
		err := json.Unmarshal(raw, &r)
		return r, err
	case KindSDR:
		var r SDRRecord
		err := json.Unmarshal(raw, &r)
		return r, err
	case KindLDR:
		var r LDRRecord
		err := json.Unmarshal(raw, &r)
		return r, err
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
}

func setPosition(rec *Record, pos int) {
	switch r := (*rec).(type) {
	case EVRecord:
		r.Position = pos
		*rec = r
	case SDRRecord:
		r.Position = pos
		*rec = r
	case LDRRecord:
		r.Position = pos
		*rec = r
	}
}

func pipelineString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}
