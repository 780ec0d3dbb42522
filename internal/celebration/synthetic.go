package celebration

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

// SyntheticOverrides replaces fields of the sample deal. Empty fields keep
// the sample value; a zero Amount picks a random 3k–12k amount.
type SyntheticOverrides struct {
	DealName    string  `json:"dealName,omitempty"`
	Amount      float64 `json:"amount,omitempty"`
	OwnerName   string  `json:"ownerName,omitempty"`
	SDRName     string  `json:"sdrName,omitempty"`
	LDRName     string  `json:"ldrName,omitempty"`
	ProductName string  `json:"productName,omitempty"`
	CompanyName string  `json:"companyName,omitempty"`
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// SyntheticID returns "test-<unix ms>-<6 base36 chars>". It never passes IsReal.
func SyntheticID(now time.Time, rng *rand.Rand) ID {
	var b strings.Builder
	b.WriteString("test-")
	b.WriteString(strconv.FormatInt(now.UnixMilli(), 10))
	b.WriteByte('-')
	for i := 0; i < 6; i++ {
		b.WriteByte(base36[rng.IntN(len(base36))])
	}
	return ID(b.String())
}

// Synthetic builds a local test celebration that is presented but never acknowledged.
func Synthetic(now time.Time, rng *rand.Rand, o SyntheticOverrides) Notification {
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(now.UnixNano()), 0x5eed))
	}
	n := Notification{
		ID:          SyntheticID(now, rng),
		DealName:    pick(o.DealName, "Teste Integração - Celebração"),
		Amount:      o.Amount,
		OwnerName:   pick(o.OwnerName, "Bruno"),
		SDRName:     pick(o.SDRName, "Gabriela"),
		LDRName:     pick(o.LDRName, "Marcelo"),
		ProductName: pick(o.ProductName, "Rastreio Premium"),
		CompanyName: pick(o.CompanyName, "Empresa Exemplo S.A."),
		Timestamp:   now.UTC().Format(time.RFC3339),
	}
	if n.Amount <= 0 {
		n.Amount = float64((rng.IntN(10) + 3) * 1000)
	}
	return n
}

func pick(v, def string) string {
	if s := strings.TrimSpace(v); s != "" {
		return s
	}
	return def
}
