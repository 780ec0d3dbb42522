package leaderboard

import (
	"context"
	"strconv"
	"strings"

	"dealboard/internal/overlay"
)

// FallbackPhoto is shown for members without a photo.
const FallbackPhoto = "/static/img/team/desativado.png"

type Stat struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type Card struct {
	Position int    `json:"position"`
	Kind     Kind   `json:"kind"`
	Name     string `json:"name"`
	FullName string `json:"fullName"`
	PhotoURL string `json:"photoUrl"`
	Stats    []Stat `json:"stats"`
}

// ShortName keeps first name and first surname.
func ShortName(full string) string {
	full = strings.TrimSpace(full)
	if full == "" || full == "N/A" {
		return "N/A"
	}
	parts := strings.Fields(full)
	if len(parts) <= 2 {
		return full
	}
	return parts[0] + " " + parts[1]
}

func Stats(r Record) []Stat {
	switch r := r.(type) {
	case EVRecord:
		return []Stat{
			{Label: "Deals", Value: strconv.Itoa(r.DealCount)},
			{Label: "Revenue", Value: overlay.FormatBRL(r.Revenue)},
		}
	case SDRRecord:
		return []Stat{{Label: "Agendamentos", Value: strconv.Itoa(r.ScheduledCount)}}
	case LDRRecord:
		return []Stat{
			{Label: "Deals Ganhos", Value: strconv.Itoa(r.WonDealsCount)},
			{Label: "Revenue", Value: overlay.FormatBRL(r.Revenue)},
		}
	default:
		return nil
	}
}

// Cards converts a podium into display cards. photos may be nil.
func Cards(ctx context.Context, p Podium, photos *overlay.PhotoResolver) []Card {
	out := make([]Card, 0, len(p.Records))
	for _, r := range p.Records {
		who := r.Who()
		full := strings.TrimSpace(who.UserName)
		if full == "" {
			full = "N/A"
		}
		photo := FallbackPhoto
		if full != "N/A" {
			if u := photos.Resolve(ctx, full); u != "" {
				photo = u
			}
		}
		out = append(out, Card{
			Position: who.Position,
			Kind:     r.Kind(),
			Name:     ShortName(full),
			FullName: full,
			PhotoURL: photo,
			Stats:    Stats(r),
		})
	}
	return out
}
