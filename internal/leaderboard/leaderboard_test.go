package leaderboard

import (
	"context"
	"errors"
	"testing"
)

const ldrBody = `{"status":"success","periodo":"mes","pipeline":6810518,"top3":[
	{"position":1,"userId":101,"userName":"Marcelo Souza Lima","wonDealsCount":4,"revenue":52000},
	{"userId":"102","userName":"Ana","wonDealsCount":2,"revenue":1000.4}
]}`

func TestDecodeWithKnownKind(t *testing.T) {
	t.Parallel()
	p, err := Decode(KindLDR, []byte(ldrBody))
	if err != nil {
		t.Fatal(err)
	}
	if p.Kind != KindLDR || p.Period != "mes" || p.Pipeline != "6810518" || len(p.Records) != 2 {
		t.Fatalf("podium=%+v", p)
	}
	first, ok := p.Records[0].(LDRRecord)
	if !ok || first.UserID != "101" || first.WonDealsCount != 4 {
		t.Fatalf("first=%#v", p.Records[0])
	}
	if p.Records[1].Who().Position != 2 {
		t.Fatalf("missing position not filled: %+v", p.Records[1].Who())
	}
}

func TestDecodeKindComesFromEndpoint(t *testing.T) {
	t.Parallel()
	body := `{"status":"success","top3":[
		{"position":1,"userName":"A","scheduledCount":9},
		{"position":2,"userName":"B","wonDealsCount":1}
	]}`
	p, err := Decode(KindEV, []byte(body))
	if err != nil {
		t.Fatal(err)
	}
	if p.Kind != KindEV || len(p.Records) != 2 {
		t.Fatalf("podium=%+v", p)
	}
	for i, r := range p.Records {
		if _, ok := r.(EVRecord); !ok || r.Kind() != KindEV {
			t.Fatalf("record %d is %T", i, r)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()
	if _, err := Decode(KindEV, []byte(`{"status":"error","top3":[]}`)); !errors.Is(err, ErrBadStatus) {
		t.Fatalf("status err=%v", err)
	}
	if _, err := Decode(Kind("mvp"), []byte(`{"top3":[{}]}`)); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("kind err=%v", err)
	}
	if _, err := Decode(KindEV, []byte(`{`)); err == nil {
		t.Fatal("expected syntax error")
	}
}

func TestParseKind(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]Kind{"ev": KindEV, "SDRS": KindSDR, " ldr ": KindLDR} {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q)=%q,%v", in, got, err)
		}
	}
	if _, err := ParseKind("ceo"); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err=%v", err)
	}
	if KindSDR.Path() != "sdrs" {
		t.Fatal(KindSDR.Path())
	}
}

func TestCards(t *testing.T) {
	t.Parallel()
	p, err := Decode(KindLDR, []byte(ldrBody))
	if err != nil {
		t.Fatal(err)
	}
	cards := Cards(context.Background(), p, nil)
	c := cards[0]
	if c.Name != "Marcelo Souza" || c.FullName != "Marcelo Souza Lima" || c.PhotoURL != FallbackPhoto {
		t.Fatalf("card=%+v", c)
	}
	if len(c.Stats) != 2 || c.Stats[0] != (Stat{"Deals Ganhos", "4"}) || c.Stats[1] != (Stat{"Revenue", "R$ 52.000"}) {
		t.Fatalf("stats=%+v", c.Stats)
	}

	sdr := Stats(SDRRecord{ScheduledCount: 7})
	if len(sdr) != 1 || sdr[0].Label != "Agendamentos" || sdr[0].Value != "7" {
		t.Fatalf("sdr=%+v", sdr)
	}
	ev := Stats(EVRecord{DealCount: 2, Revenue: 1500})
	if ev[0].Label != "Deals" || ev[1].Value != "R$ 1.500" {
		t.Fatalf("ev=%+v", ev)
	}
}

func TestShortName(t *testing.T) {
	t.Parallel()
	cases := map[string]string{"": "N/A", "Ana": "Ana", "Ana Lima": "Ana Lima", "Ana  Maria Lima": "Ana Maria"}
	for in, want := range cases {
		if got := ShortName(in); got != want {
			t.Errorf("ShortName(%q)=%q", in, got)
		}
	}
}
