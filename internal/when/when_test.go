package when

import (
	"testing"
	"time"
)

// Tuesday 10 March 2026, 14:20 local.
var tuesday = time.Date(2026, 3, 10, 14, 20, 0, 0, time.UTC)

func TestParseDuration(t *testing.T) {
	cases := map[string]int{
		"30 min":           30,
		"hora y media, 90": 90,
		"1 hora":           60,
		"1h":               60,
		"45 minutos":       45,
		"500 minutos":      60,
		"lo que necesites": 60,
		"":                 60,
		"unos 120 minutos": 120,
	}
	for input, want := range cases {
		if got := ParseDuration(input); got != want {
			t.Fatalf("ParseDuration(%q) = %d, want %d", input, got, want)
		}
	}
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		input string
		want  time.Time
		ok    bool
	}{
		{"mañana", time.Date(2026, 3, 11, 14, 20, 0, 0, time.UTC), true},
		{"pasado mañana", time.Date(2026, 3, 12, 14, 20, 0, 0, time.UTC), true},
		{"hoy en la tarde", tuesday, true},
		{"el viernes", time.Date(2026, 3, 13, 14, 20, 0, 0, time.UTC), true},
		{"Lunes", time.Date(2026, 3, 16, 14, 20, 0, 0, time.UTC), true},
		{"martes", tuesday, true},
		{"20/03", time.Date(2026, 3, 20, 14, 20, 0, 0, time.UTC), true},
		{"5-4-2027", time.Date(2027, 4, 5, 14, 20, 0, 0, time.UTC), true},
		{"2026-12-24", time.Date(2026, 12, 24, 14, 20, 0, 0, time.UTC), true},
		{"31/02", time.Time{}, false},
		{"cuando puedas", time.Time{}, false},
	}
	for _, tc := range cases {
		got, ok := ParseDate(tc.input, tuesday)
		if ok != tc.ok || !got.Equal(tc.want) {
			t.Fatalf("ParseDate(%q) = %s, %v; want %s, %v", tc.input, got, ok, tc.want, tc.ok)
		}
	}
}

func TestParseClock(t *testing.T) {
	cases := []struct {
		input        string
		hour, minute int
		ok           bool
	}{
		{"10:30", 10, 30, true},
		{"3pm", 15, 0, true},
		{"12 am", 0, 0, true},
		{"a las 9", 9, 0, true},
		{"20/03 10:30", 10, 30, true},
		{"mediodía", 12, 0, true},
		{"medianoche", 0, 0, true},
		{"cuando puedas", 0, 0, false},
	}
	for _, tc := range cases {
		hour, minute, ok := ParseClock(tc.input)
		if ok != tc.ok || hour != tc.hour || minute != tc.minute {
			t.Fatalf("ParseClock(%q) = %d:%d %v; want %d:%d %v", tc.input, hour, minute, ok, tc.hour, tc.minute, tc.ok)
		}
	}
}

func TestResolveStart(t *testing.T) {
	got := ResolveStart("mañana", "10:30", tuesday, time.Hour)
	if want := time.Date(2026, 3, 11, 10, 30, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}

	// Earlier today is pushed to tomorrow.
	got = ResolveStart("hoy", "9:00", tuesday, time.Hour)
	if want := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}

	// No time falls back to now + 1h.
	got = ResolveStart("", "", tuesday, time.Hour)
	if want := time.Date(2026, 3, 10, 15, 20, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}

	got = ResolveStart("Pagar cuenta mañana 19:30", "Pagar cuenta mañana 19:30", tuesday, time.Hour)
	if want := time.Date(2026, 3, 11, 19, 30, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if !got.After(tuesday) {
		t.Fatal("start must be strictly in the future")
	}
}

func TestHasTimeSemantics(t *testing.T) {
	cases := map[string]bool{
		"Pagar cuenta mañana 19:30": true,
		"llamar al banco a las 3pm": true,
		"revisar correo el lunes":   true,
		"tomar pastilla a mediodía": true,
		"comprar 2 kilos de pan":    false,
		"recordar llamar a mamá":    false,
	}
	for input, want := range cases {
		if got := HasTimeSemantics(input, tuesday); got != want {
			t.Fatalf("HasTimeSemantics(%q) = %v, want %v", input, got, want)
		}
	}
}
