package models

import (
	"testing"
)

// Строковый статус каждой (ноги, фазы) обязан разбираться обратно
// в ту же пару
func TestLegStatusRoundTrip(t *testing.T) {
	phases := []LegPhase{PhasePlace, PhaseUncertain, PhasePlaced, PhaseBalanceGood}

	for leg := 1; leg <= MultipathLegCount; leg++ {
		for _, phase := range phases {
			status := LegStatus(leg, phase)

			gotLeg, gotPhase, ok := ParseLegStatus(status)
			if !ok {
				t.Errorf("ParseLegStatus(%q) = !ok", status)
				continue
			}
			if gotLeg != leg || gotPhase != phase {
				t.Errorf("ParseLegStatus(%q) = (%d, %d), ожидалось (%d, %d)",
					status, gotLeg, gotPhase, leg, phase)
			}
		}
	}
}

func TestLegStatusStrings(t *testing.T) {
	tests := []struct {
		leg      int
		phase    LegPhase
		expected string
	}{
		{1, PhasePlace, "buy1place"},
		{1, PhaseUncertain, "buy1uncertain"},
		{1, PhasePlaced, "buy1placed"},
		{1, PhaseBalanceGood, "balance1good"},
		{2, PhasePlace, "sell2place"},
		{3, PhasePlaced, "buy3placed"},
		{4, PhaseBalanceGood, "balance4good"},
	}

	for _, tt := range tests {
		if got := LegStatus(tt.leg, tt.phase); got != tt.expected {
			t.Errorf("LegStatus(%d, %d) = %q, ожидалось %q", tt.leg, tt.phase, got, tt.expected)
		}
	}
}

func TestParseLegStatusRejects(t *testing.T) {
	invalid := []string{
		"bare", "done", "error", "unrecoverable", "unprofitable",
		"buy2place",     // нога 2 продаёт, не покупает
		"sell1place",    // нога 1 покупает
		"buy5place",     // ноги 5 не существует
		"buy1",          // нет фазы
		"balance0good",  // ноги 0 не существует
		"balance5good",  // вне диапазона
		"buy1cancelled", // неизвестная фаза
		"",
	}

	for _, status := range invalid {
		if _, _, ok := ParseLegStatus(status); ok {
			t.Errorf("ParseLegStatus(%q) = ok, ожидался отказ", status)
		}
	}
}

func TestLegOp(t *testing.T) {
	// Нечётные ноги покупают, чётные продают
	want := map[int]string{1: "buy", 2: "sell", 3: "buy", 4: "sell"}
	for leg, op := range want {
		if got := LegOp(leg); got != op {
			t.Errorf("LegOp(%d) = %q, ожидалось %q", leg, got, op)
		}
	}
}

func TestMultipathTerminal(t *testing.T) {
	terminal := []string{MultipathDone, MultipathError, MultipathUnrecoverable, MultipathUnprofitable}
	for _, s := range terminal {
		if !MultipathTerminal(s) {
			t.Errorf("MultipathTerminal(%q) = false", s)
		}
	}

	active := []string{MultipathBare, MultipathProfitable, MultipathStart, "buy1place", "balance4good"}
	for _, s := range active {
		if MultipathTerminal(s) {
			t.Errorf("MultipathTerminal(%q) = true", s)
		}
	}
}

func TestMultipathClashes(t *testing.T) {
	mk := func(exchange string, pairs ...[2]string) *Multipath {
		m := &Multipath{Exchange: exchange}
		for i, p := range pairs {
			m.Legs[i] = MultipathLeg{Market: p[0], Coin: p[1]}
		}
		return m
	}

	a := mk("alpha", [2]string{"USDT", "LTC"}, [2]string{"USDT", "LTC"}, [2]string{"USDT", "DOGE"}, [2]string{"USDT", "DOGE"})

	tests := []struct {
		name     string
		other    *Multipath
		expected bool
	}{
		{"общий стакан на той же бирже", mk("alpha", [2]string{"USDT", "LTC"}), true},
		{"другая монета", mk("alpha", [2]string{"USDT", "BTC"}), false},
		{"та же пара на другой бирже", mk("beta", [2]string{"USDT", "LTC"}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.Clashes(tt.other); got != tt.expected {
				t.Errorf("Clashes = %v, ожидалось %v", got, tt.expected)
			}
		})
	}
}
