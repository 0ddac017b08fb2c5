package account

import "testing"

func TestKind(t *testing.T) {
	if !KindHospital.Valid() || !KindMechanic.Valid() || !KindCivilian.Valid() {
		t.Fatalf("expected known kinds valid")
	}
	if Kind("driver").Valid() {
		t.Fatalf("expected unknown kind invalid")
	}
	if KindCivilian.Responder() {
		t.Fatalf("civilian must not hold capacity")
	}
	if !KindHospital.Responder() || !KindMechanic.Responder() {
		t.Fatalf("hospital/mechanic must hold capacity")
	}

	p, s := KindHospital.UnitNames()
	if p != "beds" || s != "ambulances" {
		t.Fatalf("hospital unit names mismatch: %s/%s", p, s)
	}
	p, s = KindMechanic.UnitNames()
	if p != "mechanics" || s != "tow trucks" {
		t.Fatalf("mechanic unit names mismatch: %s/%s", p, s)
	}
}

func TestCapacityShortage(t *testing.T) {
	cases := []struct {
		primary, secondary int
		want               Shortage
	}{
		{1, 1, ShortageNone},
		{0, 1, ShortagePrimary},
		{1, 0, ShortageSecondary},
		{0, 0, ShortageBoth},
	}
	for _, c := range cases {
		a := &Account{CapacityPrimary: c.primary, CapacitySecondary: c.secondary}
		if got := a.CapacityShortage(); got != c.want {
			t.Fatalf("shortage(%d,%d)=%v, want %v", c.primary, c.secondary, got, c.want)
		}
	}
}
