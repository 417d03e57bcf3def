package hostcpu

import "testing"

func TestSetAndCheckIRQLevel(t *testing.T) {
	c := New()
	if c.CheckIRQFiring(NMI) {
		t.Fatalf("NMI should start low")
	}
	c.SetIRQLevel(NMI, 1)
	if !c.CheckIRQFiring(NMI) {
		t.Fatalf("NMI should be firing after raise")
	}
	c.SetIRQLevel(NMI, 0)
	if c.CheckIRQFiring(NMI) {
		t.Fatalf("NMI should be low after lower")
	}
}
