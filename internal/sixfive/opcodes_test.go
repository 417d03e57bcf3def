package sixfive

import "testing"

func TestLookupKnownOpcodes(t *testing.T) {
	cases := []struct {
		opcode byte
		optype Optype
		length uint16
		branch BranchClass
	}{
		{0xA9, OpLDA, 2, BranchNone},
		{0x8D, OpSTA, 3, BranchNone},
		{0x4C, OpJMP, 3, BranchUnconditionalTerminal},
		{0x00, OpBRK, 1, BranchUnconditionalTerminal},
		{0x90, OpBCC, 2, BranchConditional},
		{0xF2, OpCRASH, 1, BranchUnconditionalTerminal},
	}
	for _, tc := range cases {
		info := Lookup(tc.opcode)
		if info.Optype != tc.optype {
			t.Errorf("opcode %#02x: optype = %s, want %s", tc.opcode, info.Optype, tc.optype)
		}
		if info.Len() != tc.length {
			t.Errorf("opcode %#02x: len = %d, want %d", tc.opcode, info.Len(), tc.length)
		}
		if info.Branch != tc.branch {
			t.Errorf("opcode %#02x: branch = %v, want %v", tc.opcode, info.Branch, tc.branch)
		}
	}
}

func TestLookupUnknownOpcodeIsIllegal(t *testing.T) {
	info := Lookup(0xFF)
	if info.Optype != OpILLEGAL {
		t.Errorf("unmapped opcode: optype = %s, want %s", info.Optype, OpILLEGAL)
	}
}

func TestSetsRegister(t *testing.T) {
	if reg, ok := SetsRegister(OpLDA); !ok || reg != 'A' {
		t.Errorf("LDA should set A, got %q ok=%v", reg, ok)
	}
	if _, ok := SetsRegister(OpSTA); ok {
		t.Errorf("STA should not set any register")
	}
}

func TestChangesCarry(t *testing.T) {
	if !ChangesCarry(OpADC) {
		t.Errorf("ADC should change carry")
	}
	if ChangesCarry(OpLDA) {
		t.Errorf("LDA should not change carry")
	}
}
