package jit

import (
	"testing"

	"github.com/beebjit/fdc8271/internal/hostasm"
)

// flatMem is a 64KiB MemReader backed by a plain byte slice.
type flatMem []byte

func newFlatMem() flatMem { return make(flatMem, 65536) }

func (m flatMem) ReadByte(addr uint16) byte { return m[addr] }

func identityResolver(addr uint16) int32 { return int32(addr) }

func TestCompileBlockConstantStoreFold(t *testing.T) {
	mem := newFlatMem()
	// LDA #$42 ; STA $1234 ; BRK (BRK terminates the block).
	mem[0x0000] = 0xA9 // LDA imm
	mem[0x0001] = 0x42
	mem[0x0002] = 0x8D // STA abs
	mem[0x0003] = 0x34
	mem[0x0004] = 0x12
	mem[0x0005] = 0x00 // BRK

	c := New(mem, identityResolver)
	asm := hostasm.New()
	c.CompileBlock(asm, 0)

	var foundStoAImm bool
	for _, instr := range asm.Instrs() {
		if instr.Synth == hostasm.OpStoAImm {
			foundStoAImm = true
			if instr.Value1 != 0x1234 || instr.Value2 != 0x42 {
				t.Fatalf("STOA_IMM operands = (%#x, %#x), want (0x1234, 0x42)",
					instr.Value1, instr.Value2)
			}
		}
		if instr.Synth == hostasm.Op6502 && instr.Opcode6502 == 0x8D {
			t.Fatalf("raw STA abs (0x8D) was emitted; should have folded to STOA_IMM")
		}
	}
	if !foundStoAImm {
		t.Fatalf("expected a STOA_IMM micro-op, found none")
	}
}

func TestCompileBlockStopsAtUnconditionalTerminal(t *testing.T) {
	mem := newFlatMem()
	mem[0x0000] = 0x18 // CLC
	mem[0x0001] = 0x4C // JMP abs -- terminal
	mem[0x0002] = 0x00
	mem[0x0003] = 0x10
	mem[0x0004] = 0xA9 // LDA imm -- must NOT be compiled; outside the block
	mem[0x0005] = 0xFF

	c := New(mem, identityResolver)
	asm := hostasm.New()
	c.CompileBlock(asm, 0)

	for _, instr := range asm.Instrs() {
		if instr.Synth == hostasm.Op6502 && instr.Opcode6502 == 0xA9 {
			t.Fatalf("compiled past the terminal JMP into the next block")
		}
	}
}

func TestCompileBlockADCFoldsToAddImmWhenCarryKnownClear(t *testing.T) {
	mem := newFlatMem()
	mem[0x0000] = 0x18 // CLC -- carry now known 0
	mem[0x0001] = 0x69 // ADC imm
	mem[0x0002] = 0x05
	mem[0x0003] = 0x00 // BRK

	c := New(mem, identityResolver)
	asm := hostasm.New()
	c.CompileBlock(asm, 0)

	var foundAddImm, foundRawADC bool
	for _, instr := range asm.Instrs() {
		if instr.Synth == hostasm.OpAddImm {
			foundAddImm = true
			if instr.Value1 != 5 {
				t.Fatalf("ADD_IMM operand = %d, want 5", instr.Value1)
			}
		}
		if instr.Synth == hostasm.Op6502 && instr.Opcode6502 == 0x69 {
			foundRawADC = true
		}
	}
	if !foundAddImm {
		t.Fatalf("expected ADC with known-clear carry to fold to ADD_IMM")
	}
	if foundRawADC {
		t.Fatalf("raw ADC opcode should have been rewritten to ADD_IMM")
	}
}
