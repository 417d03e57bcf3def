// Package jit compiles 6502 basic blocks into the host bytecode assembled by
// internal/hostasm, applying the same per-opcode micro-op expansion and
// peephole constant folding as the original two-pass-free single-pass
// compiler: one pass over each block, with a small amount of tracked
// dataflow state feeding forward into later opcodes of the same block.
package jit

import (
	"github.com/beebjit/fdc8271/internal/hostasm"
	"github.com/beebjit/fdc8271/internal/sixfive"
)

// unknown is the dataflow sentinel for "value not known at compile time".
const unknown = -1

// MemReader gives the compiler read access to the 6502 address space it is
// translating.
type MemReader interface {
	ReadByte(addr uint16) byte
}

// HostAddressResolver maps a 6502 address (a jump/branch target) to
// whatever host-side representation the assembler's branch operand expects.
// It is consulted for absolute JMP/JSR targets and relative branch targets
// so that emitted branches can be fixed up against the host code layout.
type HostAddressResolver func(addr6502 uint16) int32

// Compiler holds the per-compile-call dataflow tracking state. A Compiler is
// not safe for concurrent use; create one per compiling thread.
type Compiler struct {
	mem      MemReader
	resolver HostAddressResolver
	debug    bool

	regA, regX, regY int32
	flagCarry        int32
	flagDecimal      int32
}

// Option configures a Compiler at construction.
type Option func(*Compiler)

// WithDebug enables a debug marker before every compiled opcode.
func WithDebug(debug bool) Option {
	return func(c *Compiler) { c.debug = debug }
}

// New creates a Compiler reading 6502 memory through mem and resolving
// branch targets through resolver.
func New(mem MemReader, resolver HostAddressResolver, opts ...Option) *Compiler {
	c := &Compiler{mem: mem, resolver: resolver}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// opcodeDetails is the per-opcode compile-time decode: its metadata plus the
// micro-op sequence (pre-main, main, post-main) that implements it.
type opcodeDetails struct {
	opcode6502 byte
	info       sixfive.Info
	uops       []uop
}

// uop is one micro-op: either a synthetic marker (is6502 false, synth names
// it) or a pass-through 6502 opcode (is6502 true), carrying the dataflow
// register/carry metadata needed by the peephole pass.
type uop struct {
	synth      hostasm.Synth
	is6502     bool
	opcode6502 byte
	optype     sixfive.Optype
	value1     int32
	value2     int32
}

// decode builds the opcode-details record for the 6502 instruction at addr,
// matching jit_compiler_get_opcode_details: pre-main flag loads, the main
// opcode with its resolved operand, and post-main flag saves / register
// flagging.
func (c *Compiler) decode(addr uint16) opcodeDetails {
	opcode := c.mem.ReadByte(addr)
	info := sixfive.Lookup(opcode)

	details := opcodeDetails{opcode6502: opcode, info: info}

	if c.debug {
		details.uops = append(details.uops, uop{synth: hostasm.OpDebug, value1: int32(addr)})
	}

	switch info.Optype {
	case sixfive.OpADC, sixfive.OpBCC, sixfive.OpBCS, sixfive.OpROL, sixfive.OpROR:
		details.uops = append(details.uops, uop{synth: hostasm.OpLoadCarry})
	case sixfive.OpBVC, sixfive.OpBVS:
		details.uops = append(details.uops, uop{synth: hostasm.OpLoadOverflow})
	case sixfive.OpSBC:
		details.uops = append(details.uops, uop{synth: hostasm.OpLoadCarryInv})
	}

	main := uop{is6502: true, opcode6502: opcode, optype: info.Optype}
	switch info.Mode {
	case sixfive.ModeImplied, sixfive.ModeAccumulator:
		// No operand.
	case sixfive.ModeImmediate, sixfive.ModeZeropage, sixfive.ModeZeropageX, sixfive.ModeZeropageY:
		main.value1 = int32(c.mem.ReadByte(addr + 1))
	case sixfive.ModeRelative:
		target := int32(addr) + 2 + int32(int8(c.mem.ReadByte(addr+1)))
		main.value1 = c.resolve(uint16(target))
	case sixfive.ModeAbsolute, sixfive.ModeAbsoluteX, sixfive.ModeAbsoluteY:
		lo := c.mem.ReadByte(addr + 1)
		hi := c.mem.ReadByte(addr + 2)
		target := uint16(hi)<<8 | uint16(lo)
		if info.Optype == sixfive.OpJMP {
			main.value1 = c.resolve(target)
		} else {
			main.value1 = int32(target)
		}
	case sixfive.ModeIndirect:
		lo := c.mem.ReadByte(addr + 1)
		hi := c.mem.ReadByte(addr + 2)
		main.value1 = int32(uint16(hi)<<8 | uint16(lo))
	}
	details.uops = append(details.uops, main)

	switch info.Optype {
	case sixfive.OpADC:
		details.uops = append(details.uops,
			uop{synth: hostasm.OpSaveCarry}, uop{synth: hostasm.OpSaveOverflow})
	case sixfive.OpASL, sixfive.OpROL, sixfive.OpROR:
		details.uops = append(details.uops, uop{synth: hostasm.OpSaveCarry})
		if info.Optype != sixfive.OpASL && info.Mode == sixfive.ModeAccumulator {
			details.uops = append(details.uops, uop{synth: hostasm.OpFlagA})
		}
	case sixfive.OpBRK:
		details.uops[len(details.uops)-1] = uop{
			synth: hostasm.OpPush16, value1: int32(addr) + 2,
		}
		details.uops = append(details.uops,
			uop{is6502: true, opcode6502: 0x08, optype: sixfive.OpPHP},
			uop{is6502: true, opcode6502: 0x78, optype: sixfive.OpSEI},
			uop{is6502: true, opcode6502: 0x6C, optype: sixfive.OpJMP, value1: 0xFFFE},
		)
	case sixfive.OpCMP, sixfive.OpCPX, sixfive.OpCPY:
		details.uops = append(details.uops, uop{synth: hostasm.OpSaveCarryInv})
	case sixfive.OpLDA, sixfive.OpPLA:
		details.uops = append(details.uops, uop{synth: hostasm.OpFlagA})
	case sixfive.OpLDX, sixfive.OpTAX, sixfive.OpTSX:
		details.uops = append(details.uops, uop{synth: hostasm.OpFlagX})
	case sixfive.OpLDY, sixfive.OpTAY:
		details.uops = append(details.uops, uop{synth: hostasm.OpFlagY})
	case sixfive.OpSBC:
		details.uops = append(details.uops,
			uop{synth: hostasm.OpSaveCarryInv}, uop{synth: hostasm.OpSaveOverflow})
	}

	return details
}

func (c *Compiler) resolve(addr6502 uint16) int32 {
	if c.resolver == nil {
		return int32(addr6502)
	}
	return c.resolver(addr6502)
}

// processUop applies the peephole rewrite for one micro-op against the
// compiler's tracked dataflow state, emits it, then updates that state.
func (c *Compiler) processUop(asm *hostasm.Assembler, u uop) {
	if !u.is6502 {
		switch u.synth {
		case hostasm.OpDebug:
			asm.EmitDebug(uint16(u.value1))
		case hostasm.OpLoadCarry:
			asm.EmitLoadCarry()
		case hostasm.OpLoadCarryInv:
			asm.EmitLoadCarryInv()
		case hostasm.OpLoadOverflow:
			asm.EmitLoadOverflow()
		case hostasm.OpSaveCarry:
			asm.EmitSaveCarry()
		case hostasm.OpSaveCarryInv:
			asm.EmitSaveCarryInv()
		case hostasm.OpSaveOverflow:
			asm.EmitSaveOverflow()
		case hostasm.OpFlagA:
			asm.EmitFlagA()
		case hostasm.OpFlagX:
			asm.EmitFlagX()
		case hostasm.OpFlagY:
			asm.EmitFlagY()
		case hostasm.OpPush16:
			asm.EmitPush16(uint16(u.value1))
		}
		return
	}

	opcode := u.opcode6502
	optype := u.optype

	// Peephole rewrites, mirroring jit_compiler_process_uop's switch on the
	// raw 6502 opcode.
	switch opcode {
	case 0x69: // ADC imm
		if c.flagCarry == 0 {
			asm.EmitAddImm(byte(u.value1))
			c.afterOpcode(optype, u.value1)
			return
		}
	case 0x84, 0x8C: // STY zpg/abs
		if c.regY != unknown {
			asm.EmitStoAImm(uint16(u.value1), byte(c.regY))
			c.afterOpcode(optype, u.value1)
			return
		}
	case 0x85, 0x8D: // STA zpg/abs
		if c.regA != unknown {
			asm.EmitStoAImm(uint16(u.value1), byte(c.regA))
			c.afterOpcode(optype, u.value1)
			return
		}
	case 0x86, 0x8E: // STX zpg/abs
		if c.regX != unknown {
			asm.EmitStoAImm(uint16(u.value1), byte(c.regX))
			c.afterOpcode(optype, u.value1)
			return
		}
	case 0xE9: // SBC imm
		if c.flagCarry == 1 {
			asm.EmitSubImm(byte(u.value1))
			c.afterOpcode(optype, u.value1)
			return
		}
	}

	asm.Emit6502(opcode, u.value1)
	loaded := u.value1
	if sixfive.Lookup(opcode).Mode != sixfive.ModeImmediate {
		loaded = unknown
	}
	c.afterOpcode(optype, loaded)
}

// afterOpcode updates tracked dataflow state after a main 6502 opcode has
// been emitted (whether or not it was peephole-rewritten).
func (c *Compiler) afterOpcode(optype sixfive.Optype, value1 int32) {
	if reg, ok := sixfive.SetsRegister(optype); ok {
		switch reg {
		case 'A':
			c.regA = unknown
		case 'X':
			c.regX = unknown
		case 'Y':
			c.regY = unknown
		}
	}
	if sixfive.ChangesCarry(optype) {
		c.flagCarry = unknown
	}

	switch optype {
	case sixfive.OpCLC:
		c.flagCarry = 0
	case sixfive.OpSEC:
		c.flagCarry = 1
	case sixfive.OpLDY:
		c.regY = value1
	case sixfive.OpLDX:
		c.regX = value1
	case sixfive.OpLDA:
		c.regA = value1
	case sixfive.OpCLD:
		c.flagDecimal = 0
	case sixfive.OpSED:
		c.flagDecimal = 1
	}
}

// CompileBlock compiles the 6502 basic block starting at addr into asm,
// stopping after (and including) the first instruction whose branch class
// is unconditional-terminal. Dataflow tracking resets to unknown at entry.
func (c *Compiler) CompileBlock(asm *hostasm.Assembler, addr uint16) {
	c.regA, c.regX, c.regY = unknown, unknown, unknown
	c.flagCarry, c.flagDecimal = unknown, unknown

	scratch := hostasm.New()

	for {
		scratch.Reset()

		details := c.decode(addr)
		for _, u := range details.uops {
			c.processUop(scratch, u)
		}
		asm.Append(scratch)

		if details.info.Branch == sixfive.BranchUnconditionalTerminal {
			break
		}
		addr += details.info.Len()
	}
}
