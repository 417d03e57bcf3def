// Package hostasm is the Assembler collaborator consumed by the JIT
// compiler. Rather than emitting real host machine code, it assembles a
// small portable bytecode: one opcode byte (a Synth marker or a raw 6502
// opcode carried straight through) followed by zero, one, or two operand
// words, matching the shape of the original's per-instruction emit_* calls
// without committing this module to a specific host CPU architecture.
package hostasm

// Synth is a synthetic host opcode: either one of the JIT's own markers, or
// Op6502 signalling that the following operand is a real 6502 opcode
// byte to be interpreted verbatim by whatever executes the bytecode.
type Synth byte

const (
	OpDebug Synth = iota
	OpLoadCarry
	OpLoadCarryInv
	OpLoadOverflow
	OpSaveCarry
	OpSaveCarryInv
	OpSaveOverflow
	OpFlagA
	OpFlagX
	OpFlagY
	OpAddImm
	OpSubImm
	OpStoAImm
	OpPush16
	Op6502 // followed by: 6502 opcode byte, then its operand bytes verbatim
)

// Instr is one assembled bytecode instruction: a synthetic opcode plus up to
// two operand values. Op6502 instructions additionally carry the literal
// 6502 opcode byte in Opcode6502.
type Instr struct {
	Synth      Synth
	Opcode6502 byte
	Value1     int32
	Value2     int32
}

// Assembler accumulates a stream of Instr values for one compiled block.
// Each Emit* call corresponds to one emit_* primitive in the original.
type Assembler struct {
	instrs []Instr
}

// New creates an empty Assembler.
func New() *Assembler {
	return &Assembler{}
}

// Reset clears the instruction stream for reuse across compiles, matching
// the original's per-opcode scratch buffer that is reused and reset for
// every 6502 instruction.
func (a *Assembler) Reset() {
	a.instrs = a.instrs[:0]
}

// Len returns the number of instructions assembled so far.
func (a *Assembler) Len() int {
	return len(a.instrs)
}

// Instrs returns the assembled instruction stream.
func (a *Assembler) Instrs() []Instr {
	return a.instrs
}

// Append copies another Assembler's instruction stream onto this one,
// mirroring util_buffer_append: a per-opcode scratch buffer folded into the
// growing block buffer.
func (a *Assembler) Append(src *Assembler) {
	a.instrs = append(a.instrs, src.instrs...)
}

func (a *Assembler) emit(synth Synth) {
	a.instrs = append(a.instrs, Instr{Synth: synth})
}

func (a *Assembler) emitValue1(synth Synth, value1 int32) {
	a.instrs = append(a.instrs, Instr{Synth: synth, Value1: value1})
}

// EmitDebug emits a breakpoint/trace marker carrying the source 6502
// address being compiled.
func (a *Assembler) EmitDebug(addr6502 uint16) { a.emitValue1(OpDebug, int32(addr6502)) }

// EmitLoadCarry loads the host carry flag from tracked 6502 state.
func (a *Assembler) EmitLoadCarry() { a.emit(OpLoadCarry) }

// EmitLoadCarryInv loads the host carry flag inverted (for SBC).
func (a *Assembler) EmitLoadCarryInv() { a.emit(OpLoadCarryInv) }

// EmitLoadOverflow loads the host overflow flag from tracked 6502 state.
func (a *Assembler) EmitLoadOverflow() { a.emit(OpLoadOverflow) }

// EmitSaveCarry stores the host carry flag back into tracked 6502 state.
func (a *Assembler) EmitSaveCarry() { a.emit(OpSaveCarry) }

// EmitSaveCarryInv stores the host carry flag back, inverted.
func (a *Assembler) EmitSaveCarryInv() { a.emit(OpSaveCarryInv) }

// EmitSaveOverflow stores the host overflow flag back into tracked state.
func (a *Assembler) EmitSaveOverflow() { a.emit(OpSaveOverflow) }

// EmitFlagA recomputes N/Z from the A register.
func (a *Assembler) EmitFlagA() { a.emit(OpFlagA) }

// EmitFlagX recomputes N/Z from the X register.
func (a *Assembler) EmitFlagX() { a.emit(OpFlagX) }

// EmitFlagY recomputes N/Z from the Y register.
func (a *Assembler) EmitFlagY() { a.emit(OpFlagY) }

// EmitAddImm folds a carry-known-zero ADC into a plain add.
func (a *Assembler) EmitAddImm(value byte) { a.emitValue1(OpAddImm, int32(value)) }

// EmitSubImm folds a carry-known-one SBC into a plain subtract.
func (a *Assembler) EmitSubImm(value byte) { a.emitValue1(OpSubImm, int32(value)) }

// EmitStoAImm folds a store of a compile-time-known register value directly
// into an immediate store to addr.
func (a *Assembler) EmitStoAImm(addr uint16, value byte) {
	a.instrs = append(a.instrs, Instr{Synth: OpStoAImm, Value1: int32(addr), Value2: int32(value)})
}

// EmitPush16 pushes a 16-bit value (used by BRK to push the return address).
func (a *Assembler) EmitPush16(value uint16) { a.emitValue1(OpPush16, int32(value)) }

// Emit6502 carries a real 6502 opcode through verbatim, with up to one
// 16-bit operand (immediate bytes, zero-page/absolute addresses, or a
// resolved host branch target).
func (a *Assembler) Emit6502(opcode byte, operand int32) {
	a.instrs = append(a.instrs, Instr{Synth: Op6502, Opcode6502: opcode, Value1: operand})
}
