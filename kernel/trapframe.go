package kernel

import (
	"bytes"
	"encoding/binary"
)

// Trap numbers.
const (
	TDivide = 0
	TDebug  = 1
	TNMI    = 2
	TBrkpt  = 3
	TOflow  = 4
	TBound  = 5
	TIllop  = 6
	TDevice = 7
	TDblflt = 8
	TTSS    = 10
	TSegnp  = 11
	TStack  = 12
	TGpflt  = 13
	TPgflt  = 14
	TFperr  = 16

	// NumUpcalls bounds the per-environment upcall table.
	NumUpcalls = 16
)

// Page fault error code bits.
const (
	FecPr = 0x1 // fault caused by protection violation
	FecWr = 0x2 // fault caused by a write
	FecU  = 0x4 // fault occurred in user mode
)

const (
	GDUserText = 0x18
	GDUserData = 0x20

	flIF   = 0x00000200
	flIOPL = 0x00003000
)

// PushRegs holds the general purpose registers in pusha order.
type PushRegs struct {
	EDI  uint32
	ESI  uint32
	EBP  uint32
	OESP uint32
	EBX  uint32
	EDX  uint32
	ECX  uint32
	EAX  uint32
}

// Trapframe is the saved user register state of an environment.
type Trapframe struct {
	Regs   PushRegs
	ES     uint32
	DS     uint32
	Trapno uint32
	Err    uint32
	EIP    uint32
	CS     uint32
	EFlags uint32
	ESP    uint32
	SS     uint32
}

// TrapframeSize is the size of a Trapframe in user memory.
var TrapframeSize = uint32(binary.Size(Trapframe{}))

// UTrapframe is the fault record pushed on the user exception stack.
type UTrapframe struct {
	FaultVA uint32
	Err     uint32
	Regs    PushRegs
	EIP     uint32
	EFlags  uint32
	ESP     uint32
}

// UTrapframeSize is the size of a UTrapframe on the exception stack.
var UTrapframeSize = uint32(binary.Size(UTrapframe{}))

// Marshal encodes v (a Trapframe or UTrapframe) in little-endian layout.
func Marshal(v any) []byte {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Unmarshal decodes b into v (a *Trapframe or *UTrapframe).
func Unmarshal(b []byte, v any) error {
	return binary.Read(bytes.NewReader(b), binary.LittleEndian, v)
}

func userTrapframe(esp, eip uint32) Trapframe {
	return Trapframe{
		ES:     GDUserData | 3,
		DS:     GDUserData | 3,
		SS:     GDUserData | 3,
		CS:     GDUserText | 3,
		ESP:    esp,
		EIP:    eip,
		EFlags: flIF,
	}
}
