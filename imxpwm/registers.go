// Package imxpwm drives the PWM controller found on i.MX SoCs (i.MX27 and
// later) by direct register access. One Channel per peripheral instance.
package imxpwm

/*
	registers.go: register layout and bit fields of the PWM block.
	All registers are 32 bits wide at byte offsets from the block base.
*/

// Register byte offsets.
const (
	regControl uint32 = 0x00 // PWMCR: enable, polarity, clock source, prescaler, reset
	regStatus  uint32 = 0x04 // PWMSR: FIFO occupancy, compare/rollover flags
	regSample  uint32 = 0x0c // PWMSAR: duty-cycle sample register, FIFO-backed
	regPeriod  uint32 = 0x10 // PWMPR: period register
	regCounter uint32 = 0x14 // PWMCNR: free-running counter, read-only
)

// Control register bits.
const (
	controlStopEn  uint32 = 1 << 25 // keep counting in stop mode
	controlDozeEn  uint32 = 1 << 24 // keep counting in doze mode
	controlWaitEn  uint32 = 1 << 23 // keep counting in wait mode
	controlDebugEn uint32 = 1 << 22 // keep counting while a debugger halts the core
	controlSWReset uint32 = 1 << 3  // software reset, self-clearing
	controlEnable  uint32 = 1 << 0
)

// Output polarity configuration field (POUTC), control bits 19:18.
const (
	outputShift = 18
	outputMask  uint32 = 0x3 << outputShift

	outputNormal   uint32 = 0
	outputInverted uint32 = 1
	outputOff      uint32 = 2 // 2 and 3 disconnect the output
)

// Clock source field, control bits 17:16.
const (
	clockSourceShift = 16

	clockSourceOff     uint32 = 0
	clockSourceIPG     uint32 = 1
	clockSourceIPGHigh uint32 = 2
	clockSourceIPG32K  uint32 = 3
)

// Prescaler field, control bits 15:4. The hardware stores divisor-1.
const (
	prescalerShift = 4
	prescalerMask  uint32 = 0xfff << prescalerShift
)

// Status register FIFO occupancy field, bits 2:0.
const (
	fifoAvailMask uint32 = 0x7
	fifoDepth            = 4 // FIFOAV of 4 means no free slot
)

// A period register value of 0xffff has the same effect as 0xfffe, so
// reads collapse anything at or above the maximum to it.
const periodRegMax = 0xfffe

func prescalerSet(divisor uint32) uint32 {
	return ((divisor - 1) << prescalerShift) & prescalerMask
}

func prescalerGet(control uint32) uint32 {
	return (control&prescalerMask)>>prescalerShift + 1
}

func outputSet(val uint32) uint32 {
	return (val << outputShift) & outputMask
}

func outputGet(control uint32) uint32 {
	return (control & outputMask) >> outputShift
}

func clockSourceSet(src uint32) uint32 {
	return src << clockSourceShift
}

func fifoAvail(status uint32) int {
	return int(status & fifoAvailMask)
}
