// internal/types/priority.go
package types

import (
	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
)

// PriorityFee describes the compute budget attached to a swap transaction.
// Fee is in micro-lamports per compute unit.
type PriorityFee struct {
	ComputeUnits  uint32
	MicroLamports uint64
}

// DefaultPriorityFee is a mid-range profile suitable for meme-coin swaps.
var DefaultPriorityFee = PriorityFee{
	ComputeUnits:  400_000,
	MicroLamports: 5_000,
}

// Instructions builds the compute-budget instructions for the profile.
func (p PriorityFee) Instructions() []solana.Instruction {
	var instructions []solana.Instruction
	if p.ComputeUnits > 0 {
		instructions = append(instructions,
			computebudget.NewSetComputeUnitLimitInstruction(p.ComputeUnits).Build())
	}
	if p.MicroLamports > 0 {
		instructions = append(instructions,
			computebudget.NewSetComputeUnitPriceInstruction(p.MicroLamports).Build())
	}
	return instructions
}
