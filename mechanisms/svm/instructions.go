package svm

import (
	"fmt"

	solana "github.com/gagliardetto/solana-go"
)

// InstructionPolicy configures how many, and which, instructions beyond the
// mandatory ComputeLimit + ComputePrice + TransferChecked triad a facilitator
// accepts in a payment transaction.
type InstructionPolicy struct {
	// AllowAdditional permits more than the minimal core instructions. When
	// false (the default), a transaction must contain exactly the coreCount
	// instructions passed to Validate.
	AllowAdditional bool

	// MaxInstructions caps the total instruction count when AllowAdditional
	// is true. Zero means the default cap of 10.
	MaxInstructions int

	// BlockList rejects a transaction containing any non-core instruction
	// whose program ID appears here.
	BlockList []solana.PublicKey

	// AllowList requires every non-core instruction's program ID to appear
	// here. An empty AllowList rejects every non-core instruction.
	AllowList []solana.PublicKey

	// AllowFeePayerInInstructions skips the check that the fee payer's
	// pubkey appears in no instruction's account list. Zero value (false)
	// matches the spec default of require_fee_payer_not_in_instructions=true.
	AllowFeePayerInInstructions bool
}

// DefaultInstructionPolicy reproduces the historical behavior: exactly the
// ComputeLimit, ComputePrice and TransferChecked instructions, nothing more.
func DefaultInstructionPolicy() InstructionPolicy {
	return InstructionPolicy{AllowAdditional: false}
}

// defaultMaxInstructions is used when AllowAdditional is true and
// MaxInstructions is left at its zero value.
const defaultMaxInstructions = 10

// Validate checks tx's instruction count, and the program IDs of every
// instruction after the first coreCount, against the policy. The core
// instructions themselves are assumed already validated by the caller.
func (p InstructionPolicy) Validate(tx *solana.Transaction, coreCount int) error {
	total := len(tx.Message.Instructions)
	if total < coreCount {
		return fmt.Errorf("transaction has %d instructions, expected at least %d", total, coreCount)
	}

	if !p.AllowAdditional {
		if total != coreCount {
			return fmt.Errorf("transaction must contain exactly %d instructions, got %d", coreCount, total)
		}
		return nil
	}

	max := p.MaxInstructions
	if max == 0 {
		max = defaultMaxInstructions
	}
	if total > max {
		return fmt.Errorf("transaction has %d instructions, exceeding the maximum of %d", total, max)
	}

	for i := coreCount; i < total; i++ {
		inst := tx.Message.Instructions[i]
		progID := tx.Message.AccountKeys[inst.ProgramIDIndex]

		for _, blocked := range p.BlockList {
			if progID.Equals(blocked) {
				return fmt.Errorf("instruction %d uses blocked program %s", i, progID)
			}
		}

		if len(p.AllowList) == 0 {
			return fmt.Errorf("instruction %d uses program %s but the allow list is empty", i, progID)
		}
		allowed := false
		for _, a := range p.AllowList {
			if progID.Equals(a) {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("instruction %d uses program %s which is not in the allow list", i, progID)
		}
	}
	return nil
}

// CheckFeePayerNotInInstructions verifies that feePayer's pubkey does not
// appear in the account list of any instruction in tx, the general
// "require_fee_payer_not_in_instructions" boundary beyond the narrower
// transfer-authority check: a fee payer listed as a signer or writable
// account anywhere else in the transaction could be made to sign away its
// own funds or authorize an unrelated action. A no-op when
// AllowFeePayerInInstructions is set.
func (p InstructionPolicy) CheckFeePayerNotInInstructions(tx *solana.Transaction, feePayer solana.PublicKey) error {
	if p.AllowFeePayerInInstructions {
		return nil
	}
	for i, inst := range tx.Message.Instructions {
		accounts, err := inst.ResolveInstructionAccounts(&tx.Message)
		if err != nil {
			return fmt.Errorf("instruction %d: resolve accounts: %w", i, err)
		}
		for _, acc := range accounts {
			if acc.PublicKey.Equals(feePayer) {
				return fmt.Errorf("instruction %d references fee payer %s in its account list", i, feePayer)
			}
		}
	}
	return nil
}

// FindTransferInstruction returns the index of the first SPL Token /
// Token-2022 instruction at or after fromIndex, so a transfer instruction
// can be located even when additional instructions are allowed to precede
// or follow it.
func FindTransferInstruction(tx *solana.Transaction, fromIndex int) (int, error) {
	for i := fromIndex; i < len(tx.Message.Instructions); i++ {
		progID := tx.Message.AccountKeys[tx.Message.Instructions[i].ProgramIDIndex]
		if progID == solana.TokenProgramID || progID == solana.Token2022ProgramID {
			return i, nil
		}
	}
	return -1, fmt.Errorf("no transfer instruction found at or after index %d", fromIndex)
}
