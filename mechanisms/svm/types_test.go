package svm

import "testing"

func TestParseProgramIDs(t *testing.T) {
	// Canonical SPL Token and Compute Budget program ids.
	ids, err := ParseProgramIDs([]string{
		"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA",
		"ComputeBudget111111111111111111111111111111",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 program ids, got %d", len(ids))
	}
}

func TestParseProgramIDsRejectsInvalidBase58(t *testing.T) {
	_, err := ParseProgramIDs([]string{"not-valid-base58!!!"})
	if err == nil {
		t.Error("expected error for invalid base58")
	}
}

func TestParseProgramIDsRejectsWrongLength(t *testing.T) {
	// Valid base58 but decodes to far fewer than 32 bytes.
	_, err := ParseProgramIDs([]string{"abc"})
	if err == nil {
		t.Error("expected error for wrong decoded length")
	}
}

func TestParseProgramIDsEmpty(t *testing.T) {
	ids, err := ParseProgramIDs(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected 0 ids, got %d", len(ids))
	}
}
