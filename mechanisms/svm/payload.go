package svm

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
)

// ExactSvmPayload is the opaque "exact" scheme payload carried inside
// PaymentPayload.Payload: a base64-encoded, partially-signed transaction.
type ExactSvmPayload struct {
	Transaction string `json:"transaction"`
}

// ToMap converts the payload to the map[string]interface{} shape the
// protocol core stores in PaymentPayload.Payload.
func (p *ExactSvmPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"transaction": p.Transaction,
	}
}

// PayloadFromMap decodes the opaque payload map back into an ExactSvmPayload.
func PayloadFromMap(raw map[string]interface{}) (*ExactSvmPayload, error) {
	if raw == nil {
		return nil, fmt.Errorf("payload is empty")
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	var payload ExactSvmPayload
	if err := json.Unmarshal(b, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal svm exact payload: %w", err)
	}
	if payload.Transaction == "" {
		return nil, fmt.Errorf("payload missing transaction")
	}
	return &payload, nil
}

// DecodeTransaction decodes a base64-encoded serialized transaction.
func DecodeTransaction(base64Tx string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(base64Tx)
	if err != nil {
		return nil, fmt.Errorf("decode base64 transaction: %w", err)
	}
	tx := new(solana.Transaction)
	if err := bin.NewBinDecoder(raw).Decode(tx); err != nil {
		return nil, fmt.Errorf("deserialize transaction: %w", err)
	}
	return tx, nil
}

// EncodeTransaction serializes and base64-encodes tx for wire transport.
func EncodeTransaction(tx *solana.Transaction) (string, error) {
	buf := new(bytes.Buffer)
	if err := bin.NewBinEncoder(buf).Encode(tx); err != nil {
		return "", fmt.Errorf("serialize transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// GetTokenPayerFromTransaction scans tx for its SPL TransferChecked
// instruction and returns the transfer authority (the token owner whose
// funds are being moved), so callers have a payer identity before the
// transfer instruction is otherwise validated.
func GetTokenPayerFromTransaction(tx *solana.Transaction) (string, error) {
	for _, inst := range tx.Message.Instructions {
		progID := tx.Message.AccountKeys[inst.ProgramIDIndex]
		if progID != solana.TokenProgramID && progID != solana.Token2022ProgramID {
			continue
		}

		accounts, err := inst.ResolveInstructionAccounts(&tx.Message)
		if err != nil || len(accounts) < 4 {
			continue
		}

		decoded, err := token.DecodeInstruction(accounts, inst.Data)
		if err != nil {
			continue
		}

		if _, ok := decoded.Impl.(*token.TransferChecked); ok {
			return accounts[3].PublicKey.String(), nil
		}
	}
	return "", fmt.Errorf("no transfer instruction found in transaction")
}
