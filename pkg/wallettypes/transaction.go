// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wallettypes

// ActionKind discriminates the typed NEAR action schema accepted by the
// signer worker's transaction assembly step.
type ActionKind string

const (
	ActionAddKey         ActionKind = "AddKey"
	ActionDeleteKey      ActionKind = "DeleteKey"
	ActionFunctionCall   ActionKind = "FunctionCall"
	ActionTransfer       ActionKind = "Transfer"
	ActionDeployContract ActionKind = "DeployContract"
	ActionCreateAccount  ActionKind = "CreateAccount"
	ActionDeleteAccount  ActionKind = "DeleteAccount"
	ActionStake          ActionKind = "Stake"
)

// Action is a typed NEAR action. Exactly one payload field is populated,
// selected by Kind; validated by signerworker before assembly.
type Action struct {
	Kind ActionKind

	// AddKey / DeleteKey
	PublicKey      string
	AllowanceYocto string // empty means no allowance cap
	ReceiverID     string // function-call access key restriction; empty means full access key
	MethodNames    []string

	// FunctionCall
	MethodName string
	Args       []byte
	GasLimit   uint64
	DepositYocto string

	// Transfer
	// DepositYocto reused

	// DeployContract
	WASMCode []byte

	// Stake
	StakeYocto string
}

// TransactionInput is one transaction to be assembled and signed: a
// receiver plus its ordered actions. The signer worker accepts a batch of
// these, producing one signed transaction per input, in order.
type TransactionInput struct {
	ReceiverID AccountID
	Actions    []Action
}

// SignedTransaction is the signer worker's output: a Borsh-serialized NEAR
// SignedTransaction plus the metadata needed to broadcast and to correlate
// it back to its TransactionInput.
type SignedTransaction struct {
	SignerID   AccountID
	ReceiverID AccountID
	Nonce      uint64
	Hash       [32]byte
	BorshBytes []byte
}
