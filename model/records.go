package model

import "time"

const (
	SourceBridge   = "bridge"
	SourceMultisig = "multisig"
)

// Record kinds. Each kind has a matching payload type below.
const (
	KindAttestationRecorded  = "attestation.recorded"
	KindAttestationProcessed = "attestation.processed"
	KindWithdrawalPending    = "withdrawal.pending"
	KindFeeCollected         = "fee.collected"
	KindFeesWithdrawn        = "fees.withdrawn"
	KindValidatorAdded       = "validator.added"
	KindValidatorRemoved     = "validator.removed"
	KindThresholdChanged     = "threshold.changed"
	KindPaused               = "bridge.paused"
	KindUnpaused             = "bridge.unpaused"
	KindPolicyChanged        = "policy.changed"

	KindCallSubmitted       = "call.submitted"
	KindCallConfirmed       = "call.confirmed"
	KindCallRevoked         = "call.revoked"
	KindCallExecuted        = "call.executed"
	KindCallExecutionFailed = "call.execution_failed"
	KindOwnerAdded          = "owner.added"
	KindOwnerRemoved        = "owner.removed"
	KindRequirementChanged  = "requirement.changed"
	KindEmergencyWithdrawal = "emergency.withdrawal"
)

// Record is one audit entry. Payload is the JSON encoding of the kind's payload.
type Record struct {
	Seq       uint64    `json:"seq"`
	Source    string    `json:"source"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Payload   []byte    `json:"-"`
}

type AttestationRecordedPayload struct {
	ID                string `json:"id"`
	Validator         string `json:"validator"`
	Recipient         string `json:"recipient"`
	Amount            string `json:"amount"`
	ConfirmationCount uint64 `json:"confirmationCount"`
	Threshold         uint64 `json:"threshold"`
}

type TransferPayload struct {
	ID                string `json:"id"`
	Recipient         string `json:"recipient"`
	NetAmount         string `json:"netAmount"`
	Fee               string `json:"fee"`
	Timestamp         int64  `json:"timestamp"`
	ConfirmationCount uint64 `json:"confirmationCount"`
	Status            string `json:"status"`
}

type WithdrawalPayload struct {
	Nonce       uint64 `json:"nonce"`
	Caller      string `json:"caller"`
	Destination string `json:"destination"`
	NetAmount   string `json:"netAmount"`
	Fee         string `json:"fee"`
	Timestamp   int64  `json:"timestamp"`
	Status      string `json:"status"`
}

type FeePayload struct {
	Amount    string `json:"amount"`
	Total     string `json:"total"`
	Recipient string `json:"recipient,omitempty"`
}

type AddressPayload struct {
	Address string `json:"address"`
	By      string `json:"by"`
}

// ChangePayload carries old and new values of an administrative setting.
type ChangePayload struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
	By    string `json:"by"`
}

type CallPayload struct {
	CallID      uint64 `json:"callId"`
	Owner       string `json:"owner,omitempty"`
	Destination string `json:"destination,omitempty"`
	Value       string `json:"value,omitempty"`
	Payload     string `json:"payload,omitempty"`
	Error       string `json:"error,omitempty"`
}

type EmergencyPayload struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	By        string `json:"by"`
}
