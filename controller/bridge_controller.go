package controller

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/fasthttp/router"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"go-bridge-quorum/model"
	"go-bridge-quorum/service"
)

type BridgeController struct {
	bridge *service.Bridge
}

func NewBridgeController(bridge *service.Bridge) *BridgeController {
	return &BridgeController{
		bridge: bridge,
	}
}

func (c *BridgeController) Register(r *router.Router) {
	r.POST("/bridge/attest", c.Attest)
	r.POST("/bridge/withdraw", c.Withdraw)
	r.POST("/bridge/fees/withdraw", c.WithdrawFees)
	r.POST("/bridge/admin", c.Admin)
	r.GET("/bridge/state", c.GetState)
	r.GET("/bridge/attestation", c.GetAttestation)
	r.GET("/bridge/attested", c.GetAttested)
	r.GET("/bridge/validator", c.GetValidator)
}

// AttestRequest identifies the deposit either by its event id or by the
// source transaction hash and log index it was observed at.
type AttestRequest struct {
	ID           string `json:"id"`
	SourceTxHash string `json:"sourceTxHash"`
	LogIndex     uint64 `json:"logIndex"`
	Recipient    string `json:"recipient"`
	Amount       string `json:"amount"`
	Validator    string `json:"validator"`
}

type AttestationView struct {
	ID                string   `json:"id"`
	Recipient         string   `json:"recipient"`
	Amount            string   `json:"amount"`
	ConfirmationCount uint64   `json:"confirmationCount"`
	ConfirmedBy       []string `json:"confirmedBy"`
	Processed         bool     `json:"processed"`
	ProcessedAt       int64    `json:"processedAt,omitempty"`
}

func attestationView(rec *model.AttestationRecord) AttestationView {
	v := AttestationView{
		ID:                rec.ID.Hex(),
		Recipient:         rec.Recipient.Hex(),
		Amount:            rec.Amount.Dec(),
		ConfirmationCount: rec.ConfirmationCount,
		ConfirmedBy:       hexes(rec.ConfirmedBy),
		Processed:         rec.Processed,
	}
	if rec.Processed {
		v.ProcessedAt = rec.ProcessedAt.Unix()
	}
	return v
}

func hexes(in []common.Address) []string {
	out := make([]string, len(in))
	for i, a := range in {
		out[i] = a.Hex()
	}
	return out
}

func (req *AttestRequest) eventID() (model.EventID, error) {
	if req.ID != "" {
		return model.ParseEventID(req.ID)
	}
	if req.SourceTxHash == "" {
		return model.EventID{}, errors.Wrap(model.ErrInvalidParameter, "id or sourceTxHash is required")
	}
	tx, err := model.ParseEventID(req.SourceTxHash)
	if err != nil {
		return model.EventID{}, err
	}
	return model.DepositEventID(tx, req.LogIndex), nil
}

/*
This handler records one validator's attestation. The response carries the
attestation as it stands after the call, processed or not
*/
func (c *BridgeController) Attest(ctx *fasthttp.RequestCtx) {
	var req AttestRequest
	if err := decodeBody(ctx, &req); err != nil {
		writeError(ctx, err)
		return
	}
	id, err := req.eventID()
	if err != nil {
		writeError(ctx, err)
		return
	}
	recipient, err := model.ParseAddress(req.Recipient)
	if err != nil {
		writeError(ctx, errors.Wrap(err, "recipient"))
		return
	}
	validator, err := model.ParseAddress(req.Validator)
	if err != nil {
		writeError(ctx, errors.Wrap(err, "validator"))
		return
	}
	amount, err := model.ParseAmount(req.Amount)
	if err != nil {
		writeError(ctx, err)
		return
	}
	rec, err := c.bridge.Attest(ctx, id, recipient, amount, validator)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, attestationView(rec))
}

type WithdrawRequest struct {
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
	Caller      string `json:"caller"`
}

func (c *BridgeController) Withdraw(ctx *fasthttp.RequestCtx) {
	var req WithdrawRequest
	if err := decodeBody(ctx, &req); err != nil {
		writeError(ctx, err)
		return
	}
	dest, err := model.ParseAddress(req.Destination)
	if err != nil {
		writeError(ctx, errors.Wrap(err, "destination"))
		return
	}
	caller, err := model.ParseAddress(req.Caller)
	if err != nil {
		writeError(ctx, errors.Wrap(err, "caller"))
		return
	}
	amount, err := model.ParseAmount(req.Amount)
	if err != nil {
		writeError(ctx, err)
		return
	}
	nonce, err := c.bridge.Withdraw(ctx, dest, amount, caller)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]uint64{"nonce": nonce})
}

type WithdrawFeesRequest struct {
	Recipient string `json:"recipient"`
	Caller    string `json:"caller"`
}

func (c *BridgeController) WithdrawFees(ctx *fasthttp.RequestCtx) {
	var req WithdrawFeesRequest
	if err := decodeBody(ctx, &req); err != nil {
		writeError(ctx, err)
		return
	}
	recipient, err := model.ParseAddress(req.Recipient)
	if err != nil {
		writeError(ctx, errors.Wrap(err, "recipient"))
		return
	}
	caller, err := model.ParseAddress(req.Caller)
	if err != nil {
		writeError(ctx, errors.Wrap(err, "caller"))
		return
	}
	amount, err := c.bridge.WithdrawAccumulatedFees(ctx, recipient, caller)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]string{"amount": amount.Dec()})
}

// AdminRequest carries one administrative action. Address and Value are read
// depending on the action.
type AdminRequest struct {
	Action  string `json:"action"`
	Caller  string `json:"caller"`
	Address string `json:"address"`
	Value   string `json:"value"`
}

func (req *AdminRequest) address() (common.Address, error) {
	a, err := model.ParseAddress(req.Address)
	return a, errors.Wrap(err, "address")
}

func (req *AdminRequest) uintValue() (uint64, error) {
	v, err := model.ParseAmount(req.Value)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, errors.Wrapf(model.ErrInvalidParameter, "value %s", req.Value)
	}
	return v.Uint64(), nil
}

func (c *BridgeController) Admin(ctx *fasthttp.RequestCtx) {
	var req AdminRequest
	if err := decodeBody(ctx, &req); err != nil {
		writeError(ctx, err)
		return
	}
	caller, err := model.ParseAddress(req.Caller)
	if err != nil {
		writeError(ctx, errors.Wrap(err, "caller"))
		return
	}
	if err := c.admin(ctx, &req, caller); err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
}

func (c *BridgeController) admin(ctx *fasthttp.RequestCtx, req *AdminRequest, caller common.Address) error {
	withAddress := func(fn func(common.Address) error) error {
		a, err := req.address()
		if err != nil {
			return err
		}
		return fn(a)
	}
	withAmount := func(fn func(*uint256.Int) error) error {
		v, err := model.ParseAmount(req.Value)
		if err != nil {
			return err
		}
		return fn(v)
	}
	withUint := func(fn func(uint64) error) error {
		v, err := req.uintValue()
		if err != nil {
			return err
		}
		return fn(v)
	}

	switch req.Action {
	case "add_validator":
		return withAddress(func(a common.Address) error { return c.bridge.AddValidator(ctx, a, caller) })
	case "remove_validator":
		return withAddress(func(a common.Address) error { return c.bridge.RemoveValidator(ctx, a, caller) })
	case "set_fee_collector":
		return withAddress(func(a common.Address) error { return c.bridge.SetFeeCollector(ctx, a, caller) })
	case "set_threshold":
		return withUint(func(v uint64) error { return c.bridge.SetThreshold(ctx, v, caller) })
	case "set_fee_bps":
		return withUint(func(v uint64) error { return c.bridge.SetFeeBps(ctx, v, caller) })
	case "set_max_per_tx":
		return withAmount(func(v *uint256.Int) error { return c.bridge.SetMaxPerTx(ctx, v, caller) })
	case "set_min_per_tx":
		return withAmount(func(v *uint256.Int) error { return c.bridge.SetMinPerTx(ctx, v, caller) })
	case "set_daily_cap":
		return withAmount(func(v *uint256.Int) error { return c.bridge.SetDailyCap(ctx, v, caller) })
	case "pause":
		return c.bridge.Pause(ctx, caller)
	case "unpause":
		return c.bridge.Unpause(ctx, caller)
	}
	return errors.Wrapf(model.ErrInvalidParameter, "unknown action %q", req.Action)
}

type StateView struct {
	Admin           string   `json:"admin"`
	Threshold       uint64   `json:"threshold"`
	Paused          bool     `json:"paused"`
	Validators      []string `json:"validators"`
	MaxPerTx        string   `json:"maxPerTx"`
	MinPerTx        string   `json:"minPerTx"`
	DailyCap        string   `json:"dailyCap"`
	DailyTotal      string   `json:"dailyTotal"`
	WindowStart     int64    `json:"windowStart"`
	FeeBps          uint64   `json:"feeBps"`
	FeeCollector    string   `json:"feeCollector"`
	AccumulatedFees string   `json:"accumulatedFees"`
	WithdrawalNonce uint64   `json:"withdrawalNonce"`
}

func (c *BridgeController) GetState(ctx *fasthttp.RequestCtx) {
	s, err := c.bridge.State(ctx)
	if err != nil {
		writeError(ctx, err)
		return
	}
	validators, err := c.bridge.Validators(ctx)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, StateView{
		Admin:           s.Admin.Hex(),
		Threshold:       s.Threshold,
		Paused:          s.Paused,
		Validators:      hexes(validators),
		MaxPerTx:        s.Limits.MaxPerTx.Dec(),
		MinPerTx:        s.Limits.MinPerTx.Dec(),
		DailyCap:        s.Limits.DailyCap.Dec(),
		DailyTotal:      s.Limits.DailyTotal.Dec(),
		WindowStart:     s.Limits.WindowStart.Unix(),
		FeeBps:          s.Fees.FeeBps,
		FeeCollector:    s.Fees.FeeCollector.Hex(),
		AccumulatedFees: s.Fees.AccumulatedFees.Dec(),
		WithdrawalNonce: s.WithdrawalNonce,
	})
}

func (c *BridgeController) GetAttestation(ctx *fasthttp.RequestCtx) {
	id, err := model.ParseEventID(string(ctx.QueryArgs().Peek("id")))
	if err != nil {
		writeError(ctx, err)
		return
	}
	rec, err := c.bridge.Attestation(ctx, id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, attestationView(rec))
}

func (c *BridgeController) GetAttested(ctx *fasthttp.RequestCtx) {
	id, err := model.ParseEventID(string(ctx.QueryArgs().Peek("id")))
	if err != nil {
		writeError(ctx, err)
		return
	}
	validator, err := queryAddress(ctx, "validator")
	if err != nil {
		writeError(ctx, err)
		return
	}
	ok, err := c.bridge.HasAttested(ctx, id, validator)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]bool{"attested": ok})
}

func (c *BridgeController) GetValidator(ctx *fasthttp.RequestCtx) {
	addr, err := queryAddress(ctx, "address")
	if err != nil {
		writeError(ctx, err)
		return
	}
	ok, err := c.bridge.IsValidator(ctx, addr)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]bool{"validator": ok})
}
