package controller

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/fasthttp/router"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"go-bridge-quorum/logger"
	"go-bridge-quorum/model"
	"go-bridge-quorum/service"
)

type MultisigController struct {
	multisig *service.Multisig
}

func NewMultisigController(multisig *service.Multisig) *MultisigController {
	return &MultisigController{
		multisig: multisig,
	}
}

func (c *MultisigController) Register(r *router.Router) {
	r.POST("/multisig/submit", c.Submit)
	r.POST("/multisig/confirm", c.Confirm)
	r.POST("/multisig/execute", c.Execute)
	r.POST("/multisig/revoke", c.Revoke)
	r.POST("/multisig/admin", c.Admin)
	r.POST("/multisig/emergency-withdraw", c.EmergencyWithdraw)
	r.GET("/multisig/wallet", c.GetWallet)
	r.GET("/multisig/call", c.GetCall)
	r.GET("/multisig/confirmed", c.GetConfirmed)
}

type SubmitRequest struct {
	Destination string `json:"destination"`
	Value       string `json:"value"`
	// Payload is 0x-prefixed hex, empty for a plain value transfer.
	Payload string `json:"payload"`
	Caller  string `json:"caller"`
}

type CallRequest struct {
	ID     uint64 `json:"id"`
	Caller string `json:"caller"`
}

type CallView struct {
	ID          uint64   `json:"id"`
	Destination string   `json:"destination"`
	Value       string   `json:"value"`
	Payload     string   `json:"payload"`
	Executed    bool     `json:"executed"`
	ConfirmedBy []string `json:"confirmedBy"`
}

func callView(call *model.PendingCall) CallView {
	return CallView{
		ID:          call.ID,
		Destination: call.Destination.Hex(),
		Value:       call.Value.Dec(),
		Payload:     hexutil.Encode(call.Payload),
		Executed:    call.Executed,
		ConfirmedBy: hexes(call.ConfirmedBy),
	}
}

/*
This handler queues a call for the calling owner and returns it as stored, which
already shows it executed when one confirmation is enough
*/
func (c *MultisigController) Submit(ctx *fasthttp.RequestCtx) {
	var req SubmitRequest
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
	value, err := optionalAmount(req.Value)
	if err != nil {
		writeError(ctx, err)
		return
	}
	var payload []byte
	if req.Payload != "" {
		if payload, err = hexutil.Decode(req.Payload); err != nil {
			writeError(ctx, errors.Wrapf(model.ErrInvalidParameter, "payload: %v", err))
			return
		}
	}
	id, err := c.multisig.Submit(ctx, dest, value, payload, caller)
	if err != nil {
		writeError(ctx, err)
		return
	}
	c.writeCall(ctx, id)
}

func (c *MultisigController) writeCall(ctx *fasthttp.RequestCtx, id uint64) {
	call, err := c.multisig.Call(ctx, id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, callView(call))
}

func decodeCallRequest(ctx *fasthttp.RequestCtx) (uint64, common.Address, error) {
	var req CallRequest
	if err := decodeBody(ctx, &req); err != nil {
		return 0, common.Address{}, err
	}
	caller, err := model.ParseAddress(req.Caller)
	if err != nil {
		return 0, common.Address{}, errors.Wrap(err, "caller")
	}
	return req.ID, caller, nil
}

func (c *MultisigController) Confirm(ctx *fasthttp.RequestCtx) {
	id, caller, err := decodeCallRequest(ctx)
	if err != nil {
		writeError(ctx, err)
		return
	}
	if err := c.multisig.Confirm(ctx, id, caller); err != nil {
		writeError(ctx, err)
		return
	}
	c.writeCall(ctx, id)
}

// Execute reports a failed destination as 502 even though the attempt was recorded.
func (c *MultisigController) Execute(ctx *fasthttp.RequestCtx) {
	id, caller, err := decodeCallRequest(ctx)
	if err != nil {
		writeError(ctx, err)
		return
	}
	if err := c.multisig.Execute(ctx, id, caller); err != nil {
		if errors.Is(err, model.ErrExternalCallFailed) {
			logger.LogInfo("execute call %d: %v", id, err)
		}
		writeError(ctx, err)
		return
	}
	c.writeCall(ctx, id)
}

func (c *MultisigController) Revoke(ctx *fasthttp.RequestCtx) {
	id, caller, err := decodeCallRequest(ctx)
	if err != nil {
		writeError(ctx, err)
		return
	}
	if err := c.multisig.Revoke(ctx, id, caller); err != nil {
		writeError(ctx, err)
		return
	}
	c.writeCall(ctx, id)
}

func (c *MultisigController) Admin(ctx *fasthttp.RequestCtx) {
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
	switch req.Action {
	case "add_owner", "remove_owner":
		owner, aerr := req.address()
		if aerr != nil {
			err = aerr
		} else if req.Action == "add_owner" {
			err = c.multisig.AddOwner(ctx, owner, caller)
		} else {
			err = c.multisig.RemoveOwner(ctx, owner, caller)
		}
	case "change_requirement":
		required, verr := req.uintValue()
		if verr != nil {
			err = verr
		} else {
			err = c.multisig.ChangeRequirement(ctx, required, caller)
		}
	default:
		err = errors.Wrapf(model.ErrInvalidParameter, "unknown action %q", req.Action)
	}
	if err != nil {
		writeError(ctx, err)
		return
	}
	c.GetWallet(ctx)
}

type EmergencyWithdrawRequest struct {
	Amount    string `json:"amount"`
	Recipient string `json:"recipient"`
	Caller    string `json:"caller"`
}

func (c *MultisigController) EmergencyWithdraw(ctx *fasthttp.RequestCtx) {
	var req EmergencyWithdrawRequest
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
	amount, err := model.ParseAmount(req.Amount)
	if err != nil {
		writeError(ctx, err)
		return
	}
	if err := c.multisig.EmergencyWithdraw(ctx, amount, recipient, caller); err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]string{"amount": amount.Dec()})
}

type WalletView struct {
	Address    string   `json:"address"`
	Initiator  string   `json:"initiator"`
	Owners     []string `json:"owners"`
	Required   uint64   `json:"required"`
	NextCallID uint64   `json:"nextCallId"`
}

func (c *MultisigController) GetWallet(ctx *fasthttp.RequestCtx) {
	w, err := c.multisig.Wallet(ctx)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, WalletView{
		Address:    w.Address.Hex(),
		Initiator:  w.Initiator.Hex(),
		Owners:     hexes(w.Owners.List()),
		Required:   w.Required,
		NextCallID: w.NextCallID,
	})
}

func (c *MultisigController) GetCall(ctx *fasthttp.RequestCtx) {
	if len(ctx.QueryArgs().Peek("id")) == 0 {
		writeError(ctx, errors.Wrap(model.ErrInvalidParameter, "id is required"))
		return
	}
	id, err := queryUint(ctx, "id", 0)
	if err != nil {
		writeError(ctx, err)
		return
	}
	c.writeCall(ctx, id)
}

func (c *MultisigController) GetConfirmed(ctx *fasthttp.RequestCtx) {
	id, err := queryUint(ctx, "id", 0)
	if err != nil {
		writeError(ctx, err)
		return
	}
	owner, err := queryAddress(ctx, "owner")
	if err != nil {
		writeError(ctx, err)
		return
	}
	ok, err := c.multisig.IsConfirmed(ctx, id, owner)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]bool{"confirmed": ok})
}
