package controller

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/suite"
	"github.com/valyala/fasthttp"

	"go-bridge-quorum/db"
	"go-bridge-quorum/ledger"
	"go-bridge-quorum/model"
	"go-bridge-quorum/service"
)

var (
	admin     = common.HexToAddress("0xad")
	v1        = common.HexToAddress("0x01")
	v2        = common.HexToAddress("0x02")
	user      = common.HexToAddress("0x0e")
	owner1    = common.HexToAddress("0x0a")
	owner2    = common.HexToAddress("0x0b")
	initiator = common.HexToAddress("0x1717")
	wallet    = common.HexToAddress("0x5afe")
	sink      = common.HexToAddress("0x51c4")
)

type ControllerTestSuite struct {
	suite.Suite

	token   *ledger.Token
	chain   *ledger.Chain
	handler fasthttp.RequestHandler
}

func TestControllerTestSuite(t *testing.T) {
	suite.Run(t, new(ControllerTestSuite))
}

func (s *ControllerTestSuite) SetupTest() {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }

	s.token = ledger.NewToken()
	s.chain = ledger.NewChain()
	s.chain.Credit(wallet, uint256.NewInt(100))

	bridge := service.NewBridge(db.NewMemory(), s.token, clock)
	s.Require().NoError(bridge.Initialize(ctx, service.BridgeConfig{
		Admin:        admin,
		Threshold:    2,
		Validators:   []common.Address{v1, v2},
		MaxPerTx:     uint256.NewInt(1_000_000),
		MinPerTx:     uint256.NewInt(100),
		DailyCap:     uint256.NewInt(5_000_000),
		FeeBps:       50,
		FeeCollector: admin,
	}))
	multisig := service.NewMultisig(db.NewMemory(), s.chain, s.chain, clock)
	s.Require().NoError(multisig.Initialize(ctx, service.WalletConfig{
		Address:   wallet,
		Initiator: initiator,
		Owners:    []common.Address{owner1, owner2},
		Required:  2,
	}))

	r := NewRouter()
	NewBridgeController(bridge).Register(r)
	NewMultisigController(multisig).Register(r)
	NewRecordsController(map[string]RecordSource{
		model.SourceBridge:   bridge,
		model.SourceMultisig: multisig,
	}).Register(r)
	s.handler = r.Handler
}

func (s *ControllerTestSuite) do(method, uri string, body interface{}) (int, []byte) {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	if body != nil {
		b, err := json.Marshal(body)
		s.Require().NoError(err)
		ctx.Request.SetBody(b)
	}
	s.handler(&ctx)
	return ctx.Response.StatusCode(), append([]byte(nil), ctx.Response.Body()...)
}

func (s *ControllerTestSuite) decode(b []byte, v interface{}) {
	s.Require().NoError(json.Unmarshal(b, v), string(b))
}

func (s *ControllerTestSuite) TestAttestFlow() {
	id := model.DepositEventID(common.HexToHash("0xfeed"), 3)
	req := AttestRequest{SourceTxHash: common.HexToHash("0xfeed").Hex(), LogIndex: 3, Recipient: user.Hex(), Amount: "1000", Validator: v1.Hex()}

	status, body := s.do(fasthttp.MethodPost, "/bridge/attest", req)
	s.Require().Equal(fasthttp.StatusOK, status, string(body))
	var view AttestationView
	s.decode(body, &view)
	s.Require().Equal(id.Hex(), view.ID)
	s.Require().False(view.Processed)
	s.Require().Equal(uint64(1), view.ConfirmationCount)

	status, body = s.do(fasthttp.MethodPost, "/bridge/attest", req)
	s.Require().Equal(fasthttp.StatusConflict, status, string(body))

	req.Validator = v2.Hex()
	status, body = s.do(fasthttp.MethodPost, "/bridge/attest", req)
	s.Require().Equal(fasthttp.StatusOK, status, string(body))
	s.decode(body, &view)
	s.Require().True(view.Processed)
	s.Require().Equal([]string{v1.Hex(), v2.Hex()}, view.ConfirmedBy)

	balance, err := s.token.BalanceOf(context.Background(), user)
	s.Require().NoError(err)
	s.Require().Equal(uint64(995), balance.Uint64())

	status, body = s.do(fasthttp.MethodGet, "/bridge/attestation?id="+id.Hex(), nil)
	s.Require().Equal(fasthttp.StatusOK, status)
	s.decode(body, &view)
	s.Require().Equal("1000", view.Amount)

	status, body = s.do(fasthttp.MethodGet, fmt.Sprintf("/bridge/attested?id=%s&validator=%s", id.Hex(), v2.Hex()), nil)
	s.Require().Equal(fasthttp.StatusOK, status)
	s.Require().JSONEq(`{"attested":true}`, string(body))

	status, body = s.do(fasthttp.MethodGet, "/bridge/state", nil)
	s.Require().Equal(fasthttp.StatusOK, status)
	var state StateView
	s.decode(body, &state)
	s.Require().Equal("5", state.AccumulatedFees)
	s.Require().Equal("1000", state.DailyTotal)
	s.Require().Len(state.Validators, 2)

	status, body = s.do(fasthttp.MethodGet, "/records?source=bridge&after=1&limit=10", nil)
	s.Require().Equal(fasthttp.StatusOK, status)
	var records []struct {
		Seq     uint64                 `json:"seq"`
		Kind    string                 `json:"kind"`
		Payload map[string]interface{} `json:"payload"`
	}
	s.decode(body, &records)
	s.Require().Len(records, 2)
	s.Require().Equal(model.KindFeeCollected, records[0].Kind)
	s.Require().Equal(model.KindAttestationProcessed, records[1].Kind)
	s.Require().Equal("995", records[1].Payload["netAmount"])
}

func (s *ControllerTestSuite) TestErrorStatuses() {
	good := AttestRequest{ID: common.HexToHash("0x01").Hex(), Recipient: user.Hex(), Amount: "1000", Validator: v1.Hex()}

	testCases := []struct {
		name   string
		method string
		uri    string
		body   interface{}
		status int
	}{
		{"unknown route", fasthttp.MethodGet, "/nope", nil, fasthttp.StatusNotFound},
		{"wrong method", fasthttp.MethodGet, "/bridge/attest", nil, fasthttp.StatusMethodNotAllowed},
		{"malformed body", fasthttp.MethodPost, "/bridge/attest", "{", fasthttp.StatusBadRequest},
		{"not a validator", fasthttp.MethodPost, "/bridge/attest", AttestRequest{ID: good.ID, Recipient: user.Hex(), Amount: "1000", Validator: user.Hex()}, fasthttp.StatusForbidden},
		{"bad amount", fasthttp.MethodPost, "/bridge/attest", AttestRequest{ID: good.ID, Recipient: user.Hex(), Amount: "abc", Validator: v1.Hex()}, fasthttp.StatusBadRequest},
		{"missing id", fasthttp.MethodPost, "/bridge/attest", AttestRequest{Recipient: user.Hex(), Amount: "1000", Validator: v1.Hex()}, fasthttp.StatusBadRequest},
		{"unknown attestation", fasthttp.MethodGet, "/bridge/attestation?id=" + common.HexToHash("0x77").Hex(), nil, fasthttp.StatusNotFound},
		{"withdraw over max", fasthttp.MethodPost, "/bridge/withdraw", WithdrawRequest{Destination: user.Hex(), Amount: "2000000", Caller: user.Hex()}, fasthttp.StatusUnprocessableEntity},
		{"withdraw without balance", fasthttp.MethodPost, "/bridge/withdraw", WithdrawRequest{Destination: user.Hex(), Amount: "1000", Caller: user.Hex()}, fasthttp.StatusUnprocessableEntity},
		{"fees by stranger", fasthttp.MethodPost, "/bridge/fees/withdraw", WithdrawFeesRequest{Recipient: user.Hex(), Caller: user.Hex()}, fasthttp.StatusForbidden},
		{"no fees yet", fasthttp.MethodPost, "/bridge/fees/withdraw", WithdrawFeesRequest{Recipient: admin.Hex(), Caller: admin.Hex()}, fasthttp.StatusUnprocessableEntity},
		{"unknown admin action", fasthttp.MethodPost, "/bridge/admin", AdminRequest{Action: "explode", Caller: admin.Hex()}, fasthttp.StatusBadRequest},
		{"records without source", fasthttp.MethodGet, "/records", nil, fasthttp.StatusBadRequest},
		{"records limit too large", fasthttp.MethodGet, "/records?source=bridge&limit=5000", nil, fasthttp.StatusBadRequest},
		{"unknown call", fasthttp.MethodGet, "/multisig/call?id=9", nil, fasthttp.StatusNotFound},
		{"call without id", fasthttp.MethodGet, "/multisig/call", nil, fasthttp.StatusBadRequest},
		{"submit by stranger", fasthttp.MethodPost, "/multisig/submit", SubmitRequest{Destination: sink.Hex(), Caller: user.Hex()}, fasthttp.StatusForbidden},
		{"bad payload", fasthttp.MethodPost, "/multisig/submit", SubmitRequest{Destination: sink.Hex(), Payload: "zz", Caller: owner1.Hex()}, fasthttp.StatusBadRequest},
		{"emergency over balance", fasthttp.MethodPost, "/multisig/emergency-withdraw", EmergencyWithdrawRequest{Amount: "101", Recipient: sink.Hex(), Caller: initiator.Hex()}, fasthttp.StatusUnprocessableEntity},
	}
	for _, tc := range testCases {
		tc := tc
		s.Run(tc.name, func() {
			var body interface{} = tc.body
			if raw, ok := tc.body.(string); ok {
				var ctx fasthttp.RequestCtx
				ctx.Request.Header.SetMethod(tc.method)
				ctx.Request.SetRequestURI(tc.uri)
				ctx.Request.SetBodyString(raw)
				s.handler(&ctx)
				s.Require().Equal(tc.status, ctx.Response.StatusCode())
				return
			}
			status, out := s.do(tc.method, tc.uri, body)
			s.Require().Equal(tc.status, status, string(out))
			var e errorResponse
			s.decode(out, &e)
			s.Require().NotEmpty(e.Error)
		})
	}
}

func (s *ControllerTestSuite) TestPausedBridge() {
	status, body := s.do(fasthttp.MethodPost, "/bridge/admin", AdminRequest{Action: "pause", Caller: admin.Hex()})
	s.Require().Equal(fasthttp.StatusOK, status, string(body))

	status, _ = s.do(fasthttp.MethodPost, "/bridge/attest", AttestRequest{ID: common.HexToHash("0x01").Hex(), Recipient: user.Hex(), Amount: "1000", Validator: v1.Hex()})
	s.Require().Equal(fasthttp.StatusServiceUnavailable, status)

	status, _ = s.do(fasthttp.MethodPost, "/bridge/admin", AdminRequest{Action: "unpause", Caller: v1.Hex()})
	s.Require().Equal(fasthttp.StatusForbidden, status)
}

func (s *ControllerTestSuite) TestBridgeAdminActions() {
	three := common.HexToAddress("0x03")
	for _, req := range []AdminRequest{
		{Action: "add_validator", Address: three.Hex()},
		{Action: "remove_validator", Address: v2.Hex()},
		{Action: "set_threshold", Value: "3"},
		{Action: "set_fee_bps", Value: "100"},
		{Action: "set_max_per_tx", Value: "2000000"},
		{Action: "set_min_per_tx", Value: "0"},
		{Action: "set_daily_cap", Value: "0x989680"},
		{Action: "set_fee_collector", Address: user.Hex()},
	} {
		req.Caller = admin.Hex()
		status, body := s.do(fasthttp.MethodPost, "/bridge/admin", req)
		s.Require().Equal(fasthttp.StatusOK, status, req.Action+": "+string(body))
	}

	status, body := s.do(fasthttp.MethodGet, "/bridge/state", nil)
	s.Require().Equal(fasthttp.StatusOK, status)
	var state StateView
	s.decode(body, &state)
	s.Require().Equal(uint64(3), state.Threshold)
	s.Require().Equal(uint64(100), state.FeeBps)
	s.Require().Equal("10000000", state.DailyCap)
	s.Require().Equal(user.Hex(), state.FeeCollector)
	s.Require().Equal([]string{v1.Hex(), three.Hex()}, state.Validators)

	status, body = s.do(fasthttp.MethodGet, "/bridge/validator?address="+v2.Hex(), nil)
	s.Require().Equal(fasthttp.StatusOK, status)
	s.Require().JSONEq(`{"validator":false}`, string(body))

	status, _ = s.do(fasthttp.MethodPost, "/bridge/admin", AdminRequest{Action: "set_fee_bps", Value: "1001", Caller: admin.Hex()})
	s.Require().Equal(fasthttp.StatusBadRequest, status)
}

func (s *ControllerTestSuite) TestMultisigFlow() {
	status, body := s.do(fasthttp.MethodPost, "/multisig/submit", SubmitRequest{Destination: sink.Hex(), Value: "40", Payload: "0x1234", Caller: owner1.Hex()})
	s.Require().Equal(fasthttp.StatusOK, status, string(body))
	var call CallView
	s.decode(body, &call)
	s.Require().Equal(uint64(0), call.ID)
	s.Require().False(call.Executed)
	s.Require().Equal("0x1234", call.Payload)

	status, body = s.do(fasthttp.MethodGet, fmt.Sprintf("/multisig/confirmed?id=0&owner=%s", owner2.Hex()), nil)
	s.Require().Equal(fasthttp.StatusOK, status)
	s.Require().JSONEq(`{"confirmed":false}`, string(body))

	status, body = s.do(fasthttp.MethodPost, "/multisig/confirm", CallRequest{ID: 0, Caller: owner2.Hex()})
	s.Require().Equal(fasthttp.StatusOK, status, string(body))
	s.decode(body, &call)
	s.Require().True(call.Executed)
	s.Require().Len(call.ConfirmedBy, 2)

	balance, err := s.chain.Balance(context.Background(), sink)
	s.Require().NoError(err)
	s.Require().Equal(uint64(40), balance.Uint64())

	status, _ = s.do(fasthttp.MethodPost, "/multisig/revoke", CallRequest{ID: 0, Caller: owner1.Hex()})
	s.Require().Equal(fasthttp.StatusConflict, status)
}

func (s *ControllerTestSuite) TestMultisigExecutionFailure() {
	failing := true
	s.chain.Deploy(sink, ledger.ContractFunc(func(ctx context.Context, from common.Address, value *uint256.Int, payload []byte) error {
		if failing {
			return errors.New("reverted")
		}
		return nil
	}))

	status, _ := s.do(fasthttp.MethodPost, "/multisig/submit", SubmitRequest{Destination: sink.Hex(), Caller: owner1.Hex()})
	s.Require().Equal(fasthttp.StatusOK, status)
	status, body := s.do(fasthttp.MethodPost, "/multisig/confirm", CallRequest{ID: 0, Caller: owner2.Hex()})
	s.Require().Equal(fasthttp.StatusOK, status, string(body))
	var call CallView
	s.decode(body, &call)
	s.Require().False(call.Executed)

	status, _ = s.do(fasthttp.MethodPost, "/multisig/execute", CallRequest{ID: 0, Caller: owner1.Hex()})
	s.Require().Equal(fasthttp.StatusBadGateway, status)

	failing = false
	status, body = s.do(fasthttp.MethodPost, "/multisig/execute", CallRequest{ID: 0, Caller: owner1.Hex()})
	s.Require().Equal(fasthttp.StatusOK, status, string(body))
	s.decode(body, &call)
	s.Require().True(call.Executed)
}

func (s *ControllerTestSuite) TestMultisigAdmin() {
	three := common.HexToAddress("0x0c")
	status, body := s.do(fasthttp.MethodPost, "/multisig/admin", AdminRequest{Action: "add_owner", Address: three.Hex(), Caller: initiator.Hex()})
	s.Require().Equal(fasthttp.StatusOK, status, string(body))
	var w WalletView
	s.decode(body, &w)
	s.Require().Equal([]string{owner1.Hex(), owner2.Hex(), three.Hex()}, w.Owners)

	status, _ = s.do(fasthttp.MethodPost, "/multisig/admin", AdminRequest{Action: "change_requirement", Value: "3", Caller: initiator.Hex()})
	s.Require().Equal(fasthttp.StatusOK, status)
	status, body = s.do(fasthttp.MethodPost, "/multisig/admin", AdminRequest{Action: "remove_owner", Address: owner1.Hex(), Caller: initiator.Hex()})
	s.Require().Equal(fasthttp.StatusOK, status)
	s.decode(body, &w)
	s.Require().Equal(uint64(2), w.Required)
	s.Require().Equal([]string{three.Hex(), owner2.Hex()}, w.Owners)

	status, _ = s.do(fasthttp.MethodPost, "/multisig/admin", AdminRequest{Action: "add_owner", Address: owner1.Hex(), Caller: owner2.Hex()})
	s.Require().Equal(fasthttp.StatusForbidden, status)

	status, body = s.do(fasthttp.MethodPost, "/multisig/emergency-withdraw", EmergencyWithdrawRequest{Amount: "60", Recipient: sink.Hex(), Caller: initiator.Hex()})
	s.Require().Equal(fasthttp.StatusOK, status, string(body))

	status, body = s.do(fasthttp.MethodGet, "/records?source=multisig", nil)
	s.Require().Equal(fasthttp.StatusOK, status)
	var records []model.Record
	s.decode(body, &records)
	kinds := make([]string, len(records))
	for i, r := range records {
		kinds[i] = r.Kind
	}
	s.Require().Equal([]string{
		model.KindOwnerAdded,
		model.KindRequirementChanged,
		model.KindRequirementChanged,
		model.KindOwnerRemoved,
		model.KindEmergencyWithdrawal,
	}, kinds)
}

func (s *ControllerTestSuite) TestStatusFor() {
	s.Require().Equal(fasthttp.StatusConflict, statusFor(model.ErrAlreadyProcessed))
	s.Require().Equal(fasthttp.StatusConflict, statusFor(errors.Wrap(model.ErrAlreadyExecuted, "call 1")))
	s.Require().Equal(fasthttp.StatusUnprocessableEntity, statusFor(model.ErrExceedsDailyCap))
	s.Require().Equal(fasthttp.StatusInternalServerError, statusFor(errors.New("disk on fire")))
}

func (s *ControllerTestSuite) TestRecordsAfterOutOfRange() {
	status, body := s.do(fasthttp.MethodGet, "/records?source=bridge&after=18446744073709551615", nil)
	s.Require().Equal(fasthttp.StatusBadRequest, status, string(body))

	status, body = s.do(fasthttp.MethodGet, "/records?source=bridge&after=9223372036854775807", nil)
	s.Require().Equal(fasthttp.StatusOK, status, string(body))
	s.Require().JSONEq(`[]`, string(body))

	status, body = s.do(fasthttp.MethodGet, "/records?source=multisig&after=18446744073709551616", nil)
	s.Require().Equal(fasthttp.StatusBadRequest, status, string(body))
}

func (s *ControllerTestSuite) TestRouterFallbacks() {
	r := NewRouter()
	r.GET("/boom", func(ctx *fasthttp.RequestCtx) {
		panic("boom")
	})
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(fasthttp.MethodGet)
	ctx.Request.SetRequestURI("/boom")
	r.Handler(&ctx)
	s.Require().Equal(fasthttp.StatusInternalServerError, ctx.Response.StatusCode())
	s.Require().JSONEq(`{"error":"internal error"}`, string(ctx.Response.Body()))

	var wrong fasthttp.RequestCtx
	wrong.Request.Header.SetMethod(fasthttp.MethodPost)
	wrong.Request.SetRequestURI("/bridge/state")
	s.handler(&wrong)
	s.Require().Equal(fasthttp.StatusMethodNotAllowed, wrong.Response.StatusCode())
	s.Require().Contains(string(wrong.Response.Header.Peek(fasthttp.HeaderAllow)), fasthttp.MethodGet)
}
