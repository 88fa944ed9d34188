package controller

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fasthttp/router"
	"github.com/holiman/uint256"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"go-bridge-quorum/logger"
	"go-bridge-quorum/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type errorResponse struct {
	Error string `json:"error"`
}

/*
This function maps an engine error to its HTTP status. Anything that is not one of
the model error kinds is treated as an internal failure and logged
*/
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrUnauthorized):
		return fasthttp.StatusForbidden
	case errors.Is(err, model.ErrAlreadyProcessed),
		errors.Is(err, model.ErrAlreadyExecuted),
		errors.Is(err, model.ErrAlreadyConfirmed):
		return fasthttp.StatusConflict
	case errors.Is(err, model.ErrNotFound):
		return fasthttp.StatusNotFound
	case errors.Is(err, model.ErrLimitExceeded), errors.Is(err, model.ErrInsufficientFunds):
		return fasthttp.StatusUnprocessableEntity
	case errors.Is(err, model.ErrInvalidParameter):
		return fasthttp.StatusBadRequest
	case errors.Is(err, model.ErrExternalCallFailed):
		return fasthttp.StatusBadGateway
	case errors.Is(err, model.ErrPaused):
		return fasthttp.StatusServiceUnavailable
	}
	return fasthttp.StatusInternalServerError
}

func writeError(ctx *fasthttp.RequestCtx, err error) {
	status := statusFor(err)
	if status == fasthttp.StatusInternalServerError {
		logger.LogError(err)
	}
	writeJSON(ctx, status, errorResponse{Error: err.Error()})
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		logger.LogError(err)
		ctx.Error(err.Error(), fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(b)
}

func decodeBody(ctx *fasthttp.RequestCtx, v interface{}) error {
	if err := json.Unmarshal(ctx.PostBody(), v); err != nil {
		return errors.Wrapf(model.ErrInvalidParameter, "request body: %v", err)
	}
	return nil
}

func queryAddress(ctx *fasthttp.RequestCtx, name string) (common.Address, error) {
	a, err := model.ParseAddress(string(ctx.QueryArgs().Peek(name)))
	return a, errors.Wrap(err, name)
}

func queryUint(ctx *fasthttp.RequestCtx, name string, def uint64) (uint64, error) {
	raw := ctx.QueryArgs().Peek(name)
	if len(raw) == 0 {
		return def, nil
	}
	v, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(model.ErrInvalidParameter, "%s %q", name, raw)
	}
	return v, nil
}

// optionalAmount treats an empty string as zero.
func optionalAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	return model.ParseAmount(s)
}

// NewRouter returns a router whose fallbacks answer in the same JSON shape as the
// handlers. A panicking handler is logged and turned into a 500.
func NewRouter() *router.Router {
	r := router.New()
	r.NotFound = func(ctx *fasthttp.RequestCtx) {
		writeJSON(ctx, fasthttp.StatusNotFound, errorResponse{Error: "no route for " + string(ctx.Path())})
	}
	r.MethodNotAllowed = func(ctx *fasthttp.RequestCtx) {
		allow := string(ctx.Response.Header.Peek(fasthttp.HeaderAllow))
		writeJSON(ctx, fasthttp.StatusMethodNotAllowed, errorResponse{Error: "use " + allow})
	}
	r.PanicHandler = func(ctx *fasthttp.RequestCtx, v interface{}) {
		logger.LogError(errors.Errorf("panic serving %s %s: %v", ctx.Method(), ctx.Path(), v))
		writeJSON(ctx, fasthttp.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
	return r
}
