package controller

import (
	"context"
	"math"

	"github.com/fasthttp/router"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"go-bridge-quorum/model"
)

// RecordSource is an engine whose audit log can be paged through.
type RecordSource interface {
	Records(ctx context.Context, after uint64, limit int) ([]model.Record, error)
}

type RecordsController struct {
	sources map[string]RecordSource
}

func NewRecordsController(sources map[string]RecordSource) *RecordsController {
	return &RecordsController{
		sources: sources,
	}
}

func (c *RecordsController) Register(r *router.Router) {
	r.GET("/records", c.GetRecords)
}

type RecordView struct {
	model.Record
	Payload jsoniter.RawMessage `json:"payload"`
}

/*
This handler pages through one engine's audit records in sequence order. Indexers
pass the last sequence number they saw as after
*/
func (c *RecordsController) GetRecords(ctx *fasthttp.RequestCtx) {
	name := string(ctx.QueryArgs().Peek("source"))
	source, ok := c.sources[name]
	if !ok {
		writeError(ctx, errors.Wrapf(model.ErrInvalidParameter, "unknown source %q", name))
		return
	}
	after, err := queryUint(ctx, "after", 0)
	if err != nil {
		writeError(ctx, err)
		return
	}
	if after > math.MaxInt64 {
		writeError(ctx, errors.Wrapf(model.ErrInvalidParameter, "after %d out of range", after))
		return
	}
	limit, err := queryUint(ctx, "limit", 100)
	if err != nil {
		writeError(ctx, err)
		return
	}
	if limit == 0 || limit > 1000 {
		writeError(ctx, errors.Wrapf(model.ErrInvalidParameter, "limit %d not in [1, 1000]", limit))
		return
	}
	records, err := source.Records(ctx, after, int(limit))
	if err != nil {
		writeError(ctx, err)
		return
	}
	out := make([]RecordView, len(records))
	for i, r := range records {
		out[i] = RecordView{Record: r, Payload: r.Payload}
	}
	writeJSON(ctx, fasthttp.StatusOK, out)
}
