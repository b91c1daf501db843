package crud

import (
	"strconv"

	"github.com/nephrolytics/practice-api/logger"
	"github.com/nephrolytics/practice-api/messaging"
	"github.com/nephrolytics/practice-api/server"
)

// ListRequest carries pagination query parameters.
type ListRequest struct {
	Page     int `query:"page" validate:"omitempty,min=1"`
	PageSize int `query:"page_size" validate:"omitempty,min=1,max=100"`
}

// IDRequest carries the entity id path parameter.
type IDRequest struct {
	ID int64 `param:"id" validate:"required,gt=0"`
}

// Handler exposes a Repository as REST endpoints under path and emits a
// domain event after every successful write.
type Handler[T any, P Record[T]] struct {
	repo   *Repository[T, P]
	events *messaging.Emitter
	log    logger.Logger
	path   string
}

// NewHandler creates a handler serving repo under path, e.g. "/patients".
func NewHandler[T any, P Record[T]](repo *Repository[T, P], events *messaging.Emitter, log logger.Logger, path string) *Handler[T, P] {
	return &Handler[T, P]{repo: repo, events: events, log: log, path: path}
}

// Register adds the list, get, create, update and delete routes.
func (h *Handler[T, P]) Register(hr *server.HandlerRegistry, r server.RouteRegistrar) {
	server.GET(hr, r, h.path, h.list)
	server.GET(hr, r, h.path+"/:id", h.get)
	server.POST(hr, r, h.path, h.create)
	server.PUT(hr, r, h.path+"/:id", h.update)
	server.DELETE(hr, r, h.path+"/:id", h.delete)
}

func (h *Handler[T, P]) list(req ListRequest, hc server.HandlerContext) (Page[T], server.IAPIError) {
	params := ListParams{Page: req.Page, PageSize: req.PageSize}
	for _, col := range h.repo.Schema().Filters {
		raw := hc.Echo.QueryParam(col)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Page[T]{}, server.NewBadRequestError("Invalid " + col)
		}
		if params.Filters == nil {
			params.Filters = make(map[string]int64)
		}
		params.Filters[col] = id
	}

	page, err := h.repo.List(hc.Context(), params)
	if err != nil {
		return Page[T]{}, h.fail(hc, err)
	}
	return page, nil
}

func (h *Handler[T, P]) get(req IDRequest, hc server.HandlerContext) (*T, server.IAPIError) {
	v, err := h.repo.Get(hc.Context(), req.ID)
	if err != nil {
		return nil, h.fail(hc, err)
	}
	return v, nil
}

func (h *Handler[T, P]) create(req T, hc server.HandlerContext) (server.Result[*T], server.IAPIError) {
	v, err := h.repo.Create(hc.Context(), &req)
	if err != nil {
		return server.Result[*T]{}, h.fail(hc, err)
	}
	h.emit(hc, messaging.ActionCreated, P(v).RecordMeta())
	return server.Created(v), nil
}

func (h *Handler[T, P]) update(req T, hc server.HandlerContext) (*T, server.IAPIError) {
	id, apiErr := hc.PathID("id")
	if apiErr != nil {
		return nil, apiErr
	}
	v, err := h.repo.Update(hc.Context(), id, &req)
	if err != nil {
		return nil, h.fail(hc, err)
	}
	h.emit(hc, messaging.ActionUpdated, P(v).RecordMeta())
	return v, nil
}

func (h *Handler[T, P]) delete(req IDRequest, hc server.HandlerContext) (server.NoContentResult, server.IAPIError) {
	owner, err := h.repo.Delete(hc.Context(), req.ID)
	if err != nil {
		return server.NoContentResult{}, h.fail(hc, err)
	}
	h.emit(hc, messaging.ActionDeleted, &Meta{ID: req.ID, AccountID: &owner})
	return server.NoContent(), nil
}

func (h *Handler[T, P]) emit(hc server.HandlerContext, action string, meta *Meta) {
	var actor, account int64
	if scope, ok := hc.Scope(); ok {
		actor = scope.Principal.ID
	}
	if meta.AccountID != nil {
		account = *meta.AccountID
	}
	h.events.Emit(hc.Context(), messaging.NewEvent(h.repo.Schema().Resource, action, account, meta.ID, actor))
}

func (h *Handler[T, P]) fail(hc server.HandlerContext, err error) server.IAPIError {
	apiErr := server.FromError(err, h.repo.Schema().Resource)
	if apiErr.HTTPStatus() >= 500 {
		h.log.WithContext(hc.Context()).Error().
			Err(err).
			Str("resource", h.repo.Schema().Resource).
			Msg("Request failed")
	}
	return apiErr
}
