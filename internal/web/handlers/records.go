package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/saltyorg/notebox/internal/model"
	"github.com/saltyorg/notebox/internal/model/private"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// payload is a decoded create or update body
type payload interface {
	Data() model.Data
}

// Resource describes one private table exposed under /api/{name}.
type Resource struct {
	model     model.Model
	newCreate func() payload
	newUpdate func() payload
	present   func(*model.Record) map[string]any
}

type noteCreate struct {
	Title string `json:"title" validate:"required,max=200"`
	Body  string `json:"body" validate:"max=20000"`
}

func (p *noteCreate) Data() model.Data {
	return model.Data{"title": p.Title, "body": p.Body}
}

type noteUpdate struct {
	Title *string `json:"title" validate:"omitempty,min=1,max=200"`
	Body  *string `json:"body" validate:"omitempty,max=20000"`
}

func (p *noteUpdate) Data() model.Data {
	data := model.Data{}
	if p.Title != nil {
		data["title"] = *p.Title
	}
	if p.Body != nil {
		data["body"] = *p.Body
	}
	return data
}

type todoCreate struct {
	Title string `json:"title" validate:"required,max=200"`
	Done  bool   `json:"done"`
}

func (p *todoCreate) Data() model.Data {
	return model.Data{"title": p.Title, "done": p.Done}
}

type todoUpdate struct {
	Title *string `json:"title" validate:"omitempty,min=1,max=200"`
	Done  *bool   `json:"done"`
}

func (p *todoUpdate) Data() model.Data {
	data := model.Data{}
	if p.Title != nil {
		data["title"] = *p.Title
	}
	if p.Done != nil {
		data["done"] = *p.Done
	}
	return data
}

// Notes returns the notes resource
func (h *Handlers) Notes() *Resource {
	return &Resource{
		model:     h.store.Notes,
		newCreate: func() payload { return &noteCreate{} },
		newUpdate: func() payload { return &noteUpdate{} },
		present: func(rec *model.Record) map[string]any {
			return map[string]any{
				"id":         rec.ID(),
				"title":      rec.String("title"),
				"body":       rec.String("body"),
				"created_at": rec.Values["created_at"],
				"updated_at": rec.Values["updated_at"],
			}
		},
	}
}

// Todos returns the todos resource
func (h *Handlers) Todos() *Resource {
	return &Resource{
		model:     h.store.Todos,
		newCreate: func() payload { return &todoCreate{} },
		newUpdate: func() payload { return &todoUpdate{} },
		present: func(rec *model.Record) map[string]any {
			return map[string]any{
				"id":         rec.ID(),
				"title":      rec.String("title"),
				"done":       rec.Bool("done"),
				"created_at": rec.Values["created_at"],
				"updated_at": rec.Values["updated_at"],
			}
		},
	}
}

// MountResource registers the CRUD routes of res on r
func (h *Handlers) MountResource(res *Resource) func(chi.Router) {
	return func(r chi.Router) {
		r.Get("/", h.listRecords(res))
		r.Get("/count", h.countRecords(res))
		r.Post("/", h.createRecord(res))
		r.Get("/{id}", h.getRecord(res))
		r.Post("/{id}", h.updateRecord(res))
		r.Delete("/{id}", h.deleteRecord(res))
	}
}

func (h *Handlers) listRecords(res *Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, ok := h.pageQuery(w, r)
		if !ok {
			return
		}

		recs, err := res.model.All(r.Context(), q)
		if err != nil {
			h.modelError(w, r, err)
			return
		}
		total, err := res.model.Count(r.Context(), model.Query{})
		if err != nil {
			h.modelError(w, r, err)
			return
		}

		items := make([]map[string]any, 0, len(recs))
		for _, rec := range recs {
			items = append(items, res.present(rec))
		}
		h.writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
	}
}

func (h *Handlers) countRecords(res *Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		total, err := res.model.Count(r.Context(), model.Query{})
		if err != nil {
			h.modelError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]int64{"count": total})
	}
}

func (h *Handlers) createRecord(res *Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := res.newCreate()
		if !h.bind(w, r, p) {
			return
		}

		id, err := res.model.Insert(r.Context(), p.Data())
		if err != nil {
			h.modelError(w, r, err)
			return
		}

		rec, err := res.model.Get(r.Context(), id)
		if err != nil {
			h.modelError(w, r, err)
			return
		}
		if rec == nil {
			h.jsonError(w, "not found", http.StatusNotFound)
			return
		}
		h.writeJSON(w, http.StatusCreated, res.present(rec))
	}
}

func (h *Handlers) getRecord(res *Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.recordID(w, r)
		if !ok {
			return
		}

		rec, err := res.model.Get(r.Context(), id)
		if err != nil {
			h.modelError(w, r, err)
			return
		}
		if rec == nil {
			h.jsonError(w, "not found", http.StatusNotFound)
			return
		}
		h.writeJSON(w, http.StatusOK, res.present(rec))
	}
}

func (h *Handlers) updateRecord(res *Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.recordID(w, r)
		if !ok {
			return
		}
		p := res.newUpdate()
		if !h.bind(w, r, p) {
			return
		}
		data := p.Data()
		if len(data) == 0 {
			h.jsonError(w, "nothing to update", http.StatusBadRequest)
			return
		}

		n, err := res.model.Update(r.Context(), id, data)
		if err != nil {
			h.modelError(w, r, err)
			return
		}
		if n == 0 {
			h.jsonError(w, "not found", http.StatusNotFound)
			return
		}

		rec, err := res.model.Get(r.Context(), id)
		if err != nil {
			h.modelError(w, r, err)
			return
		}
		if rec == nil {
			h.jsonError(w, "not found", http.StatusNotFound)
			return
		}
		h.writeJSON(w, http.StatusOK, res.present(rec))
	}
}

func (h *Handlers) deleteRecord(res *Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.recordID(w, r)
		if !ok {
			return
		}

		n, err := res.model.Delete(r.Context(), id)
		if err != nil {
			h.modelError(w, r, err)
			return
		}
		if n == 0 {
			h.jsonError(w, "not found", http.StatusNotFound)
			return
		}
		h.jsonSuccess(w, "deleted")
	}
}

func (h *Handlers) recordID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.jsonError(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handlers) pageQuery(w http.ResponseWriter, r *http.Request) (model.Query, bool) {
	q := model.Query{Limit: defaultPageSize, OrderBy: r.URL.Query().Get("order")}

	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			h.jsonError(w, "invalid limit", http.StatusBadRequest)
			return q, false
		}
		q.Limit = min(limit, maxPageSize)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			h.jsonError(w, "invalid offset", http.StatusBadRequest)
			return q, false
		}
		q.Offset = offset
	}
	return q, true
}

// modelError maps model and decorator errors onto HTTP statuses
func (h *Handlers) modelError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, private.ErrNotLoggedIn):
		h.jsonError(w, "login required", http.StatusUnauthorized)
	case errors.Is(err, model.ErrInvalidOrder):
		h.jsonError(w, "invalid order", http.StatusBadRequest)
	default:
		h.serverError(w, r, err, "Record operation failed")
	}
}
