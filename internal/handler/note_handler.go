package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"note-history-server/internal/domain"
	"note-history-server/internal/service"
	"note-history-server/pkg/response"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const (
	noteNotFoundMessage = "note doesn't exist"
	noHistoryMessage    = "no history for this id"
	internalMessage     = "internal error"

	maxBodyBytes = 1 << 20
)

type NoteHandler struct {
	service *service.NoteService
}

func NewNoteHandler(service *service.NoteService) *NoteHandler {
	return &NoteHandler{
		service: service,
	}
}

type route struct {
	path    string
	methods []string
	handler http.HandlerFunc
}

func (h *NoteHandler) routes() []route {
	return []route{
		{"/notes", []string{http.MethodGet}, h.List},
		{"/note", []string{http.MethodGet}, h.Get},
		{"/history", []string{http.MethodGet}, h.History},
		{"/history/{id}", []string{http.MethodGet}, h.History},
		{"/create", []string{http.MethodPost}, h.Create},
		{"/update", []string{http.MethodPost}, h.Update},
		{"/delete", []string{http.MethodPost, http.MethodDelete}, h.Delete},
	}
}

// RegisterRoutes mounts every note route with and without a trailing slash.
func (h *NoteHandler) RegisterRoutes(r *mux.Router) {
	for _, rt := range h.routes() {
		methods := append(append([]string{}, rt.methods...), http.MethodOptions)
		r.HandleFunc(rt.path, rt.handler).Methods(methods...)
		r.HandleFunc(rt.path+"/", rt.handler).Methods(methods...)
	}
}

func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	params, err := bodyParams(r)
	if err != nil {
		response.BadRequest(w, service.Message(service.OperationCreate))
		return
	}

	note, err := h.service.Create(r.Context(), params)
	if err != nil {
		h.writeError(w, r, service.OperationCreate, err)
		return
	}

	response.Created(w, note)
}

func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	notes, err := h.service.List(r.Context())
	if err != nil {
		h.writeError(w, r, "list", err)
		return
	}

	response.Success(w, notes)
}

func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	params, err := queryParams(r)
	if err != nil {
		response.BadRequest(w, service.Message(service.OperationGet))
		return
	}

	note, err := h.service.Get(r.Context(), params)
	if err != nil {
		h.writeError(w, r, service.OperationGet, err)
		return
	}

	response.Success(w, note)
}

func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	params, err := bodyParams(r)
	if err != nil {
		response.BadRequest(w, service.Message(service.OperationUpdate))
		return
	}

	note, err := h.service.Update(r.Context(), params)
	if err != nil {
		h.writeError(w, r, service.OperationUpdate, err)
		return
	}

	response.Success(w, note)
}

func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	params, err := bodyParams(r)
	if err != nil {
		response.BadRequest(w, service.Message(service.OperationDelete))
		return
	}

	note, err := h.service.Delete(r.Context(), params)
	if err != nil {
		h.writeError(w, r, service.OperationDelete, err)
		return
	}

	response.Success(w, note)
}

func (h *NoteHandler) History(w http.ResponseWriter, r *http.Request) {
	params, err := queryParams(r)
	if err != nil {
		response.BadRequest(w, service.Message(service.OperationHistory))
		return
	}

	history, err := h.service.History(r.Context(), params)
	if err != nil {
		h.writeError(w, r, service.OperationHistory, err)
		return
	}

	if len(history) == 0 {
		response.Info(w, noHistoryMessage)
		return
	}

	response.Success(w, history)
}

func (h *NoteHandler) writeError(w http.ResponseWriter, r *http.Request, op service.Operation, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		response.BadRequest(w, verr.Message)

	case errors.Is(err, service.ErrNoteNotFound):
		response.Info(w, noteNotFoundMessage)

	case errors.Is(err, service.ErrIntegrity):
		zerolog.Ctx(r.Context()).Error().Err(err).Str("operation", string(op)).Msg("note version integrity violation")
		response.InternalError(w, internalMessage)

	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("operation", string(op)).Msg("note operation failed")
		response.InternalError(w, internalMessage)
	}
}

// queryParams turns the query string, plus any {id} path variable, into the
// request's parameter set. A key given twice is rejected.
func queryParams(r *http.Request) (domain.Params, error) {
	params := domain.Params{}
	for key, values := range r.URL.Query() {
		if len(values) != 1 {
			return nil, fmt.Errorf("parameter %q given %d times", key, len(values))
		}
		params[key] = values[0]
	}

	for key, value := range mux.Vars(r) {
		if params.Has(key) {
			return nil, fmt.Errorf("parameter %q given in path and query", key)
		}
		params[key] = value
	}

	return params, nil
}

// bodyParams decodes a JSON object body. Numbers stay json.Number so ids are
// not rounded through float64. An empty body falls back to the query string.
func bodyParams(r *http.Request) (domain.Params, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxBodyBytes {
		return nil, errors.New("request body too large")
	}
	if strings.TrimSpace(string(body)) == "" {
		return queryParams(r)
	}

	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.UseNumber()

	var params domain.Params
	if err := dec.Decode(&params); err != nil {
		return nil, err
	}
	if params == nil {
		return nil, errors.New("request body must be a JSON object")
	}
	if dec.More() {
		return nil, errors.New("unexpected data after JSON object")
	}

	return params, nil
}
