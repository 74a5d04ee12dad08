package service

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"note-history-server/internal/domain"

	"github.com/go-playground/validator/v10"
)

type Operation string

const (
	OperationCreate  Operation = "create"
	OperationUpdate  Operation = "update"
	OperationDelete  Operation = "delete"
	OperationGet     Operation = "get"
	OperationHistory Operation = "history"
)

const (
	idParamsMessage     = "bad request, this endpoint accepts exactly one parameter: 'id'"
	createParamsMessage = "bad request, this endpoint accepts exactly two parameters: 'title' and 'content'"
	updateParamsMessage = "bad request, this endpoint accepts exactly 2 or 3 parameters: 'id' (required), 'title', 'content'"
)

type paramRule struct {
	required    []string
	optional    []string
	minOptional int
	message     string
}

var paramRules = map[Operation]paramRule{
	OperationCreate: {
		required: []string{"title", "content"},
		message:  createParamsMessage,
	},
	OperationUpdate: {
		required:    []string{"id"},
		optional:    []string{"title", "content"},
		minOptional: 1,
		message:     updateParamsMessage,
	},
	OperationDelete:  {required: []string{"id"}, message: idParamsMessage},
	OperationGet:     {required: []string{"id"}, message: idParamsMessage},
	OperationHistory: {required: []string{"id"}, message: idParamsMessage},
}

// ParamValidator checks the key set of a request and then the values it
// carries. With strict off, unknown keys are ignored but required ones are
// still enforced.
type ParamValidator struct {
	strict   bool
	validate *validator.Validate
}

func NewParamValidator(strict bool) *ParamValidator {
	return &ParamValidator{
		strict:   strict,
		validate: validator.New(),
	}
}

// Message is the client-facing text for a rejected request of op.
func Message(op Operation) string {
	return paramRules[op].message
}

// AcceptedParams lists the keys op accepts, required first.
func AcceptedParams(op Operation) []string {
	rule := paramRules[op]
	return append(append([]string{}, rule.required...), rule.optional...)
}

func (v *ParamValidator) CheckKeys(op Operation, params domain.Params) error {
	rule, ok := paramRules[op]
	if !ok {
		return fmt.Errorf("unknown operation %q", op)
	}

	for _, key := range rule.required {
		if !params.Has(key) {
			return v.invalid(op, fmt.Errorf("missing parameter %q", key))
		}
	}

	optional := 0
	for _, key := range rule.optional {
		if params.Has(key) {
			optional++
		}
	}
	if optional < rule.minOptional {
		return v.invalid(op, fmt.Errorf("expected at least %d of %v", rule.minOptional, rule.optional))
	}

	if v.strict {
		allowed := make(map[string]bool, len(rule.required)+len(rule.optional))
		for _, key := range AcceptedParams(op) {
			allowed[key] = true
		}
		var unknown []string
		for _, key := range params.Keys() {
			if !allowed[key] {
				unknown = append(unknown, key)
			}
		}
		if len(unknown) > 0 {
			sort.Strings(unknown)
			return v.invalid(op, fmt.Errorf("unexpected parameters %v", unknown))
		}
	}

	return nil
}

func (v *ParamValidator) CreateRequest(params domain.Params) (*domain.CreateNoteRequest, error) {
	const op = OperationCreate
	if err := v.CheckKeys(op, params); err != nil {
		return nil, err
	}

	var req domain.CreateNoteRequest
	var err error
	if req.Title, err = stringParam(params, "title"); err != nil {
		return nil, v.invalid(op, err)
	}
	if req.Content, err = stringParam(params, "content"); err != nil {
		return nil, v.invalid(op, err)
	}

	return &req, v.check(op, &req)
}

func (v *ParamValidator) UpdateRequest(params domain.Params) (*domain.UpdateNoteRequest, error) {
	const op = OperationUpdate
	if err := v.CheckKeys(op, params); err != nil {
		return nil, err
	}

	var req domain.UpdateNoteRequest
	var err error
	if req.ID, err = idParam(params, "id"); err != nil {
		return nil, v.invalid(op, err)
	}
	for key, dst := range map[string]**string{"title": &req.Title, "content": &req.Content} {
		if !params.Has(key) {
			continue
		}
		s, err := stringParam(params, key)
		if err != nil {
			return nil, v.invalid(op, err)
		}
		*dst = &s
	}

	return &req, v.check(op, &req)
}

func (v *ParamValidator) IDRequest(op Operation, params domain.Params) (*domain.NoteIDRequest, error) {
	if err := v.CheckKeys(op, params); err != nil {
		return nil, err
	}

	id, err := idParam(params, "id")
	if err != nil {
		return nil, v.invalid(op, err)
	}

	req := &domain.NoteIDRequest{ID: id}
	return req, v.check(op, req)
}

func (v *ParamValidator) check(op Operation, req any) error {
	if err := v.validate.Struct(req); err != nil {
		return v.invalid(op, err)
	}
	return nil
}

func (v *ParamValidator) invalid(op Operation, err error) error {
	return &ValidationError{
		Operation: op,
		Message:   Message(op),
		Err:       err,
	}
}

func stringParam(params domain.Params, key string) (string, error) {
	s, ok := params[key].(string)
	if !ok {
		return "", fmt.Errorf("parameter %q must be a string", key)
	}
	return s, nil
}

// idParam accepts JSON numbers and decimal strings (query parameters).
func idParam(params domain.Params, key string) (int64, error) {
	var (
		id  int64
		err error
	)

	switch raw := params[key].(type) {
	case json.Number:
		id, err = raw.Int64()
	case string:
		id, err = strconv.ParseInt(raw, 10, 64)
	case float64:
		// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
		if raw != math.Trunc(raw) || raw >= math.MaxInt64 || raw < math.MinInt64 {
			err = fmt.Errorf("not an integer: %v", raw)
		} else {
			id = int64(raw)
		}
	case int:
		id = int64(raw)
	case int64:
		id = raw
	default:
		err = fmt.Errorf("unsupported type %T", raw)
	}
	if err != nil {
		return 0, fmt.Errorf("parameter %q must be an integer: %w", key, err)
	}

	return id, nil
}
