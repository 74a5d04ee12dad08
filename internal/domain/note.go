package domain

// Params is the raw parameter set of one request: decoded JSON body keys or
// query string keys. The key set itself is validated, not only the values.
type Params map[string]any

func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	return keys
}

func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

type CreateNoteRequest struct {
	Title   string `json:"title" validate:"required"`
	Content string `json:"content" validate:"required"`
}

type UpdateNoteRequest struct {
	ID      int64   `json:"id" validate:"required,gt=0"`
	Title   *string `json:"title" validate:"omitempty,min=1"`
	Content *string `json:"content" validate:"omitempty,min=1"`
}

// NoteIDRequest is the payload of get, delete and history.
type NoteIDRequest struct {
	ID int64 `json:"id" validate:"required,gt=0"`
}

// NoteEvent names the mutation that produced a version.
type NoteEvent string

const (
	NoteCreated NoteEvent = "note_created"
	NoteUpdated NoteEvent = "note_updated"
	NoteDeleted NoteEvent = "note_deleted"
)
