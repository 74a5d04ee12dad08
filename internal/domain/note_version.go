package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is the textual form of created/modified on the wire.
const TimestampLayout = "2006/01/02 15:04:05"

// NoteVersion is one immutable row of a note's history. (ID, Version) is unique.
type NoteVersion struct {
	ID       int64
	Version  int64
	Title    string
	Content  string
	Created  time.Time
	Modified time.Time
	Deleted  bool
}

type noteVersionJSON struct {
	ID       int64  `json:"id"`
	Version  int64  `json:"version"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Created  string `json:"created"`
	Modified string `json:"modified"`
	Deleted  bool   `json:"deleted"`
}

func (v NoteVersion) MarshalJSON() ([]byte, error) {
	return json.Marshal(noteVersionJSON{
		ID:       v.ID,
		Version:  v.Version,
		Title:    v.Title,
		Content:  v.Content,
		Created:  v.Created.UTC().Format(TimestampLayout),
		Modified: v.Modified.UTC().Format(TimestampLayout),
		Deleted:  v.Deleted,
	})
}

func (v *NoteVersion) UnmarshalJSON(data []byte) error {
	var raw noteVersionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	created, err := time.ParseInLocation(TimestampLayout, raw.Created, time.UTC)
	if err != nil {
		return fmt.Errorf("invalid created: %w", err)
	}
	modified, err := time.ParseInLocation(TimestampLayout, raw.Modified, time.UTC)
	if err != nil {
		return fmt.Errorf("invalid modified: %w", err)
	}

	*v = NoteVersion{
		ID:       raw.ID,
		Version:  raw.Version,
		Title:    raw.Title,
		Content:  raw.Content,
		Created:  created,
		Modified: modified,
		Deleted:  raw.Deleted,
	}
	return nil
}

// Next returns a copy of v numbered as its successor, stamped with modified.
func (v *NoteVersion) Next(modified time.Time) *NoteVersion {
	next := *v
	next.Version = v.Version + 1
	next.Modified = modified
	return &next
}

func (v *NoteVersion) String() string {
	return fmt.Sprintf("NoteVersion(id=%d, version=%d, deleted=%t)", v.ID, v.Version, v.Deleted)
}
