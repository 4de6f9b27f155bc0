package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/debemdeboas/drafthouse/internal/config"
	"github.com/debemdeboas/drafthouse/internal/model"
)

const maxBodyBytes = 4 << 20

// draftRequest is the body of save-draft and publish. Tags are accepted as a
// JSON array or as a comma-separated string.
type draftRequest struct {
	ID      model.PostID `json:"id,omitempty"`
	Title   string       `json:"title"`
	Content string       `json:"content"`
	Tags    tagList      `json:"tags"`
	Status  model.Status `json:"status,omitempty"`
}

func newDraftRequest(d model.Draft) draftRequest {
	return draftRequest{
		ID:      d.ID,
		Title:   d.Title,
		Content: d.Body,
		Tags:    tagList(d.Tags),
		Status:  d.Status,
	}
}

func (req draftRequest) draft() model.Draft {
	return model.Draft{
		ID:     req.ID,
		Title:  req.Title,
		Body:   req.Content,
		Tags:   []string(req.Tags),
		Status: req.Status,
	}
}

type tagList []string

func (t *tagList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*t = nil
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = model.ParseTags(s)
		return nil
	}

	var tags []string
	if err := json.Unmarshal(data, &tags); err != nil {
		return fmt.Errorf("tags must be a string or an array of strings: %w", err)
	}
	*t = tags
	return nil
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(config.HCType, config.CTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		apiLogger.Error().Err(err).Msg("Error writing response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
