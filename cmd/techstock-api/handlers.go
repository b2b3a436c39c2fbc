package main

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"reflect"

	"github.com/matthewjhunter/techstock"
)

// handlers holds dependencies for all HTTP handler methods.
type handlers struct {
	engine *techstock.Engine
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string            `json:"error"`
	ID      string            `json:"id,omitempty"`
	Details map[string]string `json:"details,omitempty"`
	Message string            `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("techstock-api: encode response: %v", err)
	}
}

// writeError maps engine errors to a status code. Anything that is not a
// validation or not-found error is logged and reported as a 500 carrying
// the generic fallback message.
func writeError(w http.ResponseWriter, err error, fallback string) {
	var verr *techstock.ValidationError
	var nf *techstock.NotFoundError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: verr.Message, Details: verr.Fields})
	case errors.As(err, &nf):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Article not found", ID: nf.ID})
	default:
		log.Printf("techstock-api: %s: %v", fallback, err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: fallback})
	}
}

// decodeBody reads a JSON request body into v. A malformed body becomes a
// ValidationError; a value of the wrong JSON type is reported against its
// field.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		return &techstock.ValidationError{Message: "Invalid request body"}
	}
	if err := json.Unmarshal(body, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return &techstock.ValidationError{
				Message: "Invalid JSON body",
				Fields:  map[string]string{typeErr.Field: "must be " + jsonKind(typeErr.Type.Kind())},
			}
		}
		return &techstock.ValidationError{Message: "Invalid JSON body"}
	}
	return nil
}

func jsonKind(k reflect.Kind) string {
	switch k {
	case reflect.String:
		return "a string"
	case reflect.Slice, reflect.Array:
		return "an array"
	case reflect.Map, reflect.Struct:
		return "an object"
	case reflect.Bool:
		return "a boolean"
	default:
		return "a number"
	}
}

func (h *handlers) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "TechStock API is running")
}

func (h *handlers) handleList(w http.ResponseWriter, r *http.Request) {
	articles, err := h.engine.ListArticles(r.Context())
	if err != nil {
		writeError(w, err, "Failed to fetch articles")
		return
	}
	writeJSON(w, http.StatusOK, articles)
}

func (h *handlers) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	articles, err := h.engine.SearchArticles(r.Context(), q.Get("title"), q.Get("tag"))
	if err != nil {
		writeError(w, err, "Failed to search articles")
		return
	}
	writeJSON(w, http.StatusOK, articles)
}

func (h *handlers) handleGet(w http.ResponseWriter, r *http.Request) {
	article, err := h.engine.GetArticle(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err, "Failed to fetch article")
		return
	}
	writeJSON(w, http.StatusOK, article)
}

func (h *handlers) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in techstock.ArticleInput
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, err, "Failed to create article")
		return
	}

	article, err := h.engine.CreateArticle(r.Context(), in)
	if err != nil {
		writeError(w, err, "Failed to create article")
		return
	}
	writeJSON(w, http.StatusCreated, article)
}

func (h *handlers) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var patch techstock.ArticlePatch
	if err := decodeBody(w, r, &patch); err != nil {
		writeError(w, err, "Failed to update article")
		return
	}

	article, err := h.engine.UpdateArticle(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, err, "Failed to update article")
		return
	}
	writeJSON(w, http.StatusOK, article)
}

func (h *handlers) handleDelete(w http.ResponseWriter, r *http.Request) {
	article, err := h.engine.DeleteArticle(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err, "Failed to delete article")
		return
	}
	writeJSON(w, http.StatusOK, techstock.DeleteResult{
		Message:        "Article deleted successfully",
		DeletedArticle: *article,
	})
}

func (h *handlers) handleFetchQiita(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.ImportQiita(r.Context())
	if err != nil {
		log.Printf("techstock-api: qiita import: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error:   "Failed to process articles",
			Message: err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, result)
}
