package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/jobcheck/internal/model"
	"github.com/sells-group/jobcheck/internal/store"
)

type createPersonRequest struct {
	Name       string   `json:"name"`
	Company    string   `json:"company"`
	Role       string   `json:"role"`
	Recipients []string `json:"notification_recipients"`
}

func handleListPeople(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		people, err := d.People.ListPeople(r.Context())
		if err != nil {
			zap.L().Error("api: list people", zap.Error(err))
			httpError(w, http.StatusInternalServerError, "failed to fetch people")
			return
		}
		if people == nil {
			people = []model.Person{}
		}
		writeJSON(w, http.StatusOK, people)
	}
}

func handleGetPerson(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := d.People.GetPerson(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			storeError(w, err, "failed to fetch person")
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleCreatePerson(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createPersonRequest
		if !decodeBody(w, r, &req) {
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		req.Company = strings.TrimSpace(req.Company)
		if req.Name == "" || req.Company == "" {
			httpError(w, http.StatusBadRequest, "name and company are required")
			return
		}

		p := model.NewPerson("", req.Name, req.Company, strings.TrimSpace(req.Role), req.Recipients, d.Now().UTC())
		created, err := d.People.CreatePerson(r.Context(), p)
		if err != nil {
			storeError(w, err, "failed to add person")
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func handleUpdatePerson(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var u model.PersonUpdate
		if !decodeBody(w, r, &u) {
			return
		}
		if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
			httpError(w, http.StatusBadRequest, "name cannot be empty")
			return
		}
		if u.Current != nil && strings.TrimSpace(u.Current.Company) == "" {
			httpError(w, http.StatusBadRequest, "current_position.company is required")
			return
		}

		p, err := d.People.UpdatePerson(r.Context(), chi.URLParam(r, "id"), u)
		if err != nil {
			storeError(w, err, "failed to update person")
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleDeletePerson(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := d.People.DeletePerson(r.Context(), id); err != nil {
			storeError(w, err, "failed to delete person")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "person deleted", "id": id})
	}
}

// storeError maps store sentinels to status codes and logs anything else.
func storeError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		httpError(w, http.StatusNotFound, "person not found")
	case errors.Is(err, store.ErrDuplicate):
		httpError(w, http.StatusConflict, "a person with this name is already tracked")
	default:
		zap.L().Error("api: "+msg, zap.Error(err))
		httpError(w, http.StatusInternalServerError, "%s", msg)
	}
}
