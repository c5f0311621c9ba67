package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/jobcheck/internal/model"
)

type searchRequest struct {
	Name    string `json:"name"`
	Company string `json:"company"`
}

func handleSearch(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		if !decodeBody(w, r, &req) {
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		req.Company = strings.TrimSpace(req.Company)
		if req.Name == "" || req.Company == "" {
			httpError(w, http.StatusBadRequest, "name and company are required")
			return
		}

		results, err := d.Search.Search(r.Context(), req.Name, req.Company)
		if err != nil {
			zap.L().Warn("api: search failed", zap.String("person", req.Name), zap.Error(err))
			if model.KindOf(err) == model.ErrorSearchUnavailable {
				httpError(w, http.StatusServiceUnavailable, "search is not configured")
				return
			}
			httpError(w, http.StatusBadGateway, "search failed")
			return
		}
		if results == nil {
			results = []model.SearchResult{}
		}
		writeJSON(w, http.StatusOK, results)
	}
}
