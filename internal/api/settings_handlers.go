package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/atlas-jobs/internal/filter"
)

const maxSettingsBody = 1 << 16

// getFeaturedFilters handles GET /api/user/settings/featured-filters.
func (s *Server) getFeaturedFilters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Settings.Get(r.Context(), userID(r)))
}

// saveFeaturedFilters handles POST /api/user/settings/featured-filters. The
// body must carry an employmentType and a criteria object.
func (s *Server) saveFeaturedFilters(w http.ResponseWriter, r *http.Request) {
	var settings filter.Settings
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSettingsBody))
	if err := dec.Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidFilters)
		return
	}
	user := userID(r)
	if err := s.deps.Settings.Save(r.Context(), user, settings); err != nil {
		s.logger.Debug("rejected featured filters", zap.String("user", user), zap.Error(err))
		writeError(w, http.StatusBadRequest, errInvalidFilters)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
