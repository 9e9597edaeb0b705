package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"activitychat/internal/service"
)

// @Summary      Get my profile
// @Description  Get the signed-in user's profile
// @Tags         profiles
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  domain.Profile
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /profiles/me [get]
func handleGetMyProfile(profileSvc *service.ProfileService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		p, err := profileSvc.Get(r.Context(), currentUser.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// @Summary      Save my profile
// @Description  Create or update the signed-in user's profile
// @Tags         profiles
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        input body service.ProfileInput true "Profile"
// @Success      200  {object}  domain.Profile
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Router       /profiles/me [put]
func handleUpsertProfile(profileSvc *service.ProfileService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		var req service.ProfileInput
		if !decodeJSON(w, r, &req) {
			return
		}
		p, err := profileSvc.Upsert(r.Context(), currentUser.ID, req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// @Summary      Get a profile
// @Description  Get another user's profile
// @Tags         profiles
// @Security     BearerAuth
// @Produce      json
// @Param        userID path string true "User ID"
// @Success      200  {object}  domain.Profile
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /profiles/{userID} [get]
func handleGetProfile(profileSvc *service.ProfileService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := profileSvc.Get(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// @Summary      Organizer ratings
// @Description  Average organizer ratings of a user
// @Tags         profiles
// @Security     BearerAuth
// @Produce      json
// @Param        userID path string true "User ID"
// @Success      200  {object}  service.RatingSummary
// @Failure      401  {object}  map[string]string
// @Router       /profiles/{userID}/ratings [get]
func handleGetRatings(profileSvc *service.ProfileService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := profileSvc.Ratings(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}
