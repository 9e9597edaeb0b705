package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"activitychat/internal/domain"
	"activitychat/internal/service"
)

const defaultRadiusKm = 25

// nearbyQuery reads ?lat=&lng=[&radius_km=]. Without lat and lng there is
// no location filter.
func nearbyQuery(r *http.Request) (*service.NearbyQuery, error) {
	q := r.URL.Query()
	latStr, lngStr := q.Get("lat"), q.Get("lng")
	if latStr == "" && lngStr == "" {
		return nil, nil
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil, errors.New("invalid lat")
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return nil, errors.New("invalid lng")
	}
	radius := float64(defaultRadiusKm)
	if v := q.Get("radius_km"); v != "" {
		if radius, err = strconv.ParseFloat(v, 64); err != nil || radius <= 0 {
			return nil, errors.New("invalid radius_km")
		}
	}
	return &service.NearbyQuery{Latitude: lat, Longitude: lng, RadiusKm: radius}, nil
}

// @Summary      List open activities
// @Description  Activities that are not completed, optionally within radius_km of lat/lng
// @Tags         activities
// @Security     BearerAuth
// @Produce      json
// @Param        lat query number false "Latitude"
// @Param        lng query number false "Longitude"
// @Param        radius_km query number false "Radius in km (default 25)"
// @Success      200  {array}   domain.Event
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Router       /activities [get]
func handleListActivities(activitySvc *service.ActivityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		near, err := nearbyQuery(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		events, err := activitySvc.ListOpen(r.Context(), near)
		if err != nil {
			writeError(w, err)
			return
		}
		if events == nil {
			events = []*domain.Event{}
		}
		writeJSON(w, http.StatusOK, events)
	}
}

// @Summary      Create an activity
// @Description  Create an activity with its group chat
// @Tags         activities
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        input body service.CreateActivityInput true "Activity"
// @Success      201  {object}  service.CreatedActivity
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Router       /activities [post]
func handleCreateActivity(activitySvc *service.ActivityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		var req service.CreateActivityInput
		if !decodeJSON(w, r, &req) {
			return
		}
		created, err := activitySvc.Create(r.Context(), currentUser.ID, req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

// @Summary      Get an activity
// @Description  Get one activity
// @Tags         activities
// @Security     BearerAuth
// @Produce      json
// @Param        activityID path string true "Activity ID"
// @Success      200  {object}  domain.Event
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /activities/{activityID} [get]
func handleGetActivity(activitySvc *service.ActivityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := activitySvc.Get(r.Context(), chi.URLParam(r, "activityID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

// @Summary      Join an activity
// @Description  Sign up for an activity and join its chat
// @Tags         activities
// @Security     BearerAuth
// @Produce      json
// @Param        activityID path string true "Activity ID"
// @Success      200  {object}  domain.Chat
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /activities/{activityID}/join [post]
func handleJoinActivity(activitySvc *service.ActivityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		chat, err := activitySvc.Join(r.Context(), chi.URLParam(r, "activityID"), currentUser.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, chat)
	}
}

// handleCompleteActivity takes an optional rating body. Organizers send none.
// @Summary      Complete an activity
// @Description  Organizers close the activity. Attendees mark it done and must send a rating
// @Tags         activities
// @Security     BearerAuth
// @Accept       json
// @Param        activityID path string true "Activity ID"
// @Param        input body service.RatingInput false "Rating (attendees only)"
// @Success      204
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /activities/{activityID}/complete [post]
func handleCompleteActivity(activitySvc *service.ActivityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		var rating *service.RatingInput
		var req service.RatingInput
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "could not read body"})
			return
		}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
				return
			}
			rating = &req
		}

		if err := activitySvc.Complete(r.Context(), chi.URLParam(r, "activityID"), currentUser.ID, rating); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// @Summary      Reopen an activity
// @Description  Organizer sets a completed activity back to pending
// @Tags         activities
// @Security     BearerAuth
// @Param        activityID path string true "Activity ID"
// @Success      204
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /activities/{activityID}/reopen [post]
func handleReopenActivity(activitySvc *service.ActivityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		if err := activitySvc.Reopen(r.Context(), chi.URLParam(r, "activityID"), currentUser.ID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// @Summary      Rate the organizer
// @Description  Rate an activity's organizer
// @Tags         activities
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        activityID path string true "Activity ID"
// @Param        input body service.RatingInput true "Rating"
// @Success      201  {object}  domain.OrganizerRating
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /activities/{activityID}/ratings [post]
func handleRateActivity(activitySvc *service.ActivityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		var req service.RatingInput
		if !decodeJSON(w, r, &req) {
			return
		}
		rating, err := activitySvc.Rate(r.Context(), chi.URLParam(r, "activityID"), currentUser.ID, req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rating)
	}
}
