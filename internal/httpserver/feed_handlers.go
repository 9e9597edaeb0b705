package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"activitychat/internal/service"
)

// @Summary      List the feed
// @Description  Newest posts with author, activity and likes
// @Tags         feed
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}   service.FeedItem
// @Failure      401  {object}  map[string]string
// @Router       /feed [get]
func handleListFeed(feedSvc *service.FeedService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		items, err := feedSvc.List(r.Context(), currentUser.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}

// @Summary      Create a post
// @Description  Post a photo to the feed
// @Tags         feed
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        input body service.CreatePostInput true "Post"
// @Success      201  {object}  domain.Post
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Router       /feed [post]
func handleCreatePost(feedSvc *service.FeedService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		var req service.CreatePostInput
		if !decodeJSON(w, r, &req) {
			return
		}
		p, err := feedSvc.Create(r.Context(), currentUser.ID, req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

// @Summary      Delete a post
// @Description  Delete one of your posts
// @Tags         feed
// @Security     BearerAuth
// @Param        postID path string true "Post ID"
// @Success      204
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /feed/{postID} [delete]
func handleDeletePost(feedSvc *service.FeedService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		if err := feedSvc.Delete(r.Context(), chi.URLParam(r, "postID"), currentUser.ID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// @Summary      Toggle like
// @Description  Like or unlike a post
// @Tags         feed
// @Security     BearerAuth
// @Produce      json
// @Param        postID path string true "Post ID"
// @Success      200  {object}  map[string]bool
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /feed/{postID}/like [post]
func handleToggleLike(feedSvc *service.FeedService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		liked, err := feedSvc.ToggleLike(r.Context(), chi.URLParam(r, "postID"), currentUser.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"liked": liked})
	}
}
