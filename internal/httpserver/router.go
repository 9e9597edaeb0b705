package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang/glog"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "activitychat/docs"
	"activitychat/internal/config"
	"activitychat/internal/domain"
	"activitychat/internal/realtime"
	"activitychat/internal/security"
	"activitychat/internal/service"
)

// NewRouter constructs the main HTTP router and wires routes, services, and middleware.
func NewRouter(cfg *config.Config, repos domain.Repositories, broker *realtime.Broker, tokenSvc *security.TokenService, passwordHasher *security.PasswordHasher, encryptor *security.Encryptor) http.Handler {
	r := chi.NewRouter()

	// Middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Services
	authSvc := service.NewAuthService(repos.Users, tokenSvc, passwordHasher)
	profileSvc := service.NewProfileService(repos.Profiles, repos.Ratings)
	activitySvc := service.NewActivityService(repos.Events, repos.Chats, repos.Attendees, repos.Ratings, repos.Profiles, encryptor, broker)
	chatSvc := service.NewChatService(repos.Chats, repos.Messages, repos.Events, encryptor, broker)
	feedSvc := service.NewFeedService(repos.Posts, repos.Events, profileSvc, broker, cfg.FeedPageSize)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": cfg.AppName, "version": "1.0.0", "docs": "/docs"})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"),
	))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		// Auth routes (no auth required)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", handleRegister(authSvc))
			r.Post("/login", handleLogin(authSvc))
		})

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(authSvc))

			r.Get("/auth/me", handleMe())

			r.Route("/profiles", func(r chi.Router) {
				r.Get("/me", handleGetMyProfile(profileSvc))
				r.Put("/me", handleUpsertProfile(profileSvc))
				r.Get("/{userID}", handleGetProfile(profileSvc))
				r.Get("/{userID}/ratings", handleGetRatings(profileSvc))
			})

			r.Route("/activities", func(r chi.Router) {
				r.Get("/", handleListActivities(activitySvc))
				r.Post("/", handleCreateActivity(activitySvc))
				r.Get("/{activityID}", handleGetActivity(activitySvc))
				r.Post("/{activityID}/join", handleJoinActivity(activitySvc))
				r.Post("/{activityID}/complete", handleCompleteActivity(activitySvc))
				r.Post("/{activityID}/reopen", handleReopenActivity(activitySvc))
				r.Post("/{activityID}/ratings", handleRateActivity(activitySvc))
			})

			r.Get("/threads", handleListThreads(chatSvc))
			r.Route("/chats/{chatID}", func(r chi.Router) {
				r.Get("/", handleGetChat(chatSvc))
				r.Get("/messages", handleListMessages(chatSvc))
				r.Post("/messages", handleCreateMessage(chatSvc))
			})

			r.Route("/feed", func(r chi.Router) {
				r.Get("/", handleListFeed(feedSvc))
				r.Post("/", handleCreatePost(feedSvc))
				r.Delete("/{postID}", handleDeletePost(feedSvc))
				r.Post("/{postID}/like", handleToggleLike(feedSvc))
			})

			// Uploads (implementation in separate file)
			r.Mount("/uploads", UploadRoutes(cfg))
		})
	})

	// Realtime endpoint; outside /api so the request timeout does not apply.
	r.Get("/realtime", realtime.MakeHandler(broker, realtimeAuthenticator(authSvc), realtimeAuthorizer(chatSvc), cfg.CORSOrigins))

	return r
}

func realtimeAuthenticator(authSvc *service.AuthService) realtime.Authenticator {
	return func(ctx context.Context, token string) (string, error) {
		user, err := authSvc.Authenticate(ctx, token)
		if err != nil {
			return "", err
		}
		return user.ID, nil
	}
}

// realtimeAuthorizer keeps message and membership changes within the chat's
// participants.
func realtimeAuthorizer(chatSvc *service.ChatService) realtime.Authorizer {
	return func(ctx context.Context, userID string, c realtime.Change) bool {
		switch c.Table {
		case realtime.TableMessages, realtime.TableChatParticipants:
		default:
			return true
		}
		var row struct {
			ChatID string `json:"chat_id"`
			UserID string `json:"user_id"`
		}
		if err := c.Decode(&row); err != nil {
			return false
		}
		if c.Table == realtime.TableChatParticipants && row.UserID == userID {
			return true
		}
		ok, err := chatSvc.CanSee(ctx, row.ChatID, userID)
		if err != nil {
			glog.Warningf("realtime: check participant %s in chat %s: %v", userID, row.ChatID, err)
			return false
		}
		return ok
	}
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps service errors to statuses. Unexpected errors are logged
// and hidden from the client.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrNoProfile):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		glog.Errorf("httpserver: %v", err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return false
	}
	return true
}
