package api

import (
	"net/http"
	"time"

	"ebe-backend/pkg/cache"
	"ebe-backend/pkg/config"
	"ebe-backend/pkg/database"
	"ebe-backend/pkg/handlers"
	"ebe-backend/pkg/mailer"
	appmw "ebe-backend/pkg/middleware"
	"ebe-backend/pkg/utils"
	"ebe-backend/pkg/video"
	"ebe-backend/pkg/waitingroom"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// NewRouter 组装完整的HTTP路由
func NewRouter(cfg *config.Config, db database.Store, c cache.Cache, mail mailer.Mailer, logger zerolog.Logger) chi.Router {
	videoSvc := video.NewTokenService(cfg.VideoAppKey, cfg.VideoAppSecret)
	wrSvc := waitingroom.NewService(db, db, logger)

	authHandler := handlers.NewAuthHandler(cfg, db, c, mail)
	clubsHandler := handlers.NewClubsHandler(cfg, db, mail, logger)
	meetingsHandler := handlers.NewMeetingsHandler(cfg, db, videoSvc)
	wrHandler := handlers.NewWaitingRoomHandler(wrSvc)
	booksHandler := handlers.NewBooksHandler(db)
	usersHandler := handlers.NewUsersHandler(db)

	r := chi.NewRouter()

	// 全局中间件
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(appmw.Logger(logger))
	r.Use(appmw.Recovery(cfg, logger))
	r.Use(appmw.CORS(cfg))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(chimw.Compress(5))
	r.Use(appmw.ContentTypeJSON)
	r.Use(appmw.MaxBodySize(1 << 20)) // 1MB

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteNotFoundResponse(w, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteErrorResponseWithCode(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", "")
	})

	// 健康检查
	r.Get("/", authHandler.HealthCheck)
	r.Get("/health", authHandler.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		// 公开端点
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/verify-otp", authHandler.VerifyOTP)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.RefreshToken)
		})

		// 需要认证的端点
		r.Group(func(r chi.Router) {
			r.Use(appmw.AuthMiddleware(cfg))

			r.Get("/me", authHandler.Me)

			r.Route("/clubs", func(r chi.Router) {
				r.Post("/", clubsHandler.CreateClub)
				r.Get("/", clubsHandler.ListMyClubs)
				r.Post("/invitations/accept", clubsHandler.AcceptInvitation)

				r.Route("/{clubID}", func(r chi.Router) {
					r.Get("/", clubsHandler.GetClub)
					r.Get("/members", clubsHandler.ListMembers)
					r.Post("/invite", clubsHandler.InviteMember)
					r.Put("/members/role", clubsHandler.UpdateMemberRole)

					r.Post("/meetings", meetingsHandler.CreateMeeting)
					r.Get("/meetings", meetingsHandler.ListMeetings)
				})
			})

			r.Route("/meetings/{meetingID}", func(r chi.Router) {
				r.Get("/", meetingsHandler.GetMeeting)
				r.Post("/start", meetingsHandler.StartMeeting)
				r.Post("/complete", meetingsHandler.CompleteMeeting)
				r.Post("/cancel", meetingsHandler.CancelMeeting)
				r.Post("/recording/start", meetingsHandler.StartRecording)
				r.Post("/recording/stop", meetingsHandler.StopRecording)
				r.Post("/token", meetingsHandler.RoomToken)

				r.Route("/waiting-room", func(r chi.Router) {
					r.Post("/join", wrHandler.Join)
					r.Get("/participants", wrHandler.ListWaiting)
					r.Post("/admit", wrHandler.Admit)
					r.Post("/reject", wrHandler.Reject)
					r.Get("/status", wrHandler.Status)
				})
			})

			r.Route("/books", func(r chi.Router) {
				r.Post("/", booksHandler.CreateBook)
				r.Get("/", booksHandler.ListMyBooks)

				r.Route("/{bookID}", func(r chi.Router) {
					r.Get("/", booksHandler.GetBook)
					r.Put("/", booksHandler.UpdateBook)
					r.Delete("/", booksHandler.DeleteBook)
					r.Post("/progress", booksHandler.UpdateProgress)
					r.Post("/reviews", booksHandler.CreateReview)
					r.Get("/reviews", booksHandler.ListReviews)
				})
			})

			r.Delete("/reviews/{reviewID}", booksHandler.DeleteReview)

			r.Route("/users/{userID}", func(r chi.Router) {
				r.Get("/", usersHandler.GetProfile)
				r.Post("/follow", usersHandler.Follow)
				r.Delete("/follow", usersHandler.Unfollow)
				r.Get("/followers", usersHandler.ListFollowers)
				r.Get("/following", usersHandler.ListFollowing)
			})
		})
	})

	return r
}
