package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"glimpseAPI/handlers"
	"glimpseAPI/internal/mediastore"
	"glimpseAPI/internal/notification"
	"glimpseAPI/internal/workers"
	"glimpseAPI/middleware"
	"glimpseAPI/services"
)

var (
	dbPool              *pgxpool.Pool
	storyRepo           services.StoryRepository
	userService         *services.UserService
	storyService        *services.StoryService
	notificationService *services.NotificationService
	mediaService        *services.MediaService
	playbackManager     *services.PlaybackManager
	fcmService          *notification.FCMService
	stopReclamation     func()
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	clerkSecretKey := os.Getenv("CLERK_SECRET_KEY")
	if clerkSecretKey == "" {
		log.Fatal("CLERK_SECRET_KEY environment variable is not set")
	}
	clerk.SetKey(clerkSecretKey)
	log.Println("Clerk initialized successfully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		log.Fatal("Failed to parse database URL:", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	dbPool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatal("Failed to create connection pool:", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Fatal("Failed to ping database:", err)
	}

	log.Println("Successfully connected to database")

	pgRepo := services.NewPostgresStoryRepository(dbPool)
	if err := pgRepo.EnsureSchema(ctx); err != nil {
		log.Fatal("Failed to ensure database schema:", err)
	}
	storyRepo = pgRepo

	storyService = services.NewStoryService(storyRepo)
	userService = services.NewUserService(dbPool)
	notificationService = services.NewNotificationService(dbPool)

	fcmService, err = notification.NewFCMService("./serviceAccountKey.json")
	if err != nil {
		log.Printf("Warning: Could not initialize FCM: %v", err)
	} else {
		notificationService.SetPushProvider(fcmService)
		log.Println("FCM Push Provider initialized successfully")
	}

	bucket := os.Getenv("FIREBASE_STORAGE_BUCKET")
	if bucket != "" {
		store, err := mediastore.NewFirebaseStore(ctx, bucket, "./serviceAccountKey.json")
		if err != nil {
			log.Printf("Warning: Could not initialize media storage: %v", err)
		} else {
			mediaService = services.NewMediaService(store)
			storyService.SetMediaRemover(store)
			log.Println("Firebase media storage initialized successfully")
		}
	} else {
		log.Println("FIREBASE_STORAGE_BUCKET not set, media upload disabled")
	}

	sequencer := services.NewMediaSequencer(services.DefaultImageDuration)
	playbackManager = services.NewPlaybackManager(sequencer, services.PlaybackConfig{})
	playbackManager.SetSessionGauge(func(active int) {
		middleware.ActivePlaybackSessions.Set(float64(active))
	})

	stopReclamation = workers.StartReclamationWorker(storyRepo, time.Hour, time.Hour)

	middleware.InitPrometheus()
}

func main() {
	defer func() {
		stopReclamation()
		log.Println("Closing database connection pool...")
		dbPool.Close()
	}()

	storyHandler := handlers.NewStoryHandler(storyService, userService, notificationService)
	playbackHandler := handlers.NewPlaybackHandler(playbackManager, storyService, userService)
	mediaHandler := handlers.NewMediaHandler(mediaService)
	notificationHandler := handlers.NewNotificationHandler(notificationService, userService)

	r := mux.NewRouter()

	r.HandleFunc("/api/v1/playback/ws/{sessionID}", playbackHandler.JoinPlayback)

	standardRouter := r.PathPrefix("/").Subrouter()

	go middleware.CleanupVisitors()

	standardRouter.Use(middleware.RateLimitMiddleware)
	standardRouter.Use(middleware.MonitorMiddleware)

	standardRouter.Handle("/metrics", middleware.BasicAuthMiddleware(promhttp.Handler()))

	standardRouter.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")

		if err := dbPool.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "glimpse-api"}`))
	}).Methods("GET")

	api := standardRouter.PathPrefix("/api/v1").Subrouter()

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.ClerkAuthMiddleware)

	protected.HandleFunc("/stories", storyHandler.CreateStory).Methods("POST")
	protected.HandleFunc("/stories/feed", storyHandler.GetFeed).Methods("GET")
	protected.HandleFunc("/stories/{storyID}", storyHandler.DeleteStory).Methods("DELETE")
	protected.HandleFunc("/stories/{storyID}/share", storyHandler.ShareStory).Methods("GET")

	protected.HandleFunc("/media/upload", mediaHandler.UploadMedia).Methods("POST")

	protected.HandleFunc("/playback/open", playbackHandler.OpenPlayback).Methods("POST")

	protected.HandleFunc("/notifications", notificationHandler.GetNotifications).Methods("GET")
	protected.HandleFunc("/notifications/register-device", notificationHandler.RegisterDevice).Methods("POST")

	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorilllaHandlers.AllowCredentials(),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3333"
	}
	port = ":" + port

	server := http.Server{
		Addr:         port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Error starting server:", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	sig := <-sigChan
	log.Println("Got signal:", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server shutdown complete")
}
