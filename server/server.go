package server

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"MiniMixLab/cache"
	"MiniMixLab/config"
	"MiniMixLab/core/align"
	"MiniMixLab/core/analysis"
	"MiniMixLab/core/auth"
	"MiniMixLab/core/catalog"
	"MiniMixLab/core/progress"
	"MiniMixLab/core/render"
	"MiniMixLab/core/timeline"
	"MiniMixLab/db"
	"MiniMixLab/logger"
	"MiniMixLab/model"
	"MiniMixLab/repository"
	"MiniMixLab/storage"

	"github.com/gorilla/mux"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogOutput,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})
	defer logger.Sync()

	auth.InitJWT(cfg.JWTSecret)

	// 设置服务器超时
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 初始化 MinIO 客户端
	if err := storage.InitMinio(cfg); err != nil {
		log.Fatalf("Failed to initialize MinIO: %v", err)
	}

	// Connect to the database
	if err := db.ConnectDB(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.CloseDB()

	if err := db.ConnectGormDB(cfg); err != nil {
		log.Fatalf("Failed to connect to database with GORM: %v", err)
	}
	defer db.CloseGormDB()

	// Connect to Redis
	if err := cache.ConnectRedis(cfg); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer cache.CloseRedis()
	log.Println("Successfully connected to Redis")

	// Initialize database schema
	if err := db.InitDB(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if err := db.AutoMigrateModels(&model.SourceTrack{}); err != nil {
		log.Fatalf("Failed to migrate source track model: %v", err)
	}

	// 外部协作服务客户端
	analysisClient := analysis.NewClient(cfg.AnalysisServiceURL)
	renderClient := render.NewClient(cfg.RenderServiceURL)

	// 仓储与分段目录
	userRepo := repository.NewMySQLUserRepository(db.DB)
	sourceRepo := repository.NewSourceTrackRepository()
	cat := catalog.New(analysisClient, cache.NewCatalogCache())

	// 进度推送中心
	hub := progress.NewHub()
	go hub.Run()
	defer hub.Stop()

	// 会话管理：每个会话挂一个渲染协调器，进度直接推到 Hub
	defaults := model.Project{BPM: cfg.DefaultProjectBPM, Key: cfg.DefaultProjectKey}
	sessions := timeline.NewManager(defaults, func(sessionID string) *render.Coordinator {
		return render.NewCoordinator(sessionID, renderClient, cfg.JobPollInterval, func(job model.RenderJob) {
			hub.Publish(sessionID, job)
		})
	})
	defer sessions.CloseAll()

	alignPlanner := align.NewPlanner(sourceRepo, analysisClient)

	// .env 热更新：目前只动态调整日志级别
	stopWatch, err := config.Watch(func(updated *config.Config) {
		logger.SetLevel(logger.LogLevel(updated.LogLevel))
	})
	if err != nil {
		logger.Warn("配置热更新不可用", logger.ErrorField(err))
	} else {
		defer stopWatch()
	}

	apiHandler := NewAPIHandler(cfg, userRepo, sourceRepo, analysisClient, cat, sessions, alignPlanner, hub)

	// 使用 gorilla/mux 创建路由器
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// 用户认证相关的API端点
	router.HandleFunc("/api/auth/login", apiHandler.LoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/register", apiHandler.RegisterHandler).Methods(http.MethodPost)

	// 源曲目与分段目录
	router.HandleFunc("/api/upload", apiHandler.AuthMiddleware(apiHandler.UploadSourceHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/sources", apiHandler.AuthMiddleware(apiHandler.GetSourcesHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/sources/{id}", apiHandler.AuthMiddleware(apiHandler.DeleteSourceHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/sources/{id}/segments", apiHandler.AuthMiddleware(apiHandler.GetSegmentsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/sources/{id}/segments/refresh", apiHandler.AuthMiddleware(apiHandler.RefreshSegmentsHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/preview", apiHandler.AuthMiddleware(apiHandler.PreviewHandler)).Methods(http.MethodGet)

	// 编排会话
	router.HandleFunc("/api/sessions", apiHandler.AuthMiddleware(apiHandler.CreateSessionHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{id}", apiHandler.AuthMiddleware(apiHandler.DestroySessionHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/sessions/{id}/project", apiHandler.AuthMiddleware(apiHandler.GetProjectHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/sessions/{id}/project", apiHandler.AuthMiddleware(apiHandler.PutProjectHandler)).Methods(http.MethodPut)

	// 时间线编辑
	router.HandleFunc("/api/sessions/{id}/timeline", apiHandler.AuthMiddleware(apiHandler.GetTimelineHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/sessions/{id}/pieces", apiHandler.AuthMiddleware(apiHandler.AddPieceHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{id}/pieces/reorder", apiHandler.AuthMiddleware(apiHandler.ReorderHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{id}/pieces/{index}", apiHandler.AuthMiddleware(apiHandler.RemovePieceHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/sessions/{id}/pieces/{index}", apiHandler.AuthMiddleware(apiHandler.UpdatePieceHandler)).Methods(http.MethodPatch)

	// 对齐
	router.HandleFunc("/api/sessions/{id}/align/tempo", apiHandler.AuthMiddleware(apiHandler.AlignTempoHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{id}/align/pitch", apiHandler.AuthMiddleware(apiHandler.AlignPitchHandler)).Methods(http.MethodPost)

	// 渲染
	router.HandleFunc("/api/sessions/{id}/render", apiHandler.AuthMiddleware(apiHandler.StartRenderHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{id}/render", apiHandler.AuthMiddleware(apiHandler.GetRenderStatusHandler)).Methods(http.MethodGet)

	// 渲染进度 WebSocket 订阅
	router.HandleFunc("/api/ws/progress", apiHandler.ProgressWSHandler)

	server.Handler = router

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 在goroutine中启动服务器
	go func() {
		log.Printf("Server starting on %s...", cfg.HTTPAddr)
		log.Println("Upload sources via POST to /api/upload")
		log.Println("Create arrangement sessions via POST to /api/sessions")
		log.Println("Subscribe to render progress via /api/ws/progress")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 等待中断信号
	<-stop
	log.Println("Shutting down server...")

	// 创建一个5秒超时的上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 优雅关闭服务器
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
