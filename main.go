package main

import (
	"log"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"greedot_back/authorization"
	"greedot_back/cache"
	"greedot_back/characters"
	"greedot_back/chat"
	"greedot_back/emotion"
	"greedot_back/pipeline"
	"greedot_back/rigpacks"
	filestore "greedot_back/storage"
	"greedot_back/tts"
)

func mustLoadEnv() {
	_ = godotenv.Load()
}

func main() {
	mustLoadEnv()

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	files, err := filestore.NewFileStorageFromEnv()
	if err != nil {
		log.Fatalf("init file storage: %v", err)
	}

	authModule, err := authorization.RegisterRoutes(r)
	if err != nil {
		log.Fatalf("register auth routes: %v", err)
	}
	guard := authModule.Guard()

	charactersModule, err := characters.RegisterRoutes(r, guard, files)
	if err != nil {
		log.Fatalf("register character routes: %v", err)
	}

	ttsModule, err := tts.RegisterRoutes(r)
	if err != nil {
		log.Fatalf("register tts routes: %v", err)
	}

	if _, err := rigpacks.RegisterRoutes(r, guard, charactersModule.Store()); err != nil {
		log.Fatalf("register rig pack routes: %v", err)
	}

	stylizeClient, err := pipeline.NewStylizeClientFromEnv()
	if err != nil {
		log.Fatalf("init stylize client: %v", err)
	}

	redisClient, err := cache.GetRedisClient()
	if err != nil {
		log.Printf("redis unavailable, pipeline run lock disabled: %v", err)
	}
	runLock := cache.NewRunLock(redisClient, 15*time.Minute)
	orchestrator := pipeline.NewOrchestrator(
		charactersModule.Store(),
		files,
		stylizeClient,
		pipeline.NewCommandSegmenterFromEnv(),
		pipeline.NewRenderPoolFromEnv(pipeline.NewCommandRendererFromEnv()),
		runLock,
	)
	if _, err := pipeline.RegisterRoutes(r, guard, charactersModule.Store(), orchestrator); err != nil {
		log.Fatalf("register pipeline routes: %v", err)
	}

	if _, err := chat.RegisterRoutes(r, guard, charactersModule.Store(), files, ttsModule); err != nil {
		log.Fatalf("register chat routes: %v", err)
	}

	if _, err := emotion.RegisterRoutes(r, guard, charactersModule.Store()); err != nil {
		log.Fatalf("register emotion routes: %v", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	if err := r.Run(":" + port); err != nil {
		log.Fatalf("start server: %v", err)
	}
}
