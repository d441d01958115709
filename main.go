package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskflow-api/api"
	"taskflow-api/board"
	"taskflow-api/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.New()

	guest := os.Getenv("GUEST_MODE") == "1"
	ownerID := os.Getenv("BOARD_OWNER_ID")
	if !guest && ownerID == "" {
		log.Fatal("missing BOARD_OWNER_ID (or set GUEST_MODE=1)")
	}

	var remote board.Remote
	if !guest {
		connStr := os.Getenv("STORAGE_CONNECTION_STRING")
		tasksTable := os.Getenv("TASKS_TABLE")
		labelsTable := os.Getenv("LABELS_TABLE")
		taskLabelsTable := os.Getenv("TASK_LABELS_TABLE")
		if connStr == "" || tasksTable == "" || labelsTable == "" || taskLabelsTable == "" {
			log.Fatal("missing storage config")
		}
		store, err := storage.New(connStr, tasksTable, labelsTable, taskLabelsTable)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		remote = store
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	redisOpts, err := redis.ParseURL(redisConn)
	if err != nil {
		parts := strings.Split(redisConn, ",")
		redisOpts = &redis.Options{Addr: parts[0]}
		for _, p := range parts[1:] {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				continue
			}
			switch strings.ToLower(kv[0]) {
			case "password":
				redisOpts.Password = kv[1]
			case "ssl":
				if strings.ToLower(kv[1]) == "true" {
					redisOpts.TLSConfig = &tls.Config{}
				}
			}
		}
	}
	snapshot := storage.NewSnapshot(redis.NewClient(redisOpts), logger)

	var auth *api.Auth
	if !guest {
		if os.Getenv("AUTH_TEST_MODE") == "1" {
			auth = api.NewAuth(nil, "", "")
		} else {
			jwtAudience := os.Getenv("AUTH0_AUDIENCE")
			domain := os.Getenv("AUTH0_DOMAIN")
			if jwtAudience == "" || domain == "" {
				log.Fatal("missing Auth0 config")
			}
			jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
			jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
			if err != nil {
				log.Fatalf("jwks: %v", err)
			}
			auth = api.NewAuth(jwks, jwtAudience, "https://"+domain+"/")
		}
	}

	store := board.New(board.Config{
		Guest:    guest,
		OwnerID:  ownerID,
		Remote:   remote,
		Snapshot: snapshot,
		Logger:   logger,
		OnNotice: func(n board.Notice) {
			logger.WithField("notice", n.Message).Warn("board notice")
		},
	})
	store.Init(context.Background())
	defer store.Close()

	view := board.NewView(store)
	defer view.Close()

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	var authenticator api.Authenticator
	if auth != nil {
		authenticator = auth
	}
	api.Register(e, store, view, authenticator, ownerID, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}
