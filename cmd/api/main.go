package main

import (
	"context"
	"log"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/fieldlink/internal/app"
	"github.com/imrishuroy/fieldlink/internal/handlers"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterLinkRoutes(r, cfg)

	return r
}

func main() {
	svc, err := app.New(context.Background(), "fieldlink-api")
	if err != nil {
		log.Fatalf("failed to init services: %v", err)
	}
	defer svc.Close()

	r := setupRouter(handlers.HandlerConfig{
		Links:       svc.Links,
		Idempotency: svc.Idempotency,
		Sealer:      svc.Remote,
		Verifier:    svc.Verifier,
		Logger:      svc.Logger,
	})

	// RUN_LOCAL=true serves plain HTTP for development.
	if svc.Config.RunLocal {
		addr := ":8080"
		svc.Logger.Info("running local server", zap.String("addr", addr))
		if err := r.Run(addr); err != nil {
			svc.Logger.Fatal("local server stopped", zap.Error(err))
		}
		return
	}

	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
