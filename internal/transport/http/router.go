package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/merchantbook/ledger-service/internal/config"
	"github.com/merchantbook/ledger-service/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func NewRouter(svc *service.LedgerService, rec *service.Reconciler, chk *service.IntegrityChecker, cfg *config.Config, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(LoggingMiddleware(log))
	r.Use(RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	RegisterHandlers(r, svc, rec, chk, cfg.Ledger.CurrencyExponent)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	return r
}
