package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"station-core/internal/handler"
	"station-core/internal/handler/response"
	"station-core/pkg/monitor"
	"station-core/pkg/validator"
)

// NewHTTPRouter 初始化并返回一个 Gin Engine
// remote 为空时不注册远端校验路由
func NewHTTPRouter(svc handler.StationService, remote handler.RemoteVerifier) *gin.Engine {
	// 0. 注册自定义校验规则
	validator.Init()

	// 1. 创建 Engine
	r := gin.New()
	r.Use(gin.Recovery())

	// 2. 注册通用中间件
	r.Use(handler.RequestID())
	r.Use(monitor.PrometheusMiddleware())

	// 3. 注册基础路由
	r.GET("/health", handler.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 4. 注册 API 路由组
	h := handler.NewStationHandler(svc)
	api := r.Group("/api/v1")
	{
		api.GET("/ping", func(c *gin.Context) {
			response.Success(c, gin.H{"pong": true})
		})

		// Gas Station
		api.POST("/create-smart-account", h.CreateAccount)
		api.GET("/account/:actor", h.GetAccount)
		api.POST("/transfer-machine-station-balance", h.TransferStationBalance)
		api.POST("/generate-storage-tx", h.GenerateStorageTx)
		api.POST("/generate-did-tx", h.GenerateDIDTx)
		api.POST("/execute-tx", h.ExecuteTx)

		// 智能账户
		api.POST("/generate-smart-account-storage-tx", h.GenerateAccountStorageTx)
		api.POST("/generate-smart-account-create-did-tx", h.GenerateAccountDIDTx)
		api.POST("/execute-machine-tx", h.ExecuteMachineTx)
		api.POST("/execute-machine-batch-txs", h.ExecuteMachineBatch)
		api.POST("/generate-machine-transfer-balance-tx", h.GenerateMachineTransferTx)
		api.POST("/execute-machine-transfer-balance", h.ExecuteMachineTransfer)

		// 回查与文档
		api.GET("/tx/:hash", h.GetTransaction)
		api.POST("/did/verify", h.VerifyDocument)
		api.POST("/did/resolve", h.ResolveReference)
		api.GET("/did/:account", h.ResolveDocument)

		if remote != nil {
			v := handler.NewVerifyHandler(remote)
			api.POST("/verify/did", v.VerifyDID)
			api.POST("/verify/storage", v.VerifyStorage)
		}
	}

	return r
}
