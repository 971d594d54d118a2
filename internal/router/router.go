package router

import (
	"strconv"
	"time"

	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/handler"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/journal"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/logic"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Setup 创建路由，history 和 faucet 可以为 nil
func Setup(manager *logic.Manager, j *journal.Journal, history handler.EventHistory, faucet handler.Crediter) *gin.Engine {
	r := gin.New()

	// 中间件
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())
	r.Use(metricsMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "crowdfunding-service",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	projectHandler := handler.NewProjectHandler(manager, j, history)
	supplyHandler := handler.NewSupplyHandler(manager)
	milestoneHandler := handler.NewMilestoneHandler(manager)
	distributionHandler := handler.NewDistributionHandler(manager)
	accountHandler := handler.NewAccountHandler(manager, faucet)

	// API版本组
	v1 := r.Group("/api/v1")
	{
		projects := v1.Group("/projects")
		{
			projects.POST("", projectHandler.RegisterProject)
			projects.GET("", projectHandler.GetProjects)
			projects.GET("/:id", projectHandler.GetProject)
			projects.GET("/:id/strategy", projectHandler.GetProjectStrategy)
			projects.GET("/:id/recipient", projectHandler.GetRecipient)
			projects.GET("/:id/events", projectHandler.GetProjectEvents)

			projects.POST("/:id/supply", supplyHandler.SupplyProject)
			projects.DELETE("/:id/supply", supplyHandler.RevokeProjectSupply)
			projects.GET("/:id/supply", supplyHandler.GetProjectSupply)
			projects.GET("/:id/suppliers", supplyHandler.GetProjectSuppliers)
			projects.GET("/:id/suppliers/:address", supplyHandler.GetProjectSupplierById)

			projects.GET("/:id/milestones", milestoneHandler.GetMilestones)
			projects.POST("/:id/milestones", milestoneHandler.OfferMilestones)
			projects.POST("/:id/milestones/review", milestoneHandler.ReviewOfferedMilestones)
			projects.POST("/:id/milestones/:index/submit", milestoneHandler.SubmitMilestone)
			projects.POST("/:id/milestones/:index/review", milestoneHandler.ReviewSubmitedMilestone)
			projects.GET("/:id/milestones/:index/votes", milestoneHandler.GetMilestoneVotes)

			projects.POST("/:id/thanks", distributionHandler.SendTokenOfThanks)
			projects.POST("/:id/refund", distributionHandler.ClaimRefund)
		}

		accounts := v1.Group("/accounts")
		{
			accounts.GET("/:address/balance", accountHandler.GetBalance)
			accounts.POST("/:address/faucet", accountHandler.Faucet)
		}

		v1.POST("/roles/registrar/transfer", accountHandler.TransferRegistrarRole)
	}

	return r
}

// CORS中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, "+handler.CallerHeader)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// 请求延迟指标，按路由模板聚合
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequestDuration(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
