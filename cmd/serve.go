package cmd

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	authclient "github.com/vibast-solutions/lib-go-auth/client"
	authmiddleware "github.com/vibast-solutions/lib-go-auth/middleware"
	authlibservice "github.com/vibast-solutions/lib-go-auth/service"
	"github.com/vibast-solutions/ms-go-logistics/app/controller"
	logisticsgrpc "github.com/vibast-solutions/ms-go-logistics/app/grpc"
	"github.com/vibast-solutions/ms-go-logistics/app/service"
	"github.com/vibast-solutions/ms-go-logistics/app/types"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var serveWithWorkers bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  "Start both HTTP (Echo) and gRPC servers for the logistics service.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveWithWorkers, "with-workers", false, "Also consume every queue in this process")
}

type httpControllers struct {
	webhooks      *controller.WebhookController
	gatewayConfig *controller.GatewayConfigController
	campaigns     *controller.CampaignController
	orders        *controller.OrderController
}

func runServe(_ *cobra.Command, _ []string) {
	app, cleanup := mustBootstrap()
	defer cleanup()
	cfg := app.cfg

	campaignService := service.NewCampaignService(app.tracker, app.leadCampaigns, app.leadSource, app.broker, cfg.Campaigns)
	controllers := httpControllers{
		webhooks: controller.NewWebhookController(
			service.NewWebhookService(app.registry, app.gatewayConfigs, app.dispatches, app.broker, cfg.Webhooks, cfg.App.IsProduction()),
			cfg.Webhooks.MaxBodyBytes,
		),
		gatewayConfig: controller.NewGatewayConfigController(service.NewGatewayConfigService(app.gatewayConfigs, app.registry)),
		campaigns:     controller.NewCampaignController(campaignService, app.broadcaster),
		orders: controller.NewOrderController(
			service.NewOrderService(app.orders, app.orderItems, app.registry, app.broker),
			service.NewLeadOfferService(app.broker),
		),
	}

	authGRPCClient, err := authclient.NewGRPCClientFromAddr(context.Background(), cfg.InternalEndpoints.AuthGRPCAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize auth gRPC client")
	}
	defer authGRPCClient.Close()

	internalAuthService := authlibservice.NewInternalAuthService(authGRPCClient)
	echoInternalAuthMiddleware := authmiddleware.NewEchoInternalAuthMiddleware(internalAuthService)
	grpcInternalAuthMiddleware := authmiddleware.NewGRPCInternalAuthMiddleware(internalAuthService)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if app.redisPublisher != nil {
		go func() {
			if err := app.redisPublisher.Relay(ctx, app.broadcaster); err != nil && ctx.Err() == nil {
				logrus.WithError(err).Error("Campaign progress relay stopped")
			}
		}()
	}

	workersDone := make(chan struct{})
	if serveWithWorkers || strings.EqualFold(cfg.Queue.Driver, queueDriverMemory) {
		pool, err := app.pool(nil)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to build worker pool")
		}
		go func() {
			defer close(workersDone)
			logrus.Info("Starting in-process workers")
			if err := pool.Run(ctx); err != nil && ctx.Err() == nil {
				logrus.WithError(err).Error("Worker pool stopped")
			}
		}()
	} else {
		close(workersDone)
	}

	e := setupHTTPServer(controllers, echoInternalAuthMiddleware, cfg.App.ServiceName)
	grpcSrv, healthSrv, lis := setupGRPCServer(
		net.JoinHostPort(cfg.GRPC.Host, cfg.GRPC.Port),
		logisticsgrpc.NewServer(campaignService, app.broadcaster),
		grpcInternalAuthMiddleware,
		cfg.App.ServiceName,
	)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	go func() {
		logrus.WithField("addr", lis.Addr().String()).Info("Starting gRPC server")
		if err := grpcSrv.Serve(lis); err != nil {
			logrus.WithError(err).Fatal("gRPC server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	healthSrv.Shutdown()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}
	grpcSrv.GracefulStop()

	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		logrus.Warn("Workers did not stop before the shutdown timeout")
	}

	logrus.Info("Server stopped")
}

func setupHTTPServer(
	controllers httpControllers,
	internalAuthMiddleware *authmiddleware.EchoInternalAuthMiddleware,
	appServiceName string,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
				"request_id": v.RequestID,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	e.GET("/health", controller.Health)

	// Gateways do not send request ids or internal credentials.
	e.POST("/webhook/:provider", controllers.webhooks.Receive)

	internal := []echo.MiddlewareFunc{
		requireRequestID(),
		internalAuthMiddleware.RequireInternalAccess(appServiceName),
	}

	admin := e.Group("/admin", internal...)
	admin.GET("/gateways", controllers.gatewayConfig.Gateways)
	admin.POST("/gateway-configs", controllers.gatewayConfig.Create)
	admin.GET("/gateway-configs", controllers.gatewayConfig.List)
	admin.POST("/gateway-configs/validate", controllers.gatewayConfig.Validate)
	admin.GET("/gateway-configs/:client_id/:provider", controllers.gatewayConfig.Get)
	admin.PUT("/gateway-configs/:client_id/:provider", controllers.gatewayConfig.Update)
	admin.DELETE("/gateway-configs/:client_id/:provider", controllers.gatewayConfig.Delete)

	campaigns := e.Group("/campaigns", internal...)
	campaigns.POST("", controllers.campaigns.Start)
	campaigns.GET("/eta", controllers.campaigns.ETA)
	campaigns.POST("/:id/pause", controllers.campaigns.Pause)
	campaigns.POST("/:id/resume", controllers.campaigns.Resume)
	campaigns.POST("/:id/cancel", controllers.campaigns.Cancel)
	campaigns.GET("/:id/progress", controllers.campaigns.Progress)
	campaigns.GET("/:id/events", controllers.campaigns.Events)

	orders := e.Group("/orders", internal...)
	orders.GET("", controllers.orders.List)
	orders.GET("/:id", controllers.orders.Get)
	orders.POST("/:id/payment", controllers.orders.RequestPayment)

	leads := e.Group("/leads", internal...)
	leads.POST("/offers", controllers.orders.SubmitLeadOffer)

	return e
}

func requireRequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
			if requestID == "" {
				return ctx.JSON(http.StatusBadRequest, &types.ErrorResponse{Error: "x-request-id header is required"})
			}
			ctx.Response().Header().Set(echo.HeaderXRequestID, requestID)
			return next(ctx)
		}
	}
}

func setupGRPCServer(
	grpcAddr string,
	progressServer *logisticsgrpc.Server,
	internalAuthMiddleware *authmiddleware.GRPCInternalAuthMiddleware,
	appServiceName string,
) (*grpc.Server, *health.Server, net.Listener) {
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to listen on gRPC port")
	}

	// Health probes carry neither request ids nor internal credentials.
	healthPrefix := "/" + healthpb.Health_ServiceDesc.ServiceName + "/"
	requireInternal := internalAuthMiddleware.UnaryRequireInternalAccess(appServiceName)
	grpcSrv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			logisticsgrpc.RecoveryInterceptor(),
			logisticsgrpc.SkipUnary(healthPrefix, logisticsgrpc.RequestIDInterceptor()),
			logisticsgrpc.LoggingInterceptor(),
			logisticsgrpc.SkipUnary(healthPrefix, requireInternal),
		),
		grpc.ChainStreamInterceptor(
			logisticsgrpc.StreamRecoveryInterceptor(),
			logisticsgrpc.SkipStream(healthPrefix, logisticsgrpc.StreamRequestIDInterceptor()),
			logisticsgrpc.StreamLoggingInterceptor(),
			logisticsgrpc.SkipStream(healthPrefix, logisticsgrpc.StreamFromUnary(requireInternal)),
		),
	)
	logisticsgrpc.RegisterCampaignProgressServer(grpcSrv, progressServer)

	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)

	return grpcSrv, healthSrv, lis
}
