package ops

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	ginprom "github.com/zsais/go-gin-prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"marketsim.com/pkg/common"
	"marketsim.com/pkg/logger"
	"marketsim.com/pkg/middleware"
	"marketsim.com/pkg/ratelimit"
	"marketsim.com/pkg/xerr"
)

// Health 引擎运行状况，*engine.Engine 满足它
type Health interface {
	Done() <-chan struct{}
	MailboxFull() uint64
	DroppedEvents() uint64
}

type healthView struct {
	Status        string `json:"status"`
	MailboxFull   uint64 `json:"mailbox_full"`
	DroppedEvents uint64 `json:"dropped_events"`
}

// Server 只读运维端口：健康检查、prometheus、pprof
type Server struct {
	srv *http.Server
}

const serviceName = "marketsim-ops"

type Option func(*gin.Engine)

// WithRequestMetrics 按路由统计请求数和耗时，指标注册到默认 registry
func WithRequestMetrics(subsystem string) Option {
	return func(r *gin.Engine) {
		p := ginprom.NewPrometheus(subsystem)
		r.Use(p.HandlerFunc())
	}
}

// WithRateLimit 每个客户端每条路由单独限流，pprof 的 profile 很贵
func WithRateLimit(store *ratelimit.Store) Option {
	return func(r *gin.Engine) { r.Use(middleware.RateLimit(store)) }
}

func NewServer(addr string, h Health, gatherer prometheus.Gatherer, opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(
		otelgin.Middleware(serviceName),
		middleware.ReqId(),
		cors.Default(),
		middleware.Recover(),
	)
	for _, opt := range opts {
		opt(r)
	}

	r.GET("/healthz", func(c *gin.Context) {
		v := healthView{Status: "ok", MailboxFull: h.MailboxFull(), DroppedEvents: h.DroppedEvents()}
		select {
		case <-h.Done():
			common.Fail(c, http.StatusServiceUnavailable, xerr.EngineBusy, "engine stopped")
			return
		default:
		}
		common.Success(c, v)
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	dbg := r.Group("/debug/pprof")
	dbg.GET("/", gin.WrapF(pprof.Index))
	dbg.GET("/cmdline", gin.WrapF(pprof.Cmdline))
	dbg.GET("/profile", gin.WrapF(pprof.Profile))
	dbg.GET("/symbol", gin.WrapF(pprof.Symbol))
	dbg.GET("/trace", gin.WrapF(pprof.Trace))
	dbg.GET("/:name", func(c *gin.Context) {
		pprof.Handler(c.Param("name")).ServeHTTP(c.Writer, c.Request)
	})

	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Run 阻塞到 ctx 取消，然后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "ops http server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}
