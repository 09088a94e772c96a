package coord

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/improbable-eng/grpc-web/go/grpcweb"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const shutdownTimeout = 5 * time.Second

// grpcMultiplexer routes grpc-web requests to the gRPC server and
// everything else to next.
type grpcMultiplexer struct {
	*grpcweb.WrappedGrpcServer
}

func (m *grpcMultiplexer) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			if m.IsGrpcWebRequest(r) || m.IsAcceptableGrpcCorsRequest(r) {
				m.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		},
	)
}

// Router builds the external HTTP API.
func (c *Coord) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger)

	externalAPI := router.Group("/api")
	{
		externalAPI.POST("/query", c.PostQuery)
		externalAPI.GET("/query/:id", c.GetQuery)
		externalAPI.GET("/queries", c.ListQueries)
		externalAPI.GET("/checkpoints/:id", c.GetCheckpoints)
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(context *gin.Context) {
		context.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

func requestLogger(context *gin.Context) {
	start := time.Now()
	context.Next()
	log.Debug().
		Str("method", context.Request.Method).
		Str("path", context.FullPath()).
		Int("status", context.Writer.Status()).
		Dur("took", time.Since(start)).
		Msg("http")
}

// PostQuery starts a query and returns its id without waiting.
func (c *Coord) PostQuery(context *gin.Context) {
	var q Query
	if err := context.ShouldBindJSON(&q); err != nil {
		context.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := c.Submit(context.Request.Context(), q)
	if err != nil {
		context.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	context.JSON(http.StatusAccepted, gin.H{"id": id, "status": STATUS_RUNNING})
}

// GetQuery returns a query's status; ?wait=true blocks until it finishes.
func (c *Coord) GetQuery(context *gin.Context) {
	id := context.Param("id")
	var (
		res QueryResult
		err error
	)
	if wait, _ := strconv.ParseBool(context.Query("wait")); wait {
		res, err = c.Wait(context.Request.Context(), id)
	} else {
		res, err = c.Status(id)
	}
	if errors.Is(err, ErrUnknownQuery) {
		context.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	context.JSON(http.StatusOK, res)
}

func (c *Coord) ListQueries(context *gin.Context) {
	context.JSON(http.StatusOK, c.Queries())
}

// GetCheckpoints lists checkpointed rounds, or with ?round=N the values
// stored for that round.
func (c *Coord) GetCheckpoints(context *gin.Context) {
	id := context.Param("id")
	roundParam, hasRound := context.GetQuery("round")
	if !hasRound {
		rounds, err := c.CheckpointRounds(id)
		if err != nil {
			context.JSON(checkpointStatus(err), gin.H{"error": err.Error()})
			return
		}
		context.JSON(http.StatusOK, gin.H{"id": id, "rounds": rounds})
		return
	}

	round, err := strconv.ParseUint(roundParam, 10, 64)
	if err != nil {
		context.JSON(http.StatusBadRequest, gin.H{"error": "bad round"})
		return
	}
	values, err := c.Checkpoint(id, round)
	if err != nil {
		context.JSON(checkpointStatus(err), gin.H{"error": err.Error()})
		return
	}
	context.JSON(http.StatusOK, gin.H{"id": id, "round": round, "values": values})
}

func checkpointStatus(err error) int {
	if errors.Is(err, ErrNoCheckpoints) {
		return http.StatusNotImplemented
	}
	return http.StatusNotFound
}

// Start serves the client gRPC API and the external HTTP API until ctx is
// done or a listener fails.
func (c *Coord) Start(ctx context.Context) error {
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(loggingInterceptor))
	RegisterCoordServer(grpcServer, c)

	g, gctx := errgroup.WithContext(ctx)
	if c.cfg.ClientAPIListenAddr != "" {
		lis, err := net.Listen("tcp", c.cfg.ClientAPIListenAddr)
		if err != nil {
			return err
		}
		log.Info().Str("addr", lis.Addr().String()).Msg("Start: listening for clients")
		g.Go(func() error { return grpcServer.Serve(lis) })
	}

	var httpServer *http.Server
	if c.cfg.ExternalAPIListenAddr != "" {
		mux := &grpcMultiplexer{grpcweb.WrapServer(grpcServer)}
		httpServer = &http.Server{
			Addr:    c.cfg.ExternalAPIListenAddr,
			Handler: mux.Handler(c.Router()),
		}
		log.Info().Str("addr", httpServer.Addr).Msg("Start: listening for external requests")
		g.Go(func() error {
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		// running queries end first so blocked StartQuery calls return
		c.cancel()
		if httpServer != nil {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = httpServer.Shutdown(sctx)
		}
		grpcServer.GracefulStop()
		return nil
	})

	err := g.Wait()
	c.Stop()
	return err
}
