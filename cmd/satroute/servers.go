package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"

	"github.com/signalsfoundry/constellation-router/internal/logging"
)

func serveMetrics(addr string, handler http.Handler, log logging.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

func shutdownMetrics(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

// serveGRPC listens on addr and serves in the background. The returned stop
// function drains in-flight calls.
func serveGRPC(addr string, server *grpc.Server, log logging.Logger) (net.Addr, func(), error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}

	log.Info(context.Background(), "starting query gRPC server", logging.String("addr", lis.Addr().String()))
	go func() {
		if err := server.Serve(lis); err != nil {
			log.Error(context.Background(), "gRPC server exited", logging.Err(err))
		}
	}()
	return lis.Addr(), server.GracefulStop, nil
}
