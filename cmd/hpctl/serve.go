package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/rpc"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/store"
)

var (
	serveAddr   string
	serveRecord bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the Resolve RPC over gRPC",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("addr") {
			cfg.GRPCAddr = serveAddr
		}
		r, err := newResolver()
		if err != nil {
			return err
		}

		opts := []rpc.ServerOption{rpc.WithServerLogger(logger)}
		if serveRecord {
			st, err := store.NewStore(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()
			opts = append(opts, rpc.WithStore(st))
		}

		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
		}
		gs := grpc.NewServer()
		rpc.NewServer(r, opts...).Register(gs)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		go func() {
			<-ctx.Done()
			logger.Info("shutting down")
			gs.GracefulStop()
		}()

		logger.Info("serving", zap.String("addr", lis.Addr().String()), zap.Int("protocols", r.Registry().Len()))
		if err := gs.Serve(lis); err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (or set HP_GRPC_ADDR)")
	serveCmd.Flags().BoolVar(&serveRecord, "record", true, "Record every pass in the history database")
}
