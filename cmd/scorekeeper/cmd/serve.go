package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/scorekeeper/internal/cloudbalance"
	"github.com/solatis/scorekeeper/internal/core/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC score service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "gRPC server host")
	serveCmd.Flags().Int("port", 50051, "gRPC server port")
	serveCmd.Flags().String("problem", "", "stored problem id (generated from config when empty)")
	serveCmd.Flags().String("match-policy", "", "match policy (disabled, score_only, full)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd, map[string]string{
		"server.host":          "host",
		"server.port":          "port",
		"network.match_policy": "match-policy",
	})
	if err != nil {
		return err
	}
	problemID, _ := cmd.Flags().GetString("problem")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, err := loadProblem(ctx, cfg, problemID, log)
	if err != nil {
		return err
	}
	defer src.close()

	opts := cfg.NetworkOptions()
	opts.Logger = log
	session, err := cloudbalance.NewSession(src.problem, cloudbalance.Constraints{}, opts)
	if err != nil {
		return err
	}
	service, err := server.NewScoreService(session)
	if err != nil {
		return err
	}
	grpcServer, err := server.NewGRPCServer(cfg.Server, service, log)
	if err != nil {
		return err
	}

	log.Info("starting score service", "version", Version, "host", cfg.Server.Host, "port", cfg.Server.Port)
	errChan := make(chan error, 1)
	go func() {
		errChan <- grpcServer.Start(ctx)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		log.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		return grpcServer.Shutdown(shutdownCtx)
	}
}
