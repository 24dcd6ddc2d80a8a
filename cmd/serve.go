package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"dsatutor/internal/api"
	"dsatutor/internal/logger"
	"dsatutor/internal/persist"
	"dsatutor/internal/service/ai"
	"dsatutor/internal/service/assistant"
	"dsatutor/internal/store"
	"dsatutor/internal/worker"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		kv, closeKV, err := openBackend(cfg)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer func() {
			if err := closeKV(); err != nil {
				logger.Log.Warnf("close storage: %v", err)
			}
		}()
		logger.Log.Infof("storage backend: %s", cfg.Storage.Backend)

		adapter := persist.NewAdapter(kv, cfg.Storage.Key)
		st := store.New(adapter,
			store.WithSaveInterval(time.Duration(cfg.BasicConfig.SaveInterval)*time.Millisecond))

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := st.Bootstrap(ctx, adapter); err != nil {
			return fmt.Errorf("bootstrap store: %w", err)
		}

		provider, provCfg, err := cfg.Provider()
		if err != nil {
			return err
		}
		chatModel, err := ai.NewChatModel(context.Background(), provider, provCfg, "", ai.ModelOptions{})
		if err != nil {
			return err
		}
		titleModel, err := ai.NewChatModel(context.Background(), provider, provCfg, "", ai.ModelOptions{DisableThinking: true, MaxTokens: 64})
		if err != nil {
			return err
		}

		// streams outlive the signal context so they can be failed in order on shutdown
		streamCtx, cancelStreams := context.WithCancel(context.Background())
		defer cancelStreams()
		manager := worker.NewManager(streamCtx, st,
			ai.NewService(chatModel),
			assistant.NewTitleGenerator(titleModel),
			worker.DispatcherConfig{
				MinWorkers:        cfg.BasicConfig.MinWorkers,
				MaxWorkers:        cfg.BasicConfig.MaxWorkers,
				QueueSize:         cfg.BasicConfig.QueueSize,
				WorkerIdleTimeout: time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Minute,
				StreamTimeout:     time.Duration(cfg.BasicConfig.StreamTimeout) * time.Second,
			})

		if !verbose {
			gin.SetMode(gin.ReleaseMode)
		}
		router := gin.Default()
		api.NewHandler(st, manager).RegisterRoutes(router)

		addr := cfg.BasicConfig.ServerAddress
		if addr == "" {
			addr = ":8090"
		}
		srv := &http.Server{Addr: addr, Handler: router}
		errCh := make(chan error, 1)
		go func() {
			logger.Log.Infof("listening on %s (provider %s, model %s)", addr, provider, provCfg.Model)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		var serveErr error
		select {
		case <-ctx.Done():
			logger.Log.Info("shutting down")
		case serveErr = <-errCh:
			logger.Log.Errorf("server stopped: %v", serveErr)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		cancelStreams()
		if err := manager.Close(shutdownCtx); err != nil {
			logger.Log.Warnf("streams still running at shutdown: %v", err)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Log.Warnf("http shutdown: %v", err)
		}
		st.Flush(shutdownCtx)
		return serveErr
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
