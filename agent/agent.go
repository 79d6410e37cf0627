package agent

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/redbadger/deployhook/config"
	"github.com/redbadger/deployhook/git"
	gh "github.com/redbadger/deployhook/github"
	"github.com/redbadger/deployhook/notify"
)

const shutdownTimeout = 10 * time.Second

// New wires the webhook endpoint for cfg
func New(cfg *config.Config) *gin.Engine {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	reporter := gh.NewReporter(cfg.Token, cfg.APIURL, cfg.HTTPTimeout)
	executor := NewExecutor(cfg, reporter, git.Runner{})
	relay := notify.NewRelay(cfg.SlackWebhook, cfg.HTTPTimeout)
	return NewRouter(cfg.Path, cfg.Secret, executor, relay)
}

// Agent runs deployhook as a bot until ctx is done
func Agent(ctx context.Context, cfg *config.Config) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: New(cfg),
	}

	errChan := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{
			"addr":  srv.Addr,
			"path":  cfg.Path,
			"repos": len(cfg.Repositories()),
		}).Info("listening for webhooks")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("cannot listen for webhook: %v", err)
	}
}
