package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/okian/trailvote/internal/config"
	"github.com/okian/trailvote/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func testConfig(chainURL string) *config.Config {
	cfg := config.New(context.Background())
	cfg.Addr = "127.0.0.1:0"
	cfg.ChainURL = chainURL
	cfg.WorkerCount = 2
	cfg.Trails = map[string]config.Trail{"alice": {MaxAge: 10, AllowUpvote: true}}
	cfg.Voters = []any{"v1 5Jkey1"}
	return cfg
}

func TestNewService(t *testing.T) {
	convey.Convey("Given a valid configuration", t, func() {
		ctx := context.Background()
		cfg := testConfig("http://127.0.0.1:1")

		convey.Convey("When building the service without a signer", func() {
			svc, closeSinks, err := newService(ctx, cfg, logger.Get())

			convey.Convey("Then it is built in dry-run mode", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(svc, convey.ShouldNotBeNil)
				convey.So(svc.Trails(), convey.ShouldHaveLength, 1)
				convey.So(svc.Voters()[0].Name, convey.ShouldEqual, "v1")
				closeSinks()
			})
		})

		convey.Convey("When a signer and kafka brokers are configured", func() {
			cfg.SignerURL = "http://127.0.0.1:2/sign"
			cfg.KafkaBrokers = []string{"127.0.0.1:9092"}
			svc, closeSinks, err := newService(ctx, cfg, logger.Get())

			convey.Convey("Then it is built with the extra sinks", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(svc, convey.ShouldNotBeNil)
				convey.So(func() { closeSinks() }, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When the chain url is empty", func() {
			cfg.ChainURL = ""
			_, _, err := newService(ctx, cfg, logger.Get())

			convey.Convey("Then building fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When the mode is invalid", func() {
			cfg.Mode = "tip"
			_, _, err := newService(ctx, cfg, logger.Get())
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestNewMux(t *testing.T) {
	convey.Convey("Given the application mux", t, func() {
		ctx := context.Background()
		cfg := testConfig("http://127.0.0.1:1")
		svc, closeSinks, err := newService(ctx, cfg, logger.Get())
		convey.So(err, convey.ShouldBeNil)
		defer closeSinks()

		mux := newMux(ctx, svc, cfg)

		for _, path := range []string{"/healthz", "/stats", "/votes", "/trails", "/trails/alice", "/openapi.yaml", "/api-docs"} {
			req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
		}
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given a node that always fails", t, func() {
		node := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer node.Close()

		cfg := testConfig(node.URL)

		convey.Convey("When running until the context is cancelled", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
			defer cancel()

			err := run(ctx, cfg, logger.Get())

			convey.Convey("Then it shuts down cleanly", func() {
				convey.So(err, convey.ShouldBeNil)
			})
		})
	})

	convey.Convey("Given an address already in use", t, func() {
		busy := httptest.NewServer(http.NotFoundHandler())
		defer busy.Close()

		cfg := testConfig("http://127.0.0.1:1")
		cfg.Addr = busy.Listener.Addr().String()

		convey.Convey("Then run reports the listen failure", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err := run(ctx, cfg, logger.Get())
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "http server")
		})
	})
}

func TestConfigFromEnvironment(t *testing.T) {
	convey.Convey("Given environment configuration", t, func() {
		_ = os.Setenv("TRAILVOTE_ADDR", ":8080")
		_ = os.Setenv("TRAILVOTE_QUEUE_SIZE", "1000")
		_ = os.Setenv("TRAILVOTE_WORKER_COUNT", "4")
		defer func() {
			_ = os.Unsetenv("TRAILVOTE_ADDR")
			_ = os.Unsetenv("TRAILVOTE_QUEUE_SIZE")
			_ = os.Unsetenv("TRAILVOTE_WORKER_COUNT")
		}()

		convey.Convey("Then configuration should be loadable", func() {
			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 1000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
		})
	})
}

func TestSystemMetrics(t *testing.T) {
	convey.Convey("Given the system metrics updater", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
		convey.So(updateSystemMetrics, convey.ShouldNotPanic)
	})
}
