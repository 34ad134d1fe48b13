package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-keycloak-session/auth"
	"github.com/jrsteele09/go-keycloak-session/interceptor"
	"github.com/jrsteele09/go-keycloak-session/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const appName = "kcsession"

func main() {
	configFile := flag.String("config", "", "path to a config file (yaml, json or toml)")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := run(*configFile); err != nil {
		log.Fatal().Err(err).Msg("kcsession stopped with an error")
	}
	log.Info().Msg("kcsession stopped")
}

func run(configFile string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	setLogLevel(cfg.LogLevel)
	displayAppname(appName)

	backend, closeStorage, err := cfg.OpenStorage()
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := closeStorage(); err != nil {
			log.Warn().Err(err).Msg("Could not close storage")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := auth.NewMetrics()
	options := []auth.SessionOption{auth.WithMetrics(metrics), auth.WithLogger(log.Logger)}
	sessionCfg := cfg.Session(backend)
	if cfg.Discover {
		endpoints, err := auth.DiscoverEndpoints(ctx, sessionCfg.RealmURL(), nil)
		if err != nil {
			return err
		}
		options = append(options, auth.WithEndpoints(endpoints))
	}

	session, err := auth.NewSessionService(sessionCfg, options...)
	if err != nil {
		return err
	}

	if err := startSession(ctx, session, cfg); err != nil {
		return err
	}
	defer session.StopAccessTokenUpdate()

	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux(metrics), ReadHeaderTimeout: 5 * time.Second}
	go listenAndServe(metricsServer)

	if cfg.APIURL != "" {
		client := interceptor.NewClient(session, nil, interceptor.WithMetrics(metrics))
		if err := callAPI(ctx, client, cfg.APIURL); err != nil {
			log.Error().Err(err).Str("url", cfg.APIURL).Msg("API call failed")
		}
	}

	go logAuthorizationChanges(session)
	waitForStopSignal()

	if err := session.Logout(ctx, nil); err != nil {
		log.Warn().Err(err).Msg("Session kept after failed logout")
	}
	return shutdown(metricsServer)
}

// startSession resumes a stored session when its refresh token is still valid and logs in otherwise.
func startSession(ctx context.Context, session *auth.SessionService, cfg *config.Config) error {
	if session.IsRefreshTokenValid() {
		log.Info().Msg("Resuming stored session")
		session.StartAccessTokenUpdate(nil)
		return nil
	}
	if cfg.Username == "" {
		return errors.New("no stored session and no username configured")
	}
	if _, err := session.Login(ctx, cfg.Username, cfg.Password, true, nil); err != nil {
		return err
	}
	return nil
}

func callAPI(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	n, _ := io.Copy(io.Discard, resp.Body)
	log.Info().Str("url", url).Int("status", resp.StatusCode).Int64("bytes", n).Msg("API call completed")
	return nil
}

func logAuthorizationChanges(session *auth.SessionService) {
	updates, _ := session.WatchAuthorized()
	for authorized := range updates {
		log.Info().Bool("authorized", authorized).Msg("Authorization state")
	}
}

func metricsMux(metrics *auth.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func setLogLevel(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}

func listenAndServe(server *http.Server) {
	log.Info().Str("addr", server.Addr).Msg("Metrics listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("Metrics server failed")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
