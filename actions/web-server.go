package actions

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/relloyd/etl-engine/config"
	"github.com/relloyd/etl-engine/constants"
	"github.com/relloyd/etl-engine/execution"
	"github.com/relloyd/etl-engine/helper"
	"github.com/relloyd/etl-engine/logger"
	"github.com/relloyd/etl-engine/rdbms/shared"
	"github.com/relloyd/etl-engine/scenario"
)

const (
	urlContext4Launch     = "/launch"
	shutdownWaitSeconds   = 15
	shutdownPollFrequency = 100 * time.Millisecond
)

type WebServerConfig struct {
	LogLevel                  string `errorTxt:"log level" mandatory:"yes"`
	Scheme                    string `errorTxt:"scheme" mandatory:"no"`
	Addr                      net.IP `errorTxt:"address" mandatory:"no"`
	Port                      int    `errorTxt:"port" mandatory:"no"`
	Settings                  *config.Settings
	Connections               shared.ConnectionGetter `errorTxt:"connections" mandatory:"yes"`
	Repository                scenario.Repository     // defaults to the scenario dir in Defaults.
	Defaults                  config.Defaults
	StatsDumpFrequencySeconds int
	StackDumpOnPanic          bool
	// Executor replaces the engine, for testing.
	Executor ScenarioExecutor
}

func RunWebServer(web *WebServerConfig) error {
	// Setup logging.
	if web == nil {
		return errors.New("nil pointer to web server config supplied")
	}
	log := logger.NewLogger(constants.ServiceName, web.LogLevel, web.StackDumpOnPanic)
	// Check if we have valid input params.
	if err := helper.ValidateStructIsPopulated(web); err != nil {
		return err
	}
	// Start the web server.
	srv, chanStopServer, launcher := runServer(log, web)
	// Block & wait for completion.
	return waitForServer(log, srv, chanStopServer, launcher.Executions())
}

// newLauncher wires the engine described by web into an execution.Launcher.
func newLauncher(log logger.Logger, web *WebServerConfig) (*execution.Launcher, scenario.Repository) {
	repo := web.Repository
	if repo == nil {
		repo = &scenario.FileRepository{Dir: web.Defaults.ScenarioDir}
	}
	exec := web.Executor
	if exec == nil {
		exec = newEtlProcess(log, web.Settings, web.Connections, repo, web.Defaults)
	}
	return execution.NewLauncher(log, exec, execution.NewSafeMapExecutionInfo(), web.StatsDumpFrequencySeconds), repo
}

// newRouter creates the REST routes.
func newRouter(log logger.Logger, launcher *execution.Launcher, repo scenario.Repository, chanStopServer chan string) *mux.Router {
	all := launcher.Executions()
	r := mux.NewRouter()
	r.Path("/stop").Methods(http.MethodPost).HandlerFunc(GetHandlerStopServer(log, chanStopServer))
	r.Path("/health").Methods(http.MethodGet).HandlerFunc(GetHandlerHealth(log))
	r.Path("/executions").Methods(http.MethodGet).HandlerFunc(GetHandlerExecutionList(log, all))
	r.Path("/executions/{executionId}/stats").Methods(http.MethodGet).HandlerFunc(GetHandlerExecutionStats(log, all))
	r.Path("/executions/{executionId}/status").Methods(http.MethodGet).HandlerFunc(GetHandlerExecutionStatus(log, all))
	r.Path("/executions/{executionId}/stop").Methods(http.MethodPost).HandlerFunc(GetHandlerExecutionStop(log, all))
	r.Path(urlContext4Launch).Methods(http.MethodPost).Headers("Content-Type", "application/json").HandlerFunc(
		GetHandlerExecutionLaunch(log, launcher, repo))
	return r
}

// runServer starts a web server and returns:
// 1) the server; and
// 2) a channel that can be used to stop the web server
// 3) the launcher holding info on the executions
func runServer(log logger.Logger, web *WebServerConfig) (*http.Server, chan string, *execution.Launcher) {
	chanStopServer := make(chan string, 1)
	launcher, repo := newLauncher(log, web)
	// Configure HTTP server.
	srv := &http.Server{ // Good practice to set timeouts to avoid Slowloris attacks.
		Addr:         fmt.Sprintf("%v:%v", web.Addr, web.Port),
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      newRouter(log, launcher, repo, chanStopServer), // supply our instance of gorilla/mux.
	}
	// Run HTTP server non-blocking.
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			if err == http.ErrServerClosed {
				log.Info(err)
			} else {
				log.Panic(err)
			}
		}
	}()
	log.Info(fmt.Sprintf("Listening on %v://%v:%v", strings.ToLower(web.Scheme), web.Addr, web.Port))
	return srv, chanStopServer, launcher
}

func waitForServer(log logger.Logger, srv *http.Server, chanStopServer chan string, all *execution.SafeMapExecutionInfo) error {
	// Block & wait for shutdown signals.
	// Accept graceful shutdowns when quit via SIGINT (Ctrl+C)
	// SIGKILL, SIGQUIT or SIGTERM (Ctrl+\) will not be caught.
	chanOS := make(chan os.Signal, 1)
	signal.Notify(chanOS, os.Interrupt) // request signals be sent to chanOS.
	defer signal.Stop(chanOS)
	select {
	case <-chanStopServer:
	case <-chanOS:
	}
	fmt.Println() // print new line char for clean looking CLI.
	log.Info("Shutting down web server...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownWaitSeconds*time.Second)
	defer cancel()
	// Stop new launches before stopping running executions.
	srv.SetKeepAlivesEnabled(false)
	stopExecutions(ctx, log, all)
	return srv.Shutdown(ctx) // doesn't block if no connections, but will otherwise wait until the timeout deadline.
}

// stopExecutions asks every running execution to stop and waits until they have all finished
// or ctx is done.
func stopExecutions(ctx context.Context, log logger.Logger, all *execution.SafeMapExecutionInfo) {
	for _, ei := range all.List() { // for each execution...
		if !ei.Status.IsFinished() && ei.Closer.Stop(nil) { // if the execution accepted the stop request...
			log.Info("Stopping execution ", ei.ID)
		}
	}
	t := time.NewTicker(shutdownPollFrequency)
	defer t.Stop()
	for {
		running := 0
		for _, ei := range all.List() {
			if !ei.Status.IsFinished() {
				running++
			}
		}
		if running == 0 {
			return
		}
		select {
		case <-ctx.Done():
			log.Warn(running, " execution(s) did not stop before the shutdown deadline")
			return
		case <-t.C:
		}
	}
}
