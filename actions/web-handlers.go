package actions

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/relloyd/etl-engine/engine"
	"github.com/relloyd/etl-engine/execution"
	"github.com/relloyd/etl-engine/logger"
	"github.com/relloyd/etl-engine/scenario"
)

const maxLaunchBodyBytes = 1 << 20

type WebServerResponse uint32

const (
	Okay WebServerResponse = iota + 1
	Error
)

func (w WebServerResponse) MarshalJSON() ([]byte, error) {
	var retval string
	switch w {
	case Okay:
		retval = "ok"
	case Error:
		retval = "error"
	default:
		err := fmt.Errorf("unhandled WebServerResponse value in MarshalJSON() conversion")
		return nil, err
	}
	return json.Marshal(retval)
}

// LaunchRequest is the body of POST /launch.
type LaunchRequest struct {
	Scenario  string            `json:"scenario"`
	Variables map[string]string `json:"variables"`
}

type ResponseSimple struct {
	ServerStatus WebServerResponse `json:"status"`
}

type ResponseExecutionList struct {
	Status     WebServerResponse   `json:"status"`
	Executions []ExecutionListItem `json:"executions"`
}

type ExecutionListItem struct {
	ExecutionID     string           `json:"executionId"`
	Scenario        string           `json:"scenario"`
	ExecutionStatus execution.Status `json:"executionStatus"`
	StartTime       time.Time        `json:"startTime"`
	EndTime         time.Time        `json:"endTime"`
}

type ResponseExecutionStats struct {
	Status       WebServerResponse `json:"status"`
	Message      string            `json:"message"`
	StatsSummary interface{}       `json:"executionStats"`
}

type ResponseExecutionStatus struct {
	Status          WebServerResponse         `json:"status"`
	Message         string                    `json:"message"`
	ExecutionStatus execution.ExecutionStatus `json:"executionStatus"`
}

type ResponseExecutionStop struct {
	Status      WebServerResponse `json:"status"`
	Message     string            `json:"message"`
	ExecutionID string            `json:"executionId"`
}

type ResponseExecutionLaunch struct {
	Status      WebServerResponse `json:"status"`
	Message     string            `json:"message"`
	ExecutionID string            `json:"executionId"`
}

func GetHandlerHealth(log logger.Logger) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponseSimple{ServerStatus: Okay})
	}
}

func GetHandlerStopServer(log logger.Logger, chanStop chan string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case chanStop <- "stop":
			log.Info("Stop signal sent")
		default: // a stop is already pending.
		}
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponseSimple{ServerStatus: Okay})
	}
}

// GetHandlerExecutionLaunch loads the requested scenario and launches it in the background.
func GetHandlerExecutionLaunch(log logger.Logger, launcher *execution.Launcher, repo scenario.Repository) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		// Ingest the launch request from the body JSON.
		lr := LaunchRequest{}
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLaunchBodyBytes))
		if err := dec.Decode(&lr); err != nil {
			logAndRespond(log, err, w,
				ResponseExecutionLaunch{Status: Error, Message: fmt.Sprintf("error unmarshalling JSON: %v", err)})
			return
		}
		if lr.Scenario == "" {
			logAndRespond(log, fmt.Errorf("launch request without a scenario"), w,
				ResponseExecutionLaunch{Status: Error, Message: "please supply a value for scenario"})
			return
		}
		// Load the scenario now so a bad name is reported to the caller.
		s, err := repo.Load(lr.Scenario)
		if err != nil {
			logAndRespond(log, err, w,
				ResponseExecutionLaunch{Status: Error, Message: fmt.Sprintf("unable to load scenario %v: %v", lr.Scenario, err)})
			return
		}
		// Launch.
		id := launcher.Launch(&engine.Request{Scenario: s, ScenarioName: s.Name, Variables: lr.Variables}, false)
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponseExecutionLaunch{Status: Okay, Message: "execution launched", ExecutionID: id})
	}
}

func GetHandlerExecutionStop(log logger.Logger, all *execution.SafeMapExecutionInfo) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["executionId"]
		ei, ok := all.Load(id)
		if !ok { // if the execution doesn't exist...
			w.WriteHeader(http.StatusBadRequest)
			log.Info("HTTP request to stop execution ", id, " that doesn't exist.")
			respond(log, w, ResponseExecutionStop{Status: Error, Message: "execution does not exist", ExecutionID: id})
			return
		}
		w.WriteHeader(http.StatusOK)
		if ei.Status.IsFinished() || !ei.Closer.Stop(nil) { // if the execution has already finished or is stopping...
			log.Info("HTTP request to stop execution ", id, " that has already ended.")
			respond(log, w, ResponseExecutionStop{Status: Error, Message: "execution already ended", ExecutionID: id})
			return
		}
		log.Info("Stopping execution ", id)
		respond(log, w, ResponseExecutionStop{Status: Okay, Message: "shutting down", ExecutionID: id})
	}
}

func GetHandlerExecutionList(log logger.Logger, all *execution.SafeMapExecutionInfo) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		list := all.List()
		items := make([]ExecutionListItem, 0, len(list))
		for _, ei := range list { // for each execution...
			items = append(items, ExecutionListItem{
				ExecutionID:     ei.ID,
				Scenario:        ei.Scenario,
				ExecutionStatus: ei.Status.Status,
				StartTime:       ei.Status.StartTime,
				EndTime:         ei.Status.EndTime,
			})
		}
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponseExecutionList{Status: Okay, Executions: items})
	}
}

func GetHandlerExecutionStats(log logger.Logger, all *execution.SafeMapExecutionInfo) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["executionId"]
		ei, ok := all.Load(id)
		if ok && ei.Stats != nil { // if the execution exists...
			w.WriteHeader(http.StatusOK)
			respond(log, w, ResponseExecutionStats{Status: Okay, StatsSummary: ei.Stats.GetStats()})
		} else { // else the execution doesn't exist...
			w.WriteHeader(http.StatusBadRequest)
			log.Info("HTTP request to fetch stats for execution ", id, " that doesn't exist.")
			respond(log, w, ResponseExecutionStats{Status: Error, Message: fmt.Sprintf("execution %v does not exist", id)})
		}
	}
}

func GetHandlerExecutionStatus(log logger.Logger, all *execution.SafeMapExecutionInfo) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["executionId"]
		ei, ok := all.Load(id)
		if ok { // if the execution exists...
			w.WriteHeader(http.StatusOK)
			respond(log, w, ResponseExecutionStatus{Status: Okay, ExecutionStatus: ei.Status})
		} else { // else the execution doesn't exist...
			w.WriteHeader(http.StatusBadRequest)
			log.Info("HTTP request for status of execution ", id, " that doesn't exist.")
			respond(log, w, ResponseExecutionStatus{Status: Error, Message: fmt.Sprintf("execution %v does not exist", id)})
		}
	}
}

// logAndRespond will log the error, write a http.StatusBadRequest and r to w.
func logAndRespond(log logger.Logger, err error, w http.ResponseWriter, r ResponseExecutionLaunch) {
	log.Error(err)
	w.WriteHeader(http.StatusBadRequest)
	respond(log, w, r)
}

// respond will marshal i to a string and write it to w.
func respond(log logger.Logger, w http.ResponseWriter, i interface{}) {
	j, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		log.Error(err)
		return
	}
	if _, err = w.Write(j); err != nil {
		log.Error(err)
	}
}
