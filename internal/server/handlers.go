package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	"github.com/repteam/rep/internal/services"
	"github.com/repteam/rep/internal/tasks"
)

// Event trigger names, the last path segment of /v1/events/{trigger}.
const (
	TriggerClientPlaced      = "onClientPlaced"
	TriggerApplicationCreate = "onApplicationCreate"
	TriggerIntakeCreated     = "onIntakeCreated"
)

// API serves the callables and event triggers on top of a [tasks.Engine].
type API struct {
	engine *tasks.Engine
	logger *log.Logger
}

func NewAPI(engine *tasks.Engine, logger *log.Logger) *API {
	return &API{engine: engine, logger: logger}
}

// RegisterCallables mounts the callables on r, which is expected to be rooted at /v1.
func (a *API) RegisterCallables(r Router) {
	r.Handle(http.MethodPost, "/provisionClient", callable(a, "provisionClient", true,
		func(ctx context.Context, caller *services.Caller, req tasks.ProvisionRequest) (any, error) {
			return a.engine.ProvisionClient(ctx, caller.UID, req)
		}))

	r.Handle(http.MethodPost, "/repairAccount", callable(a, "repairAccount", true,
		func(ctx context.Context, _ *services.Caller, req tasks.RepairRequest) (any, error) {
			return a.engine.RepairAccount(ctx, req)
		}))

	r.Handle(http.MethodPost, "/sendApplicationResponse", callable(a, "sendApplicationResponse", true,
		func(ctx context.Context, caller *services.Caller, req tasks.ResponseRequest) (any, error) {
			return a.engine.SendApplicationResponse(ctx, caller, req)
		}))

	r.Handle(http.MethodPost, "/generateApplicationDraft", callable(a, "generateApplicationDraft", true,
		func(ctx context.Context, _ *services.Caller, req tasks.DraftRequest) (any, error) {
			return a.engine.GenerateApplicationDraft(ctx, req)
		}))

	r.Handle(http.MethodPost, "/runAtsSimulation", callable(a, "runAtsSimulation", false,
		func(ctx context.Context, caller *services.Caller, in tasks.AtsInput) (any, error) {
			if in.UserID == "" && caller != nil {
				in.UserID = caller.UID
			}
			return a.engine.SimulateATS(ctx, in)
		}))
}

// RegisterEvents mounts the event triggers on r, which is expected to be rooted at /v1/events.
func (a *API) RegisterEvents(r Router) {
	r.Handle(http.MethodPost, "/{trigger}", http.HandlerFunc(a.handleEvent))
}

// callable adapts fn to the callable protocol. When auth is set an anonymous request is
// rejected before the body is read.
func callable[T any](a *API, name string, auth bool, fn func(context.Context, *services.Caller, T) (any, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := CallerFrom(r.Context())
		if auth && caller == nil {
			writeError(w, NewCallableError(CodeUnauthenticated, msgUnauthenticated))
			return
		}

		var req T
		if err := decodeCallable(r, &req); err != nil {
			writeError(w, ToCallableError(err))
			return
		}

		result, err := fn(r.Context(), caller, req)
		if err != nil {
			ce := ToCallableError(err)
			if ce.Code == CodeInternal {
				a.logger.Error("callable failed", "name", name, "err", err)
			} else {
				a.logger.Warn("callable rejected", "name", name, "code", ce.Code, "err", err)
			}
			writeError(w, ce)
			return
		}
		writeResult(w, result)
	})
}

// Event is one document trigger delivery.
type Event struct {
	Params map[string]string `json:"params"`
	Before map[string]any    `json:"before,omitempty"`
	After  map[string]any    `json:"after,omitempty"`
}

// ApplicationEventResult is the acknowledgement of an onApplicationCreate delivery.
type ApplicationEventResult struct {
	ApplicationID string `json:"applicationId"`
	AdvisorID     string `json:"advisorId,omitempty"`
	Error         string `json:"error,omitempty"`
}

// IntakeEventResult is the acknowledgement of an onIntakeCreated delivery.
type IntakeEventResult struct {
	IntakeID     string `json:"intakeId"`
	EngagementID string `json:"engagementId,omitempty"`
	Skipped      bool   `json:"skipped"`
	Error        string `json:"error,omitempty"`
}

// handleEvent runs a trigger and acknowledges it with 200 once the handler ran, whatever the
// outcome, so the source does not redeliver. Failures are logged and carried in the result.
func (a *API) handleEvent(w http.ResponseWriter, r *http.Request) {
	trigger := mux.Vars(r)["trigger"]

	var ev Event
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&ev); err != nil {
		writeError(w, NewCallableError(CodeInvalidArgument, "Event body must be a JSON object."))
		return
	}

	ctx := r.Context()
	logger := a.logger.With("trigger", trigger)

	switch trigger {
	case TriggerClientPlaced:
		userID := ev.Params["userId"]
		if userID == "" {
			writeError(w, NewCallableError(CodeInvalidArgument, "Missing params.userId."))
			return
		}
		report, err := a.engine.PlaceClient(ctx, tasks.PlacementEvent{UserID: userID, Before: ev.Before, After: ev.After})
		if err != nil {
			logger.Error("placement trigger failed", "user", userID, "err", err)
			if report == nil {
				writeError(w, ToCallableError(err))
				return
			}
		}
		writeResult(w, report)

	case TriggerApplicationCreate:
		id := ev.Params["applicationId"]
		if id == "" {
			writeError(w, NewCallableError(CodeInvalidArgument, "Missing params.applicationId."))
			return
		}
		res := ApplicationEventResult{ApplicationID: id}
		advisor, err := a.engine.OnApplicationCreate(ctx, id, ev.After)
		if err != nil {
			logger.Error("application trigger failed", "application", id, "err", err)
			res.Error = err.Error()
		}
		res.AdvisorID = advisor.ID
		writeResult(w, res)

	case TriggerIntakeCreated:
		id := ev.Params["intakeId"]
		if id == "" {
			writeError(w, NewCallableError(CodeInvalidArgument, "Missing params.intakeId."))
			return
		}
		res := IntakeEventResult{IntakeID: id}
		engagementID, err := a.engine.OnIntakeCreated(ctx, id, ev.After)
		if err != nil {
			logger.Error("intake trigger failed", "intake", id, "err", err)
			res.Error = err.Error()
		}
		res.EngagementID = engagementID
		res.Skipped = err == nil && engagementID == ""
		writeResult(w, res)

	default:
		writeError(w, NewCallableError(CodeNotFound, "Unknown trigger %q.", trigger))
	}
}

// Health answers liveness probes.
type Health struct{}

func (Health) Routes() []string { return []string{"/healthz"} }

func (Health) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, NewCallableError(CodeInvalidArgument, "Method %s not allowed.", r.Method))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
