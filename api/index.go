// Package handler is the serverless entry point. The platform calls Handler for every request.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"auth_backend/internal/api"
	"auth_backend/internal/app/bootstrap"
	"auth_backend/internal/platform/http/middleware"
	"auth_backend/internal/platform/idx"
	"auth_backend/internal/shared/apperr"
)

var (
	once    sync.Once
	app     *bootstrap.App
	initErr error

	// newApp is replaced in tests.
	newApp = func() (*bootstrap.App, error) { return bootstrap.FromEnv(context.Background()) }
)

// Handler serves one request. The application is built on the first call and
// reused by later calls on the same instance.
func Handler(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		app, initErr = newApp()
	})
	if initErr != nil {
		fatal(w, r, initErr)
		return
	}
	app.Engine.ServeHTTP(w, r)
}

// fatal answers with the fixed envelope when the process could not be bootstrapped.
func fatal(w http.ResponseWriter, r *http.Request, err error) {
	cid := idx.FromHeader(r.Header.Get(middleware.HeaderRequestID))
	slog.Error("bootstrap failed",
		"state", middleware.StateFatal,
		"correlation_id", cid,
		"operation", r.URL.Path,
		"cause", err,
	)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set(middleware.HeaderRequestID, cid)
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{
		ErrorKind:     string(apperr.KindUnexpected),
		Message:       apperr.DefaultMessage(apperr.KindUnexpected),
		CorrelationID: cid,
	})
}
