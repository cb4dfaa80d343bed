package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/oapi-codegen/runtime"
	"github.com/oapi-codegen/runtime/strictmiddleware/nethttp"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/journal-gateway/internal/serviceerr"
	"github.com/openkcm/journal-gateway/internal/session"
)

const maxBodySize = 1 << 20

// operationFunc handles one API operation. A returned error is rendered as a
// service error payload.
type operationFunc func(ctx context.Context, w http.ResponseWriter, r *http.Request) (operationResponse, error)

type operationResponse interface {
	statusCode() int
	visit(w http.ResponseWriter) error
}

type jsonResponse struct {
	status int
	body   any
}

func ok(body any) jsonResponse { return jsonResponse{status: http.StatusOK, body: body} }

func (r jsonResponse) statusCode() int { return r.status }

func (r jsonResponse) visit(w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(r.status)

	return json.NewEncoder(w).Encode(r.body)
}

type redirectResponse struct {
	location string
}

func (r redirectResponse) statusCode() int { return http.StatusFound }

func (r redirectResponse) visit(w http.ResponseWriter) error {
	w.Header().Set("Location", r.location)
	w.WriteHeader(http.StatusFound)

	return nil
}

// ErrorModel is the JSON body of every failed request.
type ErrorModel struct {
	Error            string  `json:"error"`
	ErrorDescription *string `json:"error_description,omitempty"`
}

type successResponse struct {
	Success bool  `json:"success"`
	ID      int64 `json:"id,omitempty"`
}

// operation runs fn behind the strict middlewares and renders its result.
func (h *handler) operation(operationID string, fn operationFunc) http.Handler {
	f := nethttp.StrictHTTPHandlerFunc(func(ctx context.Context, w http.ResponseWriter, r *http.Request, _ any) (any, error) {
		return fn(ctx, w, r)
	})
	for _, middleware := range h.middlewares {
		f = middleware(f, operationID)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		response, err := f(ctx, w, r, nil)
		if err != nil {
			if s, found := session.FromContext(ctx); found && !s.Anonymous() && errors.Is(err, serviceerr.ErrUnauthorized) {
				// The backend rejected the credentials of the session.
				h.deps.Sessions.Clear(w)
			}
			writeError(ctx, w, err)
			return
		}

		resp, isResponse := response.(operationResponse)
		if !isResponse {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if err := resp.visit(w); err != nil {
			slogctx.Error(ctx, "Failed to write the response", "operation", operationID, "error", err)
		}
	})
}

// writeError renders err. Internal details never reach the client; they
// are logged instead.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	serviceErr := serviceerr.From(err)

	status := serviceErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		slogctx.Error(ctx, "Request failed", "error", err)
	} else {
		slogctx.Debug(ctx, "Request rejected", "error", err)
	}

	model := ErrorModel{Error: string(serviceErr.Err)}
	if serviceErr.Description != "" {
		model.ErrorDescription = &serviceErr.Description
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model)
}

func badRequest(description string) error {
	return serviceerr.ErrInvalidRequest.WithDescription(description)
}

// decodeBody reads the JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errors.Join(badRequest("invalid request body"), err)
	}

	return nil
}

// pathID binds the positive integer path parameter name.
func pathID(r *http.Request, name string) (int64, error) {
	var id int64

	err := runtime.BindStyledParameterWithOptions("simple", name, mux.Vars(r)[name], &id, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Required:      true,
	})
	if err != nil {
		return 0, errors.Join(badRequest(fmt.Sprintf("invalid format for parameter %s", name)), err)
	}

	if id <= 0 {
		return 0, badRequest(name + " must be positive")
	}

	return id, nil
}
