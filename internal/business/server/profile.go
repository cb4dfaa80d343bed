package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/journal-gateway/internal/backend"
	"github.com/openkcm/journal-gateway/internal/serviceerr"
)

const (
	defaultLibraryName        = "My Reading List"
	defaultLibraryDescription = "Your personal academic reading collection"
)

type profileBody struct {
	Name        string  `json:"name"`
	Bio         *string `json:"bio"`
	Institution *string `json:"institution"`
}

type createdProfileResponse struct {
	Success       bool    `json:"success"`
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	Bio           *string `json:"bio"`
	Institution   *string `json:"institution"`
	SetupComplete bool    `json:"setupComplete"`
}

type setupStatusResponse struct {
	NeedsSetup bool             `json:"needsSetup"`
	HasProfile bool             `json:"hasProfile"`
	Profile    *backend.Profile `json:"profile"`
	Error      string           `json:"error,omitempty"`
}

func (h *handler) getMyProfile(ctx context.Context, _ http.ResponseWriter, _ *http.Request) (operationResponse, error) {
	resp, err := h.deps.Services.Profile(ctx).GetProfile(ctx, &backend.GetProfileRequest{})
	if err != nil {
		return nil, err
	}

	return ok(resp.Profile), nil
}

func (h *handler) getProfile(ctx context.Context, _ http.ResponseWriter, r *http.Request) (operationResponse, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}

	resp, err := h.deps.Services.Profile(ctx).GetProfile(ctx, &backend.GetProfileRequest{ID: id})
	if err != nil {
		return nil, err
	}

	return ok(resp.Profile), nil
}

// createProfile creates the caller's profile together with its default
// library. The profile is kept when the library cannot be created.
func (h *handler) createProfile(ctx context.Context, w http.ResponseWriter, r *http.Request) (operationResponse, error) {
	var body profileBody
	if err := decodeBody(w, r, &body); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(body.Name)
	if name == "" {
		user := currentSession(ctx).User
		name = strings.TrimSpace(user.Name)
		if name == "" {
			name = strings.TrimSpace(user.GivenName)
		}
	}
	if name == "" {
		return nil, badRequest("name is required")
	}

	resp, err := h.deps.Services.Profile(ctx).CreateProfile(ctx, &backend.CreateProfileRequest{
		Name:        name,
		Bio:         body.Bio,
		Institution: body.Institution,
	})
	if err != nil {
		return nil, err
	}

	description := defaultLibraryDescription
	lib, err := h.deps.Services.Library(ctx).CreateLibrary(ctx, &backend.CreateLibraryRequest{
		OwnerID:     resp.ID,
		Name:        defaultLibraryName,
		Description: &description,
	})
	if err != nil {
		slogctx.Warn(ctx, "Failed to create the default library for a new profile", "profileID", resp.ID, "error", err)
	} else {
		slogctx.Info(ctx, "Created the default library for a new profile", "profileID", resp.ID, "libraryID", lib.LibraryID)
	}

	return ok(createdProfileResponse{
		Success:       true,
		ID:            resp.ID,
		Name:          name,
		Bio:           body.Bio,
		Institution:   body.Institution,
		SetupComplete: true,
	}), nil
}

func (h *handler) updateProfile(ctx context.Context, w http.ResponseWriter, r *http.Request) (operationResponse, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}

	var body profileBody
	if err := decodeBody(w, r, &body); err != nil {
		return nil, err
	}

	_, err = h.deps.Services.Profile(ctx).UpdateProfile(ctx, &backend.UpdateProfileRequest{
		ID:          id,
		Name:        strings.TrimSpace(body.Name),
		Bio:         body.Bio,
		Institution: body.Institution,
	})
	if err != nil {
		return nil, err
	}

	return ok(successResponse{Success: true, ID: id}), nil
}

// getSetupStatus tells the client whether the caller still has to create a
// profile. Failures other than a missing profile do not ask for setup, so the
// client is not sent into a redirect loop.
func (h *handler) getSetupStatus(ctx context.Context, _ http.ResponseWriter, _ *http.Request) (operationResponse, error) {
	resp, err := h.deps.Services.Profile(ctx).GetProfile(ctx, &backend.GetProfileRequest{})
	switch {
	case err == nil:
		return ok(setupStatusResponse{HasProfile: true, Profile: resp.Profile}), nil
	case errors.Is(err, serviceerr.ErrNotFound):
		return ok(setupStatusResponse{NeedsSetup: true}), nil
	case errors.Is(err, serviceerr.ErrUnauthorized):
		return nil, err
	default:
		return ok(setupStatusResponse{Error: serviceerr.From(err).Description}), nil
	}
}
