package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/openkcm/journal-gateway/internal/backend"
	"github.com/openkcm/journal-gateway/internal/serviceerr"
)

type libraryBody struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	IsPublic    *bool   `json:"isPublic"`
}

type saveArticleBody struct {
	ArticleID     *int64  `json:"articleId"`
	ReadingStatus string  `json:"readingStatus"`
	Notes         *string `json:"notes"`
}

type libraryStats struct {
	Total     int `json:"total"`
	Articles  int `json:"articles"`
	Completed int `json:"completed"`
}

type librariesResponse struct {
	DefaultLibrary   *backend.Library  `json:"defaultLibrary"`
	PrivateLibraries []backend.Library `json:"privateLibraries"`
	Stats            libraryStats      `json:"stats"`
}

type createdLibraryResponse struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	IsPublic    bool    `json:"isPublic"`
	Success     bool    `json:"success"`
}

// myProfileID resolves the caller's profile. Libraries are owned by profiles,
// so a caller without one cannot own a library yet.
func (h *handler) myProfileID(ctx context.Context) (int64, error) {
	resp, err := h.deps.Services.Profile(ctx).GetProfile(ctx, &backend.GetProfileRequest{})
	switch {
	case errors.Is(err, serviceerr.ErrNotFound):
		return 0, errors.Join(badRequest("user profile not found, complete the profile setup first"), err)
	case err != nil:
		return 0, err
	case resp.Profile == nil || resp.Profile.ID == 0:
		return 0, badRequest("user profile not found, complete the profile setup first")
	}

	return resp.Profile.ID, nil
}

func (h *handler) myLibraries(ctx context.Context) (*backend.GetUserLibraryResponse, error) {
	profileID, err := h.myProfileID(ctx)
	if err != nil {
		return nil, err
	}

	return h.deps.Services.Library(ctx).GetUserLibrary(ctx, &backend.GetUserLibraryRequest{UserID: profileID})
}

func (h *handler) listLibraries(ctx context.Context, _ http.ResponseWriter, _ *http.Request) (operationResponse, error) {
	resp, err := h.myLibraries(ctx)
	if err != nil {
		return nil, err
	}

	out := librariesResponse{
		DefaultLibrary:   resp.DefaultLibrary,
		PrivateLibraries: resp.PrivateLibraries,
	}
	if out.PrivateLibraries == nil {
		out.PrivateLibraries = []backend.Library{}
	}

	all := out.PrivateLibraries
	if out.DefaultLibrary != nil {
		all = append([]backend.Library{*out.DefaultLibrary}, all...)
	}

	out.Stats.Total = len(all)
	for _, lib := range all {
		out.Stats.Articles += len(lib.Articles)
		for _, a := range lib.Articles {
			if a.ReadingStatus == backend.ReadingStatusCompleted {
				out.Stats.Completed++
			}
		}
	}

	return ok(out), nil
}

func (h *handler) getLibrary(ctx context.Context, _ http.ResponseWriter, r *http.Request) (operationResponse, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}

	resp, err := h.myLibraries(ctx)
	if err != nil {
		return nil, err
	}

	if resp.DefaultLibrary != nil && resp.DefaultLibrary.ID == id {
		return ok(resp.DefaultLibrary), nil
	}

	for _, lib := range resp.PrivateLibraries {
		if lib.ID == id {
			return ok(lib), nil
		}
	}

	return nil, serviceerr.ErrNotFound.WithDescription("library not found")
}

func (h *handler) createLibrary(ctx context.Context, w http.ResponseWriter, r *http.Request) (operationResponse, error) {
	var body libraryBody
	if err := decodeBody(w, r, &body); err != nil {
		return nil, err
	}

	body.Name = strings.TrimSpace(body.Name)
	if body.Name == "" {
		return nil, badRequest("library name is required")
	}

	profileID, err := h.myProfileID(ctx)
	if err != nil {
		return nil, err
	}

	isPublic := body.IsPublic != nil && *body.IsPublic

	resp, err := h.deps.Services.Library(ctx).CreateLibrary(ctx, &backend.CreateLibraryRequest{
		OwnerID:     profileID,
		Name:        body.Name,
		Description: body.Description,
		IsPublic:    isPublic,
	})
	if err != nil {
		return nil, err
	}

	return ok(createdLibraryResponse{
		ID:          resp.LibraryID,
		Name:        body.Name,
		Description: body.Description,
		IsPublic:    isPublic,
		Success:     true,
	}), nil
}

func (h *handler) updateLibrary(ctx context.Context, w http.ResponseWriter, r *http.Request) (operationResponse, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}

	var body libraryBody
	if err := decodeBody(w, r, &body); err != nil {
		return nil, err
	}

	_, err = h.deps.Services.Library(ctx).UpdateLibrary(ctx, &backend.UpdateLibraryRequest{
		ID:          id,
		Name:        strings.TrimSpace(body.Name),
		Description: body.Description,
		IsPublic:    body.IsPublic,
	})
	if err != nil {
		return nil, err
	}

	return ok(successResponse{Success: true, ID: id}), nil
}

func (h *handler) deleteLibrary(ctx context.Context, _ http.ResponseWriter, r *http.Request) (operationResponse, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}

	resp, err := h.deps.Services.Library(ctx).DeleteLibrary(ctx, &backend.DeleteLibraryRequest{ID: id})
	if err != nil {
		return nil, err
	}

	return ok(successResponse{Success: resp.Success, ID: id}), nil
}

func (h *handler) saveArticleToLibrary(ctx context.Context, w http.ResponseWriter, r *http.Request) (operationResponse, error) {
	libraryID, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}

	var body saveArticleBody
	if err := decodeBody(w, r, &body); err != nil {
		return nil, err
	}

	if body.ArticleID == nil {
		return nil, badRequest("article ID is required")
	}

	status := backend.ReadingStatusToRead
	if body.ReadingStatus != "" {
		status, err = backend.ParseReadingStatus(body.ReadingStatus)
		if err != nil {
			return nil, errors.Join(badRequest("unknown reading status "+body.ReadingStatus), err)
		}
	}

	resp, err := h.deps.Services.Library(ctx).SaveArticleToLibrary(ctx, &backend.SaveArticleToLibraryRequest{
		LibraryID:     libraryID,
		ArticleID:     *body.ArticleID,
		ReadingStatus: status,
		Notes:         body.Notes,
	})
	if err != nil {
		return nil, err
	}

	return ok(successResponse{Success: true, ID: resp.ID}), nil
}
