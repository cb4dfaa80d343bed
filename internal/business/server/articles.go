package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/openkcm/journal-gateway/internal/backend"
)

type articleBody struct {
	DOI             string   `json:"doi"`
	Title           string   `json:"title"`
	Authors         []string `json:"authors"`
	Abstract        *string  `json:"abstract"`
	PublicationYear *int32   `json:"publicationYear"`
	JournalName     *string  `json:"journalName"`
}

func (h *handler) listArticles(ctx context.Context, _ http.ResponseWriter, _ *http.Request) (operationResponse, error) {
	resp, err := h.deps.Services.Articles(ctx).ListArticles(ctx, &backend.ListArticlesRequest{})
	if err != nil {
		return nil, err
	}

	if resp.Articles == nil {
		resp.Articles = []backend.Article{}
	}

	return ok(resp), nil
}

func (h *handler) getArticle(ctx context.Context, _ http.ResponseWriter, r *http.Request) (operationResponse, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}

	resp, err := h.deps.Services.Articles(ctx).GetArticle(ctx, &backend.GetArticleRequest{ID: id})
	if err != nil {
		return nil, err
	}

	return ok(resp.Article), nil
}

func (h *handler) getArticleByDOI(ctx context.Context, _ http.ResponseWriter, r *http.Request) (operationResponse, error) {
	doi := strings.TrimSpace(mux.Vars(r)["doi"])
	if doi == "" {
		return nil, badRequest("doi is required")
	}

	resp, err := h.deps.Services.Articles(ctx).GetArticleByDOI(ctx, &backend.GetArticleByDOIRequest{DOI: doi})
	if err != nil {
		return nil, err
	}

	return ok(resp.Article), nil
}

func (h *handler) createArticle(ctx context.Context, w http.ResponseWriter, r *http.Request) (operationResponse, error) {
	var body articleBody
	if err := decodeBody(w, r, &body); err != nil {
		return nil, err
	}

	if body.DOI == "" || body.Title == "" {
		return nil, badRequest("DOI and title are required")
	}

	authors := make([]backend.Author, 0, len(body.Authors))
	for _, name := range body.Authors {
		if name = strings.TrimSpace(name); name != "" {
			authors = append(authors, backend.Author{Name: name})
		}
	}

	resp, err := h.deps.Services.Articles(ctx).CreateArticle(ctx, &backend.CreateArticleRequest{
		DOI:             body.DOI,
		Title:           body.Title,
		Authors:         authors,
		Abstract:        body.Abstract,
		PublicationYear: body.PublicationYear,
		JournalName:     body.JournalName,
	})
	if err != nil {
		return nil, err
	}

	return ok(successResponse{Success: true, ID: resp.ID}), nil
}

func (h *handler) updateArticle(ctx context.Context, w http.ResponseWriter, r *http.Request) (operationResponse, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}

	var body articleBody
	if err := decodeBody(w, r, &body); err != nil {
		return nil, err
	}

	_, err = h.deps.Services.Articles(ctx).UpdateArticle(ctx, &backend.UpdateArticleRequest{
		ID:              id,
		DOI:             body.DOI,
		Title:           body.Title,
		Abstract:        body.Abstract,
		PublicationYear: body.PublicationYear,
		JournalName:     body.JournalName,
	})
	if err != nil {
		return nil, err
	}

	return ok(successResponse{Success: true, ID: id}), nil
}

func (h *handler) deleteArticle(ctx context.Context, _ http.ResponseWriter, r *http.Request) (operationResponse, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}

	resp, err := h.deps.Services.Articles(ctx).DeleteArticle(ctx, &backend.DeleteArticleRequest{ID: id})
	if err != nil {
		return nil, err
	}

	return ok(successResponse{Success: resp.Success, ID: id}), nil
}

func (h *handler) listAuthors(ctx context.Context, _ http.ResponseWriter, _ *http.Request) (operationResponse, error) {
	resp, err := h.deps.Services.Author(ctx).ListAuthors(ctx, &backend.ListAuthorsRequest{})
	if err != nil {
		return nil, err
	}

	if resp.Authors == nil {
		resp.Authors = []backend.Author{}
	}

	return ok(resp), nil
}

func (h *handler) getAuthor(ctx context.Context, _ http.ResponseWriter, r *http.Request) (operationResponse, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}

	resp, err := h.deps.Services.Author(ctx).GetAuthor(ctx, &backend.GetAuthorRequest{ID: id})
	if err != nil {
		return nil, err
	}

	return ok(resp.Author), nil
}
