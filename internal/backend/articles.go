package backend

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

const ArticlesService = "articles.v1.ArticlesService"

const (
	MethodGetArticle      = "GetArticle"
	MethodGetArticleByDOI = "GetArticleByDOI"
	MethodListArticles    = "ListArticles"
	MethodCreateArticle   = "CreateArticle"
	MethodUpdateArticle   = "UpdateArticle"
	MethodDeleteArticle   = "DeleteArticle"
)

type Author struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	ProfileID *int64 `json:"profileId,omitempty"`
}

type Article struct {
	ID              int64      `json:"id"`
	DOI             string     `json:"doi"`
	Title           string     `json:"title"`
	Authors         []Author   `json:"authors,omitempty"`
	Abstract        *string    `json:"abstract,omitempty"`
	PublicationYear *int32     `json:"publicationYear,omitempty"`
	JournalName     *string    `json:"journalName,omitempty"`
	CreatedAt       *time.Time `json:"createdAt,omitempty"`
	UpdatedAt       *time.Time `json:"updatedAt,omitempty"`
}

type GetArticleRequest struct {
	ID int64 `json:"id"`
}

type GetArticleResponse struct {
	Article *Article `json:"article"`
}

type GetArticleByDOIRequest struct {
	DOI string `json:"doi"`
}

type GetArticleByDOIResponse struct {
	Article *Article `json:"article"`
}

type ListArticlesRequest struct{}

type ListArticlesResponse struct {
	Articles []Article `json:"articles"`
}

type CreateArticleRequest struct {
	DOI             string   `json:"doi"`
	Title           string   `json:"title"`
	Authors         []Author `json:"authors,omitempty"`
	Abstract        *string  `json:"abstract,omitempty"`
	PublicationYear *int32   `json:"publicationYear,omitempty"`
	JournalName     *string  `json:"journalName,omitempty"`
}

type CreateArticleResponse struct {
	ID int64 `json:"id"`
}

type UpdateArticleRequest struct {
	ID              int64   `json:"id"`
	DOI             string  `json:"doi,omitempty"`
	Title           string  `json:"title,omitempty"`
	Abstract        *string `json:"abstract,omitempty"`
	PublicationYear *int32  `json:"publicationYear,omitempty"`
	JournalName     *string `json:"journalName,omitempty"`
}

type UpdateArticleResponse struct {
	Article *Article `json:"article"`
}

type DeleteArticleRequest struct {
	ID int64 `json:"id"`
}

type DeleteArticleResponse struct {
	Success bool `json:"success"`
}

// ArticlesClient is the stub of the articles service.
type ArticlesClient struct {
	cc grpc.ClientConnInterface
}

func NewArticlesClient(cc grpc.ClientConnInterface) *ArticlesClient {
	return &ArticlesClient{cc: cc}
}

func (c *ArticlesClient) GetArticle(ctx context.Context, req *GetArticleRequest) (*GetArticleResponse, error) {
	return invoke[GetArticleResponse](ctx, c.cc, ArticlesService, MethodGetArticle, req)
}

func (c *ArticlesClient) GetArticleByDOI(ctx context.Context, req *GetArticleByDOIRequest) (*GetArticleByDOIResponse, error) {
	return invoke[GetArticleByDOIResponse](ctx, c.cc, ArticlesService, MethodGetArticleByDOI, req)
}

func (c *ArticlesClient) ListArticles(ctx context.Context, req *ListArticlesRequest) (*ListArticlesResponse, error) {
	return invoke[ListArticlesResponse](ctx, c.cc, ArticlesService, MethodListArticles, req)
}

func (c *ArticlesClient) CreateArticle(ctx context.Context, req *CreateArticleRequest) (*CreateArticleResponse, error) {
	return invoke[CreateArticleResponse](ctx, c.cc, ArticlesService, MethodCreateArticle, req)
}

func (c *ArticlesClient) UpdateArticle(ctx context.Context, req *UpdateArticleRequest) (*UpdateArticleResponse, error) {
	return invoke[UpdateArticleResponse](ctx, c.cc, ArticlesService, MethodUpdateArticle, req)
}

func (c *ArticlesClient) DeleteArticle(ctx context.Context, req *DeleteArticleRequest) (*DeleteArticleResponse, error) {
	return invoke[DeleteArticleResponse](ctx, c.cc, ArticlesService, MethodDeleteArticle, req)
}
