// Package backendtest provides an in-memory implementation of the backend
// gRPC services. Not found failures are plain errors, as the real services
// report them; only an unknown bearer token yields a typed status.
package backendtest

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/openkcm/journal-gateway/internal/backend"
	"github.com/openkcm/journal-gateway/internal/rpc"
	"github.com/openkcm/journal-gateway/internal/rpc/rpctest"
)

// Call is one RPC as seen by the backend.
type Call struct {
	Method        string
	Authorization string
}

type Backend struct {
	mu sync.Mutex

	nextID       int64
	articles     map[int64]backend.Article
	libraries    map[int64]backend.Library
	profiles     map[int64]backend.Profile
	profileOwner map[string]int64
	authors      map[int64]backend.Author

	validTokens map[string]string
	failures    map[string]error
	calls       []Call
}

func New() *Backend {
	return &Backend{
		articles:     map[int64]backend.Article{},
		libraries:    map[int64]backend.Library{},
		profiles:     map[int64]backend.Profile{},
		profileOwner: map[string]int64{},
		authors:      map[int64]backend.Author{},
		failures:     map[string]error{},
	}
}

// Start serves b in memory and returns a factory connected to it.
func Start(t *testing.T, b *Backend) *rpc.Factory {
	t.Helper()

	return rpctest.Start(t, b.Register)
}

// Register adds the four backend services to srv.
func (b *Backend) Register(srv *grpc.Server) {
	srv.RegisterService(b.articlesDesc(), nil)
	srv.RegisterService(b.libraryDesc(), nil)
	srv.RegisterService(b.profileDesc(), nil)
	srv.RegisterService(b.authorDesc(), nil)
}

// AcceptToken makes the backend accept token for subject. Once any token is
// registered, calls with other tokens fail with Unauthenticated.
func (b *Backend) AcceptToken(token, subject string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.validTokens == nil {
		b.validTokens = map[string]string{}
	}
	b.validTokens[token] = subject
}

// Fail makes every call of method ("Service/Method") return err.
func (b *Backend) Fail(method string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures[method] = err
}

func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()

	return slices.Clone(b.calls)
}

func (b *Backend) AddArticle(a backend.Article) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	a.ID = b.id()
	b.articles[a.ID] = a

	return a.ID
}

// AddProfile stores p as the profile of subject.
func (b *Backend) AddProfile(subject string, p backend.Profile) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	p.ID = b.id()
	b.profiles[p.ID] = p
	b.profileOwner[subject] = p.ID

	return p.ID
}

func (b *Backend) AddAuthor(a backend.Author) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	a.ID = b.id()
	b.authors[a.ID] = a

	return a.ID
}

// LibrariesOf returns the libraries owned by the given profile.
func (b *Backend) LibrariesOf(ownerID int64) []backend.Library {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.librariesOf(ownerID)
}

func (b *Backend) librariesOf(ownerID int64) []backend.Library {
	var libs []backend.Library
	for _, lib := range b.libraries {
		if lib.OwnerID == ownerID {
			libs = append(libs, lib)
		}
	}

	slices.SortFunc(libs, func(a, b backend.Library) int { return int(a.ID - b.ID) })

	return libs
}

func (b *Backend) id() int64 {
	b.nextID++
	return b.nextID
}

// record logs the call and resolves the caller's subject. The caller is
// empty for anonymous calls.
func (b *Backend) record(ctx context.Context, method string) (string, error) {
	var auth string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get("authorization"); len(values) > 0 {
			auth = values[0]
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls = append(b.calls, Call{Method: method, Authorization: auth})

	if err, ok := b.failures[method]; ok {
		return "", err
	}

	token := strings.TrimPrefix(auth, "Bearer ")
	if token == "" {
		return "", nil
	}

	if b.validTokens == nil {
		return token, nil
	}

	subject, ok := b.validTokens[token]
	if !ok {
		return "", status.Error(codes.Unauthenticated, "token is not active")
	}

	return subject, nil
}

func unary[Req, Resp any](b *Backend, service, name string, fn func(caller string, req *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(_ any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}

			caller, err := b.record(ctx, service+"/"+name)
			if err != nil {
				return nil, err
			}

			b.mu.Lock()
			defer b.mu.Unlock()

			return fn(caller, in)
		},
	}
}

func requireCaller(caller string) error {
	if caller == "" {
		return status.Error(codes.Unauthenticated, "missing bearer token")
	}

	return nil
}

func now() *time.Time {
	t := time.Now().UTC()
	return &t
}

func (b *Backend) articlesDesc() *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: backend.ArticlesService,
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			unary(b, backend.ArticlesService, backend.MethodGetArticle, func(_ string, req *backend.GetArticleRequest) (*backend.GetArticleResponse, error) {
				a, ok := b.articles[req.ID]
				if !ok {
					return nil, fmt.Errorf("article not found with ID: %d", req.ID)
				}

				return &backend.GetArticleResponse{Article: &a}, nil
			}),
			unary(b, backend.ArticlesService, backend.MethodGetArticleByDOI, func(_ string, req *backend.GetArticleByDOIRequest) (*backend.GetArticleByDOIResponse, error) {
				for _, a := range b.articles {
					if strings.EqualFold(a.DOI, req.DOI) {
						return &backend.GetArticleByDOIResponse{Article: &a}, nil
					}
				}

				return nil, fmt.Errorf("article not found with DOI: %s", req.DOI)
			}),
			unary(b, backend.ArticlesService, backend.MethodListArticles, func(_ string, _ *backend.ListArticlesRequest) (*backend.ListArticlesResponse, error) {
				articles := make([]backend.Article, 0, len(b.articles))
				for _, a := range b.articles {
					articles = append(articles, a)
				}
				slices.SortFunc(articles, func(x, y backend.Article) int { return int(x.ID - y.ID) })

				return &backend.ListArticlesResponse{Articles: articles}, nil
			}),
			unary(b, backend.ArticlesService, backend.MethodCreateArticle, func(caller string, req *backend.CreateArticleRequest) (*backend.CreateArticleResponse, error) {
				if err := requireCaller(caller); err != nil {
					return nil, err
				}

				a := backend.Article{
					ID:              b.id(),
					DOI:             req.DOI,
					Title:           req.Title,
					Authors:         req.Authors,
					Abstract:        req.Abstract,
					PublicationYear: req.PublicationYear,
					JournalName:     req.JournalName,
					CreatedAt:       now(),
				}
				b.articles[a.ID] = a

				return &backend.CreateArticleResponse{ID: a.ID}, nil
			}),
			unary(b, backend.ArticlesService, backend.MethodUpdateArticle, func(caller string, req *backend.UpdateArticleRequest) (*backend.UpdateArticleResponse, error) {
				if err := requireCaller(caller); err != nil {
					return nil, err
				}

				a, ok := b.articles[req.ID]
				if !ok {
					return nil, fmt.Errorf("article not found with ID: %d", req.ID)
				}

				if req.DOI != "" {
					a.DOI = req.DOI
				}
				if req.Title != "" {
					a.Title = req.Title
				}
				if req.Abstract != nil {
					a.Abstract = req.Abstract
				}
				if req.PublicationYear != nil {
					a.PublicationYear = req.PublicationYear
				}
				if req.JournalName != nil {
					a.JournalName = req.JournalName
				}
				a.UpdatedAt = now()
				b.articles[a.ID] = a

				return &backend.UpdateArticleResponse{Article: &a}, nil
			}),
			unary(b, backend.ArticlesService, backend.MethodDeleteArticle, func(caller string, req *backend.DeleteArticleRequest) (*backend.DeleteArticleResponse, error) {
				if err := requireCaller(caller); err != nil {
					return nil, err
				}

				if _, ok := b.articles[req.ID]; !ok {
					return nil, fmt.Errorf("article not found with ID: %d", req.ID)
				}
				delete(b.articles, req.ID)

				return &backend.DeleteArticleResponse{Success: true}, nil
			}),
		},
	}
}

func (b *Backend) libraryDesc() *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: backend.LibraryService,
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			unary(b, backend.LibraryService, backend.MethodCreateLibrary, func(caller string, req *backend.CreateLibraryRequest) (*backend.CreateLibraryResponse, error) {
				if err := requireCaller(caller); err != nil {
					return nil, err
				}

				if _, ok := b.profiles[req.OwnerID]; !ok {
					return nil, fmt.Errorf("profile not found with ID: %d", req.OwnerID)
				}

				lib := backend.Library{
					ID:          b.id(),
					OwnerID:     req.OwnerID,
					Name:        req.Name,
					Description: req.Description,
					IsPublic:    req.IsPublic,
					CreatedAt:   now(),
				}
				b.libraries[lib.ID] = lib

				return &backend.CreateLibraryResponse{LibraryID: lib.ID}, nil
			}),
			unary(b, backend.LibraryService, backend.MethodUpdateLibrary, func(caller string, req *backend.UpdateLibraryRequest) (*backend.UpdateLibraryResponse, error) {
				if err := requireCaller(caller); err != nil {
					return nil, err
				}

				lib, ok := b.libraries[req.ID]
				if !ok {
					return nil, fmt.Errorf("library not found with ID: %d", req.ID)
				}

				if req.Name != "" {
					lib.Name = req.Name
				}
				if req.Description != nil {
					lib.Description = req.Description
				}
				if req.IsPublic != nil {
					lib.IsPublic = *req.IsPublic
				}
				lib.UpdatedAt = now()
				b.libraries[lib.ID] = lib

				return &backend.UpdateLibraryResponse{Library: &lib}, nil
			}),
			unary(b, backend.LibraryService, backend.MethodDeleteLibrary, func(caller string, req *backend.DeleteLibraryRequest) (*backend.DeleteLibraryResponse, error) {
				if err := requireCaller(caller); err != nil {
					return nil, err
				}

				if _, ok := b.libraries[req.ID]; !ok {
					return nil, fmt.Errorf("library not found with ID: %d", req.ID)
				}
				delete(b.libraries, req.ID)

				return &backend.DeleteLibraryResponse{Success: true}, nil
			}),
			unary(b, backend.LibraryService, backend.MethodGetUserLibrary, func(caller string, req *backend.GetUserLibraryRequest) (*backend.GetUserLibraryResponse, error) {
				if err := requireCaller(caller); err != nil {
					return nil, err
				}

				libs := b.librariesOf(req.UserID)
				if len(libs) == 0 {
					return nil, fmt.Errorf("library not found for user: %d", req.UserID)
				}

				return &backend.GetUserLibraryResponse{DefaultLibrary: &libs[0], PrivateLibraries: libs[1:]}, nil
			}),
			unary(b, backend.LibraryService, backend.MethodSaveArticleToLibrary, func(caller string, req *backend.SaveArticleToLibraryRequest) (*backend.SaveArticleToLibraryResponse, error) {
				if err := requireCaller(caller); err != nil {
					return nil, err
				}

				lib, ok := b.libraries[req.LibraryID]
				if !ok {
					return nil, fmt.Errorf("library not found with ID: %d", req.LibraryID)
				}

				article, ok := b.articles[req.ArticleID]
				if !ok {
					return nil, fmt.Errorf("article not found with ID: %d", req.ArticleID)
				}

				entry := backend.LibraryArticle{
					ID:            b.id(),
					ArticleID:     article.ID,
					ReadingStatus: req.ReadingStatus,
					DateAdded:     now(),
					Notes:         req.Notes,
					ArticleTitle:  article.Title,
					DOI:           article.DOI,
				}
				if article.PublicationYear != nil {
					entry.PublicationYear = *article.PublicationYear
				}

				lib.Articles = append(slices.Clone(lib.Articles), entry)
				b.libraries[lib.ID] = lib

				return &backend.SaveArticleToLibraryResponse{ID: entry.ID}, nil
			}),
		},
	}
}

func (b *Backend) profileDesc() *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: backend.ProfileService,
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			unary(b, backend.ProfileService, backend.MethodGetProfile, func(caller string, req *backend.GetProfileRequest) (*backend.GetProfileResponse, error) {
				id := req.ID
				if id == 0 {
					if err := requireCaller(caller); err != nil {
						return nil, err
					}

					owned, ok := b.profileOwner[caller]
					if !ok {
						return nil, fmt.Errorf("profile not found for user: %s", caller)
					}
					id = owned
				}

				p, ok := b.profiles[id]
				if !ok {
					return nil, fmt.Errorf("profile not found with ID: %d", id)
				}

				return &backend.GetProfileResponse{Profile: &p}, nil
			}),
			unary(b, backend.ProfileService, backend.MethodListProfiles, func(_ string, _ *backend.ListProfilesRequest) (*backend.ListProfilesResponse, error) {
				profiles := make([]backend.Profile, 0, len(b.profiles))
				for _, p := range b.profiles {
					profiles = append(profiles, p)
				}
				slices.SortFunc(profiles, func(x, y backend.Profile) int { return int(x.ID - y.ID) })

				return &backend.ListProfilesResponse{Profiles: profiles}, nil
			}),
			unary(b, backend.ProfileService, backend.MethodCreateProfile, func(caller string, req *backend.CreateProfileRequest) (*backend.CreateProfileResponse, error) {
				if err := requireCaller(caller); err != nil {
					return nil, err
				}

				if req.Name == "" {
					return nil, status.Error(codes.InvalidArgument, "profile name is required")
				}

				p := backend.Profile{
					ID:          b.id(),
					Name:        req.Name,
					Bio:         req.Bio,
					Institution: req.Institution,
					CreatedAt:   now(),
				}
				b.profiles[p.ID] = p
				b.profileOwner[caller] = p.ID

				return &backend.CreateProfileResponse{ID: p.ID}, nil
			}),
			unary(b, backend.ProfileService, backend.MethodUpdateProfile, func(caller string, req *backend.UpdateProfileRequest) (*backend.UpdateProfileResponse, error) {
				if err := requireCaller(caller); err != nil {
					return nil, err
				}

				p, ok := b.profiles[req.ID]
				if !ok {
					return nil, fmt.Errorf("profile not found with ID: %d", req.ID)
				}

				if req.Name != "" {
					p.Name = req.Name
				}
				if req.Bio != nil {
					p.Bio = req.Bio
				}
				if req.Institution != nil {
					p.Institution = req.Institution
				}
				p.UpdatedAt = now()
				b.profiles[p.ID] = p

				return &backend.UpdateProfileResponse{Profile: &p}, nil
			}),
			unary(b, backend.ProfileService, backend.MethodDeleteProfile, func(caller string, req *backend.DeleteProfileRequest) (*backend.DeleteProfileResponse, error) {
				if err := requireCaller(caller); err != nil {
					return nil, err
				}

				if _, ok := b.profiles[req.ID]; !ok {
					return nil, fmt.Errorf("profile not found with ID: %d", req.ID)
				}
				delete(b.profiles, req.ID)

				return &backend.DeleteProfileResponse{Success: true}, nil
			}),
		},
	}
}

func (b *Backend) authorDesc() *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: backend.AuthorService,
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			unary(b, backend.AuthorService, backend.MethodGetAuthor, func(_ string, req *backend.GetAuthorRequest) (*backend.GetAuthorResponse, error) {
				a, ok := b.authors[req.ID]
				if !ok {
					return nil, fmt.Errorf("author not found with ID: %d", req.ID)
				}

				return &backend.GetAuthorResponse{Author: &a}, nil
			}),
			unary(b, backend.AuthorService, backend.MethodGetAuthorByProfileID, func(_ string, req *backend.GetAuthorByProfileIDRequest) (*backend.GetAuthorByProfileIDResponse, error) {
				for _, a := range b.authors {
					if a.ProfileID != nil && *a.ProfileID == req.ProfileID {
						return &backend.GetAuthorByProfileIDResponse{Author: &a}, nil
					}
				}

				return nil, fmt.Errorf("author not found for profile: %d", req.ProfileID)
			}),
			unary(b, backend.AuthorService, backend.MethodListAuthors, func(_ string, _ *backend.ListAuthorsRequest) (*backend.ListAuthorsResponse, error) {
				authors := make([]backend.Author, 0, len(b.authors))
				for _, a := range b.authors {
					authors = append(authors, a)
				}
				slices.SortFunc(authors, func(x, y backend.Author) int { return int(x.ID - y.ID) })

				return &backend.ListAuthorsResponse{Authors: authors}, nil
			}),
			unary(b, backend.AuthorService, backend.MethodCreateAuthor, func(caller string, req *backend.CreateAuthorRequest) (*backend.CreateAuthorResponse, error) {
				if err := requireCaller(caller); err != nil {
					return nil, err
				}

				a := backend.Author{ID: b.id(), Name: req.Name, ProfileID: req.ProfileID}
				b.authors[a.ID] = a

				return &backend.CreateAuthorResponse{ID: a.ID}, nil
			}),
			unary(b, backend.AuthorService, backend.MethodUpdateAuthor, func(caller string, req *backend.UpdateAuthorRequest) (*backend.UpdateAuthorResponse, error) {
				if err := requireCaller(caller); err != nil {
					return nil, err
				}

				a, ok := b.authors[req.ID]
				if !ok {
					return nil, fmt.Errorf("author not found with ID: %d", req.ID)
				}

				if req.Name != "" {
					a.Name = req.Name
				}
				if req.ProfileID != nil {
					a.ProfileID = req.ProfileID
				}
				b.authors[a.ID] = a

				return &backend.UpdateAuthorResponse{Author: &a}, nil
			}),
			unary(b, backend.AuthorService, backend.MethodDeleteAuthor, func(caller string, req *backend.DeleteAuthorRequest) (*backend.DeleteAuthorResponse, error) {
				if err := requireCaller(caller); err != nil {
					return nil, err
				}

				if _, ok := b.authors[req.ID]; !ok {
					return nil, fmt.Errorf("author not found with ID: %d", req.ID)
				}
				delete(b.authors, req.ID)

				return &backend.DeleteAuthorResponse{Success: true}, nil
			}),
		},
	}
}
