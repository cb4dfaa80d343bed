package backend

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

const (
	ProfileService = "profile.v1.ProfileService"
	AuthorService  = "profile.v1.AuthorService"
)

const (
	MethodGetProfile    = "GetProfile"
	MethodListProfiles  = "ListProfiles"
	MethodCreateProfile = "CreateProfile"
	MethodUpdateProfile = "UpdateProfile"
	MethodDeleteProfile = "DeleteProfile"

	MethodGetAuthor            = "GetAuthor"
	MethodGetAuthorByProfileID = "GetAuthorByProfileID"
	MethodListAuthors          = "ListAuthors"
	MethodCreateAuthor         = "CreateAuthor"
	MethodUpdateAuthor         = "UpdateAuthor"
	MethodDeleteAuthor         = "DeleteAuthor"
)

type Profile struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Bio         *string    `json:"bio,omitempty"`
	Institution *string    `json:"institution,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

// GetProfileRequest with a zero ID asks for the caller's own profile.
type GetProfileRequest struct {
	ID int64 `json:"id,omitempty"`
}

type GetProfileResponse struct {
	Profile *Profile `json:"profile"`
}

type ListProfilesRequest struct{}

type ListProfilesResponse struct {
	Profiles []Profile `json:"profiles"`
}

type CreateProfileRequest struct {
	Name        string  `json:"name"`
	Bio         *string `json:"bio,omitempty"`
	Institution *string `json:"institution,omitempty"`
}

type CreateProfileResponse struct {
	ID int64 `json:"id"`
}

type UpdateProfileRequest struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name,omitempty"`
	Bio         *string `json:"bio,omitempty"`
	Institution *string `json:"institution,omitempty"`
}

type UpdateProfileResponse struct {
	Profile *Profile `json:"profile"`
}

type DeleteProfileRequest struct {
	ID int64 `json:"id"`
}

type DeleteProfileResponse struct {
	Success bool `json:"success"`
}

type GetAuthorRequest struct {
	ID int64 `json:"id"`
}

type GetAuthorResponse struct {
	Author *Author `json:"author"`
}

type GetAuthorByProfileIDRequest struct {
	ProfileID int64 `json:"profileId"`
}

type GetAuthorByProfileIDResponse struct {
	Author *Author `json:"author"`
}

type ListAuthorsRequest struct{}

type ListAuthorsResponse struct {
	Authors []Author `json:"authors"`
}

type CreateAuthorRequest struct {
	Name      string `json:"name"`
	ProfileID *int64 `json:"profileId,omitempty"`
}

type CreateAuthorResponse struct {
	ID int64 `json:"id"`
}

type UpdateAuthorRequest struct {
	ID        int64  `json:"id"`
	Name      string `json:"name,omitempty"`
	ProfileID *int64 `json:"profileId,omitempty"`
}

type UpdateAuthorResponse struct {
	Author *Author `json:"author"`
}

type DeleteAuthorRequest struct {
	ID int64 `json:"id"`
}

type DeleteAuthorResponse struct {
	Success bool `json:"success"`
}

// ProfileClient is the stub of the profile service.
type ProfileClient struct {
	cc grpc.ClientConnInterface
}

func NewProfileClient(cc grpc.ClientConnInterface) *ProfileClient {
	return &ProfileClient{cc: cc}
}

func (c *ProfileClient) GetProfile(ctx context.Context, req *GetProfileRequest) (*GetProfileResponse, error) {
	return invoke[GetProfileResponse](ctx, c.cc, ProfileService, MethodGetProfile, req)
}

func (c *ProfileClient) ListProfiles(ctx context.Context, req *ListProfilesRequest) (*ListProfilesResponse, error) {
	return invoke[ListProfilesResponse](ctx, c.cc, ProfileService, MethodListProfiles, req)
}

func (c *ProfileClient) CreateProfile(ctx context.Context, req *CreateProfileRequest) (*CreateProfileResponse, error) {
	return invoke[CreateProfileResponse](ctx, c.cc, ProfileService, MethodCreateProfile, req)
}

func (c *ProfileClient) UpdateProfile(ctx context.Context, req *UpdateProfileRequest) (*UpdateProfileResponse, error) {
	return invoke[UpdateProfileResponse](ctx, c.cc, ProfileService, MethodUpdateProfile, req)
}

func (c *ProfileClient) DeleteProfile(ctx context.Context, req *DeleteProfileRequest) (*DeleteProfileResponse, error) {
	return invoke[DeleteProfileResponse](ctx, c.cc, ProfileService, MethodDeleteProfile, req)
}

// AuthorClient is the stub of the author service.
type AuthorClient struct {
	cc grpc.ClientConnInterface
}

func NewAuthorClient(cc grpc.ClientConnInterface) *AuthorClient {
	return &AuthorClient{cc: cc}
}

func (c *AuthorClient) GetAuthor(ctx context.Context, req *GetAuthorRequest) (*GetAuthorResponse, error) {
	return invoke[GetAuthorResponse](ctx, c.cc, AuthorService, MethodGetAuthor, req)
}

func (c *AuthorClient) GetAuthorByProfileID(ctx context.Context, req *GetAuthorByProfileIDRequest) (*GetAuthorByProfileIDResponse, error) {
	return invoke[GetAuthorByProfileIDResponse](ctx, c.cc, AuthorService, MethodGetAuthorByProfileID, req)
}

func (c *AuthorClient) ListAuthors(ctx context.Context, req *ListAuthorsRequest) (*ListAuthorsResponse, error) {
	return invoke[ListAuthorsResponse](ctx, c.cc, AuthorService, MethodListAuthors, req)
}

func (c *AuthorClient) CreateAuthor(ctx context.Context, req *CreateAuthorRequest) (*CreateAuthorResponse, error) {
	return invoke[CreateAuthorResponse](ctx, c.cc, AuthorService, MethodCreateAuthor, req)
}

func (c *AuthorClient) UpdateAuthor(ctx context.Context, req *UpdateAuthorRequest) (*UpdateAuthorResponse, error) {
	return invoke[UpdateAuthorResponse](ctx, c.cc, AuthorService, MethodUpdateAuthor, req)
}

func (c *AuthorClient) DeleteAuthor(ctx context.Context, req *DeleteAuthorRequest) (*DeleteAuthorResponse, error) {
	return invoke[DeleteAuthorResponse](ctx, c.cc, AuthorService, MethodDeleteAuthor, req)
}
