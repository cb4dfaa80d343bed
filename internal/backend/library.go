package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"
)

const LibraryService = "library.v1.LibraryService"

const (
	MethodCreateLibrary        = "CreateLibrary"
	MethodUpdateLibrary        = "UpdateLibrary"
	MethodDeleteLibrary        = "DeleteLibrary"
	MethodGetUserLibrary       = "GetUserLibrary"
	MethodSaveArticleToLibrary = "SaveArticleToLibrary"
)

// ReadingStatus tracks how far the user got with a saved article. It is
// encoded as its enum name.
type ReadingStatus int32

const (
	ReadingStatusUnspecified ReadingStatus = iota
	ReadingStatusToRead
	ReadingStatusReading
	ReadingStatusCompleted
)

var readingStatusNames = map[ReadingStatus]string{
	ReadingStatusUnspecified: "READING_STATUS_UNSPECIFIED",
	ReadingStatusToRead:      "READING_STATUS_TO_READ",
	ReadingStatusReading:     "READING_STATUS_READING",
	ReadingStatusCompleted:   "READING_STATUS_COMPLETED",
}

func (s ReadingStatus) String() string {
	if name, ok := readingStatusNames[s]; ok {
		return name
	}

	return fmt.Sprintf("READING_STATUS(%d)", int32(s))
}

// ParseReadingStatus accepts the enum name with or without the
// READING_STATUS_ prefix, in any case.
func ParseReadingStatus(s string) (ReadingStatus, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if !strings.HasPrefix(name, "READING_STATUS_") {
		name = "READING_STATUS_" + name
	}

	for status, known := range readingStatusNames {
		if known == name {
			return status, nil
		}
	}

	return ReadingStatusUnspecified, fmt.Errorf("unknown reading status %q", s)
}

func (s ReadingStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ReadingStatus) UnmarshalText(text []byte) error {
	status, err := ParseReadingStatus(string(text))
	if err != nil {
		return err
	}

	*s = status

	return nil
}

type LibraryArticle struct {
	ID              int64         `json:"id"`
	ArticleID       int64         `json:"articleId"`
	ReadingStatus   ReadingStatus `json:"readingStatus"`
	DateAdded       *time.Time    `json:"dateAdded,omitempty"`
	Notes           *string       `json:"notes,omitempty"`
	ArticleTitle    string        `json:"articleTitle"`
	DOI             string        `json:"doi"`
	PublicationYear int32         `json:"publicationYear,omitempty"`
}

type Library struct {
	ID          int64            `json:"id"`
	OwnerID     int64            `json:"ownerId"`
	Name        string           `json:"name"`
	Description *string          `json:"description,omitempty"`
	IsPublic    bool             `json:"isPublic"`
	Articles    []LibraryArticle `json:"articles,omitempty"`
	CreatedAt   *time.Time       `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time       `json:"updatedAt,omitempty"`
}

type CreateLibraryRequest struct {
	OwnerID     int64   `json:"ownerId"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	IsPublic    bool    `json:"isPublic"`
}

type CreateLibraryResponse struct {
	LibraryID int64 `json:"libraryId"`
}

type UpdateLibraryRequest struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	IsPublic    *bool   `json:"isPublic,omitempty"`
}

type UpdateLibraryResponse struct {
	Library *Library `json:"library"`
}

type DeleteLibraryRequest struct {
	ID int64 `json:"id"`
}

type DeleteLibraryResponse struct {
	Success bool `json:"success"`
}

type GetUserLibraryRequest struct {
	UserID int64 `json:"userId"`
}

type GetUserLibraryResponse struct {
	DefaultLibrary   *Library  `json:"defaultLibrary,omitempty"`
	PrivateLibraries []Library `json:"privateLibraries,omitempty"`
}

type SaveArticleToLibraryRequest struct {
	LibraryID     int64         `json:"libraryId"`
	ArticleID     int64         `json:"articleId"`
	ReadingStatus ReadingStatus `json:"readingStatus"`
	Notes         *string       `json:"notes,omitempty"`
}

type SaveArticleToLibraryResponse struct {
	ID int64 `json:"id"`
}

// LibraryClient is the stub of the library service.
type LibraryClient struct {
	cc grpc.ClientConnInterface
}

func NewLibraryClient(cc grpc.ClientConnInterface) *LibraryClient {
	return &LibraryClient{cc: cc}
}

func (c *LibraryClient) CreateLibrary(ctx context.Context, req *CreateLibraryRequest) (*CreateLibraryResponse, error) {
	return invoke[CreateLibraryResponse](ctx, c.cc, LibraryService, MethodCreateLibrary, req)
}

func (c *LibraryClient) UpdateLibrary(ctx context.Context, req *UpdateLibraryRequest) (*UpdateLibraryResponse, error) {
	return invoke[UpdateLibraryResponse](ctx, c.cc, LibraryService, MethodUpdateLibrary, req)
}

func (c *LibraryClient) DeleteLibrary(ctx context.Context, req *DeleteLibraryRequest) (*DeleteLibraryResponse, error) {
	return invoke[DeleteLibraryResponse](ctx, c.cc, LibraryService, MethodDeleteLibrary, req)
}

func (c *LibraryClient) GetUserLibrary(ctx context.Context, req *GetUserLibraryRequest) (*GetUserLibraryResponse, error) {
	return invoke[GetUserLibraryResponse](ctx, c.cc, LibraryService, MethodGetUserLibrary, req)
}

func (c *LibraryClient) SaveArticleToLibrary(ctx context.Context, req *SaveArticleToLibraryRequest) (*SaveArticleToLibraryResponse, error) {
	return invoke[SaveArticleToLibraryResponse](ctx, c.cc, LibraryService, MethodSaveArticleToLibrary, req)
}
