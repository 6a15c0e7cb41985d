package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrInvalidPageToken = errors.New("invalid page token")

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size,default=50" validate:"gte=1,lte=200"`
}

// Cursor is the decoded form of a page token. ID is the last row of the
// previous page; listings resume strictly after it.
type Cursor struct {
	ID string `json:"id,omitempty"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token"`
	HasMore       bool   `json:"has_more"`
}

func EncodeCursor(c Cursor) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func DecodeCursor(token string) (*Cursor, error) {
	b, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}

	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	return &c, nil
}

// BuildPageInfo trims an over-fetched result set (limit+1 rows) and
// derives the next page token from the last visible row.
func BuildPageInfo[T any](items []T, limit int, cursorOf func(T) string) ([]T, *PageInfo) {
	if len(items) == 0 {
		return items, &PageInfo{}
	}

	hasMore := false
	if len(items) > limit {
		hasMore = true
		items = items[:limit]
	}

	info := &PageInfo{HasMore: hasMore}
	if hasMore {
		token, err := EncodeCursor(Cursor{ID: cursorOf(items[len(items)-1])})
		if err == nil {
			info.NextPageToken = token
		}
	}
	return items, info
}
