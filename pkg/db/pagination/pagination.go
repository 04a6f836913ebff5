package pagination

import (
	"encoding/base64"
	"encoding/json"
)

// Page is offset/limit pagination for bounded table scans. A Size of zero or
// less means "no bound" and is reserved for administrative callers.
type Page struct {
	Offset int
	Size   int
}

func (p Page) Bounded() bool { return p.Size > 0 }

// Next returns the page following p.
func (p Page) Next() Page {
	if !p.Bounded() {
		return p
	}
	return Page{Offset: p.Offset + p.Size, Size: p.Size}
}

// Pagination is the request half of token pagination.
type Pagination struct {
	PageSize  int    `json:"page_size"`
	PageToken string `json:"page_token"`
}

// Cursor is keyset pagination state for append-only log listings.
type Cursor struct {
	ID        string `json:"id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token"`
	HasMore       bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}

	return &cursor, nil
}
