package export

import (
	"context"
	"fmt"

	"commons/api/internal/store"
)

// DataStore is the slice of storage the exporter needs.
type DataStore interface {
	GetContent(ctx context.Context, id string) (store.ContentItem, error)
	GetVersion(ctx context.Context, contentID string, versionNumber int) (store.VersionSnapshot, error)
	ListVersions(ctx context.Context, contentID string) ([]store.VersionSnapshot, error)
}

type Service struct {
	store DataStore
}

func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export renders a content item, or one of its archived versions, in the
// requested format. Access control happens in the caller; by the time a
// request reaches here the viewer is allowed to read the item.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	item, err := s.store.GetContent(ctx, req.ContentID)
	if err != nil {
		return nil, fmt.Errorf("get content: %w", err)
	}

	data := TemplateData{
		Title:      item.Title,
		Excerpt:    item.Excerpt,
		AuthorName: item.AuthorName,
		Status:     item.Status,
		Version:    item.Version,
		UpdatedAt:  item.UpdatedAt,
		BodyHTML:   BodyToHTML(item.Body),
	}

	if req.Version > 0 && req.Version != item.Version {
		snapshot, err := s.store.GetVersion(ctx, req.ContentID, req.Version)
		if err != nil {
			return nil, fmt.Errorf("get version %d: %w", req.Version, err)
		}
		data.Title = snapshot.Title
		data.Version = snapshot.VersionNumber
		data.UpdatedAt = snapshot.CreatedAt
		data.BodyHTML = BodyToHTML(snapshot.Body)
		data.Excerpt = ""
	}

	if req.IncludeHistory {
		versions, err := s.store.ListVersions(ctx, req.ContentID)
		if err != nil {
			return nil, fmt.Errorf("list versions: %w", err)
		}
		for _, v := range versions {
			data.History = append(data.History, TemplateHistoryEntry{
				Version:   v.VersionNumber,
				ChangedBy: v.ChangedBy,
				Summary:   v.ChangeSummary,
				Kind:      v.ChangeKind,
				CreatedAt: v.CreatedAt,
			})
		}
	}

	html, err := RenderDocumentHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatPDF:
		return exportPDF(html, data.Title)
	case FormatDOCX:
		return exportDOCX(html, data.Title)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}
