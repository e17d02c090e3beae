package export

import (
	"context"
	"fmt"
	"time"

	"lifeblocks/api/internal/blocks"
	"lifeblocks/api/internal/progress"
)

type pdfRenderer func(ctx context.Context, html string) ([]byte, error)

// Service provides board report export
type Service struct {
	renderPDF pdfRenderer
	now       func() time.Time
}

// NewService creates a new export service
func NewService() *Service {
	return &Service{renderPDF: renderPDF, now: time.Now}
}

// Export renders the board report for req.Date in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	html, err := RenderReportHTML(s.reportData(req))
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	name := sanitizeFilename(req.Board.Title) + "-" + blocks.DateKey(req.Date)
	switch req.Format {
	case FormatHTML, "":
		return &Result{
			Data:     []byte(html),
			Filename: name + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		pdf, err := s.renderPDF(ctx, html)
		if err != nil {
			return nil, err
		}
		return &Result{Data: pdf, Filename: name + ".pdf", MimeType: "application/pdf"}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}

func (s *Service) reportData(req Request) TemplateData {
	snap := progress.Summarize(req.Board, req.Date)
	data := TemplateData{
		Title:       req.Board.Title,
		Date:        snap.Date,
		HasOverall:  snap.HasOverall,
		Overall:     percent(snap.Overall),
		GeneratedAt: s.now(),
		Rows:        make([]TemplateRow, 0, len(snap.Blocks)),
	}
	if data.Title == "" {
		data.Title = "My LifeBlocks"
	}
	for _, stat := range snap.Blocks {
		title := stat.Title
		if title == "" {
			title = string(stat.Type)
		}
		data.Rows = append(data.Rows, TemplateRow{
			Title:   title,
			Type:    string(stat.Type),
			Percent: percent(stat.Progress),
			Streak:  stat.Streak,
		})
	}
	return data
}

func percent(v float64) string {
	return fmt.Sprintf("%.0f%%", v)
}
