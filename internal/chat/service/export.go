package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"

	"praxis-pilot/backend/internal/chat/domain"
	"praxis-pilot/backend/internal/events"
	"praxis-pilot/backend/internal/tenancy"
)

// Export formats.
const (
	FormatText = "txt"
	FormatPDF  = "pdf"
)

const exportTimeLayout = "2006-01-02 15:04"

// Export is a rendered chat.
type Export struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Export renders the chat as plain text or PDF. Finalized chats can be exported.
func (s *Service) Export(ctx context.Context, tc tenancy.Context, id, format string) (*Export, error) {
	if format != FormatText && format != FormatPDF {
		return nil, ErrUnknownFormat
	}
	var (
		c    *domain.Chat
		msgs []*domain.Message
	)
	err := s.scope.Run(ctx, tc, func(ctx context.Context) error {
		var err error
		c, err = s.repo.GetOwned(ctx, id, tc.UserID)
		if err != nil {
			return err
		}
		if c == nil {
			return ErrChatNotFound
		}
		msgs, err = s.repo.Messages(ctx, id)
		if err != nil {
			return err
		}
		_, err = s.events.Append(ctx, events.Append{
			EntityType: EntityType,
			EntityID:   c.ID,
			EventType:  "chat.exported",
			Payload:    map[string]any{"format": format, "message_count": len(msgs)},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if format == FormatText {
		return &Export{
			Filename:    "chat-" + c.ID + ".txt",
			ContentType: "text/plain; charset=utf-8",
			Body:        []byte(RenderText(c, msgs)),
		}, nil
	}
	body, err := RenderPDF(c, msgs)
	if err != nil {
		return nil, err
	}
	return &Export{Filename: "chat-" + c.ID + ".pdf", ContentType: "application/pdf", Body: body}, nil
}

// RenderText renders "# title" followed by one "[YYYY-MM-DD HH:MM] ROLE:" block per message.
func RenderText(c *domain.Chat, msgs []*domain.Message) string {
	parts := make([]string, 0, len(msgs)+1)
	parts = append(parts, fmt.Sprintf("# %s\n", c.Title))
	for _, m := range msgs {
		parts = append(parts, fmt.Sprintf("\n[%s] %s:\n%s\n", m.CreatedAt.UTC().Format(exportTimeLayout), strings.ToUpper(m.Role), m.Content))
	}
	return strings.Join(parts, "\n")
}

// RenderPDF renders the same content as RenderText on A4 pages. Text is mapped to
// cp1252 so German umlauts survive the core fonts.
func RenderPDF(c *domain.Chat, msgs []*domain.Message) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(c.Title, true)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.MultiCell(0, 8, tr(c.Title), "", "L", false)
	pdf.SetFont("Helvetica", "", 9)
	pdf.MultiCell(0, 5, tr(fmt.Sprintf("Status: %s", c.Status)), "", "L", false)
	pdf.Ln(4)

	for _, m := range msgs {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.MultiCell(0, 6, tr(fmt.Sprintf("[%s] %s", m.CreatedAt.UTC().Format(exportTimeLayout), strings.ToUpper(m.Role))), "", "L", false)
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 5, tr(m.Content), "", "L", false)
		pdf.Ln(3)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("chat: render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
