package fieldmap

import (
	"strings"

	"github.com/openkaarten-service/internal/domain"
)

// RenderTooltip подставляет свойства во все строки блоков. Блоки image и
// button без URL и блоки без текста отбрасываются.
func RenderTooltip(blocks []domain.TooltipBlock, props map[string]interface{}) []domain.TooltipBlock {
	out := make([]domain.TooltipBlock, 0, len(blocks))
	for _, b := range blocks {
		r := domain.TooltipBlock{
			Type:  b.Type,
			Title: RenderTemplate(b.Title, props),
			Text:  RenderTemplate(b.Text, props),
			Label: RenderTemplate(b.Label, props),
			Value: RenderTemplate(b.Value, props),
			URL:   strings.TrimSpace(RenderTemplate(b.URL, props)),
			Alt:   RenderTemplate(b.Alt, props),
		}

		switch r.Type {
		case domain.TooltipImage, domain.TooltipButton:
			if r.URL == "" {
				continue
			}
		default:
			if strings.TrimSpace(r.Title+r.Text+r.Label+r.Value) == "" {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}
