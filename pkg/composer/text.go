package composer

import (
	"strings"

	"github.com/malbeclabs/eventlens/pkg/rowset"
)

// builder joins non-empty blocks with a blank line.
type builder struct {
	blocks []string
}

func (b *builder) paragraph(s string) {
	if s = strings.TrimSpace(s); s != "" {
		b.blocks = append(b.blocks, s)
	}
}

func (b *builder) title(s string) {
	b.paragraph(s)
}

func (b *builder) list(heading string, items []string) {
	if len(items) == 0 {
		return
	}
	lines := []string{heading}
	for _, it := range items {
		lines = append(lines, "- "+it)
	}
	b.blocks = append(b.blocks, strings.Join(lines, "\n"))
}

func (b *builder) section(s Section) {
	var lines []string
	if h := strings.TrimSpace(s.Heading); h != "" {
		lines = append(lines, h)
	}
	bullets := nonEmpty(s.Bullets)
	text := strings.TrimSpace(s.Text)

	switch s.Style {
	case StyleBullets:
		if len(bullets) == 0 && text != "" {
			bullets = []string{text}
		}
		text = ""
	case StyleBoth:
	default:
		if text == "" && len(bullets) > 0 {
			text = strings.Join(bullets, " ")
		}
		bullets = nil
	}

	if text != "" {
		lines = append(lines, text)
	}
	for _, it := range bullets {
		lines = append(lines, "- "+it)
	}
	if len(lines) > 0 {
		b.blocks = append(b.blocks, strings.Join(lines, "\n"))
	}
}

func (b *builder) Len() int {
	return len(b.blocks)
}

func (b *builder) String() string {
	return strings.Join(b.blocks, "\n\n")
}

// sanitize removes markdown table syntax: separator lines are dropped and pipes replaced.
func sanitize(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		if rowset.IsSeparatorLine(line) {
			continue
		}
		line = strings.TrimSpace(strings.ReplaceAll(line, "|", " "))
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
