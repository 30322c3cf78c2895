package render

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Block types.
const (
	BlockHeading   = "heading"
	BlockParagraph = "paragraph"
	BlockList      = "list"
	BlockTable     = "table"
	BlockCode      = "code"
	BlockDivider   = "divider"
	BlockQuote     = "quote"
	BlockAction    = "action"
)

// Block is one typed unit of rendered output. Which fields are set depends on Type.
type Block struct {
	Type       string            `json:"type"`
	Content    string            `json:"content"`
	Level      int               `json:"level,omitempty"`
	Items      []string          `json:"items,omitempty"`
	Rows       [][]string        `json:"rows,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Label      string            `json:"label,omitempty"`
	Command    string            `json:"command,omitempty"`
	Confidence *float64          `json:"confidence,omitempty"`
}

var (
	dividerLine    = regexp.MustCompile(`^[-*_]{3,}\s*$`)
	headingLine    = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	actionHeader   = regexp.MustCompile(`(?i)^#+\s*Recommended\s+Action\s*$`)
	actionLine     = regexp.MustCompile(`(?i)^ACTION:\s*(.+)$`)
	labelLine      = regexp.MustCompile(`(?i)^LABEL:\s*(.+)$`)
	confidenceLine = regexp.MustCompile(`(?i)^CONFIDENCE:\s*(\S+)\s*$`)
	unorderedItem  = regexp.MustCompile(`^[-*+]\s+(.+)$`)
	orderedItem    = regexp.MustCompile(`^\d+\.\s+(.+)$`)
	separatorCell  = regexp.MustCompile(`^[-:]+$`)
)

// ExtractBlocks parses sanitized markdown into an ordered list of blocks. Lines that match
// no special form accumulate into the current paragraph.
func ExtractBlocks(markdown string) []Block {
	p := &blockParser{lines: strings.Split(markdown, "\n")}
	p.run()
	return p.blocks
}

type blockParser struct {
	lines     []string
	i         int
	blocks    []Block
	paragraph []string
}

func (p *blockParser) flush() {
	if len(p.paragraph) == 0 {
		return
	}
	if text := strings.TrimSpace(strings.Join(p.paragraph, "\n")); text != "" {
		p.blocks = append(p.blocks, Block{Type: BlockParagraph, Content: text})
	}
	p.paragraph = nil
}

func (p *blockParser) emit(b Block) {
	p.flush()
	p.blocks = append(p.blocks, b)
}

func (p *blockParser) run() {
	for p.i < len(p.lines) {
		line := p.lines[p.i]
		stripped := strings.TrimSpace(line)
		switch {
		case stripped == "":
			p.flush()
			p.i++
		case dividerLine.MatchString(stripped):
			p.emit(Block{Type: BlockDivider})
			p.i++
		case actionHeader.MatchString(stripped):
			// Checked before headings: the action marker is itself a heading.
			p.flush()
			p.i++
			if b, ok := p.action(); ok {
				p.blocks = append(p.blocks, b)
			}
		case headingLine.MatchString(stripped):
			m := headingLine.FindStringSubmatch(stripped)
			p.emit(Block{Type: BlockHeading, Content: strings.TrimSpace(m[2]), Level: len(m[1])})
			p.i++
		case strings.HasPrefix(stripped, ">"):
			p.quote()
		case strings.HasPrefix(stripped, "```"):
			p.code(strings.TrimSpace(stripped[3:]))
		case strings.HasPrefix(stripped, "|"):
			p.table()
		case isListItem(stripped):
			p.list()
		default:
			p.paragraph = append(p.paragraph, line)
			p.i++
		}
	}
	p.flush()
}

// action reads ACTION/LABEL/CONFIDENCE lines up to the next heading. The block is emitted
// only when both command and label are present; otherwise the lines are re-parsed normally.
func (p *blockParser) action() (Block, bool) {
	start := p.i
	var command, label string
	confidence := 0.0
	j := p.i
	for ; j < len(p.lines); j++ {
		s := strings.TrimSpace(p.lines[j])
		if s == "" {
			continue
		}
		if strings.HasPrefix(s, "#") {
			break
		}
		if m := actionLine.FindStringSubmatch(s); m != nil {
			command = strings.TrimSpace(m[1])
		} else if m := labelLine.FindStringSubmatch(s); m != nil {
			label = strings.TrimSpace(m[1])
		} else if m := confidenceLine.FindStringSubmatch(s); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
				confidence = v
			}
		}
	}
	if command == "" || label == "" {
		p.i = start
		return Block{}, false
	}
	p.i = j
	c := clamp01(confidence)
	return Block{Type: BlockAction, Label: label, Command: command, Confidence: &c}, true
}

func (p *blockParser) quote() {
	p.flush()
	var quoted []string
	for p.i < len(p.lines) {
		s := strings.TrimSpace(p.lines[p.i])
		if !strings.HasPrefix(s, ">") {
			break
		}
		if q := strings.TrimSpace(s[1:]); q != "" {
			quoted = append(quoted, q)
		}
		p.i++
	}
	if len(quoted) > 0 {
		p.blocks = append(p.blocks, Block{Type: BlockQuote, Content: strings.Join(quoted, "\n")})
	}
}

func (p *blockParser) code(lang string) {
	p.flush()
	p.i++
	var body []string
	for p.i < len(p.lines) && !strings.HasPrefix(strings.TrimSpace(p.lines[p.i]), "```") {
		body = append(body, p.lines[p.i])
		p.i++
	}
	if p.i < len(p.lines) {
		p.i++ // closing fence
	}
	b := Block{Type: BlockCode, Content: strings.Join(body, "\n")}
	if lang != "" {
		b.Metadata = map[string]string{"language": lang}
	}
	p.blocks = append(p.blocks, b)
}

func (p *blockParser) table() {
	p.flush()
	var rows [][]string
	for p.i < len(p.lines) && strings.HasPrefix(strings.TrimSpace(p.lines[p.i]), "|") {
		cells := strings.Split(strings.TrimSpace(p.lines[p.i]), "|")
		if len(cells) >= 2 {
			cells = cells[1 : len(cells)-1]
		} else {
			cells = nil
		}
		row := make([]string, len(cells))
		separator := len(cells) > 0
		for k, c := range cells {
			row[k] = strings.TrimSpace(c)
			if !separatorCell.MatchString(row[k]) {
				separator = false
			}
		}
		if len(row) > 0 && !separator {
			rows = append(rows, row)
		}
		p.i++
	}
	if len(rows) > 0 {
		p.blocks = append(p.blocks, Block{Type: BlockTable, Rows: rows})
	}
}

// list collects items until the first line that is neither a list item nor blank.
func (p *blockParser) list() {
	p.flush()
	var items []string
	for p.i < len(p.lines) {
		s := strings.TrimSpace(p.lines[p.i])
		if s == "" {
			if next := p.nextNonBlank(); next < 0 || !isListItem(strings.TrimSpace(p.lines[next])) {
				break
			}
			p.i++
			continue
		}
		if m := unorderedItem.FindStringSubmatch(s); m != nil && !dividerLine.MatchString(s) {
			items = append(items, strings.TrimSpace(m[1]))
		} else if m := orderedItem.FindStringSubmatch(s); m != nil {
			items = append(items, strings.TrimSpace(m[1]))
		} else {
			break
		}
		p.i++
	}
	if len(items) > 0 {
		p.blocks = append(p.blocks, Block{Type: BlockList, Items: items})
	}
}

func (p *blockParser) nextNonBlank() int {
	for j := p.i + 1; j < len(p.lines); j++ {
		if strings.TrimSpace(p.lines[j]) != "" {
			return j
		}
	}
	return -1
}

func isListItem(s string) bool {
	return (unorderedItem.MatchString(s) && !dividerLine.MatchString(s)) || orderedItem.MatchString(s)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
