package chunker

import (
	"context"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"

	"github.com/nevindra/kertas"
)

// Structural chunks native text along its heading hierarchy. PDF text
// layers rarely carry real markdown, so heading-looking lines are promoted
// to markdown headings first, then the markdown AST drives the section
// boundaries. Each section becomes one parent chunk; oversized sections
// are subdivided by size.
type Structural struct {
	cfg config
}

// NewStructural creates a Structural chunker with the given options.
func NewStructural(opts ...Option) *Structural {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Structural{cfg: cfg}
}

// Chunk splits text into a parent/child hierarchy for documentID.
// Identifiers are derived from the document and each chunk's position,
// so rechunking identical text yields identical ids.
func (s *Structural) Chunk(ctx context.Context, documentID, text string) (*kertas.ChunkSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("structural chunk: document text is empty")
	}

	md := promoteHeadings(text)
	sections := headingSections(md)
	if len(sections) <= 1 {
		// No usable heading structure. Size-based parents still work.
		s.cfg.logger.Debug("no headings detected, splitting by size")
		sections = splitWithOverlap(md, s.cfg.parentChars, s.cfg.parentOverlap)
	}

	var contents []string
	for _, sec := range sections {
		sec = strings.TrimSpace(stripPromotedHeadings(sec))
		if sec == "" {
			continue
		}
		// A section holding several headings' worth of text gets subdivided
		// so parents stay near the target size.
		if len(sec) > s.cfg.parentChars*3/2 {
			contents = append(contents, splitWithOverlap(sec, s.cfg.parentChars, s.cfg.parentOverlap)...)
		} else {
			contents = append(contents, sec)
		}
	}
	if len(contents) == 0 {
		return nil, fmt.Errorf("structural chunk: no sections produced")
	}

	set := &kertas.ChunkSet{
		DocumentID: documentID,
		Provenance: kertas.ProvenanceStructural,
		SourceText: text,
	}
	for ordinal, content := range contents {
		parent := kertas.ParentChunk{
			ID:         kertas.ParentChunkID(documentID, ordinal),
			DocumentID: documentID,
			Ordinal:    ordinal,
			Content:    content,
			ContentSHA: kertas.ContentSHA(content),
			Provenance: kertas.ProvenanceStructural,
		}
		for seq, childContent := range splitWithOverlap(content, s.cfg.childChars, s.cfg.childOverlap) {
			parent.Children = append(parent.Children, kertas.ChildChunk{
				ID:             kertas.ChildChunkID(documentID, ordinal, seq+1),
				ParentID:       parent.ID,
				SequenceNumber: seq + 1,
				Content:        childContent,
			})
		}
		set.Parents = append(set.Parents, parent)
	}

	s.cfg.logger.Info("structural chunking complete",
		"document", documentID,
		"parents", len(set.Parents),
		"children", set.ChildCount())
	return set, nil
}

// headingSections parses md as markdown and splits it into sections, each
// starting at a heading and running to the next one. Text before the
// first heading forms its own section.
func headingSections(md string) []string {
	src := []byte(md)
	root := goldmark.New().Parser().Parse(gmtext.NewReader(src))

	var starts []int
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok || h.Lines().Len() == 0 {
			return ast.WalkContinue, nil
		}
		// Lines() starts after the "# " marker; back up to the line start
		// so the heading text stays inside its section.
		start := h.Lines().At(0).Start
		for start > 0 && src[start-1] != '\n' {
			start--
		}
		starts = append(starts, start)
		return ast.WalkSkipChildren, nil
	})

	if len(starts) == 0 {
		return []string{md}
	}

	var sections []string
	if starts[0] > 0 {
		if pre := strings.TrimSpace(md[:starts[0]]); pre != "" {
			sections = append(sections, pre)
		}
	}
	for i, start := range starts {
		end := len(md)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		if sec := strings.TrimSpace(md[start:end]); sec != "" {
			sections = append(sections, sec)
		}
	}
	return sections
}

// headingKeywords mark lines that title a structural unit.
var headingKeywords = []string{"chapter", "section", "part", "introduction", "conclusion"}

// promoteHeadings rewrites heading-looking lines as markdown headings so
// the parser can see the document's structure. A line counts as a heading
// when at least two indicators agree: all caps, trailing colon, short,
// leading capital without a closing period, or a structural keyword.
func promoteHeadings(text string) string {
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			b.WriteByte('\n')
			continue
		}
		if isHeadingLine(line) {
			b.WriteString(strings.Repeat("#", headingLevel(line)))
			b.WriteByte(' ')
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// stripPromotedHeadings undoes promoteHeadings. The injected markers are
// not characters of the source text, so they must not reach persisted
// chunk content. A marker is removed only when the remainder of the line
// still qualifies as a heading, which is exactly when promoteHeadings
// would have injected it; genuine markdown headings in the source stay.
func stripPromotedHeadings(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		rest := strings.TrimLeft(line, "#")
		if rest == line || !strings.HasPrefix(rest, " ") {
			continue
		}
		rest = rest[1:]
		if isHeadingLine(rest) {
			lines[i] = rest
		}
	}
	return strings.Join(lines, "\n")
}

func isHeadingLine(line string) bool {
	if line == "" || len(line) > 100 {
		return false
	}
	lower := strings.ToLower(line)
	hasKeyword := false
	for _, kw := range headingKeywords {
		if strings.Contains(lower, kw) {
			hasKeyword = true
			break
		}
	}
	first := []rune(line)[0]

	indicators := 0
	if line == strings.ToUpper(line) && line != strings.ToLower(line) {
		indicators++
	}
	if strings.HasSuffix(line, ":") {
		indicators++
	}
	if len(strings.Fields(line)) <= 8 {
		indicators++
	}
	if first >= 'A' && first <= 'Z' && !strings.HasSuffix(line, ".") {
		indicators++
	}
	if hasKeyword {
		indicators++
	}
	return indicators >= 2
}

func headingLevel(line string) int {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "chapter") || strings.Contains(lower, "part"):
		return 1
	case strings.Contains(lower, "section"):
		return 2
	case line == strings.ToUpper(line) && line != strings.ToLower(line):
		return 2
	default:
		return 3
	}
}
