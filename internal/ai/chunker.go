package ai

import (
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Piece is one chunk of source text with its byte offsets in the original.
type Piece struct {
	Content string
	Start   int
	End     int
}

// Chunker splits document text on markdown block boundaries into pieces of
// at most Size bytes, carrying Overlap bytes of trailing context into the
// next piece. Plain text parses as paragraphs, so the same path serves both.
type Chunker struct {
	size    int
	overlap int
}

func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 1600
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 8
	}
	return &Chunker{size: size, overlap: overlap}
}

type span struct {
	start int
	stop  int
}

func (c *Chunker) Split(input string) []Piece {
	source := []byte(input)
	spans := blockSpans(source)
	if len(spans) == 0 {
		return nil
	}

	var pieces []Piece
	var current []span
	currentLen := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		start := current[0].start
		stop := current[len(current)-1].stop
		pieces = append(pieces, Piece{
			Content: string(source[start:stop]),
			Start:   start,
			End:     stop,
		})
		// carry trailing blocks into the next piece as overlap context
		var kept []span
		keptLen := 0
		for i := len(current) - 1; i >= 0; i-- {
			blockLen := current[i].stop - current[i].start
			if keptLen+blockLen > c.overlap {
				break
			}
			keptLen += blockLen
			kept = append([]span{current[i]}, kept...)
		}
		current = kept
		currentLen = keptLen
	}

	for _, blk := range spans {
		blockLen := blk.stop - blk.start
		if blockLen > c.size {
			flush()
			current = nil
			currentLen = 0
			pieces = append(pieces, c.hardSplit(source, blk)...)
			continue
		}
		if currentLen+blockLen > c.size {
			flush()
		}
		current = append(current, blk)
		currentLen += blockLen
	}
	flush()
	return pieces
}

// hardSplit slices one oversized block by raw bytes with overlap stride.
func (c *Chunker) hardSplit(source []byte, blk span) []Piece {
	var pieces []Piece
	step := c.size - c.overlap
	for start := blk.start; start < blk.stop; start += step {
		stop := start + c.size
		if stop > blk.stop {
			stop = blk.stop
		}
		pieces = append(pieces, Piece{
			Content: string(source[start:stop]),
			Start:   start,
			End:     stop,
		})
		if stop == blk.stop {
			break
		}
	}
	return pieces
}

// blockSpans walks the markdown AST and collects the byte spans of the
// leaf blocks that own source lines.
func blockSpans(source []byte) []span {
	md := goldmark.New()
	reader := text.NewReader(source)
	doc := md.Parser().Parse(reader)

	var spans []span
	_ = ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || node.Type() != ast.TypeBlock {
			return ast.WalkContinue, nil
		}
		lines := node.Lines()
		if lines.Len() == 0 {
			return ast.WalkContinue, nil
		}
		spans = append(spans, span{
			start: lines.At(0).Start,
			stop:  lines.At(lines.Len() - 1).Stop,
		})
		return ast.WalkSkipChildren, nil
	})
	return spans
}
