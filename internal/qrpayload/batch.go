package qrpayload

import (
	"context"
	"fmt"
)

// Renderer turns token text into a scannable image.
type Renderer interface {
	Render(text string) ([]byte, error)
}

// BatchItem is one successfully encoded reference.
type BatchItem struct {
	Index   int
	Ref     Reference
	Encoded Encoded
	Image   []byte // nil when no renderer was supplied
}

// BatchSkip identifies a reference that could not be encoded or rendered.
type BatchSkip struct {
	Index    int
	Type     Type
	EntityID string
	Err      error
}

// BatchResult holds partial results. Every input index appears in exactly
// one of Items or Skipped.
type BatchResult struct {
	Items   []BatchItem
	Skipped []BatchSkip
}

// EncodeBatch encodes each reference independently. A failure on one
// reference is recorded in Skipped and the batch continues. Once ctx is
// done the remaining references are skipped with the context error.
// renderer may be nil.
func (c *Codec) EncodeBatch(ctx context.Context, refs []Reference, renderer Renderer) BatchResult {
	var res BatchResult
	for i, ref := range refs {
		if err := ctx.Err(); err != nil {
			res.Skipped = append(res.Skipped, skipOf(i, ref, err))
			continue
		}

		enc, err := c.Encode(ref)
		if err != nil {
			res.Skipped = append(res.Skipped, skipOf(i, ref, err))
			continue
		}

		item := BatchItem{Index: i, Ref: ref, Encoded: enc}
		if renderer != nil {
			img, err := renderer.Render(enc.Text)
			if err != nil {
				res.Skipped = append(res.Skipped, skipOf(i, ref, fmt.Errorf("render: %w", err)))
				continue
			}
			item.Image = img
		}
		res.Items = append(res.Items, item)
	}
	return res
}

func skipOf(i int, ref Reference, err error) BatchSkip {
	s := BatchSkip{Index: i, Err: err}
	if ref != nil {
		s.Type = ref.PayloadType()
		s.EntityID = ref.EntityID()
	}
	return s
}
