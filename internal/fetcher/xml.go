package fetcher

import (
	"context"
	"encoding/xml"
	"io"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

func newXMLDecoder(r io.Reader) *xml.Decoder {
	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "xml: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}
	return decoder
}

// EachXML decodes every element whose local name is elementName, in document
// order, and calls fn with it. Elements are decoded one at a time so memory
// stays bounded by the largest element. The first error from fn stops the scan
// and is returned unwrapped.
func EachXML[T any](ctx context.Context, r io.Reader, elementName string, fn func(T) error) (int, error) {
	decoder := newXMLDecoder(r)

	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, eris.Wrap(err, "xml: context cancelled")
		}

		tok, err := decoder.Token()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, eris.Wrap(err, "xml: read token")
		}

		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != elementName {
			continue
		}

		var item T
		if err := decoder.DecodeElement(&item, &se); err != nil {
			return n, eris.Wrapf(err, "xml: decode %s element %d", elementName, n+1)
		}
		n++
		if err := fn(item); err != nil {
			return n, err
		}
	}
}
