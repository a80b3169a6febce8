package fetcher

import (
	"context"
	"encoding/xml"
	"io"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// NewXMLDecoder returns a decoder that understands any charset named in the
// XML declaration, e.g. windows-1252 KML exports.
func NewXMLDecoder(r io.Reader) *xml.Decoder {
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

// EachXML decodes every element with the given local name, at any depth, and
// passes it to fn. Decoding stops at the first error from fn.
func EachXML[T any](ctx context.Context, r io.Reader, elementName string, fn func(T) error) error {
	decoder := NewXMLDecoder(r)

	for {
		if ctx.Err() != nil {
			return eris.Wrap(ctx.Err(), "xml: context cancelled")
		}

		tok, err := decoder.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return eris.Wrap(err, "xml: read token")
		}

		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != elementName {
			continue
		}

		var item T
		if err := decoder.DecodeElement(&item, &se); err != nil {
			return eris.Wrap(err, "xml: decode element")
		}
		if err := fn(item); err != nil {
			return err
		}
	}
}
