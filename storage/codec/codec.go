// Package codec defines the serialization contract a caller supplies
// for the tree's Key and Value types, replacing the fixed
// unsafe.Pointer struct casts of storage/page.page_format.go with an
// explicit byte-oriented trait now that the tree is generic over user
// types rather than fixed uint64s.
package codec

import "io"

// Codec encodes and decodes values of type T to and from a byte
// stream. Decode must consume exactly the bytes its matching Encode
// call wrote, so codecs can be chained back to back on one stream: the
// node encoding writes no length or framing around a codec's output,
// and a variable-length codec (such as String) carries its own length.
type Codec[T any] interface {
	Encode(w io.Writer, v T) error
	Decode(r io.Reader) (T, error)
}
