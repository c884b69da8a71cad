package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR returns a codec speaking the "cbor" sub-protocol.
//
// Struct fields are matched through their json tags, so the same model types
// serve both codecs. Maps decoded into interface values get string keys,
// which keeps Convert symmetrical with the JSON codec.
func CBOR() Codec {
	enc, err := cbor.EncOptions{
		Sort: cbor.SortCanonical,
	}.EncMode()
	if err != nil {
		panic("BUG: invalid cbor encoding options: " + err.Error())
	}

	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("BUG: invalid cbor decoding options: " + err.Error())
	}

	return &cborCodec{enc: enc, dec: dec}
}

func (c *cborCodec) Name() string {
	return "cbor"
}

func (c *cborCodec) Marshal(v any) ([]byte, error) {
	return c.enc.Marshal(v)
}

func (c *cborCodec) Unmarshal(data []byte, dst any) error {
	return c.dec.Unmarshal(data, dst)
}

func (c *cborCodec) NewEncoder(w io.Writer) Encoder {
	return c.enc.NewEncoder(w)
}

func (c *cborCodec) NewDecoder(r io.Reader) Decoder {
	return c.dec.NewDecoder(r)
}
