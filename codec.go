package pansim

import (
	"bytes"
	"encoding/gob"

	"github.com/klauspost/compress/zstd"
	"github.com/segmentio/ksuid"
)

// compressThreshold is the payload size above which a frame envelope is
// zstd-compressed before being handed to a rank's inbound channel.
// Below it the fixed overhead of a zstd frame isn't worth paying.
const compressThreshold = 4096

// visitSchema, visitOutputSchema, and stateSchema name the three wire
// schemas spec section 6 defines, used to catch a serialization
// mismatch as a TransportError rather than silently decoding garbage.
const (
	visitSchema       = "visit"
	visitOutputSchema = "visit_output"
	stateSchema       = "state"
)

// Envelope is the self-describing record-batch wrapper every inter-actor
// message is carried in: an id for tracing a frame through the
// scatter/gather pipeline, the schema name it claims to carry, and its
// (possibly zstd-compressed) gob-encoded payload. The "explicit empty
// message" scatter sends to every destination it has no rows for is an
// Envelope carrying an encoded frame with no rows -- the signal the
// barrier counts on spec section 4.5 requires; a nil Envelope is
// rejected by the decoders.
type Envelope struct {
	FrameID    ksuid.KSUID
	Schema     string
	Compressed bool
	Payload    []byte
}

var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

func encodeEnvelope(schema string, v interface{}) (*Envelope, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, Wrapf(TransportError, err, "encoding %s frame", schema)
	}
	payload := buf.Bytes()
	compressed := false
	if len(payload) > compressThreshold {
		payload = zstdEncoder.EncodeAll(payload, nil)
		compressed = true
	}
	return &Envelope{
		FrameID:    ksuid.New(),
		Schema:     schema,
		Compressed: compressed,
		Payload:    payload,
	}, nil
}

func decodeEnvelope(env *Envelope, schema string, v interface{}) error {
	if env == nil {
		return Newf(TransportError, "decoding %s frame: envelope is nil", schema)
	}
	if env.Schema != schema {
		return Newf(TransportError, SchemaMismatchError, env.Schema, schema)
	}
	payload := env.Payload
	if env.Compressed {
		var err error
		payload, err = zstdDecoder.DecodeAll(payload, nil)
		if err != nil {
			return Wrapf(TransportError, err, "decompressing %s frame", schema)
		}
	}
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(v); err != nil {
		return Wrapf(TransportError, err, "decoding %s frame", schema)
	}
	return nil
}

// EncodeVisitFrame serializes a VisitFrame into a wire envelope.
func EncodeVisitFrame(f VisitFrame) (*Envelope, error) {
	return encodeEnvelope(visitSchema, f)
}

// DecodeVisitFrame deserializes a VisitFrame from a wire envelope.
func DecodeVisitFrame(env *Envelope) (VisitFrame, error) {
	var f VisitFrame
	err := decodeEnvelope(env, visitSchema, &f)
	return f, err
}

// EncodeVisitOutputFrame serializes a VisitOutputFrame into a wire envelope.
func EncodeVisitOutputFrame(f VisitOutputFrame) (*Envelope, error) {
	return encodeEnvelope(visitOutputSchema, f)
}

// DecodeVisitOutputFrame deserializes a VisitOutputFrame from a wire envelope.
func DecodeVisitOutputFrame(env *Envelope) (VisitOutputFrame, error) {
	var f VisitOutputFrame
	err := decodeEnvelope(env, visitOutputSchema, &f)
	return f, err
}

// EncodeStateFrame serializes a StateFrame into a wire envelope.
func EncodeStateFrame(f StateFrame) (*Envelope, error) {
	return encodeEnvelope(stateSchema, f)
}

// DecodeStateFrame deserializes a StateFrame from a wire envelope.
func DecodeStateFrame(env *Envelope) (StateFrame, error) {
	var f StateFrame
	err := decodeEnvelope(env, stateSchema, &f)
	return f, err
}
