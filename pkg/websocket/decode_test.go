package websocket

import (
	"errors"
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// https://datatracker.ietf.org/doc/html/rfc6455#section-5.7
func TestParseFrameHeader(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  *frameHeader
	}{
		{
			name:  "unmasked_text_hello",
			input: []byte{0x81, 0x05, 0x48, 0x65, 0x6c, 0x6f},
			want:  &frameHeader{fin: true, opcode: OpcodeText, payloadLength: 5, payloadOffset: 2},
		},
		{
			name:  "masked_text_hello",
			input: []byte{0x81, 0x85, 0x37, 0xfa, 0x21, 0x3d, 0x7f, 0x9f, 0x4d, 0x51, 0x58},
			want: &frameHeader{
				fin: true, opcode: OpcodeText, mask: true,
				maskKey: [4]byte{0x37, 0xfa, 0x21, 0x3d}, payloadLength: 5, payloadOffset: 6,
			},
		},
		{
			name:  "first_fragment_unmasked_text_hel",
			input: []byte{0x01, 0x03, 0x48, 0x65, 0x6c},
			want:  &frameHeader{opcode: OpcodeText, payloadLength: 3, payloadOffset: 2},
		},
		{
			name:  "unmasked_ping",
			input: []byte{0x89, 0x05, 0x48, 0x65, 0x6c, 0x6c, 0x6f},
			want:  &frameHeader{fin: true, opcode: OpcodePing, payloadLength: 5, payloadOffset: 2},
		},
		{
			name:  "masked_pong",
			input: []byte{0x8a, 0x85, 0x37, 0xfa, 0x21, 0x3d, 0x7f, 0x9f, 0x4d, 0x51, 0x58},
			want: &frameHeader{
				fin: true, opcode: OpcodePong, mask: true,
				maskKey: [4]byte{0x37, 0xfa, 0x21, 0x3d}, payloadLength: 5, payloadOffset: 6,
			},
		},
		{
			name:  "256b_unmasked_binary",
			input: []byte{0x82, 0x7e, 0x01, 0x00},
			want:  &frameHeader{fin: true, opcode: OpcodeBinary, payloadLength: 256, payloadOffset: 4},
		},
		{
			name:  "64k_unmasked_binary",
			input: []byte{0x82, 0x7f, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00},
			want:  &frameHeader{fin: true, opcode: OpcodeBinary, payloadLength: 65536, payloadOffset: 10},
		},
		{
			name:  "empty_input",
			input: []byte{},
		},
		{
			name:  "incomplete_base_header",
			input: []byte{0x81},
		},
		{
			name:  "incomplete_extended_length",
			input: []byte{0x82, 0x7e, 0x01},
		},
		{
			name:  "incomplete_masking_key",
			input: []byte{0x81, 0x85, 0x37, 0xfa, 0x21},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFrameHeader(tt.input)
			if err != nil {
				t.Fatalf("parseFrameHeader() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseFrameHeader() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecoderFrameAssembly(t *testing.T) {
	tests := []struct {
		name   string
		chunks [][]byte
		want   []Frame
	}{
		{
			name:   "unmasked_text_hello",
			chunks: [][]byte{{0x81, 0x05, 0x48, 0x65, 0x6c, 0x6c, 0x6f}},
			want:   []Frame{{Opcode: OpcodeText, Fin: true, Data: []byte("Hello")}},
		},
		{
			name:   "masked_text_hello",
			chunks: [][]byte{{0x81, 0x85, 0x37, 0xfa, 0x21, 0x3d, 0x7f, 0x9f, 0x4d, 0x51, 0x58}},
			want:   []Frame{{Opcode: OpcodeText, Fin: true, Data: []byte("Hello")}},
		},
		{
			name:   "zero_length_delivery",
			chunks: [][]byte{{}, {0x81, 0x05, 0x48, 0x65, 0x6c, 0x6c, 0x6f}, {}},
			want:   []Frame{{Opcode: OpcodeText, Fin: true, Data: []byte("Hello")}},
		},
		{
			name: "two_frames_in_one_delivery",
			chunks: [][]byte{
				{0x81, 0x03, 0x61, 0x62, 0x63, 0x89, 0x00},
			},
			want: []Frame{
				{Opcode: OpcodeText, Fin: true, Data: []byte("abc")},
				{Opcode: OpcodePing, Fin: true, Data: []byte{}},
			},
		},
		{
			name: "header_split_across_deliveries",
			chunks: [][]byte{
				{0x81}, {0x05}, {0x48, 0x65, 0x6c, 0x6c, 0x6f},
			},
			want: []Frame{{Opcode: OpcodeText, Fin: true, Data: []byte("Hello")}},
		},
		{
			name: "masking_key_split_across_deliveries",
			chunks: [][]byte{
				{0x81, 0x85, 0x37, 0xfa}, {0x21, 0x3d, 0x7f}, {0x9f, 0x4d, 0x51, 0x58},
			},
			want: []Frame{{Opcode: OpcodeText, Fin: true, Data: []byte("Hello")}},
		},
		{
			name: "single_byte_deliveries",
			chunks: [][]byte{
				{0x81}, {0x85}, {0x37}, {0xfa}, {0x21}, {0x3d}, {0x7f}, {0x9f}, {0x4d}, {0x51}, {0x58},
			},
			want: []Frame{{Opcode: OpcodeText, Fin: true, Data: []byte("Hello")}},
		},
		{
			name: "frame_tail_plus_next_frame_head",
			chunks: [][]byte{
				{0x01, 0x03, 0x61, 0x62},
				{0x63, 0x80, 0x03, 0x64, 0x65},
				{0x66},
			},
			want: []Frame{
				{Opcode: OpcodeText, Data: []byte("abc")},
				{Opcode: OpcodeContinuation, Fin: true, Data: []byte("def")},
			},
		},
		{
			name:   "zero_payload_close",
			chunks: [][]byte{{0x88, 0x00}},
			want:   []Frame{{Opcode: OpcodeClose, Fin: true, Data: []byte{}}},
		},
		{
			name: "extended16_payload_in_two_chunks",
			chunks: func() [][]byte {
				frame := append([]byte{0x82, 0x7e, 0x00, 0xc8}, pattern(200)...)
				return [][]byte{frame[:50], frame[50:]}
			}(),
			want: []Frame{{Opcode: OpcodeBinary, Fin: true, Data: pattern(200)}},
		},
		{
			name: "extended64_payload",
			chunks: func() [][]byte {
				frame := append([]byte{0x82, 0x7f, 0, 0, 0, 0, 0, 1, 0, 0}, pattern(65536)...)
				return [][]byte{frame}
			}(),
			want: []Frame{{Opcode: OpcodeBinary, Fin: true, Data: pattern(65536)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []Frame
			c := NewCodec(false, func(f Frame) { got = append(got, f) })

			for _, chunk := range tt.chunks {
				if err := c.Feed(chunk); err != nil {
					t.Fatalf("Codec.Feed() error = %v", err)
				}
			}

			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("decoded frame sequence mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// pattern returns n bytes with a deterministic, non-repeating-mod-4 pattern.
func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func TestDecoderRejections(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  error
	}{
		{
			name:  "rsv1_set",
			input: []byte{0xc1, 0x00},
			want:  ErrReservedBits,
		},
		{
			name:  "rsv2_set",
			input: []byte{0xa1, 0x00},
			want:  ErrReservedBits,
		},
		{
			name:  "rsv3_set",
			input: []byte{0x91, 0x00},
			want:  ErrReservedBits,
		},
		{
			name:  "reserved_data_opcode_3",
			input: []byte{0x83, 0x00},
			want:  ErrInvalidOpcode,
		},
		{
			name:  "reserved_data_opcode_7",
			input: []byte{0x87, 0x00},
			want:  ErrInvalidOpcode,
		},
		{
			name:  "reserved_control_opcode_11",
			input: []byte{0x8b, 0x00},
			want:  ErrInvalidOpcode,
		},
		{
			name:  "reserved_control_opcode_15",
			input: []byte{0x8f, 0x00},
			want:  ErrInvalidOpcode,
		},
		{
			name:  "fragmented_close",
			input: []byte{0x08, 0x00},
			want:  ErrFragmentedControl,
		},
		{
			name:  "fragmented_ping",
			input: []byte{0x09, 0x00},
			want:  ErrFragmentedControl,
		},
		{
			name:  "oversized_ping",
			input: []byte{0x89, 0x7e, 0x00, 0xff},
			want:  ErrControlTooLarge,
		},
		{
			name:  "payload_length_2_pow_53",
			input: []byte{0x81, 0x7f, 0x00, 0x20, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
			want:  ErrUnsupportedLength,
		},
		{
			name:  "payload_length_with_high_bit_set",
			input: []byte{0x81, 0x7f, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
			want:  ErrUnsupportedLength,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emitted := 0
			c := NewCodec(false, func(Frame) { emitted++ })

			err := c.Feed(tt.input)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Codec.Feed() error = %v, want %v", err, tt.want)
			}
			if emitted > 0 {
				t.Errorf("Codec.Feed() emitted %d frames, want 0", emitted)
			}

			// The error is terminal: the codec must refuse further bytes.
			if err2 := c.Feed([]byte{0x89, 0x00}); !errors.Is(err2, tt.want) {
				t.Errorf("Codec.Feed() after error = %v, want %v", err2, tt.want)
			}
			if emitted > 0 {
				t.Errorf("dead Codec.Feed() emitted %d frames, want 0", emitted)
			}
			if !errors.Is(c.Err(), tt.want) {
				t.Errorf("Codec.Err() = %v, want %v", c.Err(), tt.want)
			}
		})
	}
}

func TestDecoderBaseHeaderErrorsNeedOnlyTwoBytes(t *testing.T) {
	// The RSV/opcode/FIN validations must not wait for the extended
	// length or masking key, which will never arrive from this peer.
	c := NewCodec(false, func(Frame) { t.Error("unexpected frame emission") })
	if err := c.Feed([]byte{0xc2, 0xfe}); !errors.Is(err, ErrReservedBits) {
		t.Errorf("Codec.Feed() error = %v, want %v", err, ErrReservedBits)
	}
}

func TestDecoderZeroPayloadEmitsSynchronously(t *testing.T) {
	emitted := false
	c := NewCodec(false, func(f Frame) {
		emitted = true
		if f.Opcode != OpcodePing || !f.Fin || len(f.Data) != 0 {
			t.Errorf("emitted frame = %+v, want empty final ping", f)
		}
	})

	if err := c.Feed([]byte{0x89, 0x00}); err != nil {
		t.Fatalf("Codec.Feed() error = %v", err)
	}
	if !emitted {
		t.Error("zero-payload frame wasn't emitted within the Feed call that completed its header")
	}
}
