package wire

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/ptpcore/limits"
)

func TestTLVRoundTrip(t *testing.T) {
	msg := &Message{
		Header: testHeader(9),
		Body:   &Announce{GrandmasterIdentity: ClockIdentity{1}},
		TLVs: []TLV{
			{Type: TLVPathTrace, Value: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
			{Type: TLVOrganizationExtension, Value: []byte{0xAA}},
			{Type: TLVAlternateTimeOffset, Value: nil},
		},
	}

	raw, err := msg.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestTLVValueCapacity(t *testing.T) {
	msg := &Message{
		Header: testHeader(1),
		Body:   &Signaling{},
		TLVs:   []TLV{{Type: TLVOrganizationExtension, Value: make([]byte, limits.MaxTLVValueLen+1)}},
	}
	_, err := msg.Marshal()
	assert.ErrorIs(t, err, ErrCapacity)
}

func TestTLVDecodeErrors(t *testing.T) {
	base := &Message{Header: testHeader(1), Body: &Signaling{}}

	t.Run("truncated TLV header", func(t *testing.T) {
		raw, err := base.Marshal()
		require.NoError(t, err)
		// Declare two extra bytes that cannot hold a TLV header.
		raw = append(raw, 0x00, 0x08)
		binary.BigEndian.PutUint16(raw[2:4], uint16(len(raw)))
		_, err = UnmarshalMessage(raw)
		assert.ErrorIs(t, err, ErrBufferTooShort)
	})

	t.Run("declared value beyond remaining", func(t *testing.T) {
		raw, err := base.Marshal()
		require.NoError(t, err)
		raw = append(raw, 0x00, 0x08, 0x00, 0x10) // type 8, length 16, no value
		binary.BigEndian.PutUint16(raw[2:4], uint16(len(raw)))
		_, err = UnmarshalMessage(raw)
		assert.ErrorIs(t, err, ErrBufferTooShort)
	})

	t.Run("declared value beyond capacity", func(t *testing.T) {
		raw, err := base.Marshal()
		require.NoError(t, err)
		tlv := make([]byte, tlvHeaderLen+limits.MaxTLVValueLen+1)
		binary.BigEndian.PutUint16(tlv[0:2], uint16(TLVOrganizationExtension))
		binary.BigEndian.PutUint16(tlv[2:4], limits.MaxTLVValueLen+1)
		raw = append(raw, tlv...)
		binary.BigEndian.PutUint16(raw[2:4], uint16(len(raw)))
		_, err = UnmarshalMessage(raw)
		assert.ErrorIs(t, err, ErrCapacity)
	})
}

func TestPathTraceTypedView(t *testing.T) {
	trace := PathTrace{Identities: []ClockIdentity{
		{1, 1, 1, 1, 1, 1, 1, 1},
		{2, 2, 2, 2, 2, 2, 2, 2},
	}}

	tlv, err := trace.TLV()
	require.NoError(t, err)
	assert.Equal(t, TLVPathTrace, tlv.Type)
	assert.Len(t, tlv.Value, 2*ClockIdentityLen)

	got, err := PathTraceFromTLV(tlv)
	require.NoError(t, err)
	assert.Equal(t, trace, got)

	assert.True(t, got.Contains(ClockIdentity{1, 1, 1, 1, 1, 1, 1, 1}))
	assert.False(t, got.Contains(ClockIdentity{3, 3, 3, 3, 3, 3, 3, 3}))
}

func TestPathTraceErrors(t *testing.T) {
	// Too many entries to encode.
	big := PathTrace{Identities: make([]ClockIdentity, limits.MaxPathTraceEntries+1)}
	_, err := big.TLV()
	assert.ErrorIs(t, err, ErrCapacity)

	// Wrong TLV type.
	_, err = PathTraceFromTLV(TLV{Type: TLVManagement})
	assert.ErrorIs(t, err, ErrInvalid)

	// Ragged value length.
	_, err = PathTraceFromTLV(TLV{Type: TLVPathTrace, Value: make([]byte, 9)})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestAuthenticationTLVRoundTrip(t *testing.T) {
	auth := AuthenticationTLV{SPI: 3, KeyID: 7, SequenceID: 0xBEEF}
	for i := range auth.ICV {
		auth.ICV[i] = byte(i)
	}

	tlv := auth.TLV()
	assert.Equal(t, TLVAuthentication, tlv.Type)
	assert.Len(t, tlv.Value, authenticationValueLen)

	got, err := AuthenticationFromTLV(tlv)
	require.NoError(t, err)
	assert.Equal(t, auth, got)
}

func TestAuthenticationFromTLVErrors(t *testing.T) {
	_, err := AuthenticationFromTLV(TLV{Type: TLVPathTrace})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = AuthenticationFromTLV(TLV{Type: TLVAuthentication, Value: make([]byte, 5)})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestAuthenticationOffsets(t *testing.T) {
	auth := AuthenticationTLV{SPI: 1, KeyID: 2, SequenceID: 3}
	for i := range auth.ICV {
		auth.ICV[i] = 0xCC
	}
	trace, err := (PathTrace{Identities: []ClockIdentity{{5}}}).TLV()
	require.NoError(t, err)

	msg := &Message{
		Header: testHeader(3),
		Body:   &Announce{},
		TLVs:   []TLV{trace, auth.TLV()},
	}
	raw, err := msg.Marshal()
	require.NoError(t, err)

	icvStart, got, err := AuthenticationOffsets(raw)
	require.NoError(t, err)
	assert.Equal(t, auth, got)

	// The offset points at the ICV bytes themselves.
	for i := 0; i < ICVLen; i++ {
		assert.Equal(t, byte(0xCC), raw[icvStart+i])
	}
	assert.Equal(t, len(raw), icvStart+ICVLen)
}

func TestAuthenticationOffsetsAbsent(t *testing.T) {
	raw, err := (&Message{Header: testHeader(1), Body: &Sync{}}).Marshal()
	require.NoError(t, err)

	_, _, err = AuthenticationOffsets(raw)
	assert.ErrorIs(t, err, ErrInvalid)
}
