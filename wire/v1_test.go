package wire

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHeaderV1(seq uint16) HeaderV1 {
	sub, _ := SubdomainV1(DefaultSubdomainV1)
	return HeaderV1{
		VersionNetwork: 1,
		Subdomain:      sub,
		SourceUUID:     [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
		SourcePortID:   1,
		SequenceID:     seq,
		Flags:          FlagV1Assist,
	}
}

func testSyncV1() *SyncV1 {
	return &SyncV1{
		OriginTimestamp:                    TimestampV1{Seconds: 1000, Nanos: 500},
		EpochNumber:                        1,
		CurrentUTCOffset:                   33,
		GrandmasterCommunicationTechnology: 1,
		GrandmasterClockUUID:               [6]byte{1, 2, 3, 4, 5, 6},
		GrandmasterPortID:                  1,
		GrandmasterSequenceID:              77,
		GrandmasterClockStratum:            2,
		GrandmasterClockIdentifier:         [4]byte{'G', 'P', 'S', 0},
		GrandmasterClockVariance:           -4000,
		GrandmasterPreferred:               true,
		GrandmasterIsBoundaryClock:         false,
		SyncInterval:                       1,
		LocalClockVariance:                 -3500,
		LocalStepsRemoved:                  2,
		LocalClockStratum:                  3,
		LocalClockIdentifier:               [4]byte{'D', 'F', 'L', 'T'},
		ParentCommunicationTechnology:      1,
		ParentUUID:                         [6]byte{6, 5, 4, 3, 2, 1},
		ParentPortField:                    2,
		EstimatedMasterVariance:            -100,
		EstimatedMasterDrift:               -250000,
		UTCReasonable:                      true,
	}
}

func TestMessageV1RoundTrip(t *testing.T) {
	delayReq := DelayReqV1(*testSyncV1())
	tests := []struct {
		name string
		body BodyV1
		size int
	}{
		{"sync", testSyncV1(), SyncV1Len},
		{"delay request", &delayReq, DelayReqV1Len},
		{"follow up", &FollowUpV1{AssociatedSequenceID: 41, PreciseOriginTimestamp: TimestampV1{Seconds: 1000, Nanos: 501}}, FollowUpV1Len},
		{"delay response", &DelayRespV1{
			DelayReceiptTimestamp:                   TimestampV1{Seconds: 1001, Nanos: 2},
			RequestingSourceCommunicationTechnology: 1,
			RequestingSourceUUID:                    [6]byte{9, 8, 7, 6, 5, 4},
			RequestingSourcePortID:                  1,
			RequestingSourceSequenceID:              12,
		}, DelayRespV1Len},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &MessageV1{Header: testHeaderV1(7), Body: tt.body}

			raw, err := msg.Marshal()
			require.NoError(t, err)
			assert.Len(t, raw, tt.size)

			got, err := UnmarshalMessageV1(raw)
			require.NoError(t, err)
			assert.Equal(t, msg, got)
		})
	}
}

func TestMessageV1WireFields(t *testing.T) {
	raw, err := (&MessageV1{Header: testHeaderV1(0x0102), Body: testSyncV1()}).Marshal()
	require.NoError(t, err)

	assert.Equal(t, uint16(VersionPTPV1), binary.BigEndian.Uint16(raw[0:2]))
	// Sync is an event message with control 0.
	assert.Equal(t, byte(messageClassV1Event), raw[20])
	assert.Equal(t, byte(controlV1Sync), raw[32])
	assert.Equal(t, uint16(0x0102), binary.BigEndian.Uint16(raw[30:32]))

	raw, err = (&MessageV1{Header: testHeaderV1(1), Body: &FollowUpV1{}}).Marshal()
	require.NoError(t, err)
	assert.Equal(t, byte(messageClassV1General), raw[20])
	assert.Equal(t, byte(controlV1FollowUp), raw[32])
}

func TestMessageV1SyncAndDelayReqStayDistinct(t *testing.T) {
	sync := &MessageV1{Header: testHeaderV1(1), Body: testSyncV1()}
	rawSync, err := sync.Marshal()
	require.NoError(t, err)

	req := DelayReqV1(*testSyncV1())
	rawReq, err := (&MessageV1{Header: testHeaderV1(1), Body: &req}).Marshal()
	require.NoError(t, err)

	// Same body layout, distinct control bytes, distinct decoded types.
	assert.Equal(t, rawSync[HeaderV1Len:], rawReq[HeaderV1Len:])
	assert.NotEqual(t, rawSync[32], rawReq[32])

	gotSync, err := UnmarshalMessageV1(rawSync)
	require.NoError(t, err)
	gotReq, err := UnmarshalMessageV1(rawReq)
	require.NoError(t, err)
	assert.IsType(t, &SyncV1{}, gotSync.Body)
	assert.IsType(t, &DelayReqV1{}, gotReq.Body)
}

func TestUnmarshalMessageV1Errors(t *testing.T) {
	valid, err := (&MessageV1{Header: testHeaderV1(1), Body: testSyncV1()}).Marshal()
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func([]byte) []byte
		wantErr error
	}{
		{
			name:    "truncated header",
			mutate:  func(b []byte) []byte { return b[:HeaderV1Len-1] },
			wantErr: ErrBufferTooShort,
		},
		{
			name: "wrong version",
			mutate: func(b []byte) []byte {
				binary.BigEndian.PutUint16(b[0:2], 2)
				return b
			},
			wantErr: ErrEnumConversion,
		},
		{
			name: "unknown control",
			mutate: func(b []byte) []byte {
				b[32] = 9
				return b
			},
			wantErr: ErrEnumConversion,
		},
		{
			name:    "truncated body",
			mutate:  func(b []byte) []byte { return b[:HeaderV1Len+10] },
			wantErr: ErrBufferTooShort,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, len(valid))
			copy(buf, valid)
			_, err := UnmarshalMessageV1(tt.mutate(buf))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSubdomainV1(t *testing.T) {
	sub, err := SubdomainV1(DefaultSubdomainV1)
	require.NoError(t, err)
	assert.Equal(t, byte('_'), sub[0])
	assert.Equal(t, byte(0), sub[15])

	_, err = SubdomainV1("a-subdomain-name-that-is-too-long")
	assert.ErrorIs(t, err, ErrCapacity)
}

func TestMessageV1MarshalBufferCheck(t *testing.T) {
	msg := &MessageV1{Header: testHeaderV1(1), Body: &FollowUpV1{}}
	short := make([]byte, FollowUpV1Len-1)
	_, err := msg.MarshalTo(short)
	assert.ErrorIs(t, err, ErrCapacity)
}
