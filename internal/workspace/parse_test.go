package workspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHeader(t *testing.T) {
	tests := []struct {
		name    string
		raw     RawHeader
		want    int64
		wantErr bool
	}{
		{name: "millis", raw: RawHeader{ID: "m1612345678901"}, want: 1612345678},
		{name: "no prefix", raw: RawHeader{ID: "1612345678901"}, want: 1612345678},
		{name: "small", raw: RawHeader{ID: "m100999"}, want: 100},
		{name: "too short", raw: RawHeader{ID: "m123"}, wantErr: true},
		{name: "empty", raw: RawHeader{ID: ""}, wantErr: true},
		{name: "letters", raw: RawHeader{ID: "mabc1234567"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeHeader(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.StartTime)
			assert.Equal(t, tt.raw.ID, got.ID)
		})
	}
}

func TestDecodeHeaderKeepsJoinControlID(t *testing.T) {
	h, err := DecodeHeader(RawHeader{ID: "m200000", JoinControlID: "join-call-3f2b1c4d-aaaa"})
	require.NoError(t, err)
	assert.Equal(t, "join-call-3f2b1c4d-aaaa", h.CorrelationToken)
}

func TestExtractCorrelationToken(t *testing.T) {
	tests := []struct {
		name      string
		trackData string
		want      string
	}{
		{
			name:      "embedded in json",
			trackData: `{"scenario":"prejoin","correlationId":"3F2B1C4D-1111-2222-3333-444455556666","x":1}`,
			want:      "3f2b1c4d-1111-2222-3333-444455556666",
		},
		{
			name:      "first of two",
			trackData: "a 0a0a0a0a-0000-0000-0000-000000000001 b 0b0b0b0b-0000-0000-0000-000000000002",
			want:      "0a0a0a0a-0000-0000-0000-000000000001",
		},
		{name: "absent", trackData: `{"scenario":"prejoin"}`, want: ""},
		{name: "empty", trackData: "", want: ""},
		{name: "truncated", trackData: "3f2b1c4d-1111-2222-3333-4444", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCorrelationToken(tt.trackData))
		})
	}
}

func TestTokenMatches(t *testing.T) {
	token := "3f2b1c4d-1111-2222-3333-444455556666"

	assert.False(t, TokenMatches("calling-join-"+token, ""), "empty active token never matches")
	assert.True(t, TokenMatches("calling-join-"+token, token))
	assert.True(t, TokenMatches("CALLING-JOIN-3F2B1C4D-1111-2222-3333-444455556666", token))
	assert.False(t, TokenMatches("calling-join-0a0a0a0a-0000-0000-0000-000000000001", token))
}

func TestParseRosterLabel(t *testing.T) {
	tests := []struct {
		label string
		want  int
	}{
		{"Participants 3", 3},
		{"In this meeting (12)", 12},
		{"Attendees", 0},
		{"", 0},
		{"2 of 5 present", 7},
		{"-4 people", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseRosterLabel(tt.label), tt.label)
	}
}

func TestRosterTotal(t *testing.T) {
	assert.Equal(t, 7, Roster{Participants: 4, Attendees: 3}.Total())
}
