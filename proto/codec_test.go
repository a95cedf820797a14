package proto

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req := &DatabaseEngineRequest{RequestID: 42, Text: "SELECT * FROM SYS_TABLES"}
	require.NoError(t, WriteMessage(&buf, req))

	got := &DatabaseEngineRequest{}
	require.NoError(t, ReadMessage(bufio.NewReader(&buf), got))
	require.Equal(t, req, got)
}

func TestResponseRoundTrip(t *testing.T) {
	resp := &DatabaseEngineResponse{
		RequestID: 7,
		Messages: []*StatusMessage{
			{StatusCode: 2001, Text: "Table 'T1' does not exist"},
			{StatusCode: -1, Text: "internal"},
		},
		FreetextMessages: []string{"note"},
		ColumnDescription: []*ColumnDescription{
			{Name: "SYS_TRID", DataType: ColumnDataTypeUInt64},
			{Name: "NAME", DataType: ColumnDataTypeText, IsNullable: true},
		},
		ResponseID:          1,
		ResponseCount:       2,
		HasAffectedRowCount: true,
		AffectedRowCount:    10,
		Tags:                []string{"a", "b"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, resp))

	got := &DatabaseEngineResponse{}
	require.NoError(t, ReadMessage(bufio.NewReader(&buf), got))
	require.Equal(t, resp, got)
}

func TestMultipleMessagesOnStream(t *testing.T) {
	var buf bytes.Buffer
	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, WriteMessage(&buf, &DatabaseEngineRequest{RequestID: i}))
	}
	r := bufio.NewReader(&buf)
	for i := uint64(1); i <= 3; i++ {
		got := &DatabaseEngineRequest{}
		require.NoError(t, ReadMessage(r, got))
		require.Equal(t, i, got.RequestID)
	}
}
