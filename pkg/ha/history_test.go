package ha

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHistoryResponse(t *testing.T) {
	body := []byte(`[[{"state":"on","last_changed":"2026-08-20T10:00:00Z"},
		{"state":"off","last_changed":"2026-08-20T11:00:00Z"}]]`)

	entries, err := ParseHistoryResponse(200, "application/json; charset=utf-8", body)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "on", entries[0].State)
	assert.Equal(t, "off", entries[1].State)
}

func TestParseHistoryResponseFlattensEntities(t *testing.T) {
	body := []byte(`[[{"state":"a"}],[{"state":"b"}]]`)
	entries, err := ParseHistoryResponse(200, "application/json", body)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].State)
	assert.Equal(t, "b", entries[1].State)
}

func TestParseHistoryResponseErrors(t *testing.T) {
	_, err := ParseHistoryResponse(503, "application/json", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 503")

	_, err = ParseHistoryResponse(200, "text/html", []byte("<html>"))
	require.Error(t, err)

	_, err = ParseHistoryResponse(200, "application/json", []byte("{broken"))
	require.Error(t, err)
}

func TestParseHistoryResponseIdempotent(t *testing.T) {
	body := []byte(`[[{"state":"on"}]]`)
	first, err1 := ParseHistoryResponse(200, "application/json", body)
	second, err2 := ParseHistoryResponse(200, "application/json", body)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, first, second)
}

func TestWebsocketURL(t *testing.T) {
	c := NewClient("http://ha.local:8123/", "tok", 0)
	assert.Equal(t, "ws://ha.local:8123/api/websocket", c.WebsocketURL())

	c = NewClient("https://ha.example.com", "tok", 0)
	assert.Equal(t, "wss://ha.example.com/api/websocket", c.WebsocketURL())
}
