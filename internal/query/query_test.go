package query

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, status int, body string, seen *Request) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/query", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSend_Success(t *testing.T) {
	var seen Request
	srv := newServer(t, http.StatusOK, `{"answer":"Sunny"}`, &seen)

	c := NewClient(srv.URL, "session-abc", srv.Client())
	resp, err := c.Send(context.Background(), "what is the weather")
	require.NoError(t, err)
	require.Equal(t, "Sunny", resp.Answer)
	require.Equal(t, Request{Q: "what is the weather", SessionID: "session-abc"}, seen)
}

func TestSend_ErrorFieldOnly(t *testing.T) {
	srv := newServer(t, http.StatusInternalServerError, `{"error":"index not loaded"}`, nil)

	_, err := NewClient(srv.URL, "", srv.Client()).Send(context.Background(), "q")
	require.Error(t, err)
	require.Equal(t, "index not loaded", err.Error())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusInternalServerError, apiErr.Status)
}

func TestSend_DetailPreferredOverError(t *testing.T) {
	srv := newServer(t, http.StatusBadRequest, `{"detail":"missing q","error":"bad"}`, nil)

	_, err := NewClient(srv.URL, "", srv.Client()).Send(context.Background(), "q")
	require.EqualError(t, err, "missing q")
}

func TestSend_GenericStatusMessage(t *testing.T) {
	srv := newServer(t, http.StatusBadGateway, `{}`, nil)

	_, err := NewClient(srv.URL, "", srv.Client()).Send(context.Background(), "q")
	require.EqualError(t, err, "Server returned 502")
}

func TestSend_MalformedBody(t *testing.T) {
	srv := newServer(t, http.StatusInternalServerError, `<html>boom</html>`, nil)

	_, err := NewClient(srv.URL, "", srv.Client()).Send(context.Background(), "q")
	require.Error(t, err)
	require.Contains(t, err.Error(), "<html>boom</html>")
}

func TestSend_EmptyMalformedBody(t *testing.T) {
	srv := newServer(t, http.StatusServiceUnavailable, ``, nil)

	_, err := NewClient(srv.URL, "", srv.Client()).Send(context.Background(), "q")
	require.EqualError(t, err, "Server returned 503")
}

func TestSend_NonJSONSuccessIsError(t *testing.T) {
	srv := newServer(t, http.StatusOK, `plain text`, nil)

	_, err := NewClient(srv.URL, "", srv.Client()).Send(context.Background(), "q")
	require.EqualError(t, err, "plain text")
}

func TestSend_SingleAttempt(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", srv.Client()).Send(context.Background(), "q")
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestSend_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, "", nil).Send(context.Background(), "q")
	require.Error(t, err)
	require.Contains(t, err.Error(), "post query")
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("http://backend:8000", "", nil)
	require.Equal(t, "http://backend:8000/api/query", c.URL())
	require.True(t, strings.HasPrefix(c.SessionID(), "session-"))

	other := NewClient("http://backend:8000/", "", nil)
	require.Equal(t, "http://backend:8000/api/query", other.URL())
	require.NotEqual(t, c.SessionID(), other.SessionID())
}
