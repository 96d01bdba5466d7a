package esign

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSubmission(t *testing.T) {
	var got SubmissionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/submissions", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Auth-Token"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`[{"id": 9, "submission_id": 501, "slug": "abc", "embed_src": "https://docuseal.test/s/abc"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", time.Second, 0)
	sub, err := c.CreateSubmission(context.Background(), "852440", []Submitter{{
		Role:   "First Party",
		Email:  "dr@example.com",
		Fields: []Field{{Name: "Patient Name", DefaultValue: "Jane Doe"}},
	}})
	require.NoError(t, err)

	assert.Equal(t, int64(501), sub.ID)
	assert.Equal(t, "https://docuseal.test/s/abc", sub.EmbedSrc)
	assert.Equal(t, "852440", got.TemplateID)
	assert.False(t, got.SendEmail)
	require.Len(t, got.Submitters, 1)
	assert.Equal(t, "Jane Doe", got.Submitters[0].Fields[0].DefaultValue)
}

func TestGetSubmissionAndTemplateFields(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/submissions/501", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": 501, "status": "pending"}`))
	})
	mux.HandleFunc("/templates/852440", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": 852440, "fields": [{"name": "Patient Name"}, {"name": ""}, {"name": "Check: POS-11"}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := NewClient(srv.URL+"/", "secret", time.Second, 0)

	sub, err := c.GetSubmission(context.Background(), 501)
	require.NoError(t, err)
	assert.Equal(t, "pending", sub.Status)

	fields, err := c.TemplateFields(context.Background(), "852440")
	require.NoError(t, err)
	assert.Equal(t, []string{"Patient Name", "Check: POS-11"}, fields)

	_, err = c.TemplateFields(context.Background(), "000")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestServerErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"template is archived"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "k", time.Second, 0).CreateSubmission(context.Background(), "1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}
