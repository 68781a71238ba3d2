package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/validate", r.URL.Path)
		assert.Equal(t, "Bearer svc-token", r.Header.Get("Authorization"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["access_token"] != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(ValidateResponse{UserID: "GP1", DeviceID: body["device_id"], Roles: []string{"gamer"}})
	}))
	defer srv.Close()

	c := NewAuthServiceClient(srv.URL, "svc-token")

	resp, err := c.ValidateToken(context.Background(), "good", "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "GP1", resp.UserID)
	assert.Equal(t, "dev-1", resp.DeviceID)
	assert.Equal(t, []string{"gamer"}, resp.Roles)

	_, err = c.ValidateToken(context.Background(), "bad", "dev-1")
	assert.ErrorContains(t, err, "401")
}
