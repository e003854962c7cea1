package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"station-core/internal/getreal"
	"station-core/internal/server"
	"station-core/pkg/errno"
)

func TestVerifyRoutesForwardToRemote(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody = nil
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		if gotBody["tag"] == "broken" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"verified":true}`))
	}))
	defer remote.Close()

	client := getreal.NewClient(remote.URL, "svc", "proj", remote.Client())
	r := server.NewHTTPRouter(&fakeStation{}, client)

	tests := []struct {
		name     string
		path     string
		body     gin.H
		wantPath string
		wantCode int
	}{
		{"did", "/api/v1/verify/did", gin.H{"address": actorAddr.Hex(), "tag": "demo"}, "/v1/verify/did", errno.OK.Code},
		{"storage", "/api/v1/verify/storage", gin.H{"address": actorAddr.Hex(), "tag": "demo"}, "/v1/data/verify", errno.OK.Code},
		{"storage count", "/api/v1/verify/storage", gin.H{"address": actorAddr.Hex(), "tag": "demo", "expected_count": 3}, "/v1/data/verify-count", errno.OK.Code},
		{"upstream failure", "/api/v1/verify/did", gin.H{"address": actorAddr.Hex(), "tag": "broken"}, "/v1/verify/did", errno.ErrUpstream.Code},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, r, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, resp.Code, resp.Msg)
			assert.Equal(t, tt.wantPath, gotPath)
			if tt.wantCode == errno.OK.Code {
				assert.JSONEq(t, `{"verified":true}`, string(resp.Data))
			}
			if n, ok := tt.body["expected_count"]; ok {
				require.Contains(t, gotBody, "expected_count")
				assert.EqualValues(t, n, gotBody["expected_count"])
			}
		})
	}
}

func TestVerifyRoutesAbsentWithoutRemote(t *testing.T) {
	r := server.NewHTTPRouter(&fakeStation{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/verify/did", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
