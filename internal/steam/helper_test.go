package steam

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/detiam/DepotManifestGen/internal/util"
)

// pipeHelper wires a HelperClient to an in-process responder instead of
// a real subprocess.
func pipeHelper(t *testing.T, respond func(req *helperRequest) *helperResponse) *HelperClient {
	t.Helper()

	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	go func() {
		defer respW.Close()
		scan := bufio.NewScanner(reqR)
		for scan.Scan() {
			var req helperRequest
			if err := json.Unmarshal(scan.Bytes(), &req); err != nil {
				return
			}
			resp := respond(&req)
			line, _ := json.Marshal(resp)
			respW.Write(append(line, '\n'))
		}
	}()

	t.Cleanup(func() { reqW.Close() })
	return &HelperClient{stdin: reqW, stdout: bufio.NewReader(respR)}
}

func TestHelperLogin(t *testing.T) {
	h := pipeHelper(t, func(req *helperRequest) *helperResponse {
		require.Equal(t, "login", req.Method)

		var params map[string]any
		require.NoError(t, json.Unmarshal(req.Params, &params))
		assert.Equal(t, "alice", params["username"])
		assert.Equal(t, "cached", params["refresh_token"])

		result, _ := json.Marshal(map[string]any{
			"steam_id":      uint64(76561198000000000),
			"refresh_token": "rotated",
		})
		return &helperResponse{ID: req.ID, Result: result}
	})

	session, err := h.Login(context.Background(), "alice", "", "cached", 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(76561198000000000), session.SteamID)
	assert.Equal(t, "rotated", session.RefreshToken)
}

func TestHelperLoginAuthError(t *testing.T) {
	h := pipeHelper(t, func(req *helperRequest) *helperResponse {
		return &helperResponse{ID: req.ID, Error: &helperError{Message: "denied", EResult: int32(ResultAccessDenied)}}
	})

	_, err := h.Login(context.Background(), "alice", "", "", 0)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, ResultAccessDenied, authErr.Result)
}

func TestHelperDepotKey(t *testing.T) {
	h := pipeHelper(t, func(req *helperRequest) *helperResponse {
		require.Equal(t, "depot_key", req.Method)
		result, _ := json.Marshal(map[string]any{"key_b64": "3q2+7w=="}) // deadbeef
		return &helperResponse{ID: req.ID, Result: result}
	})

	key, err := h.DepotKey(context.Background(), 480, 481)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, key)
}

func TestHelperRejectsMismatchedResponseID(t *testing.T) {
	h := pipeHelper(t, func(req *helperRequest) *helperResponse {
		return &helperResponse{ID: req.ID + 7}
	})

	_, err := h.Licenses(context.Background())
	assert.ErrorIs(t, err, util.ErrHelperProtocol)
}

func TestHelperDecryptFilenames(t *testing.T) {
	h := pipeHelper(t, func(req *helperRequest) *helperResponse {
		require.Equal(t, "decrypt_filenames", req.Method)
		result, _ := json.Marshal(map[string]any{
			"creation_time": 1700000000,
			"entries": []map[string]any{
				{
					"path":        "readme.txt\x00",
					"size":        64,
					"sha_content": "da39a3ee5e6b4b0d3255bfef95601890afd80709",
					"chunks": []map[string]any{
						{"sha": "da39a3ee5e6b4b0d3255bfef95601890afd80709", "cb_original": 64, "cb_compressed": 32},
					},
				},
			},
		})
		return &helperResponse{ID: req.ID, Result: result}
	})

	raw := &RawManifest{AppID: 480, DepotID: 481, GID: 200}
	m, err := h.DecryptFilenames(raw, []byte{0x01})
	require.NoError(t, err)
	assert.Equal(t, uint32(480), m.AppID)
	assert.Equal(t, uint64(200), m.GID)
	require.Len(t, m.Entries, 1)
	assert.Equal(t, "readme.txt\x00", m.Entries[0].Path, "padding survives until Normalize")
	require.Len(t, m.Entries[0].Chunks, 1)
	assert.Equal(t, uint32(64), m.Entries[0].Chunks[0].UncompressedSize)
}
