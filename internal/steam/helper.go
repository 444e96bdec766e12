package steam

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/detiam/DepotManifestGen/internal/manifest"
	"github.com/detiam/DepotManifestGen/internal/util"
)

// HelperOptions configures the connector subprocess.
type HelperOptions struct {
	// Path is the helper executable. Defaults to "dmg-helper" on PATH.
	Path string
	// APIHost selects the platform endpoint group ("Public", "China",
	// or a custom host string).
	APIHost string
	// UseWebsocket forces the websocket transport.
	UseWebsocket bool
	// UseHTTP disables TLS-over-TCP in favor of plain HTTP transport.
	UseHTTP bool
}

// HelperClient implements Client by driving an external connector
// process over a line-delimited JSON RPC on stdin/stdout. The helper
// owns the session, wire protocol, CDN transport, and all manifest
// cryptography; this side only marshals calls. Binary values cross the
// boundary base64-encoded.
type HelperClient struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	mu     sync.Mutex
	nextID uint64
}

type helperRequest struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type helperResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *helperError    `json:"error,omitempty"`
}

type helperError struct {
	Message string `json:"message"`
	EResult int32  `json:"eresult,omitempty"`
}

// StartHelper launches the connector process and returns a client bound
// to it. The process is handed the transport options on its command
// line and exits when stdin closes.
func StartHelper(ctx context.Context, opts HelperOptions) (*HelperClient, error) {
	path := opts.Path
	if path == "" {
		path = "dmg-helper"
	}

	args := []string{"serve"}
	if opts.APIHost != "" {
		args = append(args, "--api-host", opts.APIHost)
	}
	if opts.UseWebsocket {
		args = append(args, "--use-websocket")
	}
	if opts.UseHTTP {
		args = append(args, "--use-http")
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("helper stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("helper stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start helper %q: %w", path, err)
	}

	return &HelperClient{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
	}, nil
}

// call performs one request/response exchange. Calls are serialized;
// the pipeline is strictly sequential so there is never more than one
// request in flight.
func (h *HelperClient) call(ctx context.Context, method string, params, result any) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	h.nextID++
	req := helperRequest{ID: h.nextID, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal %s params: %w", method, err)
		}
		req.Params = raw
	}
	line, err := json.Marshal(&req)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}
	line = append(line, '\n')
	if _, err := h.stdin.Write(line); err != nil {
		return fmt.Errorf("%w: write %s: %v", util.ErrHelperProtocol, method, err)
	}

	respLine, err := h.stdout.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("%w: read %s response: %v", util.ErrHelperProtocol, method, err)
	}
	var resp helperResponse
	if err := json.Unmarshal(respLine, &resp); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", util.ErrHelperProtocol, method, err)
	}
	if resp.ID != req.ID {
		return fmt.Errorf("%w: response id %d for request %d", util.ErrHelperProtocol, resp.ID, req.ID)
	}
	if resp.Error != nil {
		if resp.Error.EResult != 0 {
			return &AuthError{Result: EResult(resp.Error.EResult)}
		}
		return fmt.Errorf("%s: %s", method, resp.Error.Message)
	}
	if result != nil {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("%w: decode %s result: %v", util.ErrHelperProtocol, method, err)
		}
	}
	return nil
}

func (h *HelperClient) Login(ctx context.Context, username, password, refreshToken string, loginID uint32) (*Session, error) {
	params := map[string]any{
		"username": username,
		"password": password,
		"login_id": loginID,
	}
	if refreshToken != "" {
		params["refresh_token"] = refreshToken
	}
	var res struct {
		SteamID      uint64 `json:"steam_id"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := h.call(ctx, "login", params, &res); err != nil {
		return nil, err
	}
	return &Session{SteamID: res.SteamID, Username: username, RefreshToken: res.RefreshToken}, nil
}

func (h *HelperClient) Licenses(ctx context.Context) ([]License, error) {
	var res struct {
		Licenses []struct {
			PackageID   uint32 `json:"package_id"`
			AccessToken uint64 `json:"access_token"`
		} `json:"licenses"`
	}
	if err := h.call(ctx, "licenses", nil, &res); err != nil {
		return nil, err
	}
	out := make([]License, 0, len(res.Licenses))
	for _, l := range res.Licenses {
		out = append(out, License{PackageID: l.PackageID, AccessToken: l.AccessToken})
	}
	return out, nil
}

func (h *HelperClient) PackageInfo(ctx context.Context, refs []PackageRef) (map[uint32]PackageInfo, error) {
	params := map[string]any{"packages": refs2params(refs)}
	var res struct {
		Packages []struct {
			PackageID   uint32   `json:"package_id"`
			BillingType uint32   `json:"billing_type"`
			AppIDs      []uint32 `json:"app_ids"`
			DepotIDs    []uint32 `json:"depot_ids"`
		} `json:"packages"`
	}
	if err := h.call(ctx, "package_info", params, &res); err != nil {
		return nil, err
	}
	out := make(map[uint32]PackageInfo, len(res.Packages))
	for _, p := range res.Packages {
		out[p.PackageID] = PackageInfo{
			PackageID:   p.PackageID,
			BillingType: BillingType(p.BillingType),
			AppIDs:      p.AppIDs,
			DepotIDs:    p.DepotIDs,
		}
	}
	return out, nil
}

func refs2params(refs []PackageRef) []map[string]any {
	out := make([]map[string]any, 0, len(refs))
	for _, r := range refs {
		out = append(out, map[string]any{
			"package_id":   r.PackageID,
			"access_token": r.AccessToken,
		})
	}
	return out
}

func (h *HelperClient) AppInfo(ctx context.Context, appIDs []uint32) (map[uint32]AppInfo, error) {
	var res struct {
		Apps []struct {
			AppID uint32 `json:"app_id"`
			Name  string `json:"name"`
			Type  string `json:"type"`
		} `json:"apps"`
	}
	if err := h.call(ctx, "app_info", map[string]any{"app_ids": appIDs}, &res); err != nil {
		return nil, err
	}
	out := make(map[uint32]AppInfo, len(res.Apps))
	for _, a := range res.Apps {
		out[a.AppID] = AppInfo{AppID: a.AppID, Name: a.Name, Type: a.Type}
	}
	return out, nil
}

func (h *HelperClient) OwnedIDs(ctx context.Context) (map[uint32]bool, map[uint32]bool, error) {
	var res struct {
		AppIDs   []uint32 `json:"app_ids"`
		DepotIDs []uint32 `json:"depot_ids"`
	}
	if err := h.call(ctx, "owned_ids", nil, &res); err != nil {
		return nil, nil, err
	}
	apps := make(map[uint32]bool, len(res.AppIDs))
	for _, id := range res.AppIDs {
		apps[id] = true
	}
	depots := make(map[uint32]bool, len(res.DepotIDs))
	for _, id := range res.DepotIDs {
		depots[id] = true
	}
	return apps, depots, nil
}

// helperManifestHandle identifies one raw manifest held on the helper
// side. The payload never crosses the boundary; decryption happens in
// the helper against the handle.
type helperManifestHandle struct {
	AppID         uint32 `json:"app_id"`
	DepotID       uint32 `json:"depot_id"`
	GID           uint64 `json:"gid,string"`
	SharedInstall bool   `json:"shared_install"`
}

func (h *HelperClient) Manifests(ctx context.Context, appID uint32, filter DepotFilter) (ManifestIter, error) {
	var res struct {
		Manifests []helperManifestHandle `json:"manifests"`
	}
	if err := h.call(ctx, "get_manifests", map[string]any{"app_id": appID}, &res); err != nil {
		return nil, err
	}

	var raws []*RawManifest
	for _, m := range res.Manifests {
		if filter != nil && !filter(DepotInfo{DepotID: m.DepotID, SharedInstall: m.SharedInstall}) {
			continue
		}
		raws = append(raws, &RawManifest{AppID: m.AppID, DepotID: m.DepotID, GID: m.GID})
	}
	return &sliceIter{raws: raws}, nil
}

func (h *HelperClient) WorkshopManifest(ctx context.Context, itemID uint64) (*RawManifest, error) {
	var res struct {
		Manifest helperManifestHandle `json:"manifest"`
	}
	if err := h.call(ctx, "workshop_manifest", map[string]any{"item_id": itemID}, &res); err != nil {
		return nil, err
	}
	m := res.Manifest
	return &RawManifest{AppID: m.AppID, DepotID: m.DepotID, GID: m.GID}, nil
}

func (h *HelperClient) DepotKey(ctx context.Context, appID, depotID uint32) ([]byte, error) {
	var res struct {
		KeyB64 string `json:"key_b64"`
	}
	params := map[string]any{"app_id": appID, "depot_id": depotID}
	if err := h.call(ctx, "depot_key", params, &res); err != nil {
		return nil, err
	}
	key, err := base64.StdEncoding.DecodeString(res.KeyB64)
	if err != nil {
		return nil, fmt.Errorf("%w: depot key encoding: %v", util.ErrHelperProtocol, err)
	}
	return key, nil
}

// helperEntry and helperChunk are the decoded-manifest wire shapes.
type helperChunk struct {
	SHAHex       string `json:"sha"`
	CRC          uint32 `json:"crc"`
	Offset       uint64 `json:"offset"`
	CbOriginal   uint32 `json:"cb_original"`
	CbCompressed uint32 `json:"cb_compressed"`
}

type helperEntry struct {
	Path       string        `json:"path"`
	Size       uint64        `json:"size"`
	Flags      uint32        `json:"flags"`
	SHAContent string        `json:"sha_content"`
	Chunks     []helperChunk `json:"chunks"`
}

func (h *HelperClient) DecryptFilenames(raw *RawManifest, key []byte) (*manifest.Manifest, error) {
	params := map[string]any{
		"app_id":   raw.AppID,
		"depot_id": raw.DepotID,
		"gid":      fmt.Sprint(raw.GID),
		"key_b64":  base64.StdEncoding.EncodeToString(key),
	}
	var res struct {
		CreationTime   uint64        `json:"creation_time"`
		OriginalSize   uint64        `json:"original_size"`
		CompressedSize uint64        `json:"compressed_size"`
		UniqueChunks   uint32        `json:"unique_chunks"`
		SignatureB64   string        `json:"signature_b64"`
		Entries        []helperEntry `json:"entries"`
	}
	if err := h.call(context.Background(), "decrypt_filenames", params, &res); err != nil {
		return nil, err
	}

	m := &manifest.Manifest{
		AppID:          raw.AppID,
		DepotID:        raw.DepotID,
		GID:            raw.GID,
		CreationTime:   res.CreationTime,
		OriginalSize:   res.OriginalSize,
		CompressedSize: res.CompressedSize,
		UniqueChunks:   res.UniqueChunks,
	}
	if res.SignatureB64 != "" {
		sig, err := base64.StdEncoding.DecodeString(res.SignatureB64)
		if err != nil {
			return nil, fmt.Errorf("%w: signature encoding: %v", util.ErrHelperProtocol, err)
		}
		m.Signature = sig
	}
	for _, e := range res.Entries {
		fe := manifest.FileEntry{
			Path:  e.Path,
			Size:  e.Size,
			Flags: e.Flags,
		}
		if err := decodeSHA(e.SHAContent, &fe.SHAContent); err != nil {
			return nil, err
		}
		for _, c := range e.Chunks {
			ch := manifest.Chunk{
				CRC:              c.CRC,
				Offset:           c.Offset,
				UncompressedSize: c.CbOriginal,
				CompressedSize:   c.CbCompressed,
			}
			if err := decodeSHA(c.SHAHex, &ch.SHA); err != nil {
				return nil, err
			}
			fe.Chunks = append(fe.Chunks, ch)
		}
		m.Entries = append(m.Entries, fe)
	}
	return m, nil
}

func decodeSHA(hexStr string, dst *[20]byte) error {
	b, err := util.HexDecode(hexStr)
	if err != nil || len(b) != len(dst) {
		return fmt.Errorf("%w: bad sha field %q", util.ErrHelperProtocol, hexStr)
	}
	copy(dst[:], b)
	return nil
}

// Close asks the helper to log out, closes its stdin, and reaps it.
func (h *HelperClient) Close() error {
	_ = h.call(context.Background(), "logout", nil, nil)
	if err := h.stdin.Close(); err != nil {
		return err
	}
	return h.cmd.Wait()
}

// sliceIter adapts a fetched manifest list to the one-pass iterator
// contract.
type sliceIter struct {
	raws []*RawManifest
	pos  int
	done bool
}

func (it *sliceIter) Next(ctx context.Context) (*RawManifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.done || it.pos >= len(it.raws) {
		it.done = true
		return nil, io.EOF
	}
	m := it.raws[it.pos]
	it.pos++
	return m, nil
}
