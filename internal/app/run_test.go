package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/detiam/DepotManifestGen/internal/audit"
	"github.com/detiam/DepotManifestGen/internal/keystore"
	"github.com/detiam/DepotManifestGen/internal/manifest"
	"github.com/detiam/DepotManifestGen/internal/steam"
	"github.com/detiam/DepotManifestGen/internal/util"
)

func sha(b byte) (out [20]byte) {
	for i := range out {
		out[i] = b
	}
	return out
}

func depotManifest(appID, depotID uint32, gid uint64, paths ...string) *manifest.Manifest {
	m := &manifest.Manifest{AppID: appID, DepotID: depotID, GID: gid, CreationTime: 1700000000}
	for i, p := range paths {
		m.Entries = append(m.Entries, manifest.FileEntry{
			Path: p,
			Size: 10,
			Chunks: []manifest.Chunk{
				{SHA: sha(byte(i + 1)), UncompressedSize: 10, CompressedSize: 5},
			},
		})
	}
	return m
}

func newMock() *steam.MockClient {
	return &steam.MockClient{
		Token: "fresh-token",
		Lics:  []steam.License{{PackageID: 100}},
		Packages: map[uint32]steam.PackageInfo{
			100: {
				PackageID:   100,
				BillingType: steam.BillingBillOnceOnly,
				AppIDs:      []uint32{480},
				DepotIDs:    []uint32{481, 482},
			},
		},
		Apps: map[uint32]steam.MockApp{
			480: {
				Info: steam.AppInfo{AppID: 480, Name: "Spacewar", Type: "game"},
				Depots: []steam.MockDepot{
					{
						Info:     steam.DepotInfo{DepotID: 481},
						Key:      []byte{0xde, 0xad, 0xbe, 0xef},
						Manifest: depotManifest(480, 481, 200, "game/bin\x00\x00", "readme.txt"),
					},
					{
						Info:     steam.DepotInfo{DepotID: 482, SharedInstall: true},
						Key:      []byte{0x01, 0x02},
						Manifest: depotManifest(480, 482, 300, "shared/redist.exe"),
					},
				},
			},
		},
		OwnedApps:   map[uint32]bool{480: true},
		OwnedDepots: map[uint32]bool{481: true, 482: true},
	}
}

func baseOptions(t *testing.T) Options {
	t.Helper()
	dir := t.TempDir()
	return Options{
		Username:       "alice",
		CredentialFile: filepath.Join(dir, "refresh_tokens.json"),
		SavePath:       filepath.Join(dir, "out"),
		Log:            zerolog.Nop(),
	}
}

func TestRunSavesManifestAndKey(t *testing.T) {
	mock := newMock()
	opts := baseOptions(t)

	require.NoError(t, Run(context.Background(), mock, opts))

	depotDir := filepath.Join(opts.SavePath, "depots", "480")
	m, err := manifest.ReadFile(filepath.Join(depotDir, "481_200.manifest"))
	require.NoError(t, err)
	assert.Equal(t, "game/bin", m.Entries[0].Path, "padding stripped before write")
	assert.Nil(t, m.Signature)

	store := keystore.Load(filepath.Join(depotDir, keystore.StoreName))
	assert.Equal(t, map[uint32]string{481: "deadbeef"}, store.Depots)
}

func TestRunSkipsSharedInstallByDefault(t *testing.T) {
	mock := newMock()
	opts := baseOptions(t)

	require.NoError(t, Run(context.Background(), mock, opts))
	_, err := os.Stat(filepath.Join(opts.SavePath, "depots", "480", "482_300.manifest"))
	assert.True(t, os.IsNotExist(err))

	opts2 := baseOptions(t)
	opts2.SharedInstall = true
	require.NoError(t, Run(context.Background(), newMock(), opts2))
	_, err = os.Stat(filepath.Join(opts2.SavePath, "depots", "480", "482_300.manifest"))
	assert.NoError(t, err)
}

func TestRunRemoveOldPrunesSuperseded(t *testing.T) {
	mock := newMock()
	opts := baseOptions(t)
	opts.RemoveOld = true

	depotDir := filepath.Join(opts.SavePath, "depots", "480")
	require.NoError(t, os.MkdirAll(depotDir, 0o755))
	old := filepath.Join(depotDir, "481_100.manifest")
	require.NoError(t, os.WriteFile(old, []byte("old"), 0o644))

	require.NoError(t, Run(context.Background(), mock, opts))

	_, err := os.Stat(old)
	assert.True(t, os.IsNotExist(err), "superseded manifest removed")
	_, err = os.Stat(filepath.Join(depotDir, "481_200.manifest"))
	assert.NoError(t, err)
}

func TestRunExistingManifestSkipsPipeline(t *testing.T) {
	mock := newMock()
	opts := baseOptions(t)

	require.NoError(t, Run(context.Background(), mock, opts))

	// Second run: force key fetches to fail; the existing file must
	// short-circuit before any key fetch happens.
	mock2 := newMock()
	mock2.KeyErr = errors.New("network down")
	require.NoError(t, Run(context.Background(), mock2, opts))
}

func TestRunLoginRetriesTryAnotherCM(t *testing.T) {
	mock := newMock()
	mock.LoginScript = []steam.EResult{steam.ResultTryAnotherCM, steam.ResultOK}
	opts := baseOptions(t)

	require.NoError(t, Run(context.Background(), mock, opts))
	assert.Equal(t, 2, mock.LoginAttempt)
}

func TestRunStaleTokenRepromptsPassword(t *testing.T) {
	opts := baseOptions(t)
	require.NoError(t, os.WriteFile(opts.CredentialFile, []byte(`{"alice":"stale-token"}`), 0o600))

	prompted := false
	opts.PromptPassword = func() (string, error) {
		prompted = true
		return "hunter2", nil
	}

	mock := newMock()
	mock.LoginScript = []steam.EResult{steam.ResultAccessDenied, steam.ResultOK}

	require.NoError(t, Run(context.Background(), mock, opts))
	assert.True(t, prompted, "stale token must trigger a password prompt")

	// The regenerated token is persisted.
	data, err := os.ReadFile(opts.CredentialFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "fresh-token")
}

func TestRunAuthFailureIsFatal(t *testing.T) {
	mock := newMock()
	mock.LoginScript = []steam.EResult{steam.ResultInvalidPassword}
	opts := baseOptions(t)

	err := Run(context.Background(), mock, opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrAuthFailed)
}

func TestRunNoLicensesIsFatal(t *testing.T) {
	mock := newMock()
	mock.Lics = nil
	opts := baseOptions(t)

	err := Run(context.Background(), mock, opts)
	assert.ErrorIs(t, err, util.ErrNoLicenses)
}

func TestRunFreePackagesYieldNoProducts(t *testing.T) {
	mock := newMock()
	pkg := mock.Packages[100]
	pkg.BillingType = steam.BillingFreeOnDemand
	mock.Packages[100] = pkg
	opts := baseOptions(t)

	err := Run(context.Background(), mock, opts)
	assert.ErrorIs(t, err, util.ErrNoProducts)
}

func TestRunUnownedAppSkipped(t *testing.T) {
	mock := newMock()
	mock.OwnedApps = map[uint32]bool{}
	mock.OwnedDepots = map[uint32]bool{}
	opts := baseOptions(t)

	var logged bytes.Buffer
	opts.Log = zerolog.New(&logged)

	require.NoError(t, Run(context.Background(), mock, opts))
	_, err := os.Stat(filepath.Join(opts.SavePath, "depots"))
	assert.True(t, os.IsNotExist(err), "nothing written for unowned apps")
	assert.Contains(t, logged.String(), util.ErrNotOwned.Error())
}

func TestRunOnlyInfo(t *testing.T) {
	mock := newMock()
	opts := baseOptions(t)
	opts.OnlyInfo = true

	var lines []steam.AppInfo
	opts.InfoLine = func(info steam.AppInfo) { lines = append(lines, info) }

	require.NoError(t, Run(context.Background(), mock, opts))
	require.Len(t, lines, 1)
	assert.Equal(t, "Spacewar", lines[0].Name)

	_, err := os.Stat(filepath.Join(opts.SavePath, "depots"))
	assert.True(t, os.IsNotExist(err), "info mode writes nothing")
}

func TestRunAuditEntries(t *testing.T) {
	mock := newMock()
	opts := baseOptions(t)

	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	logger, err := audit.NewFileLogger(logPath)
	require.NoError(t, err)
	opts.Audit = logger

	require.NoError(t, Run(context.Background(), mock, opts))

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"operation":"grab"`)
	assert.Contains(t, string(data), `"depot_id":481`)
	assert.Contains(t, string(data), logger.RunID())
}

func TestRunWorkshopItems(t *testing.T) {
	mock := newMock()
	mock.Workshop = map[uint64]*steam.RawManifest{
		3439745927: {AppID: 480, DepotID: 481, GID: 200},
	}
	opts := baseOptions(t)
	opts.WorkshopIDs = []uint64{3439745927}

	require.NoError(t, Run(context.Background(), mock, opts))

	_, err := manifest.ReadFile(filepath.Join(opts.SavePath, "workshop", "3439745927", "depots", "480", "481_200.manifest"))
	assert.NoError(t, err)
}

func TestRunExplicitAppList(t *testing.T) {
	mock := newMock()
	opts := baseOptions(t)
	opts.AppIDs = []uint32{9999} // not owned

	require.NoError(t, Run(context.Background(), mock, opts))
	_, err := os.Stat(filepath.Join(opts.SavePath, "depots"))
	assert.True(t, os.IsNotExist(err))
}
