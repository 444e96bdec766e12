package steam

import (
	"context"
	"fmt"

	"github.com/detiam/DepotManifestGen/internal/manifest"
)

// MockDepot is one depot served by the mock connector.
type MockDepot struct {
	Info     DepotInfo
	Key      []byte
	Manifest *manifest.Manifest // served as-is by DecryptFilenames
}

// MockApp is one app served by the mock connector.
type MockApp struct {
	Info   AppInfo
	Depots []MockDepot
}

// MockClient is an in-memory connector for tests. Login results are
// consumed in order; once the script is exhausted logins succeed.
type MockClient struct {
	LoginScript  []EResult // EResult per attempt; ResultOK succeeds
	Token        string    // refresh token handed out on success
	Lics         []License
	Packages     map[uint32]PackageInfo
	Apps         map[uint32]MockApp
	Workshop     map[uint64]*RawManifest
	OwnedApps    map[uint32]bool
	OwnedDepots  map[uint32]bool
	KeyErr       error // forced error for DepotKey
	LoginAttempt int
	Closed       bool
}

var _ Client = (*MockClient)(nil)

func (m *MockClient) Login(ctx context.Context, username, password, refreshToken string, loginID uint32) (*Session, error) {
	attempt := m.LoginAttempt
	m.LoginAttempt++
	if attempt < len(m.LoginScript) && m.LoginScript[attempt] != ResultOK {
		return nil, &AuthError{Result: m.LoginScript[attempt]}
	}
	return &Session{SteamID: 76561198000000000, Username: username, RefreshToken: m.Token}, nil
}

func (m *MockClient) Licenses(ctx context.Context) ([]License, error) {
	return m.Lics, nil
}

func (m *MockClient) PackageInfo(ctx context.Context, refs []PackageRef) (map[uint32]PackageInfo, error) {
	out := make(map[uint32]PackageInfo)
	for _, r := range refs {
		if p, ok := m.Packages[r.PackageID]; ok {
			out[r.PackageID] = p
		}
	}
	return out, nil
}

func (m *MockClient) AppInfo(ctx context.Context, appIDs []uint32) (map[uint32]AppInfo, error) {
	out := make(map[uint32]AppInfo)
	for _, id := range appIDs {
		if a, ok := m.Apps[id]; ok {
			out[id] = a.Info
		}
	}
	return out, nil
}

func (m *MockClient) OwnedIDs(ctx context.Context) (map[uint32]bool, map[uint32]bool, error) {
	return m.OwnedApps, m.OwnedDepots, nil
}

func (m *MockClient) Manifests(ctx context.Context, appID uint32, filter DepotFilter) (ManifestIter, error) {
	app, ok := m.Apps[appID]
	if !ok {
		return nil, fmt.Errorf("mock: unknown app %d", appID)
	}
	var raws []*RawManifest
	for _, d := range app.Depots {
		if filter != nil && !filter(d.Info) {
			continue
		}
		raws = append(raws, &RawManifest{AppID: appID, DepotID: d.Info.DepotID, GID: d.Manifest.GID})
	}
	return &sliceIter{raws: raws}, nil
}

func (m *MockClient) WorkshopManifest(ctx context.Context, itemID uint64) (*RawManifest, error) {
	raw, ok := m.Workshop[itemID]
	if !ok {
		return nil, fmt.Errorf("mock: unknown workshop item %d", itemID)
	}
	return raw, nil
}

func (m *MockClient) DepotKey(ctx context.Context, appID, depotID uint32) ([]byte, error) {
	if m.KeyErr != nil {
		return nil, m.KeyErr
	}
	if d := m.findDepot(appID, depotID); d != nil {
		return d.Key, nil
	}
	return nil, fmt.Errorf("mock: no key for depot %d", depotID)
}

func (m *MockClient) DecryptFilenames(raw *RawManifest, key []byte) (*manifest.Manifest, error) {
	if d := m.findDepot(raw.AppID, raw.DepotID); d != nil {
		cp := *d.Manifest
		cp.Entries = append([]manifest.FileEntry(nil), d.Manifest.Entries...)
		return &cp, nil
	}
	return nil, fmt.Errorf("mock: no manifest for depot %d", raw.DepotID)
}

func (m *MockClient) Close() error {
	m.Closed = true
	return nil
}

func (m *MockClient) findDepot(appID, depotID uint32) *MockDepot {
	app, ok := m.Apps[appID]
	if !ok {
		return nil
	}
	for i := range app.Depots {
		if app.Depots[i].Info.DepotID == depotID {
			return &app.Depots[i]
		}
	}
	return nil
}
