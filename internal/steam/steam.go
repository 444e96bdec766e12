// Package steam defines the boundary to the Steam connector: session
// establishment, license/product metadata, and CDN manifest retrieval.
// The wire protocol, CDN transport, and manifest decryption live behind
// the Client interface; this package only carries the types crossing it.
package steam

import (
	"context"
	"fmt"

	"github.com/detiam/DepotManifestGen/internal/manifest"
)

// EResult is the platform's result code for login and RPC outcomes.
type EResult int32

const (
	ResultOK              EResult = 1
	ResultFail            EResult = 2
	ResultInvalidPassword EResult = 5
	ResultAccessDenied    EResult = 15
	ResultExpired         EResult = 27
	ResultTryAnotherCM    EResult = 48
)

func (r EResult) String() string {
	switch r {
	case ResultOK:
		return "OK"
	case ResultFail:
		return "Fail"
	case ResultInvalidPassword:
		return "InvalidPassword"
	case ResultAccessDenied:
		return "AccessDenied"
	case ResultExpired:
		return "Expired"
	case ResultTryAnotherCM:
		return "TryAnotherCM"
	default:
		return fmt.Sprintf("EResult(%d)", int32(r))
	}
}

// AuthError reports a failed login attempt with the platform's result code.
type AuthError struct {
	Result EResult
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("login failure: %s", e.Result)
}

// Retryable reports whether the same login call may simply be retried
// against another connection manager.
func (e *AuthError) Retryable() bool {
	return e.Result == ResultTryAnotherCM
}

// TokenExpired reports whether the cached refresh token is likely stale
// and a fresh password login should be attempted.
func (e *AuthError) TokenExpired() bool {
	return e.Result == ResultAccessDenied || e.Result == ResultInvalidPassword || e.Result == ResultExpired
}

// Session is an authenticated handle returned by Login.
type Session struct {
	SteamID      uint64
	Username     string
	RefreshToken string // possibly rotated by the connector
}

// License is one entitlement row from the account.
type License struct {
	PackageID   uint32
	AccessToken uint64
}

// PackageRef identifies a package for a product-info query.
type PackageRef struct {
	PackageID   uint32
	AccessToken uint64
}

// PackageInfo is the billing-relevant slice of package metadata.
type PackageInfo struct {
	PackageID   uint32
	BillingType BillingType
	AppIDs      []uint32
	DepotIDs    []uint32
}

// AppInfo is the display slice of app metadata used by info mode.
type AppInfo struct {
	AppID uint32
	Name  string
	Type  string
}

// DepotInfo carries per-depot attributes used for filtering.
type DepotInfo struct {
	DepotID       uint32
	SharedInstall bool
}

// DepotFilter decides whether a depot's manifests should be fetched.
type DepotFilter func(DepotInfo) bool

// RawManifest is an encrypted-filename manifest as handed over by the
// CDN side of the connector. Payload is opaque until DecryptFilenames.
type RawManifest struct {
	AppID   uint32
	DepotID uint32
	GID     uint64
	Payload []byte
}

// ManifestIter yields raw manifests for one app. It is finite,
// one-pass, and non-restartable: Next returns io.EOF after the last
// manifest and must not be called again.
type ManifestIter interface {
	Next(ctx context.Context) (*RawManifest, error)
}

// Client is the connector boundary. All calls block; every method
// honors ctx cancellation.
type Client interface {
	// Login establishes a session. refreshToken may be empty, in which
	// case username/password are used and a fresh token is returned on
	// the session.
	Login(ctx context.Context, username, password, refreshToken string, loginID uint32) (*Session, error)

	// Licenses returns the account's entitlement rows.
	Licenses(ctx context.Context) ([]License, error)

	// PackageInfo resolves package metadata for the given refs.
	PackageInfo(ctx context.Context, refs []PackageRef) (map[uint32]PackageInfo, error)

	// AppInfo resolves display metadata for the given app ids.
	AppInfo(ctx context.Context, appIDs []uint32) (map[uint32]AppInfo, error)

	// OwnedIDs returns the set of app and depot ids the session's
	// licenses grant access to.
	OwnedIDs(ctx context.Context) (apps, depots map[uint32]bool, err error)

	// Manifests yields the current manifest of every depot of appID
	// accepted by filter.
	Manifests(ctx context.Context, appID uint32, filter DepotFilter) (ManifestIter, error)

	// WorkshopManifest fetches the manifest for a single workshop item.
	WorkshopManifest(ctx context.Context, itemID uint64) (*RawManifest, error)

	// DepotKey fetches the depot's symmetric key.
	DepotKey(ctx context.Context, appID, depotID uint32) ([]byte, error)

	// DecryptFilenames decrypts the raw manifest's filenames with key
	// and returns the decoded manifest. The result is not yet
	// normalized; entry paths may carry trailing padding.
	DecryptFilenames(raw *RawManifest, key []byte) (*manifest.Manifest, error)

	// Close tears down the session and the connector.
	Close() error
}
