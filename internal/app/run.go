// Package app orchestrates one download run: resolve a session, select
// products, and pipe every depot manifest through normalize → write →
// key merge → prune.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/detiam/DepotManifestGen/internal/audit"
	"github.com/detiam/DepotManifestGen/internal/credentials"
	"github.com/detiam/DepotManifestGen/internal/keystore"
	"github.com/detiam/DepotManifestGen/internal/manifest"
	"github.com/detiam/DepotManifestGen/internal/steam"
	"github.com/detiam/DepotManifestGen/internal/util"
)

// loginRetries bounds the login loop.
const loginRetries = 3

// Uploader mirrors written artifacts to remote storage. Optional.
type Uploader interface {
	Upload(ctx context.Context, relPath string, data []byte) error
}

// Options is the explicit run configuration. It is constructed once by
// the CLI layer and passed down; no component reads ambient state.
type Options struct {
	Username       string
	Password       string
	LoginID        uint32
	CredentialFile string
	AppIDs         []uint32
	WorkshopIDs    []uint64
	OnlyInfo       bool
	SharedInstall  bool
	RemoveOld      bool
	SavePath       string

	// PromptPassword is called when a cached token turns out stale and
	// no password was supplied. Nil disables re-prompting.
	PromptPassword func() (string, error)

	// InfoLine receives one app per line in info-only mode.
	InfoLine func(steam.AppInfo)

	Audit  audit.Logger
	Mirror Uploader
	Log    zerolog.Logger
}

// Run executes the full pipeline against client. Per-product and
// per-manifest failures are logged and skipped; only account-level
// failures return an error.
func Run(ctx context.Context, client steam.Client, opts Options) error {
	if opts.Audit == nil {
		opts.Audit = audit.Nop{}
	}
	if opts.Username == "" {
		return fmt.Errorf("%w: no username resolved", util.ErrAuthFailed)
	}

	creds := credentials.Open(opts.CredentialFile)
	if _, err := resolveSession(ctx, client, creds, &opts); err != nil {
		return err
	}

	licenses, err := client.Licenses(ctx)
	if err != nil {
		return fmt.Errorf("fetch licenses: %w", err)
	}
	if len(licenses) == 0 {
		return util.ErrNoLicenses
	}

	if len(opts.WorkshopIDs) > 0 {
		return runWorkshop(ctx, client, opts)
	}

	appIDs, err := selectApps(ctx, client, licenses, opts)
	if err != nil {
		return err
	}
	if len(appIDs) == 0 {
		return util.ErrNoProducts
	}

	if opts.OnlyInfo {
		return runInfo(ctx, client, appIDs, opts)
	}

	ownedApps, ownedDepots, err := client.OwnedIDs(ctx)
	if err != nil {
		return fmt.Errorf("resolve owned ids: %w", err)
	}

	filter := func(d steam.DepotInfo) bool {
		return opts.SharedInstall || !d.SharedInstall
	}

	for _, appID := range appIDs {
		if !ownedApps[appID] && !ownedDepots[appID] {
			opts.Log.Warn().Err(fmt.Errorf("%w: app %d", util.ErrNotOwned, appID)).
				Str("user", opts.Username).Msg("app ignored")
			continue
		}
		if err := grabApp(ctx, client, appID, filter, opts); err != nil {
			if ctx.Err() != nil {
				return err
			}
			opts.Log.Warn().Err(err).Uint32("app_id", appID).Msg("app skipped")
		}
	}
	return nil
}

// resolveSession logs in with the cached refresh token when present,
// retrying a bounded number of times. A stale token triggers one
// password re-prompt per attempt and a token regeneration.
func resolveSession(ctx context.Context, client steam.Client, creds *credentials.Cache, opts *Options) (*steam.Session, error) {
	token, hadToken := creds.Token(opts.Username)

	var session *steam.Session
	var err error
	for attempt := 0; attempt <= loginRetries; attempt++ {
		session, err = client.Login(ctx, opts.Username, opts.Password, token, opts.LoginID)
		if err == nil {
			break
		}

		var authErr *steam.AuthError
		if !errors.As(err, &authErr) {
			return nil, fmt.Errorf("login: %w", err)
		}
		opts.Log.Error().Stringer("result", authErr.Result).Msg("login failure")

		switch {
		case authErr.Retryable():
			// Another connection manager may accept us as-is.
		case authErr.TokenExpired() && hadToken:
			opts.Log.Info().Msg("refresh token may be expired, regenerating")
			if opts.Password == "" {
				if opts.PromptPassword == nil {
					return nil, fmt.Errorf("%w: %v", util.ErrAuthFailed, authErr)
				}
				pw, perr := opts.PromptPassword()
				if perr != nil {
					return nil, fmt.Errorf("read password: %w", perr)
				}
				opts.Password = pw
			}
			token = ""
			hadToken = false
		default:
			return nil, fmt.Errorf("%w: %v", util.ErrAuthFailed, authErr)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: retries exhausted: %v", util.ErrAuthFailed, err)
	}

	if session.RefreshToken != "" && session.RefreshToken != token {
		if err := creds.Put(opts.Username, session.RefreshToken); err != nil {
			opts.Log.Warn().Err(err).Msg("could not persist refresh token")
		}
	}
	return session, nil
}

// selectApps returns the explicit app list, or derives it from license
// metadata filtered by the paid billing allow-list.
func selectApps(ctx context.Context, client steam.Client, licenses []steam.License, opts Options) ([]uint32, error) {
	if len(opts.AppIDs) > 0 {
		return opts.AppIDs, nil
	}

	refs := make([]steam.PackageRef, 0, len(licenses))
	for _, l := range licenses {
		refs = append(refs, steam.PackageRef{PackageID: l.PackageID, AccessToken: l.AccessToken})
	}
	packages, err := client.PackageInfo(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("fetch package info: %w", err)
	}

	seen := make(map[uint32]bool)
	var appIDs []uint32
	for _, info := range packages {
		if !info.BillingType.Paid() {
			continue
		}
		if len(info.AppIDs) == 0 || len(info.DepotIDs) == 0 {
			continue
		}
		for _, id := range info.AppIDs {
			if !seen[id] {
				seen[id] = true
				appIDs = append(appIDs, id)
			}
		}
	}
	return appIDs, nil
}

func runInfo(ctx context.Context, client steam.Client, appIDs []uint32, opts Options) error {
	apps, err := client.AppInfo(ctx, appIDs)
	if err != nil {
		return fmt.Errorf("fetch app info: %w", err)
	}
	for _, id := range appIDs {
		info, ok := apps[id]
		if !ok {
			continue
		}
		if opts.InfoLine != nil {
			opts.InfoLine(info)
		}
		_ = opts.Audit.Log(&audit.Entry{Operation: audit.OpInfo, AppID: id, Success: true})
	}
	return nil
}

func runWorkshop(ctx context.Context, client steam.Client, opts Options) error {
	for _, itemID := range opts.WorkshopIDs {
		opts.Log.Info().Uint64("workshop_id", itemID).Msg("downloading workshop item manifest")

		root := filepath.Join(opts.SavePath, "workshop", fmt.Sprint(itemID))

		raw, err := client.WorkshopManifest(ctx, itemID)
		if err != nil {
			opts.Log.Warn().Err(err).Uint64("workshop_id", itemID).Msg("workshop item skipped")
			continue
		}
		if err := grabManifest(ctx, client, raw, root, audit.OpWorkshop, opts); err != nil {
			if ctx.Err() != nil {
				return err
			}
			opts.Log.Warn().Err(err).Uint64("workshop_id", itemID).Msg("workshop item skipped")
		}
	}
	return nil
}

func grabApp(ctx context.Context, client steam.Client, appID uint32, filter steam.DepotFilter, opts Options) error {
	iter, err := client.Manifests(ctx, appID, filter)
	if err != nil {
		return fmt.Errorf("fetch manifests: %w", err)
	}
	for {
		raw, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("iterate manifests: %w", err)
		}
		if err := grabManifest(ctx, client, raw, opts.SavePath, audit.OpGrab, opts); err != nil {
			if ctx.Err() != nil {
				return err
			}
			opts.Log.Warn().Err(err).
				Uint32("app_id", raw.AppID).Uint32("depot_id", raw.DepotID).Uint64("gid", raw.GID).
				Msg("manifest skipped")
		}
	}
}

// grabManifest runs one manifest through the persistence pipeline:
// key fetch → decrypt → normalize → write → key merge → prune.
func grabManifest(ctx context.Context, client steam.Client, raw *steam.RawManifest, root, op string, opts Options) error {
	dir := manifest.DepotDir(root, raw.AppID)
	target := filepath.Join(dir, manifest.FileName(raw.DepotID, raw.GID))
	if _, err := os.Stat(target); err == nil {
		// Manifests are immutable per (depot, gid); nothing to do.
		opts.Log.Debug().Str("path", target).Msg("manifest already on disk")
		return nil
	}

	key, err := client.DepotKey(ctx, raw.AppID, raw.DepotID)
	if err != nil {
		return fmt.Errorf("fetch depot key: %w", err)
	}

	opts.Log.Info().
		Uint32("app_id", raw.AppID).Uint32("depot_id", raw.DepotID).Uint64("gid", raw.GID).
		Str("decryption_key", util.HexEncode(key)).
		Msg("saving manifest")

	m, err := client.DecryptFilenames(raw, key)
	if err != nil {
		return fmt.Errorf("decrypt filenames: %w", err)
	}

	manifest.Normalize(m)

	path, written, err := manifest.Write(root, m)
	if err != nil {
		return err
	}
	if err := keystore.MergeKey(dir, raw.DepotID, key); err != nil {
		return err
	}

	var removed []string
	if opts.RemoveOld {
		removed, err = manifest.Prune(dir, raw.DepotID, raw.GID)
		if err != nil {
			opts.Log.Warn().Err(err).Uint32("depot_id", raw.DepotID).Msg("prune incomplete")
		}
		for _, name := range removed {
			opts.Log.Info().Str("file", name).Msg("removed superseded manifest")
		}
	}

	entry := &audit.Entry{
		Operation: op,
		AppID:     raw.AppID,
		DepotID:   raw.DepotID,
		GID:       fmt.Sprint(raw.GID),
		Manifest:  path,
		Removed:   removed,
		Success:   true,
	}
	if err := opts.Audit.Log(entry); err != nil {
		opts.Log.Warn().Err(err).Msg("audit entry not written")
	}

	if opts.Mirror != nil && written {
		if err := mirrorArtifacts(ctx, root, path, filepath.Join(dir, keystore.StoreName), opts); err != nil {
			opts.Log.Warn().Err(err).Msg("mirror upload failed")
		}
	}
	return nil
}

func mirrorArtifacts(ctx context.Context, root, manifestPath, storePath string, opts Options) error {
	for _, p := range []string{manifestPath, storePath} {
		rel, err := filepath.Rel(root, p)
		if err != nil {
			rel = filepath.Base(p)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		if err := opts.Mirror.Upload(ctx, filepath.ToSlash(rel), data); err != nil {
			return err
		}
	}
	return nil
}
