// Package mirror uploads written artifacts to Azure Blob Storage.
//
// URI scheme:
//
//	az://container/prefix
//
// Every manifest and key-store file written locally is mirrored under
// the prefix, keyed by its path relative to the save root.
//
// Auth order:
//  1. AZURE_STORAGE_CONNECTION_STRING env var (or --azure-connection-string flag)
//  2. azidentity.DefaultAzureCredential (managed identity → env vars → Azure CLI)
package mirror

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// IsAzureURI returns true if the target starts with "az://".
func IsAzureURI(target string) bool {
	return strings.HasPrefix(target, "az://")
}

// ParseURI splits an "az://container/prefix" into container and prefix.
func ParseURI(uri string) (containerName, prefix string, err error) {
	if !IsAzureURI(uri) {
		return "", "", fmt.Errorf("not an Azure URI: %q", uri)
	}
	rest := strings.TrimPrefix(uri, "az://")
	if rest == "" {
		return "", "", fmt.Errorf("empty Azure URI")
	}
	idx := strings.IndexByte(rest, '/')
	if idx < 0 {
		return rest, "", nil
	}
	containerName = rest[:idx]
	prefix = rest[idx+1:]
	if containerName == "" {
		return "", "", fmt.Errorf("empty container name in URI %q", uri)
	}
	return containerName, prefix, nil
}

// Options holds credentials and the upload target.
type Options struct {
	Target           string // az://container/prefix
	AccountName      string // storage account, used with DefaultAzureCredential
	ConnectionString string // takes precedence over AccountName auth
}

// Mirror uploads artifacts to one container/prefix.
type Mirror struct {
	client    *azblob.Client
	container string
	prefix    string
}

// New builds a Mirror from options. Auth follows the documented order.
func New(opts Options) (*Mirror, error) {
	containerName, prefix, err := ParseURI(opts.Target)
	if err != nil {
		return nil, err
	}

	var client *azblob.Client
	if opts.ConnectionString != "" {
		client, err = azblob.NewClientFromConnectionString(opts.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("azure connection string: %w", err)
		}
	} else {
		if opts.AccountName == "" {
			return nil, fmt.Errorf("AZURE_STORAGE_ACCOUNT (or --azure-account) is required when not using a connection string")
		}
		serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", opts.AccountName)
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("azure default credential: %w", err)
		}
		client, err = azblob.NewClient(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("azure client: %w", err)
		}
	}

	return &Mirror{client: client, container: containerName, prefix: prefix}, nil
}

// Upload stores data under the mirror prefix at relPath (slash-separated,
// relative to the save root).
func (m *Mirror) Upload(ctx context.Context, relPath string, data []byte) error {
	blobPath := path.Join(m.prefix, path.Clean(relPath))
	if _, err := m.client.UploadStream(ctx, m.container, blobPath, bytes.NewReader(data), nil); err != nil {
		return fmt.Errorf("azure upload %s/%s: %w", m.container, blobPath, err)
	}
	return nil
}
