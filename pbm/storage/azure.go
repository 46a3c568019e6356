package storage

import (
	"bytes"
	"context"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/pkg/errors"
)

// AzureConfig carries the connection parameters for the Azure Blob
// backend.
type AzureConfig struct {
	ConnectionString string
	Container        string
	Prefix           string
}

// Azure persists objects as block blobs in an Azure Storage container.
type Azure struct {
	client    *azblob.Client
	container string
	prefix    string
}

// NewAzure builds an Azure-backed Storage from cfg.
func NewAzure(cfg AzureConfig) (*Azure, error) {
	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, errors.Wrap(err, "new azure blob client")
	}
	return &Azure{client: client, container: cfg.Container, prefix: cfg.Prefix}, nil
}

func (a *Azure) key(name string) string {
	if a.prefix == "" {
		return name
	}
	return a.prefix + "/" + name
}

func (a *Azure) Save(name string, data io.Reader, size int64) error {
	ctx := context.Background()
	_, err := a.client.UploadStream(ctx, a.container, a.key(name), data, nil)
	return errors.Wrap(err, "upload blob")
}

func (a *Azure) SourceReader(name string) (io.ReadCloser, error) {
	ctx := context.Background()
	resp, err := a.client.DownloadStream(ctx, a.container, a.key(name), nil)
	if isAzureNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "download blob")
	}
	return resp.Body, nil
}

func (a *Azure) FileStat(name string) (FileInfo, error) {
	rc, err := a.SourceReader(name)
	if err != nil {
		return FileInfo{}, err
	}
	defer rc.Close()

	n, err := io.Copy(io.Discard, rc)
	if err != nil {
		return FileInfo{}, errors.Wrap(err, "measure blob")
	}
	return FileInfo{Name: name, Size: n}, nil
}

func (a *Azure) Delete(name string) error {
	ctx := context.Background()
	_, err := a.client.DeleteBlob(ctx, a.container, a.key(name), nil)
	if isAzureNotFound(err) {
		return nil
	}
	return errors.Wrap(err, "delete blob")
}

func isAzureNotFound(err error) bool {
	if err == nil {
		return false
	}
	return bytes.Contains([]byte(err.Error()), []byte("BlobNotFound")) ||
		bytes.Contains([]byte(err.Error()), []byte("404"))
}
