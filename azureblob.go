package buckettree

import (
	"context"
	"fmt"
	"io"

	azblob "github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// AzureBlobStorage adapts an Azure Storage blob to the Storage interface,
// so a BucketTree's node storage or entry storage (or both) can live in
// blob storage rather than memory or a local file (SPEC_FULL.md DOMAIN
// STACK; grounded on the teacher's direct azStorageBlob usage in
// blobnotfounderr.go and its Download-based read path).
//
// The blob is treated as immutable for the lifetime of the BucketTree:
// BucketTree never writes through a Storage, only reads.
type AzureBlobStorage struct {
	client *azblob.BlobClient
}

// NewAzureBlobStorage wraps an already-constructed BlobClient. Callers
// are expected to have resolved credentials and container/blob naming
// themselves, mirroring the teacher's split between blob path resolution
// (tenantblobpaths.go) and the reader itself.
func NewAzureBlobStorage(client *azblob.BlobClient) *AzureBlobStorage {
	return &AzureBlobStorage{client: client}
}

// Read downloads exactly len(buf) bytes starting at offset. Azure range
// reads can return short of the requested count near blob boundaries, so
// the full buffer is filled with repeated reads rather than trusting a
// single Download call to satisfy it in one response, the same
// defensive pattern the teacher applies around its blob Reader (spec.md
// §6, blobreader.go).
func (a *AzureBlobStorage) Read(ctx context.Context, offset int64, buf []byte) error {
	remaining := int64(len(buf))
	if remaining == 0 {
		return nil
	}

	filled := int64(0)
	for filled < remaining {
		start := offset + filled
		count := remaining - filled
		resp, err := a.client.Download(ctx, &azblob.BlobDownloadOptions{
			Offset: &start,
			Count:  &count,
		})
		if err != nil {
			return wrapAzureNotFound(err)
		}

		body := resp.Body(nil)
		n, err := io.ReadFull(body, buf[filled:filled+count])
		closeErr := body.Close()
		if err != nil && err != io.ErrUnexpectedEOF {
			return fmt.Errorf("%w: azure blob download body: %s", ErrStorageFailure, err)
		}
		if closeErr != nil {
			return fmt.Errorf("%w: azure blob download body close: %s", ErrStorageFailure, closeErr)
		}
		filled += int64(n)
	}
	return nil
}

// Size returns the blob's current content length via GetProperties.
func (a *AzureBlobStorage) Size(ctx context.Context) (int64, error) {
	props, err := a.client.GetProperties(ctx, nil)
	if err != nil {
		return 0, wrapAzureNotFound(err)
	}
	if props.ContentLength == nil {
		return 0, fmt.Errorf("%w: azure blob properties missing content length", ErrStorageFailure)
	}
	return *props.ContentLength, nil
}

// wrapAzureNotFound translates the Azure SDK's not-found error shape
// into ErrStorageFailure, following AsStorageError/WrapBlobNotFound in
// blobnotfounderr.go.
func wrapAzureNotFound(err error) error {
	serr, ok := asAzureStorageError(err)
	if !ok {
		return fmt.Errorf("%w: %s", ErrStorageFailure, err)
	}
	return fmt.Errorf("%w: azure storage error code %s: %s", ErrStorageFailure, serr.ErrorCode, err)
}

func asAzureStorageError(err error) (azblob.StorageError, bool) {
	serr := &azblob.StorageError{}
	ierr, ok := err.(*azblob.InternalError)
	if ierr == nil || !ok {
		return azblob.StorageError{}, false
	}
	if !ierr.As(&serr) {
		return azblob.StorageError{}, false
	}
	return *serr, true
}
