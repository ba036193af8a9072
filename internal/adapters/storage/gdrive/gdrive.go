package gdrive

import (
	"context"
	"fmt"
	"io"
	"path"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"subrender/internal/ports"
)

// uploadChunkSize switches large artifacts to resumable uploads.
const uploadChunkSize = 8 << 20

// Client implements ports.StorageProvider on Google Drive. Uploads are named
// after the object key; the returned ObjectKey is the Drive file id.
type Client struct {
	srv      *drive.Service
	folderID string
}

func NewClient(srv *drive.Service, folderID string) *Client {
	return &Client{srv: srv, folderID: folderID}
}

func (c *Client) Provider() string { return "gdrive" }

func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, fmt.Errorf("object_key is required")
	}

	file := &drive.File{
		Name:        path.Base(in.ObjectKey),
		Description: "subrender artifact " + in.ObjectKey,
		MimeType:    in.ContentType,
	}
	if c.folderID != "" {
		file.Parents = []string{c.folderID}
	}

	opts := []googleapi.MediaOption{googleapi.ChunkSize(uploadChunkSize)}
	if in.ContentType != "" {
		opts = append(opts, googleapi.ContentType(in.ContentType))
	}

	created, err := c.srv.Files.Create(file).
		Media(in.Reader, opts...).
		SupportsAllDrives(true).
		Fields("id", "size").
		Context(ctx).
		Do()
	if err != nil {
		return ports.PutObjectOutput{}, fmt.Errorf("gdrive upload failed: %w", err)
	}

	size := in.Size
	if created.Size > 0 {
		size = created.Size
	}
	return ports.PutObjectOutput{ObjectKey: created.Id, Size: size}, nil
}

func (c *Client) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	resp, err := c.srv.Files.Get(objectKey).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		return nil, "", 0, fmt.Errorf("gdrive download failed: %w", err)
	}

	return resp.Body, resp.Header.Get("Content-Type"), resp.ContentLength, nil
}
