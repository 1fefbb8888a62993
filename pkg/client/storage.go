package client

import (
	"context"
	"net/http"
)

// StorageConfig returns the object storage settings with secrets masked
func (c *Client) StorageConfig(ctx context.Context) (*StorageResponse, error) {
	var out StorageResponse
	if err := c.do(ctx, http.MethodGet, "/api/storage/s3", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TestStorage checks bucket access. A failed check is reported in the
// response, not as an error.
func (c *Client) TestStorage(ctx context.Context, in S3Test) (*StorageResponse, error) {
	var out StorageResponse
	if err := c.do(ctx, http.MethodPost, "/api/storage/s3/test", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Version returns the server build information
func (c *Client) Version(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	err := c.do(ctx, http.MethodGet, "/api/version", nil, nil, &out)
	return out, err
}
