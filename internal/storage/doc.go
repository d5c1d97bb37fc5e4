// Package storage persists render artifacts beyond the container lifetime,
// either by verified copy onto the shared volume or by presigned HTTP upload.
package storage
