package storage

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"image"

	"github.com/NagallaThanvi/unilink/utils/crypto"
	"github.com/disintegration/imaging"
)

// MetadataPrefix is where credential metadata documents are stored
const MetadataPrefix = "credentials/metadata"

// ContentKey returns the content-addressed key of data under prefix
func ContentKey(prefix string, data []byte, ext string) string {
	sum := crypto.Keccak256(data)
	return fmt.Sprintf("%s/%s%s", prefix, hex.EncodeToString(sum[:]), ext)
}

// PutContentAddressed stores data under its own hash. Identical content maps
// to the same key, so an existing object is not uploaded again.
func PutContentAddressed(ctx context.Context, store ObjectStore, prefix string, data []byte, ext, contentType string) (string, error) {
	key := ContentKey(prefix, data, ext)

	exists, err := store.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if exists {
		return store.URL(key), nil
	}
	return store.Put(ctx, key, data, contentType)
}

// UploadMetadata stores canonical credential metadata JSON and returns its URI
func UploadMetadata(ctx context.Context, store ObjectStore, canonicalJSON []byte) (string, error) {
	return PutContentAddressed(ctx, store, MetadataPrefix, canonicalJSON, ".json", "application/json")
}

// ThumbnailSize is the edge length of generated avatars
const ThumbnailSize = 256

// MakeThumbnail decodes an image, crops it to a centred square of size and
// encodes it as JPEG
func MakeThumbnail(data []byte, size int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("unsupported image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("unsupported image: empty")
	}

	var thumb image.Image = imaging.Fill(img, size, size, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
