package covers

import (
	"context"
	"fmt"

	"github.com/simonhull/audiometa"
)

// ExtractEmbedded pulls the first embedded artwork out of an audio
// file and caches it for bookID, returning the blurhash. Returns
// ("", nil) when the file carries no artwork.
func ExtractEmbedded(ctx context.Context, cache *Cache, bookID, audioPath string) (string, error) {
	file, err := audiometa.OpenContext(ctx, audioPath)
	if err != nil {
		return "", fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close() //nolint:errcheck

	artworks, err := file.ExtractArtwork()
	if err != nil {
		return "", fmt.Errorf("extract artwork: %w", err)
	}
	if len(artworks) == 0 {
		return "", nil
	}

	data := artworks[0].Data
	hash, err := BlurHash(data)
	if err != nil {
		return "", err
	}
	if err := cache.Save(bookID, data); err != nil {
		return "", err
	}
	return hash, nil
}
