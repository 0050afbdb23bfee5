package replay

import (
	"fmt"
	"os"

	"github.com/tkoehlman/vadgate/pkg/audio"
)

// LoadFile reads a raw little-endian 16-bit PCM file as a mono clip.
func LoadFile(path string) ([]int16, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("replay: read clip %q: %w", path, err)
	}
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("replay: clip %q has odd byte length %d, expected 16-bit samples", path, len(raw))
	}
	return audio.BytesToInt16(raw), nil
}
