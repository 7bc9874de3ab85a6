package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"example.com/tlegate/internal/common"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Item struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Sha256 string `json:"sha256"`
	Type   string `json:"type"`
}

// Manifest lists the inputs and outputs of a run with their digests.
type Manifest struct {
	CreatedAt time.Time `json:"createdAt"`
	ShaAlgo   string    `json:"shaAlgo"`
	Items     []Item    `json:"items"`
}

func Build(paths []string) (Manifest, error) {
	m := Manifest{CreatedAt: time.Now().UTC(), ShaAlgo: "sha256"}
	for _, p := range paths {
		hex, sz, err := common.Sha256OfFile(p)
		if err != nil {
			return m, err
		}
		m.Items = append(m.Items, Item{Path: p, Size: sz, Sha256: hex, Type: itemType(p)})
	}
	return m, nil
}

func itemType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tle", ".3le", ".txt":
		return "tle"
	case ".jsonl", ".ndjson":
		return "jsonl"
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	case ".csv":
		return "csv"
	case ".pdf":
		return "pdf"
	}
	return "other"
}

// Digest is the sha256 of the manifest items, independent of CreatedAt. It
// is what the report QR code carries.
func (m Manifest) Digest() string {
	h := make([]byte, 0, len(m.Items)*80)
	for _, it := range m.Items {
		h = append(h, it.Sha256...)
		h = append(h, ' ')
		h = append(h, filepath.Base(it.Path)...)
		h = append(h, '\n')
	}
	return common.Sha256OfBytes(h)
}

func Save(m Manifest, out string) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func Load(path string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}
