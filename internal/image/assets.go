package image

import (
	"context"
	"embed"
	"encoding/xml"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

//go:embed assets/extract-vmlinux.sh assets/overlay-init
var assetFiles embed.FS

// extractVmlinuxScriptPath materialises the bundled bzImage-to-vmlinux
// extraction helper under state_dir/bin/extract-vmlinux (spec.md §6's
// persistent state layout) and returns its path.
func extractVmlinuxScriptPath(ctx context.Context) (string, error) {
	return materializeAsset("assets/extract-vmlinux.sh", "bin/extract-vmlinux", 0o755)
}

// overlayInitScriptPath materialises the /sbin/overlay-init asset used by
// the Debian/Ubuntu overlay packaging step (spec.md §4.4 step 7).
func overlayInitScriptPath() (string, error) {
	return materializeAsset("assets/overlay-init", "bin/overlay-init", 0o755)
}

var assetStateDir string

// SetAssetDir points materializeAsset at state_dir; called once at startup
// by the lifecycle controller.
func SetAssetDir(stateDir string) {
	assetStateDir = stateDir
}

func materializeAsset(embeddedPath, relDest string, mode os.FileMode) (string, error) {
	if assetStateDir == "" {
		return "", os.ErrInvalid
	}

	dest := filepath.Join(assetStateDir, relDest)
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	data, err := assetFiles.ReadFile(embeddedPath)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}

	if err := os.WriteFile(dest, data, mode); err != nil {
		return "", err
	}

	return dest, nil
}

func copyBody(dst io.Writer, resp *http.Response) (int64, error) {
	return io.Copy(dst, resp.Body)
}

// s3ListBucketResult is the minimal subset of an S3 ListObjectsV2 response
// fireup needs: the list of object keys.
type s3ListBucketResult struct {
	XMLName  xml.Name `xml:"ListBucketResult"`
	Contents []struct {
		Key string `xml:"Key"`
	} `xml:"Contents"`
}

func parseS3Keys(r io.Reader) ([]string, error) {
	var result s3ListBucketResult
	if err := xml.NewDecoder(r).Decode(&result); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(result.Contents))
	for _, c := range result.Contents {
		keys = append(keys, c.Key)
	}
	return keys, nil
}
