package shapefile

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spectral-cli/internal/fetcher"
)

// Resolve turns a shapefile reference into a local .shp path. The reference
// may be a local .shp, a local .zip, or an http(s)/ftp URL to either. Remote
// files are downloaded into cacheDir once; archives are extracted next to
// the archive once.
func Resolve(ctx context.Context, f fetcher.Fetcher, ref, cacheDir string) (string, error) {
	log := zap.L().With(
		zap.String("component", "shapefile.resolve"),
		zap.String("ref", ref),
	)

	local := ref
	if isRemote(ref) {
		u, err := url.Parse(ref)
		if err != nil {
			return "", eris.Wrapf(err, "shapefile: parse %s", ref)
		}
		name := path.Base(u.Path)
		if name == "." || name == "/" {
			return "", eris.Errorf("shapefile: cannot derive a file name from %s", ref)
		}
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			return "", eris.Wrap(err, "shapefile: create cache dir")
		}
		local = filepath.Join(cacheDir, name)

		if info, err := os.Stat(local); err == nil && info.Size() > 0 {
			log.Debug("already cached, skipping download", zap.String("path", local))
		} else {
			log.Info("downloading shapefile")
			if _, err := f.DownloadToFile(ctx, ref, local); err != nil {
				return "", eris.Wrap(err, "shapefile: download")
			}
		}
	}

	switch strings.ToLower(filepath.Ext(local)) {
	case ".shp":
		if _, err := os.Stat(local); err != nil {
			return "", eris.Wrapf(err, "shapefile: stat %s", local)
		}
		return local, nil

	case ".zip":
		extractDir := strings.TrimSuffix(local, filepath.Ext(local))
		if shpPath, ok := findShp(extractDir); ok {
			return shpPath, nil
		}
		shpPath, err := fetcher.UnpackShapefile(local, extractDir)
		if err != nil {
			return "", eris.Wrap(err, "shapefile: extract archive")
		}
		return shpPath, nil
	}

	return "", eris.Errorf("shapefile: %s is neither a .shp nor a .zip", ref)
}

func isRemote(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "ftp://")
}

func findShp(dir string) (string, bool) {
	var found string
	_ = filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || found != "" {
			return filepath.SkipDir
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(p), ".shp") {
			found = p
		}
		return nil
	})
	return found, found != ""
}
