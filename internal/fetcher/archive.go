package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// shapefileMembers are the sidecar extensions a shapefile reader needs.
var shapefileMembers = map[string]bool{
	".shp": true,
	".shx": true,
	".dbf": true,
	".prj": true,
	".cpg": true,
}

// UnpackShapefile extracts the shapefile members of a ZIP archive into
// destDir and returns the path of the first .shp member. Other entries
// such as readmes and metadata XML are left in the archive.
func UnpackShapefile(zipPath, destDir string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrap(err, "archive: open zip")
	}
	defer r.Close() //nolint:errcheck

	var shp string
	for _, f := range r.File {
		ext := strings.ToLower(path.Ext(f.Name))
		if f.FileInfo().IsDir() || !shapefileMembers[ext] {
			continue
		}
		dst, err := memberPath(destDir, f.Name)
		if err != nil {
			return "", err
		}
		if err := unpackMember(f, dst); err != nil {
			return "", err
		}
		if ext == ".shp" && shp == "" {
			shp = dst
		}
	}

	if shp == "" {
		return "", eris.Errorf("archive: no .shp member in %s", filepath.Base(zipPath))
	}
	return shp, nil
}

// ReadKMZ returns the KML document of a KMZ archive. The root doc.kml wins;
// otherwise the first .kml member in archive order is used.
func ReadKMZ(kmzPath string) ([]byte, error) {
	r, err := zip.OpenReader(kmzPath)
	if err != nil {
		return nil, eris.Wrap(err, "archive: open kmz")
	}
	defer r.Close() //nolint:errcheck

	var doc *zip.File
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !strings.EqualFold(path.Ext(f.Name), ".kml") {
			continue
		}
		if strings.EqualFold(f.Name, "doc.kml") {
			doc = f
			break
		}
		if doc == nil {
			doc = f
		}
	}
	if doc == nil {
		return nil, eris.Errorf("archive: no kml document in %s", filepath.Base(kmzPath))
	}

	rc, err := doc.Open()
	if err != nil {
		return nil, eris.Wrapf(err, "archive: open member %s", doc.Name)
	}
	defer rc.Close() //nolint:errcheck

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, eris.Wrapf(err, "archive: read member %s", doc.Name)
	}
	return data, nil
}

// memberPath joins name under destDir and rejects names that escape it.
func memberPath(destDir, name string) (string, error) {
	dst := filepath.Join(destDir, filepath.FromSlash(name))
	root := filepath.Clean(destDir) + string(os.PathSeparator)
	if !strings.HasPrefix(dst, root) {
		return "", eris.Errorf("archive: member %q escapes %s", name, destDir)
	}
	return dst, nil
}

func unpackMember(f *zip.File, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return eris.Wrap(err, "archive: create directory")
	}

	rc, err := f.Open()
	if err != nil {
		return eris.Wrapf(err, "archive: open member %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(dst)
	if err != nil {
		return eris.Wrap(err, "archive: create file")
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return eris.Wrapf(err, "archive: write %s", dst)
	}
	return eris.Wrap(out.Close(), "archive: close file")
}
