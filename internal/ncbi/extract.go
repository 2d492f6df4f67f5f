package ncbi

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Extract unpacks the sequence files from a genome bundle zip into one
// directory per accession under destDir. The bundle keeps sequences at
// ncbi_dataset/data/<accession>/<name>.fna; everything else (metadata
// JSON, the md5 manifest) is skipped. Returns the sequence files found,
// keyed by accession.
func Extract(zipPath, destDir string) (map[string][]string, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open genome bundle %s: %v", zipPath, err)
	}
	defer zr.Close()

	files := map[string][]string{}
	for _, f := range zr.File {
		accession, name, ok := splitBundlePath(f.Name)
		if !ok || !strings.HasSuffix(name, ".fna") {
			continue
		}

		isolateDir := filepath.Join(destDir, accession)
		if err := os.MkdirAll(isolateDir, 0755); err != nil {
			return nil, err
		}

		outPath := filepath.Join(isolateDir, filepath.Base(name))
		if err := extractOne(f, outPath); err != nil {
			return nil, err
		}

		files[accession] = append(files[accession], outPath)
	}

	return files, nil
}

// splitBundlePath pulls the accession and file name out of a bundle
// member path like ncbi_dataset/data/GCA_000001015.1/chr1.fna.
func splitBundlePath(member string) (accession, name string, ok bool) {
	parts := strings.Split(filepath.ToSlash(member), "/")
	for i, p := range parts {
		if p == "data" && i+2 < len(parts) {
			return parts[i+1], parts[len(parts)-1], true
		}
	}
	return "", "", false
}

func extractOne(f *zip.File, outPath string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
