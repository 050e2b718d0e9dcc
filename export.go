package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// DownloadExcel fetches the spreadsheet artifact for a record and writes
// it under dir as verificacion_<numero>.xlsx (the id when the record has
// no number yet). Returns the written path.
func DownloadExcel(client *APIClient, id int64, numero, dir string) (string, error) {
	blob, err := client.ExportVerificacion(id)
	if err != nil {
		return "", err
	}

	name := numero
	if name == "" {
		name = strconv.FormatInt(id, 10)
	}
	path := filepath.Join(dir, fmt.Sprintf("verificacion_%s.xlsx", name))
	if err := os.WriteFile(path, blob, 0644); err != nil {
		return "", fmt.Errorf("writing export file: %w", err)
	}
	return path, nil
}
