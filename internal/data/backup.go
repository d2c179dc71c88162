package data

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// CreateBackup copies the current data files into backups/ with a
// shared timestamp prefix. Missing source files are skipped; the
// backup succeeds as long as every existing file copies cleanly.
func CreateBackup(dir string) error {
	backupDir := filepath.Join(dir, "backups")
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return fmt.Errorf("creating backup directory: %w", err)
	}

	prefix := "backup_" + time.Now().Format("20060102_150405")
	files := map[string]string{
		"players.json":   prefix + "_players.json",
		"config.json":    prefix + "_config.json",
		"maze_data.json": prefix + "_maze.json",
	}

	for src, dst := range files {
		srcPath := filepath.Join(dir, src)
		if _, err := os.Stat(srcPath); os.IsNotExist(err) {
			continue
		}
		if err := copyFile(srcPath, filepath.Join(backupDir, dst)); err != nil {
			return fmt.Errorf("backing up %s: %w", src, err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
