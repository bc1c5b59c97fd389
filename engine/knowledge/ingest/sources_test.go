package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/docqa/engine/knowledge/document"
)

func TestEnumerate(t *testing.T) {
	ctx := context.Background()
	setup := func(t *testing.T) string {
		t.Helper()
		dir := t.TempDir()
		for _, rel := range []string{"b.docx", "a.docx", "notes.txt", "sub/c.docx", "sub/deeper/d.DOCX", "image.png"} {
			path := filepath.Join(dir, rel)
			require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
			require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
		}
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "folder.docx"), 0o750))
		return dir
	}
	t.Run("Should return sorted supported files from recursive patterns", func(t *testing.T) {
		dir := setup(t)
		files, err := Enumerate(ctx, dir, []string{"**/*"}, document.NewRegistry(".docx"))
		require.NoError(t, err)
		abs, err := filepath.Abs(dir)
		require.NoError(t, err)
		assert.Equal(t, []string{
			filepath.Join(abs, "a.docx"),
			filepath.Join(abs, "b.docx"),
			filepath.Join(abs, "sub", "c.docx"),
			filepath.Join(abs, "sub", "deeper", "d.DOCX"),
		}, files)
	})
	t.Run("Should honor narrow patterns and de-duplicate overlaps", func(t *testing.T) {
		dir := setup(t)
		files, err := Enumerate(ctx, dir, []string{"*.docx", "a.*", "  "}, document.NewRegistry())
		require.NoError(t, err)
		require.Len(t, files, 2)
		assert.Equal(t, "a.docx", filepath.Base(files[0]))
		assert.Equal(t, "b.docx", filepath.Base(files[1]))
	})
	t.Run("Should reject a file passed as the corpus folder", func(t *testing.T) {
		dir := setup(t)
		_, err := Enumerate(ctx, filepath.Join(dir, "a.docx"), []string{"**/*"}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a directory")
	})
}
